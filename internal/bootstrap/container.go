package bootstrap

import (
	"context"
	"sync"

	chclient "poolvault/internal/adapters/clickhouse"
	"poolvault/internal/adapters/config"
	"poolvault/internal/adapters/kafka"
	"poolvault/internal/adapters/ledger"
	pgclient "poolvault/internal/adapters/postgres"
	"poolvault/internal/adapters/prices"
	redisclient "poolvault/internal/adapters/redis"
	"poolvault/internal/api"
	"poolvault/internal/api/handlers"
	"poolvault/internal/api/health"
	"poolvault/internal/domain/history"
	"poolvault/internal/domain/member"
	"poolvault/internal/domain/pool"
	"poolvault/internal/events"
	chrepo "poolvault/internal/repository/clickhouse"
	pgrepo "poolvault/internal/repository/postgres"
	"poolvault/internal/services/allocation"
	"poolvault/internal/services/fees"
	"poolvault/internal/services/shares"
	syncservice "poolvault/internal/services/sync"
	"poolvault/internal/services/valuation"
	"poolvault/internal/workers"
	"poolvault/pkg/errors"
	"poolvault/pkg/logger"
)

// Container holds all application dependencies and their lifecycle.
// Components are organized in initialization order.
type Container struct {
	Config       *config.Config
	Log          *logger.Logger
	ErrorTracker errors.Tracker

	// Infrastructure layer
	PG    *pgclient.Client
	CH    *chclient.Client
	Redis *redisclient.Client

	Repos       *Repositories
	Adapters    *Adapters
	Services    *Services
	Application *Application
	Background  *Background

	Lifecycle *Lifecycle
	WG        *sync.WaitGroup
	Context   context.Context
	Cancel    context.CancelFunc
}

// Repositories groups all durable stores.
// Valuations is the concrete observation store so its batch writer
// lifecycle can be driven by the container. Atomic groups Postgres
// writes into single transactions for the services that need it.
type Repositories struct {
	Pool       pool.Repository
	Member     member.Repository
	History    history.Repository
	Snapshots  pool.SnapshotStore
	Valuations *chrepo.ValuationRepository
	Atomic     *pgrepo.Atomic
}

// Adapters groups external collaborators
type Adapters struct {
	KafkaProducer *kafka.Producer
	Publisher     events.Publisher
	Ledger        ledger.Ledger
	Prices        prices.Source
}

// Services groups the domain services
type Services struct {
	Valuation  *valuation.Service
	Shares     *shares.Service
	Sync       *syncservice.Service
	Fees       *fees.Service
	Allocation *allocation.Service
}

// Application groups the HTTP layer
type Application struct {
	HTTPServer    *api.Server
	HealthHandler *health.Handler
	APIHandler    *handlers.Handler
}

// Background groups background processing
type Background struct {
	WorkerScheduler *workers.Scheduler
}

// NewContainer creates a new dependency container
func NewContainer() *Container {
	ctx, cancel := context.WithCancel(context.Background())

	return &Container{
		Repos:       &Repositories{},
		Adapters:    &Adapters{},
		Services:    &Services{},
		Application: &Application{},
		Background:  &Background{},
		Lifecycle:   NewLifecycle(),
		WG:          &sync.WaitGroup{},
		Context:     ctx,
		Cancel:      cancel,
	}
}

// MustInit initializes all components in dependency order.
// Panics on any initialization error (fail-fast at startup).
func (c *Container) MustInit() {
	c.MustInitConfig()
	c.MustInitInfrastructure()
	c.MustInitRepositories()
	c.MustInitAdapters()
	c.MustInitServices()
	c.MustInitApplication()
	c.MustInitBackground()
}

// Start launches the HTTP server and background workers
func (c *Container) Start() error {
	c.Repos.Valuations.Start(c.Context)

	c.WG.Add(1)
	go func() {
		defer c.WG.Done()
		if err := c.Application.HTTPServer.Start(); err != nil {
			c.Log.Errorf("HTTP server failed: %v", err)
			c.Cancel()
		}
	}()

	if err := c.Background.WorkerScheduler.Start(c.Context); err != nil {
		return errors.Wrap(err, "start workers")
	}

	c.Log.Info("✓ All systems operational")
	return nil
}

// Shutdown performs graceful shutdown: HTTP drain first, then workers,
// then the event producer, datastores last
func (c *Container) Shutdown() {
	c.Log.Info("Initiating graceful shutdown...")
	c.Cancel()

	c.Lifecycle.Shutdown(
		c.WG,
		c.Application.HTTPServer,
		c.Background.WorkerScheduler,
		c.Repos.Valuations,
		c.Adapters.KafkaProducer,
		c.PG,
		c.CH,
		c.Redis,
		c.ErrorTracker,
		c.Log,
	)
}
