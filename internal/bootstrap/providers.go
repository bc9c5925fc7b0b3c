package bootstrap

import (
	"github.com/shopspring/decimal"

	chclient "poolvault/internal/adapters/clickhouse"
	"poolvault/internal/adapters/config"
	errnoop "poolvault/internal/adapters/errors/noop"
	"poolvault/internal/adapters/errors/sentry"
	"poolvault/internal/adapters/kafka"
	"poolvault/internal/adapters/ledger"
	pgclient "poolvault/internal/adapters/postgres"
	"poolvault/internal/adapters/prices"
	redisclient "poolvault/internal/adapters/redis"
	"poolvault/internal/api"
	"poolvault/internal/api/handlers"
	"poolvault/internal/api/health"
	"poolvault/internal/events"
	"poolvault/internal/metrics"
	chrepo "poolvault/internal/repository/clickhouse"
	pgrepo "poolvault/internal/repository/postgres"
	redisrepo "poolvault/internal/repository/redis"
	"poolvault/internal/services/allocation"
	"poolvault/internal/services/fees"
	"poolvault/internal/services/shares"
	syncservice "poolvault/internal/services/sync"
	"poolvault/internal/services/valuation"
	"poolvault/internal/workers"
	"poolvault/pkg/errors"
	"poolvault/pkg/logger"
)

// ========================================
// Phase 1: Configuration & Logging
// ========================================

// MustInitConfig loads configuration and initializes logger and metrics
func (c *Container) MustInitConfig() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	c.Config = cfg

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}

	c.Log = logger.Get()
	c.Log.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Env)

	c.ErrorTracker = provideErrorTracker(cfg, c.Log)
	logger.SetErrorTracker(c.ErrorTracker)

	metrics.Init()
}

// ========================================
// Phase 2: Infrastructure Layer
// ========================================

// MustInitInfrastructure connects Postgres, ClickHouse and Redis
func (c *Container) MustInitInfrastructure() {
	var err error

	c.Log.Info("Connecting to PostgreSQL...")
	c.PG, err = pgclient.NewClient(c.Config.Postgres)
	if err != nil {
		c.Log.Fatalf("failed to connect postgres: %v", err)
	}
	c.Log.Info("✓ PostgreSQL connected")

	c.Log.Info("Connecting to ClickHouse...")
	c.CH, err = chclient.NewClient(c.Config.ClickHouse)
	if err != nil {
		c.Log.Fatalf("failed to connect clickhouse: %v", err)
	}
	c.Log.Info("✓ ClickHouse connected")

	c.Log.Info("Connecting to Redis...")
	c.Redis, err = redisclient.NewClient(c.Config.Redis)
	if err != nil {
		c.Log.Fatalf("failed to connect redis: %v", err)
	}
	c.Log.Info("✓ Redis connected")
}

// ========================================
// Phase 3: Repositories
// ========================================

// MustInitRepositories wires the durable stores
func (c *Container) MustInitRepositories() {
	c.Repos.Pool = pgrepo.NewPoolRepository(c.PG.DB())
	c.Repos.Member = pgrepo.NewMemberRepository(c.PG.DB())
	c.Repos.History = pgrepo.NewHistoryRepository(c.PG.DB())
	c.Repos.Snapshots = redisrepo.NewSnapshotStore(c.Redis)
	c.Repos.Valuations = chrepo.NewValuationRepository(c.CH.Conn())
	c.Repos.Atomic = pgrepo.NewAtomic(c.PG.DB())

	c.Log.Info("✓ Repositories initialized")
}

// ========================================
// Phase 4: External Adapters
// ========================================

// MustInitAdapters wires the ledger gateway, price source and event stream
func (c *Container) MustInitAdapters() {
	c.Adapters.KafkaProducer = kafka.NewProducer(kafka.ProducerConfig{
		Brokers: c.Config.Kafka.Brokers,
	})
	c.Adapters.Publisher = events.NewKafkaPublisher(c.Adapters.KafkaProducer)

	c.Adapters.Ledger = ledger.NewRPCClient(c.Config.Ledger)

	// Quotes flow in through the Redis quote cache; the static source is
	// the empty-by-default upstream behind it (price feed retrieval is
	// out of scope for this service)
	static := prices.NewStaticSource(map[string]decimal.Decimal{})
	c.Adapters.Prices = prices.NewCachedSource(static, c.Redis, c.Config.Prices.QuoteTTL)

	c.Log.Info("✓ Adapters initialized")
}

// ========================================
// Phase 5: Domain Services
// ========================================

// MustInitServices wires the domain services
func (c *Container) MustInitServices() {
	c.Services.Valuation = valuation.NewService(
		c.Adapters.Ledger,
		c.Adapters.Prices,
		c.Repos.Pool,
		c.Repos.Snapshots,
		c.Repos.Valuations,
		valuation.Config{
			SnapshotTTL:      c.Config.Pool.SnapshotTTL,
			RecentValuations: c.Config.Pool.RecentValuations,
		},
		c.Log,
	)

	c.Services.Sync = syncservice.NewService(
		c.Adapters.Ledger,
		c.Repos.Pool,
		c.Repos.Member,
		c.Adapters.Publisher,
		syncservice.Config{PageSize: c.Config.Ledger.PageSize},
		c.Log,
	)

	c.Services.Shares = shares.NewService(
		c.Services.Valuation,
		c.Services.Sync,
		c.Repos.Pool,
		c.Repos.Member,
		c.Repos.Atomic,
		c.Adapters.Publisher,
		shares.Config{MinDepositUSD: c.Config.Pool.MinDeposit()},
		c.Log,
	)

	c.Services.Fees = fees.NewService(
		c.Repos.Pool,
		c.Adapters.Publisher,
		fees.Config{
			ManagementFeeBps:  c.Config.Pool.ManagementFeeBps,
			PerformanceFeeBps: c.Config.Pool.PerformanceFeeBps,
			FeeManagerID:      c.Config.Admin.FeeManagerID,
		},
		c.Log,
	)

	c.Services.Allocation = allocation.NewService(
		c.Repos.Pool,
		c.Repos.History,
		c.Repos.Atomic,
		c.Adapters.Publisher,
		allocation.Config{
			Assets:        c.Config.Pool.Assets,
			Cooldown:      c.Config.Pool.RebalanceCooldown,
			RebalancerIDs: c.Config.Admin.RebalancerIDs,
		},
		c.Log,
	)

	c.Log.Info("✓ Services initialized")
}

// ========================================
// Phase 6: Application Layer
// ========================================

// MustInitApplication wires the HTTP server
func (c *Container) MustInitApplication() {
	c.Application.HealthHandler = health.NewHandler(
		c.PG.DB(),
		c.CH.Conn(),
		c.Redis.Client(),
		c.Config.App.Name,
		c.Config.App.Version,
	)

	c.Application.APIHandler = handlers.NewHandler(
		c.Services.Valuation,
		c.Services.Shares,
		c.Services.Sync,
		c.Services.Fees,
		c.Services.Allocation,
		c.Repos.History,
		c.Config.Admin.SyncSecret,
		c.Log,
	)

	c.Application.HTTPServer = api.NewServer(
		api.Config{
			Port:        c.Config.App.Port,
			ServiceName: c.Config.App.Name,
			Version:     c.Config.App.Version,
		},
		c.Application.HealthHandler,
		c.Application.APIHandler,
		c.Log,
	)

	c.Log.Info("✓ Application layer initialized")
}

// ========================================
// Phase 7: Background Workers
// ========================================

// MustInitBackground wires the worker scheduler
func (c *Container) MustInitBackground() {
	scheduler := workers.NewScheduler()

	scheduler.RegisterWorker(workers.NewResyncWorker(
		c.Services.Sync,
		c.Config.Workers.ResyncInterval,
		c.Config.Workers.ResyncEnabled,
	))
	scheduler.RegisterWorker(workers.NewFeeAccrualWorker(
		c.Services.Fees,
		c.Config.Workers.FeeAccrualInterval,
		c.Config.Workers.FeeAccrualEnabled,
	))
	scheduler.RegisterWorker(workers.NewValuationWorker(
		c.Services.Valuation,
		c.Config.Workers.ValuationInterval,
		c.Config.Workers.ValuationEnabled,
	))

	c.Background.WorkerScheduler = scheduler
	c.Log.Info("✓ Background workers initialized")
}

func provideErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled, using noop tracker")
		return errnoop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment)
	if err != nil {
		log.Warnf("Failed to init Sentry, falling back to noop: %v", err)
		return errnoop.New()
	}

	log.Info("✓ Sentry error tracking initialized")
	return tracker
}
