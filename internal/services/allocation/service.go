package allocation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"poolvault/internal/domain/history"
	"poolvault/internal/domain/member"
	"poolvault/internal/domain/pool"
	"poolvault/internal/events"
	"poolvault/pkg/errors"
	"poolvault/pkg/logger"
)

// Atomic runs a group of repository writes in one transaction
type Atomic interface {
	Run(ctx context.Context, fn func(pools pool.Repository, members member.Repository, hist history.Repository) error) error
}

// Config carries rebalancing policy
type Config struct {
	Assets        []string
	Cooldown      time.Duration
	RebalancerIDs []string
}

// Service validates and applies target allocation changes with a
// cooldown gate and an append-only audit trail
type Service struct {
	pools     pool.Repository
	history   history.Repository
	atomic    Atomic
	publisher events.Publisher
	cfg       Config
	assets    map[string]bool
	log       *logger.Logger
}

// NewService creates a new allocation controller
func NewService(pools pool.Repository, hist history.Repository, atomic Atomic, publisher events.Publisher, cfg Config, log *logger.Logger) *Service {
	assets := make(map[string]bool, len(cfg.Assets))
	for _, symbol := range cfg.Assets {
		assets[symbol] = true
	}
	return &Service{
		pools:     pools,
		history:   hist,
		atomic:    atomic,
		publisher: publisher,
		cfg:       cfg,
		assets:    assets,
		log:       log.With("service", "allocation"),
	}
}

// SetTargetAllocation validates and applies a new allocation vector.
// On any rejection the pool state is left unchanged and no record is
// appended.
func (s *Service) SetTargetAllocation(ctx context.Context, alloc pool.Allocations, reasoning, executorID string) error {
	if !s.authorized(executorID) {
		return errors.Wrapf(errors.ErrUnauthorized, "executor %q lacks the rebalancer capability", executorID)
	}

	for symbol := range alloc {
		if !s.assets[symbol] {
			return errors.Wrapf(errors.ErrInvalidAllocation, "unknown asset %q", symbol)
		}
	}
	if !alloc.Valid() {
		return errors.Wrapf(errors.ErrInvalidAllocation, "weights sum to %d", alloc.Sum())
	}

	p, err := s.pools.Get(ctx)
	if err != nil {
		if !errors.Is(err, errors.ErrNotFound) {
			return errors.Wrap(err, "load pool")
		}
		p = &pool.Pool{Allocations: pool.Allocations{}}
	}

	now := time.Now().UTC()
	if !p.LastRebalanceAt.IsZero() {
		if since := now.Sub(p.LastRebalanceAt); since < s.cfg.Cooldown {
			return errors.Wrapf(errors.ErrRebalanceCooldown, "next rebalance allowed in %s", s.cfg.Cooldown-since)
		}
	}

	p.Allocations = alloc
	p.LastRebalanceAt = now

	record := &history.Rebalance{
		ID:          uuid.New(),
		Allocations: alloc,
		Reasoning:   reasoning,
		ExecutorID:  executorID,
	}

	// Pool state and audit record commit together or not at all
	err = s.atomic.Run(ctx, func(pools pool.Repository, _ member.Repository, hist history.Repository) error {
		if err := pools.Save(ctx, p); err != nil {
			return errors.Wrap(err, "save pool")
		}
		if err := hist.AppendRebalance(ctx, record); err != nil {
			return errors.Wrap(err, "append rebalance record")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.publisher.RebalanceExecuted(ctx, events.RebalanceEvent{
		Allocations: alloc,
		Reasoning:   reasoning,
		ExecutorID:  executorID,
		OccurredAt:  now,
	})

	s.log.Infow("Target allocation updated",
		"allocations", alloc,
		"executor", executorID,
	)

	return nil
}

// RecentRebalances returns the audit trail, newest first
func (s *Service) RecentRebalances(ctx context.Context, limit int) ([]*history.Rebalance, error) {
	return s.history.RecentRebalances(ctx, limit)
}

func (s *Service) authorized(executorID string) bool {
	if executorID == "" {
		return false
	}
	for _, id := range s.cfg.RebalancerIDs {
		if id == executorID {
			return true
		}
	}
	return false
}
