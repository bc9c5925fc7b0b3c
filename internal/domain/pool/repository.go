package pool

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Repository defines durable cache access for the pool record.
// The cache is a write-through projection of the ledger: divergence is
// always resolved by overwriting the cache, never the reverse.
type Repository interface {
	Get(ctx context.Context) (*Pool, error)
	Save(ctx context.Context, p *Pool) error

	// Virtual per-asset holdings used by the market-adjusted valuation tier
	GetHoldings(ctx context.Context) (map[string]decimal.Decimal, error)
	SaveHoldings(ctx context.Context, holdings map[string]decimal.Decimal) error
}

// SnapshotStore is the hot, TTL-bounded cache for resolved pool views
type SnapshotStore interface {
	GetView(ctx context.Context) (*View, error)
	SaveView(ctx context.Context, v *View, ttl time.Duration) error
}

// ObservationStore is the append-only analytics stream of resolved
// valuations. Writes are best-effort and must never fail a valuation.
type ObservationStore interface {
	AppendObservation(ctx context.Context, v *View, resolveTime time.Duration) error
	RecentObservations(ctx context.Context, since time.Time, limit int) ([]*View, error)
}
