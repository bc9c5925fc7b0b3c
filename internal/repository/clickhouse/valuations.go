package clickhouse

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/shopspring/decimal"

	"poolvault/internal/domain/pool"
	chbatch "poolvault/pkg/clickhouse"
)

// Compile-time check
var _ pool.ObservationStore = (*ValuationRepository)(nil)

// valuationRow is the ClickHouse wire shape of one observation.
// Numerics are stored as Float64; the analytics stream trades exactness
// for cheap aggregation, exact figures live in Postgres.
type valuationRow struct {
	ObservedAt    time.Time `ch:"observed_at"`
	Tier          string    `ch:"tier"`
	TotalNAVUSD   float64   `ch:"total_nav_usd"`
	SharePriceUSD float64   `ch:"share_price_usd"`
	TotalShares   float64   `ch:"total_shares"`
	MemberCount   uint32    `ch:"member_count"`
	ResolveMS     uint64    `ch:"resolve_ms"`
}

// ValuationRepository streams resolved valuations into ClickHouse
// through a batch writer
type ValuationRepository struct {
	conn   driver.Conn
	writer *chbatch.BatchWriter[valuationRow]
}

// NewValuationRepository creates a new valuation repository
func NewValuationRepository(conn driver.Conn) *ValuationRepository {
	r := &ValuationRepository{conn: conn}
	r.writer = chbatch.NewBatchWriter[valuationRow](chbatch.Config{
		Table:        "pool_valuations",
		MaxBatchSize: 64,
		MaxAge:       5 * time.Second,
	}, r.insertBatch)
	return r
}

// Start launches the background flush loop
func (r *ValuationRepository) Start(ctx context.Context) {
	r.writer.Start(ctx)
}

// Stop drains buffered observations
func (r *ValuationRepository) Stop(ctx context.Context) error {
	return r.writer.Stop(ctx)
}

// AppendObservation buffers one resolved valuation for insertion
func (r *ValuationRepository) AppendObservation(ctx context.Context, v *pool.View, resolveTime time.Duration) error {
	return r.writer.Add(ctx, valuationRow{
		ObservedAt:    v.ObservedAt,
		Tier:          v.Tier.String(),
		TotalNAVUSD:   v.TotalValueUSD.InexactFloat64(),
		SharePriceUSD: v.SharePriceUSD.InexactFloat64(),
		TotalShares:   v.TotalShares.InexactFloat64(),
		MemberCount:   uint32(v.MemberCount),
		ResolveMS:     uint64(resolveTime.Milliseconds()),
	})
}

func (r *ValuationRepository) insertBatch(ctx context.Context, rows []valuationRow) error {
	batch, err := r.conn.PrepareBatch(ctx, "INSERT INTO pool_valuations")
	if err != nil {
		return err
	}

	for i := range rows {
		if err := batch.AppendStruct(&rows[i]); err != nil {
			return err
		}
	}

	return batch.Send()
}

// RecentObservations retrieves valuations observed after since, newest first
func (r *ValuationRepository) RecentObservations(ctx context.Context, since time.Time, limit int) ([]*pool.View, error) {
	var rows []valuationRow

	query := `
		SELECT observed_at, tier, total_nav_usd, share_price_usd,
		       total_shares, member_count, resolve_ms
		FROM pool_valuations
		WHERE observed_at >= $1
		ORDER BY observed_at DESC
		LIMIT $2`

	if err := r.conn.Select(ctx, &rows, query, since, limit); err != nil {
		return nil, err
	}

	views := make([]*pool.View, 0, len(rows))
	for _, row := range rows {
		views = append(views, &pool.View{
			TotalValueUSD: decimal.NewFromFloat(row.TotalNAVUSD),
			TotalShares:   decimal.NewFromFloat(row.TotalShares),
			SharePriceUSD: decimal.NewFromFloat(row.SharePriceUSD),
			MemberCount:   int(row.MemberCount),
			Tier:          pool.Tier(row.Tier),
			ObservedAt:    row.ObservedAt,
		})
	}

	return views, nil
}
