package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"poolvault/internal/domain/pool"
	"poolvault/pkg/errors"
)

// PoolRepository implements pool.Repository on Postgres.
// The pool is a single row guarded by id = 1; Save upserts that row so
// the aggregate can never fork into multiple records.
type PoolRepository struct {
	db DBTX
}

// NewPoolRepository creates a new pool repository
func NewPoolRepository(db DBTX) *PoolRepository {
	return &PoolRepository{db: db}
}

// Get retrieves the singleton pool record
func (r *PoolRepository) Get(ctx context.Context) (*pool.Pool, error) {
	query := `
		SELECT total_shares, total_nav_usd, member_count, allocations,
		       last_rebalance_at,
		       accrued_management_fee_usd, accrued_performance_fee_usd,
		       high_water_mark_nav_usd, treasury_balance_usd, fees_accrued_at,
		       updated_at
		FROM pool
		WHERE id = 1
	`

	p := &pool.Pool{}
	var allocations []byte
	err := r.db.QueryRowContext(ctx, query).Scan(
		&p.TotalShares, &p.TotalNAVUSD, &p.MemberCount, &allocations,
		&p.LastRebalanceAt,
		&p.AccruedManagementFeeUSD, &p.AccruedPerformanceFeeUSD,
		&p.HighWaterMarkNAVUSD, &p.TreasuryBalanceUSD, &p.FeesAccruedAt,
		&p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get pool")
	}

	if err := json.Unmarshal(allocations, &p.Allocations); err != nil {
		return nil, errors.Wrap(err, "unmarshal pool allocations")
	}

	return p, nil
}

// Save upserts the singleton pool record
func (r *PoolRepository) Save(ctx context.Context, p *pool.Pool) error {
	allocations, err := json.Marshal(p.Allocations)
	if err != nil {
		return errors.Wrap(err, "marshal pool allocations")
	}

	query := `
		INSERT INTO pool (
			id, total_shares, total_nav_usd, member_count, allocations,
			last_rebalance_at,
			accrued_management_fee_usd, accrued_performance_fee_usd,
			high_water_mark_nav_usd, treasury_balance_usd, fees_accrued_at
		) VALUES (
			1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
		ON CONFLICT (id) DO UPDATE SET
			total_shares = EXCLUDED.total_shares,
			total_nav_usd = EXCLUDED.total_nav_usd,
			member_count = EXCLUDED.member_count,
			allocations = EXCLUDED.allocations,
			last_rebalance_at = EXCLUDED.last_rebalance_at,
			accrued_management_fee_usd = EXCLUDED.accrued_management_fee_usd,
			accrued_performance_fee_usd = EXCLUDED.accrued_performance_fee_usd,
			high_water_mark_nav_usd = EXCLUDED.high_water_mark_nav_usd,
			treasury_balance_usd = EXCLUDED.treasury_balance_usd,
			fees_accrued_at = EXCLUDED.fees_accrued_at,
			updated_at = NOW()
		RETURNING updated_at
	`

	return errors.Wrap(r.db.QueryRowContext(ctx, query,
		p.TotalShares, p.TotalNAVUSD, p.MemberCount, allocations,
		p.LastRebalanceAt,
		p.AccruedManagementFeeUSD, p.AccruedPerformanceFeeUSD,
		p.HighWaterMarkNAVUSD, p.TreasuryBalanceUSD, p.FeesAccruedAt,
	).Scan(&p.UpdatedAt), "save pool")
}

// GetHoldings retrieves the mirrored per-asset holdings
func (r *PoolRepository) GetHoldings(ctx context.Context) (map[string]decimal.Decimal, error) {
	query := `SELECT symbol, amount FROM pool_holdings`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "get holdings")
	}
	defer rows.Close()

	holdings := make(map[string]decimal.Decimal)
	for rows.Next() {
		var symbol string
		var amount decimal.Decimal
		if err := rows.Scan(&symbol, &amount); err != nil {
			return nil, errors.Wrap(err, "scan holding")
		}
		holdings[symbol] = amount
	}

	return holdings, rows.Err()
}

// SaveHoldings replaces the mirrored per-asset holdings.
// Symbols absent from the new set are removed so stale assets never
// linger after a ledger-side allocation change.
func (r *PoolRepository) SaveHoldings(ctx context.Context, holdings map[string]decimal.Decimal) error {
	for symbol, amount := range holdings {
		query := `
			INSERT INTO pool_holdings (symbol, amount)
			VALUES ($1, $2)
			ON CONFLICT (symbol) DO UPDATE SET
				amount = EXCLUDED.amount,
				updated_at = NOW()
		`
		if _, err := r.db.ExecContext(ctx, query, symbol, amount); err != nil {
			return errors.Wrapf(err, "save holding %s", symbol)
		}
	}

	symbols := make([]string, 0, len(holdings))
	for symbol := range holdings {
		symbols = append(symbols, symbol)
	}

	query := `DELETE FROM pool_holdings WHERE NOT (symbol = ANY($1))`
	if _, err := r.db.ExecContext(ctx, query, pq.Array(symbols)); err != nil {
		return errors.Wrap(err, "prune holdings")
	}

	return nil
}
