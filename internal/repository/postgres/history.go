package postgres

import (
	"context"
	"encoding/json"

	"poolvault/internal/domain/history"
	"poolvault/internal/domain/member"
	"poolvault/pkg/errors"
)

// HistoryRepository implements history.Repository on Postgres.
// Both backing tables are append-only.
type HistoryRepository struct {
	db DBTX
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db DBTX) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// AppendTransaction records one share issuance or redemption
func (r *HistoryRepository) AppendTransaction(ctx context.Context, tx *history.Transaction) error {
	query := `
		INSERT INTO transactions (
			id, wallet, kind, amount_usd, shares_delta, share_price_usd, external_reference
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`

	return errors.Wrap(r.db.QueryRowContext(ctx, query,
		tx.ID, member.Normalize(tx.Wallet), tx.Kind,
		tx.AmountUSD, tx.SharesDelta, tx.SharePriceUSD, tx.ExternalReference,
	).Scan(&tx.CreatedAt), "append transaction")
}

// RecentTransactions retrieves the newest transactions first
func (r *HistoryRepository) RecentTransactions(ctx context.Context, limit int) ([]*history.Transaction, error) {
	query := `
		SELECT id, wallet, kind, amount_usd, shares_delta, share_price_usd,
		       external_reference, created_at
		FROM transactions
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "recent transactions")
	}
	defer rows.Close()

	var txs []*history.Transaction
	for rows.Next() {
		tx := &history.Transaction{}
		if err := rows.Scan(
			&tx.ID, &tx.Wallet, &tx.Kind, &tx.AmountUSD, &tx.SharesDelta,
			&tx.SharePriceUSD, &tx.ExternalReference, &tx.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan transaction")
		}
		txs = append(txs, tx)
	}

	return txs, rows.Err()
}

// AppendRebalance records one target allocation change
func (r *HistoryRepository) AppendRebalance(ctx context.Context, reb *history.Rebalance) error {
	allocations, err := json.Marshal(reb.Allocations)
	if err != nil {
		return errors.Wrap(err, "marshal rebalance allocations")
	}

	query := `
		INSERT INTO rebalances (id, allocations, reasoning, executor_id)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`

	return errors.Wrap(r.db.QueryRowContext(ctx, query,
		reb.ID, allocations, reb.Reasoning, reb.ExecutorID,
	).Scan(&reb.CreatedAt), "append rebalance")
}

// RecentRebalances retrieves the newest rebalance records first
func (r *HistoryRepository) RecentRebalances(ctx context.Context, limit int) ([]*history.Rebalance, error) {
	query := `
		SELECT id, allocations, reasoning, executor_id, created_at
		FROM rebalances
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "recent rebalances")
	}
	defer rows.Close()

	var rebalances []*history.Rebalance
	for rows.Next() {
		reb := &history.Rebalance{}
		var allocations []byte
		if err := rows.Scan(
			&reb.ID, &allocations, &reb.Reasoning, &reb.ExecutorID, &reb.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan rebalance")
		}
		if err := json.Unmarshal(allocations, &reb.Allocations); err != nil {
			return nil, errors.Wrap(err, "unmarshal rebalance allocations")
		}
		rebalances = append(rebalances, reb)
	}

	return rebalances, rows.Err()
}
