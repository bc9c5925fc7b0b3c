package history

import (
	"context"
)

// Repository defines access to the append-only audit tables.
// Both tables are insert-only and therefore safe under concurrent
// writers without additional coordination.
type Repository interface {
	AppendTransaction(ctx context.Context, tx *Transaction) error
	RecentTransactions(ctx context.Context, limit int) ([]*Transaction, error)

	AppendRebalance(ctx context.Context, r *Rebalance) error
	RecentRebalances(ctx context.Context, limit int) ([]*Rebalance, error)
}
