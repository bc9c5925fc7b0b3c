package history

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"poolvault/internal/domain/pool"
)

// TransactionKind distinguishes deposits from withdrawals
type TransactionKind string

const (
	KindDeposit    TransactionKind = "deposit"
	KindWithdrawal TransactionKind = "withdrawal"
)

// Valid checks if the kind is known
func (k TransactionKind) Valid() bool {
	return k == KindDeposit || k == KindWithdrawal
}

// String returns string representation
func (k TransactionKind) String() string {
	return string(k)
}

// Transaction is an append-only record of a share issuance or redemption.
// Never mutated after creation; used for history queries and audit.
type Transaction struct {
	ID                uuid.UUID       `db:"id"`
	Wallet            string          `db:"wallet"`
	Kind              TransactionKind `db:"kind"`
	AmountUSD         decimal.Decimal `db:"amount_usd"`
	SharesDelta       decimal.Decimal `db:"shares_delta"`
	SharePriceUSD     decimal.Decimal `db:"share_price_usd"` // price at execution
	ExternalReference string          `db:"external_reference"`
	CreatedAt         time.Time       `db:"created_at"`
}

// Rebalance is an append-only audit record of a target allocation change.
// Exactly one record per successful allocation update.
type Rebalance struct {
	ID          uuid.UUID        `db:"id"`
	Allocations pool.Allocations `db:"-"` // persisted as JSONB
	Reasoning   string           `db:"reasoning"`
	ExecutorID  string           `db:"executor_id"`
	CreatedAt   time.Time        `db:"created_at"`
}
