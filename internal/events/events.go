package events

import (
	"time"

	"github.com/shopspring/decimal"

	"poolvault/internal/domain/pool"
)

// DepositEvent is emitted after a successful share issuance
type DepositEvent struct {
	Wallet        string          `json:"wallet"`
	AmountUSD     decimal.Decimal `json:"amountUSD"`
	SharesIssued  decimal.Decimal `json:"sharesIssued"`
	SharePriceUSD decimal.Decimal `json:"sharePriceUSD"`
	Tier          string          `json:"valuationSource"`
	OccurredAt    time.Time       `json:"occurredAt"`
}

// WithdrawalEvent is emitted after a successful share redemption
type WithdrawalEvent struct {
	Wallet        string          `json:"wallet"`
	AmountUSD     decimal.Decimal `json:"amountUSD"`
	SharesBurned  decimal.Decimal `json:"sharesBurned"`
	SharePriceUSD decimal.Decimal `json:"sharePriceUSD"`
	FullExit      bool            `json:"fullExit"`
	OccurredAt    time.Time       `json:"occurredAt"`
}

// RebalanceEvent is emitted after a target allocation change
type RebalanceEvent struct {
	Allocations pool.Allocations `json:"allocations"`
	Reasoning   string           `json:"reasoning"`
	ExecutorID  string           `json:"executorId"`
	OccurredAt  time.Time        `json:"occurredAt"`
}

// FeeEvent is emitted on fee accrual and fee withdrawal
type FeeEvent struct {
	Kind                 string          `json:"kind"` // accrual | withdrawal
	ManagementFeeUSD     decimal.Decimal `json:"managementFeeUSD"`
	PerformanceFeeUSD    decimal.Decimal `json:"performanceFeeUSD"`
	HighWaterMarkNAVUSD  decimal.Decimal `json:"highWaterMarkNavUSD"`
	TreasuryBalanceUSD   decimal.Decimal `json:"treasuryBalanceUSD"`
	OccurredAt           time.Time       `json:"occurredAt"`
}

// DriftEvent is emitted when reconciliation finds the cache diverging
// from the ledger beyond the comparison scale
type DriftEvent struct {
	Field       string          `json:"field"`
	CacheValue  decimal.Decimal `json:"cacheValue"`
	LedgerValue decimal.Decimal `json:"ledgerValue"`
	OccurredAt  time.Time       `json:"occurredAt"`
}

// ResyncEvent is emitted when a full resync completes
type ResyncEvent struct {
	MembersSynced int           `json:"membersSynced"`
	MembersPurged int           `json:"membersPurged"`
	Duration      time.Duration `json:"durationNs"`
	OccurredAt    time.Time     `json:"occurredAt"`
}
