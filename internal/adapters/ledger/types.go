package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssetAllocation is one slice of the ledger-reported allocation vector
type AssetAllocation struct {
	Symbol    string          `json:"symbol"`
	WeightBps int64           `json:"weightBps"`
	Amount    decimal.Decimal `json:"amount"`
	ValueUSD  decimal.Decimal `json:"valueUSD"`
}

// PoolStats is the ledger's structural view of the pool
type PoolStats struct {
	TotalShares   decimal.Decimal   `json:"totalShares"`
	TotalNAVUSD   decimal.Decimal   `json:"totalNavUSD"`
	SharePriceUSD decimal.Decimal   `json:"sharePriceUSD"`
	MemberCount   int               `json:"memberCount"`
	Assets        []AssetAllocation `json:"assets"`
	ObservedAt    time.Time         `json:"-"`
}

// MemberPosition is the ledger's authoritative position for one wallet
type MemberPosition struct {
	Wallet       string          `json:"wallet"`
	Shares       decimal.Decimal `json:"shares"`
	DepositedUSD decimal.Decimal `json:"depositedUSD"`
	WithdrawnUSD decimal.Decimal `json:"withdrawnUSD"`
	JoinedAt     time.Time       `json:"joinedAt"`
}

// MemberPage is one page of the ledger member enumeration
type MemberPage struct {
	Members    []MemberPosition `json:"members"`
	NextCursor string           `json:"nextCursor"`
}
