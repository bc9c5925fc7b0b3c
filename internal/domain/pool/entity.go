package pool

import (
	"time"

	"github.com/shopspring/decimal"
)

// TotalAllocationBps is the required sum of all allocation weights
const TotalAllocationBps int64 = 10000

// SharesScale is the fixed-point precision used for share quantities
const SharesScale int32 = 18

// USDScale is the precision used for USD amounts
const USDScale int32 = 6

// Allocations maps asset symbols to target weights in basis points.
// The weights must sum to exactly 10000.
type Allocations map[string]int64

// Sum returns the total weight across all assets
func (a Allocations) Sum() int64 {
	var total int64
	for _, bps := range a {
		total += bps
	}
	return total
}

// Valid reports whether the weights sum to exactly 10000 bps
func (a Allocations) Valid() bool {
	return a.Sum() == TotalAllocationBps
}

// Pool is the singleton aggregate for the pooled investment vehicle.
// It is created once at genesis and never destroyed; every mutating
// operation upserts the same row.
type Pool struct {
	TotalShares decimal.Decimal `db:"total_shares"`
	TotalNAVUSD decimal.Decimal `db:"total_nav_usd"`
	MemberCount int             `db:"member_count"`

	Allocations     Allocations `db:"-"` // persisted as JSONB
	LastRebalanceAt time.Time   `db:"last_rebalance_at"`

	// Fee accounting
	AccruedManagementFeeUSD  decimal.Decimal `db:"accrued_management_fee_usd"`
	AccruedPerformanceFeeUSD decimal.Decimal `db:"accrued_performance_fee_usd"`
	HighWaterMarkNAVUSD      decimal.Decimal `db:"high_water_mark_nav_usd"`
	TreasuryBalanceUSD       decimal.Decimal `db:"treasury_balance_usd"`
	FeesAccruedAt            time.Time       `db:"fees_accrued_at"`

	UpdatedAt time.Time `db:"updated_at"`
}

// SharePrice returns NAV divided by total shares, or 1.0 for an empty pool
func (p *Pool) SharePrice() decimal.Decimal {
	if p.TotalShares.IsZero() {
		return decimal.NewFromInt(1)
	}
	return p.TotalNAVUSD.DivRound(p.TotalShares, SharesScale)
}

// Tier identifies which valuation source answered a request.
// Tiers are attempted in strict priority order; the first success wins.
type Tier string

const (
	// TierMarketAdjusted blends ledger share structure with holdings
	// repriced at live market quotes
	TierMarketAdjusted Tier = "market-adjusted"

	// TierStructural uses the ledger's own reported NAV and share price
	TierStructural Tier = "onchain"

	// TierCacheOnly serves the last pool record mirrored to the cache
	TierCacheOnly Tier = "db"

	// TierCalculated derives a member's value from cumulative cost basis;
	// only used on the identity-scan recovery path
	TierCalculated Tier = "calculated"

	// TierUnavailable means every source was exhausted; callers must treat
	// this as a hard failure, never as a zero valuation
	TierUnavailable Tier = "unavailable"
)

// String returns the wire representation used in API responses
func (t Tier) String() string {
	return string(t)
}

// Authoritative reports whether the tier was resolved directly from the ledger
func (t Tier) Authoritative() bool {
	return t == TierMarketAdjusted || t == TierStructural
}

// AssetView is the per-asset slice of a pool valuation
type AssetView struct {
	WeightBps  int64           `json:"weightBps"`
	Percentage decimal.Decimal `json:"percentage"`
	ValueUSD   decimal.Decimal `json:"valueUSD"`
	Amount     decimal.Decimal `json:"amount"`
	PriceUSD   decimal.Decimal `json:"price"`
}

// View is a resolved pool valuation as served to callers and cached
// in the snapshot store
type View struct {
	TotalValueUSD decimal.Decimal      `json:"totalValueUSD"`
	TotalShares   decimal.Decimal      `json:"totalShares"`
	SharePriceUSD decimal.Decimal      `json:"sharePrice"`
	MemberCount   int                  `json:"totalMembers"`
	Allocations   map[string]AssetView `json:"allocations"`
	Tier          Tier                 `json:"source"`
	ObservedAt    time.Time            `json:"observedAt"`
}

// OwnershipPercentage returns the pool share of the given balance
func (v *View) OwnershipPercentage(shares decimal.Decimal) decimal.Decimal {
	if v.TotalShares.IsZero() {
		return decimal.Zero
	}
	return shares.Mul(decimal.NewFromInt(100)).DivRound(v.TotalShares, 4)
}
