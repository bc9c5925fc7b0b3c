package member

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Member is a pool participant keyed by normalized wallet identifier.
// Created on first deposit; removed when shares reach exactly zero.
// Jointly owned by the share calculator (mutation) and the sync
// coordinator (overwrite during reconciliation - ledger wins).
type Member struct {
	Wallet       string          `db:"wallet"` // normalized, see Normalize
	Shares       decimal.Decimal `db:"shares"`
	DepositedUSD decimal.Decimal `db:"deposited_usd"` // cumulative cost basis
	WithdrawnUSD decimal.Decimal `db:"withdrawn_usd"` // cumulative
	JoinedAt     time.Time       `db:"joined_at"`
	LastActionAt time.Time       `db:"last_action_at"`
}

// Normalize case-folds a wallet identifier so that mixed-case variants
// of the same address key the same cache row
func Normalize(wallet string) string {
	return strings.ToLower(strings.TrimSpace(wallet))
}

// IsMember reports whether the record represents active membership
func (m *Member) IsMember() bool {
	return m != nil && m.Shares.IsPositive()
}
