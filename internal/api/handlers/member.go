package handlers

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"poolvault/internal/domain/member"
	"poolvault/internal/domain/pool"
	"poolvault/pkg/errors"
)

type userPayload struct {
	WalletAddress  string          `json:"walletAddress"`
	Shares         decimal.Decimal `json:"shares"`
	ValueUSD       decimal.Decimal `json:"valueUSD"`
	Percentage     decimal.Decimal `json:"percentage"`
	IsMember       bool            `json:"isMember"`
	JoinedAt       *time.Time      `json:"joinedAt,omitempty"`
	TotalDeposited decimal.Decimal `json:"totalDeposited"`
	TotalWithdrawn decimal.Decimal `json:"totalWithdrawn"`
}

// HandleUserPosition serves one wallet's position alongside the pool
// view. Unknown wallets are a successful zero position, not an error.
func (h *Handler) HandleUserPosition(w http.ResponseWriter, r *http.Request) {
	wallet := member.Normalize(r.PathValue("wallet"))
	if wallet == "" {
		respondError(w, h.log, errors.NewValidationError("wallet", "wallet address is required", wallet))
		return
	}

	view, err := h.valuation.GetPoolSummary(r.Context())
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	m, tier, err := h.sync.ResolveMember(r.Context(), wallet)
	if err != nil {
		if errors.Is(err, errors.ErrNotMember) {
			respondJSON(w, http.StatusOK, envelope{
				"success": true,
				"user": userPayload{
					WalletAddress:  wallet,
					Shares:         decimal.Zero,
					ValueUSD:       decimal.Zero,
					Percentage:     decimal.Zero,
					TotalDeposited: decimal.Zero,
					TotalWithdrawn: decimal.Zero,
				},
				"pool":   newPoolPayload(view),
				"source": view.Tier,
			})
			return
		}
		respondError(w, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, envelope{
		"success": true,
		"user":    newUserPayload(m, view, tier),
		"pool":    newPoolPayload(view),
		"source":  tier,
	})
}

func newUserPayload(m *member.Member, view *pool.View, tier pool.Tier) userPayload {
	var valueUSD decimal.Decimal
	if tier == pool.TierCalculated {
		// Scan-recovered identity: report cumulative cost basis instead
		// of a live mark
		valueUSD = m.DepositedUSD.Sub(m.WithdrawnUSD)
		if valueUSD.IsNegative() {
			valueUSD = decimal.Zero
		}
	} else {
		valueUSD = m.Shares.Mul(view.SharePriceUSD).Round(pool.USDScale)
	}

	var joinedAt *time.Time
	if !m.JoinedAt.IsZero() {
		joinedAt = &m.JoinedAt
	}

	return userPayload{
		WalletAddress:  m.Wallet,
		Shares:         m.Shares,
		ValueUSD:       valueUSD,
		Percentage:     view.OwnershipPercentage(m.Shares),
		IsMember:       m.IsMember(),
		JoinedAt:       joinedAt,
		TotalDeposited: m.DepositedUSD,
		TotalWithdrawn: m.WithdrawnUSD,
	}
}
