package handlers

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"poolvault/internal/domain/pool"
)

// poolPayload is the pool block of summary and position responses.
// The resolution tier travels in the top-level "source" field instead.
type poolPayload struct {
	TotalValueUSD decimal.Decimal           `json:"totalValueUSD"`
	TotalShares   decimal.Decimal           `json:"totalShares"`
	SharePriceUSD decimal.Decimal           `json:"sharePrice"`
	TotalMembers  int                       `json:"totalMembers"`
	Allocations   map[string]pool.AssetView `json:"allocations"`
	ObservedAt    time.Time                 `json:"observedAt"`
}

func newPoolPayload(v *pool.View) poolPayload {
	return poolPayload{
		TotalValueUSD: v.TotalValueUSD,
		TotalShares:   v.TotalShares,
		SharePriceUSD: v.SharePriceUSD,
		TotalMembers:  v.MemberCount,
		Allocations:   v.Allocations,
		ObservedAt:    v.ObservedAt,
	}
}

// HandlePoolSummary serves the current pool valuation at the best
// available tier
func (h *Handler) HandlePoolSummary(w http.ResponseWriter, r *http.Request) {
	view, err := h.valuation.GetPoolSummary(r.Context())
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, envelope{
		"success": true,
		"pool":    newPoolPayload(view),
		"source":  view.Tier,
	})
}

// HandleRecentValuations serves recent tier resolutions, newest first
func (h *Handler) HandleRecentValuations(w http.ResponseWriter, r *http.Request) {
	views, err := h.valuation.RecentValuations(r.Context())
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, envelope{
		"success":    true,
		"count":      len(views),
		"valuations": views,
	})
}
