package handlers

import (
	"net/http"
)

// HandleHistory serves the recent transaction audit trail, newest first
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	limit := limitParam(r, 50, 200)

	txs, err := h.history.RecentTransactions(r.Context(), limit)
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	items := make([]envelope, 0, len(txs))
	for _, tx := range txs {
		items = append(items, envelope{
			"id":                tx.ID,
			"walletAddress":     tx.Wallet,
			"type":              tx.Kind,
			"amountUSD":         tx.AmountUSD,
			"sharesDelta":       tx.SharesDelta,
			"sharePrice":        tx.SharePriceUSD,
			"externalReference": tx.ExternalReference,
			"timestamp":         tx.CreatedAt,
		})
	}

	respondJSON(w, http.StatusOK, envelope{
		"success":      true,
		"count":        len(items),
		"transactions": items,
	})
}

// HandleLeaderboard serves members ordered by shares descending.
// Ranking comes from the ledger enumeration; the cache answers only
// when the ledger is down, which the "source" field makes visible.
func (h *Handler) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := limitParam(r, 25, 100)

	members, tier, err := h.sync.Leaderboard(r.Context(), limit)
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	items := make([]envelope, 0, len(members))
	for i, m := range members {
		items = append(items, envelope{
			"rank":           i + 1,
			"walletAddress":  m.Wallet,
			"shares":         m.Shares,
			"totalDeposited": m.DepositedUSD,
			"joinedAt":       m.JoinedAt,
		})
	}

	respondJSON(w, http.StatusOK, envelope{
		"success":     true,
		"count":       len(items),
		"leaderboard": items,
		"source":      tier,
	})
}

// HandleRebalances serves the allocation change audit trail, newest first
func (h *Handler) HandleRebalances(w http.ResponseWriter, r *http.Request) {
	limit := limitParam(r, 25, 100)

	records, err := h.allocation.RecentRebalances(r.Context(), limit)
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	items := make([]envelope, 0, len(records))
	for _, rec := range records {
		items = append(items, envelope{
			"id":          rec.ID,
			"allocations": rec.Allocations,
			"reasoning":   rec.Reasoning,
			"executorId":  rec.ExecutorID,
			"timestamp":   rec.CreatedAt,
		})
	}

	respondJSON(w, http.StatusOK, envelope{
		"success":    true,
		"count":      len(items),
		"rebalances": items,
	})
}
