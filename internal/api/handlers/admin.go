package handlers

import (
	"net/http"
	"time"

	"poolvault/internal/domain/pool"
)

// HandleAdminSync triggers a full resync from the ledger and reports
// what was reconciled
func (h *Handler) HandleAdminSync(w http.ResponseWriter, r *http.Request) {
	result, err := h.sync.FullResync(r.Context())
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, envelope{
		"success": true,
		"onChainData": envelope{
			"totalShares": result.PoolStats.TotalShares,
			"totalNavUSD": result.PoolStats.TotalNAVUSD,
			"sharePrice":  result.PoolStats.SharePriceUSD,
			"memberCount": result.PoolStats.MemberCount,
		},
		"syncedMembers": result.Wallets,
		"membersPurged": result.MembersPurged,
		"durationMs":    result.Duration.Milliseconds(),
	})
}

// HandleAccrueFees advances fee accumulators to the current time
func (h *Handler) HandleAccrueFees(w http.ResponseWriter, r *http.Request) {
	p, err := h.fees.Accrue(r.Context(), time.Now().UTC())
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	if p == nil {
		// No pool record yet; nothing to accrue
		respondJSON(w, http.StatusOK, envelope{"success": true, "fees": nil})
		return
	}

	respondJSON(w, http.StatusOK, envelope{
		"success": true,
		"fees":    feePayload(p),
	})
}

type withdrawFeesRequest struct {
	PrincipalID string `json:"principalId"`
}

// HandleWithdrawFees moves accrued fees to the treasury balance.
// The fee manager capability is enforced by the service.
func (h *Handler) HandleWithdrawFees(w http.ResponseWriter, r *http.Request) {
	var req withdrawFeesRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, h.log, err)
		return
	}

	amount, err := h.fees.WithdrawFees(r.Context(), req.PrincipalID)
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, envelope{
		"success":   true,
		"amountUSD": amount,
	})
}

type setAllocationRequest struct {
	Allocations map[string]int64 `json:"allocations"`
	Reasoning   string           `json:"reasoning"`
	ExecutorID  string           `json:"executorId"`
}

// HandleSetAllocation applies a new target allocation vector.
// The rebalancer capability is enforced by the service.
func (h *Handler) HandleSetAllocation(w http.ResponseWriter, r *http.Request) {
	var req setAllocationRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, h.log, err)
		return
	}

	alloc := pool.Allocations(req.Allocations)
	if err := h.allocation.SetTargetAllocation(r.Context(), alloc, req.Reasoning, req.ExecutorID); err != nil {
		respondError(w, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, envelope{
		"success":     true,
		"allocations": alloc,
	})
}

func feePayload(p *pool.Pool) envelope {
	return envelope{
		"accruedManagementFeeUSD":  p.AccruedManagementFeeUSD,
		"accruedPerformanceFeeUSD": p.AccruedPerformanceFeeUSD,
		"highWaterMarkNavUSD":      p.HighWaterMarkNAVUSD,
		"treasuryBalanceUSD":       p.TreasuryBalanceUSD,
		"feesAccruedAt":            p.FeesAccruedAt,
	}
}
