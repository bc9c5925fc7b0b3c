package handlers

import (
	"net/http"

	"github.com/shopspring/decimal"
)

type depositRequest struct {
	WalletAddress     string          `json:"walletAddress"`
	Amount            decimal.Decimal `json:"amount"`
	ExternalReference string          `json:"externalReference"`
}

type withdrawRequest struct {
	WalletAddress     string          `json:"walletAddress"`
	Shares            decimal.Decimal `json:"shares"`
	ExternalReference string          `json:"externalReference"`
}

// HandleDeposit issues shares for a USD deposit
func (h *Handler) HandleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, h.log, err)
		return
	}

	result, err := h.shares.Deposit(r.Context(), req.WalletAddress, req.Amount, req.ExternalReference)
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, envelope{
		"success": true,
		"deposit": envelope{
			"amountUSD":           result.AmountUSD,
			"sharesReceived":      result.SharesIssued,
			"sharePrice":          result.SharePriceUSD,
			"newTotalShares":      result.NewTotalShares,
			"ownershipPercentage": result.OwnershipPercentage,
		},
	})
}

// HandleWithdraw redeems shares for their proportional USD value
func (h *Handler) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, h.log, err)
		return
	}

	result, err := h.shares.Withdraw(r.Context(), req.WalletAddress, req.Shares, req.ExternalReference)
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, envelope{
		"success": true,
		"withdrawal": envelope{
			"sharesBurned":    result.SharesBurned,
			"amountUSD":       result.AmountUSD,
			"sharePrice":      result.SharePriceUSD,
			"remainingShares": result.RemainingShares,
		},
	})
}
