package handlers

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"poolvault/internal/domain/history"
	"poolvault/internal/domain/member"
	"poolvault/internal/domain/pool"
	"poolvault/internal/services/shares"
	syncservice "poolvault/internal/services/sync"
	"poolvault/pkg/logger"
)

// adminSecretHeader carries the shared secret for the admin namespace
const adminSecretHeader = "X-Admin-Secret"

// ValuationService resolves pool views
type ValuationService interface {
	GetPoolSummary(ctx context.Context) (*pool.View, error)
	RecentValuations(ctx context.Context) ([]*pool.View, error)
}

// ShareService executes deposits and withdrawals
type ShareService interface {
	Deposit(ctx context.Context, wallet string, amountUSD decimal.Decimal, externalRef string) (*shares.DepositResult, error)
	Withdraw(ctx context.Context, wallet string, sharesToBurn decimal.Decimal, externalRef string) (*shares.WithdrawResult, error)
}

// SyncService resolves members, ranks holders and runs full resyncs
type SyncService interface {
	ResolveMember(ctx context.Context, wallet string) (*member.Member, pool.Tier, error)
	Leaderboard(ctx context.Context, limit int) ([]*member.Member, pool.Tier, error)
	FullResync(ctx context.Context) (*syncservice.ResyncResult, error)
}

// FeeService accrues and collects pool fees
type FeeService interface {
	Accrue(ctx context.Context, now time.Time) (*pool.Pool, error)
	WithdrawFees(ctx context.Context, principalID string) (decimal.Decimal, error)
}

// AllocationService applies target allocation changes
type AllocationService interface {
	SetTargetAllocation(ctx context.Context, alloc pool.Allocations, reasoning, executorID string) error
	RecentRebalances(ctx context.Context, limit int) ([]*history.Rebalance, error)
}

// Handler owns the JSON API surface
type Handler struct {
	valuation   ValuationService
	shares      ShareService
	sync        SyncService
	fees        FeeService
	allocation  AllocationService
	history     history.Repository
	adminSecret string
	log         *logger.Logger
}

// NewHandler creates the API handler
func NewHandler(
	valuation ValuationService,
	shareSvc ShareService,
	syncSvc SyncService,
	feeSvc FeeService,
	allocationSvc AllocationService,
	hist history.Repository,
	adminSecret string,
	log *logger.Logger,
) *Handler {
	return &Handler{
		valuation:   valuation,
		shares:      shareSvc,
		sync:        syncSvc,
		fees:        feeSvc,
		allocation:  allocationSvc,
		history:     hist,
		adminSecret: adminSecret,
		log:         log.With("component", "api"),
	}
}

// Register wires all routes onto the mux
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/pool", h.HandlePoolSummary)
	mux.HandleFunc("GET /api/v1/pool/valuations/recent", h.HandleRecentValuations)
	mux.HandleFunc("GET /api/v1/user/{wallet}", h.HandleUserPosition)
	mux.HandleFunc("POST /api/v1/deposit", h.HandleDeposit)
	mux.HandleFunc("POST /api/v1/withdraw", h.HandleWithdraw)
	mux.HandleFunc("GET /api/v1/history", h.HandleHistory)
	mux.HandleFunc("GET /api/v1/leaderboard", h.HandleLeaderboard)
	mux.HandleFunc("GET /api/v1/rebalances", h.HandleRebalances)

	mux.HandleFunc("POST /api/v1/admin/sync", h.requireAdmin(h.HandleAdminSync))
	mux.HandleFunc("POST /api/v1/admin/fees/accrue", h.requireAdmin(h.HandleAccrueFees))
	mux.HandleFunc("POST /api/v1/admin/fees/withdraw", h.requireAdmin(h.HandleWithdrawFees))
	mux.HandleFunc("POST /api/v1/admin/allocation", h.requireAdmin(h.HandleSetAllocation))
}

// requireAdmin gates the admin namespace behind the shared secret header
func (h *Handler) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		secret := r.Header.Get(adminSecretHeader)
		if h.adminSecret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(h.adminSecret)) != 1 {
			respondJSON(w, http.StatusUnauthorized, envelope{"success": false, "error": "unauthorized"})
			return
		}
		next(w, r)
	}
}

// limitParam parses a ?limit= query parameter with bounds
func limitParam(r *http.Request, def, max int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
