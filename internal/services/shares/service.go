package shares

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"poolvault/internal/domain/history"
	"poolvault/internal/domain/member"
	"poolvault/internal/domain/pool"
	"poolvault/internal/events"
	"poolvault/internal/metrics"
	"poolvault/pkg/errors"
	"poolvault/pkg/logger"
)

// Valuer resolves the current pool valuation
type Valuer interface {
	GetPoolSummary(ctx context.Context) (*pool.View, error)
}

// Mirror re-queries the ledger after a transaction and overwrites the
// cache with authoritative values
type Mirror interface {
	MirrorMember(ctx context.Context, wallet string) error
}

// Atomic runs a group of repository writes in one transaction
type Atomic interface {
	Run(ctx context.Context, fn func(pools pool.Repository, members member.Repository, hist history.Repository) error) error
}

// Config carries share accounting policy
type Config struct {
	MinDepositUSD decimal.Decimal
}

// DepositResult is returned from a successful deposit
type DepositResult struct {
	AmountUSD           decimal.Decimal
	SharesIssued        decimal.Decimal
	SharePriceUSD       decimal.Decimal
	NewTotalShares      decimal.Decimal
	OwnershipPercentage decimal.Decimal
}

// WithdrawResult is returned from a successful withdrawal
type WithdrawResult struct {
	SharesBurned    decimal.Decimal
	AmountUSD       decimal.Decimal
	SharePriceUSD   decimal.Decimal
	RemainingShares decimal.Decimal
}

// Service converts deposit and withdraw requests into share deltas
// against the currently resolved share price. There is no in-process
// lock across requests: correctness relies on the ledger's atomic
// execution and the mirror's idempotent overwrite semantics.
type Service struct {
	valuer    Valuer
	mirror    Mirror
	pools     pool.Repository
	members   member.Repository
	atomic    Atomic
	publisher events.Publisher
	cfg       Config
	log       *logger.Logger
}

// NewService creates a new share calculator service
func NewService(
	valuer Valuer,
	mirror Mirror,
	pools pool.Repository,
	members member.Repository,
	atomic Atomic,
	publisher events.Publisher,
	cfg Config,
	log *logger.Logger,
) *Service {
	return &Service{
		valuer:    valuer,
		mirror:    mirror,
		pools:     pools,
		members:   members,
		atomic:    atomic,
		publisher: publisher,
		cfg:       cfg,
		log:       log.With("service", "shares"),
	}
}

// Deposit issues shares for a stable-value deposit
func (s *Service) Deposit(ctx context.Context, wallet string, amountUSD decimal.Decimal, externalRef string) (*DepositResult, error) {
	wallet = member.Normalize(wallet)
	if wallet == "" {
		return nil, errors.NewValidationError("walletAddress", "wallet address is required", wallet)
	}
	if !amountUSD.IsPositive() {
		return nil, errors.NewValidationError("amount", "amount must be positive", amountUSD)
	}
	if amountUSD.LessThan(s.cfg.MinDepositUSD) {
		return nil, errors.Wrapf(errors.ErrBelowMinimumDeposit, "minimum deposit is $%s", s.cfg.MinDepositUSD)
	}

	view, err := s.valuer.GetPoolSummary(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "resolve share price")
	}

	sharePrice := view.SharePriceUSD
	if view.TotalShares.IsZero() {
		// Bootstrap: first deposit prices shares at exactly 1.0
		sharePrice = decimal.NewFromInt(1)
	}

	sharesMinted := amountUSD.DivRound(sharePrice, pool.SharesScale)
	now := time.Now().UTC()

	m, err := s.members.Get(ctx, wallet)
	isNew := false
	if err != nil {
		if !errors.Is(err, errors.ErrNotFound) {
			return nil, errors.Wrap(err, "load member")
		}
		isNew = true
		m = &member.Member{Wallet: wallet, JoinedAt: now}
	}

	m.Shares = m.Shares.Add(sharesMinted)
	m.DepositedUSD = m.DepositedUSD.Add(amountUSD)
	m.LastActionAt = now

	p, err := s.loadOrInitPool(ctx)
	if err != nil {
		return nil, err
	}
	p.TotalShares = p.TotalShares.Add(sharesMinted)
	p.TotalNAVUSD = p.TotalNAVUSD.Add(amountUSD)
	if isNew {
		p.MemberCount++
	}

	tx := &history.Transaction{
		ID:                uuid.New(),
		Wallet:            wallet,
		Kind:              history.KindDeposit,
		AmountUSD:         amountUSD,
		SharesDelta:       sharesMinted,
		SharePriceUSD:     sharePrice,
		ExternalReference: externalRef,
	}

	// Member balance, pool totals and the audit row commit together
	err = s.atomic.Run(ctx, func(pools pool.Repository, members member.Repository, hist history.Repository) error {
		if err := members.Upsert(ctx, m); err != nil {
			return errors.Wrap(err, "save member")
		}
		if err := pools.Save(ctx, p); err != nil {
			return errors.Wrap(err, "save pool")
		}
		if err := hist.AppendTransaction(ctx, tx); err != nil {
			return errors.Wrap(err, "append deposit record")
		}
		return nil
	})
	if err != nil {
		metrics.RecordTransaction(history.KindDeposit.String(), err)
		return nil, err
	}

	metrics.RecordTransaction(history.KindDeposit.String(), nil)
	s.publisher.DepositExecuted(ctx, events.DepositEvent{
		Wallet:        wallet,
		AmountUSD:     amountUSD,
		SharesIssued:  sharesMinted,
		SharePriceUSD: sharePrice,
		Tier:          view.Tier.String(),
		OccurredAt:    now,
	})

	s.mirrorAsync(wallet)

	ownership := decimal.Zero
	if p.TotalShares.IsPositive() {
		ownership = m.Shares.Mul(decimal.NewFromInt(100)).DivRound(p.TotalShares, 4)
	}

	s.log.Infow("Deposit executed",
		"wallet", wallet,
		"amount_usd", amountUSD,
		"shares_minted", sharesMinted,
		"share_price", sharePrice,
	)

	return &DepositResult{
		AmountUSD:           amountUSD,
		SharesIssued:        sharesMinted,
		SharePriceUSD:       sharePrice,
		NewTotalShares:      p.TotalShares,
		OwnershipPercentage: ownership,
	}, nil
}

// Withdraw redeems shares for their proportional USD value.
// No fee is deducted here: fees accrue continuously against pool NAV
// and are collected separately.
func (s *Service) Withdraw(ctx context.Context, wallet string, sharesToBurn decimal.Decimal, externalRef string) (*WithdrawResult, error) {
	wallet = member.Normalize(wallet)
	if wallet == "" {
		return nil, errors.NewValidationError("walletAddress", "wallet address is required", wallet)
	}
	if !sharesToBurn.IsPositive() {
		return nil, errors.Wrap(errors.ErrInsufficientShares, "shares must be positive")
	}

	m, err := s.members.Get(ctx, wallet)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, errors.Wrap(errors.ErrNotMember, wallet)
		}
		return nil, errors.Wrap(err, "load member")
	}
	if sharesToBurn.GreaterThan(m.Shares) {
		return nil, errors.Wrapf(errors.ErrInsufficientShares, "requested %s, holding %s", sharesToBurn, m.Shares)
	}

	view, err := s.valuer.GetPoolSummary(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "resolve share price")
	}
	sharePrice := view.SharePriceUSD
	amountUSD := sharesToBurn.Mul(sharePrice).Round(pool.USDScale)
	now := time.Now().UTC()

	m.Shares = m.Shares.Sub(sharesToBurn)
	m.WithdrawnUSD = m.WithdrawnUSD.Add(amountUSD)
	m.LastActionAt = now

	fullExit := m.Shares.IsZero()

	p, err := s.loadOrInitPool(ctx)
	if err != nil {
		return nil, err
	}
	p.TotalShares = p.TotalShares.Sub(sharesToBurn)
	if p.TotalShares.IsNegative() {
		p.TotalShares = decimal.Zero
	}
	p.TotalNAVUSD = p.TotalNAVUSD.Sub(amountUSD)
	if p.TotalNAVUSD.IsNegative() {
		p.TotalNAVUSD = decimal.Zero
	}
	if fullExit && p.MemberCount > 0 {
		p.MemberCount--
	}

	tx := &history.Transaction{
		ID:                uuid.New(),
		Wallet:            wallet,
		Kind:              history.KindWithdrawal,
		AmountUSD:         amountUSD,
		SharesDelta:       sharesToBurn.Neg(),
		SharePriceUSD:     sharePrice,
		ExternalReference: externalRef,
	}

	// Member balance, pool totals and the audit row commit together
	err = s.atomic.Run(ctx, func(pools pool.Repository, members member.Repository, hist history.Repository) error {
		if fullExit {
			if err := members.Delete(ctx, wallet); err != nil && !errors.Is(err, errors.ErrNotFound) {
				return errors.Wrap(err, "remove member")
			}
		} else {
			if err := members.Upsert(ctx, m); err != nil {
				return errors.Wrap(err, "save member")
			}
		}
		if err := pools.Save(ctx, p); err != nil {
			return errors.Wrap(err, "save pool")
		}
		if err := hist.AppendTransaction(ctx, tx); err != nil {
			return errors.Wrap(err, "append withdrawal record")
		}
		return nil
	})
	if err != nil {
		metrics.RecordTransaction(history.KindWithdrawal.String(), err)
		return nil, err
	}

	metrics.RecordTransaction(history.KindWithdrawal.String(), nil)
	s.publisher.WithdrawalExecuted(ctx, events.WithdrawalEvent{
		Wallet:        wallet,
		AmountUSD:     amountUSD,
		SharesBurned:  sharesToBurn,
		SharePriceUSD: sharePrice,
		FullExit:      fullExit,
		OccurredAt:    now,
	})

	s.mirrorAsync(wallet)

	s.log.Infow("Withdrawal executed",
		"wallet", wallet,
		"shares_burned", sharesToBurn,
		"amount_usd", amountUSD,
		"full_exit", fullExit,
	)

	return &WithdrawResult{
		SharesBurned:    sharesToBurn,
		AmountUSD:       amountUSD,
		SharePriceUSD:   sharePrice,
		RemainingShares: m.Shares,
	}, nil
}

// loadOrInitPool returns the pool record, creating the genesis record
// on the very first deposit
func (s *Service) loadOrInitPool(ctx context.Context) (*pool.Pool, error) {
	p, err := s.pools.Get(ctx)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, errors.ErrNotFound) {
		return nil, errors.Wrap(err, "load pool")
	}
	return &pool.Pool{Allocations: pool.Allocations{}}, nil
}

// mirrorAsync schedules a best-effort post-transaction ledger mirror.
// Failure leaves the locally computed values in place until the next
// successful sync.
func (s *Service) mirrorAsync(wallet string) {
	if s.mirror == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.mirror.MirrorMember(ctx, wallet); err != nil {
			s.log.Warnw("Post-transaction mirror failed", "wallet", wallet, "error", err)
		}
	}()
}
