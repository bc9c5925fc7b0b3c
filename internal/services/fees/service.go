package fees

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"poolvault/internal/domain/pool"
	"poolvault/internal/events"
	"poolvault/pkg/errors"
	"poolvault/pkg/logger"
)

const secondsPerYear = 365 * 24 * 60 * 60

// Config carries fee policy
type Config struct {
	ManagementFeeBps  int64
	PerformanceFeeBps int64
	FeeManagerID      string
}

// Service accrues management and performance fees against the
// cache-resident pool record. Fees never burn member shares; they are
// skimmed conceptually from performance and realized on WithdrawFees.
type Service struct {
	pools     pool.Repository
	publisher events.Publisher
	cfg       Config
	log       *logger.Logger
}

// NewService creates a new fee accrual service
func NewService(pools pool.Repository, publisher events.Publisher, cfg Config, log *logger.Logger) *Service {
	return &Service{
		pools:     pools,
		publisher: publisher,
		cfg:       cfg,
		log:       log.With("service", "fees"),
	}
}

// Accrue advances fee accumulators to now.
// Management fee is pro-rated over elapsed wall time since the last
// accrual; performance fee applies only above the high-water mark.
func (s *Service) Accrue(ctx context.Context, now time.Time) (*pool.Pool, error) {
	p, err := s.pools.Get(ctx)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			// Nothing to accrue before genesis
			return nil, nil
		}
		return nil, errors.Wrap(err, "load pool")
	}

	if p.FeesAccruedAt.IsZero() {
		// First accrual only anchors the clock
		p.FeesAccruedAt = now
		if err := s.pools.Save(ctx, p); err != nil {
			return nil, errors.Wrap(err, "anchor fee clock")
		}
		return p, nil
	}

	elapsed := now.Sub(p.FeesAccruedAt)
	if elapsed <= 0 {
		return p, nil
	}

	mgmtFee := s.managementFee(p.TotalNAVUSD, elapsed)
	p.AccruedManagementFeeUSD = p.AccruedManagementFeeUSD.Add(mgmtFee)

	perfFee := decimal.Zero
	if p.TotalNAVUSD.GreaterThan(p.HighWaterMarkNAVUSD) {
		gain := p.TotalNAVUSD.Sub(p.HighWaterMarkNAVUSD)
		perfFee = gain.Mul(decimal.NewFromInt(s.cfg.PerformanceFeeBps)).
			DivRound(decimal.NewFromInt(pool.TotalAllocationBps), pool.USDScale)
		p.AccruedPerformanceFeeUSD = p.AccruedPerformanceFeeUSD.Add(perfFee)
		p.HighWaterMarkNAVUSD = p.TotalNAVUSD
	}

	p.FeesAccruedAt = now
	if err := s.pools.Save(ctx, p); err != nil {
		return nil, errors.Wrap(err, "save accrued fees")
	}

	if mgmtFee.IsPositive() || perfFee.IsPositive() {
		s.publisher.FeesChanged(ctx, events.FeeEvent{
			Kind:                "accrual",
			ManagementFeeUSD:    p.AccruedManagementFeeUSD,
			PerformanceFeeUSD:   p.AccruedPerformanceFeeUSD,
			HighWaterMarkNAVUSD: p.HighWaterMarkNAVUSD,
			TreasuryBalanceUSD:  p.TreasuryBalanceUSD,
			OccurredAt:          now,
		})

		s.log.Infow("Fees accrued",
			"management_fee", humanize.CommafWithDigits(mgmtFee.InexactFloat64(), 4),
			"performance_fee", humanize.CommafWithDigits(perfFee.InexactFloat64(), 4),
			"high_water_mark", p.HighWaterMarkNAVUSD,
			"elapsed", elapsed,
		)
	}

	return p, nil
}

// WithdrawFees transfers both accumulators to the treasury balance.
// Capability gated: only the designated fee manager may invoke it.
func (s *Service) WithdrawFees(ctx context.Context, principalID string) (decimal.Decimal, error) {
	if principalID == "" || principalID != s.cfg.FeeManagerID {
		return decimal.Zero, errors.Wrap(errors.ErrUnauthorized, "fee withdrawal requires the fee manager capability")
	}

	p, err := s.pools.Get(ctx)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "load pool")
	}

	total := p.AccruedManagementFeeUSD.Add(p.AccruedPerformanceFeeUSD)
	if !total.IsPositive() {
		return decimal.Zero, nil
	}

	p.TreasuryBalanceUSD = p.TreasuryBalanceUSD.Add(total)
	p.AccruedManagementFeeUSD = decimal.Zero
	p.AccruedPerformanceFeeUSD = decimal.Zero

	if err := s.pools.Save(ctx, p); err != nil {
		return decimal.Zero, errors.Wrap(err, "save fee withdrawal")
	}

	now := time.Now().UTC()
	s.publisher.FeesChanged(ctx, events.FeeEvent{
		Kind:                "withdrawal",
		ManagementFeeUSD:    decimal.Zero,
		PerformanceFeeUSD:   decimal.Zero,
		HighWaterMarkNAVUSD: p.HighWaterMarkNAVUSD,
		TreasuryBalanceUSD:  p.TreasuryBalanceUSD,
		OccurredAt:          now,
	})

	s.log.Infow("Fees withdrawn to treasury",
		"amount_usd", humanize.CommafWithDigits(total.InexactFloat64(), 2),
		"treasury_balance", p.TreasuryBalanceUSD,
		"principal", principalID,
	)

	return total, nil
}

// managementFee pro-rates the annual bps rate over elapsed time
func (s *Service) managementFee(nav decimal.Decimal, elapsed time.Duration) decimal.Decimal {
	if !nav.IsPositive() || s.cfg.ManagementFeeBps <= 0 {
		return decimal.Zero
	}

	annual := nav.Mul(decimal.NewFromInt(s.cfg.ManagementFeeBps)).
		Div(decimal.NewFromInt(pool.TotalAllocationBps))
	fraction := decimal.NewFromFloat(elapsed.Seconds()).
		Div(decimal.NewFromInt(secondsPerYear))
	return annual.Mul(fraction).Round(pool.USDScale)
}
