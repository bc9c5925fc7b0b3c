package valuation

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"poolvault/internal/adapters/ledger"
	"poolvault/internal/adapters/prices"
	"poolvault/internal/domain/pool"
	"poolvault/internal/metrics"
	"poolvault/pkg/errors"
	"poolvault/pkg/logger"
)

// Config carries valuation policy
type Config struct {
	SnapshotTTL      time.Duration
	RecentValuations int
}

// Service resolves the current pool valuation through an ordered chain
// of tier providers: market-adjusted overlay, ledger structural data,
// then the persistent cache. The first provider to answer wins and its
// tier is tagged on the returned view.
type Service struct {
	ledger       ledger.Ledger
	prices       prices.Source
	pools        pool.Repository
	snapshots    pool.SnapshotStore
	observations pool.ObservationStore
	cfg          Config
	recent       *ringBuffer
	log          *logger.Logger
}

// NewService creates a new valuation service.
// observations may be nil when no analytics sink is configured.
func NewService(
	lg ledger.Ledger,
	priceSource prices.Source,
	pools pool.Repository,
	snapshots pool.SnapshotStore,
	observations pool.ObservationStore,
	cfg Config,
	log *logger.Logger,
) *Service {
	return &Service{
		ledger:       lg,
		prices:       priceSource,
		pools:        pools,
		snapshots:    snapshots,
		observations: observations,
		cfg:          cfg,
		recent:       newRingBuffer(cfg.RecentValuations),
		log:          log.With("service", "valuation"),
	}
}

// provider is one step of the fallback chain
type provider struct {
	tier    pool.Tier
	resolve func(ctx context.Context) (*pool.View, error)
}

// GetPoolSummary resolves the current pool view at the best available tier.
// A snapshot within TTL short-circuits the chain so read bursts do not
// translate into ledger RPC bursts.
func (s *Service) GetPoolSummary(ctx context.Context) (*pool.View, error) {
	if view, err := s.snapshots.GetView(ctx); err == nil {
		return view, nil
	}

	start := time.Now()

	// Structural data is fetched once and shared by the first two tiers
	stats, statsErr := s.ledger.GetPoolStats(ctx)

	chain := []provider{
		{
			tier: pool.TierMarketAdjusted,
			resolve: func(ctx context.Context) (*pool.View, error) {
				if statsErr != nil {
					return nil, statsErr
				}
				return s.resolveMarketAdjusted(ctx, stats)
			},
		},
		{
			tier: pool.TierStructural,
			resolve: func(_ context.Context) (*pool.View, error) {
				if statsErr != nil {
					return nil, statsErr
				}
				return s.resolveStructural(stats), nil
			},
		},
		{
			tier: pool.TierCacheOnly,
			resolve: func(ctx context.Context) (*pool.View, error) {
				return s.resolveFromCache(ctx)
			},
		},
	}

	for _, p := range chain {
		view, err := p.resolve(ctx)
		if err != nil {
			s.log.Debugw("Valuation tier failed", "tier", p.tier, "error", err)
			continue
		}

		view.Tier = p.tier
		elapsed := time.Since(start)
		metrics.RecordValuation(p.tier.String(), elapsed)
		s.recent.Add(view)
		s.writeThrough(view, stats, elapsed)
		return view, nil
	}

	metrics.RecordValuation(pool.TierUnavailable.String(), time.Since(start))
	return nil, errors.Wrap(errors.ErrValuationUnavailable, "all valuation tiers exhausted")
}

// RecentValuations returns recent tier resolutions, newest first.
// The in-memory ring answers when warm; a freshly started process
// falls back to the last day of the persisted observation stream.
func (s *Service) RecentValuations(ctx context.Context) ([]*pool.View, error) {
	if views := s.recent.Recent(); len(views) > 0 {
		return views, nil
	}
	if s.observations == nil {
		return nil, nil
	}

	since := time.Now().UTC().Add(-24 * time.Hour)
	views, err := s.observations.RecentObservations(ctx, since, s.cfg.RecentValuations)
	if err != nil {
		return nil, errors.Wrap(err, "load recent observations")
	}
	return views, nil
}

// resolveMarketAdjusted blends ledger share structure with virtual
// holdings repriced at live quotes
func (s *Service) resolveMarketAdjusted(ctx context.Context, stats *ledger.PoolStats) (*pool.View, error) {
	if stats.TotalShares.IsZero() {
		// Bootstrap: structural data alone is sufficient, price is 1.0
		return nil, errors.Wrap(errors.ErrPriceUnavailable, "empty pool has no holdings to reprice")
	}

	holdings, err := s.pools.GetHoldings(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load holdings")
	}
	if len(holdings) == 0 {
		return nil, errors.Wrap(errors.ErrPriceUnavailable, "no virtual holdings mirrored")
	}

	quotes := make(map[string]decimal.Decimal, len(holdings))
	marketNAV := decimal.Zero
	for symbol, amount := range holdings {
		price, err := s.prices.Price(ctx, symbol)
		if err != nil {
			return nil, errors.Wrapf(err, "quote %s", symbol)
		}
		quotes[symbol] = price
		marketNAV = marketNAV.Add(amount.Mul(price))
	}

	sharePrice := marketNAV.DivRound(stats.TotalShares, pool.SharesScale)

	allocations := make(map[string]pool.AssetView, len(holdings))
	weights := weightsBySymbol(stats)
	for symbol, amount := range holdings {
		value := amount.Mul(quotes[symbol])
		percentage := decimal.Zero
		if marketNAV.IsPositive() {
			percentage = value.Mul(decimal.NewFromInt(100)).DivRound(marketNAV, 4)
		}
		allocations[symbol] = pool.AssetView{
			WeightBps:  weights[symbol],
			Percentage: percentage,
			ValueUSD:   value.Round(pool.USDScale),
			Amount:     amount,
			PriceUSD:   quotes[symbol],
		}
	}

	return &pool.View{
		TotalValueUSD: marketNAV.Round(pool.USDScale),
		TotalShares:   stats.TotalShares,
		SharePriceUSD: sharePrice,
		MemberCount:   stats.MemberCount,
		Allocations:   allocations,
		ObservedAt:    stats.ObservedAt,
	}, nil
}

// resolveStructural uses the ledger's own reported NAV and share price
func (s *Service) resolveStructural(stats *ledger.PoolStats) *pool.View {
	sharePrice := stats.SharePriceUSD
	if stats.TotalShares.IsZero() {
		sharePrice = decimal.NewFromInt(1)
	}

	allocations := make(map[string]pool.AssetView, len(stats.Assets))
	for _, asset := range stats.Assets {
		percentage := decimal.Zero
		if stats.TotalNAVUSD.IsPositive() {
			percentage = asset.ValueUSD.Mul(decimal.NewFromInt(100)).DivRound(stats.TotalNAVUSD, 4)
		}
		allocations[asset.Symbol] = pool.AssetView{
			WeightBps:  asset.WeightBps,
			Percentage: percentage,
			ValueUSD:   asset.ValueUSD,
			Amount:     asset.Amount,
		}
	}

	return &pool.View{
		TotalValueUSD: stats.TotalNAVUSD,
		TotalShares:   stats.TotalShares,
		SharePriceUSD: sharePrice,
		MemberCount:   stats.MemberCount,
		Allocations:   allocations,
		ObservedAt:    stats.ObservedAt,
	}
}

// resolveFromCache serves the last pool record mirrored to Postgres
func (s *Service) resolveFromCache(ctx context.Context) (*pool.View, error) {
	p, err := s.pools.Get(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load cached pool")
	}

	allocations := make(map[string]pool.AssetView, len(p.Allocations))
	for symbol, bps := range p.Allocations {
		value := p.TotalNAVUSD.Mul(decimal.NewFromInt(bps)).DivRound(decimal.NewFromInt(pool.TotalAllocationBps), pool.USDScale)
		allocations[symbol] = pool.AssetView{
			WeightBps:  bps,
			Percentage: decimal.NewFromInt(bps).DivRound(decimal.NewFromInt(100), 2),
			ValueUSD:   value,
		}
	}

	return &pool.View{
		TotalValueUSD: p.TotalNAVUSD,
		TotalShares:   p.TotalShares,
		SharePriceUSD: p.SharePrice(),
		MemberCount:   p.MemberCount,
		Allocations:   allocations,
		ObservedAt:    p.UpdatedAt,
	}, nil
}

// writeThrough opportunistically persists an authoritative resolution.
// Fire-and-forget: failures are logged and never surface to the caller.
func (s *Service) writeThrough(view *pool.View, stats *ledger.PoolStats, elapsed time.Duration) {
	v := *view

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.snapshots.SaveView(ctx, &v, s.cfg.SnapshotTTL); err != nil {
			s.log.Warnw("Snapshot write-through failed", "error", err)
		}

		if v.Tier.Authoritative() && stats != nil {
			s.mirrorPoolRecord(ctx, &v, stats)
			metrics.SetPoolState(
				v.TotalValueUSD.InexactFloat64(),
				v.TotalShares.InexactFloat64(),
				v.SharePriceUSD.InexactFloat64(),
				v.MemberCount,
			)
		}

		if s.observations != nil {
			if err := s.observations.AppendObservation(ctx, &v, elapsed); err != nil {
				s.log.Debugw("Observation append failed", "error", err)
			}
		}
	}()
}

// mirrorPoolRecord overwrites the cached pool row and holdings with
// ledger-truth values. The ledger always wins.
func (s *Service) mirrorPoolRecord(ctx context.Context, view *pool.View, stats *ledger.PoolStats) {
	p, err := s.pools.Get(ctx)
	if err != nil {
		if !errors.Is(err, errors.ErrNotFound) {
			s.log.Warnw("Pool mirror read failed", "error", err)
			return
		}
		p = &pool.Pool{Allocations: pool.Allocations{}}
	}

	p.TotalShares = stats.TotalShares
	p.TotalNAVUSD = view.TotalValueUSD
	p.MemberCount = stats.MemberCount
	for _, asset := range stats.Assets {
		p.Allocations[asset.Symbol] = asset.WeightBps
	}

	if err := s.pools.Save(ctx, p); err != nil {
		s.log.Warnw("Pool mirror write failed", "error", err)
		return
	}

	holdings := make(map[string]decimal.Decimal, len(stats.Assets))
	for _, asset := range stats.Assets {
		holdings[asset.Symbol] = asset.Amount
	}
	if len(holdings) > 0 {
		if err := s.pools.SaveHoldings(ctx, holdings); err != nil {
			s.log.Warnw("Holdings mirror write failed", "error", err)
		}
	}
}

func weightsBySymbol(stats *ledger.PoolStats) map[string]int64 {
	weights := make(map[string]int64, len(stats.Assets))
	for _, asset := range stats.Assets {
		weights[asset.Symbol] = asset.WeightBps
	}
	return weights
}
