package sync

import (
	"context"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"poolvault/internal/adapters/ledger"
	"poolvault/internal/domain/member"
	"poolvault/internal/domain/pool"
	"poolvault/internal/events"
	"poolvault/internal/metrics"
	"poolvault/pkg/errors"
	"poolvault/pkg/logger"
)

// driftScale is the decimal precision used when comparing cache and
// ledger figures; smaller differences are rounding noise, not drift
const driftScale int32 = 6

// Config carries reconciliation policy
type Config struct {
	PageSize int
}

// ResyncResult summarizes one full resync run
type ResyncResult struct {
	MembersSynced int
	MembersPurged int
	PoolStats     *ledger.PoolStats
	Wallets       []string
	Duration      time.Duration
}

// Service is the reconciliation coordinator. The ledger is always
// authoritative: any divergence is resolved by overwriting the cache,
// never the reverse.
type Service struct {
	ledger    ledger.Ledger
	pools     pool.Repository
	members   member.Repository
	publisher events.Publisher
	cfg       Config
	log       *logger.Logger
}

// NewService creates a new sync coordinator
func NewService(
	lg ledger.Ledger,
	pools pool.Repository,
	members member.Repository,
	publisher events.Publisher,
	cfg Config,
	log *logger.Logger,
) *Service {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 200
	}
	return &Service{
		ledger:    lg,
		pools:     pools,
		members:   members,
		publisher: publisher,
		cfg:       cfg,
		log:       log.With("service", "sync"),
	}
}

// MirrorMember overwrites the cache entry for one wallet and the pool
// record with ledger-truth values. Called after every confirmed
// transaction; failures are non-fatal for the caller.
func (s *Service) MirrorMember(ctx context.Context, wallet string) error {
	wallet = member.Normalize(wallet)

	pos, err := s.ledger.GetMemberPosition(ctx, wallet)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			// Ledger says the wallet fully exited; converge the cache
			if derr := s.members.Delete(ctx, wallet); derr != nil && !errors.Is(derr, errors.ErrNotFound) {
				return errors.Wrap(derr, "purge exited member")
			}
			return s.mirrorPool(ctx)
		}
		return errors.Wrap(err, "fetch member position")
	}

	if err := s.upsertFromPosition(ctx, pos); err != nil {
		return err
	}

	return s.mirrorPool(ctx)
}

// ResolveMember finds the authoritative record for a wallet.
// Chain: direct ledger lookup, case-insensitive full-list scan, cache.
// The scan is O(n) over the ledger member list and reserved for this
// recovery path; positions recovered by scan are tagged TierCalculated
// so callers display cumulative cost basis instead of live value.
func (s *Service) ResolveMember(ctx context.Context, wallet string) (*member.Member, pool.Tier, error) {
	normalized := member.Normalize(wallet)

	pos, err := s.ledger.GetMemberPosition(ctx, normalized)
	if err == nil {
		m := positionToMember(pos)
		return m, pool.TierStructural, nil
	}

	if errors.Is(err, errors.ErrNotFound) {
		// Identity may be cased differently on the ledger side
		if m, scanErr := s.scanForWallet(ctx, normalized); scanErr == nil {
			return m, pool.TierCalculated, nil
		} else if !errors.Is(scanErr, errors.ErrNotFound) {
			s.log.Debugw("Member scan failed", "wallet", normalized, "error", scanErr)
		}
	}

	m, cacheErr := s.members.Get(ctx, normalized)
	if cacheErr == nil {
		return m, pool.TierCacheOnly, nil
	}

	if errors.Is(err, errors.ErrNotFound) && errors.Is(cacheErr, errors.ErrNotFound) {
		return nil, pool.TierStructural, errors.ErrNotMember
	}

	return nil, pool.TierUnavailable, errors.Wrap(errors.ErrLedgerUnavailable, "member unresolvable at any tier")
}

// Leaderboard returns the top holders by share count. The ledger
// enumeration is authoritative; the cache answers only when the ledger
// is unreachable, tagged TierCacheOnly so callers can surface staleness.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]*member.Member, pool.Tier, error) {
	ranked, err := s.ledgerLeaderboard(ctx, limit)
	if err == nil {
		return ranked, pool.TierStructural, nil
	}

	s.log.Warnw("Ledger leaderboard failed, serving cache", "error", err)

	cached, cacheErr := s.members.Leaderboard(ctx, limit)
	if cacheErr != nil {
		return nil, pool.TierUnavailable, errors.Wrap(errors.ErrLedgerUnavailable, "leaderboard unresolvable at any tier")
	}
	return cached, pool.TierCacheOnly, nil
}

func (s *Service) ledgerLeaderboard(ctx context.Context, limit int) ([]*member.Member, error) {
	var ranked []*member.Member
	cursor := ""
	for {
		page, err := s.ledger.ListMembers(ctx, cursor, s.cfg.PageSize)
		if err != nil {
			return nil, errors.Wrap(err, "list ledger members")
		}
		for i := range page.Members {
			ranked = append(ranked, positionToMember(&page.Members[i]))
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Shares.GreaterThan(ranked[j].Shares)
	})
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// FullResync enumerates the complete ledger member list and overwrites
// the cache member by member. Idempotent: repeating it against an
// unchanged ledger snapshot leaves the cache contents identical.
func (s *Service) FullResync(ctx context.Context) (*ResyncResult, error) {
	start := time.Now()

	stats, err := s.ledger.GetPoolStats(ctx)
	if err != nil {
		metrics.ResyncRuns.WithLabelValues("error").Inc()
		return nil, errors.Wrap(err, "fetch pool stats")
	}

	seen := make(map[string]bool)
	var wallets []string
	cursor := ""
	for {
		page, err := s.ledger.ListMembers(ctx, cursor, s.cfg.PageSize)
		if err != nil {
			metrics.ResyncRuns.WithLabelValues("error").Inc()
			return nil, errors.Wrap(err, "list ledger members")
		}

		for i := range page.Members {
			pos := &page.Members[i]
			if err := s.upsertFromPosition(ctx, pos); err != nil {
				metrics.ResyncRuns.WithLabelValues("error").Inc()
				return nil, err
			}
			normalized := member.Normalize(pos.Wallet)
			seen[normalized] = true
			wallets = append(wallets, normalized)
		}

		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	purged, err := s.purgeUnknown(ctx, seen)
	if err != nil {
		metrics.ResyncRuns.WithLabelValues("error").Inc()
		return nil, err
	}

	if err := s.applyPoolStats(ctx, stats); err != nil {
		metrics.ResyncRuns.WithLabelValues("error").Inc()
		return nil, err
	}

	s.checkMemberCount(ctx, stats)

	elapsed := time.Since(start)
	metrics.ResyncRuns.WithLabelValues("success").Inc()

	result := &ResyncResult{
		MembersSynced: len(wallets),
		MembersPurged: purged,
		PoolStats:     stats,
		Wallets:       wallets,
		Duration:      elapsed,
	}

	s.publisher.ResyncCompleted(ctx, events.ResyncEvent{
		MembersSynced: result.MembersSynced,
		MembersPurged: result.MembersPurged,
		Duration:      elapsed,
		OccurredAt:    time.Now().UTC(),
	})

	s.log.Infow("Full resync completed",
		"members_synced", result.MembersSynced,
		"members_purged", result.MembersPurged,
		"total_shares", humanize.CommafWithDigits(stats.TotalShares.InexactFloat64(), 2),
		"nav_usd", humanize.CommafWithDigits(stats.TotalNAVUSD.InexactFloat64(), 2),
		"duration", elapsed,
	)

	return result, nil
}

// scanForWallet linearly searches the paginated ledger member list for
// a case-insensitive identity match
func (s *Service) scanForWallet(ctx context.Context, normalized string) (*member.Member, error) {
	cursor := ""
	for {
		page, err := s.ledger.ListMembers(ctx, cursor, s.cfg.PageSize)
		if err != nil {
			return nil, errors.Wrap(err, "scan ledger members")
		}

		for i := range page.Members {
			pos := &page.Members[i]
			if member.Normalize(pos.Wallet) == normalized {
				m := positionToMember(pos)
				// Heal the cache under the normalized key
				if err := s.upsertFromPosition(ctx, pos); err != nil {
					s.log.Warnw("Scan-recovery cache heal failed", "wallet", normalized, "error", err)
				}
				return m, nil
			}
		}

		if page.NextCursor == "" {
			return nil, errors.ErrNotFound
		}
		cursor = page.NextCursor
	}
}

// upsertFromPosition writes one ledger position into the cache keyed by
// normalized wallet
func (s *Service) upsertFromPosition(ctx context.Context, pos *ledger.MemberPosition) error {
	m := positionToMember(pos)
	if err := s.members.Upsert(ctx, m); err != nil {
		return errors.Wrapf(err, "mirror member %s", m.Wallet)
	}
	return nil
}

// purgeUnknown removes cache rows for wallets the ledger no longer lists
func (s *Service) purgeUnknown(ctx context.Context, seen map[string]bool) (int, error) {
	purged := 0
	offset := 0
	const batch = 500
	for {
		cached, err := s.members.List(ctx, batch, offset)
		if err != nil {
			return purged, errors.Wrap(err, "list cached members")
		}
		if len(cached) == 0 {
			return purged, nil
		}

		for _, m := range cached {
			if seen[m.Wallet] {
				continue
			}
			if err := s.members.Delete(ctx, m.Wallet); err != nil && !errors.Is(err, errors.ErrNotFound) {
				return purged, errors.Wrapf(err, "purge member %s", m.Wallet)
			}
			purged++
		}

		if len(cached) < batch {
			return purged, nil
		}
		offset += batch
	}
}

// mirrorPool refreshes the cached pool record from ledger stats
func (s *Service) mirrorPool(ctx context.Context) error {
	stats, err := s.ledger.GetPoolStats(ctx)
	if err != nil {
		return errors.Wrap(err, "fetch pool stats")
	}
	return s.applyPoolStats(ctx, stats)
}

// applyPoolStats overwrites the cached pool row and holdings with
// ledger-truth structural values, logging drift where detected
func (s *Service) applyPoolStats(ctx context.Context, stats *ledger.PoolStats) error {
	p, err := s.pools.Get(ctx)
	if err != nil {
		if !errors.Is(err, errors.ErrNotFound) {
			return errors.Wrap(err, "load cached pool")
		}
		p = &pool.Pool{Allocations: pool.Allocations{}}
	} else {
		s.detectDrift(ctx, p, stats)
	}

	p.TotalShares = stats.TotalShares
	p.TotalNAVUSD = stats.TotalNAVUSD
	p.MemberCount = stats.MemberCount
	for _, asset := range stats.Assets {
		p.Allocations[asset.Symbol] = asset.WeightBps
	}

	if err := s.pools.Save(ctx, p); err != nil {
		return errors.Wrap(err, "save pool")
	}

	holdings := make(map[string]decimal.Decimal, len(stats.Assets))
	for _, asset := range stats.Assets {
		holdings[asset.Symbol] = asset.Amount
	}
	if len(holdings) > 0 {
		if err := s.pools.SaveHoldings(ctx, holdings); err != nil {
			return errors.Wrap(err, "save holdings")
		}
	}

	return nil
}

// checkMemberCount compares the converged cache row count against the
// ledger-reported member count. A mismatch after a full overwrite means
// the enumeration and the stats endpoint disagree; record it and move on.
func (s *Service) checkMemberCount(ctx context.Context, stats *ledger.PoolStats) {
	count, err := s.members.Count(ctx)
	if err != nil {
		s.log.Warnw("Member count check failed", "error", err)
		return
	}
	if count == stats.MemberCount {
		return
	}

	metrics.DriftDetections.WithLabelValues("member_count").Inc()
	s.log.Warnw("Drift detected",
		"field", "member_count",
		"cache", count,
		"ledger", stats.MemberCount,
	)
	s.publisher.DriftDetected(ctx, events.DriftEvent{
		Field:       "member_count",
		CacheValue:  decimal.NewFromInt(int64(count)),
		LedgerValue: decimal.NewFromInt(int64(stats.MemberCount)),
		OccurredAt:  time.Now().UTC(),
	})
}

// detectDrift logs divergence between cache and ledger. Drift is an
// expected, self-healing condition: it is recorded and immediately
// healed by the overwrite that follows, never surfaced to callers.
func (s *Service) detectDrift(ctx context.Context, cached *pool.Pool, stats *ledger.PoolStats) {
	now := time.Now().UTC()

	if !cached.TotalShares.Round(driftScale).Equal(stats.TotalShares.Round(driftScale)) {
		metrics.DriftDetections.WithLabelValues("total_shares").Inc()
		s.log.Warnw("Drift detected",
			"field", "total_shares",
			"cache", cached.TotalShares,
			"ledger", stats.TotalShares,
		)
		s.publisher.DriftDetected(ctx, events.DriftEvent{
			Field:       "total_shares",
			CacheValue:  cached.TotalShares,
			LedgerValue: stats.TotalShares,
			OccurredAt:  now,
		})
	}

	if !cached.TotalNAVUSD.Round(driftScale).Equal(stats.TotalNAVUSD.Round(driftScale)) {
		metrics.DriftDetections.WithLabelValues("total_nav_usd").Inc()
		s.log.Warnw("Drift detected",
			"field", "total_nav_usd",
			"cache", cached.TotalNAVUSD,
			"ledger", stats.TotalNAVUSD,
		)
		s.publisher.DriftDetected(ctx, events.DriftEvent{
			Field:       "total_nav_usd",
			CacheValue:  cached.TotalNAVUSD,
			LedgerValue: stats.TotalNAVUSD,
			OccurredAt:  now,
		})
	}
}

func positionToMember(pos *ledger.MemberPosition) *member.Member {
	return &member.Member{
		Wallet:       member.Normalize(pos.Wallet),
		Shares:       pos.Shares,
		DepositedUSD: pos.DepositedUSD,
		WithdrawnUSD: pos.WithdrawnUSD,
		JoinedAt:     pos.JoinedAt,
		LastActionAt: time.Now().UTC(),
	}
}
