package sync

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"poolvault/internal/adapters/ledger"
	"poolvault/internal/domain/member"
	"poolvault/internal/domain/pool"
	"poolvault/internal/events"
	"poolvault/pkg/errors"
	"poolvault/pkg/logger"
)

func testLogger() *logger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return &logger.Logger{SugaredLogger: zapLogger.Sugar()}
}

// MockLedger is a mock for ledger.Ledger
type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) Name() string {
	return "mock-ledger"
}

func (m *MockLedger) GetPoolStats(ctx context.Context) (*ledger.PoolStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.PoolStats), args.Error(1)
}

func (m *MockLedger) GetMemberPosition(ctx context.Context, wallet string) (*ledger.MemberPosition, error) {
	args := m.Called(ctx, wallet)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.MemberPosition), args.Error(1)
}

func (m *MockLedger) ListMembers(ctx context.Context, cursor string, limit int) (*ledger.MemberPage, error) {
	args := m.Called(ctx, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.MemberPage), args.Error(1)
}

// MockPoolRepository is a mock for pool.Repository
type MockPoolRepository struct {
	mock.Mock
}

func (m *MockPoolRepository) Get(ctx context.Context) (*pool.Pool, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pool.Pool), args.Error(1)
}

func (m *MockPoolRepository) Save(ctx context.Context, p *pool.Pool) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockPoolRepository) GetHoldings(ctx context.Context) (map[string]decimal.Decimal, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]decimal.Decimal), args.Error(1)
}

func (m *MockPoolRepository) SaveHoldings(ctx context.Context, holdings map[string]decimal.Decimal) error {
	args := m.Called(ctx, holdings)
	return args.Error(0)
}

// MockMemberRepository is a mock for member.Repository
type MockMemberRepository struct {
	mock.Mock
}

func (m *MockMemberRepository) Get(ctx context.Context, wallet string) (*member.Member, error) {
	args := m.Called(ctx, wallet)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*member.Member), args.Error(1)
}

func (m *MockMemberRepository) Upsert(ctx context.Context, mem *member.Member) error {
	args := m.Called(ctx, mem)
	return args.Error(0)
}

func (m *MockMemberRepository) Delete(ctx context.Context, wallet string) error {
	args := m.Called(ctx, wallet)
	return args.Error(0)
}

func (m *MockMemberRepository) List(ctx context.Context, limit, offset int) ([]*member.Member, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*member.Member), args.Error(1)
}

func (m *MockMemberRepository) Leaderboard(ctx context.Context, limit int) ([]*member.Member, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*member.Member), args.Error(1)
}

func (m *MockMemberRepository) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func newTestService(lg *MockLedger, pools *MockPoolRepository, members *MockMemberRepository) *Service {
	return NewService(lg, pools, members, events.NoopPublisher{}, Config{PageSize: 2}, testLogger())
}

func statsFixture() *ledger.PoolStats {
	return &ledger.PoolStats{
		TotalShares:   decimal.NewFromInt(1500),
		TotalNAVUSD:   decimal.NewFromInt(1500),
		SharePriceUSD: decimal.NewFromInt(1),
		MemberCount:   2,
		Assets: []ledger.AssetAllocation{
			{Symbol: "BTC", WeightBps: 10000, Amount: decimal.RequireFromString("0.015"), ValueUSD: decimal.NewFromInt(1500)},
		},
		ObservedAt: time.Now().UTC(),
	}
}

func TestService_MirrorMember_LedgerWins(t *testing.T) {
	lg := new(MockLedger)
	pools := new(MockPoolRepository)
	members := new(MockMemberRepository)
	svc := newTestService(lg, pools, members)

	pos := &ledger.MemberPosition{
		Wallet:       "0xABC",
		Shares:       decimal.NewFromInt(700),
		DepositedUSD: decimal.NewFromInt(700),
		JoinedAt:     time.Now().Add(-time.Hour),
	}
	lg.On("GetMemberPosition", mock.Anything, "0xabc").Return(pos, nil)
	// Cache row is overwritten with ledger-truth values under the normalized key
	members.On("Upsert", mock.Anything, mock.MatchedBy(func(m *member.Member) bool {
		return m.Wallet == "0xabc" && m.Shares.Equal(decimal.NewFromInt(700))
	})).Return(nil)
	lg.On("GetPoolStats", mock.Anything).Return(statsFixture(), nil)
	pools.On("Get", mock.Anything).Return(nil, errors.ErrNotFound)
	pools.On("Save", mock.Anything, mock.Anything).Return(nil)
	pools.On("SaveHoldings", mock.Anything, mock.Anything).Return(nil)

	err := svc.MirrorMember(context.Background(), "0xABC")

	require.NoError(t, err)
	members.AssertExpectations(t)
	pools.AssertExpectations(t)
}

func TestService_MirrorMember_PurgesExitedWallet(t *testing.T) {
	lg := new(MockLedger)
	pools := new(MockPoolRepository)
	members := new(MockMemberRepository)
	svc := newTestService(lg, pools, members)

	lg.On("GetMemberPosition", mock.Anything, "0xgone").Return(nil, errors.ErrNotFound)
	members.On("Delete", mock.Anything, "0xgone").Return(nil)
	lg.On("GetPoolStats", mock.Anything).Return(statsFixture(), nil)
	pools.On("Get", mock.Anything).Return(nil, errors.ErrNotFound)
	pools.On("Save", mock.Anything, mock.Anything).Return(nil)
	pools.On("SaveHoldings", mock.Anything, mock.Anything).Return(nil)

	err := svc.MirrorMember(context.Background(), "0xGone")

	require.NoError(t, err)
	members.AssertCalled(t, "Delete", mock.Anything, "0xgone")
}

func TestService_FullResync_PaginatesAndUpserts(t *testing.T) {
	lg := new(MockLedger)
	pools := new(MockPoolRepository)
	members := new(MockMemberRepository)
	svc := newTestService(lg, pools, members)

	lg.On("GetPoolStats", mock.Anything).Return(statsFixture(), nil)
	lg.On("ListMembers", mock.Anything, "", 2).Return(&ledger.MemberPage{
		Members: []ledger.MemberPosition{
			{Wallet: "0xAAA", Shares: decimal.NewFromInt(1000), DepositedUSD: decimal.NewFromInt(1000)},
			{Wallet: "0xBBB", Shares: decimal.NewFromInt(500), DepositedUSD: decimal.NewFromInt(500)},
		},
		NextCursor: "page2",
	}, nil)
	lg.On("ListMembers", mock.Anything, "page2", 2).Return(&ledger.MemberPage{
		Members: []ledger.MemberPosition{
			{Wallet: "0xCCC", Shares: decimal.NewFromInt(0), DepositedUSD: decimal.NewFromInt(100)},
		},
	}, nil)

	members.On("Upsert", mock.Anything, mock.Anything).Return(nil)
	// One stale cache row the ledger no longer lists
	members.On("List", mock.Anything, 500, 0).Return([]*member.Member{
		{Wallet: "0xaaa"}, {Wallet: "0xbbb"}, {Wallet: "0xccc"}, {Wallet: "0xstale"},
	}, nil)
	members.On("Delete", mock.Anything, "0xstale").Return(nil)
	members.On("Count", mock.Anything).Return(3, nil)
	pools.On("Get", mock.Anything).Return(nil, errors.ErrNotFound)
	pools.On("Save", mock.Anything, mock.Anything).Return(nil)
	pools.On("SaveHoldings", mock.Anything, mock.Anything).Return(nil)

	result, err := svc.FullResync(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, result.MembersSynced)
	assert.Equal(t, 1, result.MembersPurged)
	assert.Equal(t, []string{"0xaaa", "0xbbb", "0xccc"}, result.Wallets)
	members.AssertNumberOfCalls(t, "Upsert", 3)
	members.AssertCalled(t, "Delete", mock.Anything, "0xstale")
	members.AssertCalled(t, "Count", mock.Anything)
}

func TestService_FullResync_IdempotentAgainstUnchangedLedger(t *testing.T) {
	lg := new(MockLedger)
	pools := new(MockPoolRepository)
	members := new(MockMemberRepository)
	svc := newTestService(lg, pools, members)

	lg.On("GetPoolStats", mock.Anything).Return(statsFixture(), nil)
	lg.On("ListMembers", mock.Anything, "", 2).Return(&ledger.MemberPage{
		Members: []ledger.MemberPosition{
			{Wallet: "0xAAA", Shares: decimal.NewFromInt(1000), DepositedUSD: decimal.NewFromInt(1000)},
		},
	}, nil)

	var upserted []*member.Member
	members.On("Upsert", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		upserted = append(upserted, args.Get(1).(*member.Member))
	}).Return(nil)
	members.On("List", mock.Anything, 500, 0).Return([]*member.Member{{Wallet: "0xaaa"}}, nil)
	members.On("Count", mock.Anything).Return(1, nil)
	pools.On("Get", mock.Anything).Return(nil, errors.ErrNotFound)
	pools.On("Save", mock.Anything, mock.Anything).Return(nil)
	pools.On("SaveHoldings", mock.Anything, mock.Anything).Return(nil)

	_, err := svc.FullResync(context.Background())
	require.NoError(t, err)
	_, err = svc.FullResync(context.Background())
	require.NoError(t, err)

	// Same key, same balances on both runs: the upsert converges
	require.Len(t, upserted, 2)
	assert.Equal(t, upserted[0].Wallet, upserted[1].Wallet)
	assert.True(t, upserted[0].Shares.Equal(upserted[1].Shares))
	assert.True(t, upserted[0].DepositedUSD.Equal(upserted[1].DepositedUSD))
	members.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestService_ResolveMember_DirectLedgerHit(t *testing.T) {
	lg := new(MockLedger)
	pools := new(MockPoolRepository)
	members := new(MockMemberRepository)
	svc := newTestService(lg, pools, members)

	pos := &ledger.MemberPosition{Wallet: "0xabc", Shares: decimal.NewFromInt(10)}
	lg.On("GetMemberPosition", mock.Anything, "0xabc").Return(pos, nil)

	m, tier, err := svc.ResolveMember(context.Background(), "0xABC")

	require.NoError(t, err)
	assert.Equal(t, pool.TierStructural, tier)
	assert.Equal(t, "0xabc", m.Wallet)
}

func TestService_ResolveMember_ScanRecoversMixedCaseIdentity(t *testing.T) {
	lg := new(MockLedger)
	pools := new(MockPoolRepository)
	members := new(MockMemberRepository)
	svc := newTestService(lg, pools, members)

	lg.On("GetMemberPosition", mock.Anything, "0xabc").Return(nil, errors.ErrNotFound)
	// Ledger indexes the wallet under its original mixed casing
	lg.On("ListMembers", mock.Anything, "", 2).Return(&ledger.MemberPage{
		Members: []ledger.MemberPosition{
			{Wallet: "0xAbC", Shares: decimal.NewFromInt(42), DepositedUSD: decimal.NewFromInt(42)},
		},
	}, nil)
	members.On("Upsert", mock.Anything, mock.MatchedBy(func(m *member.Member) bool {
		return m.Wallet == "0xabc"
	})).Return(nil)

	m, tier, err := svc.ResolveMember(context.Background(), "0xABC")

	require.NoError(t, err)
	assert.Equal(t, pool.TierCalculated, tier)
	assert.True(t, m.Shares.Equal(decimal.NewFromInt(42)))
}

func TestService_ResolveMember_CacheFallbackWhenLedgerDown(t *testing.T) {
	lg := new(MockLedger)
	pools := new(MockPoolRepository)
	members := new(MockMemberRepository)
	svc := newTestService(lg, pools, members)

	lg.On("GetMemberPosition", mock.Anything, "0xabc").Return(nil, errors.ErrLedgerUnavailable)
	members.On("Get", mock.Anything, "0xabc").Return(&member.Member{
		Wallet: "0xabc",
		Shares: decimal.NewFromInt(5),
	}, nil)

	m, tier, err := svc.ResolveMember(context.Background(), "0xabc")

	require.NoError(t, err)
	assert.Equal(t, pool.TierCacheOnly, tier)
	assert.True(t, m.Shares.Equal(decimal.NewFromInt(5)))
}

func TestService_ResolveMember_NotAMember(t *testing.T) {
	lg := new(MockLedger)
	pools := new(MockPoolRepository)
	members := new(MockMemberRepository)
	svc := newTestService(lg, pools, members)

	lg.On("GetMemberPosition", mock.Anything, "0xghost").Return(nil, errors.ErrNotFound)
	lg.On("ListMembers", mock.Anything, "", 2).Return(&ledger.MemberPage{}, nil)
	members.On("Get", mock.Anything, "0xghost").Return(nil, errors.ErrNotFound)

	_, _, err := svc.ResolveMember(context.Background(), "0xGhost")

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotMember))
}

// recordingPublisher captures drift events for assertions
type recordingPublisher struct {
	events.NoopPublisher
	drift []events.DriftEvent
}

func (p *recordingPublisher) DriftDetected(_ context.Context, e events.DriftEvent) {
	p.drift = append(p.drift, e)
}

func TestService_FullResync_FlagsMemberCountDrift(t *testing.T) {
	lg := new(MockLedger)
	pools := new(MockPoolRepository)
	members := new(MockMemberRepository)
	publisher := &recordingPublisher{}
	svc := NewService(lg, pools, members, publisher, Config{PageSize: 2}, testLogger())

	lg.On("GetPoolStats", mock.Anything).Return(statsFixture(), nil)
	lg.On("ListMembers", mock.Anything, "", 2).Return(&ledger.MemberPage{
		Members: []ledger.MemberPosition{
			{Wallet: "0xAAA", Shares: decimal.NewFromInt(1000), DepositedUSD: decimal.NewFromInt(1000)},
		},
	}, nil)
	members.On("Upsert", mock.Anything, mock.Anything).Return(nil)
	members.On("List", mock.Anything, 500, 0).Return([]*member.Member{{Wallet: "0xaaa"}}, nil)
	// Stats report two members, the converged cache holds one
	members.On("Count", mock.Anything).Return(1, nil)
	pools.On("Get", mock.Anything).Return(nil, errors.ErrNotFound)
	pools.On("Save", mock.Anything, mock.Anything).Return(nil)
	pools.On("SaveHoldings", mock.Anything, mock.Anything).Return(nil)

	_, err := svc.FullResync(context.Background())

	require.NoError(t, err)
	require.Len(t, publisher.drift, 1)
	assert.Equal(t, "member_count", publisher.drift[0].Field)
	assert.True(t, publisher.drift[0].CacheValue.Equal(decimal.NewFromInt(1)))
	assert.True(t, publisher.drift[0].LedgerValue.Equal(decimal.NewFromInt(2)))
}

func TestService_Leaderboard_RanksLedgerEnumeration(t *testing.T) {
	lg := new(MockLedger)
	pools := new(MockPoolRepository)
	members := new(MockMemberRepository)
	svc := newTestService(lg, pools, members)

	lg.On("ListMembers", mock.Anything, "", 2).Return(&ledger.MemberPage{
		Members: []ledger.MemberPosition{
			{Wallet: "0xAAA", Shares: decimal.NewFromInt(100)},
			{Wallet: "0xBBB", Shares: decimal.NewFromInt(900)},
		},
		NextCursor: "page2",
	}, nil)
	lg.On("ListMembers", mock.Anything, "page2", 2).Return(&ledger.MemberPage{
		Members: []ledger.MemberPosition{
			{Wallet: "0xCCC", Shares: decimal.NewFromInt(500)},
		},
	}, nil)

	ranked, tier, err := svc.Leaderboard(context.Background(), 2)

	require.NoError(t, err)
	assert.Equal(t, pool.TierStructural, tier)
	require.Len(t, ranked, 2)
	assert.Equal(t, "0xbbb", ranked[0].Wallet)
	assert.Equal(t, "0xccc", ranked[1].Wallet)
	// Cache is never consulted when the ledger answers
	members.AssertNotCalled(t, "Leaderboard", mock.Anything, mock.Anything)
}

func TestService_Leaderboard_CacheFallbackWhenLedgerDown(t *testing.T) {
	lg := new(MockLedger)
	pools := new(MockPoolRepository)
	members := new(MockMemberRepository)
	svc := newTestService(lg, pools, members)

	lg.On("ListMembers", mock.Anything, "", 2).Return(nil, errors.ErrLedgerUnavailable)
	members.On("Leaderboard", mock.Anything, 3).Return([]*member.Member{
		{Wallet: "0xaaa", Shares: decimal.NewFromInt(900)},
	}, nil)

	ranked, tier, err := svc.Leaderboard(context.Background(), 3)

	require.NoError(t, err)
	assert.Equal(t, pool.TierCacheOnly, tier)
	require.Len(t, ranked, 1)
	assert.Equal(t, "0xaaa", ranked[0].Wallet)
}

func TestService_Leaderboard_UnavailableWhenBothTiersFail(t *testing.T) {
	lg := new(MockLedger)
	pools := new(MockPoolRepository)
	members := new(MockMemberRepository)
	svc := newTestService(lg, pools, members)

	lg.On("ListMembers", mock.Anything, "", 2).Return(nil, errors.ErrLedgerUnavailable)
	members.On("Leaderboard", mock.Anything, 3).Return(nil, errors.New("cache down"))

	_, tier, err := svc.Leaderboard(context.Background(), 3)

	require.Error(t, err)
	assert.Equal(t, pool.TierUnavailable, tier)
	assert.True(t, errors.Is(err, errors.ErrLedgerUnavailable))
}
