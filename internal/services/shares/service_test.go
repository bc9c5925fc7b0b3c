package shares

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"poolvault/internal/domain/history"
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

// MockValuer is a mock for Valuer
type MockValuer struct {
	mock.Mock
}

func (m *MockValuer) GetPoolSummary(ctx context.Context) (*pool.View, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pool.View), args.Error(1)
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

// MockHistoryRepository is a mock for history.Repository
type MockHistoryRepository struct {
	mock.Mock
}

func (m *MockHistoryRepository) AppendTransaction(ctx context.Context, tx *history.Transaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *MockHistoryRepository) RecentTransactions(ctx context.Context, limit int) ([]*history.Transaction, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*history.Transaction), args.Error(1)
}

func (m *MockHistoryRepository) AppendRebalance(ctx context.Context, r *history.Rebalance) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *MockHistoryRepository) RecentRebalances(ctx context.Context, limit int) ([]*history.Rebalance, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*history.Rebalance), args.Error(1)
}

// passthroughAtomic hands the test repositories straight to the callback
type passthroughAtomic struct {
	pools   pool.Repository
	members member.Repository
	hist    history.Repository
}

func (a passthroughAtomic) Run(ctx context.Context, fn func(pool.Repository, member.Repository, history.Repository) error) error {
	return fn(a.pools, a.members, a.hist)
}

func newTestService(valuer *MockValuer, pools *MockPoolRepository, members *MockMemberRepository, hist *MockHistoryRepository) *Service {
	atomic := passthroughAtomic{pools: pools, members: members, hist: hist}
	return NewService(
		valuer, nil, pools, members, atomic,
		events.NoopPublisher{},
		Config{MinDepositUSD: decimal.NewFromInt(10)},
		testLogger(),
	)
}

func emptyPoolView() *pool.View {
	return &pool.View{
		TotalValueUSD: decimal.Zero,
		TotalShares:   decimal.Zero,
		SharePriceUSD: decimal.NewFromInt(1),
		Tier:          pool.TierStructural,
		ObservedAt:    time.Now(),
	}
}

func TestService_Deposit_BootstrapMintsAtParity(t *testing.T) {
	valuer := new(MockValuer)
	pools := new(MockPoolRepository)
	members := new(MockMemberRepository)
	hist := new(MockHistoryRepository)
	svc := newTestService(valuer, pools, members, hist)

	valuer.On("GetPoolSummary", mock.Anything).Return(emptyPoolView(), nil)
	members.On("Get", mock.Anything, "0xabc").Return(nil, errors.ErrNotFound)
	members.On("Upsert", mock.Anything, mock.Anything).Return(nil)
	pools.On("Get", mock.Anything).Return(nil, errors.ErrNotFound)
	pools.On("Save", mock.Anything, mock.Anything).Return(nil)
	hist.On("AppendTransaction", mock.Anything, mock.Anything).Return(nil)

	result, err := svc.Deposit(context.Background(), "0xABC", decimal.NewFromInt(1000), "tx-1")

	require.NoError(t, err)
	assert.True(t, result.SharesIssued.Equal(decimal.NewFromInt(1000)),
		"expected 1000 shares, got %s", result.SharesIssued)
	assert.True(t, result.SharePriceUSD.Equal(decimal.NewFromInt(1)))
	assert.True(t, result.NewTotalShares.Equal(decimal.NewFromInt(1000)))
	assert.True(t, result.OwnershipPercentage.Equal(decimal.NewFromInt(100)))
	members.AssertExpectations(t)
	pools.AssertExpectations(t)
}

func TestService_Deposit_SharesAreProportional(t *testing.T) {
	valuer := new(MockValuer)
	pools := new(MockPoolRepository)
	members := new(MockMemberRepository)
	hist := new(MockHistoryRepository)
	svc := newTestService(valuer, pools, members, hist)

	// Static pool: 1000 shares at $1
	view := &pool.View{
		TotalValueUSD: decimal.NewFromInt(1000),
		TotalShares:   decimal.NewFromInt(1000),
		SharePriceUSD: decimal.NewFromInt(1),
		Tier:          pool.TierMarketAdjusted,
	}
	valuer.On("GetPoolSummary", mock.Anything).Return(view, nil)
	members.On("Get", mock.Anything, "0xsecond").Return(nil, errors.ErrNotFound)
	members.On("Upsert", mock.Anything, mock.Anything).Return(nil)
	pools.On("Get", mock.Anything).Return(&pool.Pool{
		TotalShares: decimal.NewFromInt(1000),
		TotalNAVUSD: decimal.NewFromInt(1000),
		MemberCount: 1,
		Allocations: pool.Allocations{},
	}, nil)
	pools.On("Save", mock.Anything, mock.Anything).Return(nil)
	hist.On("AppendTransaction", mock.Anything, mock.Anything).Return(nil)

	result, err := svc.Deposit(context.Background(), "0xSECOND", decimal.NewFromInt(500), "")

	require.NoError(t, err)
	// Half the deposit of the first member yields half the shares
	assert.True(t, result.SharesIssued.Equal(decimal.NewFromInt(500)),
		"expected 500 shares, got %s", result.SharesIssued)
	assert.True(t, result.NewTotalShares.Equal(decimal.NewFromInt(1500)))
}

func TestService_Deposit_BelowMinimumRejected(t *testing.T) {
	valuer := new(MockValuer)
	pools := new(MockPoolRepository)
	members := new(MockMemberRepository)
	hist := new(MockHistoryRepository)
	svc := newTestService(valuer, pools, members, hist)

	_, err := svc.Deposit(context.Background(), "0xabc", decimal.NewFromInt(5), "")

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrBelowMinimumDeposit))
	valuer.AssertNotCalled(t, "GetPoolSummary", mock.Anything)
}

func TestService_Deposit_NonPositiveAmountRejected(t *testing.T) {
	valuer := new(MockValuer)
	pools := new(MockPoolRepository)
	members := new(MockMemberRepository)
	hist := new(MockHistoryRepository)
	svc := newTestService(valuer, pools, members, hist)

	_, err := svc.Deposit(context.Background(), "0xabc", decimal.Zero, "")

	require.Error(t, err)
	var validationErr *errors.ValidationError
	assert.True(t, errors.As(err, &validationErr))
}

func TestService_Deposit_ValuationFailurePropagates(t *testing.T) {
	valuer := new(MockValuer)
	pools := new(MockPoolRepository)
	members := new(MockMemberRepository)
	hist := new(MockHistoryRepository)
	svc := newTestService(valuer, pools, members, hist)

	valuer.On("GetPoolSummary", mock.Anything).Return(nil, errors.ErrValuationUnavailable)

	_, err := svc.Deposit(context.Background(), "0xabc", decimal.NewFromInt(100), "")

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValuationUnavailable))
	members.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestService_Deposit_AuditFailureFailsDeposit(t *testing.T) {
	valuer := new(MockValuer)
	pools := new(MockPoolRepository)
	members := new(MockMemberRepository)
	hist := new(MockHistoryRepository)
	svc := newTestService(valuer, pools, members, hist)

	valuer.On("GetPoolSummary", mock.Anything).Return(emptyPoolView(), nil)
	members.On("Get", mock.Anything, "0xabc").Return(nil, errors.ErrNotFound)
	members.On("Upsert", mock.Anything, mock.Anything).Return(nil)
	pools.On("Get", mock.Anything).Return(nil, errors.ErrNotFound)
	pools.On("Save", mock.Anything, mock.Anything).Return(nil)
	hist.On("AppendTransaction", mock.Anything, mock.Anything).Return(errors.New("history table down"))

	_, err := svc.Deposit(context.Background(), "0xabc", decimal.NewFromInt(1000), "tx-1")

	// Balance mutation and audit row are one group: no silent half-commit
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append deposit record")
}

func TestService_Withdraw_RoundTripReturnsDeposit(t *testing.T) {
	valuer := new(MockValuer)
	pools := new(MockPoolRepository)
	members := new(MockMemberRepository)
	hist := new(MockHistoryRepository)
	svc := newTestService(valuer, pools, members, hist)

	// Member deposited $1000 into an empty pool and holds all 1000 shares
	m := &member.Member{
		Wallet:       "0xabc",
		Shares:       decimal.NewFromInt(1000),
		DepositedUSD: decimal.NewFromInt(1000),
		JoinedAt:     time.Now(),
	}
	view := &pool.View{
		TotalValueUSD: decimal.NewFromInt(1000),
		TotalShares:   decimal.NewFromInt(1000),
		SharePriceUSD: decimal.NewFromInt(1),
		Tier:          pool.TierMarketAdjusted,
	}

	members.On("Get", mock.Anything, "0xabc").Return(m, nil)
	valuer.On("GetPoolSummary", mock.Anything).Return(view, nil)
	members.On("Delete", mock.Anything, "0xabc").Return(nil)
	pools.On("Get", mock.Anything).Return(&pool.Pool{
		TotalShares: decimal.NewFromInt(1000),
		TotalNAVUSD: decimal.NewFromInt(1000),
		MemberCount: 1,
		Allocations: pool.Allocations{},
	}, nil)
	pools.On("Save", mock.Anything, mock.Anything).Return(nil)
	hist.On("AppendTransaction", mock.Anything, mock.Anything).Return(nil)

	result, err := svc.Withdraw(context.Background(), "0xABC", decimal.NewFromInt(1000), "")

	require.NoError(t, err)
	assert.True(t, result.AmountUSD.Equal(decimal.NewFromInt(1000)),
		"expected $1000 back, got %s", result.AmountUSD)
	assert.True(t, result.RemainingShares.IsZero())
	// Full exit removes membership
	members.AssertCalled(t, "Delete", mock.Anything, "0xabc")
}

func TestService_Withdraw_PartialKeepsMembership(t *testing.T) {
	valuer := new(MockValuer)
	pools := new(MockPoolRepository)
	members := new(MockMemberRepository)
	hist := new(MockHistoryRepository)
	svc := newTestService(valuer, pools, members, hist)

	m := &member.Member{
		Wallet: "0xabc",
		Shares: decimal.NewFromInt(1000),
	}
	view := &pool.View{
		TotalValueUSD: decimal.NewFromInt(2000),
		TotalShares:   decimal.NewFromInt(1000),
		SharePriceUSD: decimal.NewFromInt(2),
		Tier:          pool.TierMarketAdjusted,
	}

	members.On("Get", mock.Anything, "0xabc").Return(m, nil)
	valuer.On("GetPoolSummary", mock.Anything).Return(view, nil)
	members.On("Upsert", mock.Anything, mock.Anything).Return(nil)
	pools.On("Get", mock.Anything).Return(&pool.Pool{
		TotalShares: decimal.NewFromInt(1000),
		TotalNAVUSD: decimal.NewFromInt(2000),
		MemberCount: 1,
		Allocations: pool.Allocations{},
	}, nil)
	pools.On("Save", mock.Anything, mock.Anything).Return(nil)
	hist.On("AppendTransaction", mock.Anything, mock.Anything).Return(nil)

	result, err := svc.Withdraw(context.Background(), "0xabc", decimal.NewFromInt(400), "")

	require.NoError(t, err)
	// amountUSD == shares * price
	assert.True(t, result.AmountUSD.Equal(decimal.NewFromInt(800)),
		"expected $800, got %s", result.AmountUSD)
	assert.True(t, result.RemainingShares.Equal(decimal.NewFromInt(600)))
	members.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestService_Withdraw_InsufficientSharesRejected(t *testing.T) {
	valuer := new(MockValuer)
	pools := new(MockPoolRepository)
	members := new(MockMemberRepository)
	hist := new(MockHistoryRepository)
	svc := newTestService(valuer, pools, members, hist)

	m := &member.Member{Wallet: "0xabc", Shares: decimal.NewFromInt(100)}
	members.On("Get", mock.Anything, "0xabc").Return(m, nil)

	_, err := svc.Withdraw(context.Background(), "0xabc", decimal.NewFromInt(101), "")

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInsufficientShares))
	pools.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestService_Withdraw_UnknownWalletRejected(t *testing.T) {
	valuer := new(MockValuer)
	pools := new(MockPoolRepository)
	members := new(MockMemberRepository)
	hist := new(MockHistoryRepository)
	svc := newTestService(valuer, pools, members, hist)

	members.On("Get", mock.Anything, "0xghost").Return(nil, errors.ErrNotFound)

	_, err := svc.Withdraw(context.Background(), "0xGhost", decimal.NewFromInt(1), "")

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotMember))
}

func TestService_Deposit_WalletIsNormalized(t *testing.T) {
	valuer := new(MockValuer)
	pools := new(MockPoolRepository)
	members := new(MockMemberRepository)
	hist := new(MockHistoryRepository)
	svc := newTestService(valuer, pools, members, hist)

	valuer.On("GetPoolSummary", mock.Anything).Return(emptyPoolView(), nil)
	members.On("Get", mock.Anything, "0xmixedcase").Return(nil, errors.ErrNotFound)
	members.On("Upsert", mock.Anything, mock.MatchedBy(func(m *member.Member) bool {
		return m.Wallet == "0xmixedcase"
	})).Return(nil)
	pools.On("Get", mock.Anything).Return(nil, errors.ErrNotFound)
	pools.On("Save", mock.Anything, mock.Anything).Return(nil)
	hist.On("AppendTransaction", mock.Anything, mock.Anything).Return(nil)

	_, err := svc.Deposit(context.Background(), "  0xMixedCase ", decimal.NewFromInt(50), "")

	require.NoError(t, err)
	members.AssertExpectations(t)
}
