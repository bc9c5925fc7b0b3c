package fees

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"poolvault/internal/domain/pool"
	"poolvault/internal/events"
	"poolvault/pkg/errors"
	"poolvault/pkg/logger"
)

func testLogger() *logger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return &logger.Logger{SugaredLogger: zapLogger.Sugar()}
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

func newTestService(pools *MockPoolRepository) *Service {
	return NewService(pools, events.NoopPublisher{}, Config{
		ManagementFeeBps:  200,  // 2% p.a.
		PerformanceFeeBps: 2000, // 20% above high-water mark
		FeeManagerID:      "fee-manager",
	}, testLogger())
}

func TestService_Accrue_ManagementFeeProRated(t *testing.T) {
	pools := new(MockPoolRepository)
	svc := newTestService(pools)

	now := time.Now().UTC()
	p := &pool.Pool{
		TotalNAVUSD:         decimal.NewFromInt(1000000),
		HighWaterMarkNAVUSD: decimal.NewFromInt(1000000),
		FeesAccruedAt:       now.Add(-365 * 24 * time.Hour),
		Allocations:         pool.Allocations{},
	}
	pools.On("Get", mock.Anything).Return(p, nil)
	pools.On("Save", mock.Anything, mock.Anything).Return(nil)

	updated, err := svc.Accrue(context.Background(), now)

	require.NoError(t, err)
	// One full year at 200 bps on $1M = $20,000
	assert.True(t, updated.AccruedManagementFeeUSD.Equal(decimal.NewFromInt(20000)),
		"expected $20000 management fee, got %s", updated.AccruedManagementFeeUSD)
	// NAV at the high-water mark accrues no performance fee
	assert.True(t, updated.AccruedPerformanceFeeUSD.IsZero())
	assert.Equal(t, now, updated.FeesAccruedAt)
}

func TestService_Accrue_PerformanceFeeAboveHighWaterMark(t *testing.T) {
	pools := new(MockPoolRepository)
	svc := newTestService(pools)

	now := time.Now().UTC()
	p := &pool.Pool{
		TotalNAVUSD:         decimal.NewFromInt(1200),
		HighWaterMarkNAVUSD: decimal.NewFromInt(1000),
		FeesAccruedAt:       now.Add(-time.Hour),
		Allocations:         pool.Allocations{},
	}
	pools.On("Get", mock.Anything).Return(p, nil)
	pools.On("Save", mock.Anything, mock.Anything).Return(nil)

	updated, err := svc.Accrue(context.Background(), now)

	require.NoError(t, err)
	// 20% of the $200 gain above the mark
	assert.True(t, updated.AccruedPerformanceFeeUSD.Equal(decimal.NewFromInt(40)),
		"expected $40 performance fee, got %s", updated.AccruedPerformanceFeeUSD)
	// The mark ratchets up to the new NAV
	assert.True(t, updated.HighWaterMarkNAVUSD.Equal(decimal.NewFromInt(1200)))
}

func TestService_Accrue_NoPerformanceFeeBelowMark(t *testing.T) {
	pools := new(MockPoolRepository)
	svc := newTestService(pools)

	now := time.Now().UTC()
	p := &pool.Pool{
		TotalNAVUSD:         decimal.NewFromInt(900),
		HighWaterMarkNAVUSD: decimal.NewFromInt(1000),
		FeesAccruedAt:       now.Add(-time.Hour),
		Allocations:         pool.Allocations{},
	}
	pools.On("Get", mock.Anything).Return(p, nil)
	pools.On("Save", mock.Anything, mock.Anything).Return(nil)

	updated, err := svc.Accrue(context.Background(), now)

	require.NoError(t, err)
	assert.True(t, updated.AccruedPerformanceFeeUSD.IsZero())
	// Drawdown never lowers the mark
	assert.True(t, updated.HighWaterMarkNAVUSD.Equal(decimal.NewFromInt(1000)))
}

func TestService_Accrue_FirstRunOnlyAnchorsClock(t *testing.T) {
	pools := new(MockPoolRepository)
	svc := newTestService(pools)

	now := time.Now().UTC()
	p := &pool.Pool{
		TotalNAVUSD: decimal.NewFromInt(5000),
		Allocations: pool.Allocations{},
	}
	pools.On("Get", mock.Anything).Return(p, nil)
	pools.On("Save", mock.Anything, mock.Anything).Return(nil)

	updated, err := svc.Accrue(context.Background(), now)

	require.NoError(t, err)
	assert.True(t, updated.AccruedManagementFeeUSD.IsZero())
	assert.Equal(t, now, updated.FeesAccruedAt)
}

func TestService_Accrue_NoPoolYet(t *testing.T) {
	pools := new(MockPoolRepository)
	svc := newTestService(pools)

	pools.On("Get", mock.Anything).Return(nil, errors.ErrNotFound)

	updated, err := svc.Accrue(context.Background(), time.Now())

	require.NoError(t, err)
	assert.Nil(t, updated)
	pools.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestService_WithdrawFees_MovesAccrualsToTreasury(t *testing.T) {
	pools := new(MockPoolRepository)
	svc := newTestService(pools)

	p := &pool.Pool{
		AccruedManagementFeeUSD:  decimal.NewFromInt(150),
		AccruedPerformanceFeeUSD: decimal.NewFromInt(50),
		TreasuryBalanceUSD:       decimal.NewFromInt(25),
		Allocations:              pool.Allocations{},
	}
	pools.On("Get", mock.Anything).Return(p, nil)
	pools.On("Save", mock.Anything, mock.MatchedBy(func(saved *pool.Pool) bool {
		return saved.TreasuryBalanceUSD.Equal(decimal.NewFromInt(225)) &&
			saved.AccruedManagementFeeUSD.IsZero() &&
			saved.AccruedPerformanceFeeUSD.IsZero()
	})).Return(nil)

	amount, err := svc.WithdrawFees(context.Background(), "fee-manager")

	require.NoError(t, err)
	assert.True(t, amount.Equal(decimal.NewFromInt(200)))
	pools.AssertExpectations(t)
}

func TestService_WithdrawFees_RequiresCapability(t *testing.T) {
	pools := new(MockPoolRepository)
	svc := newTestService(pools)

	_, err := svc.WithdrawFees(context.Background(), "somebody-else")

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnauthorized))
	pools.AssertNotCalled(t, "Get", mock.Anything)
}

func TestService_WithdrawFees_NothingAccrued(t *testing.T) {
	pools := new(MockPoolRepository)
	svc := newTestService(pools)

	pools.On("Get", mock.Anything).Return(&pool.Pool{Allocations: pool.Allocations{}}, nil)

	amount, err := svc.WithdrawFees(context.Background(), "fee-manager")

	require.NoError(t, err)
	assert.True(t, amount.IsZero())
	pools.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}
