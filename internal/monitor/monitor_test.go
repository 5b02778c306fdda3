package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetoms/fleet/internal/exchange"
	"github.com/fleetoms/fleet/internal/keystore"
	"github.com/fleetoms/fleet/internal/registry"
	"github.com/fleetoms/fleet/pkg/types"
)

type stubResolver struct{}

func (stubResolver) Resolve(ref string) (*keystore.Credentials, error) {
	return &keystore.Credentials{APIKey: "k", APISecret: "s"}, nil
}

type fakeClient struct {
	mu        sync.Mutex
	balance   types.Balance
	positions []*types.Position
	failWith  error
}

func (f *fakeClient) setBalance(total, available float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balance = types.Balance{
		Total:     decimal.NewFromFloat(total),
		Available: decimal.NewFromFloat(available),
	}
}

func (f *fakeClient) setPositions(positions ...*types.Position) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positions = positions
}

func (f *fakeClient) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWith = err
}

func (f *fakeClient) GetBalance(ctx context.Context) (*types.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	balance := f.balance
	return &balance, nil
}

func (f *fakeClient) GetPositions(ctx context.Context) ([]*types.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	return f.positions, nil
}

func (f *fakeClient) PlaceOrder(ctx context.Context, req *exchange.OrderRequest) (*exchange.OrderAck, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeClient) CancelOpenOrders(ctx context.Context, symbol string) error { return nil }

func position(symbol string, size, mark float64) *types.Position {
	return &types.Position{
		Symbol:     symbol,
		Side:       types.PositionSideLong,
		Size:       decimal.NewFromFloat(size),
		MarkPrice:  decimal.NewFromFloat(mark),
		EntryPrice: decimal.NewFromFloat(mark),
	}
}

// fleetFixture registers one master and two subs backed by fake clients.
func fleetFixture(t *testing.T) (*registry.Registry, map[string]*fakeClient) {
	t.Helper()

	clients := map[string]*fakeClient{
		"master": {},
		"sub-1":  {},
		"sub-2":  {},
	}
	reg := registry.New(stubResolver{}, func(account *types.Account, apiKey, apiSecret string) (exchange.Client, error) {
		return clients[account.ID], nil
	})

	_, err := reg.Register(registry.AccountConfig{
		ID: "master", Type: types.AccountTypeMaster, CredentialRef: "env:MASTER",
	})
	require.NoError(t, err)
	for _, id := range []string{"sub-1", "sub-2"} {
		_, err := reg.Register(registry.AccountConfig{
			ID: id, Type: types.AccountTypeSubFutures, CredentialRef: "env:" + id,
		})
		require.NoError(t, err)
	}
	return reg, clients
}

func testConfig() Config {
	return Config{
		MinCorrelationDays: 5,
		Limits:             types.DefaultRiskLimits(),
	}
}

func TestPortfolioSummaryAggregates(t *testing.T) {
	reg, clients := fleetFixture(t)
	clients["master"].setBalance(50000, 50000)
	clients["sub-1"].setBalance(10000, 8000)
	clients["sub-1"].setPositions(position("BTCUSDT", 0.1, 40000))
	clients["sub-2"].setBalance(5000, 5000)
	clients["sub-2"].setPositions(position("ETHUSDT", 1, 2500), position("SOLUSDT", 10, 150))

	m := New(reg, testConfig())
	summary := m.PortfolioSummary(context.Background())

	require.NotNil(t, summary)
	assert.True(t, summary.TotalBalance.Equal(decimal.NewFromInt(65000)),
		"got %s", summary.TotalBalance)
	assert.Equal(t, 3, summary.AccountCount)
	assert.Equal(t, 3, summary.PositionCount)
	assert.Len(t, summary.Accounts, 3)
	assert.Empty(t, summary.SkippedAccounts)
}

func TestFailingAccountIsSkippedNotFatal(t *testing.T) {
	reg, clients := fleetFixture(t)
	clients["master"].setBalance(50000, 50000)
	clients["sub-1"].fail(errors.New("exchange timeout"))
	clients["sub-2"].setBalance(5000, 5000)

	m := New(reg, testConfig())
	summary := m.PortfolioSummary(context.Background())

	assert.Equal(t, 2, summary.AccountCount)
	assert.True(t, summary.TotalBalance.Equal(decimal.NewFromInt(55000)))
	assert.Equal(t, []string{"sub-1"}, summary.SkippedAccounts)

	// the failure is recorded on the account, not swallowed
	account := reg.Get("sub-1")
	assert.Equal(t, 1, account.ErrorCount)
	assert.Contains(t, account.LastError, "exchange timeout")

	// the account re-enters the totals once it recovers
	clients["sub-1"].fail(nil)
	clients["sub-1"].setBalance(10000, 10000)
	m.Refresh(context.Background())
	summary = m.PortfolioSummary(context.Background())
	assert.Equal(t, 3, summary.AccountCount)
	assert.Empty(t, summary.SkippedAccounts)
}

func TestConcentrationWarnsOnDominantAccount(t *testing.T) {
	reg, clients := fleetFixture(t)
	clients["master"].setBalance(50000, 10000)
	clients["master"].setPositions(position("BTCUSDT", 1, 40000)) // 40k exposure
	clients["sub-1"].setBalance(10000, 5000)
	clients["sub-1"].setPositions(position("ETHUSDT", 2, 2500)) // 5k
	clients["sub-2"].setBalance(10000, 5000)
	clients["sub-2"].setPositions(position("SOLUSDT", 33.3333, 150)) // 5k

	cfg := testConfig()
	cfg.Limits.MaxAccountConcentration = 0.5
	cfg.Limits.MaxSymbolConcentration = 1.0 // exercise only the account dimension
	m := New(reg, cfg)

	concentration := m.CheckRiskConcentration(context.Background())
	require.NotNil(t, concentration)

	assert.InDelta(t, 0.8, concentration.ByAccount["master"], 0.001)
	assert.Equal(t, "master", concentration.MaxAccount.Name)
	assert.InDelta(t, 0.8, concentration.MaxAccount.Ratio, 0.001)

	require.Len(t, concentration.Warnings, 1)
	assert.Contains(t, concentration.Warnings[0], "master")
}

func TestConcentrationBySymbolAcrossAccounts(t *testing.T) {
	reg, clients := fleetFixture(t)
	clients["sub-1"].setPositions(position("BTCUSDT", 0.5, 40000)) // 20k
	clients["sub-2"].setPositions(position("BTCUSDT", 0.25, 40000), // 10k
		position("ETHUSDT", 4, 2500)) // 10k

	cfg := testConfig()
	cfg.Limits.MaxAccountConcentration = 1.0
	cfg.Limits.MaxSymbolConcentration = 0.4
	m := New(reg, cfg)

	concentration := m.CheckRiskConcentration(context.Background())

	// BTCUSDT exposure spans accounts: 30k of 40k total
	assert.InDelta(t, 0.75, concentration.BySymbol["BTCUSDT"], 0.001)
	assert.Equal(t, "BTCUSDT", concentration.MaxSymbol.Name)
	require.Len(t, concentration.Warnings, 1)
	assert.Contains(t, concentration.Warnings[0], "BTCUSDT")
}

func TestConcentrationEmptyPortfolio(t *testing.T) {
	reg, clients := fleetFixture(t)
	clients["master"].setBalance(50000, 50000)

	m := New(reg, testConfig())
	concentration := m.CheckRiskConcentration(context.Background())

	require.NotNil(t, concentration)
	assert.True(t, concentration.TotalExposure.IsZero())
	assert.Empty(t, concentration.Warnings)
}

func TestCorrelationMatrix(t *testing.T) {
	reg, _ := fleetFixture(t)
	m := New(reg, testConfig())

	// perfectly correlated returns for sub-1/sub-2, anti for master
	for i := 0; i < 10; i++ {
		ret := float64(i%2)*0.02 - 0.01
		m.RecordDailyReturn("sub-1", ret)
		m.RecordDailyReturn("sub-2", ret)
		m.RecordDailyReturn("master", -ret)
	}

	summary := m.PortfolioSummary(context.Background())
	matrix := summary.Correlations
	require.NotNil(t, matrix)
	require.Len(t, matrix.Accounts, 3)

	c, ok := matrix.Pair("sub-1", "sub-2")
	require.True(t, ok)
	assert.InDelta(t, 1.0, c, 0.001)

	c, ok = matrix.Pair("master", "sub-1")
	require.True(t, ok)
	assert.InDelta(t, -1.0, c, 0.001)

	c, ok = matrix.Pair("sub-1", "sub-1")
	require.True(t, ok)
	assert.InDelta(t, 1.0, c, 0.001)

	_, ok = matrix.Pair("sub-1", "ghost")
	assert.False(t, ok)
}

func TestCorrelationNeedsEnoughHistory(t *testing.T) {
	reg, _ := fleetFixture(t)
	m := New(reg, testConfig())

	// below MinCorrelationDays, no matrix is produced
	for i := 0; i < 3; i++ {
		m.RecordDailyReturn("sub-1", 0.01)
		m.RecordDailyReturn("sub-2", 0.01)
	}

	summary := m.PortfolioSummary(context.Background())
	assert.Nil(t, summary.Correlations)
}

func TestPerformanceComparison(t *testing.T) {
	reg, _ := fleetFixture(t)
	m := New(reg, testConfig())

	for i := 0; i < 10; i++ {
		m.RecordDailyReturn("sub-1", 0.01) // steady gains
		if i%2 == 0 {
			m.RecordDailyReturn("sub-2", 0.02)
		} else {
			m.RecordDailyReturn("sub-2", -0.01)
		}
	}

	reports := m.PerformanceComparison()
	byAccount := make(map[string]*types.AccountPerformanceReport, len(reports))
	for _, r := range reports {
		byAccount[r.AccountID] = r
	}

	require.Contains(t, byAccount, "sub-1")
	require.Contains(t, byAccount, "sub-2")
	assert.Equal(t, 10, byAccount["sub-1"].SampleDays)
	// sub-1 has zero volatility handled without dividing by zero; sub-2
	// has positive mean and finite sharpe
	assert.Greater(t, byAccount["sub-2"].SharpeRatio, 0.0)
}

func TestSummaryIsCopyOnWrite(t *testing.T) {
	reg, clients := fleetFixture(t)
	clients["master"].setBalance(50000, 50000)

	m := New(reg, testConfig())
	first := m.PortfolioSummary(context.Background())

	clients["master"].setBalance(60000, 60000)
	m.Refresh(context.Background())
	second := m.PortfolioSummary(context.Background())

	// the old snapshot is immutable; readers holding it see stale but
	// consistent data
	assert.True(t, first.TotalBalance.Equal(decimal.NewFromInt(50000)))
	assert.True(t, second.TotalBalance.Equal(decimal.NewFromInt(60000)))
}
