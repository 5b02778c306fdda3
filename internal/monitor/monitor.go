package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/fleetoms/fleet/internal/registry"
	"github.com/fleetoms/fleet/pkg/types"
)

const maxDailyReturns = 90

// Config holds unified monitor settings.
type Config struct {
	PollInterval       time.Duration
	AccountTimeout     time.Duration
	HistoryRetention   time.Duration
	MinCorrelationDays int
	Limits             types.RiskLimits
}

type balancePoint struct {
	At      time.Time
	Balance decimal.Decimal
}

// Monitor polls all accounts and aggregates balances, PnL and positions
// into a portfolio view. A failing account is skipped for the cycle and
// never stalls the others; derived state is recomputed from live reads
// every cycle rather than trusted from caches.
type Monitor struct {
	mu sync.RWMutex

	registry *registry.Registry
	config   Config
	logger   *logrus.Entry

	// copy-on-write snapshots, replaced wholesale each cycle
	lastSummary       *types.PortfolioSummary
	lastConcentration *types.RiskConcentration

	balanceHistory map[string][]balancePoint
	dailyReturns   map[string][]float64
	dayBaseline    map[string]decimal.Decimal
	baselineDay    map[string]string // account -> UTC date of baseline

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a monitor.
func New(reg *registry.Registry, config Config) *Monitor {
	if config.PollInterval <= 0 {
		config.PollInterval = time.Minute
	}
	if config.AccountTimeout <= 0 {
		config.AccountTimeout = 10 * time.Second
	}
	if config.HistoryRetention <= 0 {
		config.HistoryRetention = 24 * time.Hour
	}
	if config.MinCorrelationDays <= 0 {
		config.MinCorrelationDays = 20
	}

	return &Monitor{
		registry:       reg,
		config:         config,
		logger:         logrus.WithField("component", "monitor"),
		balanceHistory: make(map[string][]balancePoint),
		dailyReturns:   make(map[string][]float64),
		dayBaseline:    make(map[string]decimal.Decimal),
		baselineDay:    make(map[string]string),
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}
}

// Start launches the monitoring loop.
func (m *Monitor) Start() {
	go m.loop()
	m.logger.Infof("monitor started, interval %s", m.config.PollInterval)
}

// Stop requests a graceful stop and waits for the in-flight cycle,
// bounded by the given timeout.
func (m *Monitor) Stop(timeout time.Duration) {
	close(m.stopCh)
	select {
	case <-m.doneCh:
	case <-time.After(timeout):
		m.logger.Warn("monitor stop timed out")
	}
}

func (m *Monitor) loop() {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithCancel(context.Background())
			m.Refresh(ctx)
			cancel()
		case <-m.stopCh:
			return
		}
	}
}

// Refresh performs one monitoring cycle: poll every account, rebuild the
// portfolio summary and concentration view, prune history.
func (m *Monitor) Refresh(ctx context.Context) {
	summary := m.buildSummary(ctx)
	concentration := m.buildConcentration(ctx)

	m.mu.Lock()
	m.lastSummary = summary
	m.lastConcentration = concentration
	m.pruneHistoryLocked()
	m.mu.Unlock()
}

// PortfolioSummary returns the latest aggregated portfolio view,
// computing one on demand when no cycle has run yet.
func (m *Monitor) PortfolioSummary(ctx context.Context) *types.PortfolioSummary {
	m.mu.RLock()
	cached := m.lastSummary
	m.mu.RUnlock()
	if cached != nil {
		return cached
	}

	summary := m.buildSummary(ctx)
	m.mu.Lock()
	m.lastSummary = summary
	m.mu.Unlock()
	return summary
}

// CheckRiskConcentration returns the latest exposure concentration view,
// computing one on demand when no cycle has run yet.
func (m *Monitor) CheckRiskConcentration(ctx context.Context) *types.RiskConcentration {
	m.mu.RLock()
	cached := m.lastConcentration
	m.mu.RUnlock()
	if cached != nil {
		return cached
	}

	concentration := m.buildConcentration(ctx)
	m.mu.Lock()
	m.lastConcentration = concentration
	m.mu.Unlock()
	return concentration
}

func (m *Monitor) buildSummary(ctx context.Context) *types.PortfolioSummary {
	summary := &types.PortfolioSummary{
		TotalBalance:       decimal.Zero,
		TotalUnrealizedPnL: decimal.Zero,
		TotalRealizedPnL:   decimal.Zero,
		UpdatedAt:          time.Now().UTC(),
	}

	for _, account := range m.registry.List() {
		balance, positions, err := m.fetchAccount(ctx, account.ID)
		if err != nil {
			// isolation: the failing account is left out of the totals
			// for this cycle, the rest proceed
			m.registry.RecordError(account.ID, err)
			summary.SkippedAccounts = append(summary.SkippedAccounts, account.ID)
			continue
		}

		m.registry.TouchSync(account.ID)
		m.recordBalance(account.ID, balance.Total)

		summary.TotalBalance = summary.TotalBalance.Add(balance.Total)
		summary.TotalUnrealizedPnL = summary.TotalUnrealizedPnL.Add(balance.UnrealizedPnL)
		summary.TotalRealizedPnL = summary.TotalRealizedPnL.Add(account.Performance.TotalPnL)
		summary.AccountCount++
		summary.PositionCount += len(positions)

		summary.Accounts = append(summary.Accounts, types.AccountSummary{
			AccountID:     account.ID,
			Balance:       balance.Total,
			UnrealizedPnL: balance.UnrealizedPnL,
			OpenPositions: len(positions),
			Status:        account.Status,
		})
	}

	summary.Correlations = m.correlationMatrix()
	return summary
}

func (m *Monitor) buildConcentration(ctx context.Context) *types.RiskConcentration {
	totalExposure := decimal.Zero
	byAccount := make(map[string]decimal.Decimal)
	bySymbol := make(map[string]decimal.Decimal)

	for _, account := range m.registry.List() {
		_, positions, err := m.fetchAccount(ctx, account.ID)
		if err != nil {
			m.registry.RecordError(account.ID, err)
			continue
		}

		accountExposure := decimal.Zero
		for _, pos := range positions {
			notional := pos.Notional()
			accountExposure = accountExposure.Add(notional)
			bySymbol[pos.Symbol] = bySymbol[pos.Symbol].Add(notional)
		}
		if accountExposure.IsPositive() {
			byAccount[account.ID] = accountExposure
			totalExposure = totalExposure.Add(accountExposure)
		}
	}

	result := &types.RiskConcentration{
		TotalExposure: totalExposure,
		ByAccount:     make(map[string]float64, len(byAccount)),
		BySymbol:      make(map[string]float64, len(bySymbol)),
		UpdatedAt:     time.Now().UTC(),
	}
	if totalExposure.IsZero() {
		return result
	}

	for accountID, exposure := range byAccount {
		ratio := exposure.Div(totalExposure).InexactFloat64()
		result.ByAccount[accountID] = ratio
		if ratio > result.MaxAccount.Ratio {
			result.MaxAccount = types.ConcentrationEntry{Name: accountID, Ratio: ratio}
		}
		if ratio > m.config.Limits.MaxAccountConcentration {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("account %s holds %.1f%% of portfolio exposure (limit %.1f%%)",
					accountID, ratio*100, m.config.Limits.MaxAccountConcentration*100))
		}
	}
	for symbol, exposure := range bySymbol {
		ratio := exposure.Div(totalExposure).InexactFloat64()
		result.BySymbol[symbol] = ratio
		if ratio > result.MaxSymbol.Ratio {
			result.MaxSymbol = types.ConcentrationEntry{Name: symbol, Ratio: ratio}
		}
		if ratio > m.config.Limits.MaxSymbolConcentration {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("symbol %s holds %.1f%% of portfolio exposure (limit %.1f%%)",
					symbol, ratio*100, m.config.Limits.MaxSymbolConcentration*100))
		}
	}

	return result
}

// fetchAccount reads balance and positions with a per-account timeout so
// one slow account cannot stall the cycle.
func (m *Monitor) fetchAccount(ctx context.Context, accountID string) (*types.Balance, []*types.Position, error) {
	client, err := m.registry.Client(accountID)
	if err != nil {
		return nil, nil, err
	}

	fetchCtx, cancel := context.WithTimeout(ctx, m.config.AccountTimeout)
	defer cancel()

	balance, err := client.GetBalance(fetchCtx)
	if err != nil {
		return nil, nil, fmt.Errorf("balance fetch: %w", err)
	}
	positions, err := client.GetPositions(fetchCtx)
	if err != nil {
		return nil, nil, fmt.Errorf("positions fetch: %w", err)
	}
	return balance, positions, nil
}

// recordBalance appends a balance point and rolls the daily-return
// series over at UTC day boundaries. The first observation of a day is
// the day's baseline; after a restart that makes the restart-time
// balance the baseline, a known approximation.
func (m *Monitor) recordBalance(accountID string, balance decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	m.balanceHistory[accountID] = append(m.balanceHistory[accountID], balancePoint{At: now, Balance: balance})

	day := now.Format("2006-01-02")
	prevDay, seen := m.baselineDay[accountID]
	if !seen {
		m.baselineDay[accountID] = day
		m.dayBaseline[accountID] = balance
		return
	}
	if prevDay != day {
		baseline := m.dayBaseline[accountID]
		if baseline.IsPositive() {
			ret := balance.Sub(baseline).Div(baseline).InexactFloat64()
			m.appendDailyReturnLocked(accountID, ret)
		}
		m.baselineDay[accountID] = day
		m.dayBaseline[accountID] = balance
	}
}

// RecordDailyReturn appends one daily return observation for an account.
func (m *Monitor) RecordDailyReturn(accountID string, ret float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendDailyReturnLocked(accountID, ret)
}

func (m *Monitor) appendDailyReturnLocked(accountID string, ret float64) {
	returns := append(m.dailyReturns[accountID], ret)
	if len(returns) > maxDailyReturns {
		returns = returns[len(returns)-maxDailyReturns:]
	}
	m.dailyReturns[accountID] = returns
}

func (m *Monitor) pruneHistoryLocked() {
	cutoff := time.Now().UTC().Add(-m.config.HistoryRetention)
	for accountID, history := range m.balanceHistory {
		idx := 0
		for idx < len(history) && history[idx].At.Before(cutoff) {
			idx++
		}
		if idx > 0 {
			m.balanceHistory[accountID] = history[idx:]
		}
	}
}
