package monitor

import (
	"math"
	"sort"

	"github.com/fleetoms/fleet/pkg/types"
)

// PerformanceComparison builds per-account performance figures for
// charting: annualized Sharpe-style ratio over the daily-return series,
// win rate from the account's trade counters, and max drawdown over the
// retained balance history.
func (m *Monitor) PerformanceComparison() []*types.AccountPerformanceReport {
	accounts := m.registry.List()

	m.mu.RLock()
	defer m.mu.RUnlock()

	reports := make([]*types.AccountPerformanceReport, 0, len(accounts))
	for _, account := range accounts {
		returns := m.dailyReturns[account.ID]

		report := &types.AccountPerformanceReport{
			AccountID:      account.ID,
			WinRate:        account.Performance.WinRate(),
			SampleDays:     len(returns),
			MaxDrawdownPct: m.maxDrawdownLocked(account.ID),
		}
		if sd := stddev(returns); sd > 0 {
			report.SharpeRatio = mean(returns) / sd * math.Sqrt(365)
		}
		reports = append(reports, report)
	}

	sort.Slice(reports, func(i, j int) bool { return reports[i].AccountID < reports[j].AccountID })
	return reports
}

// maxDrawdownLocked computes the peak-to-trough drawdown percentage over
// the retained balance history window.
func (m *Monitor) maxDrawdownLocked(accountID string) float64 {
	history := m.balanceHistory[accountID]
	if len(history) < 2 {
		return 0
	}

	peak := history[0].Balance
	maxDD := 0.0
	for _, point := range history[1:] {
		if point.Balance.GreaterThan(peak) {
			peak = point.Balance
			continue
		}
		if peak.IsPositive() {
			dd := peak.Sub(point.Balance).Div(peak).InexactFloat64() * 100
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}
