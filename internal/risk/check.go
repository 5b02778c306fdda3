package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fleetoms/fleet/pkg/types"
)

// CheckPortfolioRisk pulls the monitor's portfolio aggregates and emits
// a risk event per concentration or correlation violation.
func (m *Manager) CheckPortfolioRisk(ctx context.Context) {
	concentration := m.monitor.CheckRiskConcentration(ctx)
	if concentration != nil {
		for accountID, ratio := range concentration.ByAccount {
			if ratio > m.config.Limits.MaxAccountConcentration {
				m.recordEvent(types.NewRiskEvent(types.RiskEventConcentrationWarning, accountID,
					types.SeverityHigh,
					fmt.Sprintf("account %s concentration %.1f%% exceeds %.1f%%",
						accountID, ratio*100, m.config.Limits.MaxAccountConcentration*100)))
				m.alert("concentration_warning", "Account concentration exceeded",
					fmt.Sprintf("account %s holds %.1f%% of portfolio exposure", accountID, ratio*100),
					types.AlertPriorityHigh)
			}
		}
		for symbol, ratio := range concentration.BySymbol {
			if ratio > m.config.Limits.MaxSymbolConcentration {
				m.recordEvent(types.NewRiskEvent(types.RiskEventConcentrationWarning, "",
					types.SeverityMedium,
					fmt.Sprintf("symbol %s concentration %.1f%% exceeds %.1f%%",
						symbol, ratio*100, m.config.Limits.MaxSymbolConcentration*100)))
			}
		}
	}

	summary := m.monitor.PortfolioSummary(ctx)
	if summary != nil && summary.Correlations != nil {
		matrix := summary.Correlations
		for i := range matrix.Accounts {
			for j := i + 1; j < len(matrix.Accounts); j++ {
				if matrix.Values[i][j] > m.config.Limits.MaxCorrelation {
					m.recordEvent(types.NewRiskEvent(types.RiskEventCorrelationWarning, "",
						types.SeverityMedium,
						fmt.Sprintf("accounts %s and %s return correlation %.2f exceeds %.2f",
							matrix.Accounts[i], matrix.Accounts[j],
							matrix.Values[i][j], m.config.Limits.MaxCorrelation)))
				}
			}
		}
	}
}

// CheckAccountRisk fetches the account's balance and positions and
// recomputes its risk snapshot. The daily PnL baseline is the first
// balance observed for the account in the current UTC day.
func (m *Manager) CheckAccountRisk(ctx context.Context, accountID string) (*types.AccountRiskStatus, error) {
	client, err := m.registry.Client(accountID)
	if err != nil {
		m.registry.RecordError(accountID, err)
		return nil, err
	}

	fetchCtx, cancel := context.WithTimeout(ctx, m.config.AccountTimeout)
	defer cancel()

	balance, err := client.GetBalance(fetchCtx)
	if err != nil {
		m.registry.RecordError(accountID, fmt.Errorf("balance fetch: %w", err))
		return nil, err
	}
	positions, err := client.GetPositions(fetchCtx)
	if err != nil {
		m.registry.RecordError(accountID, fmt.Errorf("positions fetch: %w", err))
		return nil, err
	}

	limits := m.registry.EffectiveLimits(accountID, m.config.Limits)

	m.mu.Lock()
	baseline := m.observeBaselineLocked(accountID, balance.Total)
	peak := m.observePeakLocked(accountID, balance.Total)
	m.mu.Unlock()

	status := &types.AccountRiskStatus{
		AccountID:     accountID,
		OpenPositions: len(positions),
		FreeMarginPct: balance.FreeMarginPct(),
		LastUpdate:    time.Now().UTC(),
	}

	if baseline.IsPositive() {
		status.DailyPnLPct = balance.Total.Sub(baseline).Div(baseline).InexactFloat64() * 100
	}
	if peak.IsPositive() {
		status.DrawdownPct = peak.Sub(balance.Total).Div(peak).InexactFloat64() * 100
		if status.DrawdownPct < 0 {
			status.DrawdownPct = 0
		}
	}
	if balance.Total.IsPositive() {
		exposure := decimal.Zero
		for _, pos := range positions {
			exposure = exposure.Add(pos.Notional())
		}
		status.LeverageRatio = exposure.Div(balance.Total).InexactFloat64()
	}

	status.Level, status.Warnings = scoreRisk(status, limits)
	status.TradingAllowed = status.Level != types.RiskLevelCritical && !m.IsPaused(accountID)

	if status.Level == types.RiskLevelCritical {
		m.recordEvent(types.NewRiskEvent(types.RiskEventCriticalRisk, accountID,
			types.SeverityCritical,
			fmt.Sprintf("account %s risk is critical (daily %.2f%%, drawdown %.2f%%)",
				accountID, status.DailyPnLPct, status.DrawdownPct)))
		m.alert("critical_risk", "Critical account risk",
			fmt.Sprintf("account %s requires attention", accountID), types.AlertPriorityHigh)
	}

	m.mu.Lock()
	m.statuses[accountID] = status
	m.mu.Unlock()
	m.registry.TouchSync(accountID)

	return status, nil
}

// CheckDailyLossLimit reports whether trading remains allowed under the
// account's daily loss limit. On a breach the account is added to the
// paused set and a recovery plan is created.
func (m *Manager) CheckDailyLossLimit(accountID string, status *types.AccountRiskStatus) bool {
	limits := m.registry.EffectiveLimits(accountID, m.config.Limits)
	if limits.DailyLossLimitPct <= 0 {
		return true
	}
	if status.DailyPnLPct > -limits.DailyLossLimitPct {
		return true
	}

	m.mu.Lock()
	_, alreadyPaused := m.paused[accountID]
	if !alreadyPaused {
		m.paused[accountID] = fmt.Sprintf("daily loss %.2f%% breached limit %.2f%%",
			-status.DailyPnLPct, limits.DailyLossLimitPct)
	}
	m.mu.Unlock()

	if !alreadyPaused {
		m.registry.SetStatus(accountID, types.AccountStatusPaused)
		m.createRecoveryPlan(accountID, "daily_loss")
		m.recordEvent(types.NewRiskEvent(types.RiskEventDailyLossBreach, accountID,
			types.SeverityHigh,
			fmt.Sprintf("account %s daily loss %.2f%% breached limit %.2f%%",
				accountID, -status.DailyPnLPct, limits.DailyLossLimitPct)))
		m.alert("daily_loss_breach", "Daily loss limit breached",
			fmt.Sprintf("account %s paused after %.2f%% daily loss", accountID, -status.DailyPnLPct),
			types.AlertPriorityHigh)
	}

	return false
}

// observeBaselineLocked returns the account's start-of-day balance,
// capturing the current balance when none exists for today.
func (m *Manager) observeBaselineLocked(accountID string, balance decimal.Decimal) decimal.Decimal {
	day := time.Now().UTC().Format("2006-01-02")
	if m.baselineDay[accountID] != day {
		m.baselineDay[accountID] = day
		m.dayBaseline[accountID] = balance
	}
	return m.dayBaseline[accountID]
}

func (m *Manager) observePeakLocked(accountID string, balance decimal.Decimal) decimal.Decimal {
	if balance.GreaterThan(m.peakBalance[accountID]) {
		m.peakBalance[accountID] = balance
	}
	return m.peakBalance[accountID]
}
