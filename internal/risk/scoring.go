package risk

import (
	"fmt"

	"github.com/fleetoms/fleet/pkg/types"
)

// scoreRisk grades an account snapshot against its effective limits.
// Each dimension contributes a bounded severity: daily loss 0-3,
// drawdown 0-3, leverage 0-2, low margin 0-3. The summed score maps to
// a level: >=8 critical, >=5 high, >=3 medium, else low.
func scoreRisk(status *types.AccountRiskStatus, limits types.RiskLimits) (types.RiskLevel, []string) {
	var warnings []string
	score := 0

	if s := lossSeverity(-status.DailyPnLPct, limits.DailyLossLimitPct); s > 0 {
		score += s
		warnings = append(warnings, fmt.Sprintf("daily loss %.2f%% (limit %.2f%%)",
			-status.DailyPnLPct, limits.DailyLossLimitPct))
	}
	if s := lossSeverity(status.DrawdownPct, limits.MaxDrawdownPct); s > 0 {
		score += s
		warnings = append(warnings, fmt.Sprintf("drawdown %.2f%% (limit %.2f%%)",
			status.DrawdownPct, limits.MaxDrawdownPct))
	}
	if s := leverageSeverity(status.LeverageRatio, limits.MaxLeverage); s > 0 {
		score += s
		warnings = append(warnings, fmt.Sprintf("leverage %.2fx (limit %.0fx)",
			status.LeverageRatio, limits.MaxLeverage))
	}
	if s := marginSeverity(status.FreeMarginPct, limits.MinFreeMarginPct); s > 0 {
		score += s
		warnings = append(warnings, fmt.Sprintf("free margin %.2f%% (minimum %.2f%%)",
			status.FreeMarginPct, limits.MinFreeMarginPct))
	}

	switch {
	case score >= 8:
		return types.RiskLevelCritical, warnings
	case score >= 5:
		return types.RiskLevelHigh, warnings
	case score >= 3:
		return types.RiskLevelMedium, warnings
	default:
		return types.RiskLevelLow, warnings
	}
}

// lossSeverity grades a loss (or drawdown) percentage against its limit.
// Monotone in the loss: a larger loss never scores lower.
func lossSeverity(lossPct, limitPct float64) int {
	if limitPct <= 0 || lossPct <= 0 {
		return 0
	}
	ratio := lossPct / limitPct
	switch {
	case ratio >= 1.0:
		return 3
	case ratio >= 0.75:
		return 2
	case ratio >= 0.5:
		return 1
	default:
		return 0
	}
}

func leverageSeverity(leverage, maxLeverage float64) int {
	if maxLeverage <= 0 || leverage <= 0 {
		return 0
	}
	ratio := leverage / maxLeverage
	switch {
	case ratio >= 1.0:
		return 2
	case ratio >= 0.75:
		return 1
	default:
		return 0
	}
}

func marginSeverity(freeMarginPct, minFreeMarginPct float64) int {
	if minFreeMarginPct <= 0 {
		return 0
	}
	switch {
	case freeMarginPct < minFreeMarginPct:
		return 3
	case freeMarginPct < minFreeMarginPct*1.5:
		return 2
	case freeMarginPct < minFreeMarginPct*2:
		return 1
	default:
		return 0
	}
}
