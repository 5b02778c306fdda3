package risk

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetoms/fleet/pkg/types"
)

func healthyStatus() *types.AccountRiskStatus {
	return &types.AccountRiskStatus{FreeMarginPct: 100}
}

func TestScoreRiskLevels(t *testing.T) {
	limits := types.DefaultRiskLimits()

	cases := []struct {
		name   string
		status *types.AccountRiskStatus
		level  types.RiskLevel
	}{
		{"healthy", healthyStatus(), types.RiskLevelLow},
		{"small loss", &types.AccountRiskStatus{DailyPnLPct: -1, FreeMarginPct: 100}, types.RiskLevelLow},
		{"half of loss limit", &types.AccountRiskStatus{DailyPnLPct: -2.5, FreeMarginPct: 100}, types.RiskLevelLow},
		{"loss at limit", &types.AccountRiskStatus{DailyPnLPct: -5, FreeMarginPct: 100}, types.RiskLevelMedium},
		{"loss and drawdown at limit", &types.AccountRiskStatus{
			DailyPnLPct: -5, DrawdownPct: 15, FreeMarginPct: 100,
		}, types.RiskLevelHigh},
		{"everything breached", &types.AccountRiskStatus{
			DailyPnLPct: -6, DrawdownPct: 20, LeverageRatio: 12, FreeMarginPct: 5,
		}, types.RiskLevelCritical},
		{"margin exhausted only", &types.AccountRiskStatus{FreeMarginPct: 10}, types.RiskLevelMedium},
		{"high leverage only", &types.AccountRiskStatus{LeverageRatio: 11, FreeMarginPct: 100}, types.RiskLevelLow},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			level, _ := scoreRisk(tc.status, limits)
			assert.Equal(t, tc.level, level)
		})
	}
}

func TestScoreRiskWarningsNameEachDimension(t *testing.T) {
	limits := types.DefaultRiskLimits()

	status := &types.AccountRiskStatus{
		DailyPnLPct:   -6,
		DrawdownPct:   20,
		LeverageRatio: 12,
		FreeMarginPct: 5,
	}
	level, warnings := scoreRisk(status, limits)
	assert.Equal(t, types.RiskLevelCritical, level)
	require.Len(t, warnings, 4)

	_, warnings = scoreRisk(healthyStatus(), limits)
	assert.Empty(t, warnings)
}

// Worsening any single dimension must never lower the risk level.
func TestScoreRiskMonotoneInLoss(t *testing.T) {
	limits := types.DefaultRiskLimits()

	prev := types.RiskLevelLow
	for loss := 0.0; loss <= 12; loss += 0.25 {
		status := &types.AccountRiskStatus{DailyPnLPct: -loss, FreeMarginPct: 100}
		level, _ := scoreRisk(status, limits)
		assert.False(t, prev.WorseThan(level),
			fmt.Sprintf("loss %.2f%% scored %s after %s", loss, level, prev))
		prev = level
	}
}

func TestScoreRiskMonotoneInLeverage(t *testing.T) {
	limits := types.DefaultRiskLimits()

	prev := types.RiskLevelLow
	for leverage := 0.0; leverage <= 25; leverage += 0.5 {
		status := &types.AccountRiskStatus{LeverageRatio: leverage, DailyPnLPct: -4, FreeMarginPct: 100}
		level, _ := scoreRisk(status, limits)
		assert.False(t, prev.WorseThan(level),
			fmt.Sprintf("leverage %.1fx scored %s after %s", leverage, level, prev))
		prev = level
	}
}

func TestScoreRiskMonotoneInMargin(t *testing.T) {
	limits := types.DefaultRiskLimits()

	prev := types.RiskLevelLow
	for margin := 100.0; margin >= 0; margin -= 2.5 {
		status := &types.AccountRiskStatus{FreeMarginPct: margin, DailyPnLPct: -4}
		level, _ := scoreRisk(status, limits)
		assert.False(t, prev.WorseThan(level),
			fmt.Sprintf("margin %.1f%% scored %s after %s", margin, level, prev))
		prev = level
	}
}

func TestScoreRiskDisabledLimits(t *testing.T) {
	// zeroed limits disable their dimensions entirely
	level, warnings := scoreRisk(&types.AccountRiskStatus{
		DailyPnLPct: -50, DrawdownPct: 80, LeverageRatio: 100,
	}, types.RiskLimits{})
	assert.Equal(t, types.RiskLevelLow, level)
	assert.Empty(t, warnings)
}
