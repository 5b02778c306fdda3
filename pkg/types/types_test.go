package types

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestAccountTypeValid(t *testing.T) {
	assert.True(t, AccountTypeMaster.Valid())
	assert.True(t, AccountTypeSubSpot.Valid())
	assert.True(t, AccountTypeSubFutures.Valid())
	assert.False(t, AccountType("margin").Valid())
	assert.False(t, AccountType("").Valid())
}

func TestConflictModeValid(t *testing.T) {
	assert.True(t, ConflictModePrevent.Valid())
	assert.True(t, ConflictModeAutoResolve.Valid())
	assert.True(t, ConflictModeManual.Valid())
	assert.False(t, ConflictMode("yolo").Valid())
}

func TestRiskLevelOrdering(t *testing.T) {
	assert.True(t, RiskLevelCritical.WorseThan(RiskLevelHigh))
	assert.True(t, RiskLevelHigh.WorseThan(RiskLevelMedium))
	assert.True(t, RiskLevelMedium.WorseThan(RiskLevelLow))
	assert.False(t, RiskLevelLow.WorseThan(RiskLevelCritical))
	assert.False(t, RiskLevelMedium.WorseThan(RiskLevelMedium))
}

func TestRiskLimitsPatchApply(t *testing.T) {
	limits := DefaultRiskLimits()

	loss := 2.0
	leverage := 5.0
	patch := &RiskLimitsPatch{DailyLossLimitPct: &loss, MaxLeverage: &leverage}
	patch.Apply(&limits)

	assert.Equal(t, 2.0, limits.DailyLossLimitPct)
	assert.Equal(t, 5.0, limits.MaxLeverage)
	assert.Equal(t, DefaultRiskLimits().MaxDrawdownPct, limits.MaxDrawdownPct)

	// nil patch is a no-op
	var nilPatch *RiskLimitsPatch
	before := limits
	nilPatch.Apply(&limits)
	assert.Equal(t, before, limits)
}

func TestBalanceFreeMarginPct(t *testing.T) {
	b := &Balance{Total: decimal.NewFromInt(1000), Available: decimal.NewFromInt(250)}
	assert.InDelta(t, 25.0, b.FreeMarginPct(), 0.001)

	empty := &Balance{}
	assert.Equal(t, 0.0, empty.FreeMarginPct())
}

func TestPositionNotional(t *testing.T) {
	long := &Position{Size: decimal.NewFromFloat(0.5), MarkPrice: decimal.NewFromInt(40000)}
	assert.True(t, long.Notional().Equal(decimal.NewFromInt(20000)))

	// short positions report negative size; notional is absolute
	short := &Position{Size: decimal.NewFromFloat(-0.5), MarkPrice: decimal.NewFromInt(40000)}
	assert.True(t, short.Notional().Equal(decimal.NewFromInt(20000)))
}

func TestHasSymbol(t *testing.T) {
	a := &StrategyAllocation{Symbols: []string{"BTCUSDT", "ETHUSDT"}}
	assert.True(t, a.HasSymbol("BTCUSDT"))
	assert.False(t, a.HasSymbol("SOLUSDT"))
}
