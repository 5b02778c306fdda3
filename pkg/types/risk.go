package types

import (
	"time"

	"github.com/google/uuid"
)

// RiskLevel grades computed account and portfolio risk
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

// rank orders risk levels for comparisons.
func (l RiskLevel) rank() int {
	switch l {
	case RiskLevelLow:
		return 0
	case RiskLevelMedium:
		return 1
	case RiskLevelHigh:
		return 2
	case RiskLevelCritical:
		return 3
	}
	return 0
}

// WorseThan reports whether l is a more severe level than other.
func (l RiskLevel) WorseThan(other RiskLevel) bool {
	return l.rank() > other.rank()
}

// RiskLimits holds the global default risk thresholds. Per-account
// overrides replace individual fields via RiskLimitsPatch, never the
// whole struct.
type RiskLimits struct {
	DailyLossLimitPct       float64 `json:"daily_loss_limit_pct" mapstructure:"daily_loss_limit_pct"`
	MaxDrawdownPct          float64 `json:"max_drawdown_pct" mapstructure:"max_drawdown_pct"`
	MaxPositionPct          float64 `json:"max_position_pct" mapstructure:"max_position_pct"`
	MaxLeverage             float64 `json:"max_leverage" mapstructure:"max_leverage"`
	MaxCorrelation          float64 `json:"max_correlation" mapstructure:"max_correlation"`
	MaxAccountConcentration float64 `json:"max_account_concentration" mapstructure:"max_account_concentration"`
	MaxSymbolConcentration  float64 `json:"max_symbol_concentration" mapstructure:"max_symbol_concentration"`
	MinFreeMarginPct        float64 `json:"min_free_margin_pct" mapstructure:"min_free_margin_pct"`
}

// DefaultRiskLimits returns the global defaults applied when no override
// is configured.
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{
		DailyLossLimitPct:       5.0,
		MaxDrawdownPct:          15.0,
		MaxPositionPct:          20.0,
		MaxLeverage:             10,
		MaxCorrelation:          0.8,
		MaxAccountConcentration: 0.5,
		MaxSymbolConcentration:  0.4,
		MinFreeMarginPct:        20.0,
	}
}

// RiskLimitsPatch lists the overridable risk limit fields. Nil fields
// keep the global default.
type RiskLimitsPatch struct {
	DailyLossLimitPct       *float64 `json:"daily_loss_limit_pct,omitempty" mapstructure:"daily_loss_limit_pct"`
	MaxDrawdownPct          *float64 `json:"max_drawdown_pct,omitempty" mapstructure:"max_drawdown_pct"`
	MaxPositionPct          *float64 `json:"max_position_pct,omitempty" mapstructure:"max_position_pct"`
	MaxLeverage             *float64 `json:"max_leverage,omitempty" mapstructure:"max_leverage"`
	MaxCorrelation          *float64 `json:"max_correlation,omitempty" mapstructure:"max_correlation"`
	MaxAccountConcentration *float64 `json:"max_account_concentration,omitempty" mapstructure:"max_account_concentration"`
	MaxSymbolConcentration  *float64 `json:"max_symbol_concentration,omitempty" mapstructure:"max_symbol_concentration"`
	MinFreeMarginPct        *float64 `json:"min_free_margin_pct,omitempty" mapstructure:"min_free_margin_pct"`
}

// Apply merges non-nil patch fields into limits.
func (p *RiskLimitsPatch) Apply(limits *RiskLimits) {
	if p == nil {
		return
	}
	if p.DailyLossLimitPct != nil {
		limits.DailyLossLimitPct = *p.DailyLossLimitPct
	}
	if p.MaxDrawdownPct != nil {
		limits.MaxDrawdownPct = *p.MaxDrawdownPct
	}
	if p.MaxPositionPct != nil {
		limits.MaxPositionPct = *p.MaxPositionPct
	}
	if p.MaxLeverage != nil {
		limits.MaxLeverage = *p.MaxLeverage
	}
	if p.MaxCorrelation != nil {
		limits.MaxCorrelation = *p.MaxCorrelation
	}
	if p.MaxAccountConcentration != nil {
		limits.MaxAccountConcentration = *p.MaxAccountConcentration
	}
	if p.MaxSymbolConcentration != nil {
		limits.MaxSymbolConcentration = *p.MaxSymbolConcentration
	}
	if p.MinFreeMarginPct != nil {
		limits.MinFreeMarginPct = *p.MinFreeMarginPct
	}
}

// AccountRiskStatus is a point-in-time risk snapshot for one account.
// It is recomputed every monitoring cycle; the previous snapshot is
// discarded.
type AccountRiskStatus struct {
	AccountID      string    `json:"account_id"`
	DailyPnLPct    float64   `json:"daily_pnl_pct"`
	DrawdownPct    float64   `json:"drawdown_pct"`
	LeverageRatio  float64   `json:"leverage_ratio"`
	FreeMarginPct  float64   `json:"free_margin_pct"`
	OpenPositions  int       `json:"open_positions"`
	Level          RiskLevel `json:"level"`
	TradingAllowed bool      `json:"trading_allowed"`
	Warnings       []string  `json:"warnings,omitempty"`
	LastUpdate     time.Time `json:"last_update"`
}

// RiskEventType classifies risk events published to the notifier
type RiskEventType string

const (
	RiskEventPauseRecommended         RiskEventType = "pause_recommended"
	RiskEventResumeRecommended        RiskEventType = "resume_recommended"
	RiskEventEmergencyStopRecommended RiskEventType = "emergency_stop_recommended"
	RiskEventDailyLossBreach          RiskEventType = "daily_loss_breach"
	RiskEventRecoveryExecuted         RiskEventType = "recovery_executed"
	RiskEventConcentrationWarning     RiskEventType = "concentration_warning"
	RiskEventCorrelationWarning       RiskEventType = "correlation_warning"
	RiskEventCriticalRisk             RiskEventType = "critical_risk"
)

// RiskEvent records one risk action or violation
type RiskEvent struct {
	ID        string        `json:"id"`
	Type      RiskEventType `json:"type"`
	AccountID string        `json:"account_id,omitempty"`
	Severity  Severity      `json:"severity"`
	Message   string        `json:"message"`
	CreatedAt time.Time     `json:"created_at"`
}

// NewRiskEvent builds a risk event with a generated ID.
func NewRiskEvent(eventType RiskEventType, accountID string, severity Severity, message string) *RiskEvent {
	return &RiskEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		AccountID: accountID,
		Severity:  severity,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
}

// RecoveryConditionType classifies recovery plan gate conditions
type RecoveryConditionType string

const (
	RecoveryConditionTimeElapsed        RecoveryConditionType = "time_elapsed"
	RecoveryConditionRiskLevelImproved  RecoveryConditionType = "risk_level_improved"
	RecoveryConditionDailyLossRecovered RecoveryConditionType = "daily_loss_recovered"
)

// RecoveryCondition is one gate on a recovery plan; satisfying any one
// condition fires the plan.
type RecoveryCondition struct {
	Type         RecoveryConditionType `json:"type"`
	ElapsedHours float64               `json:"elapsed_hours,omitempty"`
}

// RecoveryActionType classifies recovery plan actions
type RecoveryActionType string

const (
	RecoveryActionAdjustLimits  RecoveryActionType = "adjust_limits"
	RecoveryActionResumeTrading RecoveryActionType = "resume_trading"
)

// RecoveryAction is one ordered step executed when a plan fires
type RecoveryAction struct {
	Type   RecoveryActionType `json:"type"`
	Limits *RiskLimitsPatch   `json:"limits,omitempty"`
}

// RecoveryPlan is a deferred, condition-gated action sequence that
// re-enables a paused account. Executed at most once.
type RecoveryPlan struct {
	AccountID    string `json:"account_id"`
	RecoveryType string `json:"recovery_type"`
	// BaselineLevel is the risk level at plan creation; the improvement
	// condition requires moving strictly below it.
	BaselineLevel RiskLevel           `json:"baseline_level,omitempty"`
	Conditions    []RecoveryCondition `json:"conditions"`
	Actions       []RecoveryAction    `json:"actions"`
	CreatedAt     time.Time           `json:"created_at"`
	ExecutedAt    *time.Time          `json:"executed_at,omitempty"`
	Active        bool                `json:"active"`
}
