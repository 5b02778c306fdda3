package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// AllocationStatus represents the lifecycle state of a strategy allocation
type AllocationStatus string

const (
	AllocationStatusPending       AllocationStatus = "pending"
	AllocationStatusActive        AllocationStatus = "active"
	AllocationStatusTransitioning AllocationStatus = "transitioning"
	AllocationStatusPaused        AllocationStatus = "paused"
	AllocationStatusStopped       AllocationStatus = "stopped"
	AllocationStatusError         AllocationStatus = "error"
)

// AllocationParams holds the trading parameters bound to an allocation
type AllocationParams struct {
	PositionSizePct   float64 `json:"position_size_pct"`
	Leverage          int     `json:"leverage"`
	MaxPositions      int     `json:"max_positions"`
	DailyLossLimitPct float64 `json:"daily_loss_limit_pct"`
	MaxDrawdownPct    float64 `json:"max_drawdown_pct"`
}

// AllocationParamsPatch lists the overridable allocation parameters.
// Nil fields are left untouched by Apply.
type AllocationParamsPatch struct {
	PositionSizePct   *float64 `json:"position_size_pct,omitempty"`
	Leverage          *int     `json:"leverage,omitempty"`
	MaxPositions      *int     `json:"max_positions,omitempty"`
	DailyLossLimitPct *float64 `json:"daily_loss_limit_pct,omitempty"`
	MaxDrawdownPct    *float64 `json:"max_drawdown_pct,omitempty"`
}

// Apply merges non-nil patch fields into params.
func (p *AllocationParamsPatch) Apply(params *AllocationParams) {
	if p == nil {
		return
	}
	if p.PositionSizePct != nil {
		params.PositionSizePct = *p.PositionSizePct
	}
	if p.Leverage != nil {
		params.Leverage = *p.Leverage
	}
	if p.MaxPositions != nil {
		params.MaxPositions = *p.MaxPositions
	}
	if p.DailyLossLimitPct != nil {
		params.DailyLossLimitPct = *p.DailyLossLimitPct
	}
	if p.MaxDrawdownPct != nil {
		params.MaxDrawdownPct = *p.MaxDrawdownPct
	}
}

// AllocationPerformance tracks trade counters for an allocation
type AllocationPerformance struct {
	TotalTrades   int             `json:"total_trades"`
	WinningTrades int             `json:"winning_trades"`
	TotalPnL      decimal.Decimal `json:"total_pnl"`
}

// StrategyAllocation binds one strategy and symbol set to one account
type StrategyAllocation struct {
	AllocationID string                `json:"allocation_id"`
	AccountID    string                `json:"account_id"`
	Strategy     string                `json:"strategy"`
	Symbols      []string              `json:"symbols"`
	Status       AllocationStatus      `json:"status"`
	Params       AllocationParams      `json:"params"`
	Performance  AllocationPerformance `json:"performance"`
	CreatedAt    time.Time             `json:"created_at"`
	ActivatedAt  *time.Time            `json:"activated_at,omitempty"`
	LastTradeAt  *time.Time            `json:"last_trade_at,omitempty"`
	ErrorCount   int                   `json:"error_count"`
	LastError    string                `json:"last_error,omitempty"`
}

// HasSymbol reports whether the allocation currently claims the symbol.
func (a *StrategyAllocation) HasSymbol(symbol string) bool {
	for _, s := range a.Symbols {
		if s == symbol {
			return true
		}
	}
	return false
}

// ConflictType classifies an allocation conflict
type ConflictType string

const (
	ConflictSymbolOverlap        ConflictType = "symbol_overlap"
	ConflictStrategyIncompatible ConflictType = "strategy_incompatible"
	ConflictResourceLimit        ConflictType = "resource_limit"
	ConflictRiskLimit            ConflictType = "risk_limit"
)

// Severity grades conflicts and risk events
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AllocationConflict describes why a candidate allocation clashes with
// existing state on the same account.
type AllocationConflict struct {
	ConflictID           string       `json:"conflict_id"`
	Type                 ConflictType `json:"type"`
	AccountID            string       `json:"account_id"`
	Symbol               string       `json:"symbol,omitempty"`
	ExistingAllocationID string       `json:"existing_allocation_id,omitempty"`
	CandidateStrategy    string       `json:"candidate_strategy"`
	Severity             Severity     `json:"severity"`
	Resolved             bool         `json:"resolved"`
	Resolution           string       `json:"resolution,omitempty"`
	DetectedAt           time.Time    `json:"detected_at"`
}

// ConflictMode selects the deployment-wide conflict resolution policy
type ConflictMode string

const (
	// ConflictModePrevent rejects the request and returns the conflicts.
	ConflictModePrevent ConflictMode = "prevent"
	// ConflictModeAutoResolve shrinks the existing allocation's symbol set
	// for symbol overlaps; strategy incompatibility still rejects.
	ConflictModeAutoResolve ConflictMode = "auto_resolve"
	// ConflictModeManual always rejects, surfacing conflicts for an operator.
	ConflictModeManual ConflictMode = "manual"
)

// Valid reports whether the conflict mode is a known value.
func (m ConflictMode) Valid() bool {
	switch m {
	case ConflictModePrevent, ConflictModeAutoResolve, ConflictModeManual:
		return true
	}
	return false
}
