package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountSummary is one account's contribution to the portfolio view
type AccountSummary struct {
	AccountID     string          `json:"account_id"`
	Balance       decimal.Decimal `json:"balance"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	OpenPositions int             `json:"open_positions"`
	Status        AccountStatus   `json:"status"`
}

// PortfolioSummary aggregates balances and PnL across all reachable
// accounts for one monitoring cycle. Accounts whose API failed during
// the cycle are listed in SkippedAccounts and omitted from the totals.
type PortfolioSummary struct {
	TotalBalance       decimal.Decimal       `json:"total_balance"`
	TotalUnrealizedPnL decimal.Decimal       `json:"total_unrealized_pnl"`
	TotalRealizedPnL   decimal.Decimal       `json:"total_realized_pnl"`
	AccountCount       int                   `json:"account_count"`
	PositionCount      int                   `json:"position_count"`
	Accounts           []AccountSummary      `json:"accounts"`
	SkippedAccounts    []string              `json:"skipped_accounts,omitempty"`
	Correlations       *CorrelationMatrix    `json:"correlations,omitempty"`
	UpdatedAt          time.Time             `json:"updated_at"`
}

// CorrelationMatrix holds pairwise daily-return correlations between
// accounts. Only populated when at least two accounts have enough
// return history.
type CorrelationMatrix struct {
	Accounts []string    `json:"accounts"`
	Values   [][]float64 `json:"values"`
	Days     int         `json:"days"`
}

// Pair returns the correlation between two accounts, false when either
// account is not in the matrix.
func (m *CorrelationMatrix) Pair(a, b string) (float64, bool) {
	ai, bi := -1, -1
	for i, id := range m.Accounts {
		if id == a {
			ai = i
		}
		if id == b {
			bi = i
		}
	}
	if ai < 0 || bi < 0 {
		return 0, false
	}
	return m.Values[ai][bi], true
}

// ConcentrationEntry names the holder of the largest exposure share
type ConcentrationEntry struct {
	Name  string  `json:"name"`
	Ratio float64 `json:"ratio"`
}

// RiskConcentration reports exposure shares per account and per symbol,
// as fractions of total portfolio exposure.
type RiskConcentration struct {
	TotalExposure decimal.Decimal    `json:"total_exposure"`
	ByAccount     map[string]float64 `json:"by_account"`
	BySymbol      map[string]float64 `json:"by_symbol"`
	MaxAccount    ConcentrationEntry `json:"max_account"`
	MaxSymbol     ConcentrationEntry `json:"max_symbol"`
	Warnings      []string           `json:"warnings,omitempty"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// AccountPerformanceReport compares accounts for charting
type AccountPerformanceReport struct {
	AccountID      string  `json:"account_id"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
	WinRate        float64 `json:"win_rate"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	SampleDays     int     `json:"sample_days"`
}

// AlertPriority grades notification urgency
type AlertPriority string

const (
	AlertPriorityLow    AlertPriority = "low"
	AlertPriorityNormal AlertPriority = "normal"
	AlertPriorityHigh   AlertPriority = "high"
)

// Alert is a fire-and-forget notification payload
type Alert struct {
	EventType string        `json:"event_type"`
	Title     string        `json:"title"`
	Message   string        `json:"message"`
	Priority  AlertPriority `json:"priority"`
	CreatedAt time.Time     `json:"created_at"`
}

// Notifier delivers alerts to an external collaborator. Implementations
// must not block the caller on delivery failures.
type Notifier interface {
	Notify(alert *Alert) error
}
