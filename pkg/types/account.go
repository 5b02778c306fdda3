package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountType represents the type of trading account
type AccountType string

const (
	AccountTypeMaster     AccountType = "master"
	AccountTypeSubSpot    AccountType = "sub_spot"
	AccountTypeSubFutures AccountType = "sub_futures"
)

// Valid reports whether the account type is a known value.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeMaster, AccountTypeSubSpot, AccountTypeSubFutures:
		return true
	}
	return false
}

// AccountStatus represents the lifecycle state of an account
type AccountStatus string

const (
	AccountStatusInitializing AccountStatus = "initializing"
	AccountStatusActive       AccountStatus = "active"
	AccountStatusPaused       AccountStatus = "paused"
	AccountStatusDisabled     AccountStatus = "disabled"
	AccountStatusError        AccountStatus = "error"
)

// Valid reports whether the account status is a known value.
func (s AccountStatus) Valid() bool {
	switch s {
	case AccountStatusInitializing, AccountStatusActive, AccountStatusPaused,
		AccountStatusDisabled, AccountStatusError:
		return true
	}
	return false
}

// TradingConfig holds per-account trading parameters
type TradingConfig struct {
	Strategy         string   `json:"strategy,omitempty"`
	Symbols          []string `json:"symbols,omitempty"`
	Leverage         int      `json:"leverage"`
	PositionSizePct  float64  `json:"position_size_pct"`
	MaxOpenPositions int      `json:"max_open_positions"`
}

// AccountPerformance tracks running trade counters for an account
type AccountPerformance struct {
	TotalTrades   int             `json:"total_trades"`
	WinningTrades int             `json:"winning_trades"`
	TotalPnL      decimal.Decimal `json:"total_pnl"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// WinRate returns the fraction of winning trades, 0 when no trades recorded.
func (p AccountPerformance) WinRate() float64 {
	if p.TotalTrades == 0 {
		return 0
	}
	return float64(p.WinningTrades) / float64(p.TotalTrades)
}

// Account represents one exchange login tracked by the registry.
// The ID is immutable after registration; status transitions and the
// performance/error counters are the only mutable fields.
type Account struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	Type          AccountType        `json:"type"`
	CredentialRef string             `json:"credential_ref"`
	Status        AccountStatus      `json:"status"`
	Trading       TradingConfig      `json:"trading"`
	Limits        *RiskLimitsPatch   `json:"limits,omitempty"`
	Performance   AccountPerformance `json:"performance"`
	CreatedAt     time.Time          `json:"created_at"`
	LastSync      time.Time          `json:"last_sync"`
	ErrorCount    int                `json:"error_count"`
	LastError     string             `json:"last_error,omitempty"`
}

// IsMaster reports whether this is the master account.
func (a *Account) IsMaster() bool {
	return a.Type == AccountTypeMaster
}

// Balance represents an account balance snapshot from the exchange
type Balance struct {
	Total         decimal.Decimal `json:"total"`
	Available     decimal.Decimal `json:"available"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// FreeMarginPct returns available/total as a percentage, 0 when total is zero.
func (b *Balance) FreeMarginPct() float64 {
	if b.Total.IsZero() {
		return 0
	}
	return b.Available.Div(b.Total).InexactFloat64() * 100
}

// PositionSide is the direction of an open position
type PositionSide string

const (
	PositionSideLong  PositionSide = "LONG"
	PositionSideShort PositionSide = "SHORT"
)

// Position represents an open position reported by the exchange
type Position struct {
	Symbol     string          `json:"symbol"`
	Side       PositionSide    `json:"side"`
	Size       decimal.Decimal `json:"size"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	MarkPrice  decimal.Decimal `json:"mark_price"`
}

// Notional returns |size * mark price|.
func (p *Position) Notional() decimal.Decimal {
	return p.Size.Mul(p.MarkPrice).Abs()
}
