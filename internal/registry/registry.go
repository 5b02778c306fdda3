package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/fleetoms/fleet/internal/exchange"
	"github.com/fleetoms/fleet/internal/keystore"
	"github.com/fleetoms/fleet/pkg/types"
)

// Registry owns the catalog of accounts and their live API sessions.
// Accounts are registered during system initialization and never removed
// at runtime; a failed session marks the account but keeps it in the
// catalog.
type Registry struct {
	mu sync.RWMutex

	accounts map[string]*types.Account
	sessions map[string]exchange.Client
	masterID string

	resolver keystore.Resolver
	factory  exchange.Factory
	logger   *logrus.Entry
}

// AccountConfig carries the fields needed to register one account.
type AccountConfig struct {
	ID            string
	Name          string
	Type          types.AccountType
	CredentialRef string
	Trading       types.TradingConfig
	Limits        *types.RiskLimitsPatch
}

// New creates an empty registry.
func New(resolver keystore.Resolver, factory exchange.Factory) *Registry {
	return &Registry{
		accounts: make(map[string]*types.Account),
		sessions: make(map[string]exchange.Client),
		resolver: resolver,
		factory:  factory,
		logger:   logrus.WithField("component", "registry"),
	}
}

// Register creates an account from configuration and opens its API
// session. Duplicate IDs and a second master account are configuration
// errors; a session construction failure leaves the account registered
// with status error.
func (r *Registry) Register(cfg AccountConfig) (*types.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cfg.ID == "" {
		return nil, types.NewConfigurationError("id", "account id is required")
	}
	if _, exists := r.accounts[cfg.ID]; exists {
		return nil, types.NewConfigurationError("id", "account %q already registered", cfg.ID)
	}
	if !cfg.Type.Valid() {
		return nil, types.NewConfigurationError("type", "unknown account type %q", cfg.Type)
	}
	if cfg.Type == types.AccountTypeMaster && r.masterID != "" {
		return nil, types.NewConfigurationError("type",
			"master account already registered as %q", r.masterID)
	}

	creds, err := r.resolver.Resolve(cfg.CredentialRef)
	if err != nil {
		return nil, types.NewConfigurationError("credential_ref",
			"account %q: %v", cfg.ID, err)
	}

	now := time.Now().UTC()
	account := &types.Account{
		ID:            cfg.ID,
		Name:          cfg.Name,
		Type:          cfg.Type,
		CredentialRef: cfg.CredentialRef,
		Status:        types.AccountStatusInitializing,
		Trading:       cfg.Trading,
		Limits:        cfg.Limits,
		Performance:   types.AccountPerformance{TotalPnL: decimal.Zero, UpdatedAt: now},
		CreatedAt:     now,
	}

	client, err := r.factory(account, creds.APIKey, creds.APISecret)
	if err != nil {
		account.Status = types.AccountStatusError
		account.ErrorCount++
		account.LastError = err.Error()
		r.logger.Errorf("session setup failed for account %s: %v", cfg.ID, err)
	} else {
		account.Status = types.AccountStatusActive
		r.sessions[cfg.ID] = client
	}

	r.accounts[cfg.ID] = account
	if cfg.Type == types.AccountTypeMaster {
		r.masterID = cfg.ID
	}

	r.logger.Infof("registered account %s (%s), status %s", cfg.ID, cfg.Type, account.Status)
	return account, nil
}

// Get returns the account, or nil when unknown.
func (r *Registry) Get(accountID string) *types.Account {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.accounts[accountID]
}

// Master returns the master account, or nil when none registered.
func (r *Registry) Master() *types.Account {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.masterID == "" {
		return nil
	}
	return r.accounts[r.masterID]
}

// List returns all accounts ordered by ID.
func (r *Registry) List() []*types.Account {
	r.mu.RLock()
	defer r.mu.RUnlock()

	accounts := make([]*types.Account, 0, len(r.accounts))
	for _, account := range r.accounts {
		accounts = append(accounts, account)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts
}

// Client returns the live API session for an account.
func (r *Registry) Client(accountID string) (exchange.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	client, exists := r.sessions[accountID]
	if !exists {
		return nil, fmt.Errorf("no session for account %s", accountID)
	}
	return client, nil
}

// SetStatus transitions an account's status.
func (r *Registry) SetStatus(accountID string, status types.AccountStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, exists := r.accounts[accountID]
	if !exists {
		return fmt.Errorf("account %s not found", accountID)
	}
	if !status.Valid() {
		return fmt.Errorf("unknown account status %q", status)
	}

	account.Status = status
	return nil
}

// RecordError increments an account's error counter and stores the last
// error. It never auto-disables the account.
func (r *Registry) RecordError(accountID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, exists := r.accounts[accountID]
	if !exists {
		return
	}

	account.ErrorCount++
	account.LastError = err.Error()
	r.logger.Warnf("account %s error #%d: %v", accountID, account.ErrorCount, err)
}

// RecordTrade updates an account's running performance counters.
func (r *Registry) RecordTrade(accountID string, win bool, pnl decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, exists := r.accounts[accountID]
	if !exists {
		return
	}

	account.Performance.TotalTrades++
	if win {
		account.Performance.WinningTrades++
	}
	account.Performance.TotalPnL = account.Performance.TotalPnL.Add(pnl)
	account.Performance.UpdatedAt = time.Now().UTC()
}

// TouchSync records the time of the last successful exchange read.
func (r *Registry) TouchSync(accountID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if account, exists := r.accounts[accountID]; exists {
		account.LastSync = time.Now().UTC()
	}
}

// EffectiveLimits returns the global defaults with the account's
// field-wise overrides applied.
func (r *Registry) EffectiveLimits(accountID string, defaults types.RiskLimits) types.RiskLimits {
	r.mu.RLock()
	defer r.mu.RUnlock()

	limits := defaults
	if account, exists := r.accounts[accountID]; exists {
		account.Limits.Apply(&limits)
	}
	return limits
}

// PatchLimits merges a limits patch into the account's override set.
func (r *Registry) PatchLimits(accountID string, patch *types.RiskLimitsPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, exists := r.accounts[accountID]
	if !exists {
		return fmt.Errorf("account %s not found", accountID)
	}
	if patch == nil {
		return nil
	}

	if account.Limits == nil {
		account.Limits = &types.RiskLimitsPatch{}
	}
	merged := *account.Limits
	if patch.DailyLossLimitPct != nil {
		merged.DailyLossLimitPct = patch.DailyLossLimitPct
	}
	if patch.MaxDrawdownPct != nil {
		merged.MaxDrawdownPct = patch.MaxDrawdownPct
	}
	if patch.MaxPositionPct != nil {
		merged.MaxPositionPct = patch.MaxPositionPct
	}
	if patch.MaxLeverage != nil {
		merged.MaxLeverage = patch.MaxLeverage
	}
	if patch.MaxCorrelation != nil {
		merged.MaxCorrelation = patch.MaxCorrelation
	}
	if patch.MaxAccountConcentration != nil {
		merged.MaxAccountConcentration = patch.MaxAccountConcentration
	}
	if patch.MaxSymbolConcentration != nil {
		merged.MaxSymbolConcentration = patch.MaxSymbolConcentration
	}
	if patch.MinFreeMarginPct != nil {
		merged.MinFreeMarginPct = patch.MinFreeMarginPct
	}
	account.Limits = &merged
	return nil
}
