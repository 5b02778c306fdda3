package allocator

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fleetoms/fleet/internal/registry"
	"github.com/fleetoms/fleet/pkg/types"
)

const resolvedConflictLogCap = 200

// Config holds allocator settings.
type Config struct {
	Mode                     types.ConflictMode
	MaxAllocationsPerAccount int
	MaxSymbolsPerAllocation  int
	KnownStrategies          []string
}

// Allocator assigns strategies and symbol sets to accounts, detecting
// and resolving conflicts. All index mutation happens under a single
// mutex; validation and mutation are one critical section so callers
// never observe partial updates.
type Allocator struct {
	mu sync.Mutex

	allocations map[string]*types.StrategyAllocation
	byAccount   map[string][]string          // account -> allocation IDs
	symbolIndex map[string]map[string]string // account -> symbol -> allocation ID

	resolvedConflicts []*types.AllocationConflict

	registry   *registry.Registry
	notifier   types.Notifier
	config     Config
	strategies map[string]bool
	logger     *logrus.Entry
}

// New creates an allocator.
func New(reg *registry.Registry, notifier types.Notifier, config Config) *Allocator {
	if config.MaxAllocationsPerAccount <= 0 {
		config.MaxAllocationsPerAccount = 3
	}
	if config.MaxSymbolsPerAllocation <= 0 {
		config.MaxSymbolsPerAllocation = 10
	}
	if !config.Mode.Valid() {
		config.Mode = types.ConflictModePrevent
	}

	strategies := make(map[string]bool, len(config.KnownStrategies))
	for _, s := range config.KnownStrategies {
		strategies[s] = true
	}

	return &Allocator{
		allocations: make(map[string]*types.StrategyAllocation),
		byAccount:   make(map[string][]string),
		symbolIndex: make(map[string]map[string]string),
		registry:    reg,
		notifier:    notifier,
		config:      config,
		strategies:  strategies,
		logger:      logrus.WithField("component", "allocator"),
	}
}

// Allocate binds a strategy and symbol set to an account. Returned
// conflicts explain a rejection; in auto-resolve mode resolved symbol
// overlaps are returned with Resolved set.
func (a *Allocator) Allocate(accountID, strategy string, symbols []string, params types.AllocationParams) (*types.StrategyAllocation, []*types.AllocationConflict, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.registry.Get(accountID) == nil {
		return nil, nil, types.NewAllocationError(types.AllocationErrUnknownAccount,
			"account %q is not registered", accountID)
	}
	if len(a.byAccount[accountID]) >= a.config.MaxAllocationsPerAccount {
		return nil, nil, types.NewAllocationError(types.AllocationErrCapacityExceeded,
			"account %q already holds %d allocations (cap %d)",
			accountID, len(a.byAccount[accountID]), a.config.MaxAllocationsPerAccount)
	}

	symbols = dedupe(symbols)
	if len(symbols) == 0 {
		return nil, nil, types.NewAllocationError(types.AllocationErrInvalidRequest,
			"symbol set is empty")
	}
	if len(symbols) > a.config.MaxSymbolsPerAllocation {
		return nil, nil, types.NewAllocationError(types.AllocationErrInvalidRequest,
			"symbol set size %d exceeds cap %d", len(symbols), a.config.MaxSymbolsPerAllocation)
	}
	if !a.strategies[strategy] {
		return nil, nil, types.NewAllocationError(types.AllocationErrUnknownStrategy,
			"strategy %q is not known", strategy)
	}

	conflicts := a.detectConflicts(accountID, strategy, symbols, "")
	if len(conflicts) > 0 {
		switch a.config.Mode {
		case types.ConflictModeAutoResolve:
			if hasIncompatible(conflicts) {
				return nil, conflicts, a.rejectWithConflicts(accountID, strategy, conflicts)
			}
			a.autoResolveOverlaps(conflicts)
		default: // prevent, manual
			return nil, conflicts, a.rejectWithConflicts(accountID, strategy, conflicts)
		}
	}

	now := time.Now().UTC()
	allocation := &types.StrategyAllocation{
		AllocationID: uuid.NewString(),
		AccountID:    accountID,
		Strategy:     strategy,
		Symbols:      symbols,
		Status:       types.AllocationStatusActive,
		Params:       params,
		CreatedAt:    now,
		ActivatedAt:  &now,
	}

	a.allocations[allocation.AllocationID] = allocation
	a.byAccount[accountID] = append(a.byAccount[accountID], allocation.AllocationID)
	a.claimSymbols(accountID, symbols, allocation.AllocationID)

	a.logger.Infof("allocated %s: strategy %s on %s, symbols %v",
		allocation.AllocationID, strategy, accountID, symbols)
	return allocation, conflicts, nil
}

// Reallocate replaces an allocation's symbol set and/or parameters.
// Conflict detection runs against the new symbols excluding the
// allocation's own prior claims; on failure the allocation moves to
// error and no index entry changes.
func (a *Allocator) Reallocate(allocationID string, newSymbols []string, patch *types.AllocationParamsPatch) ([]*types.AllocationConflict, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	allocation, exists := a.allocations[allocationID]
	if !exists {
		return nil, types.NewAllocationError(types.AllocationErrNotFound,
			"allocation %q not found", allocationID)
	}

	prevStatus := allocation.Status
	allocation.Status = types.AllocationStatusTransitioning

	symbols := allocation.Symbols
	if newSymbols != nil {
		symbols = dedupe(newSymbols)
		if len(symbols) == 0 || len(symbols) > a.config.MaxSymbolsPerAllocation {
			allocation.Status = types.AllocationStatusError
			allocation.ErrorCount++
			allocation.LastError = "invalid symbol set"
			return nil, types.NewAllocationError(types.AllocationErrInvalidRequest,
				"symbol set size %d out of range", len(symbols))
		}
	}

	conflicts := a.detectConflicts(allocation.AccountID, allocation.Strategy, symbols, allocationID)
	if len(conflicts) > 0 {
		allocation.Status = types.AllocationStatusError
		allocation.ErrorCount++
		allocation.LastError = fmt.Sprintf("reallocation blocked by %d conflict(s)", len(conflicts))
		return conflicts, a.rejectWithConflicts(allocation.AccountID, allocation.Strategy, conflicts)
	}

	a.releaseSymbols(allocation.AccountID, allocation.Symbols, allocationID)
	a.claimSymbols(allocation.AccountID, symbols, allocationID)
	allocation.Symbols = symbols
	patch.Apply(&allocation.Params)

	if prevStatus == types.AllocationStatusTransitioning || prevStatus == types.AllocationStatusError {
		prevStatus = types.AllocationStatusActive
	}
	allocation.Status = prevStatus
	if allocation.Status == types.AllocationStatusActive {
		allocation.LastError = ""
	}

	a.logger.Infof("reallocated %s: symbols %v", allocationID, symbols)
	return nil, nil
}

// Pause moves an active allocation to paused.
func (a *Allocator) Pause(allocationID string) error {
	return a.transition(allocationID, types.AllocationStatusActive, types.AllocationStatusPaused)
}

// Resume moves a paused allocation back to active.
func (a *Allocator) Resume(allocationID string) error {
	return a.transition(allocationID, types.AllocationStatusPaused, types.AllocationStatusActive)
}

func (a *Allocator) transition(allocationID string, from, to types.AllocationStatus) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	allocation, exists := a.allocations[allocationID]
	if !exists {
		return types.NewAllocationError(types.AllocationErrNotFound,
			"allocation %q not found", allocationID)
	}
	if allocation.Status != from {
		return fmt.Errorf("allocation %s is %s, expected %s", allocationID, allocation.Status, from)
	}

	allocation.Status = to
	return nil
}

// Stop halts an allocation. When cleanup is true its index entries and
// record are removed; otherwise the stopped record is retained.
func (a *Allocator) Stop(allocationID string, cleanup bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	allocation, exists := a.allocations[allocationID]
	if !exists {
		return types.NewAllocationError(types.AllocationErrNotFound,
			"allocation %q not found", allocationID)
	}

	allocation.Status = types.AllocationStatusStopped

	if cleanup {
		a.releaseSymbols(allocation.AccountID, allocation.Symbols, allocationID)
		ids := a.byAccount[allocation.AccountID]
		for i, id := range ids {
			if id == allocationID {
				a.byAccount[allocation.AccountID] = append(ids[:i], ids[i+1:]...)
				break
			}
		}
		delete(a.allocations, allocationID)
	}

	a.logger.Infof("stopped allocation %s (cleanup=%v)", allocationID, cleanup)
	return nil
}

// Get returns an allocation by ID, or nil.
func (a *Allocator) Get(allocationID string) *types.StrategyAllocation {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.allocations[allocationID]
}

// ActiveByAccount returns the account's allocations with active status.
func (a *Allocator) ActiveByAccount(accountID string) []*types.StrategyAllocation {
	a.mu.Lock()
	defer a.mu.Unlock()

	var active []*types.StrategyAllocation
	for _, id := range a.byAccount[accountID] {
		if alloc := a.allocations[id]; alloc != nil && alloc.Status == types.AllocationStatusActive {
			active = append(active, alloc)
		}
	}
	return active
}

// MapSummary totals for AllocationMap.
type MapSummary struct {
	Total  int `json:"total"`
	Active int `json:"active"`
	Paused int `json:"paused"`
}

// AllocationMap is the operator-facing view of allocation state.
type AllocationMap struct {
	Summary        MapSummary                                  `json:"summary"`
	ByAccount      map[string][]*types.StrategyAllocation      `json:"by_account"`
	ByStrategy     map[string][]string                         `json:"by_strategy"`
	SymbolCoverage map[string][]string                         `json:"symbol_coverage"`
}

// Map returns the current allocation map.
func (a *Allocator) Map() *AllocationMap {
	a.mu.Lock()
	defer a.mu.Unlock()

	result := &AllocationMap{
		ByAccount:      make(map[string][]*types.StrategyAllocation),
		ByStrategy:     make(map[string][]string),
		SymbolCoverage: make(map[string][]string),
	}

	for _, allocation := range a.allocations {
		result.Summary.Total++
		switch allocation.Status {
		case types.AllocationStatusActive:
			result.Summary.Active++
		case types.AllocationStatusPaused:
			result.Summary.Paused++
		}

		copied := *allocation
		result.ByAccount[allocation.AccountID] = append(result.ByAccount[allocation.AccountID], &copied)
		result.ByStrategy[allocation.Strategy] = append(result.ByStrategy[allocation.Strategy], allocation.AllocationID)

		if allocation.Status == types.AllocationStatusActive {
			for _, symbol := range allocation.Symbols {
				result.SymbolCoverage[symbol] = append(result.SymbolCoverage[symbol], allocation.AccountID)
			}
		}
	}

	for _, accounts := range result.SymbolCoverage {
		sort.Strings(accounts)
	}
	return result
}

// ResolvedConflicts returns the bounded resolved-conflict log.
func (a *Allocator) ResolvedConflicts() []*types.AllocationConflict {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]*types.AllocationConflict, len(a.resolvedConflicts))
	copy(out, a.resolvedConflicts)
	return out
}

// detectConflicts scans the account's active allocations for symbol
// overlaps and strategy incompatibilities. excludeID skips an
// allocation's own claims during reallocation.
func (a *Allocator) detectConflicts(accountID, strategy string, symbols []string, excludeID string) []*types.AllocationConflict {
	var conflicts []*types.AllocationConflict
	now := time.Now().UTC()

	claims := a.symbolIndex[accountID]
	for _, symbol := range symbols {
		holderID, occupied := claims[symbol]
		if !occupied || holderID == excludeID {
			continue
		}
		holder := a.allocations[holderID]
		if holder == nil || holder.Status != types.AllocationStatusActive {
			continue
		}
		conflicts = append(conflicts, &types.AllocationConflict{
			ConflictID:           uuid.NewString(),
			Type:                 types.ConflictSymbolOverlap,
			AccountID:            accountID,
			Symbol:               symbol,
			ExistingAllocationID: holderID,
			CandidateStrategy:    strategy,
			Severity:             types.SeverityHigh,
			DetectedAt:           now,
		})
	}

	for _, id := range a.byAccount[accountID] {
		if id == excludeID {
			continue
		}
		other := a.allocations[id]
		if other == nil || other.Status != types.AllocationStatusActive {
			continue
		}
		if !compatible(strategy, other.Strategy) {
			conflicts = append(conflicts, &types.AllocationConflict{
				ConflictID:           uuid.NewString(),
				Type:                 types.ConflictStrategyIncompatible,
				AccountID:            accountID,
				ExistingAllocationID: id,
				CandidateStrategy:    strategy,
				Severity:             types.SeverityCritical,
				DetectedAt:           now,
			})
		}
	}

	return conflicts
}

// autoResolveOverlaps shrinks the existing allocation's symbol set to
// free each overlapping claim. Only symbol overlaps are ever resolved;
// the asymmetry with strategy incompatibility is deliberate.
func (a *Allocator) autoResolveOverlaps(conflicts []*types.AllocationConflict) {
	for _, conflict := range conflicts {
		if conflict.Type != types.ConflictSymbolOverlap {
			continue
		}

		holder := a.allocations[conflict.ExistingAllocationID]
		if holder != nil {
			remaining := holder.Symbols[:0:0]
			for _, s := range holder.Symbols {
				if s != conflict.Symbol {
					remaining = append(remaining, s)
				}
			}
			holder.Symbols = remaining
		}
		delete(a.symbolIndex[conflict.AccountID], conflict.Symbol)

		conflict.Resolved = true
		conflict.Resolution = fmt.Sprintf("removed %s from allocation %s",
			conflict.Symbol, conflict.ExistingAllocationID)
		a.resolvedConflicts = append(a.resolvedConflicts, conflict)
		if len(a.resolvedConflicts) > resolvedConflictLogCap {
			a.resolvedConflicts = a.resolvedConflicts[len(a.resolvedConflicts)-resolvedConflictLogCap:]
		}

		a.logger.Infof("auto-resolved symbol overlap: %s", conflict.Resolution)
	}
}

func (a *Allocator) rejectWithConflicts(accountID, strategy string, conflicts []*types.AllocationConflict) error {
	if a.notifier != nil {
		a.notifier.Notify(&types.Alert{
			EventType: "allocation_conflict",
			Title:     "Allocation request blocked",
			Message: fmt.Sprintf("strategy %s on account %s blocked by %d conflict(s)",
				strategy, accountID, len(conflicts)),
			Priority: types.AlertPriorityNormal,
		})
	}
	return &types.AllocationError{
		Reason:    types.AllocationErrConflictBlocked,
		Message:   fmt.Sprintf("%d conflict(s) detected", len(conflicts)),
		Conflicts: conflicts,
	}
}

func (a *Allocator) claimSymbols(accountID string, symbols []string, allocationID string) {
	if a.symbolIndex[accountID] == nil {
		a.symbolIndex[accountID] = make(map[string]string)
	}
	for _, symbol := range symbols {
		a.symbolIndex[accountID][symbol] = allocationID
	}
}

func (a *Allocator) releaseSymbols(accountID string, symbols []string, allocationID string) {
	claims := a.symbolIndex[accountID]
	for _, symbol := range symbols {
		if claims[symbol] == allocationID {
			delete(claims, symbol)
		}
	}
}

func hasIncompatible(conflicts []*types.AllocationConflict) bool {
	for _, c := range conflicts {
		if c.Type == types.ConflictStrategyIncompatible {
			return true
		}
	}
	return false
}

func dedupe(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := symbols[:0:0]
	for _, s := range symbols {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
