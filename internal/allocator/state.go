package allocator

import "github.com/fleetoms/fleet/pkg/types"

// State is the serializable snapshot of allocator state used for
// restart recovery.
type State struct {
	Allocations       map[string]*types.StrategyAllocation `json:"allocations"`
	ByAccount         map[string][]string                  `json:"by_account"`
	SymbolIndex       map[string]map[string]string         `json:"symbol_index"`
	ResolvedConflicts []*types.AllocationConflict          `json:"resolved_conflicts,omitempty"`
}

// ExportState copies the current allocator state for persistence.
func (a *Allocator) ExportState() *State {
	a.mu.Lock()
	defer a.mu.Unlock()

	state := &State{
		Allocations: make(map[string]*types.StrategyAllocation, len(a.allocations)),
		ByAccount:   make(map[string][]string, len(a.byAccount)),
		SymbolIndex: make(map[string]map[string]string, len(a.symbolIndex)),
	}

	for id, allocation := range a.allocations {
		copied := *allocation
		copied.Symbols = append([]string(nil), allocation.Symbols...)
		state.Allocations[id] = &copied
	}
	for account, ids := range a.byAccount {
		state.ByAccount[account] = append([]string(nil), ids...)
	}
	for account, claims := range a.symbolIndex {
		copied := make(map[string]string, len(claims))
		for symbol, id := range claims {
			copied[symbol] = id
		}
		state.SymbolIndex[account] = copied
	}
	state.ResolvedConflicts = append([]*types.AllocationConflict(nil), a.resolvedConflicts...)

	return state
}

// ImportState replaces the allocator state wholesale. Used once during
// restart recovery, before the periodic loops start.
func (a *Allocator) ImportState(state *State) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.allocations = make(map[string]*types.StrategyAllocation, len(state.Allocations))
	for id, allocation := range state.Allocations {
		a.allocations[id] = allocation
	}

	a.byAccount = make(map[string][]string, len(state.ByAccount))
	for account, ids := range state.ByAccount {
		a.byAccount[account] = append([]string(nil), ids...)
	}

	a.symbolIndex = make(map[string]map[string]string, len(state.SymbolIndex))
	for account, claims := range state.SymbolIndex {
		copied := make(map[string]string, len(claims))
		for symbol, id := range claims {
			copied[symbol] = id
		}
		a.symbolIndex[account] = copied
	}

	a.resolvedConflicts = append([]*types.AllocationConflict(nil), state.ResolvedConflicts...)
}
