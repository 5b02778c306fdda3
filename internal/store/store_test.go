package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetoms/fleet/internal/allocator"
	"github.com/fleetoms/fleet/pkg/types"
)

func sampleState() *FleetState {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &FleetState{
		Master: &types.Account{
			ID:     "master",
			Type:   types.AccountTypeMaster,
			Status: types.AccountStatusActive,
			Performance: types.AccountPerformance{
				TotalTrades: 42, WinningTrades: 30,
				TotalPnL: decimal.NewFromFloat(1234.56), UpdatedAt: now,
			},
			CreatedAt: now,
		},
		SubAccounts: map[string]*types.Account{
			"sub-1": {
				ID:     "sub-1",
				Type:   types.AccountTypeSubFutures,
				Status: types.AccountStatusPaused,
				Trading: types.TradingConfig{
					Strategy: "grid", Symbols: []string{"BTCUSDT"}, Leverage: 3,
				},
				CreatedAt: now,
			},
		},
		Allocator: &allocator.State{
			Allocations: map[string]*types.StrategyAllocation{
				"a-1": {
					AllocationID: "a-1",
					AccountID:    "sub-1",
					Strategy:     "grid",
					Symbols:      []string{"BTCUSDT", "ETHUSDT"},
					Status:       types.AllocationStatusActive,
					Params:       types.AllocationParams{PositionSizePct: 10, Leverage: 3},
					CreatedAt:    now,
				},
			},
			ByAccount:   map[string][]string{"sub-1": {"a-1"}},
			SymbolIndex: map[string]map[string]string{"sub-1": {"BTCUSDT": "a-1", "ETHUSDT": "a-1"}},
		},
		Stats: FleetStats{AccountCount: 2, ActiveAllocations: 1, TotalTrades: 42},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	state := sampleState()
	require.NoError(t, s.SaveState(state))

	loaded, err := s.LoadState()
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, "master", loaded.Master.ID)
	assert.Equal(t, 42, loaded.Master.Performance.TotalTrades)
	assert.True(t, loaded.Master.Performance.TotalPnL.Equal(decimal.NewFromFloat(1234.56)))

	require.Contains(t, loaded.SubAccounts, "sub-1")
	assert.Equal(t, types.AccountStatusPaused, loaded.SubAccounts["sub-1"].Status)
	assert.Equal(t, "grid", loaded.SubAccounts["sub-1"].Trading.Strategy)

	require.NotNil(t, loaded.Allocator)
	allocation := loaded.Allocator.Allocations["a-1"]
	require.NotNil(t, allocation)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, allocation.Symbols)
	assert.Equal(t, "a-1", loaded.Allocator.SymbolIndex["sub-1"]["BTCUSDT"])

	assert.Equal(t, state.Stats, loaded.Stats)
	assert.False(t, loaded.SavedAt.IsZero())
}

func TestLoadStateMissingFile(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	loaded, err := s.LoadState()
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestSaveStateOverwrites(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	first := sampleState()
	require.NoError(t, s.SaveState(first))

	second := sampleState()
	second.Stats.TotalTrades = 100
	require.NoError(t, s.SaveState(second))

	loaded, err := s.LoadState()
	require.NoError(t, err)
	assert.Equal(t, 100, loaded.Stats.TotalTrades)
}

func TestLoadStateRejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, stateFile), []byte("{truncated"), 0644))

	_, err = s.LoadState()
	assert.Error(t, err)
}

func TestSaveStateLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, s.SaveState(sampleState()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, stateFile, entries[0].Name())
}
