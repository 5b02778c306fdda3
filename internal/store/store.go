package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fleetoms/fleet/internal/allocator"
	"github.com/fleetoms/fleet/pkg/types"
)

const stateFile = "fleet_state.json"

// FleetState is the persisted fleet snapshot used for restart recovery.
type FleetState struct {
	Master      *types.Account            `json:"master,omitempty"`
	SubAccounts map[string]*types.Account `json:"sub_accounts"`
	Allocator   *allocator.State          `json:"allocator,omitempty"`
	Stats       FleetStats                `json:"stats"`
	SavedAt     time.Time                 `json:"saved_at"`
}

// FleetStats are aggregate counters carried across restarts.
type FleetStats struct {
	AccountCount      int `json:"account_count"`
	ActiveAllocations int `json:"active_allocations"`
	TotalTrades       int `json:"total_trades"`
}

// Store persists fleet state as a JSON snapshot under the data
// directory. Writes go through a temp file and rename so a crash
// mid-write never leaves a truncated snapshot.
type Store struct {
	dataDir string
}

// New creates the data directory if needed.
func New(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dataDir, err)
	}
	return &Store{dataDir: dataDir}, nil
}

// SaveState writes the snapshot atomically.
func (s *Store) SaveState(state *FleetState) error {
	state.SavedAt = time.Now().UTC()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal fleet state: %w", err)
	}

	path := filepath.Join(s.dataDir, stateFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write fleet state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace fleet state: %w", err)
	}
	return nil
}

// LoadState reads the last saved snapshot. Returns (nil, nil) when no
// snapshot exists yet.
func (s *Store) LoadState() (*FleetState, error) {
	path := filepath.Join(s.dataDir, stateFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read fleet state: %w", err)
	}

	var state FleetState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fleet state: %w", err)
	}
	return &state, nil
}
