package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetoms/fleet/pkg/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fleet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
accounts:
  - id: master
    type: master
    credential_ref: "env:MASTER"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "prevent", cfg.Allocator.ConflictMode)
	assert.Equal(t, 3, cfg.Allocator.MaxAllocationsPerAccount)
	assert.Equal(t, 10, cfg.Allocator.MaxSymbolsPerAllocation)
	assert.Contains(t, cfg.Allocator.KnownStrategies, "grid")
	assert.Equal(t, 30*time.Second, cfg.Risk.CheckInterval)
	assert.Equal(t, "00:00", cfg.Risk.DailyResetUTC)
	assert.Equal(t, time.Minute, cfg.Monitor.PollInterval)
	assert.Equal(t, 10*time.Second, cfg.Monitor.AccountTimeout)
	assert.Equal(t, 24*time.Hour, cfg.Monitor.HistoryRetention)
	assert.Equal(t, 20, cfg.Monitor.MinCorrelationDays)
	assert.Equal(t, types.DefaultRiskLimits(), cfg.Risk.Limits)
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
allocator:
  conflict_mode: auto_resolve
risk:
  check_interval: 15s
  limits:
    daily_loss_limit_pct: 3.0
    max_leverage: 5
accounts:
  - id: master
    type: master
    credential_ref: "env:MASTER"
  - id: sub-1
    type: sub_futures
    credential_ref: "vault:fleet/sub-1"
    strategy: grid
    symbols: [BTCUSDT, ETHUSDT]
    leverage: 3
    position_size_pct: 10.0
    limits:
      daily_loss_limit_pct: 2.0
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "auto_resolve", cfg.Allocator.ConflictMode)
	assert.Equal(t, 15*time.Second, cfg.Risk.CheckInterval)
	assert.Equal(t, 3.0, cfg.Risk.Limits.DailyLossLimitPct)
	assert.Equal(t, 5.0, cfg.Risk.Limits.MaxLeverage)
	// unset limit fields keep their defaults
	assert.Equal(t, 15.0, cfg.Risk.Limits.MaxDrawdownPct)

	require.Len(t, cfg.Accounts, 2)
	sub := cfg.Accounts[1]
	assert.Equal(t, "grid", sub.Strategy)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, sub.Symbols)
	assert.Equal(t, 3, sub.Leverage)
	require.NotNil(t, sub.Limits)
	require.NotNil(t, sub.Limits.DailyLossLimitPct)
	assert.Equal(t, 2.0, *sub.Limits.DailyLossLimitPct)
	assert.Nil(t, sub.Limits.MaxLeverage)
}

func TestLoadRejectsTwoMasters(t *testing.T) {
	path := writeConfig(t, `
accounts:
  - id: master-1
    type: master
    credential_ref: "env:A"
  - id: master-2
    type: master
    credential_ref: "env:B"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one master")
}

func TestLoadRejectsMissingMaster(t *testing.T) {
	path := writeConfig(t, `
accounts:
  - id: sub-1
    type: sub_spot
    credential_ref: "env:A"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one master")
}

func TestLoadRejectsDuplicateAccountID(t *testing.T) {
	path := writeConfig(t, `
accounts:
  - id: master
    type: master
    credential_ref: "env:A"
  - id: master
    type: sub_spot
    credential_ref: "env:B"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate account id")
}

func TestLoadRejectsUnknownAccountType(t *testing.T) {
	path := writeConfig(t, `
accounts:
  - id: master
    type: margin
    credential_ref: "env:A"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown type")
}

func TestLoadRejectsMissingCredentialRef(t *testing.T) {
	path := writeConfig(t, `
accounts:
  - id: master
    type: master
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credential_ref")
}

func TestLoadRejectsUnknownConflictMode(t *testing.T) {
	path := writeConfig(t, `
allocator:
  conflict_mode: yolo
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conflict_mode")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
