package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/fleetoms/fleet/pkg/types"
)

// AccountConfig describes one account to register at startup.
type AccountConfig struct {
	ID            string                 `mapstructure:"id"`
	Name          string                 `mapstructure:"name"`
	Type          string                 `mapstructure:"type"`
	CredentialRef string                 `mapstructure:"credential_ref"`
	Strategy      string                 `mapstructure:"strategy"`
	Symbols       []string               `mapstructure:"symbols"`
	Leverage      int                    `mapstructure:"leverage"`
	PositionPct   float64                `mapstructure:"position_size_pct"`
	MaxPositions  int                    `mapstructure:"max_open_positions"`
	Limits        *types.RiskLimitsPatch `mapstructure:"limits"`
}

// AllocatorConfig holds strategy allocator settings.
type AllocatorConfig struct {
	ConflictMode             string   `mapstructure:"conflict_mode"`
	MaxAllocationsPerAccount int      `mapstructure:"max_allocations_per_account"`
	MaxSymbolsPerAllocation  int      `mapstructure:"max_symbols_per_allocation"`
	KnownStrategies          []string `mapstructure:"known_strategies"`
}

// RiskConfig holds risk manager settings.
type RiskConfig struct {
	CheckInterval time.Duration    `mapstructure:"check_interval"`
	DailyResetUTC string           `mapstructure:"daily_reset_utc"`
	Limits        types.RiskLimits `mapstructure:"limits"`
}

// MonitorConfig holds unified monitor settings.
type MonitorConfig struct {
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	AccountTimeout   time.Duration `mapstructure:"account_timeout"`
	HistoryRetention time.Duration `mapstructure:"history_retention"`
	MinCorrelationDays int         `mapstructure:"min_correlation_days"`
}

// NatsConfig holds notifier settings.
type NatsConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"client_id"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// VaultConfig holds keystore settings.
type VaultConfig struct {
	Addr      string `mapstructure:"addr"`
	Token     string `mapstructure:"token"`
	MountPath string `mapstructure:"mount_path"`
}

// Config is the full process configuration.
type Config struct {
	LogLevel         string          `mapstructure:"log_level"`
	DataDir          string          `mapstructure:"data_dir"`
	SnapshotInterval time.Duration   `mapstructure:"snapshot_interval"`
	ShutdownTimeout  time.Duration   `mapstructure:"shutdown_timeout"`
	Accounts         []AccountConfig `mapstructure:"accounts"`
	Allocator        AllocatorConfig `mapstructure:"allocator"`
	Risk             RiskConfig      `mapstructure:"risk"`
	Monitor          MonitorConfig   `mapstructure:"monitor"`
	Nats             NatsConfig      `mapstructure:"nats"`
	Vault            VaultConfig     `mapstructure:"vault"`
}

// Load reads the configuration file and applies defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetDefault("log_level", "info")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("snapshot_interval", "5m")
	v.SetDefault("shutdown_timeout", "30s")
	v.SetDefault("allocator.conflict_mode", string(types.ConflictModePrevent))
	v.SetDefault("allocator.max_allocations_per_account", 3)
	v.SetDefault("allocator.max_symbols_per_allocation", 10)
	v.SetDefault("allocator.known_strategies", []string{"grid", "dca", "pullback", "momentum", "arbitrage"})
	v.SetDefault("risk.check_interval", "30s")
	v.SetDefault("risk.daily_reset_utc", "00:00")
	v.SetDefault("monitor.poll_interval", "60s")
	v.SetDefault("monitor.account_timeout", "10s")
	v.SetDefault("monitor.history_retention", "24h")
	v.SetDefault("monitor.min_correlation_days", 20)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.client_id", "fleet-server")
	v.SetDefault("nats.subject_prefix", "fleet")
	v.SetDefault("vault.mount_path", "secret")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg := &Config{Risk: RiskConfig{Limits: types.DefaultRiskLimits()}}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if !types.ConflictMode(c.Allocator.ConflictMode).Valid() {
		return types.NewConfigurationError("allocator.conflict_mode",
			"unknown mode %q", c.Allocator.ConflictMode)
	}

	masters := 0
	seen := make(map[string]bool)
	for _, acct := range c.Accounts {
		if acct.ID == "" {
			return types.NewConfigurationError("accounts", "account with empty id")
		}
		if seen[acct.ID] {
			return types.NewConfigurationError("accounts", "duplicate account id %q", acct.ID)
		}
		seen[acct.ID] = true

		if !types.AccountType(acct.Type).Valid() {
			return types.NewConfigurationError("accounts", "account %q has unknown type %q", acct.ID, acct.Type)
		}
		if types.AccountType(acct.Type) == types.AccountTypeMaster {
			masters++
		}
		if acct.CredentialRef == "" {
			return types.NewConfigurationError("accounts", "account %q has no credential_ref", acct.ID)
		}
	}
	if len(c.Accounts) > 0 && masters != 1 {
		return types.NewConfigurationError("accounts", "exactly one master account required, found %d", masters)
	}

	return nil
}
