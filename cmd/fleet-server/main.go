package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fleetoms/fleet/internal/allocator"
	"github.com/fleetoms/fleet/internal/config"
	"github.com/fleetoms/fleet/internal/exchange"
	"github.com/fleetoms/fleet/internal/keystore"
	"github.com/fleetoms/fleet/internal/monitor"
	"github.com/fleetoms/fleet/internal/registry"
	"github.com/fleetoms/fleet/internal/risk"
	"github.com/fleetoms/fleet/internal/store"
	"github.com/fleetoms/fleet/pkg/nats"
	"github.com/fleetoms/fleet/pkg/types"
)

func main() {
	configPath := flag.String("config", "configs/fleet.yaml", "path to configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		logrus.Fatalf("fleet-server: %v", err)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger := logrus.WithField("component", "fleet-server")
	logger.Info("starting fleet server")

	ks, err := keystore.New(&keystore.Config{
		VaultAddr:  cfg.Vault.Addr,
		VaultToken: cfg.Vault.Token,
		MountPath:  cfg.Vault.MountPath,
		CacheTTL:   5 * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("init keystore: %w", err)
	}

	var notifier types.Notifier
	var natsNotifier *nats.Notifier
	if cfg.Nats.Enabled {
		natsNotifier, err = nats.NewNotifier(&nats.Config{
			URL:           cfg.Nats.URL,
			ClientID:      cfg.Nats.ClientID,
			SubjectPrefix: cfg.Nats.SubjectPrefix,
		})
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer natsNotifier.Close()
		notifier = natsNotifier
	}

	reg := registry.New(ks, exchange.NewBinanceClient)
	for _, ac := range cfg.Accounts {
		account, err := reg.Register(registry.AccountConfig{
			ID:            ac.ID,
			Name:          ac.Name,
			Type:          types.AccountType(ac.Type),
			CredentialRef: ac.CredentialRef,
			Trading: types.TradingConfig{
				Strategy:         ac.Strategy,
				Symbols:          ac.Symbols,
				Leverage:         ac.Leverage,
				PositionSizePct:  ac.PositionPct,
				MaxOpenPositions: ac.MaxPositions,
			},
			Limits: ac.Limits,
		})
		if err != nil {
			return fmt.Errorf("register account %s: %w", ac.ID, err)
		}
		logger.Infof("registered account %s (%s), status %s", account.ID, account.Type, account.Status)
	}

	alloc := allocator.New(reg, notifier, allocator.Config{
		Mode:                     types.ConflictMode(cfg.Allocator.ConflictMode),
		MaxAllocationsPerAccount: cfg.Allocator.MaxAllocationsPerAccount,
		MaxSymbolsPerAllocation:  cfg.Allocator.MaxSymbolsPerAllocation,
		KnownStrategies:          cfg.Allocator.KnownStrategies,
	})

	st, err := store.New(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	if saved, err := st.LoadState(); err != nil {
		return fmt.Errorf("load state: %w", err)
	} else if saved != nil && saved.Allocator != nil {
		alloc.ImportState(saved.Allocator)
		logger.Infof("restored %d allocations from snapshot saved at %s",
			len(saved.Allocator.Allocations), saved.SavedAt.Format(time.RFC3339))
	}

	// accounts configured with a strategy and no restored allocation get
	// an initial allocation on startup
	for _, ac := range cfg.Accounts {
		if ac.Strategy == "" || len(ac.Symbols) == 0 {
			continue
		}
		if len(alloc.ActiveByAccount(ac.ID)) > 0 {
			continue
		}
		_, conflicts, err := alloc.Allocate(ac.ID, ac.Strategy, ac.Symbols, types.AllocationParams{
			PositionSizePct: ac.PositionPct,
			Leverage:        ac.Leverage,
			MaxPositions:    ac.MaxPositions,
		})
		if err != nil {
			logger.WithField("account", ac.ID).Warnf("initial allocation rejected: %v", err)
			for _, c := range conflicts {
				logger.WithField("account", ac.ID).Warnf("conflict %s: %s on %s",
					c.ConflictID, c.Type, c.Symbol)
			}
		}
	}

	mon := monitor.New(reg, monitor.Config{
		PollInterval:       cfg.Monitor.PollInterval,
		AccountTimeout:     cfg.Monitor.AccountTimeout,
		HistoryRetention:   cfg.Monitor.HistoryRetention,
		MinCorrelationDays: cfg.Monitor.MinCorrelationDays,
		Limits:             cfg.Risk.Limits,
	})

	riskMgr := risk.New(reg, mon, notifier, risk.Config{
		CheckInterval:  cfg.Risk.CheckInterval,
		AccountTimeout: cfg.Monitor.AccountTimeout,
		DailyResetUTC:  cfg.Risk.DailyResetUTC,
		Limits:         cfg.Risk.Limits,
	})

	mon.Start()
	riskMgr.Start()

	snapshotStop := make(chan struct{})
	snapshotDone := make(chan struct{})
	go snapshotLoop(st, reg, alloc, cfg.SnapshotInterval, snapshotStop, snapshotDone, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Infof("received %s, shutting down", sig)

	close(snapshotStop)
	<-snapshotDone
	riskMgr.Stop(cfg.ShutdownTimeout)
	mon.Stop(cfg.ShutdownTimeout)

	if err := saveSnapshot(st, reg, alloc); err != nil {
		logger.Errorf("final snapshot failed: %v", err)
	}
	logger.Info("fleet server stopped")
	return nil
}

func snapshotLoop(st *store.Store, reg *registry.Registry, alloc *allocator.Allocator,
	interval time.Duration, stopCh, doneCh chan struct{}, logger *logrus.Entry) {
	defer close(doneCh)

	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := saveSnapshot(st, reg, alloc); err != nil {
				logger.Errorf("snapshot failed: %v", err)
			}
		case <-stopCh:
			return
		}
	}
}

func saveSnapshot(st *store.Store, reg *registry.Registry, alloc *allocator.Allocator) error {
	state := &store.FleetState{
		SubAccounts: make(map[string]*types.Account),
		Allocator:   alloc.ExportState(),
	}

	totalTrades := 0
	for _, account := range reg.List() {
		totalTrades += account.Performance.TotalTrades
		if account.Type == types.AccountTypeMaster {
			state.Master = account
		} else {
			state.SubAccounts[account.ID] = account
		}
	}

	active := 0
	for _, a := range state.Allocator.Allocations {
		if a.Status == types.AllocationStatusActive {
			active++
		}
	}
	state.Stats = store.FleetStats{
		AccountCount:      len(reg.List()),
		ActiveAllocations: active,
		TotalTrades:       totalTrades,
	}
	return st.SaveState(state)
}
