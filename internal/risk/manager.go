package risk

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/fleetoms/fleet/internal/monitor"
	"github.com/fleetoms/fleet/internal/registry"
	"github.com/fleetoms/fleet/pkg/types"
)

const recentEventsCap = 100

// Config holds risk manager settings.
type Config struct {
	CheckInterval  time.Duration
	AccountTimeout time.Duration
	DailyResetUTC  string // "HH:MM"
	Limits         types.RiskLimits
}

// Manager computes per-account and portfolio-wide risk, recommends
// admission-control actions and runs the conditions-based auto-recovery
// scheduler. It never places or cancels exchange orders; every action it
// takes is a recommendation surfaced as an event and an alert.
type Manager struct {
	mu sync.RWMutex

	registry *registry.Registry
	monitor  *monitor.Monitor
	notifier types.Notifier
	config   Config
	logger   *logrus.Entry

	paused           map[string]string // account -> pause reason
	emergencyStopped map[string]bool
	statuses         map[string]*types.AccountRiskStatus
	plans            map[string]*types.RecoveryPlan
	events           []*types.RiskEvent

	dayBaseline map[string]decimal.Decimal
	baselineDay map[string]string
	peakBalance map[string]decimal.Decimal
	lastReset   string

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a risk manager.
func New(reg *registry.Registry, mon *monitor.Monitor, notifier types.Notifier, config Config) *Manager {
	if config.CheckInterval <= 0 {
		config.CheckInterval = 30 * time.Second
	}
	if config.AccountTimeout <= 0 {
		config.AccountTimeout = 10 * time.Second
	}
	if config.DailyResetUTC == "" {
		config.DailyResetUTC = "00:00"
	}

	return &Manager{
		registry:         reg,
		monitor:          mon,
		notifier:         notifier,
		config:           config,
		logger:           logrus.WithField("component", "risk"),
		paused:           make(map[string]string),
		emergencyStopped: make(map[string]bool),
		statuses:         make(map[string]*types.AccountRiskStatus),
		plans:            make(map[string]*types.RecoveryPlan),
		dayBaseline:      make(map[string]decimal.Decimal),
		baselineDay:      make(map[string]string),
		peakBalance:      make(map[string]decimal.Decimal),
		stopCh:           make(chan struct{}),
		doneCh:           make(chan struct{}),
	}
}

// Start launches the periodic risk loop.
func (m *Manager) Start() {
	go m.loop()
	m.logger.Infof("risk manager started, interval %s", m.config.CheckInterval)
}

// Stop requests a graceful stop and waits for the in-flight cycle,
// bounded by the given timeout.
func (m *Manager) Stop(timeout time.Duration) {
	close(m.stopCh)
	select {
	case <-m.doneCh:
	case <-time.After(timeout):
		m.logger.Warn("risk manager stop timed out")
	}
}

func (m *Manager) loop() {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithCancel(context.Background())
			m.RunCycle(ctx)
			cancel()
		case <-m.stopCh:
			return
		}
	}
}

// RunCycle performs one risk cycle: daily re-baselining, the portfolio
// check, per-account checks for every non-paused account, and recovery
// plan evaluation.
func (m *Manager) RunCycle(ctx context.Context) {
	m.maybeDailyReset(time.Now().UTC())
	m.CheckPortfolioRisk(ctx)

	for _, account := range m.registry.List() {
		if account.Status == types.AccountStatusDisabled {
			continue
		}

		status, err := m.CheckAccountRisk(ctx, account.ID)
		if err != nil {
			continue // logged at the call site, account skipped this cycle
		}

		// paused accounts are still measured so recovery conditions can
		// observe improvement, but not re-checked for admission
		if !m.IsPaused(account.ID) {
			m.CheckDailyLossLimit(account.ID, status)
		}
	}

	m.CheckRecoveryConditions()
}

// RecommendPause recommends pausing an account. Idempotent: repeat calls
// for an already paused account only log.
func (m *Manager) RecommendPause(accountID, reason string) {
	m.mu.Lock()
	if _, exists := m.paused[accountID]; exists {
		m.mu.Unlock()
		m.logger.Infof("account %s already paused", accountID)
		return
	}
	m.paused[accountID] = reason
	m.mu.Unlock()

	m.registry.SetStatus(accountID, types.AccountStatusPaused)
	m.recordEvent(types.NewRiskEvent(types.RiskEventPauseRecommended, accountID,
		types.SeverityHigh, fmt.Sprintf("pause recommended for %s: %s", accountID, reason)))
	m.alert("account_paused", "Account pause recommended",
		fmt.Sprintf("account %s: %s", accountID, reason), types.AlertPriorityHigh)
}

// RecommendResume recommends resuming a paused account. No-op when the
// account is not paused.
func (m *Manager) RecommendResume(accountID string) {
	m.mu.Lock()
	if _, exists := m.paused[accountID]; !exists {
		m.mu.Unlock()
		m.logger.Infof("account %s is not paused", accountID)
		return
	}
	delete(m.paused, accountID)
	if plan, ok := m.plans[accountID]; ok && plan.Active {
		plan.Active = false
	}
	m.mu.Unlock()

	m.registry.SetStatus(accountID, types.AccountStatusActive)
	m.recordEvent(types.NewRiskEvent(types.RiskEventResumeRecommended, accountID,
		types.SeverityMedium, fmt.Sprintf("resume recommended for %s", accountID)))
	m.alert("account_resumed", "Account resume recommended",
		fmt.Sprintf("account %s resumed", accountID), types.AlertPriorityNormal)
}

// RecommendEmergencyStop recommends an emergency stop for one account.
// The account is added to the paused set; no orders are touched.
func (m *Manager) RecommendEmergencyStop(accountID string) {
	m.mu.Lock()
	if m.emergencyStopped[accountID] {
		m.mu.Unlock()
		return
	}
	m.emergencyStopped[accountID] = true
	m.paused[accountID] = "emergency stop"
	m.mu.Unlock()

	m.registry.SetStatus(accountID, types.AccountStatusPaused)
	m.recordEvent(types.NewRiskEvent(types.RiskEventEmergencyStopRecommended, accountID,
		types.SeverityCritical, fmt.Sprintf("emergency stop recommended for %s", accountID)))
	m.alert("emergency_stop", "Emergency stop recommended",
		fmt.Sprintf("account %s should stop trading immediately", accountID), types.AlertPriorityHigh)
}

// RecommendEmergencyStopAll cascades an emergency stop recommendation to
// every registered account.
func (m *Manager) RecommendEmergencyStopAll() {
	for _, account := range m.registry.List() {
		m.RecommendEmergencyStop(account.ID)
	}
	m.alert("emergency_stop_all", "Fleet-wide emergency stop recommended",
		"emergency stop recommended for all accounts", types.AlertPriorityHigh)
}

// Summary is the operator-facing risk state view.
type Summary struct {
	EmergencyStopped    []string                            `json:"emergency_stopped"`
	PausedAccounts      map[string]string                   `json:"paused_accounts"`
	AccountStatus       map[string]*types.AccountRiskStatus `json:"account_status"`
	RecentEvents        []*types.RiskEvent                  `json:"recent_events"`
	ActiveRecoveryPlans []*types.RecoveryPlan               `json:"active_recovery_plans"`
}

// RiskSummary returns the current risk state.
func (m *Manager) RiskSummary() *Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summary := &Summary{
		PausedAccounts: make(map[string]string, len(m.paused)),
		AccountStatus:  make(map[string]*types.AccountRiskStatus, len(m.statuses)),
	}
	for id, reason := range m.paused {
		summary.PausedAccounts[id] = reason
	}
	for id := range m.emergencyStopped {
		summary.EmergencyStopped = append(summary.EmergencyStopped, id)
	}
	sort.Strings(summary.EmergencyStopped)
	for id, status := range m.statuses {
		summary.AccountStatus[id] = status
	}
	summary.RecentEvents = append(summary.RecentEvents, m.events...)
	for _, plan := range m.plans {
		if plan.Active {
			summary.ActiveRecoveryPlans = append(summary.ActiveRecoveryPlans, plan)
		}
	}
	return summary
}

// IsPaused reports whether the account is currently in the paused set.
func (m *Manager) IsPaused(accountID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, paused := m.paused[accountID]
	return paused
}

// Status returns the latest risk snapshot for an account, or nil.
func (m *Manager) Status(accountID string) *types.AccountRiskStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.statuses[accountID]
}

// maybeDailyReset re-baselines every account's start-of-day balance at
// the configured UTC time of day.
func (m *Manager) maybeDailyReset(now time.Time) {
	day := now.Format("2006-01-02")
	resetAt, err := time.Parse("15:04", m.config.DailyResetUTC)
	if err != nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastReset == day {
		return
	}
	boundary := time.Date(now.Year(), now.Month(), now.Day(), resetAt.Hour(), resetAt.Minute(), 0, 0, time.UTC)
	if now.Before(boundary) {
		return
	}

	// drop baselines so the next observation of each account becomes the
	// new start-of-day balance
	m.dayBaseline = make(map[string]decimal.Decimal)
	m.baselineDay = make(map[string]string)
	m.lastReset = day
	m.logger.Info("daily risk baselines reset")
}

// riskEventPublisher is implemented by notifiers that carry a dedicated
// risk event stream next to the alert subjects.
type riskEventPublisher interface {
	PublishRiskEvent(event *types.RiskEvent) error
}

func (m *Manager) recordEvent(event *types.RiskEvent) {
	m.mu.Lock()
	m.events = append(m.events, event)
	if len(m.events) > recentEventsCap {
		m.events = m.events[len(m.events)-recentEventsCap:]
	}
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"event":   event.Type,
		"account": event.AccountID,
	}).Info(event.Message)

	if publisher, ok := m.notifier.(riskEventPublisher); ok {
		publisher.PublishRiskEvent(event)
	}
}

func (m *Manager) alert(eventType, title, message string, priority types.AlertPriority) {
	if m.notifier == nil {
		return
	}
	m.notifier.Notify(&types.Alert{
		EventType: eventType,
		Title:     title,
		Message:   message,
		Priority:  priority,
	})
}
