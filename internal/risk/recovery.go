package risk

import (
	"fmt"
	"time"

	"github.com/fleetoms/fleet/pkg/types"
)

// createRecoveryPlan registers a plan that re-enables the account once
// its risk level improves or two hours have elapsed. An existing active
// plan for the account is left in place.
func (m *Manager) createRecoveryPlan(accountID, recoveryType string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if plan, exists := m.plans[accountID]; exists && plan.Active {
		return
	}

	var baseline types.RiskLevel
	if status := m.statuses[accountID]; status != nil {
		baseline = status.Level
	}

	m.plans[accountID] = &types.RecoveryPlan{
		AccountID:     accountID,
		RecoveryType:  recoveryType,
		BaselineLevel: baseline,
		Conditions: []types.RecoveryCondition{
			{Type: types.RecoveryConditionRiskLevelImproved},
			{Type: types.RecoveryConditionTimeElapsed, ElapsedHours: 2},
		},
		Actions: []types.RecoveryAction{
			{Type: types.RecoveryActionResumeTrading},
		},
		CreatedAt: time.Now().UTC(),
		Active:    true,
	}
	m.logger.Infof("recovery plan created for account %s (%s)", accountID, recoveryType)
}

// CheckRecoveryConditions evaluates every active recovery plan against
// the account's latest risk snapshot. Satisfying any one condition fires
// the plan: limit adjustments are applied first, then trading resumes.
// An executed plan is deactivated and re-evaluating it is a no-op; an
// execution failure leaves the plan active so the next cycle retries.
func (m *Manager) CheckRecoveryConditions() {
	m.mu.RLock()
	var due []*types.RecoveryPlan
	for _, plan := range m.plans {
		if !plan.Active || plan.ExecutedAt != nil {
			continue
		}
		if m.conditionsMetLocked(plan) {
			due = append(due, plan)
		}
	}
	m.mu.RUnlock()

	for _, plan := range due {
		if err := m.executePlan(plan); err != nil {
			// plan stays active; retried next cycle
			m.logger.Errorf("recovery execution failed for %s: %v", plan.AccountID, err)
		}
	}
}

func (m *Manager) conditionsMetLocked(plan *types.RecoveryPlan) bool {
	status := m.statuses[plan.AccountID]
	now := time.Now().UTC()

	for _, cond := range plan.Conditions {
		switch cond.Type {
		case types.RecoveryConditionTimeElapsed:
			if now.Sub(plan.CreatedAt) >= time.Duration(cond.ElapsedHours*float64(time.Hour)) {
				return true
			}
		case types.RecoveryConditionRiskLevelImproved:
			// improvement means strictly below the level at pause time,
			// and at most medium; anything looser would flap on accounts
			// paused at a medium level
			if status == nil || status.Level.WorseThan(types.RiskLevelMedium) {
				continue
			}
			if plan.BaselineLevel != "" && !plan.BaselineLevel.WorseThan(status.Level) {
				continue
			}
			return true
		case types.RecoveryConditionDailyLossRecovered:
			if status != nil {
				limits := m.config.Limits
				if status.DailyPnLPct > -limits.DailyLossLimitPct/2 {
					return true
				}
			}
		}
	}
	return false
}

func (m *Manager) executePlan(plan *types.RecoveryPlan) error {
	for _, action := range plan.Actions {
		switch action.Type {
		case types.RecoveryActionAdjustLimits:
			if err := m.registry.PatchLimits(plan.AccountID, action.Limits); err != nil {
				return fmt.Errorf("adjust limits: %w", err)
			}
		case types.RecoveryActionResumeTrading:
			if err := m.registry.SetStatus(plan.AccountID, types.AccountStatusActive); err != nil {
				return fmt.Errorf("resume trading: %w", err)
			}
			m.mu.Lock()
			delete(m.paused, plan.AccountID)
			m.mu.Unlock()
		default:
			return fmt.Errorf("unknown recovery action %q", action.Type)
		}
	}

	now := time.Now().UTC()
	m.mu.Lock()
	plan.ExecutedAt = &now
	plan.Active = false
	m.mu.Unlock()

	m.recordEvent(types.NewRiskEvent(types.RiskEventRecoveryExecuted, plan.AccountID,
		types.SeverityMedium,
		fmt.Sprintf("recovery plan executed for account %s (%s)", plan.AccountID, plan.RecoveryType)))
	m.alert("recovery_executed", "Recovery plan executed",
		fmt.Sprintf("account %s resumed by recovery plan", plan.AccountID), types.AlertPriorityNormal)
	return nil
}

// ActivePlan returns the account's active recovery plan, or nil.
func (m *Manager) ActivePlan(accountID string) *types.RecoveryPlan {
	m.mu.RLock()
	defer m.mu.RUnlock()

	plan, exists := m.plans[accountID]
	if !exists || !plan.Active {
		return nil
	}
	return plan
}

// Plan returns the account's recovery plan regardless of state, or nil.
func (m *Manager) Plan(accountID string) *types.RecoveryPlan {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.plans[accountID]
}
