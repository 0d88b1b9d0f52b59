// Package allocation distributes a budget continuously across institutions
// in proportion to their expected graduates.
package allocation

import (
	"math"
	"strings"

	"github.com/aristath/aidalloc/internal/domain"
)

// Strategy selects how the extra pool of a continuous allocation is spent.
type Strategy string

const (
	StrategyBase             Strategy = "base"
	StrategyPerformance      Strategy = "performance"
	StrategyRetentionTrigger Strategy = "retention_trigger"
)

// Strategies lists every strategy in comparison order.
func Strategies() []Strategy {
	return []Strategy{StrategyBase, StrategyPerformance, StrategyRetentionTrigger}
}

// ParseStrategy maps a strategy name to a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	s := Strategy(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Strategies() {
		if s == known {
			return s, nil
		}
	}
	return "", domain.NewConfigurationError("strategy", "unknown strategy %q", name)
}

// Strategy defaults
const (
	DefaultBudget              = 50_000_000
	DefaultPerformanceBonusPct = 0.20
	DefaultRetentionReservePct = 0.10
	DefaultMinCompletionRate   = 0.30
	DefaultMaxPerInstitution   = 2_000_000
	DefaultDisplayLimit        = 30
)

// Request configures one continuous allocation run.
type Request struct {
	Budget              float64
	Strategy            Strategy
	PerformanceBonusPct float64
	RetentionReservePct float64
	MinCompletionRate   float64
	MaxPerInstitution   float64
	DisplayLimit        int
}

// DefaultRequest returns a base-strategy request with the default options.
func DefaultRequest() Request {
	return Request{
		Budget:              DefaultBudget,
		Strategy:            StrategyBase,
		PerformanceBonusPct: DefaultPerformanceBonusPct,
		RetentionReservePct: DefaultRetentionReservePct,
		MinCompletionRate:   DefaultMinCompletionRate,
		MaxPerInstitution:   DefaultMaxPerInstitution,
		DisplayLimit:        DefaultDisplayLimit,
	}
}

// Validate checks the request options.
func (r Request) Validate() error {
	if !finite(r.Budget) || r.Budget <= 0 {
		return domain.NewConfigurationError("budget", "must be a positive amount, got %g", r.Budget)
	}
	if _, err := ParseStrategy(string(r.Strategy)); err != nil {
		return err
	}
	fractions := []struct {
		field string
		value float64
	}{
		{"performance_bonus_pct", r.PerformanceBonusPct},
		{"retention_reserve_pct", r.RetentionReservePct},
		{"min_completion_rate", r.MinCompletionRate},
	}
	for _, f := range fractions {
		if math.IsNaN(f.value) || f.value < 0 || f.value > 1 {
			return domain.NewConfigurationError(f.field, "must be within [0, 1], got %g", f.value)
		}
	}
	if math.IsNaN(r.MaxPerInstitution) || r.MaxPerInstitution <= 0 {
		return domain.NewConfigurationError("max_per_institution", "must be positive, got %g", r.MaxPerInstitution)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// StrategyAllocation is one institution's share of a continuous run.
// Strategy-specific fields are zero for the other strategies.
type StrategyAllocation struct {
	InstitutionID     string        `json:"institution_id"`
	Name              string        `json:"name"`
	State             string        `json:"state"`
	Allocation        float64       `json:"allocation"`
	BaseAllocation    float64       `json:"base_allocation"`
	NeedStudents      int           `json:"pell_students"`
	CompletionRate    float64       `json:"completion_rate"`
	ExpectedGraduates int           `json:"expected_graduates"`
	CostPerGraduate   domain.Number `json:"cost_per_graduate"`
	PerNeedStudent    float64       `json:"pell_per_student"`
	Capped            bool          `json:"capped,omitempty"`

	PerformanceBonus float64 `json:"performance_bonus,omitempty"`
	BonusEligible    bool    `json:"bonus_eligible,omitempty"`
	ValueAddScore    float64 `json:"value_add_score,omitempty"`

	EmergencyAllocation  float64 `json:"emergency_allocation,omitempty"`
	EmergencyEligible    bool    `json:"emergency_eligible,omitempty"`
	DropoutRisk          float64 `json:"dropout_risk,omitempty"`
	MicroGrantRecipients int     `json:"micro_grant_recipients,omitempty"`
	AdditionalRetained   int     `json:"additional_retained,omitempty"`
}

// PerformanceSummary reports the bonus pool of a performance run.
type PerformanceSummary struct {
	BaseBudget        float64 `json:"base_budget"`
	BonusPool         float64 `json:"bonus_pool"`
	BonusDistributed  float64 `json:"bonus_distributed"`
	BonusEligible     int     `json:"bonus_eligible_schools"`
	ValueAddThreshold float64 `json:"value_add_threshold"`
}

// RetentionSummary reports the emergency reserve of a retention-trigger run.
type RetentionSummary struct {
	StandardBudget         float64 `json:"standard_budget"`
	EmergencyReserve       float64 `json:"emergency_reserve"`
	EmergencyDistributed   float64 `json:"emergency_distributed"`
	EmergencyEligible      int     `json:"emergency_eligible_schools"`
	DropoutThreshold       float64 `json:"dropout_threshold"`
	MicroGrantRecipients   int     `json:"students_with_micro_grants"`
	InterventionLift       int     `json:"intervention_lift"`
	TotalGraduatesWithLift int     `json:"total_graduates_with_lift"`
}

// StrategyResult is the outcome of one continuous run. Totals cover every
// candidate; Allocations may be truncated for display.
type StrategyResult struct {
	RunID                  string               `json:"run_id"`
	Strategy               Strategy             `json:"strategy"`
	Status                 domain.Status        `json:"status"`
	Message                string               `json:"message,omitempty"`
	Err                    error                `json:"-"`
	TotalBudget            float64              `json:"total_budget"`
	TotalAllocated         float64              `json:"total_allocated"`
	BudgetUtilization      float64              `json:"budget_utilization"`
	Candidates             int                  `json:"candidates"`
	InstitutionsFunded     int                  `json:"schools_funded"`
	TotalNeedStudents      int                  `json:"total_pell_students"`
	TotalExpectedGraduates int                  `json:"total_expected_graduates"`
	AvgCostPerGraduate     float64              `json:"avg_cost_per_graduate"`
	Performance            *PerformanceSummary  `json:"performance,omitempty"`
	Retention              *RetentionSummary    `json:"retention_trigger,omitempty"`
	ByState                []GroupAllocation    `json:"by_state,omitempty"`
	DataQuality            domain.DataQuality   `json:"data_quality"`
	Allocations            []StrategyAllocation `json:"allocations"`
}

// ComparableGraduates is the graduate figure used across strategies:
// the retention-trigger strategy counts its intervention lift.
func (r *StrategyResult) ComparableGraduates() int {
	if r.Retention != nil {
		return r.Retention.TotalGraduatesWithLift
	}
	return r.TotalExpectedGraduates
}

func (r *StrategyResult) fail(status domain.Status, err error) *StrategyResult {
	r.Status = status
	r.Err = err
	r.Message = err.Error()
	r.Allocations = []StrategyAllocation{}
	return r
}

// String is used in log lines.
func (s Strategy) String() string {
	return string(s)
}

// StrategyObserver receives one observation per strategy run.
type StrategyObserver interface {
	ObserveStrategy(strategy string, status domain.Status, allocated float64)
}
