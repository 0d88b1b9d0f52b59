package optimization

import (
	"time"

	"github.com/google/uuid"

	"github.com/aristath/aidalloc/internal/domain"
)

// Allocation is one funded institution of a discrete run.
type Allocation struct {
	InstitutionID        string                 `json:"institution_id"`
	Name                 string                 `json:"name"`
	State                string                 `json:"state"`
	Investment           float64                `json:"investment"`
	TierIndex            int                    `json:"tier_index"`
	StudentSize          int                    `json:"student_size"`
	HighNeed             bool                   `json:"high_need"`
	BaseRetention        float64                `json:"base_retention"`
	ProjectedRetention   float64                `json:"projected_retention"`
	RetentionImprovement float64                `json:"retention_improvement"`
	RiskIndex            float64                `json:"risk_index"`
	NeedRate             float64                `json:"pell_rate"`
	Distribution         StudentDistribution    `json:"distribution"`
	RiskExplanation      domain.RiskExplanation `json:"risk_explanation"`
}

// Assignment records the tier chosen for one candidate, including the zero tier.
type Assignment struct {
	InstitutionID string  `json:"institution_id"`
	TierIndex     int     `json:"tier_index"`
	Investment    float64 `json:"investment"`
}

// SolverStats reports the work done by the solver.
type SolverStats struct {
	Nodes      int           `json:"nodes"`
	LPSolves   int           `json:"lp_solves"`
	Objective  float64       `json:"objective"`
	Bound      domain.Number `json:"bound"`
	Gap        domain.Number `json:"gap"`
	DurationMS int64         `json:"duration_ms"`
}

// Result is the outcome of one discrete optimization run. Totals cover
// every funded institution; Allocations may be truncated for display.
type Result struct {
	RunID              string             `json:"run_id"`
	Status             domain.Status      `json:"status"`
	Message            string             `json:"message,omitempty"`
	Err                error              `json:"-"`
	TotalBudget        float64            `json:"total_budget"`
	TotalAllocated     float64            `json:"total_allocated"`
	BudgetUtilization  float64            `json:"budget_utilization"`
	Candidates         int                `json:"candidates"`
	InstitutionsFunded int                `json:"institutions_funded"`
	StudentsImpacted   int                `json:"students_impacted"`
	BaselineRetained   int                `json:"baseline_retained"`
	ProjectedRetained  int                `json:"projected_retained"`
	AdditionalRetained int                `json:"additional_retained"`
	HighNeedAllocation float64            `json:"high_need_allocation"`
	HighNeedShare      float64            `json:"high_need_share"`
	EquityFloor        float64            `json:"equity_floor"`
	Constraints        ConstraintsSummary `json:"constraints"`
	Solver             SolverStats        `json:"solver"`
	DataQuality        domain.DataQuality `json:"data_quality"`
	Allocations        []Allocation       `json:"allocations"`
	Assignments        []Assignment       `json:"assignments,omitempty"`
}

// FailedResult returns a result carrying no allocations for a run that
// stopped before solving.
func FailedResult(status domain.Status, totalBudget float64, err error) *Result {
	r := &Result{RunID: uuid.NewString(), TotalBudget: totalBudget}
	return r.fail(status, err)
}

func (r *Result) fail(status domain.Status, err error) *Result {
	r.Status = status
	r.Err = err
	r.Message = err.Error()
	r.Allocations = []Allocation{}
	r.Assignments = nil
	return r
}

// SolveObserver receives one observation per solver call.
type SolveObserver interface {
	ObserveSolve(status domain.Status, nodes, lpSolves int, elapsed time.Duration)
}
