package optimization

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/aidalloc/internal/domain"
	"github.com/aristath/aidalloc/internal/modules/impact"
	"github.com/aristath/aidalloc/internal/utils"
	"github.com/aristath/aidalloc/pkg/formulas"
)

// DefaultDisplayLimit is the number of allocations listed in a discrete result.
const DefaultDisplayLimit = 20

// DiscreteOptimizer chooses exactly one investment tier per institution to
// maximise the projected number of retained students.
type DiscreteOptimizer struct {
	solver      Solver
	scorer      impact.Scorer
	constraints *ConstraintsManager
	observer    SolveObserver
	log         zerolog.Logger
}

// NewDiscreteOptimizer creates an optimizer using solver for the integer program.
func NewDiscreteOptimizer(solver Solver, scorer impact.Scorer, log zerolog.Logger) *DiscreteOptimizer {
	return &DiscreteOptimizer{
		solver:      solver,
		scorer:      scorer,
		constraints: NewConstraintsManager(scorer, log),
		log:         log.With().Str("component", "discrete_optimizer").Logger(),
	}
}

// SetObserver registers a receiver for solver statistics.
func (o *DiscreteOptimizer) SetObserver(observer SolveObserver) {
	o.observer = observer
}

// Optimize builds and solves the program for institutions. Configuration
// problems, empty input and infeasible programs are reported through the
// result status; only solver failures are returned as errors.
func (o *DiscreteOptimizer) Optimize(ctx context.Context, institutions []domain.Institution, req DiscreteRequest) (*Result, error) {
	res := &Result{
		RunID:       uuid.NewString(),
		TotalBudget: req.TotalBudget,
		Candidates:  len(institutions),
		Allocations: []Allocation{},
	}

	if err := o.constraints.ValidateRequest(req); err != nil {
		return res.fail(domain.StatusError, err), nil
	}
	if len(institutions) == 0 {
		return res.fail(domain.StatusNoCandidates,
			domain.NewConfigurationError("candidates", "no institutions to optimize")), nil
	}

	cands, quality := o.constraints.prepare(institutions)
	res.DataQuality = quality

	program := o.constraints.BuildProgram(cands, req)
	res.Constraints = o.constraints.GetConstraintSummary(program)
	res.EquityFloor = program.FloorMin

	if err := o.constraints.ValidateConstraints(program); err != nil {
		o.log.Warn().Err(err).Msg("Program rejected before solving")
		o.observe(domain.StatusInfeasible, Solution{}, 0)
		return res.fail(domain.StatusInfeasible, err), nil
	}

	timer := utils.NewTimer("discrete_solve", o.log)
	sol, err := o.solver.Solve(ctx, program)
	elapsed := timer.StopWithFields(map[string]interface{}{
		"groups":    len(program.Groups),
		"variables": program.Variables(),
	})
	if err != nil {
		o.observe(domain.StatusError, sol, elapsed)
		return nil, fmt.Errorf("solve discrete program: %w", err)
	}
	o.observe(sol.Status, sol, elapsed)

	res.Solver = SolverStats{
		Nodes:      sol.Nodes,
		LPSolves:   sol.LPSolves,
		Objective:  sol.Objective,
		Bound:      domain.Number(sol.Bound),
		Gap:        domain.Number(sol.Gap()),
		DurationMS: elapsed.Milliseconds(),
	}

	if !sol.Status.Solved() {
		cause := errors.New(sol.Message)
		if sol.Status == domain.StatusInfeasible {
			cause = fmt.Errorf("%w: %s", domain.ErrInfeasible, sol.Message)
		}
		o.log.Warn().Str("status", string(sol.Status)).Str("reason", sol.Message).Msg("Discrete program not solved")
		return res.fail(sol.Status, cause), nil
	}

	res.Status = sol.Status
	res.Message = sol.Message
	o.collect(res, cands, program, sol.Choice, req)

	o.log.Info().
		Str("run_id", res.RunID).
		Str("status", string(res.Status)).
		Float64("total_allocated", res.TotalAllocated).
		Int("institutions_funded", res.InstitutionsFunded).
		Int("additional_retained", res.AdditionalRetained).
		Msg("Discrete optimization complete")
	return res, nil
}

func (o *DiscreteOptimizer) observe(status domain.Status, sol Solution, elapsed time.Duration) {
	if o.observer == nil {
		return
	}
	o.observer.ObserveSolve(status, sol.Nodes, sol.LPSolves, elapsed)
}

// collect turns the chosen tiers into allocations and totals.
func (o *DiscreteOptimizer) collect(res *Result, cands []candidate, p *BinaryProgram, choice []int, req DiscreteRequest) {
	var baseline, projected float64
	allocations := make([]Allocation, 0)
	res.Assignments = make([]Assignment, 0, len(cands))

	for g, c := range cands {
		item := p.Groups[g].Items[choice[g]]
		res.Assignments = append(res.Assignments, Assignment{
			InstitutionID: c.inst.ID,
			TierIndex:     item.Tier,
			Investment:    item.Cost,
		})
		if item.Cost <= 0 {
			continue
		}

		rate := o.scorer.Score(c.retention, item.Cost, c.risk, c.need)
		baseline += float64(c.size) * c.retention
		projected += float64(c.size) * rate

		res.TotalAllocated += item.Cost
		res.StudentsImpacted += c.size
		if c.highNeed {
			res.HighNeedAllocation += item.Cost
		}

		allocations = append(allocations, Allocation{
			InstitutionID:        c.inst.ID,
			Name:                 c.inst.Name,
			State:                c.inst.State,
			Investment:           item.Cost,
			TierIndex:            item.Tier,
			StudentSize:          c.size,
			HighNeed:             c.highNeed,
			BaseRetention:        formulas.Round(c.retention, 3),
			ProjectedRetention:   formulas.Round(rate, 3),
			RetentionImprovement: formulas.Round(rate-c.retention, 4),
			RiskIndex:            formulas.Round(c.risk, 1),
			NeedRate:             formulas.Round(c.need, 3),
			Distribution:         Distribute(item.Cost, c.size, c.retention, c.need),
			RiskExplanation:      c.inst.Explanation(),
		})
	}

	res.InstitutionsFunded = len(allocations)
	res.BaselineRetained = int(baseline)
	res.ProjectedRetained = int(projected)
	res.AdditionalRetained = int(projected - baseline)
	if req.TotalBudget > 0 {
		res.BudgetUtilization = formulas.Round(res.TotalAllocated/req.TotalBudget, 4)
	}
	if res.TotalAllocated > 0 {
		res.HighNeedShare = formulas.Round(res.HighNeedAllocation/res.TotalAllocated, 4)
	}

	sort.SliceStable(allocations, func(i, j int) bool {
		return allocations[i].Investment > allocations[j].Investment
	})
	limit := req.DisplayLimit
	if limit <= 0 {
		limit = DefaultDisplayLimit
	}
	if len(allocations) > limit {
		allocations = allocations[:limit]
	}
	res.Allocations = allocations
}
