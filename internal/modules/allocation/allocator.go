package allocation

import (
	"context"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/aidalloc/internal/domain"
	"github.com/aristath/aidalloc/internal/utils"
	"github.com/aristath/aidalloc/pkg/formulas"
)

// Allocator runs the continuous allocation strategies. It keeps no state
// between calls and may be shared by concurrent runs.
type Allocator struct {
	observer StrategyObserver
	log      zerolog.Logger
}

// NewAllocator creates an Allocator.
func NewAllocator(log zerolog.Logger) *Allocator {
	return &Allocator{
		log: log.With().Str("component", "allocator").Logger(),
	}
}

// SetObserver registers a receiver for run outcomes.
func (a *Allocator) SetObserver(observer StrategyObserver) {
	a.observer = observer
}

// Allocate splits req.Budget across the institutions that pass the
// completion filter. The base pool goes out in proportion to expected
// graduates; the strategy decides who shares the extra pool. Invalid
// options and empty candidate sets are reported through the result status.
// An error is returned only when ctx is done.
func (a *Allocator) Allocate(ctx context.Context, institutions []domain.Institution, req Request) (*StrategyResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer utils.OperationTimer("strategy_"+string(req.Strategy), a.log)()

	res := &StrategyResult{
		RunID:       uuid.NewString(),
		Strategy:    req.Strategy,
		TotalBudget: req.Budget,
		Allocations: []StrategyAllocation{},
	}
	defer a.observe(res)

	if err := req.Validate(); err != nil {
		return res.fail(domain.StatusError, err), nil
	}

	cands, quality := buildCandidates(institutions, req.MinCompletionRate, a.log)
	res.DataQuality = quality
	res.Candidates = len(cands)
	if len(cands) == 0 {
		return res.fail(domain.StatusNoCandidates,
			domain.NewConfigurationError("candidates", "no institutions match criteria")), nil
	}

	expected := make([]float64, len(cands))
	for i, c := range cands {
		expected[i] = c.expectedGraduates
	}
	totalExpected := formulas.Sum(expected)
	if totalExpected <= 0 {
		return res.fail(domain.StatusError,
			domain.NewConfigurationError("candidates", "no expected graduates among %d institutions", len(cands))), nil
	}

	policy := policyFor(req.Strategy)
	share := policy.share(req)
	plan := policy.plan(cands)
	t := runTotals{
		basePool:  req.Budget * (1 - share),
		extraPool: req.Budget * share,
		threshold: plan.threshold,
	}

	var allocated float64
	allocs := make([]StrategyAllocation, 0, len(cands))
	members := make([]GroupMember, 0, len(cands))
	for i, c := range cands {
		base := c.expectedGraduates / totalExpected * t.basePool
		var extra float64
		eligible := plan.eligible != nil && plan.eligible[i]
		if plan.weights != nil {
			extra = plan.weights[i] * t.extraPool
		}

		amount := base + extra
		capped := amount > req.MaxPerInstitution
		if capped {
			amount = req.MaxPerInstitution
		}

		costPerGrad := math.Inf(1)
		if c.expectedGraduates > 0 {
			costPerGrad = formulas.Round(amount/c.expectedGraduates, 2)
		}

		entry := StrategyAllocation{
			InstitutionID:     c.inst.ID,
			Name:              c.inst.Name,
			State:             c.inst.State,
			Allocation:        formulas.Round(amount, 2),
			BaseAllocation:    formulas.Round(base, 2),
			NeedStudents:      c.needStudents,
			CompletionRate:    formulas.Round(c.inst.CompletionRate, 3),
			ExpectedGraduates: int(c.expectedGraduates),
			CostPerGraduate:   domain.Number(costPerGrad),
			PerNeedStudent:    formulas.Round(amount/float64(max(c.needStudents, 1)), 2),
			Capped:            capped,
		}
		policy.annotate(&entry, c, eligible, extra)

		allocated += amount
		t.graduates += c.expectedGraduates
		t.distributed += extra
		t.microGrants += entry.MicroGrantRecipients
		t.lift += entry.AdditionalRetained
		if eligible {
			t.eligible++
		}
		if amount > 0 {
			res.InstitutionsFunded++
		}
		res.TotalNeedStudents += c.needStudents

		allocs = append(allocs, entry)
		members = append(members, GroupMember{Group: c.inst.State, Value: amount})
	}

	res.Status = domain.StatusOptimal
	res.TotalAllocated = formulas.Round(allocated, 2)
	res.BudgetUtilization = formulas.Round(allocated/req.Budget, 4)
	res.TotalExpectedGraduates = int(t.graduates)
	if t.graduates > 0 {
		res.AvgCostPerGraduate = formulas.Round(allocated/t.graduates, 2)
	}
	policy.summarize(res, t)
	res.ByState = CalculateGroupAllocation(members, allocated)

	sort.SliceStable(allocs, func(i, j int) bool {
		return allocs[i].Allocation > allocs[j].Allocation
	})
	limit := req.DisplayLimit
	if limit <= 0 {
		limit = DefaultDisplayLimit
	}
	if len(allocs) > limit {
		allocs = allocs[:limit]
	}
	res.Allocations = allocs

	a.log.Info().
		Str("run_id", res.RunID).
		Str("strategy", string(req.Strategy)).
		Int("candidates", res.Candidates).
		Float64("total_allocated", res.TotalAllocated).
		Int("expected_graduates", res.TotalExpectedGraduates).
		Msg("Strategy allocation complete")
	return res, nil
}

func (a *Allocator) observe(res *StrategyResult) {
	if a.observer == nil {
		return
	}
	a.observer.ObserveStrategy(string(res.Strategy), res.Status, res.TotalAllocated)
}
