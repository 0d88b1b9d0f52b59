package allocation

import (
	"github.com/aristath/aidalloc/pkg/formulas"
)

// Extra-pool constants
const (
	BonusQuantile          = 0.80
	DropoutQuantile        = 0.70
	EmergencyMinCompletion = 0.30
	MicroGrantUnit         = 1000.0
	MicroGrantLift         = 0.10
)

// extraPlan says which candidates share the extra pool and in what fractions.
// weights is nil when the strategy has no extra pool.
type extraPlan struct {
	eligible  []bool
	weights   []float64
	threshold float64
}

// runTotals accumulates one run for the strategy summary.
type runTotals struct {
	basePool    float64
	extraPool   float64
	distributed float64
	eligible    int
	threshold   float64
	graduates   float64
	microGrants int
	lift        int
}

// extraPolicy is the strategy-specific part of a continuous allocation:
// how much of the budget is carved out of the proportional base pool and
// who receives it.
type extraPolicy interface {
	share(req Request) float64
	plan(cands []candidate) extraPlan
	annotate(a *StrategyAllocation, c candidate, eligible bool, extra float64)
	summarize(res *StrategyResult, t runTotals)
}

func policyFor(s Strategy) extraPolicy {
	switch s {
	case StrategyPerformance:
		return performanceBonus{}
	case StrategyRetentionTrigger:
		return emergencyReserve{}
	default:
		return noExtra{}
	}
}

// noExtra allocates the whole budget proportionally.
type noExtra struct{}

func (noExtra) share(Request) float64                                   { return 0 }
func (noExtra) plan([]candidate) extraPlan                              { return extraPlan{} }
func (noExtra) annotate(*StrategyAllocation, candidate, bool, float64) {}
func (noExtra) summarize(*StrategyResult, runTotals)                    {}

// performanceBonus pays a bonus pool to the top quintile by value-add,
// weighted by expected graduates and normalised value-add.
type performanceBonus struct{}

func (performanceBonus) share(req Request) float64 { return req.PerformanceBonusPct }

func (performanceBonus) plan(cands []candidate) extraPlan {
	values := make([]float64, len(cands))
	for i, c := range cands {
		values[i] = c.valueAdd
	}
	p := extraPlan{
		eligible:  make([]bool, len(cands)),
		weights:   make([]float64, len(cands)),
		threshold: formulas.Quantile(BonusQuantile, values),
	}

	var total float64
	for i, c := range cands {
		if c.valueAdd >= p.threshold {
			p.eligible[i] = true
			total += c.expectedGraduates
		}
	}
	if total <= 0 {
		return p
	}
	for i, c := range cands {
		if p.eligible[i] {
			p.weights[i] = c.expectedGraduates / total * c.valueAddNorm
		}
	}
	return p
}

func (performanceBonus) annotate(a *StrategyAllocation, c candidate, eligible bool, extra float64) {
	a.PerformanceBonus = formulas.Round(extra, 2)
	a.BonusEligible = eligible
	a.ValueAddScore = formulas.Round(c.valueAdd, 2)
}

func (performanceBonus) summarize(res *StrategyResult, t runTotals) {
	res.Performance = &PerformanceSummary{
		BaseBudget:        formulas.Round(t.basePool, 2),
		BonusPool:         formulas.Round(t.extraPool, 2),
		BonusDistributed:  formulas.Round(t.distributed, 2),
		BonusEligible:     t.eligible,
		ValueAddThreshold: formulas.Round(t.threshold, 4),
	}
}

// emergencyReserve holds back a reserve for micro-grants at institutions in
// the top 30% of dropout risk, shared by need-student count.
type emergencyReserve struct{}

func (emergencyReserve) share(req Request) float64 { return req.RetentionReservePct }

func (emergencyReserve) plan(cands []candidate) extraPlan {
	risks := make([]float64, len(cands))
	for i, c := range cands {
		risks[i] = c.dropoutRisk
	}
	p := extraPlan{
		eligible:  make([]bool, len(cands)),
		weights:   make([]float64, len(cands)),
		threshold: formulas.Quantile(DropoutQuantile, risks),
	}

	var total float64
	for i, c := range cands {
		if c.dropoutRisk >= p.threshold && c.inst.CompletionRate >= EmergencyMinCompletion {
			p.eligible[i] = true
			total += float64(c.needStudents)
		}
	}
	if total <= 0 {
		return p
	}
	for i, c := range cands {
		if p.eligible[i] {
			p.weights[i] = float64(c.needStudents) / total
		}
	}
	return p
}

func (emergencyReserve) annotate(a *StrategyAllocation, c candidate, eligible bool, extra float64) {
	a.EmergencyAllocation = formulas.Round(extra, 2)
	a.EmergencyEligible = eligible
	a.DropoutRisk = formulas.Round(c.dropoutRisk, 3)
	if !eligible {
		return
	}
	atRisk := int(float64(c.needStudents) * c.dropoutRisk)
	a.MicroGrantRecipients = min(atRisk, int(extra/MicroGrantUnit))
	a.AdditionalRetained = int(float64(a.MicroGrantRecipients) * MicroGrantLift)
}

func (emergencyReserve) summarize(res *StrategyResult, t runTotals) {
	res.Retention = &RetentionSummary{
		StandardBudget:         formulas.Round(t.basePool, 2),
		EmergencyReserve:       formulas.Round(t.extraPool, 2),
		EmergencyDistributed:   formulas.Round(t.distributed, 2),
		EmergencyEligible:      t.eligible,
		DropoutThreshold:       formulas.Round(t.threshold, 4),
		MicroGrantRecipients:   t.microGrants,
		InterventionLift:       t.lift,
		TotalGraduatesWithLift: int(t.graduates + float64(t.lift)),
	}
}
