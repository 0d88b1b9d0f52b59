package optimization

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/aidalloc/internal/domain"
	"github.com/aristath/aidalloc/internal/modules/impact"
)

// Equity rule constants
const (
	// HighNeedThreshold is the need rate at which an institution counts as high-need.
	HighNeedThreshold = 0.5
	// EquityFloorRelaxation scales the requested high-need share into the floor
	// actually enforced, keeping the program feasible when high-need
	// institutions are numerous relative to the budget.
	EquityFloorRelaxation = 0.5
)

// Discrete run defaults
const (
	DefaultTotalBudget       = 10_000_000
	DefaultMinHighNeedShare  = 0.40
	DefaultMaxPerInstitution = 500_000
)

// DefaultTiers returns the default investment tier schedule.
func DefaultTiers() []float64 {
	return []float64{0, 50_000, 100_000, 200_000, 500_000}
}

// DefaultDiscreteRequest returns a request with every option at its default.
func DefaultDiscreteRequest() DiscreteRequest {
	return DiscreteRequest{
		TotalBudget:       DefaultTotalBudget,
		MinHighNeedShare:  DefaultMinHighNeedShare,
		MaxPerInstitution: DefaultMaxPerInstitution,
		Tiers:             DefaultTiers(),
		DisplayLimit:      DefaultDisplayLimit,
	}
}

// DiscreteRequest configures one discrete optimization run.
type DiscreteRequest struct {
	TotalBudget       float64
	MinHighNeedShare  float64
	MaxPerInstitution float64
	Tiers             []float64
	DisplayLimit      int
}

// EquityFloor is the minimum spend on high-need institutions.
func (r DiscreteRequest) EquityFloor() float64 {
	return EquityFloorRelaxation * r.MinHighNeedShare * r.TotalBudget
}

// candidate is an institution with defaults applied to the metrics the
// discrete program needs.
type candidate struct {
	inst      domain.Institution
	size      int
	retention float64
	risk      float64
	need      float64
	highNeed  bool
}

// ConstraintsManager translates institutions and a request into a BinaryProgram.
type ConstraintsManager struct {
	scorer   impact.Scorer
	defaults domain.MetricDefaults
	log      zerolog.Logger
}

// NewConstraintsManager creates a new constraints manager.
func NewConstraintsManager(scorer impact.Scorer, log zerolog.Logger) *ConstraintsManager {
	return &ConstraintsManager{
		scorer:   scorer,
		defaults: domain.DefaultMetrics,
		log:      log.With().Str("component", "constraints").Logger(),
	}
}

// ValidateRequest checks the request options.
func (cm *ConstraintsManager) ValidateRequest(req DiscreteRequest) error {
	return req.Validate()
}

// Validate checks the request options.
func (req DiscreteRequest) Validate() error {
	if math.IsNaN(req.TotalBudget) || math.IsInf(req.TotalBudget, 0) || req.TotalBudget < 0 {
		return domain.NewConfigurationError("total_budget", "must be a non-negative amount, got %v", req.TotalBudget)
	}
	if math.IsNaN(req.MinHighNeedShare) || req.MinHighNeedShare < 0 || req.MinHighNeedShare > 1 {
		return domain.NewConfigurationError("min_high_need_share", "must be within [0, 1], got %v", req.MinHighNeedShare)
	}
	if math.IsNaN(req.MaxPerInstitution) || req.MaxPerInstitution <= 0 {
		return domain.NewConfigurationError("max_per_institution", "must be positive, got %v", req.MaxPerInstitution)
	}
	if len(req.Tiers) == 0 {
		return domain.NewConfigurationError("investment_tiers", "must not be empty")
	}
	if req.Tiers[0] != 0 {
		return domain.NewConfigurationError("investment_tiers", "must start with 0, got %v", req.Tiers[0])
	}
	for i := 1; i < len(req.Tiers); i++ {
		t := req.Tiers[i]
		if math.IsNaN(t) || math.IsInf(t, 0) || t <= req.Tiers[i-1] {
			return domain.NewConfigurationError("investment_tiers", "must be strictly ascending, got %v after %v", t, req.Tiers[i-1])
		}
	}
	return nil
}

// prepare applies the metric defaults and records every substitution.
func (cm *ConstraintsManager) prepare(institutions []domain.Institution) ([]candidate, domain.DataQuality) {
	var quality domain.DataQuality
	cands := make([]candidate, 0, len(institutions))

	for _, inst := range institutions {
		c := candidate{
			inst:      inst,
			size:      inst.StudentSize,
			retention: inst.RetentionRate,
			risk:      inst.RiskIndex,
			need:      inst.NeedRate,
		}
		if !inst.Has(domain.FieldStudentSize) || c.size <= 0 {
			c.size = cm.defaults.StudentSize
			quality.Add(defaulted(inst.ID, domain.FieldStudentSize, float64(cm.defaults.StudentSize)))
		}
		if !inst.Has(domain.FieldRetentionRate) {
			c.retention = cm.defaults.RetentionRate
			quality.Add(defaulted(inst.ID, domain.FieldRetentionRate, cm.defaults.RetentionRate))
		}
		if !inst.Has(domain.FieldRiskIndex) {
			c.risk = cm.defaults.RiskIndex
			quality.Add(defaulted(inst.ID, domain.FieldRiskIndex, cm.defaults.RiskIndex))
		}
		if !inst.Has(domain.FieldNeedRate) {
			c.need = cm.defaults.NeedRate
			quality.Add(defaulted(inst.ID, domain.FieldNeedRate, cm.defaults.NeedRate))
		}
		c.highNeed = c.need >= HighNeedThreshold
		cands = append(cands, c)
	}

	if quality.Defaulted > 0 {
		cm.log.Debug().Int("defaulted", quality.Defaulted).Msg("Applied metric defaults")
	}
	return cands, quality
}

func defaulted(id string, f domain.Field, value float64) domain.DataQualityIssue {
	return domain.DataQualityIssue{
		InstitutionID: id,
		Field:         f.String(),
		Reason:        fmt.Sprintf("missing, defaulted to %g", value),
	}
}

// BuildProgram builds one group per candidate with one item per eligible
// tier. Tiers above MaxPerInstitution are not offered. The floor row is
// added only when at least one candidate is high-need.
func (cm *ConstraintsManager) BuildProgram(cands []candidate, req DiscreteRequest) *BinaryProgram {
	p := &BinaryProgram{
		Groups:   make([]Group, 0, len(cands)),
		Capacity: req.TotalBudget,
	}

	for _, c := range cands {
		g := Group{ID: c.inst.ID, Floor: c.highNeed}
		for j, tier := range req.Tiers {
			if tier > req.MaxPerInstitution {
				break
			}
			improvement := cm.scorer.Improvement(c.retention, tier, c.risk, c.need)
			g.Items = append(g.Items, Item{
				Tier:  j,
				Cost:  tier,
				Value: float64(c.size) * improvement,
			})
		}
		if c.highNeed {
			p.HasFloor = true
		}
		p.Groups = append(p.Groups, g)
	}
	if p.HasFloor {
		p.FloorMin = req.EquityFloor()
	}

	cm.log.Debug().
		Int("groups", len(p.Groups)).
		Int("variables", p.Variables()).
		Bool("equity_floor", p.HasFloor).
		Msg("Built discrete program")
	return p
}

// ConstraintsSummary describes a built program for diagnostics.
type ConstraintsSummary struct {
	Institutions       int     `json:"institutions"`
	HighNeed           int     `json:"high_need_institutions"`
	Variables          int     `json:"variables"`
	Budget             float64 `json:"budget"`
	EquityFloor        float64 `json:"equity_floor"`
	MinimumSpend       float64 `json:"minimum_spend"`
	MaxFloorReachable  float64 `json:"max_floor_reachable"`
	EquityFloorEnabled bool    `json:"equity_floor_enabled"`
}

// GetConstraintSummary generates a summary of constraints for diagnostics.
func (cm *ConstraintsManager) GetConstraintSummary(p *BinaryProgram) ConstraintsSummary {
	summary := ConstraintsSummary{
		Institutions:       len(p.Groups),
		Variables:          p.Variables(),
		Budget:             p.Capacity,
		EquityFloor:        p.FloorMin,
		EquityFloorEnabled: p.HasFloor,
	}
	for _, g := range p.Groups {
		minCost, maxCost := math.Inf(1), 0.0
		for _, it := range g.Items {
			minCost = math.Min(minCost, it.Cost)
			maxCost = math.Max(maxCost, it.Cost)
		}
		summary.MinimumSpend += minCost
		if g.Floor {
			summary.HighNeed++
			summary.MaxFloorReachable += maxCost
		}
	}
	return summary
}

// ValidateConstraints detects programs that are infeasible before any solve:
// the cheapest assignment already overspends, or the high-need institutions
// cannot reach the floor even when all of the budget goes to them.
func (cm *ConstraintsManager) ValidateConstraints(p *BinaryProgram) error {
	summary := cm.GetConstraintSummary(p)
	if summary.MinimumSpend > p.Capacity+tolerance(p.Capacity) {
		return fmt.Errorf("%w: minimum spend %.2f exceeds budget %.2f",
			domain.ErrInfeasible, summary.MinimumSpend, p.Capacity)
	}
	if p.HasFloor {
		reach := math.Min(summary.MaxFloorReachable, p.Capacity)
		if reach < p.FloorMin-tolerance(p.FloorMin) {
			return fmt.Errorf("%w: equity floor %.2f exceeds the %.2f high-need institutions can absorb",
				domain.ErrInfeasible, p.FloorMin, reach)
		}
	}
	return nil
}
