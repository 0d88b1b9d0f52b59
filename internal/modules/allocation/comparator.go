package allocation

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/aidalloc/internal/domain"
	"github.com/aristath/aidalloc/pkg/formulas"
)

// ComparisonRow is one strategy's line of a comparison.
type ComparisonRow struct {
	Strategy             Strategy      `json:"strategy"`
	Status               domain.Status `json:"status"`
	Graduates            int           `json:"graduates"`
	CostPerGraduate      domain.Number `json:"cost_per_grad"`
	InstitutionsFunded   int           `json:"schools_funded"`
	BonusEligible        int           `json:"bonus_schools,omitempty"`
	MicroGrantRecipients int           `json:"micro_grant_students,omitempty"`
	InterventionLift     int           `json:"intervention_lift,omitempty"`
}

// Comparison holds every strategy run under one budget.
type Comparison struct {
	Budget  float64                      `json:"budget"`
	Rows    []ComparisonRow              `json:"comparison"`
	Results map[Strategy]*StrategyResult `json:"full_results"`
}

// Comparator runs all strategies side by side.
type Comparator struct {
	allocator *Allocator
	log       zerolog.Logger
}

// NewComparator creates a Comparator that runs strategies on allocator.
func NewComparator(allocator *Allocator, log zerolog.Logger) *Comparator {
	return &Comparator{
		allocator: allocator,
		log:       log.With().Str("component", "comparator").Logger(),
	}
}

// Compare runs every strategy with the options of req, overriding only the
// strategy. Runs share the institutions read-only and execute concurrently.
func (c *Comparator) Compare(ctx context.Context, institutions []domain.Institution, req Request) (*Comparison, error) {
	strategies := Strategies()
	results := make([]*StrategyResult, len(strategies))

	g, gctx := errgroup.WithContext(ctx)
	for i, s := range strategies {
		i, s := i, s
		g.Go(func() error {
			r := req
			r.Strategy = s
			res, err := c.allocator.Allocate(gctx, institutions, r)
			if err != nil {
				return fmt.Errorf("strategy %s: %w", s, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	cmp := &Comparison{
		Budget:  req.Budget,
		Rows:    make([]ComparisonRow, 0, len(results)),
		Results: make(map[Strategy]*StrategyResult, len(results)),
	}
	for _, res := range results {
		cmp.Results[res.Strategy] = res
		cmp.Rows = append(cmp.Rows, comparisonRow(res, req.Budget))
	}

	evt := c.log.Info().Float64("budget", req.Budget)
	for _, row := range cmp.Rows {
		evt = evt.Int(string(row.Strategy)+"_graduates", row.Graduates)
	}
	evt.Msg("Strategy comparison complete")
	return cmp, nil
}

// comparisonRow normalises a result. The retention-trigger row counts the
// intervention lift and prices it against the whole budget.
func comparisonRow(res *StrategyResult, budget float64) ComparisonRow {
	row := ComparisonRow{
		Strategy:           res.Strategy,
		Status:             res.Status,
		Graduates:          res.ComparableGraduates(),
		CostPerGraduate:    domain.Number(res.AvgCostPerGraduate),
		InstitutionsFunded: res.InstitutionsFunded,
	}
	if p := res.Performance; p != nil {
		row.BonusEligible = p.BonusEligible
	}
	if r := res.Retention; r != nil {
		row.MicroGrantRecipients = r.MicroGrantRecipients
		row.InterventionLift = r.InterventionLift
	}
	if res.Strategy == StrategyRetentionTrigger {
		row.CostPerGraduate = domain.Number(math.Inf(1))
		if row.Graduates > 0 {
			row.CostPerGraduate = domain.Number(formulas.Round(budget/float64(row.Graduates), 2))
		}
	}
	return row
}
