package scenario

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/aristath/aidalloc/internal/domain"
	"github.com/aristath/aidalloc/internal/modules/optimization"
)

// Runner selects a candidate set and runs the discrete optimizer on it.
type Runner struct {
	selector  *Selector
	optimizer *optimization.DiscreteOptimizer
	log       zerolog.Logger
}

// NewRunner creates a Runner.
func NewRunner(selector *Selector, optimizer *optimization.DiscreteOptimizer, log zerolog.Logger) *Runner {
	return &Runner{
		selector:  selector,
		optimizer: optimizer,
		log:       log.With().Str("component", "scenario_runner").Logger(),
	}
}

// Run selects institutions by c and optimizes req over them. An invalid or
// empty selection becomes a result with an Error or NoCandidates status.
func (r *Runner) Run(ctx context.Context, institutions []domain.Institution, c Criteria, req optimization.DiscreteRequest) (*optimization.Result, error) {
	sel, err := r.selector.Select(institutions, c)
	if err != nil {
		var cfgErr *domain.ConfigurationError
		status := domain.StatusError
		if errors.As(err, &cfgErr) && cfgErr.Field == "candidates" {
			status = domain.StatusNoCandidates
		}
		r.log.Warn().Err(err).Int("population", sel.Population).Msg("Scenario selection failed")
		return optimization.FailedResult(status, req.TotalBudget, err), nil
	}

	r.log.Info().
		Int("population", sel.Population).
		Int("selected", len(sel.Institutions)).
		Float64("budget", req.TotalBudget).
		Msg("Running discrete scenario")
	return r.optimizer.Optimize(ctx, sel.Institutions, req)
}
