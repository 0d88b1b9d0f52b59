// Package scenario narrows the institution population to a candidate set
// the discrete optimizer can solve.
package scenario

import (
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/aristath/aidalloc/internal/domain"
)

// Selection defaults
const (
	DefaultRiskThreshold  = 40.0
	DefaultCandidateLimit = 100
)

// Criteria configures one selection.
type Criteria struct {
	// RiskThreshold is the minimum composite risk index.
	RiskThreshold float64
	// CandidateLimit caps the number of institutions, lowest retention first.
	CandidateLimit int
	// MinSelectivity drops institutions reporting a selectivity metric below
	// it. Zero disables the filter.
	MinSelectivity float64
}

// DefaultCriteria returns the default selection criteria.
func DefaultCriteria() Criteria {
	return Criteria{
		RiskThreshold:  DefaultRiskThreshold,
		CandidateLimit: DefaultCandidateLimit,
	}
}

// Validate checks the criteria.
func (c Criteria) Validate() error {
	if math.IsNaN(c.RiskThreshold) || c.RiskThreshold < 0 || c.RiskThreshold > 100 {
		return domain.NewConfigurationError("risk_threshold", "must be within [0, 100], got %g", c.RiskThreshold)
	}
	if c.CandidateLimit <= 0 {
		return domain.NewConfigurationError("candidate_limit", "must be positive, got %d", c.CandidateLimit)
	}
	if math.IsNaN(c.MinSelectivity) || c.MinSelectivity < 0 {
		return domain.NewConfigurationError("min_selectivity", "must not be negative, got %g", c.MinSelectivity)
	}
	return nil
}

// Selection is the outcome of Select.
type Selection struct {
	Institutions []domain.Institution
	// Population is the size of the input.
	Population int
	// AboveThreshold counts institutions at or above the risk threshold.
	AboveThreshold int
	// Unranked counts institutions dropped for a missing risk or retention.
	Unranked int
	// BelowSelectivity counts institutions dropped by the selectivity filter.
	BelowSelectivity int
}

// Selector filters the population before optimization.
type Selector struct {
	log zerolog.Logger
}

// NewSelector creates a Selector.
func NewSelector(log zerolog.Logger) *Selector {
	return &Selector{log: log.With().Str("component", "scenario_selector").Logger()}
}

// Select keeps institutions with risk at or above the threshold, takes the
// CandidateLimit lowest-retention ones and applies the selectivity filter.
// Institutions without a risk index or retention rate cannot be ranked and
// are left out; institutions without a selectivity metric are kept. An
// empty selection is returned together with a ConfigurationError.
func (s *Selector) Select(institutions []domain.Institution, c Criteria) (Selection, error) {
	sel := Selection{Population: len(institutions)}
	if err := c.Validate(); err != nil {
		return sel, err
	}

	ranked := make([]domain.Institution, 0, len(institutions))
	for _, inst := range institutions {
		if !inst.Has(domain.FieldRiskIndex) || !inst.Has(domain.FieldRetentionRate) {
			sel.Unranked++
			continue
		}
		if inst.RiskIndex >= c.RiskThreshold {
			ranked = append(ranked, inst)
		}
	}
	sel.AboveThreshold = len(ranked)

	// Ties keep dataset order.
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].RetentionRate < ranked[j].RetentionRate
	})
	if len(ranked) > c.CandidateLimit {
		ranked = ranked[:c.CandidateLimit]
	}

	if c.MinSelectivity > 0 {
		kept := ranked[:0]
		for _, inst := range ranked {
			if inst.Has(domain.FieldSelectivity) && inst.Selectivity < c.MinSelectivity {
				sel.BelowSelectivity++
				continue
			}
			kept = append(kept, inst)
		}
		ranked = kept
	}
	sel.Institutions = ranked

	s.log.Debug().
		Int("population", sel.Population).
		Int("above_threshold", sel.AboveThreshold).
		Int("unranked", sel.Unranked).
		Int("below_selectivity", sel.BelowSelectivity).
		Int("selected", len(sel.Institutions)).
		Msg("Scenario selection")

	if len(sel.Institutions) == 0 {
		if c.MinSelectivity > 0 {
			return sel, domain.NewConfigurationError("candidates", "no institutions match the filters (selectivity >= %g)", c.MinSelectivity)
		}
		return sel, domain.NewConfigurationError("candidates", "no institutions with risk index >= %g", c.RiskThreshold)
	}
	return sel, nil
}
