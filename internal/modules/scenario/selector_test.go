package scenario

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/aidalloc/internal/domain"
)

func institution(id string, risk, retention, selectivity float64) domain.Institution {
	return domain.Institution{
		ID:            id,
		StudentSize:   1000,
		RetentionRate: retention,
		NeedRate:      0.5,
		RiskIndex:     risk,
		Selectivity:   selectivity,
	}
}

func ids(insts []domain.Institution) []string {
	out := make([]string, len(insts))
	for i, inst := range insts {
		out[i] = inst.ID
	}
	return out
}

func TestSelect_RiskThresholdAndOrdering(t *testing.T) {
	population := []domain.Institution{
		institution("low-risk", 39.9, 0.2, 1000),
		institution("a", 40, 0.6, 1000),
		institution("b", 80, 0.4, 1000),
		institution("c", 55, 0.6, 1000),
		institution("d", 90, 0.5, 1000),
	}

	sel, err := NewSelector(zerolog.Nop()).Select(population, DefaultCriteria())
	require.NoError(t, err)

	assert.Equal(t, 5, sel.Population)
	assert.Equal(t, 4, sel.AboveThreshold)
	// a and c tie on retention and keep their dataset order.
	assert.Equal(t, []string{"b", "d", "a", "c"}, ids(sel.Institutions))
}

func TestSelect_CandidateLimit(t *testing.T) {
	var population []domain.Institution
	for i := 0; i < 150; i++ {
		population = append(population, institution(fmt.Sprintf("i%03d", i), 60, 0.9-float64(i)*0.005, 0))
	}

	sel, err := NewSelector(zerolog.Nop()).Select(population, DefaultCriteria())
	require.NoError(t, err)

	require.Len(t, sel.Institutions, DefaultCandidateLimit)
	assert.Equal(t, "i149", sel.Institutions[0].ID)
	assert.Equal(t, "i050", sel.Institutions[99].ID)
}

func TestSelect_SelectivityKeepsMissing(t *testing.T) {
	unreported := institution("unreported", 70, 0.5, 0)
	unreported.Missing = unreported.Missing.With(domain.FieldSelectivity)
	population := []domain.Institution{
		institution("below", 70, 0.4, 950),
		institution("above", 70, 0.6, 1150),
		unreported,
	}

	c := DefaultCriteria()
	c.MinSelectivity = 1000
	sel, err := NewSelector(zerolog.Nop()).Select(population, c)
	require.NoError(t, err)

	assert.Equal(t, []string{"unreported", "above"}, ids(sel.Institutions))
	assert.Equal(t, 1, sel.BelowSelectivity)
}

func TestSelect_SkipsUnrankable(t *testing.T) {
	noRisk := institution("no-risk", 0, 0.3, 0)
	noRisk.Missing = noRisk.Missing.With(domain.FieldRiskIndex)
	noRetention := institution("no-retention", 90, 0, 0)
	noRetention.Missing = noRetention.Missing.With(domain.FieldRetentionRate)

	sel, err := NewSelector(zerolog.Nop()).Select([]domain.Institution{noRisk, noRetention, institution("ok", 50, 0.5, 0)}, DefaultCriteria())
	require.NoError(t, err)

	assert.Equal(t, []string{"ok"}, ids(sel.Institutions))
	assert.Equal(t, 2, sel.Unranked)
}

func TestSelect_Empty(t *testing.T) {
	tests := []struct {
		name     string
		criteria Criteria
		message  string
	}{
		{
			name:     "no institution above the risk threshold",
			criteria: Criteria{RiskThreshold: 95, CandidateLimit: 10},
			message:  "no institutions with risk index >= 95",
		},
		{
			name:     "selectivity filter removes everything",
			criteria: Criteria{RiskThreshold: 40, CandidateLimit: 10, MinSelectivity: 1500},
			message:  "no institutions match the filters (selectivity >= 1500)",
		},
	}

	population := []domain.Institution{institution("a", 60, 0.5, 1000), institution("b", 70, 0.4, 1100)}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := NewSelector(zerolog.Nop()).Select(population, tt.criteria)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrConfiguration))
			assert.Contains(t, err.Error(), tt.message)
			assert.Empty(t, sel.Institutions)
		})
	}
}

func TestSelect_InvalidCriteria(t *testing.T) {
	tests := []struct {
		name     string
		criteria Criteria
		field    string
	}{
		{name: "risk above 100", criteria: Criteria{RiskThreshold: 120, CandidateLimit: 10}, field: "risk_threshold"},
		{name: "zero limit", criteria: Criteria{RiskThreshold: 40}, field: "candidate_limit"},
		{name: "negative selectivity", criteria: Criteria{RiskThreshold: 40, CandidateLimit: 10, MinSelectivity: -1}, field: "min_selectivity"},
		{name: "NaN risk", criteria: Criteria{RiskThreshold: math.NaN(), CandidateLimit: 10}, field: "risk_threshold"},
		{name: "NaN selectivity", criteria: Criteria{RiskThreshold: 40, CandidateLimit: 10, MinSelectivity: math.NaN()}, field: "min_selectivity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSelector(zerolog.Nop()).Select(nil, tt.criteria)
			var cfgErr *domain.ConfigurationError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestSelect_DoesNotReorderInput(t *testing.T) {
	population := []domain.Institution{
		institution("a", 60, 0.9, 0),
		institution("b", 60, 0.1, 0),
	}
	_, err := NewSelector(zerolog.Nop()).Select(population, DefaultCriteria())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(population))
}
