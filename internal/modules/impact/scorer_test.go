package impact

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScore_KnownValues(t *testing.T) {
	tests := []struct {
		name       string
		base       float64
		investment float64
		risk       float64
		need       float64
		expected   float64
	}{
		{
			name:       "zero investment leaves base unchanged",
			base:       0.6,
			investment: 0,
			risk:       80,
			need:       0.7,
			expected:   0.6,
		},
		{
			name:       "saturation point",
			base:       0.5,
			investment: 50_000,
			risk:       100,
			need:       0.5,
			// (1 - e^-1) * (0.5 + 0.15) * 0.5
			expected: 0.5 + (1-math.Exp(-1))*0.65*0.5,
		},
		{
			name:       "perfect base rate has no headroom",
			base:       1.0,
			investment: 500_000,
			risk:       100,
			need:       1,
			expected:   1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Score(tt.base, tt.investment, tt.risk, tt.need), 1e-12)
		})
	}
}

func TestScore_NeverBelowBase(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	s := NewScorer()
	for i := 0; i < 1000; i++ {
		base := rng.Float64()
		investment := rng.Float64() * 1_000_000
		risk := rng.Float64() * 100
		need := rng.Float64()
		assert.GreaterOrEqual(t, s.Score(base, investment, risk, need), base)
	}
}

func TestScore_DiminishingReturns(t *testing.T) {
	s := NewScorer()
	first := s.Improvement(0.5, 50_000, 70, 0.6)
	second := s.Improvement(0.5, 100_000, 70, 0.6) - first
	assert.Greater(t, first, second)

	// saturates towards the full potential
	full := (0.7*DefaultRiskWeight + 0.6*DefaultNeedWeight) * 0.5
	assert.InDelta(t, full, s.Improvement(0.5, 5_000_000, 70, 0.6), 1e-9)
}

func TestInvestmentFactor(t *testing.T) {
	s := NewScorer()
	assert.Equal(t, 0.0, s.InvestmentFactor(0))
	assert.Equal(t, 0.0, s.InvestmentFactor(-10))
	assert.InDelta(t, 1-math.Exp(-2), s.InvestmentFactor(100_000), 1e-12)
}
