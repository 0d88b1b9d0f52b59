// Package impact estimates how an investment moves an institution's outcome rate.
package impact

import "math"

// Curve constants
const (
	DefaultSaturation = 50_000.0 // Investment at which ~63% of the potential lift is realised
	DefaultRiskWeight = 0.5      // Lift contribution of a risk index of 100
	DefaultNeedWeight = 0.3      // Lift contribution of a need rate of 1
)

// Scorer applies a diminishing-returns curve to an investment:
//
//	investment_factor = 1 - exp(-investment / saturation)
//	improvement       = investment_factor * (risk/100 * wRisk + need * wNeed) * (1 - base)
//	projected         = base + improvement
//
// Projected rates are not clamped; with pathological inputs they may exceed 1.
type Scorer struct {
	Saturation float64
	RiskWeight float64
	NeedWeight float64
}

// NewScorer returns a scorer with the default curve.
func NewScorer() Scorer {
	return Scorer{
		Saturation: DefaultSaturation,
		RiskWeight: DefaultRiskWeight,
		NeedWeight: DefaultNeedWeight,
	}
}

// InvestmentFactor returns the saturating share of potential lift bought by investment.
func (s Scorer) InvestmentFactor(investment float64) float64 {
	if investment <= 0 || s.Saturation <= 0 {
		return 0
	}
	return 1 - math.Exp(-investment/s.Saturation)
}

// Improvement returns the projected increase of baseRate.
func (s Scorer) Improvement(baseRate, investment, riskIndex, needRate float64) float64 {
	riskFactor := (riskIndex / 100) * s.RiskWeight
	needFactor := needRate * s.NeedWeight
	return s.InvestmentFactor(investment) * (riskFactor + needFactor) * (1 - baseRate)
}

// Score returns the projected outcome rate after investing.
func (s Scorer) Score(baseRate, investment, riskIndex, needRate float64) float64 {
	return baseRate + s.Improvement(baseRate, investment, riskIndex, needRate)
}

// Score evaluates the default curve.
func Score(baseRate, investment, riskIndex, needRate float64) float64 {
	return NewScorer().Score(baseRate, investment, riskIndex, needRate)
}
