// Package formulas holds the numeric helpers shared by the allocation engines.
package formulas

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Sum returns the sum of data, 0 for an empty slice.
func Sum(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return floats.Sum(data)
}

// MinMax returns the smallest and largest value of data.
// Both are 0 for an empty slice.
func MinMax(data []float64) (float64, float64) {
	if len(data) == 0 {
		return 0, 0
	}
	return floats.Min(data), floats.Max(data)
}

// Quantile returns the q-th quantile of data using linear interpolation
// between the closest order statistics: position (n-1)*q in the sorted data.
// This is the estimator spreadsheet tools and pandas use by default.
// gonum's stat.Quantile only offers the empirical and R-4 estimators.
func Quantile(q float64, data []float64) float64 {
	if len(data) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)

	q = math.Max(0, math.Min(1, q))
	pos := float64(len(sorted)-1) * q
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// NormalizeMinMax scales data into [0, 1) as (x - min) / (max - min + eps).
// eps keeps the division defined when every value is equal.
func NormalizeMinMax(data []float64, eps float64) []float64 {
	out := make([]float64, len(data))
	if len(data) == 0 {
		return out
	}
	lo, hi := MinMax(data)
	span := hi - lo + eps
	for i, v := range data {
		out[i] = (v - lo) / span
	}
	return out
}

// Round rounds a float64 to n decimal places. Non-finite values are returned unchanged.
func Round(val float64, decimals int) float64 {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return val
	}
	multiplier := math.Pow(10, float64(decimals))
	return math.Round(val*multiplier) / multiplier
}
