package optimization

import (
	"fmt"
	"math"

	"github.com/dustin/go-humanize"

	"github.com/aristath/aidalloc/pkg/formulas"
)

// Band is a per-student funding band of a distribution recommendation.
type Band string

const (
	BandHighImpact   Band = "high_impact"
	BandModerate     Band = "moderate"
	BandDistributed  Band = "distributed"
	BandSupplemental Band = "supplemental"
)

// Band thresholds in dollars per need-eligible student.
const (
	HighImpactPerStudent  = 5000.0
	ModeratePerStudent    = 2500.0
	DistributedPerStudent = 1000.0
)

// StudentDistribution describes how an institution's investment reaches students.
type StudentDistribution struct {
	NeedEligibleStudents  int     `json:"pell_eligible_students"`
	AtRiskStudents        int     `json:"at_risk_students"`
	NeedAtRiskOverlap     int     `json:"pell_at_risk_overlap"`
	RecommendedPerStudent float64 `json:"recommended_per_student"`
	PerAtRiskStudent      float64 `json:"per_at_risk_student"`
	Band                  Band    `json:"band"`
	Strategy              string  `json:"distribution_strategy"`
}

// Distribute derives the student counts and the recommendation text for an
// investment. Counts are whole students, rounded down.
func Distribute(investment float64, size int, baseRate, needRate float64) StudentDistribution {
	needStudents := int(float64(size) * needRate)
	atRisk := int(float64(size) * (1 - baseRate))
	overlap := int(float64(needStudents) * (1 - baseRate))

	perStudent := investment / float64(max(needStudents, 1))

	d := StudentDistribution{
		NeedEligibleStudents:  needStudents,
		AtRiskStudents:        atRisk,
		NeedAtRiskOverlap:     overlap,
		RecommendedPerStudent: formulas.Round(perStudent, 2),
		PerAtRiskStudent:      formulas.Round(investment/float64(max(overlap, 1)), 2),
	}

	amount := dollars(perStudent)
	switch {
	case perStudent > HighImpactPerStudent:
		d.Band = BandHighImpact
		d.Strategy = fmt.Sprintf("High-impact grants: $%s/student for %d highest-need students",
			amount, max(1, int(investment/HighImpactPerStudent)))
	case perStudent > ModeratePerStudent:
		d.Band = BandModerate
		d.Strategy = fmt.Sprintf("Moderate grants: $%s/student, prioritize %d at-risk Pell recipients",
			amount, overlap)
	case perStudent > DistributedPerStudent:
		d.Band = BandDistributed
		d.Strategy = fmt.Sprintf("Distributed grants: $%s/student across all Pell recipients", amount)
	default:
		d.Band = BandSupplemental
		d.Strategy = fmt.Sprintf("Supplemental support: $%s/student emergency fund + academic resources", amount)
	}
	return d
}

func dollars(v float64) string {
	return humanize.Comma(int64(math.Round(v)))
}
