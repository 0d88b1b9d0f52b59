package allocation

import (
	"github.com/rs/zerolog"

	"github.com/aristath/aidalloc/internal/domain"
	"github.com/aristath/aidalloc/pkg/formulas"
)

// Defaults for metrics the continuous strategies can do without.
const (
	DefaultValueAdd  = 3.0
	DefaultRetention = 0.7

	valueAddEpsilon = 0.001
)

// requiredFields must be present for an institution to be a candidate.
var requiredFields = []domain.Field{
	domain.FieldStudentSize,
	domain.FieldCompletionRate,
	domain.FieldNeedRate,
}

// candidate is the derived view of one institution. The institution itself
// is never modified.
type candidate struct {
	inst              domain.Institution
	needStudents      int
	expectedGraduates float64
	valueAdd          float64
	valueAddNorm      float64
	dropoutRisk       float64
}

// buildCandidates excludes institutions missing a required metric, keeps
// those at or above minCompletion and derives the per-institution figures.
func buildCandidates(institutions []domain.Institution, minCompletion float64, log zerolog.Logger) ([]candidate, domain.DataQuality) {
	var quality domain.DataQuality
	cands := make([]candidate, 0, len(institutions))

	for _, inst := range institutions {
		if f, ok := firstMissing(inst); ok {
			quality.Exclude(domain.DataQualityIssue{
				InstitutionID: inst.ID,
				Field:         f.String(),
				Reason:        "missing, institution excluded",
			})
			continue
		}
		if inst.CompletionRate < minCompletion {
			continue
		}

		c := candidate{
			inst:         inst,
			needStudents: int(float64(inst.StudentSize) * inst.NeedRate),
			valueAdd:     inst.ValueAddOr(DefaultValueAdd),
			dropoutRisk:  1 - inst.RetentionOr(DefaultRetention),
		}
		c.expectedGraduates = float64(c.needStudents) * inst.CompletionRate

		if !inst.Has(domain.FieldValueAddRatio) {
			quality.Add(domain.DataQualityIssue{
				InstitutionID: inst.ID,
				Field:         domain.FieldValueAddRatio.String(),
				Reason:        "missing, defaulted to 3",
			})
		}
		if !inst.Has(domain.FieldRetentionRate) {
			quality.Add(domain.DataQualityIssue{
				InstitutionID: inst.ID,
				Field:         domain.FieldRetentionRate.String(),
				Reason:        "missing, defaulted to 0.7",
			})
		}
		cands = append(cands, c)
	}

	values := make([]float64, len(cands))
	for i, c := range cands {
		values[i] = c.valueAdd
	}
	for i, v := range formulas.NormalizeMinMax(values, valueAddEpsilon) {
		cands[i].valueAddNorm = v
	}

	if quality.Excluded > 0 {
		log.Warn().
			Int("excluded", quality.Excluded).
			Int("candidates", len(cands)).
			Msg("Institutions excluded for missing metrics")
	}
	return cands, quality
}

func firstMissing(inst domain.Institution) (domain.Field, bool) {
	for _, f := range requiredFields {
		if !inst.Has(f) {
			return f, true
		}
	}
	return 0, false
}
