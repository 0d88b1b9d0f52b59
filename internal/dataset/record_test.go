package dataset

import (
	"database/sql"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/aidalloc/internal/domain"
)

func valid(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: true}
}

func TestRecord_Normalize(t *testing.T) {
	rec := Record{
		ID:             " 7 ",
		Name:           " Alpha College ",
		State:          "ca",
		StudentSize:    valid(1234.4),
		RetentionRate:  valid(0.65),
		CompletionRate: valid(1.2),
		NeedRate:       valid(math.NaN()),
		RiskIndex:      valid(55),
		ValueAddRatio:  valid(-1),
	}

	inst, issues := rec.Normalize()

	want := domain.Institution{
		ID:            "7",
		Name:          "Alpha College",
		State:         "CA",
		StudentSize:   1234,
		RetentionRate: 0.65,
		RiskIndex:     55,
		Missing: domain.FieldSet(0).
			With(domain.FieldCompletionRate).
			With(domain.FieldNeedRate).
			With(domain.FieldValueAddRatio).
			With(domain.FieldSelectivity),
	}
	if diff := cmp.Diff(want, inst); diff != "" {
		t.Errorf("Normalize() mismatch (-want +got):\n%s", diff)
	}

	wantIssues := []domain.DataQualityIssue{
		{InstitutionID: "7", Field: "completion_rate", Reason: "out of range (1.2)"},
		{InstitutionID: "7", Field: "pell_rate", Reason: "missing"},
		{InstitutionID: "7", Field: "value_add_ratio", Reason: "out of range (-1)"},
		{InstitutionID: "7", Field: "sat_avg", Reason: "missing"},
	}
	if diff := cmp.Diff(wantIssues, issues); diff != "" {
		t.Errorf("issues mismatch (-want +got):\n%s", diff)
	}
}

func TestRecord_NormalizeBounds(t *testing.T) {
	tests := []struct {
		name    string
		rec     Record
		field   domain.Field
		missing bool
	}{
		{name: "zero size", rec: Record{StudentSize: valid(0)}, field: domain.FieldStudentSize, missing: true},
		{name: "rate of one", rec: Record{RetentionRate: valid(1)}, field: domain.FieldRetentionRate},
		{name: "rate of zero", rec: Record{NeedRate: valid(0)}, field: domain.FieldNeedRate},
		{name: "risk of 100", rec: Record{RiskIndex: valid(100)}, field: domain.FieldRiskIndex},
		{name: "risk above 100", rec: Record{RiskIndex: valid(100.5)}, field: domain.FieldRiskIndex, missing: true},
		{name: "infinite value-add", rec: Record{ValueAddRatio: valid(math.Inf(1))}, field: domain.FieldValueAddRatio, missing: true},
		{name: "zero value-add", rec: Record{ValueAddRatio: valid(0)}, field: domain.FieldValueAddRatio},
		{name: "zero selectivity", rec: Record{Selectivity: valid(0)}, field: domain.FieldSelectivity, missing: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst, _ := tt.rec.Normalize()
			assert.Equal(t, tt.missing, !inst.Has(tt.field))
		})
	}
}

func TestRecord_NormalizeExplanation(t *testing.T) {
	rec := Record{
		ID:              "1",
		RiskExplanation: sql.NullString{String: `{"factors": [{"factor": "Low Retention", "value": "48.0%", "severity": "high"}], "summary": "1 critical risk factor"}`, Valid: true},
	}
	inst, issues := rec.Normalize()
	require.NotNil(t, inst.RiskExplanation)
	assert.Equal(t, "1 critical risk factor", inst.Explanation().Summary)
	assert.Len(t, issues, 7, "every metric is missing")

	rec.RiskExplanation.String = "{'factors': ["
	inst, issues = rec.Normalize()
	assert.Nil(t, inst.RiskExplanation)
	assert.Equal(t, "Data unavailable", inst.Explanation().Summary)
	assert.Equal(t, "risk_explanation", issues[len(issues)-1].Field)
}

func TestParseExplanation(t *testing.T) {
	notebook := `{'factors': [` +
		`{'factor': 'Low Retention', 'value': '48.0%', 'explanation': 'Only 48% of students return for sophomore year', 'severity': 'high', 'priority': 0}, ` +
		`{'factor': 'Low Completion', 'value': '22.0%', 'explanation': 'Only 22% graduate within 6 years', 'severity': 'high', 'priority': 0}, ` +
		`{'factor': 'High Pell Dependency', 'value': '71.0%', 'explanation': "71% of students rely on Pell Grants", 'severity': 'high', 'priority': 0}, ` +
		`{'factor': 'Non-Selective Admissions', 'value': '91.0%', 'severity': 'low', 'priority': 2}], ` +
		`'summary': '3 critical risk factors'}`

	exp, err := ParseExplanation(notebook)
	require.NoError(t, err)

	require.Len(t, exp.Factors, domain.MaxRiskFactors)
	assert.Equal(t, domain.RiskFactor{
		Factor:      "Low Retention",
		Value:       "48.0%",
		Explanation: "Only 48% of students return for sophomore year",
		Severity:    "high",
		Extra:       map[string]interface{}{"priority": 0},
	}, exp.Factors[0])
	assert.Equal(t, "71% of students rely on Pell Grants", exp.Factors[2].Explanation)
	assert.Equal(t, "3 critical risk factors", exp.Summary)
}

func TestParseExplanation_Empty(t *testing.T) {
	exp, err := ParseExplanation(`{"summary": "No major risk factors"}`)
	require.NoError(t, err)
	assert.NotNil(t, exp.Factors)
	assert.Empty(t, exp.Factors)

	_, err = ParseExplanation("not a mapping")
	assert.Error(t, err)
}
