package testing

import (
	"encoding/csv"
	"os"
	"strconv"
	"testing"

	"github.com/aristath/aidalloc/internal/domain"
)

// InstitutionColumns is the canonical dataset header.
var InstitutionColumns = []string{
	"id", "name", "state", "student_size", "retention_rate", "completion_rate",
	"pell_rate", "risk_index", "value_add_ratio", "sat_avg", "risk_explanation",
}

// NewInstitutionFixtures returns a small population covering high and low
// risk, high and low need, and missing metrics.
func NewInstitutionFixtures() []domain.Institution {
	return []domain.Institution{
		{
			ID: "100001", Name: "North Valley College", State: "NY",
			StudentSize: 4000, RetentionRate: 0.55, CompletionRate: 0.40, NeedRate: 0.62,
			RiskIndex: 72, ValueAddRatio: 2.5, Selectivity: 980,
			RiskExplanation: &domain.RiskExplanation{
				Factors: []domain.RiskFactor{
					{Factor: "retention", Value: "55%", Explanation: "below peer median", Severity: "high"},
					{Factor: "pell_share", Value: "62%", Severity: "medium"},
				},
				Summary: "Low retention among a high-need population",
			},
		},
		{
			ID: "100002", Name: "South Plains University", State: "TX",
			StudentSize: 2500, RetentionRate: 0.61, CompletionRate: 0.35, NeedRate: 0.48,
			RiskIndex: 65, ValueAddRatio: 4.0, Selectivity: 1050,
		},
		{
			ID: "100003", Name: "East Harbor College", State: "MA",
			StudentSize: 1200, RetentionRate: 0.58, CompletionRate: 0.52, NeedRate: 0.71,
			RiskIndex: 55, ValueAddRatio: 3.1,
			Missing: domain.FieldSet(0).With(domain.FieldSelectivity),
		},
		{
			ID: "100004", Name: "West Coast State", State: "CA",
			StudentSize: 9000, RetentionRate: 0.66, CompletionRate: 0.60, NeedRate: 0.30,
			RiskIndex: 48, ValueAddRatio: 1.8, Selectivity: 1120,
		},
		{
			ID: "100005", Name: "Central Technical Institute", State: "OH",
			StudentSize: 3000, RetentionRate: 0.49, CompletionRate: 0.31, NeedRate: 0.55,
			RiskIndex: 80, Selectivity: 900,
			Missing: domain.FieldSet(0).With(domain.FieldValueAddRatio),
		},
		{
			ID: "100006", Name: "Quiet Hills College", State: "VT",
			StudentSize: 800, RetentionRate: 0.90, CompletionRate: 0.85, NeedRate: 0.10,
			RiskIndex: 12, ValueAddRatio: 2.2, Selectivity: 1380,
		},
	}
}

// WriteInstitutionsCSV writes institutions to a CSV file under the test's
// temporary directory and returns its path. Missing metrics are written as NA.
func WriteInstitutionsCSV(t *testing.T, institutions []domain.Institution) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "institutions_*.csv")
	if err != nil {
		t.Fatalf("Failed to create institutions CSV: %v", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	rows := [][]string{InstitutionColumns}
	for _, inst := range institutions {
		explanation, err := explanationColumn(inst.RiskExplanation)
		if err != nil {
			t.Fatalf("Failed to encode risk explanation of %s: %v", inst.ID, err)
		}
		rows = append(rows, []string{
			inst.ID, inst.Name, inst.State,
			cell(inst, domain.FieldStudentSize, float64(inst.StudentSize)),
			cell(inst, domain.FieldRetentionRate, inst.RetentionRate),
			cell(inst, domain.FieldCompletionRate, inst.CompletionRate),
			cell(inst, domain.FieldNeedRate, inst.NeedRate),
			cell(inst, domain.FieldRiskIndex, inst.RiskIndex),
			cell(inst, domain.FieldValueAddRatio, inst.ValueAddRatio),
			cell(inst, domain.FieldSelectivity, inst.Selectivity),
			explanation.String,
		})
	}
	if err := w.WriteAll(rows); err != nil {
		t.Fatalf("Failed to write institutions CSV: %v", err)
	}
	return f.Name()
}

func cell(inst domain.Institution, f domain.Field, v float64) string {
	if !inst.Has(f) {
		return "NA"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
