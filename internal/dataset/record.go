// Package dataset loads institution tables and normalises their rows into
// domain.Institution values.
package dataset

import (
	"database/sql"
	"fmt"
	"math"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aristath/aidalloc/internal/domain"
)

// Record is one raw row of an institution table. Metrics that were absent
// or unparseable are not Valid.
type Record struct {
	ID              string
	Name            string
	State           string
	StudentSize     sql.NullFloat64
	RetentionRate   sql.NullFloat64
	CompletionRate  sql.NullFloat64
	NeedRate        sql.NullFloat64
	RiskIndex       sql.NullFloat64
	ValueAddRatio   sql.NullFloat64
	Selectivity     sql.NullFloat64
	RiskExplanation sql.NullString
}

type metricRule struct {
	field domain.Field
	value func(r *Record) sql.NullFloat64
	valid func(v float64) bool
	set   func(inst *domain.Institution, v float64)
}

func isRate(v float64) bool { return v >= 0 && v <= 1 }

var metricRules = []metricRule{
	{
		field: domain.FieldStudentSize,
		value: func(r *Record) sql.NullFloat64 { return r.StudentSize },
		valid: func(v float64) bool { return v >= 1 },
		set:   func(inst *domain.Institution, v float64) { inst.StudentSize = int(math.Round(v)) },
	},
	{
		field: domain.FieldRetentionRate,
		value: func(r *Record) sql.NullFloat64 { return r.RetentionRate },
		valid: isRate,
		set:   func(inst *domain.Institution, v float64) { inst.RetentionRate = v },
	},
	{
		field: domain.FieldCompletionRate,
		value: func(r *Record) sql.NullFloat64 { return r.CompletionRate },
		valid: isRate,
		set:   func(inst *domain.Institution, v float64) { inst.CompletionRate = v },
	},
	{
		field: domain.FieldNeedRate,
		value: func(r *Record) sql.NullFloat64 { return r.NeedRate },
		valid: isRate,
		set:   func(inst *domain.Institution, v float64) { inst.NeedRate = v },
	},
	{
		field: domain.FieldRiskIndex,
		value: func(r *Record) sql.NullFloat64 { return r.RiskIndex },
		valid: func(v float64) bool { return v >= 0 && v <= 100 },
		set:   func(inst *domain.Institution, v float64) { inst.RiskIndex = v },
	},
	{
		field: domain.FieldValueAddRatio,
		value: func(r *Record) sql.NullFloat64 { return r.ValueAddRatio },
		valid: func(v float64) bool { return v >= 0 },
		set:   func(inst *domain.Institution, v float64) { inst.ValueAddRatio = v },
	},
	{
		field: domain.FieldSelectivity,
		value: func(r *Record) sql.NullFloat64 { return r.Selectivity },
		valid: func(v float64) bool { return v > 0 },
		set:   func(inst *domain.Institution, v float64) { inst.Selectivity = v },
	},
}

// Normalize converts the record into an Institution. Absent or out-of-range
// metrics are flagged in Missing and reported as issues; their value stays zero.
func (r Record) Normalize() (domain.Institution, []domain.DataQualityIssue) {
	inst := domain.Institution{
		ID:    strings.TrimSpace(r.ID),
		Name:  strings.TrimSpace(r.Name),
		State: strings.ToUpper(strings.TrimSpace(r.State)),
	}
	var issues []domain.DataQualityIssue
	flag := func(f domain.Field, reason string) {
		inst.Missing = inst.Missing.With(f)
		issues = append(issues, domain.DataQualityIssue{
			InstitutionID: inst.ID,
			Field:         f.String(),
			Reason:        reason,
		})
	}

	for _, rule := range metricRules {
		v := rule.value(&r)
		switch {
		case !v.Valid || math.IsNaN(v.Float64):
			flag(rule.field, "missing")
		case math.IsInf(v.Float64, 0) || !rule.valid(v.Float64):
			flag(rule.field, fmt.Sprintf("out of range (%g)", v.Float64))
		default:
			rule.set(&inst, v.Float64)
		}
	}

	if r.RiskExplanation.Valid && strings.TrimSpace(r.RiskExplanation.String) != "" {
		exp, err := ParseExplanation(r.RiskExplanation.String)
		if err != nil {
			issues = append(issues, domain.DataQualityIssue{
				InstitutionID: inst.ID,
				Field:         "risk_explanation",
				Reason:        "unparseable, reported as unavailable",
			})
		} else {
			inst.RiskExplanation = exp
		}
	}
	return inst, issues
}

// ParseExplanation decodes a risk explanation. Both JSON and the
// single-quoted mapping notation written by analysis notebooks are accepted;
// only the first domain.MaxRiskFactors factors are kept.
func ParseExplanation(raw string) (*domain.RiskExplanation, error) {
	var exp domain.RiskExplanation
	if err := yaml.Unmarshal([]byte(raw), &exp); err != nil {
		return nil, fmt.Errorf("decode risk explanation: %w", err)
	}
	if exp.Factors == nil {
		exp.Factors = []domain.RiskFactor{}
	}
	if len(exp.Factors) > domain.MaxRiskFactors {
		exp.Factors = exp.Factors[:domain.MaxRiskFactors]
	}
	return &exp, nil
}
