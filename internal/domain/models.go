// Package domain provides core domain models and types.
package domain

import (
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"
)

// Field identifies one per-institution metric.
type Field uint16

const (
	FieldStudentSize Field = 1 << iota
	FieldRetentionRate
	FieldCompletionRate
	FieldNeedRate
	FieldRiskIndex
	FieldValueAddRatio
	FieldSelectivity
)

var fieldNames = map[Field]string{
	FieldStudentSize:    "student_size",
	FieldRetentionRate:  "retention_rate",
	FieldCompletionRate: "completion_rate",
	FieldNeedRate:       "pell_rate",
	FieldRiskIndex:      "risk_index",
	FieldValueAddRatio:  "value_add_ratio",
	FieldSelectivity:    "sat_avg",
}

// String returns the dataset column name of the field.
func (f Field) String() string {
	if name, ok := fieldNames[f]; ok {
		return name
	}
	return "unknown"
}

// FieldSet is a bit set of fields.
type FieldSet uint16

// Has reports whether f is in the set.
func (s FieldSet) Has(f Field) bool {
	return s&FieldSet(f) != 0
}

// With returns a copy of the set including f.
func (s FieldSet) With(f Field) FieldSet {
	return s | FieldSet(f)
}

// Fields lists the members of the set in declaration order.
func (s FieldSet) Fields() []Field {
	var out []Field
	for f := FieldStudentSize; f <= FieldSelectivity; f <<= 1 {
		if s.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// MetricDefaults are the values substituted for missing metrics.
type MetricDefaults struct {
	StudentSize   int
	RetentionRate float64
	NeedRate      float64
	RiskIndex     float64
}

// DefaultMetrics are applied when a dataset row lacks a metric the
// discrete optimizer needs.
var DefaultMetrics = MetricDefaults{
	StudentSize:   1000,
	RetentionRate: 0.5,
	NeedRate:      0.3,
	RiskIndex:     50,
}

// RiskFactor is one explanatory factor computed upstream. Keys other than
// the four named ones (priority, for instance) are kept in Extra and written
// back out alongside them.
type RiskFactor struct {
	Factor      string                 `json:"factor" yaml:"factor"`
	Value       string                 `json:"value" yaml:"value"`
	Explanation string                 `json:"explanation,omitempty" yaml:"explanation"`
	Severity    string                 `json:"severity" yaml:"severity"`
	Extra       map[string]interface{} `json:"-" yaml:",inline"`
}

type plainRiskFactor RiskFactor

// fields flattens the factor into one mapping. Named fields win over Extra.
func (f RiskFactor) fields() map[string]interface{} {
	m := make(map[string]interface{}, len(f.Extra)+4)
	for k, v := range f.Extra {
		m[k] = v
	}
	m["factor"] = f.Factor
	m["value"] = f.Value
	m["severity"] = f.Severity
	if f.Explanation != "" {
		m["explanation"] = f.Explanation
	} else {
		delete(m, "explanation")
	}
	return m
}

// MarshalJSON implements json.Marshaler.
func (f RiskFactor) MarshalJSON() ([]byte, error) {
	if len(f.Extra) == 0 {
		return json.Marshal(plainRiskFactor(f))
	}
	return json.Marshal(f.fields())
}

// EncodeMsgpack implements msgpack.CustomEncoder.
func (f RiskFactor) EncodeMsgpack(enc *msgpack.Encoder) error {
	if len(f.Extra) == 0 {
		return enc.Encode(plainRiskFactor(f))
	}
	return enc.Encode(f.fields())
}

// RiskExplanation holds up to three factors ordered by severity plus a summary.
type RiskExplanation struct {
	Factors []RiskFactor `json:"factors" yaml:"factors"`
	Summary string       `json:"summary" yaml:"summary"`
}

// MaxRiskFactors is the number of factors kept from an upstream explanation.
const MaxRiskFactors = 3

// UnavailableExplanation is reported when no explanation was supplied.
func UnavailableExplanation() RiskExplanation {
	return RiskExplanation{Factors: []RiskFactor{}, Summary: "Data unavailable"}
}

// Institution is one cleaned row of the institution dataset.
// Values are immutable once built; Missing records which metrics were absent
// or invalid in the source and therefore hold a default (or zero) value.
type Institution struct {
	ID              string
	Name            string
	State           string
	StudentSize     int
	RetentionRate   float64
	CompletionRate  float64
	NeedRate        float64
	RiskIndex       float64
	ValueAddRatio   float64
	Selectivity     float64
	RiskExplanation *RiskExplanation
	Missing         FieldSet
}

// Has reports whether the metric was present and valid in the source.
func (i Institution) Has(f Field) bool {
	return !i.Missing.Has(f)
}

// RetentionOr returns the retention rate, or fallback when it was missing.
func (i Institution) RetentionOr(fallback float64) float64 {
	if i.Missing.Has(FieldRetentionRate) {
		return fallback
	}
	return i.RetentionRate
}

// ValueAddOr returns the value-add ratio, or fallback when it was missing.
func (i Institution) ValueAddOr(fallback float64) float64 {
	if i.Missing.Has(FieldValueAddRatio) {
		return fallback
	}
	return i.ValueAddRatio
}

// Explanation returns the pass-through explanation or the unavailable marker.
func (i Institution) Explanation() RiskExplanation {
	if i.RiskExplanation == nil {
		return UnavailableExplanation()
	}
	return *i.RiskExplanation
}
