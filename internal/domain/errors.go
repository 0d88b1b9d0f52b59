package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks invalid options or an empty candidate set.
	ErrConfiguration = errors.New("configuration error")
	// ErrInfeasible marks an integer program with no feasible assignment.
	ErrInfeasible = errors.New("infeasible program")
	// ErrDataQuality marks an institution record with missing or invalid fields.
	ErrDataQuality = errors.New("data quality")
)

// ConfigurationError describes one invalid option.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

// NewConfigurationError creates a ConfigurationError.
func NewConfigurationError(field, reason string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(reason, args...)}
}

// DataQualityIssue records one missing or invalid metric of one institution.
// Excluded is set when the issue removed the institution from a candidate set.
type DataQualityIssue struct {
	InstitutionID string `json:"institution_id"`
	Field         string `json:"field"`
	Reason        string `json:"reason"`
	Excluded      bool   `json:"excluded"`
}

func (i DataQualityIssue) Error() string {
	return fmt.Sprintf("institution %s: %s %s", i.InstitutionID, i.Field, i.Reason)
}

func (i DataQualityIssue) Unwrap() error {
	return ErrDataQuality
}

// DataQuality summarises the issues seen while building a candidate set.
type DataQuality struct {
	Defaulted int                `json:"defaulted"`
	Excluded  int                `json:"excluded"`
	Issues    []DataQualityIssue `json:"issues,omitempty"`
}

// Add records an issue and updates the counters.
func (q *DataQuality) Add(issue DataQualityIssue) {
	q.Issues = append(q.Issues, issue)
	if !issue.Excluded {
		q.Defaulted++
	}
}

// Exclude records that an institution was dropped because of the given issue.
func (q *DataQuality) Exclude(issue DataQualityIssue) {
	issue.Excluded = true
	q.Issues = append(q.Issues, issue)
	q.Excluded++
}
