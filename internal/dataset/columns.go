package dataset

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

type column int

const (
	colID column = iota
	colName
	colState
	colStudentSize
	colRetentionRate
	colCompletionRate
	colNeedRate
	colRiskIndex
	colValueAddRatio
	colSelectivity
	colRiskExplanation
)

// columnAliases maps accepted header names to columns. Headers are matched
// case-insensitively after trimming.
var columnAliases = map[string]column{
	"id":                    colID,
	"unitid":                colID,
	"institution_id":        colID,
	"name":                  colName,
	"school.name":           colName,
	"instnm":                colName,
	"state":                 colState,
	"school.state":          colState,
	"stabbr":                colState,
	"student_size":          colStudentSize,
	"latest.student.size":   colStudentSize,
	"ugds":                  colStudentSize,
	"retention_rate":        colRetentionRate,
	"completion_rate":       colCompletionRate,
	"pell_rate":             colNeedRate,
	"need_rate":             colNeedRate,
	"risk_index":            colRiskIndex,
	"resilience_risk_index": colRiskIndex,
	"value_add_ratio":       colValueAddRatio,
	"sat_avg":               colSelectivity,
	"selectivity":           colSelectivity,
	"risk_explanation":      colRiskExplanation,
}

// naTokens are cell values treated as absent.
var naTokens = map[string]bool{
	"":                  true,
	"na":                true,
	"n/a":               true,
	"nan":               true,
	"null":              true,
	"none":              true,
	"privacysuppressed": true,
}

type mappedColumn struct {
	index int
	col   column
	name  string
}

// rowMapper turns positional cells into Records.
type rowMapper struct {
	columns []mappedColumn
	hasID   bool
	// unparsed counts numeric cells that were present but not numbers.
	unparsed int
}

func newRowMapper(header []string) (*rowMapper, error) {
	m := &rowMapper{}
	seen := make(map[column]bool)
	metrics := 0
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		col, ok := columnAliases[name]
		if !ok || seen[col] {
			continue
		}
		seen[col] = true
		m.columns = append(m.columns, mappedColumn{index: i, col: col, name: name})
		switch col {
		case colID:
			m.hasID = true
		case colName, colState, colRiskExplanation:
		default:
			metrics++
		}
	}
	if metrics == 0 {
		return nil, fmt.Errorf("no recognised metric columns in header %v", header)
	}
	return m, nil
}

// record builds the Record for one row. cell returns the raw value at a
// header index and whether it was non-null. line numbers rows without an id.
func (m *rowMapper) record(line int, cell func(index int) (string, bool)) Record {
	var r Record
	for _, mc := range m.columns {
		raw, ok := cell(mc.index)
		raw = strings.TrimSpace(raw)
		if !ok || naTokens[strings.ToLower(raw)] {
			continue
		}
		switch mc.col {
		case colID:
			r.ID = raw
		case colName:
			r.Name = raw
		case colState:
			r.State = raw
		case colRiskExplanation:
			r.RiskExplanation = sql.NullString{String: raw, Valid: true}
		default:
			v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
			if err != nil {
				m.unparsed++
				continue
			}
			*m.metric(&r, mc.col) = sql.NullFloat64{Float64: v, Valid: true}
		}
	}
	if r.ID == "" {
		r.ID = fmt.Sprintf("row-%d", line)
	}
	return r
}

func (m *rowMapper) metric(r *Record, col column) *sql.NullFloat64 {
	switch col {
	case colStudentSize:
		return &r.StudentSize
	case colRetentionRate:
		return &r.RetentionRate
	case colCompletionRate:
		return &r.CompletionRate
	case colNeedRate:
		return &r.NeedRate
	case colRiskIndex:
		return &r.RiskIndex
	case colValueAddRatio:
		return &r.ValueAddRatio
	default:
		return &r.Selectivity
	}
}
