package dataset

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scorecardCSV = "\ufeffid,school.name,school.state,student_size,retention_rate,completion_rate,pell_rate,resilience_risk_index,value_add_ratio,sat_avg,risk_explanation,unused\n" +
	`100654,Alabama A & M University,AL,5196.0,0.5403,0.2807,0.7019,71.3,2.1,939,"{'factors': [], 'summary': 'none'}",x` + "\n" +
	`100663,University of Alabama at Birmingham,AL,"12,776",0.8609,0.6143,0.3512,22.9,NA,1234,,x` + "\n" +
	`,Unnamed College,TX,800,PrivacySuppressed,0.41,abc,55,3.5` + "\n"

func TestCSVSource_Records(t *testing.T) {
	src := NewCSVReaderSource(strings.NewReader(scorecardCSV), zerolog.Nop())

	records, err := src.Records(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 3)

	first := records[0]
	assert.Equal(t, "100654", first.ID)
	assert.Equal(t, "Alabama A & M University", first.Name)
	assert.Equal(t, "AL", first.State)
	assert.Equal(t, valid(5196), first.StudentSize)
	assert.Equal(t, valid(0.7019), first.NeedRate)
	assert.Equal(t, valid(71.3), first.RiskIndex)
	assert.Equal(t, valid(939), first.Selectivity)
	assert.True(t, first.RiskExplanation.Valid)

	second := records[1]
	assert.Equal(t, valid(12776), second.StudentSize)
	assert.False(t, second.ValueAddRatio.Valid)
	assert.False(t, second.RiskExplanation.Valid)

	third := records[2]
	assert.Equal(t, "row-4", third.ID)
	assert.False(t, third.RetentionRate.Valid)
	assert.False(t, third.NeedRate.Valid, "non-numeric cells are missing")
	assert.False(t, third.Selectivity.Valid, "short rows leave trailing columns missing")
	assert.Equal(t, valid(3.5), third.ValueAddRatio)
}

func TestCSVSource_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scorecard.csv")
	require.NoError(t, os.WriteFile(path, []byte(scorecardCSV), 0o600))

	src := NewCSVSource(path, zerolog.Nop())
	assert.Equal(t, path, src.Name())

	records, err := src.Records(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestCSVSource_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		message string
	}{
		{name: "empty", input: "", message: "is empty"},
		{name: "no metric columns", input: "id,name\n1,One\n", message: "no recognised metric columns"},
		{name: "unterminated quote", input: "id,retention_rate\n1,\"0.5\n", message: "failed to read"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCSVReaderSource(strings.NewReader(tt.input), zerolog.Nop()).Records(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestCSVSource_MissingFile(t *testing.T) {
	_, err := NewCSVSource(filepath.Join(t.TempDir(), "absent.csv"), zerolog.Nop()).Records(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open")
}
