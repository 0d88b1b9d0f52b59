package dataset

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/aidalloc/internal/domain"
	testingpkg "github.com/aristath/aidalloc/internal/testing"
)

type staticSource struct {
	records []Record
	err     error
}

func (s staticSource) Name() string { return "static" }

func (s staticSource) Records(context.Context) ([]Record, error) {
	return s.records, s.err
}

func TestLoad(t *testing.T) {
	ds, err := Load(context.Background(), NewCSVReaderSource(strings.NewReader(scorecardCSV), zerolog.Nop()), zerolog.Nop())
	require.NoError(t, err)

	require.Len(t, ds.Institutions, 3)
	first := ds.Institutions[0]
	assert.Equal(t, 5196, first.StudentSize)
	assert.True(t, first.Has(domain.FieldValueAddRatio))
	require.NotNil(t, first.RiskExplanation)
	assert.Equal(t, "none", first.RiskExplanation.Summary)

	assert.False(t, ds.Institutions[1].Has(domain.FieldValueAddRatio))
	assert.Equal(t, 1, ds.MissingByField["value_add_ratio"])
	assert.Equal(t, 1, ds.MissingByField["retention_rate"])
	assert.Equal(t, 1, ds.MissingByField["pell_rate"])
	assert.Equal(t, 1, ds.MissingByField["sat_avg"])
	for _, issue := range ds.Issues {
		assert.True(t, errors.Is(issue, domain.ErrDataQuality))
	}
}

func TestLoad_SkipsDuplicateIDs(t *testing.T) {
	src := staticSource{records: []Record{
		{ID: "1", StudentSize: valid(100)},
		{ID: "1", StudentSize: valid(200)},
		{ID: "2", StudentSize: valid(300)},
	}}

	ds, err := Load(context.Background(), src, zerolog.Nop())
	require.NoError(t, err)

	require.Len(t, ds.Institutions, 2)
	assert.Equal(t, 100, ds.Institutions[0].StudentSize)

	var duplicates int
	for _, issue := range ds.Issues {
		if issue.Field == "id" {
			duplicates++
			assert.True(t, issue.Excluded)
		}
	}
	assert.Equal(t, 1, duplicates)
}

func TestLoad_SourceError(t *testing.T) {
	_, err := Load(context.Background(), staticSource{err: errors.New("disk gone")}, zerolog.Nop())
	require.Error(t, err)
	assert.Equal(t, "load static: disk gone", err.Error())
}

func TestLoad_RoundTrip(t *testing.T) {
	fixtures := testingpkg.NewInstitutionFixtures()

	sqliteSrc, err := NewSQLiteSource(testingpkg.NewInstitutionsDB(t, "colleges", fixtures), "colleges", zerolog.Nop())
	require.NoError(t, err)

	sources := map[string]Source{
		"csv":    NewCSVSource(testingpkg.WriteInstitutionsCSV(t, fixtures), zerolog.Nop()),
		"sqlite": sqliteSrc,
	}
	for name, src := range sources {
		t.Run(name, func(t *testing.T) {
			ds, err := Load(context.Background(), src, zerolog.Nop())
			require.NoError(t, err)

			if diff := cmp.Diff(fixtures, ds.Institutions); diff != "" {
				t.Errorf("institutions mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, 1, ds.MissingByField["sat_avg"])
			assert.Equal(t, 1, ds.MissingByField["value_add_ratio"])
			assert.Len(t, ds.Issues, 2)
		})
	}
}
