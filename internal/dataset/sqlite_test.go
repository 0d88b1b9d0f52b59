package dataset

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/aidalloc/internal/database"
	"github.com/aristath/aidalloc/internal/domain"
	testingpkg "github.com/aristath/aidalloc/internal/testing"
)

func newInstitutionsDB(t *testing.T) *database.DB {
	t.Helper()
	return testingpkg.NewTestDBWithSchema(t, "institutions",
		`CREATE TABLE institutions (
			unitid INTEGER PRIMARY KEY,
			instnm TEXT,
			stabbr TEXT,
			student_size INTEGER,
			retention_rate REAL,
			completion_rate REAL,
			pell_rate REAL,
			risk_index REAL,
			value_add_ratio TEXT
		)`,
		`INSERT INTO institutions VALUES (1, 'One', 'NY', 2000, 0.71, 0.55, 0.42, 48.5, '2.5')`,
		`INSERT INTO institutions VALUES (2, 'Two', 'TX', 900, NULL, 0.38, 0.66, 80, 'NA')`,
	)
}

func TestSQLiteSource_Records(t *testing.T) {
	src, err := NewSQLiteSource(newInstitutionsDB(t), "", zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "institutions.institutions", src.Name())

	records, err := src.Records(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "1", records[0].ID)
	assert.Equal(t, "One", records[0].Name)
	assert.Equal(t, valid(2000), records[0].StudentSize)
	assert.Equal(t, valid(0.71), records[0].RetentionRate)
	assert.Equal(t, valid(2.5), records[0].ValueAddRatio)

	assert.False(t, records[1].RetentionRate.Valid)
	assert.False(t, records[1].ValueAddRatio.Valid)
	assert.Equal(t, valid(80), records[1].RiskIndex)
}

func TestSQLiteSource_InvalidTable(t *testing.T) {
	_, err := NewSQLiteSource(nil, "institutions; DROP TABLE x", zerolog.Nop())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConfiguration))
}

func TestSQLiteSource_MissingTable(t *testing.T) {
	src, err := NewSQLiteSource(newInstitutionsDB(t), "colleges", zerolog.Nop())
	require.NoError(t, err)

	_, err = src.Records(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "table colleges not found")
}

func TestSQLiteSource_ClosedDatabase(t *testing.T) {
	db := newInstitutionsDB(t)
	src, err := NewSQLiteSource(db, "", zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = src.Records(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database institutions unavailable")
}
