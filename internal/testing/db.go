// Package testing provides test helpers shared by the allocation engine packages.
package testing

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/aristath/aidalloc/internal/database"
	"github.com/aristath/aidalloc/internal/domain"
)

// InstitutionsSchema creates a table holding institutions under the
// canonical dataset column names.
const InstitutionsSchema = `CREATE TABLE %s (
	id TEXT PRIMARY KEY,
	name TEXT,
	state TEXT,
	student_size INTEGER,
	retention_rate REAL,
	completion_rate REAL,
	pell_rate REAL,
	risk_index REAL,
	value_add_ratio REAL,
	sat_avg REAL,
	risk_explanation TEXT
)`

// CreateTempDBFile returns the path of a database file in a per-test
// temporary directory. The directory is removed when the test ends.
func CreateTempDBFile(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(t.TempDir(), fmt.Sprintf("%s.db", name))
}

// NewTestDBWithSchema creates a database file, executes schema on a writable
// connection and reopens the file read-only, the way datasets are opened.
// The connection is closed when the test ends.
func NewTestDBWithSchema(t *testing.T, name string, schema ...string) *database.DB {
	t.Helper()
	path := CreateTempDBFile(t, name)

	w, err := database.New(database.Config{
		Path:    path,
		Profile: database.ProfileStandard,
		Name:    name,
	})
	if err != nil {
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}

	err = database.WithTransaction(w.Conn(), func(tx *sql.Tx) error {
		for _, stmt := range schema {
			if _, err := tx.Exec(stmt); err != nil {
				return err
			}
		}
		return nil
	})
	if closeErr := w.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		t.Fatalf("Failed to execute schema for test database %s: %v", name, err)
	}

	return OpenReadOnly(t, path, name)
}

// OpenReadOnly opens an existing database file read-only for the rest of the test.
func OpenReadOnly(t *testing.T, path, name string) *database.DB {
	t.Helper()
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Test database %s missing: %v", path, err)
	}
	db, err := database.New(database.Config{Path: path, Name: name})
	if err != nil {
		t.Fatalf("Failed to open test database %s: %v", name, err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database %s: %v", name, err)
		}
	})
	return db
}

// NewInstitutionsDB writes institutions into table of a fresh database.
// Missing metrics are stored as NULL.
func NewInstitutionsDB(t *testing.T, table string, institutions []domain.Institution) *database.DB {
	t.Helper()
	path := CreateTempDBFile(t, "institutions")

	w, err := database.New(database.Config{
		Path:    path,
		Profile: database.ProfileStandard,
		Name:    "institutions",
	})
	if err != nil {
		t.Fatalf("Failed to create institutions database: %v", err)
	}

	err = database.WithTransaction(w.Conn(), func(tx *sql.Tx) error {
		if _, err := tx.Exec(fmt.Sprintf(InstitutionsSchema, table)); err != nil {
			return err
		}
		stmt, err := tx.Prepare(fmt.Sprintf(`INSERT INTO %s VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, table))
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, inst := range institutions {
			explanation, err := explanationColumn(inst.RiskExplanation)
			if err != nil {
				return err
			}
			_, err = stmt.Exec(
				inst.ID, inst.Name, inst.State,
				metric(inst, domain.FieldStudentSize, float64(inst.StudentSize)),
				metric(inst, domain.FieldRetentionRate, inst.RetentionRate),
				metric(inst, domain.FieldCompletionRate, inst.CompletionRate),
				metric(inst, domain.FieldNeedRate, inst.NeedRate),
				metric(inst, domain.FieldRiskIndex, inst.RiskIndex),
				metric(inst, domain.FieldValueAddRatio, inst.ValueAddRatio),
				metric(inst, domain.FieldSelectivity, inst.Selectivity),
				explanation,
			)
			if err != nil {
				return fmt.Errorf("insert %s: %w", inst.ID, err)
			}
		}
		return nil
	})
	if closeErr := w.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		t.Fatalf("Failed to write institutions: %v", err)
	}

	return OpenReadOnly(t, path, "institutions")
}

func metric(inst domain.Institution, f domain.Field, v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: inst.Has(f)}
}

func explanationColumn(exp *domain.RiskExplanation) (sql.NullString, error) {
	if exp == nil {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(exp)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}
