package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aristath/aidalloc/internal/database"
	"github.com/aristath/aidalloc/internal/domain"
	"github.com/aristath/aidalloc/internal/utils"
)

// DefaultTable is the table read when none is configured.
const DefaultTable = "institutions"

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLiteSource reads institutions from a table of a SQLite database.
type SQLiteSource struct {
	db    *database.DB
	table string
	log   zerolog.Logger
}

// NewSQLiteSource creates a source reading table from db.
func NewSQLiteSource(db *database.DB, table string, log zerolog.Logger) (*SQLiteSource, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableNamePattern.MatchString(table) {
		return nil, domain.NewConfigurationError("sqlite_table", "%q is not a valid table name", table)
	}
	return &SQLiteSource{
		db:    db,
		table: table,
		log:   log.With().Str("source", "sqlite").Str("table", table).Logger(),
	}, nil
}

// Name implements Source.
func (s *SQLiteSource) Name() string {
	return s.db.Name() + "." + s.table
}

// Records implements Source. Every column is read as text and parsed the
// same way CSV cells are.
func (s *SQLiteSource) Records(ctx context.Context) ([]Record, error) {
	if err := s.db.QuickCheck(ctx); err != nil {
		return nil, fmt.Errorf("database %s unavailable: %w", s.db.Name(), err)
	}
	s.log.Debug().
		Str("path", s.db.Path()).
		Str("profile", string(s.db.Profile())).
		Msg("Reading institutions")

	ok, err := s.db.TableExists(ctx, s.table)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("table %s not found in %s", s.table, s.db.Name())
	}

	header, err := s.db.Columns(ctx, s.table)
	if err != nil {
		return nil, err
	}
	mapper, err := newRowMapper(header)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Name(), err)
	}

	selected := make([]string, len(mapper.columns))
	for i, mc := range mapper.columns {
		selected[i] = `"` + strings.ReplaceAll(header[mc.index], `"`, `""`) + `"`
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(selected, ", "), s.table)

	done := utils.MeasureQuery("load_institutions", s.log)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", s.Name(), err)
	}
	defer rows.Close()

	// The mapper indexes the full header; cells are scanned in select order.
	position := make(map[int]int, len(mapper.columns))
	for i, mc := range mapper.columns {
		position[mc.index] = i
	}

	var records []Record
	cells := make([]sql.NullString, len(selected))
	dest := make([]interface{}, len(selected))
	for i := range cells {
		dest[i] = &cells[i]
	}
	for line := 1; rows.Next(); line++ {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan %s row %d: %w", s.Name(), line, err)
		}
		records = append(records, mapper.record(line, func(index int) (string, bool) {
			c := cells[position[index]]
			return c.String, c.Valid
		}))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.Name(), err)
	}
	done(len(records))

	if mapper.unparsed > 0 {
		s.log.Warn().Int("cells", mapper.unparsed).Msg("Non-numeric metric cells treated as missing")
	}
	return records, nil
}
