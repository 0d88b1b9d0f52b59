package dataset

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/aidalloc/internal/domain"
	"github.com/aristath/aidalloc/internal/utils"
)

// Source yields the raw rows of an institution table.
type Source interface {
	Name() string
	Records(ctx context.Context) ([]Record, error)
}

// Dataset is a normalised institution table. It is never modified after
// Load returns and may be shared by concurrent runs.
type Dataset struct {
	Source       string
	Institutions []domain.Institution
	// Issues lists every missing or invalid value, duplicate rows included.
	Issues []domain.DataQualityIssue
	// MissingByField counts flagged values per field name.
	MissingByField map[string]int
}

// Load reads src and normalises every row. Rows repeating an earlier id are
// skipped.
func Load(ctx context.Context, src Source, log zerolog.Logger) (*Dataset, error) {
	log = log.With().Str("component", "dataset").Logger()
	defer utils.OperationTimer("load_dataset", log)()

	records, err := src.Records(ctx)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", src.Name(), err)
	}

	ds := &Dataset{
		Source:         src.Name(),
		Institutions:   make([]domain.Institution, 0, len(records)),
		MissingByField: make(map[string]int),
	}
	seen := make(map[string]bool, len(records))
	for _, rec := range records {
		inst, issues := rec.Normalize()
		if seen[inst.ID] {
			ds.Issues = append(ds.Issues, domain.DataQualityIssue{
				InstitutionID: inst.ID,
				Field:         "id",
				Reason:        "duplicate, row skipped",
				Excluded:      true,
			})
			continue
		}
		seen[inst.ID] = true
		for _, issue := range issues {
			ds.MissingByField[issue.Field]++
		}
		ds.Issues = append(ds.Issues, issues...)
		ds.Institutions = append(ds.Institutions, inst)
	}

	log.Info().
		Str("source", ds.Source).
		Int("rows", len(records)).
		Int("institutions", len(ds.Institutions)).
		Int("issues", len(ds.Issues)).
		Msg("Dataset loaded")
	return ds, nil
}
