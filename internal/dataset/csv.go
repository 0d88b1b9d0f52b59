package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// CSVSource reads institutions from a CSV file with a header row.
type CSVSource struct {
	path   string
	reader io.Reader
	log    zerolog.Logger
}

// NewCSVSource creates a source reading the file at path.
func NewCSVSource(path string, log zerolog.Logger) *CSVSource {
	return &CSVSource{
		path: path,
		log:  log.With().Str("source", "csv").Logger(),
	}
}

// NewCSVReaderSource creates a source reading r once.
func NewCSVReaderSource(r io.Reader, log zerolog.Logger) *CSVSource {
	return &CSVSource{
		reader: r,
		log:    log.With().Str("source", "csv").Logger(),
	}
}

// Name implements Source.
func (s *CSVSource) Name() string {
	if s.path != "" {
		return s.path
	}
	return "csv stream"
}

// Records implements Source.
func (s *CSVSource) Records(ctx context.Context) ([]Record, error) {
	r := s.reader
	if r == nil {
		f, err := os.Open(s.path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", s.path, err)
		}
		defer f.Close()
		r = f
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s is empty", s.Name())
		}
		return nil, fmt.Errorf("failed to read header of %s: %w", s.Name(), err)
	}
	mapper, err := newRowMapper(header)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Name(), err)
	}

	var records []Record
	for line := 2; ; line++ {
		if line%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", s.Name(), err)
		}
		records = append(records, mapper.record(line, func(i int) (string, bool) {
			if i >= len(row) {
				return "", false
			}
			return row[i], true
		}))
	}

	if mapper.unparsed > 0 {
		s.log.Warn().Int("cells", mapper.unparsed).Msg("Non-numeric metric cells treated as missing")
	}
	s.log.Debug().Int("rows", len(records)).Str("file", s.Name()).Msg("CSV loaded")
	return records, nil
}
