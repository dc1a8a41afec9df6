package output

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/ppiankov/prospector/internal/model"
)

// CSVSink writes records as CSV with a header row in model.Columns order
type CSVSink struct {
	path string
}

// NewCSVSink creates a CSV sink writing to path
func NewCSVSink(path string) *CSVSink {
	return &CSVSink{path: path}
}

func (s *CSVSink) Name() string { return "csv" }

// Path returns the output file
func (s *CSVSink) Path() string { return s.path }

func (s *CSVSink) Write(ctx context.Context, records []model.ContactRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return writeAtomic(s.path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(model.Columns); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		for _, r := range records {
			if err := cw.Write(r.Row()); err != nil {
				return fmt.Errorf("write row: %w", err)
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

func (s *CSVSink) Close() error { return nil }
