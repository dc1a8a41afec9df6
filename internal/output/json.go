package output

import (
	"context"
	"encoding/json"
	"io"

	"github.com/ppiankov/prospector/internal/model"
)

// JSONSink writes records as an indented JSON array
type JSONSink struct {
	path string
}

// NewJSONSink creates a JSON sink writing to path
func NewJSONSink(path string) *JSONSink {
	return &JSONSink{path: path}
}

func (s *JSONSink) Name() string { return "json" }

// Path returns the output file
func (s *JSONSink) Path() string { return s.path }

func (s *JSONSink) Write(ctx context.Context, records []model.ContactRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if records == nil {
		records = []model.ContactRecord{}
	}
	return writeAtomic(s.path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(records)
	})
}

func (s *JSONSink) Close() error { return nil }
