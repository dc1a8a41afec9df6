package output

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/prospector/internal/model"
)

// Sink persists the full record set. Every Write is a complete overwrite.
type Sink interface {
	Name() string
	Write(ctx context.Context, records []model.ContactRecord) error
	Close() error
}

// MultiSink fans one snapshot out to several sinks concurrently
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink wraps sinks
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// New builds one sink per configured format under cfg.OutputDir
func New(cfg model.PersistConfig) (*MultiSink, error) {
	if err := os.MkdirAll(cfg.OutputDir, 0o750); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	base := filepath.Join(cfg.OutputDir, cfg.Basename)

	var sinks []Sink
	for _, format := range cfg.Formats {
		switch strings.ToLower(format) {
		case "csv":
			sinks = append(sinks, NewCSVSink(base+".csv"))
		case "json":
			sinks = append(sinks, NewJSONSink(base+".json"))
		case "sqlite":
			s, err := NewSQLiteSink(base + ".db")
			if err != nil {
				_ = NewMultiSink(sinks...).Close()
				return nil, err
			}
			sinks = append(sinks, s)
		default:
			_ = NewMultiSink(sinks...).Close()
			return nil, fmt.Errorf("persist.formats %q: %w", format, model.ErrUnknownFormat)
		}
	}
	return NewMultiSink(sinks...), nil
}

// Names lists the wrapped sinks
func (m *MultiSink) Names() []string {
	names := make([]string, len(m.sinks))
	for i, s := range m.sinks {
		names[i] = s.Name()
	}
	return names
}

// Write writes records to every sink. All sinks are attempted; the first error is returned.
func (m *MultiSink) Write(ctx context.Context, records []model.ContactRecord) error {
	var g errgroup.Group
	for _, s := range m.sinks {
		g.Go(func() error {
			if err := s.Write(ctx, records); err != nil {
				return fmt.Errorf("%s sink: %w", s.Name(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Close closes every sink
func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s sink: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// writeAtomic writes path through a temp file in the same directory and renames it into place
func writeAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
