package output

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/ppiankov/prospector/internal/model"
)

const contactsSchema = `
CREATE TABLE IF NOT EXISTS contacts (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	business_name TEXT NOT NULL,
	email         TEXT NOT NULL,
	phone         TEXT NOT NULL,
	whatsapp_link TEXT NOT NULL,
	source_url    TEXT NOT NULL,
	region        TEXT NOT NULL,
	city          TEXT NOT NULL,
	keyword       TEXT NOT NULL,
	discovered_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_contacts_email ON contacts(email);
CREATE INDEX IF NOT EXISTS idx_contacts_phone ON contacts(phone);
`

// SQLiteSink replaces the contacts table on every write, inside one transaction
type SQLiteSink struct {
	db   *sql.DB
	path string
}

// NewSQLiteSink opens (creating if needed) the database at path
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.ExecContext(context.Background(), contactsSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &SQLiteSink{db: db, path: path}, nil
}

func (s *SQLiteSink) Name() string { return "sqlite" }

// Path returns the database file
func (s *SQLiteSink) Path() string { return s.path }

func (s *SQLiteSink) Write(ctx context.Context, records []model.ContactRecord) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM contacts"); err != nil {
		return fmt.Errorf("clear contacts: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO contacts
		(business_name, email, phone, whatsapp_link, source_url, region, city, keyword, discovered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range records {
		row := r.Row()
		args := make([]any, len(row))
		for i, v := range row {
			args[i] = v
		}
		if _, err = stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert %s: %w", r.SourceURL, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Count returns the number of stored contacts
func (s *SQLiteSink) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM contacts").Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
