// Package metadata records which stored documents carry a signature.
package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/georgepadayatti/pdfsign/internal/logger"
	"github.com/georgepadayatti/pdfsign/store"
	_ "modernc.org/sqlite"
)

// SchemaVersion tracks the database schema version.
const SchemaVersion = 1

// Common errors
var (
	ErrNotTagged = errors.New("document has no signed aspect")
)

// SignedAspect is the metadata attached to a signed document.
type SignedAspect struct {
	SignatureDate time.Time
	SignedBy      string
	Reason        string
	Location      string
}

// Sink receives a signed aspect once the signed document is persisted.
type Sink interface {
	TagSigned(ctx context.Context, h store.Handle, aspect SignedAspect) error
}

// Store keeps signed aspects in SQLite.
type Store struct {
	db *sql.DB
}

var _ Sink = (*Store)(nil)

// Open opens or creates the database at path. ":memory:" keeps it in memory.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serializes writers and keeps ":memory:" shared.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if path != ":memory:" {
		if err := os.Chmod(path, 0o600); err != nil {
			logger.Logger.Warn("Failed to set database permissions", "error", err)
		}
	}
	return s, nil
}

func (s *Store) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS signed_aspects (
		handle TEXT PRIMARY KEY,
		signature_date TEXT NOT NULL,
		signed_by TEXT NOT NULL,
		reason TEXT,
		location TEXT,
		schema_version INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_signed_by ON signed_aspects(signed_by);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// TagSigned records aspect for h, replacing an earlier one.
func (s *Store) TagSigned(ctx context.Context, h store.Handle, aspect SignedAspect) error {
	if h == "" {
		return fmt.Errorf("handle is required")
	}

	query := `
	INSERT INTO signed_aspects (handle, signature_date, signed_by, reason, location, schema_version)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(handle) DO UPDATE SET
		signature_date = excluded.signature_date,
		signed_by = excluded.signed_by,
		reason = excluded.reason,
		location = excluded.location,
		schema_version = excluded.schema_version
	`
	_, err := s.db.ExecContext(ctx, query,
		string(h),
		aspect.SignatureDate.UTC().Format(time.RFC3339Nano),
		aspect.SignedBy,
		aspect.Reason,
		aspect.Location,
		SchemaVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to tag %s: %w", h, err)
	}
	return nil
}

// Lookup returns the aspect recorded for h.
func (s *Store) Lookup(ctx context.Context, h store.Handle) (SignedAspect, error) {
	var (
		aspect           SignedAspect
		date             string
		reason, location sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT signature_date, signed_by, reason, location FROM signed_aspects WHERE handle = ?`,
		string(h),
	).Scan(&date, &aspect.SignedBy, &reason, &location)
	if errors.Is(err, sql.ErrNoRows) {
		return SignedAspect{}, fmt.Errorf("%w: %s", ErrNotTagged, h)
	}
	if err != nil {
		return SignedAspect{}, fmt.Errorf("failed to look up %s: %w", h, err)
	}

	aspect.SignatureDate, err = time.Parse(time.RFC3339Nano, date)
	if err != nil {
		return SignedAspect{}, fmt.Errorf("failed to parse signature date of %s: %w", h, err)
	}
	aspect.Reason = reason.String
	aspect.Location = location.String
	return aspect, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
