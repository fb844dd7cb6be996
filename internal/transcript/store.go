// Package transcript persists conversation turns so they outlive the
// bounded in-memory session history.
package transcript

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/agent-hub/backend/internal/db"
	"github.com/agent-hub/backend/internal/model"
	"github.com/agent-hub/backend/internal/repository"
)

// Supported store drivers.
const (
	DriverNone     = "none"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Store appends and lists transcript entries.
type Store interface {
	Append(ctx context.Context, sessionID string, msg model.Message) error
	List(ctx context.Context, sessionID string, limit int) ([]model.TranscriptEntry, error)
	Close() error
}

// Open returns the store for driver. An empty driver means DriverNone.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "", DriverNone:
		return Discard{}, nil
	case DriverSQLite:
		conn, err := db.InitDB(dsn)
		if err != nil {
			return nil, err
		}
		return &SQLiteStore{TranscriptRepository: repository.NewTranscriptRepository(conn), db: conn}, nil
	case DriverPostgres:
		return NewPostgresStore(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown transcript driver %q", driver)
	}
}

// SQLiteStore is a Store backed by a local SQLite file.
type SQLiteStore struct {
	*repository.TranscriptRepository
	db *sql.DB
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Discard drops every entry.
type Discard struct{}

func (Discard) Append(ctx context.Context, sessionID string, msg model.Message) error { return nil }

func (Discard) List(ctx context.Context, sessionID string, limit int) ([]model.TranscriptEntry, error) {
	return nil, nil
}

func (Discard) Close() error { return nil }
