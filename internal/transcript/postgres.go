package transcript

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agent-hub/backend/internal/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS transcripts (
	id UUID PRIMARY KEY,
	seq BIGSERIAL,
	session_id TEXT NOT NULL,
	sender TEXT NOT NULL,
	kind TEXT NOT NULL,
	content TEXT NOT NULL,
	handler TEXT,
	metadata JSONB,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transcripts_session_seq ON transcripts(session_id, seq);
`

// PostgresStore is a Store backed by a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects, pings and migrates.
func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate transcripts: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Append stores msg as the next entry of sessionID.
func (s *PostgresStore) Append(ctx context.Context, sessionID string, msg model.Message) error {
	entry := model.EntryFromMessage(uuid.New().String(), sessionID, msg)

	var meta []byte
	if len(entry.Metadata) > 0 {
		var err error
		if meta, err = json.Marshal(entry.Metadata); err != nil {
			return fmt.Errorf("serialize metadata: %w", err)
		}
	}

	var handler *string
	if entry.Handler != "" {
		handler = &entry.Handler
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO transcripts (id, session_id, sender, kind, content, handler, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.SessionID, entry.Sender, string(entry.Kind), entry.Content, handler, meta, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transcript: %w", err)
	}
	return nil
}

// List returns up to limit of the most recent entries, oldest first.
func (s *PostgresStore) List(ctx context.Context, sessionID string, limit int) ([]model.TranscriptEntry, error) {
	var limitArg any
	if limit > 0 {
		limitArg = limit
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id::text, session_id, sender, kind, content, handler, metadata, created_at
		FROM (
			SELECT * FROM transcripts
			WHERE session_id = $1
			ORDER BY seq DESC
			LIMIT $2
		) recent
		ORDER BY seq ASC`,
		sessionID, limitArg,
	)
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.TranscriptEntry, error) {
		var (
			e       model.TranscriptEntry
			kind    string
			handler *string
			meta    []byte
		)
		if err := row.Scan(&e.ID, &e.SessionID, &e.Sender, &kind, &e.Content, &handler, &meta, &e.CreatedAt); err != nil {
			return e, err
		}
		e.Kind = model.MessageKind(kind)
		if handler != nil {
			e.Handler = *handler
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return e, err
			}
		}
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan transcript: %w", err)
	}
	return entries, nil
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
