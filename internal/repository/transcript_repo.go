package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agent-hub/backend/internal/model"
)

// TranscriptRepository provides SQLite data access for transcripts.
type TranscriptRepository struct {
	db *sql.DB
}

// NewTranscriptRepository creates a new TranscriptRepository.
func NewTranscriptRepository(db *sql.DB) *TranscriptRepository {
	return &TranscriptRepository{db: db}
}

// Append stores msg as the next entry of sessionID.
func (r *TranscriptRepository) Append(ctx context.Context, sessionID string, msg model.Message) error {
	entry := model.EntryFromMessage(uuid.New().String(), sessionID, msg)

	var metaJSON sql.NullString
	if len(entry.Metadata) > 0 {
		data, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("failed to serialize metadata: %w", err)
		}
		metaJSON = sql.NullString{String: string(data), Valid: true}
	}

	query := `
		INSERT INTO transcripts (id, session_id, seq, sender, kind, content, handler, metadata, created_at)
		VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM transcripts WHERE session_id = ?), ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.SessionID,
		entry.SessionID,
		entry.Sender,
		string(entry.Kind),
		entry.Content,
		sql.NullString{String: entry.Handler, Valid: entry.Handler != ""},
		metaJSON,
		entry.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to append transcript: %w", err)
	}

	return nil
}

// List returns up to limit of the most recent entries of sessionID, oldest
// first. A limit <= 0 returns every entry.
func (r *TranscriptRepository) List(ctx context.Context, sessionID string, limit int) ([]model.TranscriptEntry, error) {
	if limit <= 0 {
		limit = -1
	}

	query := `
		SELECT id, session_id, sender, kind, content, handler, metadata, created_at
		FROM transcripts
		WHERE session_id = ?
		ORDER BY seq DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transcript: %w", err)
	}
	defer rows.Close()

	var entries []model.TranscriptEntry
	for rows.Next() {
		var (
			entry     model.TranscriptEntry
			kind      string
			handler   sql.NullString
			metaJSON  sql.NullString
			createdAt time.Time
		)
		if err := rows.Scan(&entry.ID, &entry.SessionID, &entry.Sender, &kind, &entry.Content, &handler, &metaJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan transcript: %w", err)
		}
		entry.Kind = model.MessageKind(kind)
		entry.Handler = handler.String
		entry.CreatedAt = createdAt
		if metaJSON.Valid && metaJSON.String != "" {
			if err := json.Unmarshal([]byte(metaJSON.String), &entry.Metadata); err != nil {
				return nil, fmt.Errorf("failed to deserialize metadata: %w", err)
			}
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transcript: %w", err)
	}

	// Rows come newest first.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	return entries, nil
}

// Count returns the number of stored entries of sessionID.
func (r *TranscriptRepository) Count(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM transcripts WHERE session_id = ?", sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count transcript: %w", err)
	}
	return n, nil
}

// DeleteSession removes every entry of sessionID.
func (r *TranscriptRepository) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM transcripts WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("failed to delete transcript: %w", err)
	}
	return nil
}
