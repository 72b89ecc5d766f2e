package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/srslab/revise/internal/domain"
)

// SaveProgress checkpoints a session payload under its session ID,
// replacing any previous checkpoint.
func (db *DB) SaveProgress(ctx context.Context, id string, payload []byte) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO session_progress (id, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at
	`, id, string(payload), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save progress for session %s: %w: %w", id, domain.ErrStoreUnavailable, err)
	}
	return nil
}

// LoadProgress retrieves a session checkpoint.
func (db *DB) LoadProgress(ctx context.Context, id string) ([]byte, error) {
	var payload string
	err := db.conn.QueryRowContext(ctx, `
		SELECT payload FROM session_progress WHERE id = ?
	`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session progress %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load progress for session %s: %w: %w", id, domain.ErrStoreUnavailable, err)
	}
	return []byte(payload), nil
}

// ClearProgress drops a session checkpoint. Clearing an unknown session is
// not an error.
func (db *DB) ClearProgress(ctx context.Context, id string) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM session_progress WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to clear progress for session %s: %w: %w", id, domain.ErrStoreUnavailable, err)
	}
	return nil
}
