package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fieldtrack/pkg/db"
)

// SQLiteStore implements Store.
type SQLiteStore struct {
	db *db.DB
}

// NewSQLiteStore creates a new store.
func NewSQLiteStore(db *db.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- State ---

func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, bool) {
	var val string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM persistent_state WHERE key = ?", key).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false
	}
	if err != nil {
		return "", false
	}
	return val, true
}

func (s *SQLiteStore) SetState(ctx context.Context, key, val string) error {
	query := `INSERT OR REPLACE INTO persistent_state (key, value, created_at) VALUES (?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, key, val, time.Now())
	return err
}

func (s *SQLiteStore) DeleteState(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM persistent_state WHERE key = ?", key)
	return err
}

// --- Queue ---

func (s *SQLiteStore) AppendUpdate(ctx context.Context, u PendingUpdate, maxSize int) error {
	query := `INSERT INTO pending_updates (id, endpoint, payload, enqueued_at) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, u.ID, u.Endpoint, u.Payload, u.EnqueuedAt.UnixMilli()); err != nil {
		return fmt.Errorf("failed to append update: %w", err)
	}

	if maxSize <= 0 {
		return nil
	}

	// Evict oldest entries past the cap. seq is the insertion order; the
	// enqueued_at wall clock has millisecond resolution and ties under burst
	// appends.
	trim := `DELETE FROM pending_updates WHERE seq NOT IN (
		SELECT seq FROM pending_updates ORDER BY seq DESC LIMIT ?
	)`
	if _, err := s.db.ExecContext(ctx, trim, maxSize); err != nil {
		return fmt.Errorf("failed to trim queue: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListUpdates(ctx context.Context, limit int) ([]PendingUpdate, error) {
	query := `SELECT id, endpoint, payload, enqueued_at FROM pending_updates ORDER BY seq ASC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []PendingUpdate
	for rows.Next() {
		var u PendingUpdate
		var enqueuedMs int64
		if err := rows.Scan(&u.ID, &u.Endpoint, &u.Payload, &enqueuedMs); err != nil {
			return nil, err
		}
		u.EnqueuedAt = time.UnixMilli(enqueuedMs)
		results = append(results, u)
	}
	return results, rows.Err()
}

func (s *SQLiteStore) RemoveUpdates(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	query := `DELETE FROM pending_updates WHERE id IN (`
	args := make([]any, len(ids))
	for i, id := range ids {
		if i > 0 {
			query += ","
		}
		query += "?"
		args[i] = id
	}
	query += ")"

	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *SQLiteStore) CountUpdates(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM pending_updates").Scan(&count)
	return count, err
}

func (s *SQLiteStore) ClearUpdates(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM pending_updates")
	return err
}
