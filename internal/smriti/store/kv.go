package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// LoadArray returns the raw JSON stored under key, or nil when the key has
// never been written.
func (s *Store) LoadArray(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv_arrays WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: load %q: %w", key, err)
	}
	return value, nil
}

// UpdateArray runs a read-modify-write of key inside one transaction. fn
// receives the current value (nil when absent) and returns the replacement.
// Concurrent updates are serialised, so none is lost.
func (s *Store) UpdateArray(ctx context.Context, key string, fn func(current []byte) ([]byte, error)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin update %q: %w", key, err)
	}
	defer tx.Rollback()

	var current []byte
	err = tx.QueryRowContext(ctx, "SELECT value FROM kv_arrays WHERE key = ?", key).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("store: read %q: %w", key, err)
	}

	next, err := fn(current)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO kv_arrays (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, next, time.Now().UTC().Format(tsLayout),
	)
	if err != nil {
		return fmt.Errorf("store: write %q: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit %q: %w", key, err)
	}
	return nil
}

// DeleteArray removes key entirely.
func (s *Store) DeleteArray(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv_arrays WHERE key = ?", key); err != nil {
		return fmt.Errorf("store: delete %q: %w", key, err)
	}
	return nil
}
