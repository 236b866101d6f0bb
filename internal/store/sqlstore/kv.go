package sqlstore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/Andrew-022/michatapp-sub000/internal/store"
)

// Get returns the value for key, or store.ErrNotFound.
func (d *DB) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := d.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// Set stores value under key (idempotent upsert).
func (d *DB) Set(ctx context.Context, key, value string) error {
	now := time.Now().UnixMilli()
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		key, value, now)
	return err
}

// Remove deletes the given keys. Missing keys are a no-op.
func (d *DB) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	placeholders := strings.Repeat("?,", len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	_, err := d.db.ExecContext(ctx, `DELETE FROM kv WHERE key IN (`+placeholders[:len(placeholders)-1]+`)`, args...)
	return err
}
