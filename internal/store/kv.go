package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLiteKV is a key/value namespace inside bag_items.
type SQLiteKV struct {
	db        *DB
	namespace string
	owned     bool
}

// KV returns the namespace ns of db. Closing it leaves db open.
func (db *DB) KV(ns string) *SQLiteKV {
	return &SQLiteKV{db: db, namespace: ns}
}

// Get returns the value under key, or nil, nil if there is none.
func (kv *SQLiteKV) Get(ctx context.Context, key string) ([]byte, error) {
	if kv.db.closed.Load() {
		return nil, ErrClosed
	}
	var value []byte
	err := kv.db.QueryRowContext(ctx,
		"SELECT value FROM bag_items WHERE namespace = ? AND key = ?", kv.namespace, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item %s: %w", key, err)
	}
	if value == nil {
		value = []byte{}
	}
	return value, nil
}

// Put stores value under key, replacing any previous value.
func (kv *SQLiteKV) Put(ctx context.Context, key string, value []byte) error {
	if kv.db.closed.Load() {
		return ErrClosed
	}
	_, err := kv.db.ExecContext(ctx, `
		INSERT INTO bag_items (namespace, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		kv.namespace, key, value, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("put item %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (kv *SQLiteKV) Delete(ctx context.Context, key string) error {
	if kv.db.closed.Load() {
		return ErrClosed
	}
	if _, err := kv.db.ExecContext(ctx,
		"DELETE FROM bag_items WHERE namespace = ? AND key = ?", kv.namespace, key,
	); err != nil {
		return fmt.Errorf("delete item %s: %w", key, err)
	}
	return nil
}

// Count returns the number of items in the namespace.
func (kv *SQLiteKV) Count(ctx context.Context) (int, error) {
	if kv.db.closed.Load() {
		return 0, ErrClosed
	}
	var n int
	err := kv.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM bag_items WHERE namespace = ?", kv.namespace,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return n, nil
}

// Prune deletes items not written since before and returns how many went.
func (kv *SQLiteKV) Prune(ctx context.Context, before time.Time) (int64, error) {
	if kv.db.closed.Load() {
		return 0, ErrClosed
	}
	res, err := kv.db.ExecContext(ctx,
		"DELETE FROM bag_items WHERE namespace = ? AND updated_at < ?", kv.namespace, before.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("prune items: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database when the KV opened it.
func (kv *SQLiteKV) Close() error {
	if !kv.owned {
		return nil
	}
	return kv.db.Close()
}
