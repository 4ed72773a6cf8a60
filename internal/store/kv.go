package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// ErrQuotaExceeded is returned when a write would push the profile over its storage quota.
var ErrQuotaExceeded = errors.New("store: quota exceeded")

// Item is one stored key/value pair.
type Item struct {
	Key       string
	Value     string
	Version   int64
	Origin    string
	UpdatedAt int64
}

// GetItem returns the stored item for key, or nil if absent.
func (db *DB) GetItem(key string) (*Item, error) {
	var it Item
	err := db.QueryRow(
		`SELECT key, value, version, origin, updated_at FROM kv WHERE key = ?`, key,
	).Scan(&it.Key, &it.Value, &it.Version, &it.Origin, &it.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return &it, nil
}

// PutItem upserts key with value, bumping its version. quota bounds the total
// size of all keys and values; quota <= 0 disables the check.
func (db *DB) PutItem(key, value, origin string, now, quota int64) (int64, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if quota > 0 {
		var used int64
		err := tx.QueryRow(
			`SELECT COALESCE(SUM(LENGTH(key) + LENGTH(value)), 0) FROM kv WHERE key != ?`, key,
		).Scan(&used)
		if err != nil {
			return 0, fmt.Errorf("usage: %w", err)
		}
		if used+int64(len(key)+len(value)) > quota {
			return 0, ErrQuotaExceeded
		}
	}

	_, err = tx.Exec(`
		INSERT INTO kv (key, value, version, origin, updated_at) VALUES (?, ?, 1, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			version = kv.version + 1,
			origin = excluded.origin,
			updated_at = excluded.updated_at`,
		key, value, origin, now)
	if err != nil {
		return 0, fmt.Errorf("put %s: %w", key, err)
	}

	var version int64
	if err := tx.QueryRow(`SELECT version FROM kv WHERE key = ?`, key).Scan(&version); err != nil {
		return 0, fmt.Errorf("version %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return version, nil
}

// DeleteItem removes key. It reports whether the key existed.
func (db *DB) DeleteItem(key string) (bool, error) {
	res, err := db.Exec(`DELETE FROM kv WHERE key = ?`, key)
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", key, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Usage returns the total size of all stored keys and values in bytes.
func (db *DB) Usage() (int64, error) {
	var used int64
	err := db.QueryRow(`SELECT COALESCE(SUM(LENGTH(key) + LENGTH(value)), 0) FROM kv`).Scan(&used)
	if err != nil {
		return 0, fmt.Errorf("usage: %w", err)
	}
	return used, nil
}

// Keys lists stored keys in order.
func (db *DB) Keys() ([]string, error) {
	rows, err := db.Query(`SELECT key FROM kv ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
