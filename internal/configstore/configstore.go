// Package configstore implements the database-wide key-value tables
// (spec.md supplemented feature: config/metadata), grounded directly on
// sqlite/config.go's config/metadata pattern. Unlike a Collection, these
// tables hold plain strings rather than validated JSON documents, and are
// scoped to the whole Database handle rather than to one collection.
package configstore

import (
	"context"

	"github.com/sqlidoc/sqlidoc/internal/dberrors"
	"github.com/sqlidoc/sqlidoc/internal/driver"
)

const (
	createConfigTable = `CREATE TABLE IF NOT EXISTS config (key TEXT PRIMARY KEY, value TEXT NOT NULL)`
	createMetaTable   = `CREATE TABLE IF NOT EXISTS metadata (key TEXT PRIMARY KEY, value TEXT NOT NULL)`
)

// Store wraps one driver's config and metadata tables.
type Store struct {
	drv driver.Driver
}

// Open creates the config/metadata tables if absent and returns a Store
// bound to drv.
func Open(ctx context.Context, drv driver.Driver) (*Store, error) {
	if _, err := drv.Exec(ctx, createConfigTable); err != nil {
		return nil, dberrors.Wrap("configstore open", createConfigTable, err)
	}
	if _, err := drv.Exec(ctx, createMetaTable); err != nil {
		return nil, dberrors.Wrap("configstore open", createMetaTable, err)
	}
	return &Store{drv: drv}, nil
}

func (s *Store) get(ctx context.Context, table, key string) (string, error) {
	sqlText := `SELECT value FROM ` + table + ` WHERE key = ?`
	rows, err := s.drv.Query(ctx, sqlText, key)
	if err != nil {
		return "", dberrors.Wrap("configstore get", sqlText, err)
	}
	defer rows.Close()
	if !rows.Next() {
		return "", nil
	}
	var value string
	if err := rows.Scan(&value); err != nil {
		return "", dberrors.Wrap("configstore get", sqlText, err)
	}
	return value, rows.Err()
}

func (s *Store) set(ctx context.Context, table, key, value string) error {
	sqlText := `INSERT INTO ` + table + ` (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	if _, err := s.drv.Exec(ctx, sqlText, key, value); err != nil {
		return dberrors.Wrap("configstore set", sqlText, err)
	}
	return nil
}

func (s *Store) delete(ctx context.Context, table, key string) error {
	sqlText := `DELETE FROM ` + table + ` WHERE key = ?`
	if _, err := s.drv.Exec(ctx, sqlText, key); err != nil {
		return dberrors.Wrap("configstore delete", sqlText, err)
	}
	return nil
}

// SetConfig sets a caller-facing configuration value (e.g. application
// settings a document-store user wants persisted alongside their data).
func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	return s.set(ctx, "config", key, value)
}

// GetConfig returns key's value, or "" if unset.
func (s *Store) GetConfig(ctx context.Context, key string) (string, error) {
	return s.get(ctx, "config", key)
}

// DeleteConfig removes key from the config table.
func (s *Store) DeleteConfig(ctx context.Context, key string) error {
	return s.delete(ctx, "config", key)
}

// GetAllConfig returns every config key-value pair.
func (s *Store) GetAllConfig(ctx context.Context) (map[string]string, error) {
	return s.scanAll(ctx, "config")
}

// SetMetadata sets an internal bookkeeping value — e.g. which collections
// this handle has already run schema generation for — as opposed to
// caller-facing config.
func (s *Store) SetMetadata(ctx context.Context, key, value string) error {
	return s.set(ctx, "metadata", key, value)
}

// GetMetadata returns key's value, or "" if unset.
func (s *Store) GetMetadata(ctx context.Context, key string) (string, error) {
	return s.get(ctx, "metadata", key)
}

func (s *Store) scanAll(ctx context.Context, table string) (map[string]string, error) {
	sqlText := `SELECT key, value FROM ` + table + ` ORDER BY key`
	rows, err := s.drv.Query(ctx, sqlText)
	if err != nil {
		return nil, dberrors.Wrap("configstore scan", sqlText, err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, dberrors.Wrap("configstore scan", sqlText, err)
		}
		out[key] = value
	}
	return out, rows.Err()
}
