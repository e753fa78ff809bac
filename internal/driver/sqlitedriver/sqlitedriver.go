// Package sqlitedriver is the local backend (spec.md §4.G): a single-file
// or in-memory SQLite database opened through mattn/go-sqlite3, with
// SupportsSync always true since the underlying driver call is already
// blocking.
package sqlitedriver

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sqlidoc/sqlidoc/internal/driver"
	"github.com/sqlidoc/sqlidoc/internal/pragma"
)

// Config configures the local driver. Path may be a filesystem path or
// ":memory:"/"file::memory:?cache=shared" for an in-process database.
type Config struct {
	Path             string
	Pragmas          pragma.Settings
	ReconnectEnabled bool
}

// Open opens the local SQLite database and applies the configured PRAGMAs.
func Open(ctx context.Context, cfg Config) (driver.Driver, error) {
	openFn := func(ctx context.Context) (*sql.DB, error) {
		db, err := sql.Open("sqlite3", cfg.Path)
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(1) // sqlite3 serializes writers; one conn avoids SQLITE_BUSY churn
		if err := applyPragmas(ctx, db, cfg.Pragmas); err != nil {
			db.Close()
			return nil, err
		}
		return db, nil
	}

	db, err := openFn(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlitedriver: open %s: %w", cfg.Path, err)
	}

	reconnect := driver.DefaultReconnectConfig()
	reconnect.Enabled = cfg.ReconnectEnabled

	return driver.NewBase(db, openFn, reconnect, driver.BeginImmediate, true), nil
}

func applyPragmas(ctx context.Context, db *sql.DB, s pragma.Settings) error {
	statements, err := pragma.Render(s)
	if err != nil {
		return err
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlitedriver: applying pragma %q: %w", stmt, err)
		}
	}
	return nil
}
