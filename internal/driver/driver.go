// Package driver implements the driver base (spec.md §4.G): connection
// lifecycle with reconnect backoff, a prepared-statement LRU, the
// transaction lock / nested-savepoint stack, and streaming row iteration.
// Concrete backends (driver/sqlitedriver, driver/remotedriver) embed Base
// and supply only what differs: the DSN, whether sync execution is legal,
// and backend-specific transaction start semantics.
package driver

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sqlidoc/sqlidoc/internal/dberrors"
)

// RowIterator streams query results row-at-a-time without materializing
// the full result set (spec.md §4.G Streaming).
type RowIterator interface {
	Next() bool
	Scan(dest ...any) error
	Columns() ([]string, error)
	Err() error
	Close() error
}

// Driver is the contract the collection runtime and SQL translator consume.
// It intentionally mirrors database/sql's shape so both backends can embed
// Base and satisfy it with minimal glue.
type Driver interface {
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)
	Query(ctx context.Context, query string, args ...any) (RowIterator, error)
	QueryIterator(ctx context.Context, query string, args ...any) (RowIterator, error)

	ExecSync(query string, args ...any) (sql.Result, error)
	QuerySync(query string, args ...any) (RowIterator, error)
	SupportsSync() bool

	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
	Close() error
	State() StateView
	HealthCheck(ctx context.Context) error
}

// ReconnectConfig controls the reconnect backoff from spec.md §4.G:
// "delay = base × (attempts+1) up to maxAttempts".
type ReconnectConfig struct {
	Enabled     bool
	MaxAttempts int
	BaseDelay   time.Duration
}

func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{Enabled: true, MaxAttempts: 5, BaseDelay: 100 * time.Millisecond}
}

// Opener connects (or reconnects) the backend and returns a live *sql.DB.
// sqlitedriver and remotedriver each supply one closed over their DSN.
type Opener func(ctx context.Context) (*sql.DB, error)

// BeginMode lets a backend request SQLite's BEGIN IMMEDIATE semantics
// (serializing writer startup) while a MySQL-wire backend just uses BEGIN.
type BeginMode string

const (
	BeginDeferred  BeginMode = "BEGIN"
	BeginImmediate BeginMode = "BEGIN IMMEDIATE"
)

// Base implements the shared connection/transaction/caching machinery of
// spec.md §4.G. supportsSync distinguishes the local (true) and remote
// (false) backends per spec.md §4.F "Sync/async duality".
type Base struct {
	db           *sql.DB
	open         Opener
	reconnect    ReconnectConfig
	beginMode    BeginMode
	supportsSync bool

	state State
	stmts *stmtCache
	txLk  fifoLock

	closed bool
}

// NewBase wires a Base around an already-open *sql.DB. open is retained for
// reconnects; it must return a fresh *sql.DB equivalent to the original.
func NewBase(db *sql.DB, open Opener, reconnect ReconnectConfig, beginMode BeginMode, supportsSync bool) *Base {
	b := &Base{
		db:           db,
		open:         open,
		reconnect:    reconnect,
		beginMode:    beginMode,
		supportsSync: supportsSync,
		stmts:        newStmtCache(),
	}
	b.state.setConnected(db != nil)
	return b
}

func (b *Base) SupportsSync() bool { return b.supportsSync }

func (b *Base) State() StateView { return b.state.snapshot() }

// ensureConnection verifies the connection is usable, reconnecting with the
// spec's backoff formula if not (spec.md §4.G).
func (b *Base) ensureConnection(ctx context.Context) error {
	if b.closed {
		return dberrors.DriverClosed("ensureConnection")
	}
	if b.db != nil && b.state.Connected() {
		if err := b.db.PingContext(ctx); err == nil {
			return nil
		}
	}
	if !b.reconnect.Enabled {
		return dberrors.Database("ensureConnection", "", fmt.Errorf("connection lost and autoReconnect is disabled"))
	}

	var lastErr error
	for {
		attempt := b.state.recordAttempt(lastErr)
		if attempt > b.reconnect.MaxAttempts {
			return dberrors.MaxReconnect("ensureConnection", b.reconnect.MaxAttempts)
		}
		delay := time.Duration(attempt) * b.reconnect.BaseDelay
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		db, err := b.open(ctx)
		if err != nil {
			lastErr = err
			continue
		}
		b.db = db
		b.state.setConnected(true)
		b.state.resetAttempts()
		return nil
	}
}

// HealthCheck runs the trivial liveness probe (spec.md §4.G: "a trivial
// SELECT 1").
func (b *Base) HealthCheck(ctx context.Context) error {
	if err := b.ensureConnection(ctx); err != nil {
		b.state.setHealthCheck(false, err)
		return err
	}
	var one int
	err := b.db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
	b.state.setHealthCheck(err == nil, err)
	return err
}

func (b *Base) prepare(ctx context.Context, query string) (*sql.Stmt, error) {
	return b.stmts.getOrPrepare(func(q string) (*sql.Stmt, error) {
		return b.db.PrepareContext(ctx, q)
	}, query)
}

// Exec runs a mutating statement. Inside a transaction it runs directly on
// the pinned connection so it observes in-flight uncommitted writes;
// outside one it goes through the prepared-statement cache against the
// pool.
func (b *Base) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if st := txFromContext(ctx); st != nil {
		res, err := st.conn.ExecContext(ctx, query, args...)
		if err != nil {
			return nil, dberrors.Wrap("exec", query, err)
		}
		return res, nil
	}
	if err := b.ensureConnection(ctx); err != nil {
		return nil, err
	}
	stmt, err := b.prepare(ctx, query)
	if err != nil {
		return nil, dberrors.Wrap("exec", query, err)
	}
	res, err := stmt.ExecContext(ctx, args...)
	if err != nil {
		return nil, dberrors.Wrap("exec", query, err)
	}
	return res, nil
}

func (b *Base) Query(ctx context.Context, query string, args ...any) (RowIterator, error) {
	if st := txFromContext(ctx); st != nil {
		rows, err := st.conn.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, dberrors.Wrap("query", query, err)
		}
		return &sqlRows{rows: rows}, nil
	}
	if err := b.ensureConnection(ctx); err != nil {
		return nil, err
	}
	stmt, err := b.prepare(ctx, query)
	if err != nil {
		return nil, dberrors.Wrap("query", query, err)
	}
	rows, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, dberrors.Wrap("query", query, err)
	}
	return &sqlRows{rows: rows}, nil
}

// QueryIterator is identical to Query: both return a RowIterator that pulls
// rows one at a time from the backend (spec.md §4.G streaming requirement:
// "must not materialize the full result set"). The separate method exists
// because callers reach for it explicitly when they intend to stream a
// large result, keeping Query's call sites free to assume a small result.
func (b *Base) QueryIterator(ctx context.Context, query string, args ...any) (RowIterator, error) {
	return b.Query(ctx, query, args...)
}

func (b *Base) ExecSync(query string, args ...any) (sql.Result, error) {
	if !b.supportsSync {
		return nil, dberrors.SyncNotSupported("execSync")
	}
	return b.Exec(context.Background(), query, args...)
}

func (b *Base) QuerySync(query string, args ...any) (RowIterator, error) {
	if !b.supportsSync {
		return nil, dberrors.SyncNotSupported("querySync")
	}
	return b.Query(context.Background(), query, args...)
}

// Close finalizes every cached prepared statement, then closes the
// underlying *sql.DB (spec.md §4.G).
func (b *Base) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	b.stmts.clear()
	b.state.setConnected(false)
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

type sqlRows struct {
	rows *sql.Rows
}

func (r *sqlRows) Next() bool                     { return r.rows.Next() }
func (r *sqlRows) Scan(dest ...any) error         { return r.rows.Scan(dest...) }
func (r *sqlRows) Columns() ([]string, error)     { return r.rows.Columns() }
func (r *sqlRows) Err() error                     { return r.rows.Err() }
func (r *sqlRows) Close() error                   { return r.rows.Close() }

// newSavepointName derives a unique, SQL-identifier-safe savepoint name,
// matching spec.md §4.G: "uniquely-named savepoints (UUID-derived, safe
// identifier)".
func newSavepointName() string {
	return "sp_" + uuidNoHyphens()
}

func uuidNoHyphens() string {
	id := uuid.New().String()
	out := make([]byte, 0, len(id))
	for _, r := range id {
		if r != '-' {
			out = append(out, byte(r))
		}
	}
	return string(out)
}
