// Package remotedriver is the pooled remote backend (spec.md §4.G): a
// MySQL-wire connection reached through go-sql-driver/mysql, with
// SupportsSync always false since every round trip crosses the network.
// Transient connection errors are retried with exponential backoff,
// mirroring how a server-mode backend without driver-level retry has to
// compensate at the call site.
package remotedriver

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/sqlidoc/sqlidoc/internal/dberrors"
	"github.com/sqlidoc/sqlidoc/internal/driver"
	"github.com/sqlidoc/sqlidoc/internal/pool"
)

// Config configures the remote backend.
type Config struct {
	DSN string // e.g. "user:pass@tcp(host:3306)/dbname?parseTime=true"

	// MinConns/MaxOpenConns size internal/pool (spec.md §4.H), which owns
	// connection acquisition for this backend: FIFO waiter fairness, idle
	// reaping with top-up, and process-exit close.
	MinConns     int
	MaxOpenConns int
	AcquireTimeout time.Duration
	IdleTimeout    time.Duration
	ReapInterval   time.Duration

	ConnMaxLifetime time.Duration
	RetryMaxElapsed time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 10
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = 5 * time.Minute
	}
	if c.RetryMaxElapsed == 0 {
		c.RetryMaxElapsed = 30 * time.Second
	}
	return c
}

var tracer = otel.Tracer("github.com/sqlidoc/sqlidoc/internal/driver/remotedriver")

var instruments struct {
	retryCount metric.Int64Counter
}

func init() {
	m := otel.Meter("github.com/sqlidoc/sqlidoc/internal/driver/remotedriver")
	instruments.retryCount, _ = m.Int64Counter("sqlidoc.db.retry_count",
		metric.WithDescription("SQL operations retried due to remote-backend transient errors"),
		metric.WithUnit("{retry}"),
	)
}

// Open opens a pooled connection to the remote backend. Connection
// acquisition flows through internal/pool (spec.md §2, §4.H) rather than
// database/sql's own pool: the underlying *sql.DB is left able to hold as
// many physical connections as the pool's Max, but every Exec/Query/
// Transaction call acquires its connection from the pool, which owns FIFO
// waiter fairness, idle reaping with top-up, and process-exit close.
func Open(ctx context.Context, cfg Config) (driver.Driver, error) {
	cfg = cfg.withDefaults()

	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("remotedriver: open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("remotedriver: open: %w", err)
	}

	connPool := pool.New[*sql.Conn](pool.Config{
		Min:            cfg.MinConns,
		Max:            cfg.MaxOpenConns,
		AcquireTimeout: cfg.AcquireTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		ReapInterval:   cfg.ReapInterval,
	}, func(ctx context.Context) (*sql.Conn, error) {
		return db.Conn(ctx)
	})

	reconnect := driver.DefaultReconnectConfig()
	openFn := func(ctx context.Context) (*sql.DB, error) {
		if err := db.PingContext(ctx); err != nil {
			return nil, err
		}
		return db, nil
	}
	base := driver.NewBase(db, openFn, reconnect, driver.BeginDeferred, false)

	pd := &pooledDriver{Base: base, pool: connPool}
	return &retryingDriver{Driver: pd, maxElapsed: cfg.RetryMaxElapsed}, nil
}

// pooledDriver routes the connection-acquiring operations (Exec, Query,
// top-level Transaction) through internal/pool instead of letting
// driver.Base reach into the shared *sql.DB directly. HealthCheck, State,
// and Close are left to Base, which operates correctly against the shared
// db handle for those liveness/lifecycle concerns.
type pooledDriver struct {
	*driver.Base
	pool *pool.Pool[*sql.Conn]
}

func (p *pooledDriver) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if driver.InTransaction(ctx) {
		return p.Base.Exec(ctx, query, args...)
	}
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	res, execErr := conn.ExecContext(ctx, query, args...)
	p.releaseOrDiscard(conn, execErr)
	if execErr != nil {
		return nil, dberrors.Wrap("exec", query, execErr)
	}
	return res, nil
}

func (p *pooledDriver) Query(ctx context.Context, query string, args ...any) (driver.RowIterator, error) {
	if driver.InTransaction(ctx) {
		return p.Base.Query(ctx, query, args...)
	}
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	rows, queryErr := conn.QueryContext(ctx, query, args...)
	if queryErr != nil {
		p.releaseOrDiscard(conn, queryErr)
		return nil, dberrors.Wrap("query", query, queryErr)
	}
	return &pooledRows{rows: rows, release: func() { p.releaseOrDiscard(conn, nil) }}, nil
}

func (p *pooledDriver) QueryIterator(ctx context.Context, query string, args ...any) (driver.RowIterator, error) {
	return p.Query(ctx, query, args...)
}

func (p *pooledDriver) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if driver.InTransaction(ctx) {
		return p.Base.Transaction(ctx, fn)
	}
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	txErr := driver.RunTransactionOnConn(ctx, p.Base, conn, fn)
	p.releaseOrDiscard(conn, txErr)
	return txErr
}

func (p *pooledDriver) Close() error {
	if err := p.pool.Close(context.Background()); err != nil {
		return err
	}
	return p.Base.Close()
}

// releaseOrDiscard returns conn to the pool, or discards it if err looks
// like the connection itself (rather than the statement) is broken, so a
// bad connection isn't handed to the next waiter.
func (p *pooledDriver) releaseOrDiscard(conn *sql.Conn, err error) {
	if err != nil && isRetryable(err) {
		p.pool.Discard(conn)
		return
	}
	p.pool.Release(conn)
}

// pooledRows defers returning its connection to the pool until the row
// iterator is closed, since the connection must stay checked out for as
// long as the caller is still scanning rows from it.
type pooledRows struct {
	rows    *sql.Rows
	release func()
	once    bool
}

func (r *pooledRows) Next() bool                 { return r.rows.Next() }
func (r *pooledRows) Scan(dest ...any) error     { return r.rows.Scan(dest...) }
func (r *pooledRows) Columns() ([]string, error) { return r.rows.Columns() }
func (r *pooledRows) Err() error                 { return r.rows.Err() }

func (r *pooledRows) Close() error {
	err := r.rows.Close()
	if !r.once {
		r.once = true
		r.release()
	}
	return err
}

// retryingDriver wraps the pooled driver's Exec/Query with the backoff retry the
// teacher's server-mode backend layers on top of a driver lacking its own
// retry, since every hop here crosses the network and the embedded
// driver-level retry assumption doesn't hold.
type retryingDriver struct {
	driver.Driver
	maxElapsed time.Duration
}

func (r *retryingDriver) newBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = r.maxElapsed
	return bo
}

func (r *retryingDriver) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx, span := startSpan(ctx, "exec", query)
	defer span.End()

	var res sql.Result
	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		var opErr error
		res, opErr = r.Driver.Exec(ctx, query, args...)
		if opErr != nil && isRetryable(opErr) {
			return opErr
		}
		if opErr != nil {
			return backoff.Permanent(opErr)
		}
		return nil
	}, backoff.WithContext(r.newBackoff(), ctx))

	if attempts > 1 {
		instruments.retryCount.Add(ctx, int64(attempts-1))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

func (r *retryingDriver) Query(ctx context.Context, query string, args ...any) (driver.RowIterator, error) {
	ctx, span := startSpan(ctx, "query", query)
	defer span.End()

	var rows driver.RowIterator
	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		var opErr error
		rows, opErr = r.Driver.Query(ctx, query, args...)
		if opErr != nil && isRetryable(opErr) {
			return opErr
		}
		if opErr != nil {
			return backoff.Permanent(opErr)
		}
		return nil
	}, backoff.WithContext(r.newBackoff(), ctx))

	if attempts > 1 {
		instruments.retryCount.Add(ctx, int64(attempts-1))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return rows, err
}

func startSpan(ctx context.Context, op, query string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "sqlidoc.db."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "mysql"),
			attribute.String("db.operation", op),
			attribute.String("db.statement", truncate(query, 300)),
		),
	)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

// isRetryable reports whether err is a transient network/connection error
// worth retrying, as opposed to a query or constraint error that will never
// succeed on retry.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, substr := range []string{
		"driver: bad connection",
		"invalid connection",
		"broken pipe",
		"connection reset",
		"connection refused",
		"lost connection",
		"gone away",
		"i/o timeout",
	} {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}
