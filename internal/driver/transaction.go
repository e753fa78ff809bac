package driver

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sqlidoc/sqlidoc/internal/dberrors"
)

type txKey struct{}

// txState pins every statement issued inside a transaction to one
// *sql.Conn, and tracks nesting depth so a second Transaction call made
// from inside the first becomes a SAVEPOINT instead of a new BEGIN
// (spec.md §4.G "nested-transaction savepoint stack").
type txState struct {
	conn  *sql.Conn
	depth int
}

func txFromContext(ctx context.Context) *txState {
	st, _ := ctx.Value(txKey{}).(*txState)
	return st
}

// InTransaction reports whether ctx carries a transaction already pinned to
// a connection, letting a backend that pools connections itself (e.g.
// remotedriver) tell a top-level call (acquire its own connection) apart
// from a nested one (must reuse the connection the outer call pinned).
func InTransaction(ctx context.Context) bool {
	return txFromContext(ctx) != nil
}

// Transaction runs fn inside a database transaction. A top-level call
// acquires the FIFO transaction lock, opens BEGIN (or BEGIN IMMEDIATE, per
// beginMode) on a pinned connection, and releases the lock as soon as
// BEGIN completes so unrelated readers aren't blocked for the whole
// transaction body (spec.md §4.G). A call nested inside an already-running
// transaction instead pushes a uniquely-named SAVEPOINT and pops it on
// return, without touching the FIFO lock.
func (b *Base) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if st := txFromContext(ctx); st != nil {
		return b.runNested(ctx, st, fn)
	}
	return b.runTopLevel(ctx, fn)
}

func (b *Base) runTopLevel(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.ensureConnection(ctx); err != nil {
		return err
	}
	if err := b.txLk.Lock(ctx); err != nil {
		return err
	}

	conn, err := b.db.Conn(ctx)
	if err != nil {
		b.txLk.Unlock()
		return dberrors.Wrap("transaction.begin", "", err)
	}
	return b.runTopLevelOnConn(ctx, conn, fn, true)
}

// RunTransactionOnConn runs a top-level transaction body on a caller-
// supplied connection rather than one Base acquires itself, so a backend
// that pools connections externally (internal/pool, spec.md §4.H) can hand
// Base the exact connection its pool already accounted for. The caller
// owns conn's lifecycle afterward (Base never closes it).
func RunTransactionOnConn(ctx context.Context, b *Base, conn *sql.Conn, fn func(ctx context.Context) error) error {
	if err := b.ensureConnection(ctx); err != nil {
		return err
	}
	if err := b.txLk.Lock(ctx); err != nil {
		return err
	}
	return b.runTopLevelOnConn(ctx, conn, fn, false)
}

// runTopLevelOnConn runs BEGIN/body/COMMIT-or-ROLLBACK on conn. When
// ownsConn is true, Base acquired conn itself and is responsible for
// closing it once the transaction ends; when false, the caller (a
// connection pool) owns conn and will release or discard it itself.
func (b *Base) runTopLevelOnConn(ctx context.Context, conn *sql.Conn, fn func(ctx context.Context) error, ownsConn bool) error {
	if _, err := conn.ExecContext(ctx, string(b.beginMode)); err != nil {
		if ownsConn {
			conn.Close()
		}
		b.txLk.Unlock()
		return dberrors.Wrap("transaction.begin", string(b.beginMode), err)
	}
	// The lock only serializes transaction *startup*; once BEGIN has
	// returned, concurrent top-level transactions may proceed to acquire
	// their own connections while this one runs its body.
	b.txLk.Unlock()

	st := &txState{conn: conn, depth: 0}
	txCtx := context.WithValue(ctx, txKey{}, st)

	if err := fn(txCtx); err != nil {
		if rbErr := b.rollback(ctx, conn); rbErr != nil {
			if ownsConn {
				conn.Close()
			}
			return dberrors.Wrap("transaction.rollback", "", fmt.Errorf("rollback failed (%v) after body error: %w", rbErr, err))
		}
		if ownsConn {
			conn.Close()
		}
		return err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		if ownsConn {
			conn.Close()
		}
		return dberrors.Wrap("transaction.commit", "COMMIT", err)
	}
	if ownsConn {
		conn.Close()
	}
	return nil
}

func (b *Base) rollback(ctx context.Context, conn *sql.Conn) error {
	_, err := conn.ExecContext(ctx, "ROLLBACK")
	if err != nil && isConnClosed(err) {
		return dberrors.DriverClosed("transaction.rollback")
	}
	return err
}

func (b *Base) runNested(ctx context.Context, parent *txState, fn func(ctx context.Context) error) error {
	name := newSavepointName()
	if _, err := parent.conn.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return dberrors.Wrap("transaction.savepoint", "SAVEPOINT "+name, err)
	}

	child := &txState{conn: parent.conn, depth: parent.depth + 1}
	txCtx := context.WithValue(ctx, txKey{}, child)

	if err := fn(txCtx); err != nil {
		if _, rbErr := parent.conn.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return dberrors.Wrap("transaction.savepoint_rollback", "ROLLBACK TO SAVEPOINT "+name, fmt.Errorf("%v after body error: %w", rbErr, err))
		}
		// The savepoint is rolled back but still occupies the connection's
		// savepoint stack until released (spec.md §4.G); release it before
		// propagating the body's error so the stack doesn't leak.
		if _, relErr := parent.conn.ExecContext(ctx, "RELEASE SAVEPOINT "+name); relErr != nil {
			return dberrors.Wrap("transaction.savepoint_release", "RELEASE SAVEPOINT "+name, fmt.Errorf("%v after body error: %w", relErr, err))
		}
		return err
	}

	if _, err := parent.conn.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return dberrors.Wrap("transaction.savepoint_release", "RELEASE SAVEPOINT "+name, err)
	}
	return nil
}

func isConnClosed(err error) bool {
	return err == sql.ErrConnDone || err == sql.ErrTxDone
}
