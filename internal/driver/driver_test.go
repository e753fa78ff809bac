package driver

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func newTestBase(t *testing.T) *Base {
	t.Helper()
	path := t.TempDir() + "/test.db"
	open := func(ctx context.Context) (*sql.DB, error) {
		return sql.Open("sqlite3", path)
	}
	db, err := open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	b := NewBase(db, open, DefaultReconnectConfig(), BeginImmediate, true)
	if _, err := b.Exec(context.Background(), "CREATE TABLE t (id INTEGER PRIMARY KEY, val TEXT)"); err != nil {
		t.Fatalf("create table: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestHealthCheckReportsHealthy(t *testing.T) {
	b := newTestBase(t)
	if err := b.HealthCheck(context.Background()); err != nil {
		t.Fatalf("unexpected health check error: %v", err)
	}
	if !b.State().Healthy() {
		t.Error("expected state to report healthy after a successful health check")
	}
}

func TestTransactionCommitsOnSuccess(t *testing.T) {
	b := newTestBase(t)
	err := b.Transaction(context.Background(), func(ctx context.Context) error {
		_, err := b.Exec(ctx, "INSERT INTO t (id, val) VALUES (1, 'a')")
		return err
	})
	if err != nil {
		t.Fatalf("unexpected transaction error: %v", err)
	}

	rows, err := b.Query(context.Background(), "SELECT val FROM t WHERE id = 1")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()
	if !rows.Next() {
		t.Fatal("expected committed row to be visible")
	}
	var val string
	if err := rows.Scan(&val); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if val != "a" {
		t.Errorf("got %q, want %q", val, "a")
	}
}

func TestTransactionRollsBackOnError(t *testing.T) {
	b := newTestBase(t)
	sentinel := errors.New("boom")
	err := b.Transaction(context.Background(), func(ctx context.Context) error {
		if _, err := b.Exec(ctx, "INSERT INTO t (id, val) VALUES (2, 'b')"); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}

	rows, err := b.Query(context.Background(), "SELECT val FROM t WHERE id = 2")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()
	if rows.Next() {
		t.Error("expected row to be rolled back")
	}
}

func TestNestedTransactionUsesSavepoint(t *testing.T) {
	b := newTestBase(t)
	err := b.Transaction(context.Background(), func(ctx context.Context) error {
		if _, err := b.Exec(ctx, "INSERT INTO t (id, val) VALUES (3, 'outer')"); err != nil {
			return err
		}
		return b.Transaction(ctx, func(ctx context.Context) error {
			_, err := b.Exec(ctx, "INSERT INTO t (id, val) VALUES (4, 'inner')")
			return err
		})
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rows, err := b.Query(context.Background(), "SELECT count(*) FROM t WHERE id IN (3, 4)")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()
	rows.Next()
	var n int
	if err := rows.Scan(&n); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if n != 2 {
		t.Errorf("expected both outer and inner rows committed, got count %d", n)
	}
}

func TestNestedTransactionRollsBackToSavepointOnly(t *testing.T) {
	b := newTestBase(t)
	err := b.Transaction(context.Background(), func(ctx context.Context) error {
		if _, err := b.Exec(ctx, "INSERT INTO t (id, val) VALUES (5, 'outer')"); err != nil {
			return err
		}
		inner := b.Transaction(ctx, func(ctx context.Context) error {
			if _, err := b.Exec(ctx, "INSERT INTO t (id, val) VALUES (6, 'inner')"); err != nil {
				return err
			}
			return errors.New("inner failure")
		})
		if inner == nil {
			t.Fatal("expected inner transaction to fail")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected outer error: %v", err)
	}

	rows, err := b.Query(context.Background(), "SELECT id FROM t WHERE id IN (5, 6) ORDER BY id")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()
	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			t.Fatalf("scan: %v", err)
		}
		ids = append(ids, id)
	}
	if len(ids) != 1 || ids[0] != 5 {
		t.Errorf("expected only outer row 5 to survive, got %v", ids)
	}
}

func TestFIFOLockServesWaitersInArrivalOrder(t *testing.T) {
	var l fifoLock
	ctx := context.Background()
	if err := l.Lock(ctx); err != nil {
		t.Fatalf("first lock: %v", err)
	}

	order := make(chan int, 3)
	for i := 0; i < 3; i++ {
		i := i
		go func() {
			if err := l.Lock(ctx); err != nil {
				return
			}
			order <- i
			l.Unlock()
		}()
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	l.Unlock()

	for i := 0; i < 3; i++ {
		got := <-order
		if got != i {
			t.Errorf("waiter %d served out of order, got %d", i, got)
		}
	}
}

func TestFIFOLockCancelledWaiterDoesNotStrandTheNextOne(t *testing.T) {
	var l fifoLock
	ctx := context.Background()
	if err := l.Lock(ctx); err != nil {
		t.Fatalf("first lock: %v", err)
	}

	cancelCtx, cancel := context.WithCancel(ctx)
	cancelled := make(chan struct{})
	go func() {
		if err := l.Lock(cancelCtx); err == nil {
			l.Unlock()
		}
		close(cancelled)
	}()

	served := make(chan struct{})
	go func() {
		if err := l.Lock(ctx); err != nil {
			return
		}
		close(served)
		l.Unlock()
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	l.Unlock()

	<-cancelled
	select {
	case <-served:
	case <-time.After(time.Second):
		t.Fatal("third waiter was stranded behind the cancelled second waiter")
	}
}

func TestSyncNotSupportedOnAsyncBackend(t *testing.T) {
	path := t.TempDir() + "/test2.db"
	open := func(ctx context.Context) (*sql.DB, error) { return sql.Open("sqlite3", path) }
	db, _ := open(context.Background())
	b := NewBase(db, open, DefaultReconnectConfig(), BeginDeferred, false)
	defer b.Close()

	_, err := b.ExecSync("SELECT 1")
	if err == nil {
		t.Fatal("expected SyncNotSupported error")
	}
}
