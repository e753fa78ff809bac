// Package pool implements the bounded connection pool spec.md §4.H
// describes for the remote backend: a fixed capacity, a FIFO waiter
// queue, idle reaping, and a graceful close.
package pool

import (
	"container/list"
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/sqlidoc/sqlidoc/internal/dberrors"
)

// Resource is anything the pool manages the lifecycle of — a driver
// connection in production, a fake in tests.
type Resource interface {
	Close() error
}

// Config is the pool's tuning surface (spec.md §4.H).
type Config struct {
	Min              int
	Max              int
	AcquireTimeout   time.Duration
	CreateTimeout    time.Duration
	DestroyTimeout   time.Duration
	IdleTimeout      time.Duration
	ReapInterval     time.Duration
	MaxRetries       int

	// Log receives reap/top-up/exit-close diagnostics. Defaults to
	// slog.Default() if nil.
	Log *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.Max == 0 {
		c.Max = 10
	}
	if c.AcquireTimeout == 0 {
		c.AcquireTimeout = 5 * time.Second
	}
	if c.CreateTimeout == 0 {
		c.CreateTimeout = 5 * time.Second
	}
	if c.DestroyTimeout == 0 {
		c.DestroyTimeout = 5 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 10 * time.Minute
	}
	if c.ReapInterval == 0 {
		c.ReapInterval = time.Minute
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.Log == nil {
		c.Log = slog.Default()
	}
	return c
}

type entry[T Resource] struct {
	res      T
	idleSince time.Time
}

// waiter is one FIFO-queued acquire call.
type waiter[T Resource] struct {
	ch chan acquireResult[T]
}

type acquireResult[T Resource] struct {
	res T
	err error
}

// Factory creates a new pooled resource.
type Factory[T Resource] func(ctx context.Context) (T, error)

// Pool is a bounded, FIFO-fair pool of resources of type T. Total resource
// count (idle + outstanding) is gated by a weighted semaphore rather than a
// hand-rolled counter-and-condition: every live resource holds one of Max
// permits for its whole lifetime, released only when the resource is
// permanently destroyed (Discard, idle reaping, or pool Close). Waiting
// for a specific freed resource to hand off (rather than merely a free
// slot to create a new one) still goes through the FIFO waiter list below,
// since a semaphore grants *a* permit, not *the* resource a caller needs.
type Pool[T Resource] struct {
	cfg     Config
	factory Factory[T]
	slots   *semaphore.Weighted

	mu      sync.Mutex
	idle    *list.List // of entry[T]
	count   int        // total outstanding + idle resources, mirrors slots for Len/reap bookkeeping
	waiters *list.List // of *waiter[T]
	closed  bool

	reapStop chan struct{}
	reapDone chan struct{}

	sigCh   chan os.Signal
	sigDone chan struct{}
}

// New creates a pool and starts its background reaper. It also registers a
// process-exit hook (spec.md §4.H: "beforeExit/exit/signal closes the pool
// exactly once") so SIGINT/SIGTERM drain the pool even if the caller never
// reaches its own Close. Callers should still call Close explicitly on a
// clean shutdown path; either route closes the pool exactly once.
func New[T Resource](cfg Config, factory Factory[T]) *Pool[T] {
	cfg = cfg.withDefaults()
	p := &Pool[T]{
		cfg:      cfg,
		factory:  factory,
		slots:    semaphore.NewWeighted(int64(cfg.Max)),
		idle:     list.New(),
		waiters:  list.New(),
		reapStop: make(chan struct{}),
		reapDone: make(chan struct{}),
		sigCh:    make(chan os.Signal, 1),
		sigDone:  make(chan struct{}),
	}
	go p.reapLoop()
	go p.exitOnSignal()
	return p
}

// exitOnSignal closes the pool on SIGINT/SIGTERM so outstanding connections
// aren't leaked across a process shutdown. It exits without acting if the
// pool is closed through its ordinary Close path first.
func (p *Pool[T]) exitOnSignal() {
	signal.Notify(p.sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(p.sigCh)
	select {
	case sig := <-p.sigCh:
		p.cfg.Log.Info("pool: closing on signal", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.DestroyTimeout)
		defer cancel()
		if err := p.Close(ctx); err != nil {
			p.cfg.Log.Error("pool: close on signal failed", "error", err)
		}
	case <-p.sigDone:
	}
}

// Acquire returns a resource, waiting in FIFO order if the pool is at
// capacity, and creating a fresh resource if below Max and none are idle.
func (p *Pool[T]) Acquire(ctx context.Context) (T, error) {
	var zero T

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return zero, dberrors.PoolClosing("acquire")
	}

	if el := p.idle.Front(); el != nil {
		e := el.Value.(entry[T])
		p.idle.Remove(el)
		p.mu.Unlock()
		return e.res, nil
	}
	p.mu.Unlock()

	if p.slots.TryAcquire(1) {
		p.mu.Lock()
		p.count++
		p.mu.Unlock()
		res, err := p.create(ctx)
		if err != nil {
			p.mu.Lock()
			p.count--
			p.mu.Unlock()
			p.slots.Release(1)
			return zero, err
		}
		return res, nil
	}

	p.mu.Lock()
	w := &waiter[T]{ch: make(chan acquireResult[T], 1)}
	el := p.waiters.PushBack(w)
	p.mu.Unlock()

	timeoutCtx, cancel := context.WithTimeout(ctx, p.cfg.AcquireTimeout)
	defer cancel()

	select {
	case r := <-w.ch:
		return r.res, r.err
	case <-timeoutCtx.Done():
		p.mu.Lock()
		p.waiters.Remove(el)
		p.mu.Unlock()
		return zero, dberrors.AcquireTimeout("acquire")
	}
}

func (p *Pool[T]) create(ctx context.Context) (T, error) {
	createCtx, cancel := context.WithTimeout(ctx, p.cfg.CreateTimeout)
	defer cancel()
	return p.factory(createCtx)
}

// Release returns res to the pool, handing it directly to the
// longest-waiting caller if one exists (FIFO), or parking it idle.
func (p *Pool[T]) Release(res T) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		p.count--
		p.slots.Release(1)
		go func() { _ = res.Close() }()
		return
	}

	if el := p.waiters.Front(); el != nil {
		w := el.Value.(*waiter[T])
		p.waiters.Remove(el)
		w.ch <- acquireResult[T]{res: res}
		return
	}

	p.idle.PushBack(entry[T]{res: res, idleSince: time.Now()})
}

// Discard drops res from the pool entirely (e.g. after it's found to be
// broken) rather than returning it to idle.
func (p *Pool[T]) Discard(res T) {
	p.mu.Lock()
	p.count--
	p.mu.Unlock()
	p.slots.Release(1)
	_ = res.Close()
}

func (p *Pool[T]) reapLoop() {
	defer close(p.reapDone)
	ticker := time.NewTicker(p.cfg.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.reapStop:
			return
		case <-ticker.C:
			p.reapIdle()
		}
	}
}

// reapIdle closes idle resources older than IdleTimeout, keeping at least
// Min resources alive, then tops the pool back up to Min if reaping (or any
// earlier Discard) left it below that floor (spec.md §4.H).
func (p *Pool[T]) reapIdle() {
	p.mu.Lock()
	var toClose []T
	now := time.Now()
	for el := p.idle.Front(); el != nil; {
		next := el.Next()
		if p.count <= p.cfg.Min {
			break
		}
		e := el.Value.(entry[T])
		if now.Sub(e.idleSince) >= p.cfg.IdleTimeout {
			p.idle.Remove(el)
			p.count--
			toClose = append(toClose, e.res)
		}
		el = next
	}
	p.mu.Unlock()

	for _, res := range toClose {
		p.slots.Release(1)
		_ = res.Close()
	}

	p.topUp(context.Background())
}

// topUp creates fresh idle resources until the pool holds at least Min, so
// the floor reapIdle preserves is actually maintained rather than merely
// not violated. Creation failures are logged and left for the next reap
// tick to retry.
func (p *Pool[T]) topUp(ctx context.Context) {
	for {
		p.mu.Lock()
		if p.closed || p.count >= p.cfg.Min {
			p.mu.Unlock()
			return
		}
		if !p.slots.TryAcquire(1) {
			p.mu.Unlock()
			return
		}
		p.count++
		p.mu.Unlock()

		res, err := p.create(ctx)
		if err != nil {
			p.mu.Lock()
			p.count--
			p.mu.Unlock()
			p.slots.Release(1)
			p.cfg.Log.Warn("pool: top-up create failed", "error", err)
			return
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			p.Discard(res)
			return
		}
		p.idle.PushBack(entry[T]{res: res, idleSince: time.Now()})
		p.mu.Unlock()
	}
}

// Close stops the reaper and closes every idle and waiting resource.
// Resources currently checked out are closed as they're Released/Discarded
// afterward (their Release/Discard calls see p.closed).
func (p *Pool[T]) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	var toClose []T
	for el := p.idle.Front(); el != nil; el = el.Next() {
		toClose = append(toClose, el.Value.(entry[T]).res)
	}
	p.idle.Init()
	for el := p.waiters.Front(); el != nil; el = el.Next() {
		el.Value.(*waiter[T]).ch <- acquireResult[T]{err: dberrors.PoolClosing("close")}
	}
	p.waiters.Init()
	p.mu.Unlock()

	close(p.sigDone)
	close(p.reapStop)
	select {
	case <-p.reapDone:
	case <-ctx.Done():
	}

	for _, res := range toClose {
		_ = res.Close()
	}
	return nil
}

// Len reports the current total (idle + outstanding) resource count.
func (p *Pool[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}
