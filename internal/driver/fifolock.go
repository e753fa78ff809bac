package driver

import (
	"context"
	"sync"
)

// fifoLock is the transaction lock spec.md §4.G requires: a mutex guarding
// the start of any top-level transaction, with waiters served strictly in
// arrival order. sync.Mutex itself makes no FIFO guarantee under
// contention, so top-level transaction ordering is implemented with an
// explicit ticket queue instead.
type fifoLock struct {
	mu    sync.Mutex
	queue []chan struct{}
}

// Lock blocks until it is this caller's turn, or ctx is done. On a context
// cancellation while waiting, the caller's ticket is removed from the queue
// so it doesn't block the next waiter forever.
func (l *fifoLock) Lock(ctx context.Context) error {
	l.mu.Lock()
	ticket := make(chan struct{})
	l.queue = append(l.queue, ticket)
	head := len(l.queue) == 1
	l.mu.Unlock()

	if head {
		return nil
	}

	select {
	case <-ticket:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		select {
		case <-ticket:
			// Unlock already closed our ticket (granting us the lock) in the
			// same window ctx.Done() fired. We're committed to holding the
			// lock now: release it immediately so the next waiter isn't
			// stranded, then report the cancellation.
			l.mu.Unlock()
			l.Unlock()
			return ctx.Err()
		default:
		}
		for i, t := range l.queue {
			if t == ticket {
				l.queue = append(l.queue[:i], l.queue[i+1:]...)
				break
			}
		}
		l.mu.Unlock()
		return ctx.Err()
	}
}

// Unlock releases the lock and wakes the next queued waiter, if any.
func (l *fifoLock) Unlock() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return
	}
	l.queue = l.queue[1:]
	if len(l.queue) > 0 {
		close(l.queue[0])
	}
}
