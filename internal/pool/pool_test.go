package pool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type fakeResource struct {
	id     int
	closed int32
}

func (f *fakeResource) Close() error {
	atomic.StoreInt32(&f.closed, 1)
	return nil
}

func newCountingFactory() (Factory[*fakeResource], *int32) {
	var n int32
	return func(ctx context.Context) (*fakeResource, error) {
		id := atomic.AddInt32(&n, 1)
		return &fakeResource{id: int(id)}, nil
	}, &n
}

func TestAcquireReusesReleasedResource(t *testing.T) {
	factory, created := newCountingFactory()
	p := New(Config{Max: 2}, factory)
	defer p.Close(context.Background())

	r1, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	p.Release(r1)

	r2, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if r2 != r1 {
		t.Error("expected released resource to be reused")
	}
	if *created != 1 {
		t.Errorf("expected exactly 1 resource created, got %d", *created)
	}
}

func TestAcquireBlocksAtCapacityThenServesFIFO(t *testing.T) {
	factory, _ := newCountingFactory()
	p := New(Config{Max: 1, AcquireTimeout: time.Second}, factory)
	defer p.Close(context.Background())

	r1, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	done := make(chan struct{})
	go func() {
		r2, err := p.Acquire(context.Background())
		if err != nil {
			t.Errorf("second acquire: %v", err)
		}
		if r2 != r1 {
			t.Error("expected second acquire to receive the released resource")
		}
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	p.Release(r1)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter was never served")
	}
}

func TestAcquireTimesOutWhenPoolExhausted(t *testing.T) {
	factory, _ := newCountingFactory()
	p := New(Config{Max: 1, AcquireTimeout: 30 * time.Millisecond}, factory)
	defer p.Close(context.Background())

	if _, err := p.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	_, err := p.Acquire(context.Background())
	if err == nil {
		t.Fatal("expected acquire timeout error")
	}
}

func TestReapIdleTopsUpToMin(t *testing.T) {
	factory, created := newCountingFactory()
	p := New(Config{Max: 3, Min: 2}, factory)
	defer p.Close(context.Background())

	r1, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	p.Discard(r1)

	p.reapIdle()

	if got := p.Len(); got != 2 {
		t.Errorf("expected reapIdle to top up to Min=2, got %d resources", got)
	}
	if *created < 2 {
		t.Errorf("expected at least 2 resources created, got %d", *created)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	factory, _ := newCountingFactory()
	p := New(Config{Max: 1}, factory)

	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestCloseClosesIdleResources(t *testing.T) {
	factory, _ := newCountingFactory()
	p := New(Config{Max: 2}, factory)

	r1, _ := p.Acquire(context.Background())
	p.Release(r1)

	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if atomic.LoadInt32(&r1.closed) != 1 {
		t.Error("expected idle resource to be closed on pool close")
	}
}
