package plugin

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRunExecutesHooksInRegistrationOrder(t *testing.T) {
	var order []string
	m := NewManager(false, time.Second, nil)
	m.Register(Plugin{Name: "a", BeforeInsert: func(ctx context.Context, hc Context) error {
		order = append(order, "a")
		return nil
	}})
	m.Register(Plugin{Name: "b", BeforeInsert: func(ctx context.Context, hc Context) error {
		order = append(order, "b")
		return nil
	}})

	if err := m.Run(context.Background(), Context{Hook: BeforeInsert}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Errorf("expected [a b], got %v", order)
	}
}

func TestRunStopsOnFirstErrorInStrictMode(t *testing.T) {
	ran := false
	m := NewManager(true, time.Second, nil)
	m.Register(Plugin{Name: "a", BeforeInsert: func(ctx context.Context, hc Context) error {
		return errors.New("boom")
	}})
	m.Register(Plugin{Name: "b", BeforeInsert: func(ctx context.Context, hc Context) error {
		ran = true
		return nil
	}})

	err := m.Run(context.Background(), Context{Hook: BeforeInsert})
	if err == nil {
		t.Fatal("expected error in strict mode")
	}
	if ran {
		t.Error("expected second plugin not to run after strict-mode failure")
	}
}

func TestRunContinuesPastErrorsInNonStrictMode(t *testing.T) {
	ran := false
	m := NewManager(false, time.Second, nil)
	m.Register(Plugin{Name: "a", BeforeInsert: func(ctx context.Context, hc Context) error {
		return errors.New("boom")
	}})
	m.Register(Plugin{Name: "b", BeforeInsert: func(ctx context.Context, hc Context) error {
		ran = true
		return nil
	}})

	if err := m.Run(context.Background(), Context{Hook: BeforeInsert}); err != nil {
		t.Fatalf("unexpected error in non-strict mode: %v", err)
	}
	if !ran {
		t.Error("expected second plugin to still run after first failed")
	}
}

func TestRunTimesOutSlowHook(t *testing.T) {
	m := NewManager(true, 10*time.Millisecond, nil)
	m.Register(Plugin{Name: "slow", BeforeInsert: func(ctx context.Context, hc Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	err := m.Run(context.Background(), Context{Hook: BeforeInsert})
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestRunSkipsPluginsWithoutMatchingCallback(t *testing.T) {
	m := NewManager(true, time.Second, nil)
	m.Register(Plugin{Name: "a"})
	if err := m.Run(context.Background(), Context{Hook: BeforeInsert}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
