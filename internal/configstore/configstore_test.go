package configstore

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sqlidoc/sqlidoc/internal/driver"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := t.TempDir() + "/test.db"
	open := func(ctx context.Context) (*sql.DB, error) { return sql.Open("sqlite3", path) }
	db, err := open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	drv := driver.NewBase(db, open, driver.DefaultReconnectConfig(), driver.BeginImmediate, true)
	t.Cleanup(func() { _ = drv.Close() })
	store, err := Open(context.Background(), drv)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return store
}

func TestSetGetConfigRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SetConfig(ctx, "retention.days", "30"); err != nil {
		t.Fatalf("set config: %v", err)
	}
	value, err := s.GetConfig(ctx, "retention.days")
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	if value != "30" {
		t.Errorf("got %q, want %q", value, "30")
	}
}

func TestGetConfigReturnsEmptyForUnsetKey(t *testing.T) {
	s := newTestStore(t)
	value, err := s.GetConfig(context.Background(), "missing")
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	if value != "" {
		t.Errorf("expected empty string, got %q", value)
	}
}

func TestSetConfigOverwritesOnConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.SetConfig(ctx, "k", "v1"); err != nil {
		t.Fatalf("set config: %v", err)
	}
	if err := s.SetConfig(ctx, "k", "v2"); err != nil {
		t.Fatalf("set config: %v", err)
	}
	value, err := s.GetConfig(ctx, "k")
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	if value != "v2" {
		t.Errorf("got %q, want v2", value)
	}
}

func TestDeleteConfigRemovesKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.SetConfig(ctx, "k", "v"); err != nil {
		t.Fatalf("set config: %v", err)
	}
	if err := s.DeleteConfig(ctx, "k"); err != nil {
		t.Fatalf("delete config: %v", err)
	}
	value, err := s.GetConfig(ctx, "k")
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	if value != "" {
		t.Errorf("expected empty after delete, got %q", value)
	}
}

func TestGetAllConfigReturnsEveryPair(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.SetConfig(ctx, "a", "1"); err != nil {
		t.Fatalf("set config: %v", err)
	}
	if err := s.SetConfig(ctx, "b", "2"); err != nil {
		t.Fatalf("set config: %v", err)
	}
	all, err := s.GetAllConfig(ctx)
	if err != nil {
		t.Fatalf("get all config: %v", err)
	}
	if all["a"] != "1" || all["b"] != "2" {
		t.Errorf("got %v", all)
	}
}

func TestMetadataIsSeparateFromConfig(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.SetConfig(ctx, "shared-key", "config-value"); err != nil {
		t.Fatalf("set config: %v", err)
	}
	if err := s.SetMetadata(ctx, "shared-key", "metadata-value"); err != nil {
		t.Fatalf("set metadata: %v", err)
	}
	configValue, err := s.GetConfig(ctx, "shared-key")
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	metaValue, err := s.GetMetadata(ctx, "shared-key")
	if err != nil {
		t.Fatalf("get metadata: %v", err)
	}
	if configValue != "config-value" || metaValue != "metadata-value" {
		t.Errorf("expected independent tables, got config=%q metadata=%q", configValue, metaValue)
	}
}
