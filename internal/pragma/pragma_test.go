package pragma

import "testing"

func TestRenderRejectsUnknownJournalMode(t *testing.T) {
	_, err := Render(Settings{JournalMode: "bogus"})
	if err == nil {
		t.Fatal("expected error for invalid journal_mode")
	}
}

func TestRenderAcceptsWhitelistedValuesCaseInsensitively(t *testing.T) {
	stmts, err := Render(Settings{JournalMode: "wal", Synchronous: "normal"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := map[string]bool{}
	for _, s := range stmts {
		found[s] = true
	}
	if !found["PRAGMA journal_mode = WAL"] {
		t.Errorf("expected normalized WAL pragma, got %v", stmts)
	}
	if !found["PRAGMA synchronous = NORMAL"] {
		t.Errorf("expected normalized NORMAL pragma, got %v", stmts)
	}
}

func TestRenderEmitsNegativeKiBCacheSize(t *testing.T) {
	stmts, err := Render(Settings{CacheSizeKiB: 2048})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := false
	for _, s := range stmts {
		if s == "PRAGMA cache_size = -2048" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected negative-KiB cache_size pragma, got %v", stmts)
	}
}

func TestClampCacheSizeKiBEnforcesFloorAndCeiling(t *testing.T) {
	if got := clampCacheSizeKiB(500); got != minCacheSizeKiB {
		t.Errorf("expected floor %d, got %d", minCacheSizeKiB, got)
	}
	if got := clampCacheSizeKiB(9_000_000); got != maxCacheSizeKiB {
		t.Errorf("expected ceiling %d, got %d", maxCacheSizeKiB, got)
	}
	if got := clampCacheSizeKiB(20000); got != 20000 {
		t.Errorf("expected mid-range value unchanged, got %d", got)
	}
}

func TestAutoCacheSizeKiBStaysWithinClampRange(t *testing.T) {
	if got := autoCacheSizeKiB(); got < minCacheSizeKiB || got > maxCacheSizeKiB {
		t.Errorf("expected auto cache size within [%d, %d], got %d", minCacheSizeKiB, maxCacheSizeKiB, got)
	}
}

func TestRenderAlwaysEnablesForeignKeys(t *testing.T) {
	stmts, err := Render(Settings{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := false
	for _, s := range stmts {
		if s == "PRAGMA foreign_keys = ON" {
			found = true
		}
	}
	if !found {
		t.Error("expected foreign_keys pragma to always be emitted")
	}
}
