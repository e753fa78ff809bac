package codec

import (
	"testing"
	"time"
)

func TestEncodeDecodeDateRoundTrip(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 5, 12, 30, 0, 0, time.UTC)
	doc := map[string]any{
		"name": "Alice",
		"nested": map[string]any{
			"createdAt": now,
		},
	}

	text, err := Encode(doc)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	cache := NewParseCache()
	decoded, err := Decode(cache, text)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	nested, ok := decoded["nested"].(map[string]any)
	if !ok {
		t.Fatalf("decoded nested field has wrong type: %T", decoded["nested"])
	}
	got, ok := nested["createdAt"].(time.Time)
	if !ok {
		t.Fatalf("decoded date has wrong type: %T", nested["createdAt"])
	}
	if !got.Equal(now) {
		t.Errorf("date round-trip: got %v, want %v", got, now)
	}
}

func TestDecodeCacheReturnsShallowCopy(t *testing.T) {
	t.Parallel()
	cache := NewParseCache()
	text := `{"name":"Alice"}`

	first, err := Decode(cache, text)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	first["name"] = "Mutated"

	second, err := Decode(cache, text)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if second["name"] != "Alice" {
		t.Errorf("cached entry was mutated by a prior caller's copy: got %v", second["name"])
	}
}

func TestParseCacheEvictsBeyondCapacity(t *testing.T) {
	t.Parallel()
	cache := NewParseCache()
	for i := 0; i < parseCacheCapacity+10; i++ {
		text, err := Encode(map[string]any{"i": i})
		if err != nil {
			t.Fatalf("Encode() error = %v", err)
		}
		if _, err := Decode(cache, text); err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
	}
	if cache.cache.Len() > parseCacheCapacity {
		t.Errorf("cache grew beyond capacity: len=%d want<=%d", cache.cache.Len(), parseCacheCapacity)
	}
}
