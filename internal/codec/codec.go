// Package codec implements the document <-> JSON-text serialization
// described in spec.md §4.A: dates are wrapped so they round-trip exactly,
// and a content-addressed LRU cache avoids re-parsing identical doc text on
// read-heavy workloads.
package codec

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// dateTag is the wrapper spec.md §3 Invariant 5 requires: JSON encoding
// represents a time.Time as {"__type":"Date","value":<ISO-8601>}.
const dateTag = "Date"

type taggedDate struct {
	Type  string `json:"__type"`
	Value string `json:"value"`
}

// Encode serializes doc to the JSON text stored in the `doc` column. time.Time
// values anywhere in the structure (top-level or nested) are wrapped via
// dateTag so Decode can restore a native instant.
func Encode(doc map[string]any) (string, error) {
	wrapped := wrapDates(doc)
	b, err := json.Marshal(wrapped)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	return string(b), nil
}

func wrapDates(v any) any {
	switch val := v.(type) {
	case time.Time:
		return taggedDate{Type: dateTag, Value: val.UTC().Format(time.RFC3339Nano)}
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = wrapDates(e)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = wrapDates(e)
		}
		return out
	default:
		return v
	}
}

func reviveDates(v any) any {
	switch val := v.(type) {
	case map[string]any:
		if t, ok := val["__type"]; ok && t == dateTag {
			if s, ok := val["value"].(string); ok {
				if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
					return parsed
				}
			}
		}
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = reviveDates(e)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = reviveDates(e)
		}
		return out
	default:
		return v
	}
}

// ParseCache is a process-wide, content-addressed LRU of decoded documents.
// Entries are returned as a defensive shallow copy so callers can never
// mutate cached state (spec.md §4.A rationale, §5 "Shared resources").
//
// Capacity is fixed at 1000 per spec.md §4.A. golang-lru/v2 is the same
// generic LRU family already pulled in for the driver's statement cache;
// using it here too keeps one eviction policy in the codebase instead of a
// hand-rolled one.
type ParseCache struct {
	cache *lru.Cache[uint32, map[string]any]
}

const parseCacheCapacity = 1000

func NewParseCache() *ParseCache {
	c, err := lru.New[uint32, map[string]any](parseCacheCapacity)
	if err != nil {
		// Only returns an error for a non-positive size, which is a constant
		// here and therefore a programmer error, not a runtime condition.
		panic(fmt.Sprintf("codec: invalid parse cache capacity: %v", err))
	}
	return &ParseCache{cache: c}
}

// hashKey computes the 32-bit FNV-1a hash of the JSON text (spec.md §4.A).
func hashKey(text string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	return h.Sum32()
}

// Decode parses JSON text back into a document, restoring tagged dates. A
// cache hit returns a shallow copy of the previously-decoded top-level map
// so the caller may freely mutate their own copy's entries; nested maps and
// slices are shared, matching "shallow copy" in spec.md §4.A.
func Decode(cache *ParseCache, text string) (map[string]any, error) {
	key := hashKey(text)
	if cache != nil {
		if cached, ok := cache.cache.Get(key); ok {
			return shallowCopy(cached), nil
		}
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	revived, ok := reviveDates(raw).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("decode document: top-level JSON value is not an object")
	}

	if cache != nil {
		cache.cache.Add(key, revived)
	}
	return shallowCopy(revived), nil
}

func shallowCopy(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
