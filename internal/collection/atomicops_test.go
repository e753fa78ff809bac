package collection

import "testing"

func TestPullValueRemovesMatchingScalars(t *testing.T) {
	arr := []any{float64(1), float64(2), float64(3)}
	got := pullValue(arr, float64(2))
	if len(got) != 2 || got[0] != float64(1) || got[1] != float64(3) {
		t.Errorf("pullValue() = %v, want [1 3]", got)
	}
}

func TestPullValueComparesNestedObjectsByValueNotIdentity(t *testing.T) {
	arr := []any{
		map[string]any{"id": "a"},
		map[string]any{"id": "b"},
	}
	got := pullValue(arr, map[string]any{"id": "a"})
	if len(got) != 1 {
		t.Fatalf("pullValue() = %v, want 1 remaining element", got)
	}
	if got[0].(map[string]any)["id"] != "b" {
		t.Errorf("pullValue() removed the wrong element: %v", got)
	}
}

func TestStringifyPathReturnsNilForAbsentValue(t *testing.T) {
	doc := map[string]any{"name": "Alice"}
	if got := stringifyPath(doc, "profile.email"); got != nil {
		t.Errorf("stringifyPath() = %v, want nil for an absent path", got)
	}
}

func TestStringifyPathReturnsStringForPresentValue(t *testing.T) {
	doc := map[string]any{"email": "a@x"}
	if got := stringifyPath(doc, "email"); got != "a@x" {
		t.Errorf("stringifyPath() = %v, want %q", got, "a@x")
	}
}
