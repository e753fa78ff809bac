package collection

import (
	"reflect"
	"strconv"
	"strings"
)

// applyAtomicOps returns a new document with ops applied atop existing,
// implementing the `$set`/`$inc`/`$unset`/`$push`/`$pull` operators
// atomicUpdate accepts (spec.md §4.F).
func applyAtomicOps(existing map[string]any, ops AtomicOps) map[string]any {
	out := cloneDoc(existing)

	for path, v := range ops.Set {
		setDottedPath(out, path, v)
	}
	for path, delta := range ops.Inc {
		cur := numericAt(out, path)
		setDottedPath(out, path, cur+delta)
	}
	for _, path := range ops.Unset {
		unsetDottedPath(out, path)
	}
	for path, elem := range ops.Push {
		arr, _ := getDottedPath(out, path).([]any)
		setDottedPath(out, path, append(arr, elem))
	}
	for path, elem := range ops.Pull {
		arr, _ := getDottedPath(out, path).([]any)
		setDottedPath(out, path, pullValue(arr, elem))
	}
	return out
}

func numericAt(doc map[string]any, path string) float64 {
	switch v := getDottedPath(doc, path).(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

func getDottedPath(doc map[string]any, path string) any {
	segs := strings.Split(path, ".")
	var cur any = doc
	for _, seg := range segs {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[seg]
	}
	return cur
}

func unsetDottedPath(doc map[string]any, path string) {
	segs := strings.Split(path, ".")
	cur := doc
	for i, seg := range segs {
		if i == len(segs)-1 {
			delete(cur, seg)
			return
		}
		next, ok := cur[seg].(map[string]any)
		if !ok {
			return
		}
		cur = next
	}
}

func pullValue(arr []any, target any) []any {
	out := make([]any, 0, len(arr))
	for _, v := range arr {
		// Array elements may be maps/slices (Array(Nested(...)) fields),
		// which are uncomparable with != and would panic.
		if !reflect.DeepEqual(v, target) {
			out = append(out, v)
		}
	}
	return out
}

// stringifyPath renders the value at a constrained field path as the native
// value bound into its SQL column. String values pass through unchanged;
// other values are converted to text by toTextScalar. An absent or nil value returns nil so it binds as SQL NULL
// rather than the empty string, preserving IS NULL semantics on nullable
// constrained columns.
func stringifyPath(doc map[string]any, path string) any {
	v := getDottedPath(doc, path)
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return nil
	default:
		return toTextScalar(val)
	}
}

func toTextScalar(v any) string {
	switch val := v.(type) {
	case float64:
		return trimFloat(val)
	case int:
		return trimFloat(float64(val))
	case bool:
		if val {
			return "1"
		}
		return "0"
	default:
		return ""
	}
}

func trimFloat(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
