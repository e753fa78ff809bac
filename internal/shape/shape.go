// Package shape implements the tagged-variant type descriptor used to
// validate documents against a caller-supplied Shape (spec.md §3, §9).
//
// A dynamic "shape" in the source system maps here to a small recursive
// descriptor tree; validation walks the tree rather than using reflection,
// matching the teacher's own preference for explicit field-by-field checks
// over generic struct tag machinery (types.Issue.ValidateWithCustom).
package shape

import (
	"fmt"
	"time"
)

// Kind enumerates the field descriptor variants a Shape field may take.
type Kind string

const (
	KindString   Kind = "string"
	KindNumber   Kind = "number"
	KindBoolean  Kind = "boolean"
	KindDate     Kind = "date"
	KindUUID     Kind = "uuid"
	KindEmail    Kind = "email"
	KindOptional Kind = "optional"
	KindNested   Kind = "nested"
	KindArray    Kind = "array"
	KindAny      Kind = "any"
)

// Field is one node of the descriptor tree. Exactly the fields relevant to
// Kind are meaningful: Of for KindOptional/KindArray, Shape for KindNested.
type Field struct {
	Kind  Kind
	Of    *Field
	Shape Shape
}

// Shape is a declarative description of a document: a mapping from field
// name to type descriptor. Every Shape implicitly carries `_id` (string)
// and `_version` (positive integer) — callers never declare those two
// themselves; Validate is given them as fields to skip, and TopLevelField
// reports them as known top-level fields.
type Shape map[string]Field

// Any is the catch-all shape used by the "generic collection" design note
// (spec.md §9): it accepts any JSON value and is documented to skip
// field-path validation entirely.
var Any = Shape{"_any": {Kind: KindAny}}

func (s Shape) IsAny() bool {
	f, ok := s["_any"]
	return ok && f.Kind == KindAny
}

// String, Number, Boolean, Date, UUID, Email are constructors for leaf
// descriptors, used when building a Shape literal.
func String() Field   { return Field{Kind: KindString} }
func Number() Field   { return Field{Kind: KindNumber} }
func Boolean() Field  { return Field{Kind: KindBoolean} }
func Date() Field     { return Field{Kind: KindDate} }
func UUID() Field     { return Field{Kind: KindUUID} }
func Email() Field    { return Field{Kind: KindEmail} }
func Optional(of Field) Field { return Field{Kind: KindOptional, Of: &of} }
func Nested(s Shape) Field    { return Field{Kind: KindNested, Shape: s} }
func Array(of Field) Field    { return Field{Kind: KindArray, Of: &of} }

// Validate walks doc against s, recursing into nested shapes and arrays.
// skipFields names top-level fields the caller has already accounted for
// (used by insert/put, which validate against the shape minus `_id`/
// `_version` per spec.md §4.F).
func Validate(s Shape, doc map[string]any, skipFields ...string) error {
	if s.IsAny() {
		return nil
	}
	skip := make(map[string]bool, len(skipFields))
	for _, f := range skipFields {
		skip[f] = true
	}
	for name, field := range s {
		if skip[name] {
			continue
		}
		val, present := doc[name]
		if err := validateField(name, field, val, present); err != nil {
			return err
		}
	}
	return nil
}

func validateField(path string, f Field, val any, present bool) error {
	if f.Kind == KindOptional {
		if !present || val == nil {
			return nil
		}
		return validateField(path, *f.Of, val, true)
	}
	if !present {
		return fmt.Errorf("field %q: required field is missing", path)
	}
	switch f.Kind {
	case KindString, KindEmail, KindUUID:
		if _, ok := val.(string); !ok {
			return fmt.Errorf("field %q: expected string, got %T", path, val)
		}
	case KindNumber:
		switch val.(type) {
		case float64, int, int64:
		default:
			return fmt.Errorf("field %q: expected number, got %T", path, val)
		}
	case KindBoolean:
		if _, ok := val.(bool); !ok {
			return fmt.Errorf("field %q: expected boolean, got %T", path, val)
		}
	case KindDate:
		switch v := val.(type) {
		case time.Time:
		case string:
			if _, err := time.Parse(time.RFC3339Nano, v); err != nil {
				return fmt.Errorf("field %q: invalid ISO-8601 date: %w", path, err)
			}
		default:
			return fmt.Errorf("field %q: expected date, got %T", path, val)
		}
	case KindNested:
		m, ok := val.(map[string]any)
		if !ok {
			return fmt.Errorf("field %q: expected object, got %T", path, val)
		}
		if err := Validate(f.Shape, m); err != nil {
			return fmt.Errorf("field %q: %w", path, err)
		}
	case KindArray:
		arr, ok := val.([]any)
		if !ok {
			return fmt.Errorf("field %q: expected array, got %T", path, val)
		}
		for i, elem := range arr {
			if err := validateField(fmt.Sprintf("%s[%d]", path, i), *f.Of, elem, true); err != nil {
				return err
			}
		}
	case KindAny:
		// accepts anything
	default:
		return fmt.Errorf("field %q: unknown descriptor kind %q", path, f.Kind)
	}
	return nil
}

// TopLevelField looks up a non-dotted field name against s, reporting
// whether it is declared. Used by the query builder's field-path validation
// (spec.md §4.E): a path without a dot must name a real top-level field.
func TopLevelField(s Shape, name string) (Field, bool) {
	if s.IsAny() {
		return Field{Kind: KindAny}, true
	}
	if name == "_id" {
		return Field{Kind: KindString}, true
	}
	if name == "_version" {
		return Field{Kind: KindNumber}, true
	}
	f, ok := s[name]
	return f, ok
}
