package shape

import "testing"

func TestValidateRejectsMissingRequiredField(t *testing.T) {
	s := Shape{"name": String()}
	err := Validate(s, map[string]any{})
	if err == nil {
		t.Fatal("expected error for missing required field")
	}
}

func TestValidateAcceptsOptionalFieldWhenAbsent(t *testing.T) {
	s := Shape{"nickname": Optional(String())}
	if err := Validate(s, map[string]any{}); err != nil {
		t.Errorf("expected optional absent field to validate, got %v", err)
	}
}

func TestValidateRejectsWrongScalarType(t *testing.T) {
	s := Shape{"age": Number()}
	err := Validate(s, map[string]any{"age": "not a number"})
	if err == nil {
		t.Fatal("expected type mismatch error")
	}
}

func TestValidateRecursesIntoNestedShape(t *testing.T) {
	s := Shape{"address": Nested(Shape{"city": String()})}
	err := Validate(s, map[string]any{"address": map[string]any{}})
	if err == nil {
		t.Fatal("expected missing nested field to error")
	}

	if err := Validate(s, map[string]any{"address": map[string]any{"city": "Seattle"}}); err != nil {
		t.Errorf("expected valid nested doc to pass, got %v", err)
	}
}

func TestValidateChecksEveryArrayElement(t *testing.T) {
	s := Shape{"tags": Array(String())}
	err := Validate(s, map[string]any{"tags": []any{"a", 5, "c"}})
	if err == nil {
		t.Fatal("expected array element type mismatch to error")
	}
}

func TestValidateSkipsDeclaredFields(t *testing.T) {
	s := Shape{"_id": String()}
	if err := Validate(s, map[string]any{}, "_id"); err != nil {
		t.Errorf("expected skipped field to bypass validation, got %v", err)
	}
}

func TestAnyShapeSkipsValidationEntirely(t *testing.T) {
	if err := Validate(Any, map[string]any{"anything": []any{1, "two", nil}}); err != nil {
		t.Errorf("expected AnyShape to accept arbitrary docs, got %v", err)
	}
}

func TestTopLevelFieldExposesImplicitIDAndVersion(t *testing.T) {
	s := Shape{"name": String()}
	if _, ok := TopLevelField(s, "_id"); !ok {
		t.Error("expected _id to be implicitly declared")
	}
	if _, ok := TopLevelField(s, "_version"); !ok {
		t.Error("expected _version to be implicitly declared")
	}
	if _, ok := TopLevelField(s, "nonexistent"); ok {
		t.Error("expected undeclared field to report absent")
	}
}
