package schema

import (
	"strings"
	"testing"

	"github.com/sqlidoc/sqlidoc/internal/catalog"
)

func TestGenerateIncludesMandatoryColumns(t *testing.T) {
	cat, err := catalog.New(nil)
	if err != nil {
		t.Fatalf("catalog.New() error = %v", err)
	}
	stmts, err := Generate(CollectionSchema{Name: "users"}, cat)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	for _, want := range []string{"_id TEXT PRIMARY KEY", "doc TEXT NOT NULL", "_version INTEGER NOT NULL DEFAULT 1"} {
		if !strings.Contains(stmts.CreateTable, want) {
			t.Errorf("CreateTable missing %q:\n%s", want, stmts.CreateTable)
		}
	}
	if !strings.HasPrefix(stmts.CreateTable, "CREATE TABLE IF NOT EXISTS users") {
		t.Errorf("CreateTable should be idempotent and named: %s", stmts.CreateTable)
	}
}

func TestGenerateProducesIndexForNonUniqueConstrainedField(t *testing.T) {
	cat, err := catalog.New(map[string]catalog.FieldSpec{
		"status": {SQLType: catalog.TypeText},
	})
	if err != nil {
		t.Fatalf("catalog.New() error = %v", err)
	}
	stmts, err := Generate(CollectionSchema{Name: "tasks", ConstrainedFields: map[string]catalog.FieldSpec{
		"status": {SQLType: catalog.TypeText},
	}}, cat)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(stmts.Additional) != 1 {
		t.Fatalf("expected 1 additional statement, got %d: %v", len(stmts.Additional), stmts.Additional)
	}
	if !strings.Contains(stmts.Additional[0], "CREATE INDEX") {
		t.Errorf("expected a CREATE INDEX statement, got %q", stmts.Additional[0])
	}
}

func TestGenerateRejectsInvalidIdentifier(t *testing.T) {
	cat, _ := catalog.New(nil)
	_, err := Generate(CollectionSchema{Name: "users; DROP TABLE users"}, cat)
	if err == nil {
		t.Fatal("expected error for invalid table name")
	}
}
