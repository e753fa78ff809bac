package sqltranslate

import (
	"strings"
	"testing"

	"github.com/sqlidoc/sqlidoc/internal/catalog"
	"github.com/sqlidoc/sqlidoc/internal/queryplan"
)

func emptyCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New(nil)
	if err != nil {
		t.Fatalf("catalog.New() error = %v", err)
	}
	return c
}

func TestInsertIncludesConstrainedColumns(t *testing.T) {
	cat, err := catalog.New(map[string]catalog.FieldSpec{"email": {SQLType: catalog.TypeText, Unique: true}})
	if err != nil {
		t.Fatalf("catalog.New() error = %v", err)
	}
	built, err := Insert("users", "u1", `{"email":"a@x"}`, map[string]any{"email": "a@x"}, cat)
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if !strings.Contains(built.SQL, "email") {
		t.Errorf("Insert SQL missing constrained column: %s", built.SQL)
	}
	if built.Params[len(built.Params)-1] != "a@x" {
		t.Errorf("Insert params missing constrained value: %v", built.Params)
	}
}

func TestUpdateEmbedsOptimisticVersionGuard(t *testing.T) {
	cat := emptyCatalog(t)
	expected := 3
	built, err := Update("users", "u1", `{"n":1}`, 4, nil, cat, &expected)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if !strings.Contains(built.SQL, "_version = ?") || !strings.Contains(built.SQL, "WHERE _id = ? AND _version = ?") {
		t.Errorf("Update SQL missing OCC guard: %s", built.SQL)
	}
}

func TestUpsertWithoutConstrainedFieldsUsesInsertOrReplace(t *testing.T) {
	cat := emptyCatalog(t)
	built, err := Upsert("users", "u1", `{"n":1}`, 1, nil, cat)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if !strings.Contains(built.SQL, "INSERT OR REPLACE") {
		t.Errorf("expected INSERT OR REPLACE, got %s", built.SQL)
	}
}

func TestUpsertWithConstrainedFieldsUsesOnConflict(t *testing.T) {
	cat, err := catalog.New(map[string]catalog.FieldSpec{"email": {SQLType: catalog.TypeText}})
	if err != nil {
		t.Fatalf("catalog.New() error = %v", err)
	}
	built, err := Upsert("users", "u1", `{"email":"a@x"}`, 1, map[string]any{"email": "a@x"}, cat)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if !strings.Contains(built.SQL, "ON CONFLICT(_id) DO UPDATE") {
		t.Errorf("expected ON CONFLICT upsert, got %s", built.SQL)
	}
	if !strings.Contains(built.SQL, "email = excluded.email") {
		t.Errorf("expected constrained column refresh on conflict, got %s", built.SQL)
	}
}

func TestSelectPrefersNativeColumnOverJSONExtract(t *testing.T) {
	cat, err := catalog.New(map[string]catalog.FieldSpec{"status": {SQLType: catalog.TypeText}})
	if err != nil {
		t.Fatalf("catalog.New() error = %v", err)
	}
	plan := queryplan.QueryPlan{
		Filters: queryplan.FilterTree{Leaves: []queryplan.FilterLeaf{{Path: "status", Op: queryplan.OpEq, Value: "open"}}},
	}
	built, err := Select("tasks", plan, cat)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if !strings.Contains(built.SQL, "WHERE status = ?") {
		t.Errorf("expected native column in WHERE, got %s", built.SQL)
	}
}

func TestSelectFallsBackToJSONExtractForUnconstrainedPath(t *testing.T) {
	cat := emptyCatalog(t)
	plan := queryplan.QueryPlan{
		Filters: queryplan.FilterTree{Leaves: []queryplan.FilterLeaf{{Path: "profile.age", Op: queryplan.OpGt, Value: 21}}},
	}
	built, err := Select("users", plan, cat)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if !strings.Contains(built.SQL, "json_extract(doc, '$.profile.age') > ?") {
		t.Errorf("expected json_extract fallback, got %s", built.SQL)
	}
}

func TestSelectOrGroupIsWrappedInParens(t *testing.T) {
	cat := emptyCatalog(t)
	plan := queryplan.QueryPlan{
		Filters: queryplan.FilterTree{
			Leaves: []queryplan.FilterLeaf{{Path: "active", Op: queryplan.OpEq, Value: true}},
			OrGroups: []queryplan.OrGroup{{Leaves: []queryplan.FilterLeaf{
				{Path: "role", Op: queryplan.OpEq, Value: "admin"},
				{Path: "role", Op: queryplan.OpEq, Value: "owner"},
			}}},
		},
	}
	built, err := Select("users", plan, cat)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if !strings.Contains(built.SQL, "AND (") {
		t.Errorf("expected OR group wrapped in parens joined by AND, got %s", built.SQL)
	}
}

func TestSelectEmptyProjectionSelectsFullDocument(t *testing.T) {
	cat := emptyCatalog(t)
	built, err := Select("users", queryplan.QueryPlan{}, cat)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if !strings.HasPrefix(built.SQL, "SELECT _id, doc, _version FROM users") {
		t.Errorf("expected full-document projection, got %s", built.SQL)
	}
}

func TestSelectLimitOffsetAreParameterized(t *testing.T) {
	cat := emptyCatalog(t)
	limit, offset := 10, 20
	built, err := Select("users", queryplan.QueryPlan{Limit: &limit, Offset: &offset}, cat)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if !strings.Contains(built.SQL, "LIMIT ?") || !strings.Contains(built.SQL, "OFFSET ?") {
		t.Errorf("expected parameterized LIMIT/OFFSET, got %s", built.SQL)
	}
	if built.Params[len(built.Params)-2] != 10 || built.Params[len(built.Params)-1] != 20 {
		t.Errorf("unexpected limit/offset params: %v", built.Params)
	}
}

func TestInsertRejectsUnsafeTableName(t *testing.T) {
	cat := emptyCatalog(t)
	_, err := Insert("users; DROP TABLE users", "u1", "{}", nil, cat)
	if err == nil {
		t.Fatal("expected error for unsafe table name")
	}
}
