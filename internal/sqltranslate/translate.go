// Package sqltranslate implements the SQL translator (spec.md §4.D): it
// turns a table name, a queryplan.QueryPlan, and a catalog into
// parameterized SQL. Every user-supplied string flows through a `?`
// placeholder; table/column identifiers originate only from the schema and
// are inlined directly, never from filter values.
package sqltranslate

import (
	"fmt"
	"strings"

	"github.com/sqlidoc/sqlidoc/internal/catalog"
	"github.com/sqlidoc/sqlidoc/internal/queryplan"
	"github.com/sqlidoc/sqlidoc/internal/schema"
)

// Built is a parameterized statement ready to hand to the driver.
type Built struct {
	SQL    string
	Params []any
}

// Insert renders an INSERT for a freshly validated document. Version is
// always 1 (spec.md §4.D).
func Insert(table, id, docJSON string, constrained map[string]any, cat *catalog.Catalog) (Built, error) {
	if err := schema.ValidIdentifier(table); err != nil {
		return Built{}, err
	}
	cols := []string{"_id", "doc", "_version"}
	vals := []any{id, docJSON, 1}

	for _, path := range cat.Paths() {
		col, _ := cat.Column(path)
		cols = append(cols, col)
		vals = append(vals, constrained[path])
	}

	placeholders := strings.Repeat("?, ", len(cols))
	placeholders = strings.TrimSuffix(placeholders, ", ")

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), placeholders)
	return Built{SQL: sql, Params: vals}, nil
}

// Update renders an UPDATE that bumps `_version` to newVersion and rewrites
// `doc` plus every constrained column, guarded by `_id = ?`. If
// expectedVersion is non-nil, the WHERE clause also requires
// `_version = ?`, implementing the optimistic-concurrency guard from
// spec.md §4.F/§5 in a single statement.
func Update(table, id, docJSON string, newVersion int, constrained map[string]any, cat *catalog.Catalog, expectedVersion *int) (Built, error) {
	if err := schema.ValidIdentifier(table); err != nil {
		return Built{}, err
	}
	sets := []string{"doc = ?", "_version = ?"}
	params := []any{docJSON, newVersion}

	for _, path := range cat.Paths() {
		col, _ := cat.Column(path)
		sets = append(sets, fmt.Sprintf("%s = ?", col))
		params = append(params, constrained[path])
	}

	where := "_id = ?"
	params = append(params, id)
	if expectedVersion != nil {
		where += " AND _version = ?"
		params = append(params, *expectedVersion)
	}

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s", table, strings.Join(sets, ", "), where)
	return Built{SQL: sql, Params: params}, nil
}

// Delete renders a DELETE by `_id`.
func Delete(table, id string) (Built, error) {
	if err := schema.ValidIdentifier(table); err != nil {
		return Built{}, err
	}
	return Built{SQL: fmt.Sprintf("DELETE FROM %s WHERE _id = ?", table), Params: []any{id}}, nil
}

// Upsert renders either `INSERT OR REPLACE` (no constrained fields, per
// spec.md §4.D) or `INSERT ... ON CONFLICT(_id) DO UPDATE` (constrained
// fields present, so those columns must also refresh on conflict).
func Upsert(table, id, docJSON string, version int, constrained map[string]any, cat *catalog.Catalog) (Built, error) {
	if err := schema.ValidIdentifier(table); err != nil {
		return Built{}, err
	}

	cols := []string{"_id", "doc", "_version"}
	vals := []any{id, docJSON, version}
	for _, path := range cat.Paths() {
		col, _ := cat.Column(path)
		cols = append(cols, col)
		vals = append(vals, constrained[path])
	}
	placeholders := strings.Repeat("?, ", len(cols))
	placeholders = strings.TrimSuffix(placeholders, ", ")

	if len(cat.Paths()) == 0 {
		sql := fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), placeholders)
		return Built{SQL: sql, Params: vals}, nil
	}

	updateSets := []string{"doc = excluded.doc", "_version = excluded._version"}
	for _, path := range cat.Paths() {
		col, _ := cat.Column(path)
		updateSets = append(updateSets, fmt.Sprintf("%s = excluded.%s", col, col))
	}

	sql := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(_id) DO UPDATE SET %s",
		table, strings.Join(cols, ", "), placeholders, strings.Join(updateSets, ", "),
	)
	return Built{SQL: sql, Params: vals}, nil
}

// Select renders a SELECT for plan against table, using cat to prefer
// native columns over json_extract wherever a filtered/ordered/projected
// path is constrained (spec.md §4.D).
func Select(table string, plan queryplan.QueryPlan, cat *catalog.Catalog) (Built, error) {
	if err := schema.ValidIdentifier(table); err != nil {
		return Built{}, err
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	if plan.Distinct {
		b.WriteString("DISTINCT ")
	}
	b.WriteString(projectionClause(plan.Projection, cat))
	b.WriteString(" FROM ")
	b.WriteString(table)

	var params []any
	where, whereParams, err := whereClause(plan.Filters, cat)
	if err != nil {
		return Built{}, err
	}
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
		params = append(params, whereParams...)
	}

	if len(plan.Ordering) > 0 {
		b.WriteString(" ORDER BY ")
		terms := make([]string, 0, len(plan.Ordering))
		for _, ord := range plan.Ordering {
			terms = append(terms, fmt.Sprintf("%s %s", columnOrExtract(ord.Path, cat), ord.Direction))
		}
		b.WriteString(strings.Join(terms, ", "))
	}

	if plan.Limit != nil {
		b.WriteString(" LIMIT ?")
		params = append(params, *plan.Limit)
	}
	if plan.Offset != nil {
		b.WriteString(" OFFSET ?")
		params = append(params, *plan.Offset)
	}

	return Built{SQL: b.String(), Params: params}, nil
}

// projectionClause renders the SELECT list. An empty projection selects the
// full document plus `_id`/`_version` so the caller can codec-reconstruct
// the document (spec.md §4.D). A caller-specified projection carries only
// `_id` for identity; `_version` isn't added unless the caller asked for it.
func projectionClause(paths []string, cat *catalog.Catalog) string {
	if len(paths) == 0 {
		return "_id, doc, _version"
	}
	parts := make([]string, 0, len(paths)+1)
	parts = append(parts, "_id")
	for _, p := range paths {
		if p == "_id" {
			continue
		}
		if p == "_version" {
			parts = append(parts, "_version")
			continue
		}
		if col, ok := cat.Column(p); ok {
			parts = append(parts, fmt.Sprintf("%s AS %s", col, quoteAlias(p)))
			continue
		}
		parts = append(parts, fmt.Sprintf("json_extract(doc, '$.%s') AS %s", p, quoteAlias(p)))
	}
	return strings.Join(parts, ", ")
}

// quoteAlias renders a dotted path as a double-quoted SQL alias so the
// result set carries the original path verbatim (needed to reconstruct
// nested structure from a flat row, spec.md §8 scenario 4).
func quoteAlias(path string) string {
	return `"` + strings.ReplaceAll(path, `"`, `""`) + `"`
}

func columnOrExtract(path string, cat *catalog.Catalog) string {
	if col, ok := cat.Column(path); ok {
		return col
	}
	return fmt.Sprintf("json_extract(doc, '$.%s')", path)
}

func whereClause(tree queryplan.FilterTree, cat *catalog.Catalog) (string, []any, error) {
	var clauses []string
	var params []any

	for _, leaf := range tree.Leaves {
		clause, leafParams, err := leafClause(leaf, cat)
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, clause)
		params = append(params, leafParams...)
	}

	for _, group := range tree.OrGroups {
		var orClauses []string
		for _, leaf := range group.Leaves {
			clause, leafParams, err := leafClause(leaf, cat)
			if err != nil {
				return "", nil, err
			}
			orClauses = append(orClauses, clause)
			params = append(params, leafParams...)
		}
		if len(orClauses) > 0 {
			clauses = append(clauses, "("+strings.Join(orClauses, " OR ")+")")
		}
	}

	return strings.Join(clauses, " AND "), params, nil
}

func leafClause(leaf queryplan.FilterLeaf, cat *catalog.Catalog) (string, []any, error) {
	target := columnOrExtract(leaf.Path, cat)

	switch leaf.Op {
	case queryplan.OpEq:
		return target + " = ?", []any{leaf.Value}, nil
	case queryplan.OpNe:
		return target + " != ?", []any{leaf.Value}, nil
	case queryplan.OpGt:
		return target + " > ?", []any{leaf.Value}, nil
	case queryplan.OpGte:
		return target + " >= ?", []any{leaf.Value}, nil
	case queryplan.OpLt:
		return target + " < ?", []any{leaf.Value}, nil
	case queryplan.OpLte:
		return target + " <= ?", []any{leaf.Value}, nil
	case queryplan.OpIsNull:
		return target + " IS NULL", nil, nil
	case queryplan.OpNotNull:
		return target + " IS NOT NULL", nil, nil
	case queryplan.OpIn, queryplan.OpNin:
		values, ok := leaf.Value.([]any)
		if !ok || len(values) == 0 {
			return "", nil, fmt.Errorf("sqltranslate: %s requires a non-empty slice value for %q", leaf.Op, leaf.Path)
		}
		placeholders := strings.Repeat("?, ", len(values))
		placeholders = strings.TrimSuffix(placeholders, ", ")
		op := "IN"
		if leaf.Op == queryplan.OpNin {
			op = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", target, op, placeholders), values, nil
	case queryplan.OpBetween:
		bounds, ok := leaf.Value.([]any)
		if !ok || len(bounds) != 2 {
			return "", nil, fmt.Errorf("sqltranslate: between requires exactly 2 values for %q", leaf.Path)
		}
		return target + " BETWEEN ? AND ?", bounds, nil
	case queryplan.OpContains:
		return target + ` LIKE ? ESCAPE '\'`, []any{"%" + escapeLike(fmt.Sprint(leaf.Value)) + "%"}, nil
	case queryplan.OpStartsWith:
		return target + ` LIKE ? ESCAPE '\'`, []any{escapeLike(fmt.Sprint(leaf.Value)) + "%"}, nil
	case queryplan.OpEndsWith:
		return target + ` LIKE ? ESCAPE '\'`, []any{"%" + escapeLike(fmt.Sprint(leaf.Value))}, nil
	case queryplan.OpLike:
		return target + " LIKE ?", []any{leaf.Value}, nil
	default:
		return "", nil, fmt.Errorf("sqltranslate: unsupported operator %q for %q", leaf.Op, leaf.Path)
	}
}

// escapeLike escapes SQLite's default LIKE wildcards so a literal value
// used with contains/startsWith/endsWith doesn't accidentally act as a
// pattern (spec.md §4.D: "String operators map to LIKE with escaped
// wildcards").
func escapeLike(s string) string {
	r := strings.NewReplacer("\\", "\\\\", "%", "\\%", "_", "\\_")
	return r.Replace(s)
}
