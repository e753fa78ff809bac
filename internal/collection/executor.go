package collection

import (
	"context"
	"fmt"
	"strings"

	"github.com/sqlidoc/sqlidoc/internal/codec"
	"github.com/sqlidoc/sqlidoc/internal/dberrors"
	"github.com/sqlidoc/sqlidoc/internal/driver"
	"github.com/sqlidoc/sqlidoc/internal/queryplan"
	"github.com/sqlidoc/sqlidoc/internal/sqltranslate"
)

// This file implements querybuilder.Executor: QueryBuilder's terminals
// (toArray/first/count/iterate, and their sync siblings) all bottom out
// here, against this collection's table.

func (c *Collection) ToArray(ctx context.Context, plan queryplan.QueryPlan) ([]map[string]any, error) {
	built, err := sqltranslate.Select(c.name, plan, c.cat)
	if err != nil {
		return nil, dberrors.Wrap("query", "", err)
	}
	rows, err := c.drv.Query(ctx, built.SQL, built.Params...)
	if err != nil {
		return nil, dberrors.Wrap("query", built.SQL, err)
	}
	defer rows.Close()
	return c.scanAll(rows, plan.Projection)
}

func (c *Collection) First(ctx context.Context, plan queryplan.QueryPlan) (map[string]any, error) {
	docs, err := c.ToArray(ctx, plan)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0], nil
}

func (c *Collection) Count(ctx context.Context, plan queryplan.QueryPlan) (int, error) {
	countPlan := plan
	countPlan.Limit = nil
	countPlan.Offset = nil
	countPlan.Projection = []string{"_id"}
	built, err := sqltranslate.Select(c.name, countPlan, c.cat)
	if err != nil {
		return 0, dberrors.Wrap("count", "", err)
	}
	// Wrap the translated SELECT as a subquery so COUNT(*) applies to the
	// full filtered row set regardless of what the projection selected.
	countSQL := fmt.Sprintf("SELECT COUNT(*) FROM (%s)", built.SQL)
	rows, err := c.drv.Query(ctx, countSQL, built.Params...)
	if err != nil {
		return 0, dberrors.Wrap("count", countSQL, err)
	}
	defer rows.Close()
	if !rows.Next() {
		return 0, nil
	}
	var n int
	if err := rows.Scan(&n); err != nil {
		return 0, dberrors.Wrap("count", countSQL, err)
	}
	return n, nil
}

// Iterate streams matching documents via the driver's row-at-a-time
// iterator rather than ToArray's full materialization (spec.md §4.G
// streaming requirement).
func (c *Collection) Iterate(ctx context.Context, plan queryplan.QueryPlan, fn func(map[string]any) error) error {
	built, err := sqltranslate.Select(c.name, plan, c.cat)
	if err != nil {
		return dberrors.Wrap("query", "", err)
	}
	rows, err := c.drv.QueryIterator(ctx, built.SQL, built.Params...)
	if err != nil {
		return dberrors.Wrap("query", built.SQL, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return dberrors.Wrap("query", built.SQL, err)
	}
	for rows.Next() {
		doc, err := c.scanRow(rows, cols, plan.Projection)
		if err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (c *Collection) ToArraySync(plan queryplan.QueryPlan) ([]map[string]any, error) {
	if !c.drv.SupportsSync() {
		return nil, dberrors.SyncNotSupported("toArraySync")
	}
	built, err := sqltranslate.Select(c.name, plan, c.cat)
	if err != nil {
		return nil, dberrors.Wrap("query", "", err)
	}
	rows, err := c.drv.QuerySync(built.SQL, built.Params...)
	if err != nil {
		return nil, dberrors.Wrap("query", built.SQL, err)
	}
	defer rows.Close()
	return c.scanAll(rows, plan.Projection)
}

func (c *Collection) FirstSync(plan queryplan.QueryPlan) (map[string]any, error) {
	docs, err := c.ToArraySync(plan)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0], nil
}

func (c *Collection) CountSync(plan queryplan.QueryPlan) (int, error) {
	if !c.drv.SupportsSync() {
		return 0, dberrors.SyncNotSupported("countSync")
	}
	return c.Count(context.Background(), plan)
}

func (c *Collection) IterateSync(plan queryplan.QueryPlan, fn func(map[string]any) error) error {
	if !c.drv.SupportsSync() {
		return dberrors.SyncNotSupported("iterateSync")
	}
	built, err := sqltranslate.Select(c.name, plan, c.cat)
	if err != nil {
		return dberrors.Wrap("query", "", err)
	}
	rows, err := c.drv.QuerySync(built.SQL, built.Params...)
	if err != nil {
		return dberrors.Wrap("query", built.SQL, err)
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return dberrors.Wrap("query", built.SQL, err)
	}
	for rows.Next() {
		doc, err := c.scanRow(rows, cols, plan.Projection)
		if err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (c *Collection) scanAll(rows driver.RowIterator, projection []string) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	for rows.Next() {
		doc, err := c.scanRow(rows, cols, projection)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// scanRow reconstructs a document from one result row. An empty projection
// means the SELECT carries the full `doc` JSON column, decoded and
// annotated with `_id`/`_version`; a non-empty projection instead carries
// one column per requested path (aliased to the dotted path), which this
// rebuilds into nested structure (spec.md §5 scenario 4).
func (c *Collection) scanRow(rows driver.RowIterator, cols []string, projection []string) (map[string]any, error) {
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, dberrors.Wrap("scan", "", err)
	}

	if len(projection) == 0 {
		return c.scanFullDoc(cols, vals)
	}
	return c.scanProjection(cols, vals)
}

func (c *Collection) scanFullDoc(cols []string, vals []any) (map[string]any, error) {
	byName := make(map[string]any, len(cols))
	for i, name := range cols {
		byName[name] = vals[i]
	}
	docText, _ := byName["doc"].(string)
	doc, err := codec.Decode(c.cache, docText)
	if err != nil {
		return nil, dberrors.Wrap("scan", "", err)
	}
	if id, ok := byName["_id"].(string); ok {
		doc["_id"] = id
	}
	doc["_version"] = coerceInt(byName["_version"])
	return doc, nil
}

func (c *Collection) scanProjection(cols []string, vals []any) (map[string]any, error) {
	out := map[string]any{}
	for i, name := range cols {
		switch name {
		case "_id":
			if s, ok := vals[i].(string); ok {
				out["_id"] = s
			}
		case "_version":
			out["_version"] = coerceInt(vals[i])
		default:
			setDottedPath(out, name, vals[i])
		}
	}
	return out, nil
}

func coerceInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}

// setDottedPath writes value at path within doc, creating intermediate
// nested maps as needed.
func setDottedPath(doc map[string]any, path string, value any) {
	segs := strings.Split(path, ".")
	cur := doc
	for i, seg := range segs {
		if i == len(segs)-1 {
			cur[seg] = value
			return
		}
		next, ok := cur[seg].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[seg] = next
		}
		cur = next
	}
}
