package querybuilder

import "github.com/sqlidoc/sqlidoc/internal/queryplan"

// FieldBuilder is returned by QueryBuilder.Where and accumulates exactly one
// comparison before returning control to the parent QueryBuilder (spec.md
// §4.E).
type FieldBuilder struct {
	qb   *QueryBuilder
	path string
}

func (fb *FieldBuilder) leaf(op queryplan.Op, value any) *QueryBuilder {
	fb.qb.plan.Filters.Leaves = append(fb.qb.plan.Filters.Leaves, queryplan.FilterLeaf{
		Path: fb.path, Op: op, Value: value,
	})
	return fb.qb
}

func (fb *FieldBuilder) Eq(v any) *QueryBuilder         { return fb.leaf(queryplan.OpEq, v) }
func (fb *FieldBuilder) Ne(v any) *QueryBuilder         { return fb.leaf(queryplan.OpNe, v) }
func (fb *FieldBuilder) Gt(v any) *QueryBuilder         { return fb.leaf(queryplan.OpGt, v) }
func (fb *FieldBuilder) Gte(v any) *QueryBuilder        { return fb.leaf(queryplan.OpGte, v) }
func (fb *FieldBuilder) Lt(v any) *QueryBuilder         { return fb.leaf(queryplan.OpLt, v) }
func (fb *FieldBuilder) Lte(v any) *QueryBuilder        { return fb.leaf(queryplan.OpLte, v) }
func (fb *FieldBuilder) Contains(v any) *QueryBuilder   { return fb.leaf(queryplan.OpContains, v) }
func (fb *FieldBuilder) StartsWith(v any) *QueryBuilder { return fb.leaf(queryplan.OpStartsWith, v) }
func (fb *FieldBuilder) EndsWith(v any) *QueryBuilder   { return fb.leaf(queryplan.OpEndsWith, v) }
func (fb *FieldBuilder) Like(v any) *QueryBuilder       { return fb.leaf(queryplan.OpLike, v) }
func (fb *FieldBuilder) IsNull() *QueryBuilder          { return fb.leaf(queryplan.OpIsNull, nil) }
func (fb *FieldBuilder) NotNull() *QueryBuilder         { return fb.leaf(queryplan.OpNotNull, nil) }

func (fb *FieldBuilder) Between(lo, hi any) *QueryBuilder {
	return fb.leaf(queryplan.OpBetween, []any{lo, hi})
}

func (fb *FieldBuilder) In(values ...any) *QueryBuilder {
	return fb.leaf(queryplan.OpIn, values)
}

func (fb *FieldBuilder) Nin(values ...any) *QueryBuilder {
	return fb.leaf(queryplan.OpNin, values)
}
