// Package querybuilder implements the fluent, type-aware query accumulator
// (spec.md §4.E): QueryBuilder accumulates a queryplan.QueryPlan, and
// FieldBuilder supplies per-path comparison operators. Terminal operations
// hand the finished plan to an Executor, which the collection package
// implements — this package never talks to SQL or a driver directly.
package querybuilder

import (
	"context"
	"fmt"
	"strings"

	"github.com/sqlidoc/sqlidoc/internal/queryplan"
	"github.com/sqlidoc/sqlidoc/internal/shape"
)

// Executor is implemented by the collection runtime. It takes a finished
// QueryPlan and runs it; QueryBuilder's terminals are thin wrappers over
// these methods.
type Executor interface {
	ToArray(ctx context.Context, plan queryplan.QueryPlan) ([]map[string]any, error)
	First(ctx context.Context, plan queryplan.QueryPlan) (map[string]any, error)
	Count(ctx context.Context, plan queryplan.QueryPlan) (int, error)
	Iterate(ctx context.Context, plan queryplan.QueryPlan, fn func(map[string]any) error) error

	ToArraySync(plan queryplan.QueryPlan) ([]map[string]any, error)
	FirstSync(plan queryplan.QueryPlan) (map[string]any, error)
	CountSync(plan queryplan.QueryPlan) (int, error)
	IterateSync(plan queryplan.QueryPlan, fn func(map[string]any) error) error
}

// QueryBuilder accumulates a QueryPlan through a fluent chain (spec.md
// §4.E). It is not safe for concurrent use by multiple goroutines; each
// query() call returns a fresh one.
type QueryBuilder struct {
	shape    shape.Shape
	exec     Executor
	plan     queryplan.QueryPlan
	pendErr  error // first validation error encountered; surfaces at a terminal
}

// New returns a fresh QueryBuilder validating field paths against s and
// executing terminals via exec.
func New(s shape.Shape, exec Executor) *QueryBuilder {
	return &QueryBuilder{shape: s, exec: exec}
}

func (qb *QueryBuilder) fail(err error) *QueryBuilder {
	if qb.pendErr == nil {
		qb.pendErr = err
	}
	return qb
}

// validatePath implements spec.md §4.E's field-path validation: a path
// without a dot must name a declared top-level shape field (or `_id`/
// `_version`); a dotted path is accepted as a JSON extraction path and only
// checked structurally (non-empty segments).
func validatePath(s shape.Shape, path string) error {
	if s.IsAny() {
		return nil
	}
	if !strings.Contains(path, ".") {
		if _, ok := shape.TopLevelField(s, path); !ok {
			return fmt.Errorf("querybuilder: unknown field %q", path)
		}
		return nil
	}
	for _, seg := range strings.Split(path, ".") {
		if seg == "" {
			return fmt.Errorf("querybuilder: field path %q has an empty segment", path)
		}
	}
	return nil
}

// Where begins a filter on path, returning a FieldBuilder the caller must
// complete with exactly one comparison method before chaining further
// QueryBuilder calls. FieldBuilder has no terminal methods; a FieldBuilder
// that is never completed adds no filter and reports no error.
func (qb *QueryBuilder) Where(path string) *FieldBuilder {
	if err := validatePath(qb.shape, path); err != nil {
		qb.fail(err)
	}
	return &FieldBuilder{qb: qb, path: path}
}

// Or runs build against a scratch QueryBuilder sharing this one's shape and
// adds the scratch builder's leaves to the plan as a single OrGroup: those
// leaves are joined with OR, and the group is ANDed with the rest of the
// filter.
func (qb *QueryBuilder) Or(build func(sub *QueryBuilder)) *QueryBuilder {
	sub := New(qb.shape, qb.exec)
	build(sub)
	if sub.pendErr != nil {
		return qb.fail(sub.pendErr)
	}
	qb.plan.Filters.OrGroups = append(qb.plan.Filters.OrGroups, queryplan.OrGroup{Leaves: sub.plan.Filters.Leaves})
	return qb
}

func (qb *QueryBuilder) OrderBy(path string, dir queryplan.Direction) *QueryBuilder {
	if err := validatePath(qb.shape, path); err != nil {
		return qb.fail(err)
	}
	qb.plan.Ordering = append(qb.plan.Ordering, queryplan.OrderTerm{Path: path, Direction: dir})
	return qb
}

func (qb *QueryBuilder) OrderByMultiple(terms ...queryplan.OrderTerm) *QueryBuilder {
	for _, t := range terms {
		qb.OrderBy(t.Path, t.Direction)
	}
	return qb
}

func (qb *QueryBuilder) Limit(n int) *QueryBuilder {
	qb.plan.Limit = &n
	return qb
}

func (qb *QueryBuilder) Offset(n int) *QueryBuilder {
	qb.plan.Offset = &n
	return qb
}

// Page desugars to limit(size).offset((n-1)*size), 1-indexed (spec.md
// §4.E).
func (qb *QueryBuilder) Page(n, size int) *QueryBuilder {
	if n < 1 {
		return qb.fail(fmt.Errorf("querybuilder: page number must be >= 1, got %d", n))
	}
	return qb.Limit(size).Offset((n - 1) * size)
}

func (qb *QueryBuilder) Distinct() *QueryBuilder {
	qb.plan.Distinct = true
	return qb
}

// Select sets the projection. An unknown top-level path fails validation
// the same way Where does.
func (qb *QueryBuilder) Select(paths ...string) *QueryBuilder {
	for _, p := range paths {
		if err := validatePath(qb.shape, p); err != nil {
			return qb.fail(err)
		}
	}
	qb.plan.Projection = paths
	return qb
}

func (qb *QueryBuilder) finish() (queryplan.QueryPlan, error) {
	if qb.pendErr != nil {
		return queryplan.QueryPlan{}, qb.pendErr
	}
	return qb.plan, nil
}

// ToArray materializes every matching document.
func (qb *QueryBuilder) ToArray(ctx context.Context) ([]map[string]any, error) {
	plan, err := qb.finish()
	if err != nil {
		return nil, err
	}
	return qb.exec.ToArray(ctx, plan)
}

// First returns the first matching document, or nil if none match.
func (qb *QueryBuilder) First(ctx context.Context) (map[string]any, error) {
	plan, err := qb.finish()
	if err != nil {
		return nil, err
	}
	one := 1
	plan.Limit = &one
	return qb.exec.First(ctx, plan)
}

func (qb *QueryBuilder) Count(ctx context.Context) (int, error) {
	plan, err := qb.finish()
	if err != nil {
		return 0, err
	}
	return qb.exec.Count(ctx, plan)
}

// Exists reports whether any document matches, without materializing rows.
func (qb *QueryBuilder) Exists(ctx context.Context) (bool, error) {
	n, err := qb.Count(ctx)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Iterate streams matching documents to fn without materializing the full
// result set, per spec.md §4.G's streaming requirement.
func (qb *QueryBuilder) Iterate(ctx context.Context, fn func(map[string]any) error) error {
	plan, err := qb.finish()
	if err != nil {
		return err
	}
	return qb.exec.Iterate(ctx, plan, fn)
}

// ToArraySync, FirstSync, CountSync, IterateSync are the non-suspending
// siblings, usable only when the bound driver supports synchronous
// execution (spec.md §4.F "Sync/async duality").
func (qb *QueryBuilder) ToArraySync() ([]map[string]any, error) {
	plan, err := qb.finish()
	if err != nil {
		return nil, err
	}
	return qb.exec.ToArraySync(plan)
}

func (qb *QueryBuilder) FirstSync() (map[string]any, error) {
	plan, err := qb.finish()
	if err != nil {
		return nil, err
	}
	one := 1
	plan.Limit = &one
	return qb.exec.FirstSync(plan)
}

func (qb *QueryBuilder) CountSync() (int, error) {
	plan, err := qb.finish()
	if err != nil {
		return 0, err
	}
	return qb.exec.CountSync(plan)
}

// ExistsSync is Exists' sync sibling.
func (qb *QueryBuilder) ExistsSync() (bool, error) {
	n, err := qb.CountSync()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (qb *QueryBuilder) IterateSync(fn func(map[string]any) error) error {
	plan, err := qb.finish()
	if err != nil {
		return err
	}
	return qb.exec.IterateSync(plan, fn)
}
