// Package collection implements the collection runtime (spec.md §4.F): the
// typed CRUD surface over one table, wiring together the shape validator,
// catalog, schema generator, codec, SQL translator, driver, and plugin
// manager. It also implements querybuilder.Executor so Collection.Query()
// can hand out a QueryBuilder whose terminals run through this package.
package collection

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/sqlidoc/sqlidoc/internal/catalog"
	"github.com/sqlidoc/sqlidoc/internal/codec"
	"github.com/sqlidoc/sqlidoc/internal/dberrors"
	"github.com/sqlidoc/sqlidoc/internal/driver"
	"github.com/sqlidoc/sqlidoc/internal/plugin"
	"github.com/sqlidoc/sqlidoc/internal/queryplan"
	"github.com/sqlidoc/sqlidoc/internal/querybuilder"
	"github.com/sqlidoc/sqlidoc/internal/schema"
	"github.com/sqlidoc/sqlidoc/internal/shape"
	"github.com/sqlidoc/sqlidoc/internal/sqltranslate"
)

// Config is everything needed to bind a Collection to a table.
type Config struct {
	Name              string
	Shape             shape.Shape
	ConstrainedFields map[string]catalog.FieldSpec
	Driver            driver.Driver
	ParseCache        *codec.ParseCache // optional; a shared cache amortizes decode cost across collections
	Plugins           *plugin.Manager   // optional
}

// Collection is one typed table binding (spec.md §4.F).
type Collection struct {
	name    string
	shape   shape.Shape
	cat     *catalog.Catalog
	drv     driver.Driver
	cache   *codec.ParseCache
	plugins *plugin.Manager
}

// Open builds the catalog, generates and applies the table schema, and
// returns a ready-to-use Collection.
func Open(ctx context.Context, cfg Config) (*Collection, error) {
	cat, err := catalog.New(cfg.ConstrainedFields)
	if err != nil {
		return nil, fmt.Errorf("collection %q: %w", cfg.Name, err)
	}

	stmts, err := schema.Generate(schema.CollectionSchema{Name: cfg.Name, ConstrainedFields: cfg.ConstrainedFields}, cat)
	if err != nil {
		return nil, fmt.Errorf("collection %q: %w", cfg.Name, err)
	}

	if _, err := cfg.Driver.Exec(ctx, stmts.CreateTable); err != nil {
		return nil, fmt.Errorf("collection %q: create table: %w", cfg.Name, err)
	}
	for _, stmt := range stmts.Additional {
		if _, err := cfg.Driver.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("collection %q: %w", cfg.Name, err)
		}
	}

	return &Collection{
		name:    cfg.Name,
		shape:   cfg.Shape,
		cat:     cat,
		drv:     cfg.Driver,
		cache:   cfg.ParseCache,
		plugins: cfg.Plugins,
	}, nil
}

// Query returns a fresh QueryBuilder bound to this collection (spec.md
// §4.F `query()`).
func (c *Collection) Query() *querybuilder.QueryBuilder {
	return querybuilder.New(c.shape, c)
}

func (c *Collection) constrainedValues(doc map[string]any) map[string]any {
	out := make(map[string]any, len(c.cat.Paths()))
	for _, path := range c.cat.Paths() {
		out[path] = stringifyPath(doc, path)
	}
	return out
}

func (c *Collection) runHook(ctx context.Context, hookName string, doc, previous map[string]any) error {
	if c.plugins == nil {
		return nil
	}
	return c.plugins.Run(ctx, plugin.Context{Collection: c.name, Hook: hookName, Document: doc, Previous: previous})
}

// Insert validates doc against the shape (minus `_id`/`_version`), assigns
// a generated `_id` if absent, writes the row with `_version=1`, and
// returns the stored document (spec.md §4.F `insert`).
func (c *Collection) Insert(ctx context.Context, doc map[string]any) (map[string]any, error) {
	if err := shape.Validate(c.shape, doc, "_id", "_version"); err != nil {
		return nil, dberrors.Validation("insert", err)
	}

	out := cloneDoc(doc)
	id, _ := out["_id"].(string)
	if id == "" {
		id = uuid.New().String()
		out["_id"] = id
	} else {
		existing, err := c.findByIDRaw(ctx, id)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, dberrors.New(dberrors.KindValidation, "insert", fmt.Errorf("document with _id %q already exists", id))
		}
	}
	out["_version"] = 1

	if err := c.runHook(ctx, plugin.BeforeInsert, out, nil); err != nil {
		return nil, err
	}

	docJSON, err := codec.Encode(out)
	if err != nil {
		return nil, dberrors.Wrap("insert", "", err)
	}

	built, err := sqltranslate.Insert(c.name, id, docJSON, c.constrainedValues(out), c.cat)
	if err != nil {
		return nil, dberrors.Wrap("insert", "", err)
	}
	if _, err := c.drv.Exec(ctx, built.SQL, built.Params...); err != nil {
		return nil, dberrors.Wrap("insert", built.SQL, err)
	}

	if err := c.runHook(ctx, plugin.AfterInsert, out, nil); err != nil {
		return nil, err
	}
	return out, nil
}

// Put loads id, merges partial onto the existing document, validates the
// result, bumps `_version`, and writes it back (spec.md §4.F `put`).
func (c *Collection) Put(ctx context.Context, id string, partial map[string]any) (map[string]any, error) {
	existing, err := c.findByIDRaw(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, dberrors.NotFound("put", id)
	}

	merged := mergeDoc(existing, partial)
	if err := shape.Validate(c.shape, merged, "_id", "_version"); err != nil {
		return nil, dberrors.Validation("put", err)
	}

	newVersion := versionOf(existing) + 1
	merged["_id"] = id
	merged["_version"] = newVersion

	if err := c.runHook(ctx, plugin.BeforeUpdate, merged, existing); err != nil {
		return nil, err
	}

	docJSON, err := codec.Encode(merged)
	if err != nil {
		return nil, dberrors.Wrap("put", "", err)
	}
	built, err := sqltranslate.Update(c.name, id, docJSON, newVersion, c.constrainedValues(merged), c.cat, nil)
	if err != nil {
		return nil, dberrors.Wrap("put", "", err)
	}
	res, err := c.drv.Exec(ctx, built.SQL, built.Params...)
	if err != nil {
		return nil, dberrors.Wrap("put", built.SQL, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, dberrors.NotFound("put", id)
	}

	if err := c.runHook(ctx, plugin.AfterUpdate, merged, existing); err != nil {
		return nil, err
	}
	return merged, nil
}

// AtomicOps is the set of mutation operators atomicUpdate accepts (spec.md
// §4.F: "$set/$inc/$unset/$push/$pull").
type AtomicOps struct {
	Set   map[string]any
	Inc   map[string]float64
	Unset []string
	Push  map[string]any // field -> single element appended
	Pull  map[string]any // field -> element value removed
}

// AtomicUpdate applies ops to the document currently stored at id inside a
// single UPDATE that requires `_version = ?` with the version just read, so
// a concurrent writer's bump makes this one affect zero rows (spec.md §4.F,
// §5 "OCC correctness"). If expectedVersion is non-nil and differs from
// the stored version, it returns a version-mismatch error before writing.
func (c *Collection) AtomicUpdate(ctx context.Context, id string, ops AtomicOps, expectedVersion *int) (map[string]any, error) {
	existing, err := c.findByIDRaw(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, dberrors.NotFound("atomicUpdate", id)
	}
	currentVersion := versionOf(existing)
	if expectedVersion != nil && *expectedVersion != currentVersion {
		return nil, dberrors.VersionMismatch("atomicUpdate", id, *expectedVersion, currentVersion)
	}

	updated := applyAtomicOps(existing, ops)
	if err := shape.Validate(c.shape, updated, "_id", "_version"); err != nil {
		return nil, dberrors.Validation("atomicUpdate", err)
	}

	newVersion := currentVersion + 1
	updated["_id"] = id
	updated["_version"] = newVersion

	if err := c.runHook(ctx, plugin.BeforeUpdate, updated, existing); err != nil {
		return nil, err
	}

	docJSON, err := codec.Encode(updated)
	if err != nil {
		return nil, dberrors.Wrap("atomicUpdate", "", err)
	}
	guard := &currentVersion
	built, err := sqltranslate.Update(c.name, id, docJSON, newVersion, c.constrainedValues(updated), c.cat, guard)
	if err != nil {
		return nil, dberrors.Wrap("atomicUpdate", "", err)
	}
	res, err := c.drv.Exec(ctx, built.SQL, built.Params...)
	if err != nil {
		return nil, dberrors.Wrap("atomicUpdate", built.SQL, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		latest, err := c.findByIDRaw(ctx, id)
		if err != nil {
			return nil, err
		}
		if latest == nil {
			return nil, dberrors.NotFound("atomicUpdate", id)
		}
		return nil, dberrors.VersionMismatch("atomicUpdate", id, currentVersion, versionOf(latest))
	}

	if err := c.runHook(ctx, plugin.AfterUpdate, updated, existing); err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes the row at id, reporting whether one was affected
// (spec.md §4.F `delete`).
func (c *Collection) Delete(ctx context.Context, id string) (bool, error) {
	existing, err := c.findByIDRaw(ctx, id)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}

	if err := c.runHook(ctx, plugin.BeforeDelete, nil, existing); err != nil {
		return false, err
	}

	built, err := sqltranslate.Delete(c.name, id)
	if err != nil {
		return false, dberrors.Wrap("delete", "", err)
	}
	res, err := c.drv.Exec(ctx, built.SQL, built.Params...)
	if err != nil {
		return false, dberrors.Wrap("delete", built.SQL, err)
	}
	n, _ := res.RowsAffected()
	affected := n > 0

	if affected {
		if err := c.runHook(ctx, plugin.AfterDelete, nil, existing); err != nil {
			return false, err
		}
	}
	return affected, nil
}

// Upsert writes doc at id unconditionally: `_version=1` if no row existed,
// `_version++` otherwise (spec.md §4.F `upsert`).
func (c *Collection) Upsert(ctx context.Context, id string, doc map[string]any) (map[string]any, error) {
	merged := cloneDoc(doc)
	merged["_id"] = id
	if err := shape.Validate(c.shape, merged, "_id", "_version"); err != nil {
		return nil, dberrors.Validation("upsert", err)
	}

	existing, err := c.findByIDRaw(ctx, id)
	if err != nil {
		return nil, err
	}
	newVersion := 1
	if existing != nil {
		newVersion = versionOf(existing) + 1
	}
	merged["_version"] = newVersion

	if err := c.runHook(ctx, plugin.BeforeUpdate, merged, existing); err != nil {
		return nil, err
	}

	docJSON, err := codec.Encode(merged)
	if err != nil {
		return nil, dberrors.Wrap("upsert", "", err)
	}
	built, err := sqltranslate.Upsert(c.name, id, docJSON, newVersion, c.constrainedValues(merged), c.cat)
	if err != nil {
		return nil, dberrors.Wrap("upsert", "", err)
	}
	if _, err := c.drv.Exec(ctx, built.SQL, built.Params...); err != nil {
		return nil, dberrors.Wrap("upsert", built.SQL, err)
	}

	if err := c.runHook(ctx, plugin.AfterUpdate, merged, existing); err != nil {
		return nil, err
	}
	return merged, nil
}

// FindByID returns the document at id, or nil if absent (spec.md §4.F
// `findById`).
func (c *Collection) FindByID(ctx context.Context, id string) (map[string]any, error) {
	return c.findByIDRaw(ctx, id)
}

func (c *Collection) findByIDRaw(ctx context.Context, id string) (map[string]any, error) {
	plan := queryplan.QueryPlan{Filters: queryplan.FilterTree{Leaves: []queryplan.FilterLeaf{{Path: "_id", Op: queryplan.OpEq, Value: id}}}}
	docs, err := c.ToArray(ctx, plan)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0], nil
}

// InsertMany inserts each doc in order as its own Insert call — a thin,
// non-transactional loop, not a single atomic batch (spec §4.F bulk helpers
// Open Question; mirrors the teacher's own per-item loop in
// DeleteIssues/queries_delete.go). A failure partway through leaves earlier
// documents inserted; the returned slice and error both reflect how far the
// loop got.
func (c *Collection) InsertMany(ctx context.Context, docs []map[string]any) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(docs))
	for i, doc := range docs {
		stored, err := c.Insert(ctx, doc)
		if err != nil {
			return out, fmt.Errorf("insertMany: document %d: %w", i, err)
		}
		out = append(out, stored)
	}
	return out, nil
}

// DeleteMany deletes each id in order, same non-atomic-loop caveat as
// InsertMany. The returned map reports, per id, whether a row was affected;
// it is populated for every id attempted before an error, if any, stopped
// the loop.
func (c *Collection) DeleteMany(ctx context.Context, ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		affected, err := c.Delete(ctx, id)
		if err != nil {
			return out, fmt.Errorf("deleteMany: document %q: %w", id, err)
		}
		out[id] = affected
	}
	return out, nil
}

func versionOf(doc map[string]any) int {
	switch v := doc["_version"].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

func cloneDoc(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc)+2)
	for k, v := range doc {
		out[k] = v
	}
	return out
}

func mergeDoc(base, partial map[string]any) map[string]any {
	out := cloneDoc(base)
	for k, v := range partial {
		out[k] = v
	}
	return out
}
