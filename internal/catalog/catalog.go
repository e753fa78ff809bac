// Package catalog implements the constrained-field catalog (spec.md §4.B):
// a deterministic map from dotted JSON field paths to native SQL columns,
// plus the DDL fragments (index, unique index, foreign key, nullability)
// that the schema generator and SQL translator both consume.
package catalog

import (
	"fmt"
	"sort"
	"strings"
)

// SQLType is the native column type a constrained field is stored as.
type SQLType string

const (
	TypeText    SQLType = "TEXT"
	TypeInteger SQLType = "INTEGER"
	TypeReal    SQLType = "REAL"
	TypeBlob    SQLType = "BLOB"
)

// FieldSpec is the declarative description of one constrained field
// (spec.md §3 ConstrainedFieldSpec).
type FieldSpec struct {
	Path        string // dotted JSON path, e.g. "profile.email"
	SQLType     SQLType
	Unique      bool
	Nullable    bool
	ForeignKey  string // "collection._id", empty if none
}

// reservedColumns are the mandatory row columns no constrained field may
// shadow (spec.md §4.B).
var reservedColumns = map[string]bool{"_id": true, "doc": true, "_version": true}

// cfPrefix disambiguates generated column names from the reserved ones
// (_id/doc/_version). It does NOT disambiguate dotted paths from each
// other: "a.b.c" and "a.b_c" both normalize to "cf_a_b_c", so New detects
// and rejects that collision explicitly rather than relying on the prefix.
const cfPrefix = "cf_"

// Catalog is the resolved path -> column mapping for one collection, built
// once at Collection construction time from the caller-supplied
// map[path]FieldSpec.
type Catalog struct {
	specs   map[string]FieldSpec
	columns map[string]string // path -> column name
}

// New builds a Catalog from the caller's constrained-field map, deriving a
// deterministic column name per path (spec.md §4.B: "Flat names pass
// through; dotted paths become lowercase, dot-to-underscore, with a prefix
// that prevents collision with _id/doc/_version").
func New(specs map[string]FieldSpec) (*Catalog, error) {
	c := &Catalog{
		specs:   make(map[string]FieldSpec, len(specs)),
		columns: make(map[string]string, len(specs)),
	}
	byColumn := make(map[string]string, len(specs)) // column -> owning path, for collision detection

	paths := make([]string, 0, len(specs))
	for path := range specs {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		spec := specs[path]
		spec.Path = path
		column := columnName(path)
		if reservedColumns[column] {
			return nil, fmt.Errorf("catalog: constrained field %q would collide with reserved column %q", path, column)
		}
		if owner, taken := byColumn[column]; taken {
			return nil, fmt.Errorf("catalog: constrained fields %q and %q both normalize to column %q", owner, path, column)
		}
		byColumn[column] = path
		c.specs[path] = spec
		c.columns[path] = column
	}
	return c, nil
}

func columnName(path string) string {
	if !strings.Contains(path, ".") {
		return path
	}
	normalized := strings.ToLower(strings.ReplaceAll(path, ".", "_"))
	return cfPrefix + normalized
}

// Column reports the native SQL column for path, if path is a constrained
// field.
func (c *Catalog) Column(path string) (string, bool) {
	if c == nil {
		return "", false
	}
	col, ok := c.columns[path]
	return col, ok
}

// Spec returns the FieldSpec for path, if constrained.
func (c *Catalog) Spec(path string) (FieldSpec, bool) {
	if c == nil {
		return FieldSpec{}, false
	}
	s, ok := c.specs[path]
	return s, ok
}

// Paths returns every constrained field path, in a stable (sorted) order so
// generated DDL and parameter lists are deterministic across runs.
func (c *Catalog) Paths() []string {
	if c == nil {
		return nil
	}
	paths := make([]string, 0, len(c.specs))
	for p := range c.specs {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
