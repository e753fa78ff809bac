// Package schema implements the schema-SQL generator (spec.md §4.C):
// given a CollectionSchema (name, constrained fields) it emits the
// idempotent CREATE TABLE plus any supporting index statements.
package schema

import (
	"fmt"
	"strings"

	"github.com/sqlidoc/sqlidoc/internal/catalog"
)

// CollectionSchema mirrors spec.md §3's CollectionSchema entity.
type CollectionSchema struct {
	Name             string
	ConstrainedFields map[string]catalog.FieldSpec
}

// Statements is the generated DDL for one collection: the CREATE TABLE plus
// any additional statements that can't be expressed inline (non-unique
// indexes; unique constraints are always inlined in CREATE TABLE).
type Statements struct {
	CreateTable string
	Additional  []string
}

// Generate produces the statements for s, using cat (already built from
// s.ConstrainedFields) for column naming and DDL fragments.
//
// Table creation is idempotent (IF NOT EXISTS); existing tables are never
// altered — migration planning is explicitly out of scope (spec.md §1).
func Generate(s CollectionSchema, cat *catalog.Catalog) (Statements, error) {
	if err := validateIdentifier(s.Name); err != nil {
		return Statements{}, fmt.Errorf("schema: %w", err)
	}

	var cols []string
	cols = append(cols,
		"_id TEXT PRIMARY KEY",
		"doc TEXT NOT NULL",
		"_version INTEGER NOT NULL DEFAULT 1",
	)

	var additional []string
	for _, path := range cat.Paths() {
		spec, _ := cat.Spec(path)
		def, err := cat.ColumnDef(path)
		if err != nil {
			return Statements{}, fmt.Errorf("schema: %w", err)
		}
		cols = append(cols, def)

		if !spec.Unique {
			idx, err := cat.IndexStatement(s.Name, path)
			if err != nil {
				return Statements{}, fmt.Errorf("schema: %w", err)
			}
			additional = append(additional, idx)
		}
	}

	createTable := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)",
		s.Name,
		strings.Join(cols, ",\n\t"),
	)

	return Statements{CreateTable: createTable, Additional: additional}, nil
}

// validateIdentifier checks that name is safe to inline into DDL — the
// schema generator is the one place table names flow into SQL text directly
// rather than as a parameter, so it must reject anything that isn't a plain
// identifier (spec.md §4.D: "Identifiers originate from the schema and are
// never composed from user input at call time").
func validateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("identifier must not be empty")
	}
	for i, r := range name {
		isLetter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		isDigit := r >= '0' && r <= '9'
		isUnderscore := r == '_'
		if i == 0 && isDigit {
			return fmt.Errorf("identifier %q must not start with a digit", name)
		}
		if !isLetter && !isDigit && !isUnderscore {
			return fmt.Errorf("identifier %q contains invalid character %q", name, r)
		}
	}
	return nil
}

// ValidIdentifier exposes validateIdentifier to other packages (the SQL
// translator re-checks table names for the same reason).
func ValidIdentifier(name string) error {
	return validateIdentifier(name)
}
