package catalog

import "fmt"

// ColumnDef renders the column clause for one constrained field, inlined
// into CREATE TABLE (spec.md §4.C item 1). A unique field's constraint
// renders here as a column-level UNIQUE.
func (c *Catalog) ColumnDef(path string) (string, error) {
	spec, ok := c.specs[path]
	if !ok {
		return "", fmt.Errorf("catalog: no constrained field for path %q", path)
	}
	col := c.columns[path]

	def := fmt.Sprintf("%s %s", col, spec.SQLType)
	if !spec.Nullable {
		def += " NOT NULL"
	}
	if spec.Unique {
		def += " UNIQUE"
	}
	if spec.ForeignKey != "" {
		table, refCol, err := splitForeignKey(spec.ForeignKey)
		if err != nil {
			return "", fmt.Errorf("catalog: field %q: %w", path, err)
		}
		def += fmt.Sprintf(" REFERENCES %s(%s)", table, refCol)
	}
	return def, nil
}

// splitForeignKey parses "collection._id" into ("collection", "_id").
func splitForeignKey(ref string) (table, column string, err error) {
	for i := len(ref) - 1; i >= 0; i-- {
		if ref[i] == '.' {
			return ref[:i], ref[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("invalid foreign key reference %q, expected \"collection._id\"", ref)
}

// IndexStatement renders a non-unique CREATE INDEX for path, or an error if
// path isn't constrained. Unique, inline-expressible constraints don't need a
// separate index statement (the UNIQUE column clause already creates one);
// this is for plain lookup acceleration.
func (c *Catalog) IndexStatement(tableName, path string) (string, error) {
	_, ok := c.specs[path]
	if !ok {
		return "", fmt.Errorf("catalog: no constrained field for path %q", path)
	}
	col := c.columns[path]
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s(%s)", tableName, col, tableName, col), nil
}
