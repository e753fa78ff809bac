package dberrors

import "strings"

// uniqueConstraintField extracts the column name from a SQLite-style
// "UNIQUE constraint failed: table.column" message, or a MySQL/Dolt-style
// "Duplicate entry '...' for key 'table.column'" message. Returns ok=false
// if the message doesn't match either shape.
func uniqueConstraintField(msg string) (string, bool) {
	lower := strings.ToLower(msg)

	if idx := strings.Index(lower, "unique constraint failed:"); idx >= 0 {
		rest := strings.TrimSpace(msg[idx+len("unique constraint failed:"):])
		rest = strings.SplitN(rest, ",", 2)[0]
		if dot := strings.LastIndex(rest, "."); dot >= 0 {
			return strings.TrimSpace(rest[dot+1:]), true
		}
		return strings.TrimSpace(rest), rest != ""
	}

	if strings.Contains(lower, "duplicate entry") && strings.Contains(lower, "for key") {
		idx := strings.LastIndex(msg, "'")
		start := strings.LastIndex(msg[:idx], "'")
		if idx > 0 && start >= 0 && start < idx {
			key := msg[start+1 : idx]
			if dot := strings.LastIndex(key, "."); dot >= 0 {
				key = key[dot+1:]
			}
			return key, true
		}
	}

	return "", false
}

// isForeignKeyViolation matches the backend error text produced when a
// FOREIGN KEY constraint is violated, across the two backends this module
// supports.
func isForeignKeyViolation(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "foreign key constraint") ||
		strings.Contains(lower, "foreign key mismatch")
}
