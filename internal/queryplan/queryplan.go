// Package queryplan defines the shared QueryPlan/FilterTree types that the
// query builder produces and the SQL translator consumes (spec.md §3, §4.D,
// §4.E). Keeping these in their own package avoids an import cycle between
// the two.
package queryplan

// Op enumerates the comparison operators a FilterLeaf may use (spec.md §3).
type Op int

const (
	OpEq Op = iota
	OpNe
	OpGt
	OpGte
	OpLt
	OpLte
	OpIn
	OpNin
	OpContains
	OpStartsWith
	OpEndsWith
	OpLike
	OpIsNull
	OpNotNull
	OpBetween
)

func (op Op) String() string {
	switch op {
	case OpEq:
		return "eq"
	case OpNe:
		return "ne"
	case OpGt:
		return "gt"
	case OpGte:
		return "gte"
	case OpLt:
		return "lt"
	case OpLte:
		return "lte"
	case OpIn:
		return "in"
	case OpNin:
		return "nin"
	case OpContains:
		return "contains"
	case OpStartsWith:
		return "startsWith"
	case OpEndsWith:
		return "endsWith"
	case OpLike:
		return "like"
	case OpIsNull:
		return "isNull"
	case OpNotNull:
		return "notNull"
	case OpBetween:
		return "between"
	default:
		return "?"
	}
}

// FilterLeaf is a single predicate on one field path (spec.md §3).
type FilterLeaf struct {
	Path  string
	Op    Op
	Value any // unused for isNull/notNull; a 2-element slice for between
}

// OrGroup is a list of leaves joined with OR among themselves; the group as
// a whole is ANDed with its sibling leaves and groups in the enclosing
// FilterTree (spec.md §3: "one level of explicit
// grouping").
type OrGroup struct {
	Leaves []FilterLeaf
}

// FilterTree is the accumulated predicate of a QueryPlan: an AND-list where
// any entry may itself be an OrGroup of leaves.
type FilterTree struct {
	Leaves   []FilterLeaf
	OrGroups []OrGroup
}

func (t FilterTree) IsEmpty() bool {
	return len(t.Leaves) == 0 && len(t.OrGroups) == 0
}

// Direction is the sort direction for one ordering term.
type Direction int

const (
	Asc Direction = iota
	Desc
)

func (d Direction) String() string {
	if d == Desc {
		return "DESC"
	}
	return "ASC"
}

// OrderTerm is one (path, direction) pair in a QueryPlan's ordering.
type OrderTerm struct {
	Path      string
	Direction Direction
}

// QueryPlan is the fully accumulated, backend-agnostic description of a
// query (spec.md §3). The SQL translator's only job is turning one of these
// into parameterized SQL.
type QueryPlan struct {
	Filters    FilterTree
	Ordering   []OrderTerm
	Limit      *int
	Offset     *int
	Distinct   bool
	Projection []string // nil/empty means "select the full document"
}
