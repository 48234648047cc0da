package table

import (
	"fmt"
	"slices"
	"strings"
)

// Filter decides row membership by looking at a single column.
// Tables that lack Column are left untouched: heterogeneous sources legitimately
// miss columns, and a filter on an absent column does not apply to them.
type Filter struct {
	// Name describes the filter in logs and reports.
	Name   string
	Column string
	Keep   func(Cell) bool
}

// Apply removes the rows for which f.Keep returns false and returns how many were removed.
func (f Filter) Apply(t *Table) int {
	idx := t.Index(f.Column)
	if idx < 0 {
		return 0
	}
	before := len(t.Rows)
	t.Rows = slices.DeleteFunc(t.Rows, func(r Row) bool {
		return !f.Keep(r[idx])
	})
	return before - len(t.Rows)
}

// Applies reports whether the filter's column exists in t.
func (f Filter) Applies(t *Table) bool {
	return t.HasColumn(f.Column)
}

// KeepEquals keeps rows whose column equals value. Null cells are dropped.
func KeepEquals(column, value string) Filter {
	return Filter{
		Name:   fmt.Sprintf("%s == %q", column, value),
		Column: column,
		Keep: func(c Cell) bool {
			return c.Valid && c.Value == value
		},
	}
}

// DropContaining drops rows whose column contains substr. Null cells are kept.
func DropContaining(column, substr string) Filter {
	return Filter{
		Name:   fmt.Sprintf("%s does not contain %q", column, substr),
		Column: column,
		Keep: func(c Cell) bool {
			return !c.Valid || !strings.Contains(c.Value, substr)
		},
	}
}
