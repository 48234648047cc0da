package table

import (
	"fmt"
	"slices"
)

// Cell is a single field value. A Cell with Valid=false is a missing value.
type Cell struct {
	Value string
	Valid bool
}

// Null returns a missing-value cell.
func Null() Cell {
	return Cell{}
}

// String returns a present cell holding s.
func String(s string) Cell {
	return Cell{Value: s, Valid: true}
}

func (c Cell) IsNull() bool {
	return !c.Valid
}

func (c Cell) String() string {
	if !c.Valid {
		return "<null>"
	}
	return c.Value
}

// Row is one record, aligned with the owning table's Columns.
type Row []Cell

// Table is an ordered set of named columns and rows of cells.
// Rows always have exactly len(Columns) cells.
type Table struct {
	Columns []string
	Rows    []Row
}

func New(columns ...string) *Table {
	return &Table{Columns: slices.Clone(columns)}
}

// Append adds a row. Short rows are padded with nulls; long rows are rejected.
func (t *Table) Append(cells ...Cell) error {
	if len(cells) > len(t.Columns) {
		return fmt.Errorf("%w: row has %d fields, header has %d", ErrRaggedRow, len(cells), len(t.Columns))
	}
	row := make(Row, len(t.Columns))
	copy(row, cells)
	t.Rows = append(t.Rows, row)
	return nil
}

// AppendStrings adds a row of present string cells.
func (t *Table) AppendStrings(values ...string) error {
	cells := make([]Cell, len(values))
	for i, v := range values {
		cells[i] = String(v)
	}
	return t.Append(cells...)
}

func (t *Table) Len() int {
	return len(t.Rows)
}

// Index returns the position of column name, or -1 if the table lacks it.
func (t *Table) Index(name string) int {
	return slices.Index(t.Columns, name)
}

func (t *Table) HasColumn(name string) bool {
	return t.Index(name) >= 0
}

// Get returns the cell at row i for column name, or a null cell if the column is absent.
func (t *Table) Get(i int, name string) Cell {
	idx := t.Index(name)
	if idx < 0 {
		return Null()
	}
	return t.Rows[i][idx]
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	out := &Table{
		Columns: slices.Clone(t.Columns),
		Rows:    make([]Row, len(t.Rows)),
	}
	for i, r := range t.Rows {
		out.Rows[i] = slices.Clone(r)
	}
	return out
}

// Present returns the subset of names that are columns of t, preserving the order of names.
func (t *Table) Present(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if t.HasColumn(n) {
			out = append(out, n)
		}
	}
	return out
}

// Project returns a new table with only the named columns, in the given order.
// Names not present in t are skipped. A projection onto no columns has no rows.
func (t *Table) Project(names []string) *Table {
	cols := t.Present(names)
	if len(cols) == 0 {
		return &Table{Columns: cols}
	}
	idx := make([]int, len(cols))
	for i, c := range cols {
		idx[i] = t.Index(c)
	}
	out := &Table{Columns: cols, Rows: make([]Row, len(t.Rows))}
	for i, r := range t.Rows {
		row := make(Row, len(idx))
		for j, k := range idx {
			row[j] = r[k]
		}
		out.Rows[i] = row
	}
	return out
}

// Align returns a copy of t laid out over columns. Columns t lacks are filled with nulls;
// columns of t not listed are dropped.
func (t *Table) Align(columns []string) *Table {
	idx := make([]int, len(columns))
	for i, c := range columns {
		idx[i] = t.Index(c)
	}
	out := &Table{Columns: slices.Clone(columns), Rows: make([]Row, len(t.Rows))}
	for i, r := range t.Rows {
		row := make(Row, len(columns))
		for j, k := range idx {
			if k >= 0 {
				row[j] = r[k]
			}
		}
		out.Rows[i] = row
	}
	return out
}

// DropEmptyRows removes rows where every cell is null.
func (t *Table) DropEmptyRows() {
	t.Rows = slices.DeleteFunc(t.Rows, func(r Row) bool {
		for _, c := range r {
			if c.Valid {
				return false
			}
		}
		return true
	})
}

// DropNulls removes rows where column is null. It is a no-op when the column is absent.
func (t *Table) DropNulls(column string) {
	idx := t.Index(column)
	if idx < 0 {
		return
	}
	t.Rows = slices.DeleteFunc(t.Rows, func(r Row) bool {
		return !r[idx].Valid
	})
}

// Map replaces every cell of column with fn(cell). It is a no-op when the column is absent.
func (t *Table) Map(column string, fn func(Cell) Cell) {
	idx := t.Index(column)
	if idx < 0 {
		return
	}
	for _, r := range t.Rows {
		r[idx] = fn(r[idx])
	}
}

// Rename renames columns per mapping (old -> new). When new already names another
// column, that column is removed and the renamed one takes its place.
func (t *Table) Rename(mapping map[string]string) {
	for _, old := range sortedKeys(mapping) {
		idx := t.Index(old)
		if idx < 0 {
			continue
		}
		name := mapping[old]
		if name == old {
			continue
		}
		if existing := t.Index(name); existing >= 0 {
			t.removeColumn(existing)
			idx = t.Index(old)
		}
		t.Columns[idx] = name
	}
}

func (t *Table) removeColumn(idx int) {
	t.Columns = slices.Delete(t.Columns, idx, idx+1)
	for i, r := range t.Rows {
		t.Rows[i] = slices.Delete(r, idx, idx+1)
	}
}

// Concat stacks tables over the union of their columns, ordered as in columns.
func Concat(columns []string, tables ...*Table) *Table {
	out := &Table{Columns: slices.Clone(columns)}
	for _, t := range tables {
		out.Rows = append(out.Rows, t.Align(columns).Rows...)
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
