package normalize

import (
	"github.com/emissionslake/lake/etl/pkg/table"
)

// FactTable is the fact projection of one source. It is owned by that source alone.
type FactTable struct {
	Name     string
	SourceID string
	Table    *table.Table
}

func (f *FactTable) FileName() string {
	return f.Name + ".csv"
}

// Contribution is one source's deduplicated projection onto one dimension.
type Contribution struct {
	Dimension string
	Table     *table.Table
}

// Extraction is everything decomposition derives from one source table.
type Extraction struct {
	SourceID      string
	Fact          *FactTable
	Contributions []Contribution
}

// Engine splits standardized tables into facts and dimension contributions.
type Engine struct {
	schema Schema
}

func NewEngine(schema Schema) *Engine {
	return &Engine{schema: schema}
}

func (e *Engine) Schema() Schema {
	return e.schema
}

// Extract computes the fact table and dimension contributions of a source without
// touching shared state. It is safe to call concurrently.
//
// The fact table holds the fact-eligible columns present in t, in canonical order; it
// may have no rows or no columns. A dimension contributes when at least one of its
// columns is present.
func (e *Engine) Extract(t *table.Table, sourceID string) *Extraction {
	x := &Extraction{
		SourceID: sourceID,
		Fact: &FactTable{
			Name:     e.schema.FactTableName(sourceID),
			SourceID: sourceID,
			Table:    t.Project(e.schema.FactColumns),
		},
	}
	for _, dim := range e.schema.Dimensions {
		if len(t.Present(dim.Columns())) == 0 {
			continue
		}
		part := t.Project(dim.Columns())
		part.Dedup()
		x.Contributions = append(x.Contributions, Contribution{Dimension: dim.Key, Table: part})
	}
	return x
}

// Decompose extracts the fact table of t and merges its dimension contributions into acc.
func (e *Engine) Decompose(t *table.Table, sourceID string, acc *Accumulators) *FactTable {
	x := e.Extract(t, sourceID)
	acc.Merge(x)
	return x.Fact
}
