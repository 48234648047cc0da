package normalize

import (
	"fmt"

	"github.com/emissionslake/lake/etl/pkg/table"
)

// DimensionTable is the final, deduplicated member list of one dimension.
type DimensionTable struct {
	Dimension Dimension
	Table     *table.Table
	// Sources lists the contributing sources in merge order.
	Sources []string
	// Contributed is the number of rows contributed before global deduplication.
	Contributed int
}

func (d *DimensionTable) Name() string {
	return d.Dimension.TableName()
}

func (d *DimensionTable) FileName() string {
	return d.Name() + ".csv"
}

// FlushResult holds the dimension tables of a run and the dimensions nobody contributed to.
type FlushResult struct {
	Tables []*DimensionTable
	Empty  []string
}

// Accumulators collect dimension contributions across every source of a batch run.
// Contributions are kept in merge order and deduplicated only once, by Flush.
//
// Accumulators are not safe for concurrent use: merges must happen in a single,
// deterministic order for the flushed tables to be reproducible.
type Accumulators struct {
	dims    []Dimension
	parts   map[string][]*table.Table
	sources map[string][]string
}

func NewAccumulators(dims []Dimension) *Accumulators {
	a := &Accumulators{dims: dims}
	a.reset()
	return a
}

func (a *Accumulators) reset() {
	a.parts = make(map[string][]*table.Table, len(a.dims))
	a.sources = make(map[string][]string, len(a.dims))
}

// Merge appends an extraction's contributions. Contributions to dimensions the
// accumulators were not built with are ignored.
func (a *Accumulators) Merge(x *Extraction) {
	for _, c := range x.Contributions {
		if !a.known(c.Dimension) {
			continue
		}
		a.parts[c.Dimension] = append(a.parts[c.Dimension], c.Table)
		a.sources[c.Dimension] = append(a.sources[c.Dimension], x.SourceID)
	}
}

// Contributions returns how many sources have contributed to the dimension so far.
func (a *Accumulators) Contributions(key string) int {
	return len(a.parts[key])
}

func (a *Accumulators) known(key string) bool {
	for _, d := range a.dims {
		if d.Key == key {
			return true
		}
	}
	return false
}

// Flush concatenates each dimension's contributions in merge order, removes duplicate
// members and returns one table per contributed dimension. The accumulators are
// cleared afterwards.
func (a *Accumulators) Flush() *FlushResult {
	res := &FlushResult{}
	for _, dim := range a.dims {
		parts := a.parts[dim.Key]
		if len(parts) == 0 {
			res.Empty = append(res.Empty, dim.Key)
			continue
		}
		columns := seenColumns(dim, parts)
		merged := table.Concat(columns, parts...)
		contributed := merged.Len()
		merged.Dedup()
		res.Tables = append(res.Tables, &DimensionTable{
			Dimension:   dim,
			Table:       merged,
			Sources:     a.sources[dim.Key],
			Contributed: contributed,
		})
	}
	a.reset()
	return res
}

// seenColumns returns the dimension's columns that appear in at least one part, in pair order.
func seenColumns(dim Dimension, parts []*table.Table) []string {
	var cols []string
	for _, c := range dim.Columns() {
		for _, p := range parts {
			if p.HasColumn(c) {
				cols = append(cols, c)
				break
			}
		}
	}
	return cols
}

func (r *FlushResult) String() string {
	return fmt.Sprintf("%d dimension tables, %d empty", len(r.Tables), len(r.Empty))
}
