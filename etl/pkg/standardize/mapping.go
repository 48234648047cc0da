package standardize

import (
	"errors"
	"fmt"

	"github.com/emissionslake/lake/etl/pkg/table"
)

// UNFCCCSourceID is the EEA greenhouse-gas inventory, the one source published outside
// the canonical (Eurostat) schema.
const UNFCCCSourceID = "UNFCCC_v28_3"

// ErrGrainEmpty is returned when a non-empty table has no rows left after its grain
// restriction. This usually means the upstream vocabulary renamed the retained category.
var ErrGrainEmpty = errors.New("grain restriction matched no rows")

// Mapping rewrites one source's schema and vocabulary into canonical names and codes.
type Mapping struct {
	// ColumnRenames maps source column names to canonical names.
	ColumnRenames map[string]string
	// ValueRecodes maps canonical column name -> source value -> canonical value.
	// Recodes run after renames, so they are keyed by canonical names.
	ValueRecodes map[string]map[string]string
	// RowFilters restrict the table to the grain of its fact table.
	RowFilters []table.Filter
}

// IsIdentity reports whether the mapping leaves every table unchanged.
func (m Mapping) IsIdentity() bool {
	return len(m.ColumnRenames) == 0 && len(m.ValueRecodes) == 0 && len(m.RowFilters) == 0
}

// Result is a standardized table and what the grain restriction removed.
type Result struct {
	Table    *table.Table
	RowsIn   int
	Filtered int
}

// Apply rewrites t in place. It is idempotent: canonical names are never renamed and
// canonical values never recoded.
func (m Mapping) Apply(t *table.Table) (*Result, error) {
	res := &Result{Table: t, RowsIn: t.Len()}

	t.Rename(m.ColumnRenames)

	for _, col := range sortedKeys(m.ValueRecodes) {
		recode := m.ValueRecodes[col]
		t.Map(col, func(c table.Cell) table.Cell {
			if !c.Valid {
				return c
			}
			if v, ok := recode[c.Value]; ok {
				return table.String(v)
			}
			return c
		})
	}

	for _, f := range m.RowFilters {
		res.Filtered += f.Apply(t)
		if res.RowsIn > 0 && t.Len() == 0 && f.Applies(t) {
			return nil, fmt.Errorf("%w: %s", ErrGrainEmpty, f.Name)
		}
	}
	return res, nil
}

// Registry holds the mapping of every non-canonical source. Sources without an
// entry are already canonical.
type Registry struct {
	mappings map[string]Mapping
}

func NewRegistry() *Registry {
	return &Registry{mappings: make(map[string]Mapping)}
}

func (r *Registry) Set(sourceID string, m Mapping) {
	r.mappings[sourceID] = m
}

// Lookup returns the mapping for sourceID, or the identity mapping.
func (r *Registry) Lookup(sourceID string) Mapping {
	return r.mappings[sourceID]
}

// DefaultRegistry maps the EEA UNFCCC inventory onto the Eurostat air-emissions schema.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Set(UNFCCCSourceID, Mapping{
		ColumnRenames: map[string]string{
			"Country_code":   "geo",
			"Country":        "Geopolitical entity (reporting)",
			"emissions":      "OBS_VALUE",
			"Year":           "TIME_PERIOD",
			"Pollutant_name": "airpol",
		},
		ValueRecodes: map[string]map[string]string{
			"geo": {
				"EUA": "EU27_2020",
			},
			"Geopolitical entity (reporting)": {
				"EU-27": "European Union - 27 countries (from 2020)",
			},
			"airpol": {
				"All greenhouse gases - (CO2 equivalent)": "GHG",
			},
		},
		// The UNFCCC fact table is defined at aggregate-gas grain only.
		RowFilters: []table.Filter{table.KeepEquals("airpol", "GHG")},
	})
	return r
}
