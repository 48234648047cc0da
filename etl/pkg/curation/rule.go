package curation

import (
	"fmt"
	"maps"
	"slices"

	"github.com/emissionslake/lake/etl/pkg/table"
)

const (
	FamilyEEA      = "eea"
	FamilyEurostat = "eurostat"

	// ETSSourceID is the EU ETS export: tab-delimited, with per-period "Total" rows.
	ETSSourceID = "ETS_Database_v51_May23"
)

// Rule is the curation configuration of a source or source family.
type Rule struct {
	// Dialect is how the raw file is parsed.
	Dialect table.Dialect
	// SourceFilters run first, on raw text, before any coercion.
	SourceFilters []table.Filter
	// DropFullyEmpty removes rows that are null in every column.
	DropFullyEmpty bool
	// RequiredNonNull columns must be non-null; each is checked only when present,
	// so capitalized and lower-case variants are listed and handled independently.
	RequiredNonNull []string
	// NumericCoercions run in order after the null-key checks.
	NumericCoercions []Coercion
}

// Registry resolves the curation rule for a source. A source-specific record takes
// precedence over its family default.
type Registry struct {
	families map[string]Rule
	sources  map[string]Rule
}

func NewRegistry() *Registry {
	return &Registry{
		families: make(map[string]Rule),
		sources:  make(map[string]Rule),
	}
}

func (r *Registry) SetFamily(family string, rule Rule) {
	r.families[family] = rule
}

func (r *Registry) SetSource(sourceID string, rule Rule) {
	r.sources[sourceID] = rule
}

// Lookup returns the rule for sourceID within family.
func (r *Registry) Lookup(family, sourceID string) (Rule, error) {
	if rule, ok := r.sources[sourceID]; ok {
		return rule, nil
	}
	if rule, ok := r.families[family]; ok {
		return rule, nil
	}
	return Rule{}, fmt.Errorf("%w: family %q source %q", ErrNoRule, family, sourceID)
}

// Families returns the registered families in lexicographic order.
func (r *Registry) Families() []string {
	return slices.Sorted(maps.Keys(r.families))
}

// DefaultRegistry returns the rules for the EEA and Eurostat publishers.
func DefaultRegistry() *Registry {
	eea := Rule{
		DropFullyEmpty:  true,
		RequiredNonNull: []string{"Year", "year"},
		NumericCoercions: []Coercion{
			{Column: "emissions", Kind: Float},
			{Column: "Year", Kind: Integer},
			{Column: "value", Kind: Float},
			{Column: "year", Kind: Integer},
		},
	}

	ets := eea
	ets.Dialect = table.Dialect{Comma: '\t'}
	ets.SourceFilters = []table.Filter{table.DropContaining("year", "Total")}

	eurostat := Rule{
		SourceFilters:   []table.Filter{table.KeepEquals("freq", "A")},
		DropFullyEmpty:  true,
		RequiredNonNull: []string{"TIME_PERIOD"},
		NumericCoercions: []Coercion{
			{Column: "OBS_VALUE", Kind: Float},
			{Column: "obs_value", Kind: Float},
			{Column: "TIME_PERIOD", Kind: Integer},
		},
	}

	r := NewRegistry()
	r.SetFamily(FamilyEEA, eea)
	r.SetFamily(FamilyEurostat, eurostat)
	r.SetSource(ETSSourceID, ets)
	return r
}
