package standardize

import (
	"maps"
	"slices"

	"github.com/emissionslake/lake/etl/pkg/table"
)

// Mapper applies registered mappings to curated tables.
type Mapper struct {
	mappings *Registry
}

func NewMapper(mappings *Registry) *Mapper {
	if mappings == nil {
		mappings = DefaultRegistry()
	}
	return &Mapper{mappings: mappings}
}

// IsCanonical reports whether sourceID is already in the canonical schema.
func (m *Mapper) IsCanonical(sourceID string) bool {
	return m.mappings.Lookup(sourceID).IsIdentity()
}

// Standardize rewrites a curated table into the canonical schema. Canonical sources
// pass through unchanged.
func (m *Mapper) Standardize(t *table.Table, sourceID string) (*Result, error) {
	return m.mappings.Lookup(sourceID).Apply(t)
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
