package normalize

import (
	"maps"
	"slices"
	"strings"
)

// factColumns are the canonical fact-eligible columns, in output order.
var factColumns = []string{
	"STRUCTURE_NAME", "freq", "airpol", "nace_r2",
	"Unit of measure", "geo",
	"Source sectors for greenhouse gas emissions (Common reporting format, UNFCCC)",
	"Statistical information",
	"Environment indicator",
	"National accounts indicator (ESA 2010)",
	"reporter",
	"PARTNER",
	"FLOW",
	"indicators",
	"TIME_PERIOD", "OBS_VALUE", "OBS_FLAG",
	"Format_name", "Sector_code",
	"Sector_name", "Notation",
	"PublicationData",
	"DataSource",
}

// Dimension is one categorical axis of the star schema, projected from a
// (code, description) column pair.
type Dimension struct {
	Key               string
	CodeColumn        string
	DescriptionColumn string
}

func (d Dimension) Columns() []string {
	return []string{d.CodeColumn, d.DescriptionColumn}
}

func (d Dimension) TableName() string {
	return "dim_" + d.Key
}

var dimensions = []Dimension{
	{Key: "airpol", CodeColumn: "airpol", DescriptionColumn: "Air pollutants and greenhouse gases"},
	{Key: "nace_r2", CodeColumn: "nace_r2", DescriptionColumn: "Statistical classification of economic activities in the European Community (NACE Rev. 2)"},
	{Key: "geo", CodeColumn: "geo", DescriptionColumn: "Geopolitical entity (reporting)"},
	{Key: "time_period", CodeColumn: "TIME_PERIOD", DescriptionColumn: "Time"},
	{Key: "ipcc", CodeColumn: "Sector_code", DescriptionColumn: "Sector_name"},
}

// factNames gives source datasets a short logical fact name. Keys are lower-case.
var factNames = map[string]string{
	"env_ac_ainah_r2":       "aea",
	"env_ac_aeint_r2":       "aei",
	"env_ac_aibrid_r2":      "aea_brid",
	"sdg_13_10":             "ghe",
	"nrg_ind_eff":           "eff",
	"sdg_07_10":             "energy_cons",
	"nrg_ind_fecf":          "share_energy_cons",
	"nrg_ind_ren":           "share_ren",
	"sdg_13_40":             "losses",
	"ds-059331$defaultview": "import_export",
	"nama_10_gdp":           "gdp",
	"unfccc_v28_3":          "ghg_unfccc",
}

// Schema is the fixed star-schema layout: which columns are facts, which pairs
// form dimensions, and how sources are named as facts.
type Schema struct {
	FactColumns []string
	Dimensions  []Dimension
	// FactNames maps a source id (matched case-insensitively) to its logical fact name.
	FactNames map[string]string
}

func DefaultSchema() Schema {
	return Schema{
		FactColumns: slices.Clone(factColumns),
		Dimensions:  slices.Clone(dimensions),
		FactNames:   maps.Clone(factNames),
	}
}

// LogicalName returns the fact name of a source: its registered name, or the source id.
func (s Schema) LogicalName(sourceID string) string {
	if name, ok := s.FactNames[strings.ToLower(sourceID)]; ok {
		return name
	}
	for k, name := range s.FactNames {
		if strings.EqualFold(k, sourceID) {
			return name
		}
	}
	return sourceID
}

// FactTableName returns the fact table name of a source, "fact_<logical name>".
func (s Schema) FactTableName(sourceID string) string {
	return "fact_" + s.LogicalName(sourceID)
}
