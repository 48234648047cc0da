package curation

import (
	"strings"
	"testing"

	"github.com/emissionslake/lake/etl/pkg/table"
	"github.com/stretchr/testify/require"
)

func TestETL_Curation_ParseOrNull(t *testing.T) {
	t.Parallel()

	floatOrNull := ParseOrNull(ParseFloat)
	intOrNull := ParseOrNull(ParseInteger)

	tests := []struct {
		name string
		fn   func(table.Cell) table.Cell
		in   table.Cell
		want table.Cell
	}{
		{"float", floatOrNull, table.String("120.50"), table.String("120.5")},
		{"float_integral", floatOrNull, table.String("120.0"), table.String("120")},
		{"float_padded", floatOrNull, table.String(" 3.25 "), table.String("3.25")},
		{"float_eurostat_missing_marker", floatOrNull, table.String(":"), table.Null()},
		{"float_infinite", floatOrNull, table.String("Inf"), table.Null()},
		{"float_null_stays_null", floatOrNull, table.Null(), table.Null()},
		{"int", intOrNull, table.String("2019"), table.String("2019")},
		{"int_from_integral_decimal", intOrNull, table.String("2019.0"), table.String("2019")},
		{"int_fractional", intOrNull, table.String("2019.5"), table.Null()},
		{"int_sentinel", intOrNull, table.String("Total"), table.Null()},
		{"int_empty_text", intOrNull, table.String(""), table.Null()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, tt.fn(tt.in))
		})
	}
}

func TestETL_Curation_Coercion_CountsNulledCells(t *testing.T) {
	t.Parallel()

	tbl := table.New("emissions")
	require.NoError(t, tbl.AppendStrings("1.5"))
	require.NoError(t, tbl.AppendStrings("n.a."))
	require.NoError(t, tbl.Append(table.Null()))

	nulled := Coercion{Column: "emissions", Kind: Float}.Apply(tbl)
	require.Equal(t, 1, nulled)
	require.Equal(t, table.String("1.5"), tbl.Get(0, "emissions"))
	require.True(t, tbl.Get(1, "emissions").IsNull())
}

func TestETL_Curation_Rule_Apply(t *testing.T) {
	t.Parallel()

	t.Run("generic_steps", func(t *testing.T) {
		t.Parallel()
		rule, err := DefaultRegistry().Lookup(FamilyEEA, "UNFCCC_v28_3")
		require.NoError(t, err)

		raw := table.New("Country_code", "Year", "emissions")
		require.NoError(t, raw.Append(table.Null(), table.Null(), table.Null()))
		require.NoError(t, raw.Append(table.String("DE"), table.Null(), table.String("1")))
		require.NoError(t, raw.AppendStrings("DE", "2019", "120.50"))
		require.NoError(t, raw.AppendStrings("DE", "2019.0", "120.5"))
		require.NoError(t, raw.AppendStrings("FR", "2019", "n/a"))

		res := rule.Apply(raw)
		require.Equal(t, 5, res.RowsIn)
		require.Equal(t, 1, res.EmptyDropped)
		require.Equal(t, 1, res.NullKeyDropped)
		require.Equal(t, 1, res.CoercionNulls)
		require.Equal(t, 1, res.Duplicates, "coerced values compare equal")
		require.Equal(t, 2, res.RowsOut())
		require.Equal(t, []table.Row{
			{table.String("DE"), table.String("2019"), table.String("120.5")},
			{table.String("FR"), table.String("2019"), table.Null()},
		}, res.Table.Rows)
	})

	t.Run("key_that_fails_coercion_is_dropped", func(t *testing.T) {
		t.Parallel()
		rule, err := DefaultRegistry().Lookup(FamilyEEA, "other")
		require.NoError(t, err)

		raw := table.New("Year", "emissions")
		require.NoError(t, raw.AppendStrings("1990-2020", "1"))
		require.NoError(t, raw.AppendStrings("2020", "2"))

		res := rule.Apply(raw)
		require.Equal(t, 1, res.RowsOut())
		for i := range res.Table.Rows {
			require.False(t, res.Table.Get(i, "Year").IsNull())
		}
	})

	t.Run("case_variants_are_independent", func(t *testing.T) {
		t.Parallel()
		rule, err := DefaultRegistry().Lookup(FamilyEEA, "other")
		require.NoError(t, err)

		lower := table.New("year", "value")
		require.NoError(t, lower.Append(table.Null(), table.String("1")))
		require.NoError(t, lower.AppendStrings("2019", "2"))
		require.Equal(t, 1, rule.Apply(lower).RowsOut())

		upper := table.New("Year", "emissions")
		require.NoError(t, upper.Append(table.Null(), table.String("1")))
		require.NoError(t, upper.AppendStrings("2019", "2"))
		require.Equal(t, 1, rule.Apply(upper).RowsOut())
	})

	t.Run("dedup_is_idempotent", func(t *testing.T) {
		t.Parallel()
		rule, err := DefaultRegistry().Lookup(FamilyEurostat, "env_ac_ainah_r2")
		require.NoError(t, err)

		raw := table.New("freq", "geo", "TIME_PERIOD", "OBS_VALUE")
		require.NoError(t, raw.AppendStrings("A", "DE", "2019", "1"))
		require.NoError(t, raw.AppendStrings("A", "DE", "2019", "1"))
		once := rule.Apply(raw).Table.Clone()
		twice := rule.Apply(once.Clone()).Table
		require.Equal(t, once, twice)
	})
}

func TestETL_Curation_Engine_CurateCSV(t *testing.T) {
	t.Parallel()

	engine := NewEngine(nil)

	t.Run("ets_total_rows_are_removed_before_coercion", func(t *testing.T) {
		t.Parallel()
		in := "country\tyear\tvalue\n" +
			"DE\t2019\t10.5\n" +
			"DE\tTotal\t99\n" +
			"DE\tTotal 2008-2012\t98\n" +
			"FR\t2019\t3\n"
		res, err := engine.CurateCSV(strings.NewReader(in), FamilyEEA, ETSSourceID)
		require.NoError(t, err)
		require.Equal(t, 2, res.Filtered)
		require.Equal(t, 2, res.RowsOut())
		for i := range res.Table.Rows {
			require.NotContains(t, res.Table.Get(i, "year").Value, "Total")
		}
	})

	t.Run("eurostat_keeps_annual_rows", func(t *testing.T) {
		t.Parallel()
		in := "freq,geo,TIME_PERIOD,OBS_VALUE\n" +
			"A,DE,2019,120.5\n" +
			"Q,DE,2019-Q1,30\n" +
			"A,FR,,1\n" +
			"A,IT,2019,:\n"
		res, err := engine.CurateCSV(strings.NewReader(in), FamilyEurostat, "env_ac_ainah_r2")
		require.NoError(t, err)
		require.Equal(t, 1, res.Filtered)
		require.Equal(t, 1, res.NullKeyDropped)
		require.Equal(t, 2, res.RowsOut())
		require.True(t, res.Table.Get(1, "OBS_VALUE").IsNull())
	})

	t.Run("duplicate_observation_scenario", func(t *testing.T) {
		t.Parallel()
		in := "freq,geo,airpol,TIME_PERIOD,OBS_VALUE\n" +
			"A,DE,GHG,2019,120.5\n" +
			"A,DE,GHG,2019,120.5\n"
		res, err := engine.CurateCSV(strings.NewReader(in), FamilyEurostat, "sdg_13_10")
		require.NoError(t, err)
		require.Equal(t, 1, res.RowsOut())
	})

	t.Run("unparseable_file", func(t *testing.T) {
		t.Parallel()
		_, err := engine.CurateCSV(strings.NewReader("a,b\n1,2,3\n"), FamilyEurostat, "broken")
		require.ErrorIs(t, err, table.ErrRaggedRow)
	})

	t.Run("unknown_family", func(t *testing.T) {
		t.Parallel()
		_, err := engine.CurateCSV(strings.NewReader("a\n1\n"), "worldbank", "x")
		require.ErrorIs(t, err, ErrNoRule)
	})
}

func TestETL_Curation_Registry(t *testing.T) {
	t.Parallel()

	r := DefaultRegistry()
	require.Equal(t, []string{FamilyEEA, FamilyEurostat}, r.Families())

	ets, err := r.Lookup(FamilyEEA, ETSSourceID)
	require.NoError(t, err)
	require.Equal(t, '\t', ets.Dialect.Comma)

	other, err := r.Lookup(FamilyEEA, "UNFCCC_v28_3")
	require.NoError(t, err)
	require.Zero(t, other.Dialect.Comma)
	require.Empty(t, other.SourceFilters)
}
