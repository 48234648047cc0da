package dataset

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/emissionslake/lake/etl/pkg/clickhouse"
	"github.com/emissionslake/lake/etl/pkg/table"
	laketesting "github.com/emissionslake/lake/utils/pkg/testing"
)

func mustTable(t *testing.T, columns []string, rows ...[]table.Cell) *table.Table {
	t.Helper()
	tbl := table.New(columns...)
	for _, r := range rows {
		require.NoError(t, tbl.Append(r...))
	}
	return tbl
}

func s(v string) table.Cell { return table.String(v) }

func TestETL_Clickhouse_Dataset_InferColumns(t *testing.T) {
	t.Parallel()
	tbl := mustTable(t,
		[]string{"geo", "TIME_PERIOD", "OBS_VALUE", "nace_r2", "empty", "mixed"},
		[]table.Cell{s("DE"), s("2019"), s("1.5"), s("01"), table.Null(), s("12")},
		[]table.Cell{s("FR"), s("2020"), s("-3"), s("02"), table.Null(), s("n/a")},
		[]table.Cell{s("IT"), table.Null(), s("2e3"), s("10"), table.Null(), s("7")},
	)
	cols := InferColumns(tbl)
	require.Equal(t, []Column{
		{Name: "geo", Type: TypeString},
		{Name: "TIME_PERIOD", Type: TypeInt64},
		{Name: "OBS_VALUE", Type: TypeFloat64},
		{Name: "nace_r2", Type: TypeString},
		{Name: "empty", Type: TypeString},
		{Name: "mixed", Type: TypeString},
	}, cols)
}

func TestETL_Clickhouse_Dataset_InferColumns_IntegerOverflowIsFloat(t *testing.T) {
	t.Parallel()
	tbl := mustTable(t, []string{"big"}, []table.Cell{s("99999999999999999999")})
	require.Equal(t, TypeFloat64, InferColumns(tbl)[0].Type)
}

func TestETL_Clickhouse_Dataset_ColumnValue(t *testing.T) {
	t.Parallel()

	v, err := Column{Name: "n", Type: TypeInt64}.Value(s("42"))
	require.NoError(t, err)
	require.Equal(t, int64(42), *v.(*int64))

	v, err = Column{Name: "n", Type: TypeInt64}.Value(table.Null())
	require.NoError(t, err)
	require.Nil(t, v.(*int64))

	v, err = Column{Name: "x", Type: TypeFloat64}.Value(s("0.25"))
	require.NoError(t, err)
	require.Equal(t, 0.25, *v.(*float64))

	_, err = Column{Name: "x", Type: TypeFloat64}.Value(s("abc"))
	require.Error(t, err)

	v, err = Column{Name: "geo", Type: TypeString}.Value(s("DE"))
	require.NoError(t, err)
	require.Equal(t, "DE", *v.(*string))
}

func TestETL_Clickhouse_Dataset_NewDataset(t *testing.T) {
	t.Parallel()
	log := laketesting.NewLogger()

	_, err := NewDataset(log, "", table.New("a"))
	require.Error(t, err)
	_, err = NewDataset(log, "fact_aea", nil)
	require.Error(t, err)

	d, err := NewDataset(log, "fact_aea", table.New("a"))
	require.NoError(t, err)
	require.Equal(t, "fact_aea", d.TableName())
	require.Equal(t, "stg_fact_aea", d.StagingTableName())
}

type factRow struct {
	geo   *string
	year  *int64
	value *float64
}

func readFacts(t *testing.T, conn clickhouse.Connection, name string) []factRow {
	t.Helper()
	rows, err := conn.Query(t.Context(), "SELECT geo, TIME_PERIOD, `OBS VALUE (t)` FROM "+clickhouse.QuoteIdent(name)+" ORDER BY geo")
	require.NoError(t, err)
	defer rows.Close()
	var out []factRow
	for rows.Next() {
		var r factRow
		require.NoError(t, rows.Scan(&r.geo, &r.year, &r.value))
		out = append(out, r)
	}
	require.NoError(t, rows.Err())
	return out
}

func tableExists(t *testing.T, conn clickhouse.Connection, name string) bool {
	t.Helper()
	rows, err := conn.Query(t.Context(), "SELECT count() FROM system.tables WHERE database = currentDatabase() AND name = ?", name)
	require.NoError(t, err)
	defer rows.Close()
	require.True(t, rows.Next())
	var n uint64
	require.NoError(t, rows.Scan(&n))
	return n > 0
}

func TestETL_Clickhouse_Dataset_Replace(t *testing.T) {
	t.Parallel()
	log := laketesting.NewLogger()
	conn := testConn(t)
	ctx := t.Context()
	columns := []string{"geo", "TIME_PERIOD", "OBS VALUE (t)"}

	first := mustTable(t, columns,
		[]table.Cell{s("DE"), s("2019"), s("1.5")},
		[]table.Cell{s("FR"), s("2020"), table.Null()},
	)
	d, err := NewDataset(log, "fact_aea", first)
	require.NoError(t, err)
	require.NoError(t, d.Replace(ctx, conn))

	got := readFacts(t, conn, "fact_aea")
	require.Len(t, got, 2)
	require.Equal(t, "DE", *got[0].geo)
	require.Equal(t, int64(2019), *got[0].year)
	require.Equal(t, 1.5, *got[0].value)
	require.Equal(t, "FR", *got[1].geo)
	require.Nil(t, got[1].value)
	require.False(t, tableExists(t, conn, "stg_fact_aea"))

	t.Run("second_load_replaces_contents", func(t *testing.T) {
		second := mustTable(t, columns,
			[]table.Cell{s("IT"), s("2021"), s("7")},
		)
		d, err := NewDataset(log, "fact_aea", second)
		require.NoError(t, err)
		require.NoError(t, d.Replace(ctx, conn))

		got := readFacts(t, conn, "fact_aea")
		require.Len(t, got, 1)
		require.Equal(t, "IT", *got[0].geo)
		require.Equal(t, 7.0, *got[0].value)
		require.False(t, tableExists(t, conn, "stg_fact_aea"))
	})

	t.Run("no_rows_leaves_empty_table", func(t *testing.T) {
		d, err := NewDataset(log, "fact_aea", table.New(columns...))
		require.NoError(t, err)
		require.NoError(t, d.Replace(ctx, conn))
		require.True(t, tableExists(t, conn, "fact_aea"))
		require.Empty(t, readFacts(t, conn, "fact_aea"))
	})

	t.Run("no_columns_drops_table", func(t *testing.T) {
		d, err := NewDataset(log, "fact_aea", table.New())
		require.NoError(t, err)
		require.NoError(t, d.Replace(ctx, conn))
		require.False(t, tableExists(t, conn, "fact_aea"))
	})
}
