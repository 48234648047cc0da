package warehouse

import (
	"bytes"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/emissionslake/lake/etl/pkg/clickhouse"
	"github.com/emissionslake/lake/etl/pkg/normalize"
	"github.com/emissionslake/lake/etl/pkg/pipeline"
	"github.com/emissionslake/lake/etl/pkg/store"
	"github.com/emissionslake/lake/etl/pkg/table"
	"github.com/emissionslake/lake/utils/pkg/retry"
	laketesting "github.com/emissionslake/lake/utils/pkg/testing"
)

const netEmissionsCSV = `freq,airpol,geo,Geopolitical entity (reporting),TIME_PERIOD,OBS_VALUE
A,GHG,EU27_2020,European Union - 27 countries (from 2020),2019,3400
A,GHG,FR,France,2019,400
A,GHG,FR,France,2020,
`

func newTestLoader(t *testing.T) (*Loader, clickhouse.Connection) {
	t.Helper()
	client := laketesting.NewClient(t, sharedDB)
	loader, err := NewLoader(LoaderConfig{
		Logger: laketesting.NewLogger(),
		Client: client,
		Retry:  retry.Config{MaxAttempts: 2, BaseBackoff: 10 * time.Millisecond, MaxBackoff: 50 * time.Millisecond},
		Clock:  clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)
	conn, err := client.Conn(t.Context())
	require.NoError(t, err)
	return loader, conn
}

func count(t *testing.T, conn clickhouse.Connection, query string, args ...any) uint64 {
	t.Helper()
	rows, err := conn.Query(t.Context(), query, args...)
	require.NoError(t, err)
	defer rows.Close()
	require.True(t, rows.Next())
	var n uint64
	require.NoError(t, rows.Scan(&n))
	return n
}

func TestETL_Warehouse_LoaderConfig_Validate(t *testing.T) {
	t.Parallel()

	cfg := LoaderConfig{}
	require.Error(t, cfg.Validate())

	cfg = LoaderConfig{Logger: laketesting.NewLogger()}
	require.Error(t, cfg.Validate())

	cfg = LoaderConfig{Logger: laketesting.NewLogger(), Client: laketesting.NewClient(t, sharedDB)}
	require.NoError(t, cfg.Validate())
	require.Equal(t, retry.DefaultConfig(), cfg.Retry)
	require.NotNil(t, cfg.Clock)
}

func TestETL_Warehouse_LoadFactAndDimension(t *testing.T) {
	t.Parallel()
	loader, conn := newTestLoader(t)
	ctx := t.Context()

	fact := table.New("airpol", "geo", "TIME_PERIOD", "OBS_VALUE")
	require.NoError(t, fact.AppendStrings("GHG", "DE", "2019", "120.5"))
	require.NoError(t, fact.AppendStrings("GHG", "FR", "2019", "400"))
	require.NoError(t, loader.LoadFact(ctx, &normalize.FactTable{Name: "fact_aea", SourceID: "env_ac_ainah_r2", Table: fact}))
	require.Equal(t, uint64(2), count(t, conn, "SELECT count() FROM fact_aea"))

	geo := table.New("geo", "Geopolitical entity (reporting)")
	require.NoError(t, geo.AppendStrings("DE", "Germany"))
	dim := &normalize.DimensionTable{
		Dimension: normalize.Dimension{Key: "geo", CodeColumn: "geo", DescriptionColumn: "Geopolitical entity (reporting)"},
		Table:     geo,
	}
	require.NoError(t, loader.LoadDimension(ctx, dim))
	require.Equal(t, uint64(1), count(t, conn, "SELECT count() FROM dim_geo WHERE `Geopolitical entity (reporting)` = 'Germany'"))

	t.Run("reload_replaces", func(t *testing.T) {
		require.NoError(t, geo.AppendStrings("FR", "France"))
		require.NoError(t, loader.LoadDimension(ctx, dim))
		require.NoError(t, loader.LoadDimension(ctx, dim))
		require.Equal(t, uint64(2), count(t, conn, "SELECT count() FROM dim_geo"))
	})
}

func TestETL_Warehouse_PipelineRunRecorded(t *testing.T) {
	t.Parallel()
	loader, conn := newTestLoader(t)
	ctx := t.Context()

	s, err := store.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "raw/eurostat/sdg_13_10.csv", []byte(netEmissionsCSV)))

	p, err := pipeline.New(pipeline.Config{
		Logger:    laketesting.NewLogger(),
		Store:     s,
		Clock:     clockwork.NewFakeClock(),
		Warehouse: loader,
	})
	require.NoError(t, err)
	rep, err := p.Run(ctx)
	require.NoError(t, err)
	require.Empty(t, rep.Failed())

	loadOK, loadFailed := rep.Count(pipeline.StageLoad)
	require.Positive(t, loadOK)
	require.Zero(t, loadFailed)

	facts, err := s.Get(ctx, "fact/fact_ghe.csv")
	require.NoError(t, err)
	factTable, err := table.ReadCSV(bytes.NewReader(facts), table.Dialect{})
	require.NoError(t, err)
	require.Equal(t, uint64(factTable.Len()), count(t, conn, "SELECT count() FROM fact_ghe"))
	require.Equal(t, uint64(rep.Dimensions["geo"]), count(t, conn, "SELECT count() FROM dim_geo"))

	require.NoError(t, loader.RecordRun(ctx, rep))

	runID := rep.RunID.String()
	require.Equal(t, uint64(1), count(t, conn, "SELECT count() FROM etl_runs WHERE toString(run_id) = ?", runID))
	require.Equal(t, uint64(len(rep.Files())), count(t, conn, "SELECT count() FROM etl_file_outcomes WHERE toString(run_id) = ?", runID))
	require.Equal(t, uint64(0), count(t, conn, "SELECT count() FROM etl_file_outcomes WHERE toString(run_id) = ? AND ok = 0", runID))

	rows, err := conn.Query(ctx, "SELECT dimension, members FROM etl_dimension_members WHERE toString(run_id) = ? ORDER BY dimension", runID)
	require.NoError(t, err)
	defer rows.Close()
	got := make(map[string]int)
	for rows.Next() {
		var dim string
		var members uint64
		require.NoError(t, rows.Scan(&dim, &members))
		got[dim] = int(members)
	}
	require.NoError(t, rows.Err())
	require.Equal(t, rep.Dimensions, got)

	rows2, err := conn.Query(ctx, "SELECT empty_dimensions FROM etl_runs WHERE toString(run_id) = ?", runID)
	require.NoError(t, err)
	defer rows2.Close()
	require.True(t, rows2.Next())
	var empty []string
	require.NoError(t, rows2.Scan(&empty))
	require.ElementsMatch(t, rep.EmptyDimensions, empty)
}
