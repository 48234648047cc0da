package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "emissions_etl_build_info",
			Help: "Build information of the emissions ETL",
		},
		[]string{"version", "commit", "date"},
	)

	FilesProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emissions_etl_files_processed_total",
			Help: "Total number of source files processed per stage",
		},
		[]string{"stage", "status"},
	)

	RowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emissions_etl_rows_total",
			Help: "Total number of rows read and written per stage",
		},
		[]string{"stage", "direction"},
	)

	RowsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emissions_etl_rows_dropped_total",
			Help: "Total number of rows removed during curation, by reason",
		},
		[]string{"reason"},
	)

	CellsNulledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "emissions_etl_cells_nulled_total",
			Help: "Total number of cells that failed numeric coercion and became null",
		},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "emissions_etl_stage_duration_seconds",
			Help:    "Duration of pipeline stages",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~82s
		},
		[]string{"stage"},
	)

	DimensionMembers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "emissions_etl_dimension_members",
			Help: "Number of distinct members in each dimension table after the last flush",
		},
		[]string{"dimension"},
	)

	WarehouseLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emissions_etl_warehouse_loads_total",
			Help: "Total number of tables loaded into ClickHouse",
		},
		[]string{"kind", "status"},
	)
)

func Status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusOK
}
