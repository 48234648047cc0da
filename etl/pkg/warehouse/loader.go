package warehouse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/emissionslake/lake/etl/pkg/clickhouse"
	"github.com/emissionslake/lake/etl/pkg/clickhouse/dataset"
	"github.com/emissionslake/lake/etl/pkg/normalize"
	"github.com/emissionslake/lake/etl/pkg/table"
	"github.com/emissionslake/lake/utils/pkg/retry"
)

type LoaderConfig struct {
	Logger *slog.Logger
	Client clickhouse.Client
	Retry  retry.Config
	Clock  clockwork.Clock
}

func (cfg *LoaderConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Client == nil {
		return errors.New("clickhouse client is required")
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Loader mirrors the star schema into ClickHouse. Every table load replaces the
// previous contents of the table, so loading the same run twice is harmless.
type Loader struct {
	log *slog.Logger
	cfg LoaderConfig
}

func NewLoader(cfg LoaderConfig) (*Loader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Loader{
		log: cfg.Logger,
		cfg: cfg,
	}, nil
}

func (l *Loader) LoadFact(ctx context.Context, fact *normalize.FactTable) error {
	return l.replace(ctx, fact.Name, fact.Table)
}

func (l *Loader) LoadDimension(ctx context.Context, dim *normalize.DimensionTable) error {
	return l.replace(ctx, dim.Name(), dim.Table)
}

func (l *Loader) replace(ctx context.Context, name string, t *table.Table) error {
	ds, err := dataset.NewDataset(l.log, name, t)
	if err != nil {
		return err
	}

	start := l.cfg.Clock.Now()
	err = retry.Do(ctx, l.cfg.Retry, func() error {
		conn, err := l.cfg.Client.Conn(ctx)
		if err != nil {
			return fmt.Errorf("failed to get connection: %w", err)
		}
		defer conn.Close()
		return ds.Replace(clickhouse.ContextWithSyncInsert(ctx), conn)
	})
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", name, err)
	}

	l.log.Info("warehouse: table loaded",
		"table", name,
		"rows", t.Len(),
		"columns", len(ds.Columns()),
		"duration", l.cfg.Clock.Since(start).Round(time.Millisecond))
	return nil
}
