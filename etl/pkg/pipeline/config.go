package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/emissionslake/lake/etl/pkg/curation"
	"github.com/emissionslake/lake/etl/pkg/normalize"
	"github.com/emissionslake/lake/etl/pkg/standardize"
	"github.com/emissionslake/lake/etl/pkg/store"
)

// Warehouse receives every fact and dimension table a run produces.
type Warehouse interface {
	LoadFact(ctx context.Context, fact *normalize.FactTable) error
	LoadDimension(ctx context.Context, dim *normalize.DimensionTable) error
}

type Config struct {
	Logger *slog.Logger
	Store  store.Store
	Layout store.Layout
	Clock  clockwork.Clock

	// Concurrency bounds how many files of a stage are processed at once. Defaults to 1.
	Concurrency int

	// Families are the raw source families to curate. Defaults to every family with a
	// curation rule.
	Families []string

	Curation   *curation.Engine
	Mapper     *standardize.Mapper
	Normalizer *normalize.Engine

	// Warehouse is optional.
	Warehouse Warehouse

	// OnFileError is called for every failed file outcome. Optional.
	OnFileError func(FileOutcome)
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Store == nil {
		return errors.New("store is required")
	}
	if cfg.Layout == (store.Layout{}) {
		cfg.Layout = store.DefaultLayout()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Curation == nil {
		cfg.Curation = curation.NewEngine(nil)
	}
	if cfg.Mapper == nil {
		cfg.Mapper = standardize.NewMapper(nil)
	}
	if cfg.Normalizer == nil {
		cfg.Normalizer = normalize.NewEngine(normalize.DefaultSchema())
	}
	if len(cfg.Families) == 0 {
		cfg.Families = cfg.Curation.Registry().Families()
	}
	return nil
}
