package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/emissionslake/lake/etl/pkg/metrics"
	"github.com/emissionslake/lake/etl/pkg/table"
)

// Pipeline runs the curate, standardize and normalize stages over a store.
type Pipeline struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{
		log: cfg.Logger,
		cfg: cfg,
	}, nil
}

// Run executes the given stages in pipeline order; with no stages it runs all of them.
// Per-file failures are recorded in the report and never stop the run. The returned
// error is non-nil only when ctx is cancelled or a stage cannot enumerate its inputs.
func (p *Pipeline) Run(ctx context.Context, stages ...string) (*Report, error) {
	if len(stages) == 0 {
		stages = Stages
	}
	for _, s := range stages {
		if !slices.Contains(Stages, s) {
			return nil, fmt.Errorf("unknown stage %q", s)
		}
	}

	rep := newReport(uuid.New(), p.cfg.Clock.Now().UTC(), stages)
	p.log.Info("starting run", "run_id", rep.RunID, "stages", stages, "concurrency", p.cfg.Concurrency)

	var err error
	for _, stage := range Stages {
		if !slices.Contains(stages, stage) {
			continue
		}
		start := p.cfg.Clock.Now()
		switch stage {
		case StageCurate:
			err = p.Curate(ctx, rep)
		case StageStandardize:
			err = p.Standardize(ctx, rep)
		case StageNormalize:
			err = p.Normalize(ctx, rep)
		}
		metrics.StageDuration.WithLabelValues(stage).Observe(p.cfg.Clock.Since(start).Seconds())
		if err != nil {
			err = fmt.Errorf("%s stage: %w", stage, err)
			break
		}
	}

	rep.FinishedAt = p.cfg.Clock.Now().UTC()
	failed := len(rep.Failed())
	ok := len(rep.Files()) - failed
	p.log.Info("run finished", "run_id", rep.RunID, "files_ok", ok, "files_failed", failed, "duration", rep.Duration())
	return rep, err
}

// forEach runs fn for every item with bounded concurrency. fn reports failures through
// its outcome, so only context cancellation stops the loop early.
func forEach[T any](ctx context.Context, limit int, items []T, fn func(ctx context.Context, i int, item T)) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, item := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fn(gctx, i, item)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// record adds o to the report, logs it and updates metrics.
func (p *Pipeline) record(rep *Report, o FileOutcome) {
	rep.add(o)
	metrics.FilesProcessedTotal.WithLabelValues(o.Stage, metrics.Status(o.Err)).Inc()
	if o.Err != nil {
		p.log.Error("file failed", "stage", o.Stage, "family", o.Family, "source", o.Source, "error", o.Err)
		if p.cfg.OnFileError != nil {
			p.cfg.OnFileError(o)
		}
		return
	}
	metrics.RowsTotal.WithLabelValues(o.Stage, "in").Add(float64(o.RowsIn))
	metrics.RowsTotal.WithLabelValues(o.Stage, "out").Add(float64(o.RowsOut))
	p.log.Debug("file done", "stage", o.Stage, "family", o.Family, "source", o.Source, "key", o.Key, "rows_in", o.RowsIn, "rows_out", o.RowsOut)
}

func (p *Pipeline) readTable(ctx context.Context, key string, d table.Dialect) (*table.Table, []byte, error) {
	data, err := p.cfg.Store.Get(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	t, err := table.ReadCSV(bytes.NewReader(data), d)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse %s: %w", key, err)
	}
	return t, data, nil
}

func (p *Pipeline) writeTable(ctx context.Context, key string, t *table.Table) error {
	var buf bytes.Buffer
	if err := table.WriteCSV(&buf, t); err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return p.cfg.Store.Put(ctx, key, buf.Bytes())
}
