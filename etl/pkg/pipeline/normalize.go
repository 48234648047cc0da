package pipeline

import (
	"context"
	"fmt"
	"path"

	"github.com/emissionslake/lake/etl/pkg/metrics"
	"github.com/emissionslake/lake/etl/pkg/normalize"
	"github.com/emissionslake/lake/etl/pkg/store"
	"github.com/emissionslake/lake/etl/pkg/table"
)

type normalized struct {
	outcome FileOutcome
	load    *FileOutcome
	x       *normalize.Extraction
}

// Normalize decomposes every standardized file into its fact table and dimension
// contributions. Files are extracted and their facts written concurrently; the
// contributions are then merged in file order and flushed once into dimension tables.
func (p *Pipeline) Normalize(ctx context.Context, rep *Report) error {
	dir := p.cfg.Layout.Standardized
	names, err := p.cfg.Store.List(ctx, dir)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", dir, err)
	}

	results := make([]normalized, len(names))
	err = forEach(ctx, p.cfg.Concurrency, names, func(ctx context.Context, i int, name string) {
		results[i] = p.normalizeFile(ctx, name)
	})
	for _, r := range results {
		if r.outcome.Stage == "" {
			continue
		}
		p.record(rep, r.outcome)
		if r.load != nil {
			p.record(rep, *r.load)
		}
	}
	if err != nil {
		return err
	}

	schema := p.cfg.Normalizer.Schema()
	acc := normalize.NewAccumulators(schema.Dimensions)
	for _, r := range results {
		if r.x != nil {
			acc.Merge(r.x)
		}
	}
	flushed := acc.Flush()
	p.log.Debug("dimensions flushed", "result", flushed.String())

	for _, dim := range flushed.Tables {
		p.writeDimension(ctx, rep, dim)
	}
	for _, key := range flushed.Empty {
		p.log.Warn("dimension received no contributions", "dimension", key)
		metrics.DimensionMembers.WithLabelValues(key).Set(0)
	}
	rep.EmptyDimensions = append(rep.EmptyDimensions, flushed.Empty...)
	return ctx.Err()
}

func (p *Pipeline) normalizeFile(ctx context.Context, name string) normalized {
	sourceID := store.SourceID(name)
	o := FileOutcome{Stage: StageNormalize, Source: sourceID}

	t, _, err := p.readTable(ctx, path.Join(p.cfg.Layout.Standardized, name), table.Dialect{})
	if err != nil {
		o.Err = err
		return normalized{outcome: o}
	}
	x := p.cfg.Normalizer.Extract(t, sourceID)
	o.Key = path.Join(p.cfg.Layout.Fact, x.Fact.FileName())
	o.RowsIn, o.RowsOut = t.Len(), x.Fact.Table.Len()

	if err := p.writeTable(ctx, o.Key, x.Fact.Table); err != nil {
		o.Err = err
		return normalized{outcome: o}
	}

	res := normalized{outcome: o, x: x}
	if p.cfg.Warehouse != nil {
		load := FileOutcome{Stage: StageLoad, Source: sourceID, Key: x.Fact.Name, RowsIn: o.RowsOut, RowsOut: o.RowsOut}
		load.Err = p.cfg.Warehouse.LoadFact(ctx, x.Fact)
		metrics.WarehouseLoadsTotal.WithLabelValues("fact", metrics.Status(load.Err)).Inc()
		res.load = &load
	}
	return res
}

func (p *Pipeline) writeDimension(ctx context.Context, rep *Report, dim *normalize.DimensionTable) {
	members := dim.Table.Len()
	o := FileOutcome{
		Stage:   StageNormalize,
		Source:  dim.Name(),
		Key:     path.Join(p.cfg.Layout.Dim, dim.FileName()),
		RowsIn:  dim.Contributed,
		RowsOut: members,
	}
	o.Err = p.writeTable(ctx, o.Key, dim.Table)
	p.record(rep, o)
	if o.Err != nil {
		return
	}

	rep.Dimensions[dim.Dimension.Key] = members
	metrics.DimensionMembers.WithLabelValues(dim.Dimension.Key).Set(float64(members))
	p.log.Info("dimension written", "dimension", dim.Dimension.Key, "members", members, "sources", len(dim.Sources))

	if p.cfg.Warehouse != nil {
		load := FileOutcome{Stage: StageLoad, Source: dim.Name(), Key: dim.Name(), RowsIn: members, RowsOut: members}
		load.Err = p.cfg.Warehouse.LoadDimension(ctx, dim)
		metrics.WarehouseLoadsTotal.WithLabelValues("dimension", metrics.Status(load.Err)).Inc()
		p.record(rep, load)
	}
}
