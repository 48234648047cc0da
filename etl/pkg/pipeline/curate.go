package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/emissionslake/lake/etl/pkg/metrics"
	"github.com/emissionslake/lake/etl/pkg/store"
)

// Curate cleans every raw file of every configured family into the curated area,
// one output file per input file under the same name.
func (p *Pipeline) Curate(ctx context.Context, rep *Report) error {
	for _, family := range p.cfg.Families {
		dir := p.cfg.Layout.RawDir(family)
		names, err := p.cfg.Store.List(ctx, dir)
		if err != nil {
			return fmt.Errorf("failed to list %s: %w", dir, err)
		}
		if len(names) == 0 {
			p.log.Warn("no raw files for family", "family", family, "dir", dir)
			continue
		}

		outcomes := make([]FileOutcome, len(names))
		err = forEach(ctx, p.cfg.Concurrency, names, func(ctx context.Context, i int, name string) {
			outcomes[i] = p.curateFile(ctx, family, name)
		})
		p.recordAll(rep, outcomes)
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) curateFile(ctx context.Context, family, name string) FileOutcome {
	o := FileOutcome{
		Stage:  StageCurate,
		Family: family,
		Source: store.SourceID(name),
		Key:    path.Join(p.cfg.Layout.CuratedDir(family), name),
	}

	data, err := p.cfg.Store.Get(ctx, path.Join(p.cfg.Layout.RawDir(family), name))
	if err != nil {
		o.Err = err
		return o
	}
	res, err := p.cfg.Curation.CurateCSV(bytes.NewReader(data), family, o.Source)
	if err != nil {
		o.Err = err
		return o
	}
	o.RowsIn, o.RowsOut = res.RowsIn, res.RowsOut()

	metrics.RowsDroppedTotal.WithLabelValues("filtered").Add(float64(res.Filtered))
	metrics.RowsDroppedTotal.WithLabelValues("empty").Add(float64(res.EmptyDropped))
	metrics.RowsDroppedTotal.WithLabelValues("null_key").Add(float64(res.NullKeyDropped))
	metrics.RowsDroppedTotal.WithLabelValues("duplicate").Add(float64(res.Duplicates))
	metrics.CellsNulledTotal.Add(float64(res.CoercionNulls))
	if res.CoercionNulls > 0 {
		p.log.Debug("unparseable numeric cells set to null", "source", o.Source, "cells", res.CoercionNulls)
	}

	o.Err = p.writeTable(ctx, o.Key, res.Table)
	return o
}

// recordAll records the outcomes of a stage in input order. Outcomes never started
// because the context was cancelled are skipped.
func (p *Pipeline) recordAll(rep *Report, outcomes []FileOutcome) {
	for _, o := range outcomes {
		if o.Stage == "" {
			continue
		}
		p.record(rep, o)
	}
}
