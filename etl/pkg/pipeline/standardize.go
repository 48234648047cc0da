package pipeline

import (
	"context"
	"fmt"
	"path"

	"github.com/emissionslake/lake/etl/pkg/store"
	"github.com/emissionslake/lake/etl/pkg/table"
)

// Standardize maps every curated file of every family into the canonical schema and
// writes it to the single standardized area. Files of already-canonical sources are
// copied byte for byte.
func (p *Pipeline) Standardize(ctx context.Context, rep *Report) error {
	for _, family := range p.cfg.Families {
		dir := p.cfg.Layout.CuratedDir(family)
		names, err := p.cfg.Store.List(ctx, dir)
		if err != nil {
			return fmt.Errorf("failed to list %s: %w", dir, err)
		}

		outcomes := make([]FileOutcome, len(names))
		err = forEach(ctx, p.cfg.Concurrency, names, func(ctx context.Context, i int, name string) {
			outcomes[i] = p.standardizeFile(ctx, family, name)
		})
		p.recordAll(rep, outcomes)
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) standardizeFile(ctx context.Context, family, name string) FileOutcome {
	o := FileOutcome{
		Stage:  StageStandardize,
		Family: family,
		Source: store.SourceID(name),
		Key:    path.Join(p.cfg.Layout.Standardized, name),
	}

	t, data, err := p.readTable(ctx, path.Join(p.cfg.Layout.CuratedDir(family), name), table.Dialect{})
	if err != nil {
		o.Err = err
		return o
	}
	o.RowsIn = t.Len()

	if p.cfg.Mapper.IsCanonical(o.Source) {
		o.RowsOut = o.RowsIn
		o.Err = p.cfg.Store.Put(ctx, o.Key, data)
		return o
	}

	res, err := p.cfg.Mapper.Standardize(t, o.Source)
	if err != nil {
		o.Err = fmt.Errorf("failed to standardize %s: %w", o.Source, err)
		return o
	}
	o.RowsOut = res.Table.Len()
	o.Err = p.writeTable(ctx, o.Key, res.Table)
	return o
}
