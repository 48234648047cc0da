package warehouse

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/emissionslake/lake/etl/pkg/clickhouse"
	"github.com/emissionslake/lake/etl/pkg/pipeline"
	"github.com/emissionslake/lake/utils/pkg/retry"
)

// RecordRun appends the run summary, its file outcomes and the dimension member
// counts to the etl_* bookkeeping tables.
func (l *Loader) RecordRun(ctx context.Context, rep *pipeline.Report) error {
	files := rep.Files()
	var ok, failed uint32
	for _, o := range files {
		if o.OK() {
			ok++
		} else {
			failed++
		}
	}
	emptyDims := rep.EmptyDimensions
	if emptyDims == nil {
		emptyDims = []string{}
	}

	conn, err := l.cfg.Client.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()
	ctx = clickhouse.ContextWithSyncInsert(ctx)

	err = l.insert(ctx, conn, "etl_runs", [][]any{{
		rep.RunID,
		rep.StartedAt,
		rep.FinishedAt,
		rep.Stages,
		ok,
		failed,
		emptyDims,
	}})
	if err != nil {
		return err
	}

	recordedAt := l.cfg.Clock.Now().UTC()
	outcomes := make([][]any, 0, len(files))
	for _, o := range files {
		var msg string
		var okFlag uint8 = 1
		if o.Err != nil {
			msg = o.Err.Error()
			okFlag = 0
		}
		outcomes = append(outcomes, []any{
			rep.RunID,
			recordedAt,
			o.Stage,
			o.Family,
			o.Source,
			o.Key,
			uint64(o.RowsIn),
			uint64(o.RowsOut),
			okFlag,
			msg,
		})
	}
	if err := l.insert(ctx, conn, "etl_file_outcomes", outcomes); err != nil {
		return err
	}

	members := make([][]any, 0, len(rep.Dimensions))
	for _, d := range slices.Sorted(maps.Keys(rep.Dimensions)) {
		members = append(members, []any{rep.RunID, d, uint64(rep.Dimensions[d])})
	}
	if err := l.insert(ctx, conn, "etl_dimension_members", members); err != nil {
		return err
	}

	l.log.Info("warehouse: run recorded", "run_id", rep.RunID, "files_ok", ok, "files_failed", failed)
	return nil
}

func (l *Loader) insert(ctx context.Context, conn clickhouse.Connection, table string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	err := retry.Do(ctx, l.cfg.Retry, func() error {
		batch, err := conn.PrepareBatch(ctx, "INSERT INTO "+clickhouse.QuoteIdent(table))
		if err != nil {
			return fmt.Errorf("failed to prepare batch: %w", err)
		}
		defer batch.Close()
		for _, row := range rows {
			if err := batch.Append(row...); err != nil {
				return retry.Permanent(fmt.Errorf("failed to append row: %w", err))
			}
		}
		return batch.Send()
	})
	if err != nil {
		return fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return nil
}
