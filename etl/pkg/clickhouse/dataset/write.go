package dataset

import (
	"context"
	"fmt"

	"github.com/emissionslake/lake/etl/pkg/clickhouse"
)

// Replace makes the ClickHouse table hold exactly the dataset's rows.
//
// Rows are loaded into a staging table that is then exchanged with the live table, so
// readers see either the previous or the new contents. Every step is safe to repeat.
// A dataset without columns cannot be represented and drops the live table instead.
func (d *Dataset) Replace(ctx context.Context, conn clickhouse.Connection) error {
	live := clickhouse.QuoteIdent(d.TableName())
	staging := clickhouse.QuoteIdent(d.StagingTableName())

	if len(d.cols) == 0 {
		d.log.Warn("dataset has no columns, dropping table", "table", d.TableName())
		if err := conn.Exec(ctx, "DROP TABLE IF EXISTS "+live); err != nil {
			return fmt.Errorf("failed to drop %s: %w", d.TableName(), err)
		}
		return nil
	}

	if err := conn.Exec(ctx, "DROP TABLE IF EXISTS "+staging); err != nil {
		return fmt.Errorf("failed to drop staging table: %w", err)
	}
	if err := conn.Exec(ctx, d.createTableQuery(d.StagingTableName())); err != nil {
		return fmt.Errorf("failed to create staging table: %w", err)
	}
	if err := d.WriteBatch(ctx, conn, d.StagingTableName()); err != nil {
		return err
	}
	if err := conn.Exec(ctx, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s AS %s", live, staging)); err != nil {
		return fmt.Errorf("failed to create %s: %w", d.TableName(), err)
	}
	if err := conn.Exec(ctx, fmt.Sprintf("EXCHANGE TABLES %s AND %s", staging, live)); err != nil {
		return fmt.Errorf("failed to swap %s into place: %w", d.TableName(), err)
	}
	if err := conn.Exec(ctx, "DROP TABLE IF EXISTS "+staging); err != nil {
		return fmt.Errorf("failed to drop previous %s: %w", d.TableName(), err)
	}

	d.log.Debug("replaced table", "table", d.TableName(), "rows", d.table.Len(), "columns", len(d.cols))
	return nil
}

// WriteBatch inserts every row of the dataset into target using a single batch.
func (d *Dataset) WriteBatch(ctx context.Context, conn clickhouse.Connection, target string) error {
	count := d.table.Len()
	if count == 0 {
		return nil
	}

	batch, err := conn.PrepareBatch(ctx, "INSERT INTO "+clickhouse.QuoteIdent(target))
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	defer batch.Close()

	for i := range count {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled during batch insert: %w", ctx.Err())
		default:
		}

		row, err := d.row(i)
		if err != nil {
			return fmt.Errorf("failed to convert row %d: %w", i, err)
		}
		if err := batch.Append(row...); err != nil {
			return fmt.Errorf("failed to append row %d: %w", i, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}
