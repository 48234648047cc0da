package dataset

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/emissionslake/lake/etl/pkg/clickhouse"
	"github.com/emissionslake/lake/etl/pkg/table"
)

// Dataset is a star-schema table (fact_* or dim_*) mirrored into ClickHouse.
// Its columns are inferred from the table contents on every load.
type Dataset struct {
	log   *slog.Logger
	name  string
	table *table.Table
	cols  []Column
}

func NewDataset(log *slog.Logger, name string, t *table.Table) (*Dataset, error) {
	if name == "" {
		return nil, errors.New("dataset name is required")
	}
	if t == nil {
		return nil, errors.New("table is required")
	}
	return &Dataset{
		log:   log,
		name:  name,
		table: t,
		cols:  InferColumns(t),
	}, nil
}

func (d *Dataset) TableName() string {
	return d.name
}

func (d *Dataset) StagingTableName() string {
	return "stg_" + d.name
}

func (d *Dataset) Columns() []Column {
	return d.cols
}

func (d *Dataset) createTableQuery(name string) string {
	defs := make([]string, len(d.cols))
	for i, c := range d.cols {
		defs[i] = fmt.Sprintf("%s %s", clickhouse.QuoteIdent(c.Name), c.Type)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s) ENGINE = MergeTree ORDER BY tuple()",
		clickhouse.QuoteIdent(name), strings.Join(defs, ", "))
}

func (d *Dataset) row(i int) ([]any, error) {
	r := d.table.Rows[i]
	values := make([]any, len(d.cols))
	for j, c := range d.cols {
		v, err := c.Value(r[j])
		if err != nil {
			return nil, err
		}
		values[j] = v
	}
	return values, nil
}
