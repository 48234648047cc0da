package etl

import "embed"

//go:embed db/clickhouse/migrations/*.sql
var ClickHouseMigrationsFS embed.FS
