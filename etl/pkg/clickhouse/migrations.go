package clickhouse

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/pressly/goose/v3"

	"github.com/emissionslake/lake/etl"
)

const migrationsDir = "db/clickhouse/migrations"

func CreateDatabase(ctx context.Context, log *slog.Logger, conn Connection, database string) error {
	log.Info("creating ClickHouse database", "database", database)
	return conn.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", QuoteIdent(database)))
}

type MigrationConfig struct {
	Addr     string
	Database string
	Username string
	Password string
	Secure   bool
}

// slogGooseLogger adapts slog.Logger to goose.Logger.
type slogGooseLogger struct {
	log *slog.Logger
}

func (l *slogGooseLogger) Fatalf(format string, v ...any) {
	l.log.Error(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l *slogGooseLogger) Printf(format string, v ...any) {
	l.log.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// RunMigrations applies every pending migration of the run bookkeeping tables.
func RunMigrations(ctx context.Context, log *slog.Logger, cfg MigrationConfig) error {
	log.Info("running ClickHouse migrations (up)")
	err := withGoose(log, cfg, func(db *sql.DB) error {
		return goose.UpContext(ctx, db, migrationsDir)
	})
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("ClickHouse migrations completed successfully")
	return nil
}

// Down rolls back the most recent migration.
func Down(ctx context.Context, log *slog.Logger, cfg MigrationConfig) error {
	log.Info("rolling back ClickHouse migration (down)")
	err := withGoose(log, cfg, func(db *sql.DB) error {
		return goose.DownContext(ctx, db, migrationsDir)
	})
	if err != nil {
		return fmt.Errorf("failed to roll back migration: %w", err)
	}
	return nil
}

// MigrationVersion returns the version of the most recently applied migration.
func MigrationVersion(ctx context.Context, log *slog.Logger, cfg MigrationConfig) (int64, error) {
	var version int64
	err := withGoose(log, cfg, func(db *sql.DB) error {
		var err error
		version, err = goose.GetDBVersionContext(ctx, db)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get migration version: %w", err)
	}
	return version, nil
}

// withGoose opens a database/sql handle for goose and points goose at the embedded migrations.
func withGoose(log *slog.Logger, cfg MigrationConfig, fn func(db *sql.DB) error) error {
	db := newSQLDB(cfg)
	defer db.Close()

	goose.SetLogger(&slogGooseLogger{log: log})
	goose.SetBaseFS(etl.ClickHouseMigrationsFS)
	if err := goose.SetDialect("clickhouse"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return fn(db)
}

func newSQLDB(cfg MigrationConfig) *sql.DB {
	options := &clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	}
	if cfg.Secure {
		options.TLS = &tls.Config{}
	}
	return clickhouse.OpenDB(options)
}
