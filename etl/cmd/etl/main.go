package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/emissionslake/lake/etl/pkg/clickhouse"
	"github.com/emissionslake/lake/etl/pkg/metrics"
	"github.com/emissionslake/lake/etl/pkg/pipeline"
	"github.com/emissionslake/lake/etl/pkg/store"
	"github.com/emissionslake/lake/etl/pkg/warehouse"
	"github.com/emissionslake/lake/utils/pkg/logger"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultDataDir  = "data"
	stageAll        = "all"
	sentryFlushWait = 5 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "Enable verbose (debug) logging")
	logFormatFlag := flag.String("log-format", logger.FormatText, "Log format: text or json")
	metricsAddrFlag := flag.String("metrics-addr", "", "Address to listen on for prometheus metrics (or set METRICS_ADDR env var)")

	// Pipeline configuration
	stageFlag := flag.String("stage", stageAll, "Stage to run: curate, standardize, normalize or all")
	dataDirFlag := flag.String("data-dir", defaultDataDir, "Root directory of the local data lake (or set ETL_DATA_DIR env var)")
	s3BucketFlag := flag.String("s3-bucket", "", "Read and write the data lake in this S3 bucket instead of --data-dir (or set ETL_S3_BUCKET env var)")
	s3PrefixFlag := flag.String("s3-prefix", "", "Key prefix inside the S3 bucket (or set ETL_S3_PREFIX env var)")
	concurrencyFlag := flag.Int("concurrency", 1, "Number of files processed concurrently per stage (or set ETL_CONCURRENCY env var)")

	// ClickHouse configuration
	clickhouseAddrFlag := flag.String("clickhouse-addr", "", "ClickHouse address (host:port); loading is skipped when empty (or set CLICKHOUSE_ADDR_TCP env var)")
	clickhouseDatabaseFlag := flag.String("clickhouse-database", clickhouse.DefaultDatabase, "ClickHouse database name (or set CLICKHOUSE_DATABASE env var)")
	clickhouseUsernameFlag := flag.String("clickhouse-username", "default", "ClickHouse username (or set CLICKHOUSE_USERNAME env var)")
	clickhousePasswordFlag := flag.String("clickhouse-password", "", "ClickHouse password (or set CLICKHOUSE_PASSWORD env var)")
	clickhouseSecureFlag := flag.Bool("clickhouse-secure", false, "Enable TLS for ClickHouse Cloud (or set CLICKHOUSE_SECURE=true env var)")

	// Commands
	clickhouseMigrateFlag := flag.Bool("clickhouse-migrate", false, "Run ClickHouse migrations for the run bookkeeping tables and exit")
	resetDBFlag := flag.Bool("reset-db", false, "Drop all star-schema tables (dim_*, fact_*, stg_*) and exit")
	dryRunFlag := flag.Bool("dry-run", false, "Dry run mode - show what would be done without actually executing")
	yesFlag := flag.Bool("yes", false, "Skip confirmation prompt (use with caution)")

	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	log, err := logger.NewWithOptions(logger.Options{Verbose: *verboseFlag, Format: *logFormatFlag})
	if err != nil {
		return err
	}

	// Override flags with environment variables if set
	if v := os.Getenv("ETL_DATA_DIR"); v != "" {
		*dataDirFlag = v
	}
	if v := os.Getenv("ETL_S3_BUCKET"); v != "" {
		*s3BucketFlag = v
	}
	if v := os.Getenv("ETL_S3_PREFIX"); v != "" {
		*s3PrefixFlag = v
	}
	if v := os.Getenv("ETL_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid ETL_CONCURRENCY %q: %w", v, err)
		}
		*concurrencyFlag = n
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		*metricsAddrFlag = v
	}
	if v := os.Getenv("CLICKHOUSE_ADDR_TCP"); v != "" {
		*clickhouseAddrFlag = v
	}
	if v := os.Getenv("CLICKHOUSE_DATABASE"); v != "" {
		*clickhouseDatabaseFlag = v
	}
	if v := os.Getenv("CLICKHOUSE_USERNAME"); v != "" {
		*clickhouseUsernameFlag = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		*clickhousePasswordFlag = v
	}
	if os.Getenv("CLICKHOUSE_SECURE") == "true" {
		*clickhouseSecureFlag = true
	}

	stages, err := parseStage(*stageFlag)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	migrationCfg := clickhouse.MigrationConfig{
		Addr:     *clickhouseAddrFlag,
		Database: *clickhouseDatabaseFlag,
		Username: *clickhouseUsernameFlag,
		Password: *clickhousePasswordFlag,
		Secure:   *clickhouseSecureFlag,
	}

	if *clickhouseMigrateFlag {
		if *clickhouseAddrFlag == "" {
			return fmt.Errorf("--clickhouse-addr is required for --clickhouse-migrate")
		}
		return clickhouse.RunMigrations(ctx, log, migrationCfg)
	}

	var chClient clickhouse.Client
	if *clickhouseAddrFlag != "" {
		chClient, err = clickhouse.NewClient(ctx, log, *clickhouseAddrFlag, *clickhouseDatabaseFlag, *clickhouseUsernameFlag, *clickhousePasswordFlag, *clickhouseSecureFlag)
		if err != nil {
			return err
		}
		defer chClient.Close()
	}

	if *resetDBFlag {
		if chClient == nil {
			return fmt.Errorf("--clickhouse-addr is required for --reset-db")
		}
		conn, err := chClient.Conn(ctx)
		if err != nil {
			return fmt.Errorf("failed to get ClickHouse connection: %w", err)
		}
		_, err = clickhouse.ResetTables(ctx, log, conn, *clickhouseDatabaseFlag, clickhouse.ResetOptions{
			DryRun:      *dryRunFlag,
			SkipConfirm: *yesFlag,
			In:          os.Stdin,
			Out:         os.Stdout,
		})
		return err
	}

	// Start metrics server
	if *metricsAddrFlag != "" {
		metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		go func() {
			listener, err := net.Listen("tcp", *metricsAddrFlag)
			if err != nil {
				log.Error("failed to start prometheus metrics server listener", "error", err)
				return
			}
			log.Info("prometheus metrics server listening", "address", listener.Addr().String())
			http.Handle("/metrics", promhttp.Handler())
			if err := http.Serve(listener, nil); err != nil {
				log.Error("failed to start prometheus metrics server", "error", err)
			}
		}()
	}

	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              dsn,
			Release:          version,
			TracesSampleRate: 1.0,
		}); err != nil {
			return fmt.Errorf("failed to initialize sentry: %w", err)
		}
		defer sentry.Flush(sentryFlushWait)
		log.Info("sentry initialized")
	}

	st, err := newStore(ctx, log, *dataDirFlag, *s3BucketFlag, *s3PrefixFlag)
	if err != nil {
		return err
	}

	cfg := pipeline.Config{
		Logger:      log,
		Store:       st,
		Concurrency: *concurrencyFlag,
		OnFileError: reportFileError,
	}

	var loader *warehouse.Loader
	if chClient != nil {
		if err := clickhouse.RunMigrations(ctx, log, migrationCfg); err != nil {
			return err
		}
		loader, err = warehouse.NewLoader(warehouse.LoaderConfig{
			Logger: log,
			Client: chClient,
		})
		if err != nil {
			return fmt.Errorf("failed to create warehouse loader: %w", err)
		}
		cfg.Warehouse = loader
	}

	p, err := pipeline.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	span := sentry.StartTransaction(ctx, "etl.run")
	span.SetTag("stage", *stageFlag)
	rep, runErr := p.Run(span.Context(), stages...)
	if runErr != nil {
		span.Status = sentry.SpanStatusInternalError
	} else {
		span.Status = sentry.SpanStatusOK
	}
	span.Finish()

	if rep != nil {
		if loader != nil {
			if err := loader.RecordRun(context.WithoutCancel(ctx), rep); err != nil {
				log.Error("failed to record run", "run_id", rep.RunID, "error", err)
			}
		}
		if err := rep.WriteSummary(os.Stdout); err != nil {
			log.Warn("failed to write run summary", "error", err)
		}
	}
	if runErr != nil {
		sentry.CaptureException(runErr)
		return runErr
	}
	return nil
}

func parseStage(s string) ([]string, error) {
	switch s {
	case stageAll, "":
		return nil, nil
	case pipeline.StageCurate, pipeline.StageStandardize, pipeline.StageNormalize:
		return []string{s}, nil
	}
	return nil, fmt.Errorf("invalid --stage %q: want curate, standardize, normalize or all", s)
}

func newStore(ctx context.Context, log *slog.Logger, dataDir, bucket, prefix string) (store.Store, error) {
	if bucket != "" {
		s, err := store.NewS3StoreFromEnv(ctx, bucket, prefix)
		if err != nil {
			return nil, err
		}
		log.Info("using S3 data lake", "bucket", bucket, "prefix", prefix)
		return s, nil
	}
	s, err := store.NewLocalStore(dataDir)
	if err != nil {
		return nil, err
	}
	log.Info("using local data lake", "root", s.Root())
	return s, nil
}

// reportFileError sends a failed file to Sentry. It is a no-op when Sentry is not initialized.
func reportFileError(o pipeline.FileOutcome) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("stage", o.Stage)
		scope.SetTag("family", o.Family)
		scope.SetTag("source", o.Source)
		scope.SetExtra("key", o.Key)
		sentry.CaptureException(o.Err)
	})
}
