package clickhousetesting

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	tcch "github.com/testcontainers/testcontainers-go/modules/clickhouse"

	"github.com/emissionslake/lake/etl/pkg/clickhouse"
	"github.com/emissionslake/lake/utils/pkg/retry"
)

type DBConfig struct {
	Database       string
	Username       string
	Password       string
	Port           string
	ContainerImage string
}

func (cfg *DBConfig) Validate() error {
	if cfg.Database == "" {
		cfg.Database = "test"
	}
	if cfg.Username == "" {
		cfg.Username = "default"
	}
	if cfg.Password == "" {
		cfg.Password = "password"
	}
	if cfg.Port == "" {
		cfg.Port = "9000"
	}
	if cfg.ContainerImage == "" {
		cfg.ContainerImage = "clickhouse/clickhouse-server:latest"
	}
	return nil
}

// DB is a ClickHouse server in a container, shared by the tests of a package.
type DB struct {
	log       *slog.Logger
	cfg       *DBConfig
	addr      string
	container *tcch.ClickHouseContainer
}

// Addr returns the native protocol address (host:port).
func (db *DB) Addr() string {
	return db.addr
}

func (db *DB) Username() string {
	return db.cfg.Username
}

func (db *DB) Password() string {
	return db.cfg.Password
}

func (db *DB) MigrationConfig(database string) clickhouse.MigrationConfig {
	return clickhouse.MigrationConfig{
		Addr:     db.addr,
		Database: database,
		Username: db.cfg.Username,
		Password: db.cfg.Password,
	}
}

func (db *DB) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.container.Terminate(ctx); err != nil {
		db.log.Error("failed to terminate ClickHouse container", "error", err)
	}
}

// startRetry covers the container start and first connections, which fail
// transiently while the server boots.
var startRetry = retry.Config{MaxAttempts: 3, BaseBackoff: 500 * time.Millisecond, MaxBackoff: 3 * time.Second}

func NewDB(ctx context.Context, log *slog.Logger, cfg *DBConfig) (*DB, error) {
	if cfg == nil {
		cfg = &DBConfig{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate DB config: %w", err)
	}

	container, err := retry.DoValue(ctx, startRetry, func() (*tcch.ClickHouseContainer, error) {
		c, err := tcch.Run(ctx,
			cfg.ContainerImage,
			tcch.WithDatabase(cfg.Database),
			tcch.WithUsername(cfg.Username),
			tcch.WithPassword(cfg.Password),
		)
		if err != nil {
			if isRetryableStartErr(err) {
				return nil, retry.Retryable(err)
			}
			return nil, retry.Permanent(err)
		}
		return c, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start ClickHouse container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get ClickHouse container host: %w", err)
	}
	mappedPort, err := container.MappedPort(ctx, nat.Port(cfg.Port+"/tcp"))
	if err != nil {
		return nil, fmt.Errorf("failed to get ClickHouse container mapped port: %w", err)
	}

	return &DB{
		log:       log,
		cfg:       cfg,
		addr:      fmt.Sprintf("%s:%s", host, mappedPort.Port()),
		container: container,
	}, nil
}

// TestClientInfo holds a test client and its database name.
type TestClientInfo struct {
	Client   clickhouse.Client
	Database string
}

// NewTestClientWithInfo creates a client bound to a new random database that is dropped
// when the test ends.
func NewTestClientWithInfo(t *testing.T, db *DB) (*TestClientInfo, error) {
	admin, err := db.connect(t.Context(), db.cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to create ClickHouse admin client: %w", err)
	}

	database := "test_" + strings.ReplaceAll(uuid.New().String(), "-", "")
	adminConn, err := admin.Conn(t.Context())
	require.NoError(t, err)
	require.NoError(t, clickhouse.CreateDatabase(t.Context(), db.log, adminConn, database))

	client, err := db.connect(t.Context(), database)
	if err != nil {
		admin.Close()
		return nil, fmt.Errorf("failed to create ClickHouse client: %w", err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := adminConn.Exec(ctx, "DROP DATABASE IF EXISTS "+clickhouse.QuoteIdent(database)); err != nil {
			t.Errorf("failed to drop test database %s: %v", database, err)
		}
		client.Close()
		admin.Close()
	})

	return &TestClientInfo{Client: client, Database: database}, nil
}

func NewTestClient(t *testing.T, db *DB) (clickhouse.Client, error) {
	info, err := NewTestClientWithInfo(t, db)
	if err != nil {
		return nil, err
	}
	return info.Client, nil
}

func NewTestConn(t *testing.T, db *DB) (clickhouse.Connection, error) {
	client, err := NewTestClient(t, db)
	if err != nil {
		return nil, err
	}
	return client.Conn(t.Context())
}

func (db *DB) connect(ctx context.Context, database string) (clickhouse.Client, error) {
	return retry.DoValue(ctx, startRetry, func() (clickhouse.Client, error) {
		c, err := clickhouse.NewClient(ctx, db.log, db.addr, database, db.cfg.Username, db.cfg.Password, false)
		if err != nil {
			if isRetryableConnectionErr(err) {
				return nil, retry.Retryable(err)
			}
			return nil, retry.Permanent(err)
		}
		return c, nil
	})
}

func isRetryableStartErr(err error) bool {
	s := err.Error()
	return strings.Contains(s, "wait until ready") ||
		strings.Contains(s, "mapped port") ||
		strings.Contains(s, "timeout") ||
		strings.Contains(s, "context deadline exceeded") ||
		strings.Contains(s, "/containers/") && strings.Contains(s, "json")
}

func isRetryableConnectionErr(err error) bool {
	s := err.Error()
	return strings.Contains(s, "handshake") ||
		strings.Contains(s, "packet") ||
		strings.Contains(s, "failed to ping") ||
		strings.Contains(s, "connection refused") ||
		strings.Contains(s, "connection reset") ||
		strings.Contains(s, "dial tcp")
}
