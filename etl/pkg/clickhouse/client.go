package clickhouse

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/emissionslake/lake/utils/pkg/retry"
)

const DefaultDatabase = "default"

// ContextWithSyncInsert returns a context whose inserts are visible to the next read.
func ContextWithSyncInsert(ctx context.Context) context.Context {
	return clickhouse.Context(ctx, clickhouse.WithSettings(clickhouse.Settings{
		"async_insert":                  0,
		"wait_for_async_insert":         1,
		"insert_deduplicate":            0, // reloading identical rows must not be dropped
		"select_sequential_consistency": 1,
	}))
}

// Client is a ClickHouse database handle.
type Client interface {
	Conn(ctx context.Context) (Connection, error)
	Close() error
}

// Connection is the subset of the driver used by the loaders.
type Connection interface {
	Exec(ctx context.Context, query string, args ...any) error
	Query(ctx context.Context, query string, args ...any) (driver.Rows, error)
	PrepareBatch(ctx context.Context, query string) (driver.Batch, error)
	Close() error
}

type client struct {
	conn driver.Conn
	log  *slog.Logger
}

type connection struct {
	conn driver.Conn
}

// NewClient opens a native-protocol connection and waits until the server answers a ping.
func NewClient(ctx context.Context, log *slog.Logger, addr string, database string, username string, password string, secure bool) (Client, error) {
	options := &clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 120,
		},
		DialTimeout: 5 * time.Second,
	}
	if secure {
		options.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open ClickHouse connection: %w", err)
	}

	if err := retry.Do(ctx, retry.DefaultConfig(), func() error { return conn.Ping(ctx) }); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	log.Info("ClickHouse client initialized", "addr", addr, "database", database, "secure", secure)

	return &client{
		conn: conn,
		log:  log,
	}, nil
}

func (c *client) Conn(ctx context.Context) (Connection, error) {
	return &connection{conn: c.conn}, nil
}

func (c *client) Close() error {
	return c.conn.Close()
}

func (c *connection) Exec(ctx context.Context, query string, args ...any) error {
	return c.conn.Exec(ctx, query, args...)
}

func (c *connection) Query(ctx context.Context, query string, args ...any) (driver.Rows, error) {
	return c.conn.Query(ctx, query, args...)
}

func (c *connection) PrepareBatch(ctx context.Context, query string) (driver.Batch, error) {
	return c.conn.PrepareBatch(ctx, query)
}

// Close is a no-op: connections share the client's pool.
func (c *connection) Close() error {
	return nil
}

var identEscaper = strings.NewReplacer("\\", "\\\\", "`", "\\`")

// QuoteIdent quotes a table or column name. Source column names contain spaces and
// parentheses, so every identifier is quoted.
func QuoteIdent(name string) string {
	return "`" + identEscaper.Replace(name) + "`"
}
