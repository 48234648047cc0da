package laketesting

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/emissionslake/lake/etl/pkg/clickhouse"
	clickhousetesting "github.com/emissionslake/lake/etl/pkg/clickhouse/testing"
)

// ClientInfo holds a test client and its database name.
type ClientInfo struct {
	Client   clickhouse.Client
	Database string
}

func NewClient(t *testing.T, db *clickhousetesting.DB) clickhouse.Client {
	return NewClientWithInfo(t, db).Client
}

// NewClientWithInfo creates a client on a fresh database with the run bookkeeping
// migrations applied.
func NewClientWithInfo(t *testing.T, db *clickhousetesting.DB) *ClientInfo {
	info, err := clickhousetesting.NewTestClientWithInfo(t, db)
	require.NoError(t, err)

	err = clickhouse.RunMigrations(t.Context(), NewLogger(), db.MigrationConfig(info.Database))
	require.NoError(t, err)

	return &ClientInfo{
		Client:   info.Client,
		Database: info.Database,
	}
}
