//go:build integration

package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

func TestPostgres(t *testing.T) {
	ctx := context.Background()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("promptrun"),
		postgres.WithUsername("promptrun"),
		postgres.WithPassword("promptrun"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	runLedgerSuite(t, func(t *testing.T) Ledger {
		s, err := OpenPostgres(ctx, dsn)
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })

		_, err = s.DB().ExecContext(ctx, "TRUNCATE completed_tasks")
		require.NoError(t, err)
		return s
	})
}
