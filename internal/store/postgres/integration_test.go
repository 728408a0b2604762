//go:build integration

package postgres

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/alanyoungcy/ftarb/internal/domain"
)

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "ftarb",
				"POSTGRES_PASSWORD": "ftarb",
				"POSTGRES_DB":       "ftarb",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, DSN(ClientConfig{
		Host: host, Port: port.Int(), Database: "ftarb", User: "ftarb", Password: "ftarb",
	}))
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestIntegration_ScanStoreRoundTrip(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()

	require.NoError(t, Migrate(ctx, pool))
	require.NoError(t, Migrate(ctx, pool), "migrations are idempotent")

	store := NewScanStore(pool)
	res := sampleResult()
	require.NoError(t, store.Save(ctx, res))
	assert.Error(t, store.Save(ctx, res), "run ids are unique")

	runs, err := store.ListRuns(ctx, domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, res.Summary, runs[0].Summary)
	assert.True(t, res.Timestamp.Equal(runs[0].CreatedAt))

	opps, err := store.ListOpportunities(ctx, domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	require.Len(t, opps, 1)
	assert.Equal(t, "BoJ decision in March?", opps[0].Title)
	assert.Equal(t, res.Opportunities[0].Comparisons, opps[0].Comparisons)

	audit := NewAuditStore(pool)
	require.NoError(t, audit.Log(ctx, "scan_completed", map[string]any{"run_id": res.RunID}))
	entries, err := audit.List(ctx, domain.ListOpts{Limit: 1})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "scan_completed", entries[0].Event)
}
