//go:build integration

// Package pgtest starts a disposable Postgres for integration tests.
package pgtest

import (
	"context"
	"io/fs"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"orders-invoices/shared/pkg/pg"
)

// Start runs a postgres container, applies migrations from fsys/dir and
// returns a pool. Everything is torn down with t.Cleanup.
func Start(t *testing.T, fsys fs.FS, dir, table string) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, pg.Migrate(zerolog.Nop(), dsn, fsys, dir, table))

	pool, err := pg.Connect(ctx, zerolog.Nop(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}
