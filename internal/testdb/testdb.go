// Package testdb gives integration tests a migrated PostgreSQL pool.
// Tests are skipped unless PG_TEST_URL points at a disposable database.
package testdb

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/seatshare/internal/db"
	"github.com/dmitrymomot/seatshare/pkg/pg"
)

const envURL = "PG_TEST_URL"

var (
	migrateOnce sync.Once
	migrateErr  error
)

// Open connects to PG_TEST_URL and applies the embedded migrations once per process.
func Open(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url := os.Getenv(envURL)
	if url == "" {
		t.Skip(envURL + " is not set")
	}

	cfg := pg.Config{
		ConnectionString:  url,
		MaxOpenConns:      10,
		MaxIdleConns:      1,
		HealthCheckPeriod: time.Minute,
		MaxConnIdleTime:   time.Minute,
		MaxConnLifetime:   10 * time.Minute,
		LockTimeout:       5 * time.Second,
		RetryAttempts:     1,
		RetryInterval:     time.Second,
		MigrationsTable:   "schema_migrations",
	}

	ctx := context.Background()
	pool, err := pg.Connect(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	migrateOnce.Do(func() {
		migrateErr = pg.Migrate(ctx, pool, cfg, db.Migrations, db.MigrationsDir, slog.Default())
	})
	require.NoError(t, migrateErr)

	return pool
}
