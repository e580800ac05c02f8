package cache

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// Runs only against a disposable database: JOBSEEKER_TEST_DATABASE_URL=postgres://...
func TestStorePostgresBackend(t *testing.T) {
	dsn := os.Getenv("JOBSEEKER_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("JOBSEEKER_TEST_DATABASE_URL is not set")
	}

	ctx := context.Background()
	pool, err := NewPostgresPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	pg := NewPostgres(pool)
	require.NoError(t, pg.Migrate(ctx))

	runBackendSuite(t, func(t *testing.T) Backend {
		_, err := pool.Exec(ctx, `TRUNCATE cache_entries, job_postings`)
		require.NoError(t, err)
		return pg
	})
}
