package testdb

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"campusevents/internal/store"
)

var (
	sharedContainer *PostgresContainer
	sharedErr       error
	sharedOnce      sync.Once
)

// PostgresContainer wraps the postgres testcontainer and a migrated pool.
type PostgresContainer struct {
	Container *postgres.PostgresContainer
	DB        *store.DB
	DSN       string
}

// SetupSharedPostgres starts one migrated PostgreSQL container per test binary.
// Tests are skipped when no container provider is reachable.
//
// IMPORTANT: Tests using the shared container CANNOT run in parallel!
//
// Usage:
//
//	func TestRepo(t *testing.T) {
//	    pg := testdb.SetupSharedPostgres(t)
//
//	    t.Run("Case", func(t *testing.T) {
//	        pg.Reset(t)
//	        // ... test
//	    })
//	}
func SetupSharedPostgres(t *testing.T) *PostgresContainer {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	sharedOnce.Do(func() {
		ctx := context.Background()
		pgContainer, err := postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("campus"),
			postgres.WithUsername("postgres"),
			postgres.WithPassword("postgres"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2),
			),
		)
		if err != nil {
			sharedErr = err
			return
		}

		connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			sharedErr = err
			return
		}

		db, err := store.NewDB(ctx, connStr, 20)
		if err != nil {
			sharedErr = err
			return
		}
		if err := db.Migrate(ctx); err != nil {
			sharedErr = err
			return
		}

		sharedContainer = &PostgresContainer{Container: pgContainer, DB: db, DSN: connStr}
	})

	require.NoError(t, sharedErr, "start postgres container")
	return sharedContainer
}

// Reset truncates every campus table and restarts the id sequences.
func (pc *PostgresContainer) Reset(t *testing.T) {
	t.Helper()
	_, err := pc.DB.Client.ExecContext(context.Background(),
		"TRUNCATE feedback, attendance, registrations, students, events, colleges RESTART IDENTITY CASCADE")
	require.NoError(t, err, "failed to truncate tables")
}
