// Package testhelper provides a shared Postgres for repository tests.
package testhelper

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/heartmarshall/engagement-backend/internal/adapter/postgres"
	"github.com/heartmarshall/engagement-backend/internal/config"
)

var (
	once      sync.Once
	sharedDSN string
	initErr   error
)

// SetupTestDB returns a pool on a Postgres container shared by the whole
// test binary, migrated with the embedded schema. Tests are skipped under
// -short. Each test gets its own pool, closed on cleanup; tests isolate
// their data by using fresh UUIDs rather than truncating.
func SetupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("testhelper: postgres container skipped in -short mode")
	}

	once.Do(func() {
		sharedDSN, initErr = startContainerAndMigrate()
	})
	if initErr != nil {
		t.Fatalf("testhelper: setup test DB: %v", initErr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := postgres.NewPool(ctx, config.DatabaseConfig{
		Driver:          config.DriverPostgres,
		DSN:             sharedDSN,
		MaxConns:        8,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: time.Minute,
	})
	if err != nil {
		t.Fatalf("testhelper: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func startContainerAndMigrate() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "engagement",
				"POSTGRES_PASSWORD": "engagement",
				"POSTGRES_DB":       "engagement_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		return "", fmt.Errorf("start container: %w", err)
	}

	endpoint, err := container.PortEndpoint(ctx, "5432/tcp", "")
	if err != nil {
		return "", fmt.Errorf("container endpoint: %w", err)
	}
	dsn := fmt.Sprintf("postgres://engagement:engagement@%s/engagement_test?sslmode=disable", endpoint)

	if _, err := postgres.Migrate(ctx, dsn); err != nil {
		return "", err
	}
	return dsn, nil
}

// RowExists reports whether table holds a row with the given id.
func RowExists(t *testing.T, pool *pgxpool.Pool, table string, id uuid.UUID) bool {
	t.Helper()
	var exists bool
	err := pool.QueryRow(context.Background(),
		fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE id = $1)`, pgx.Identifier{table}.Sanitize()),
		id,
	).Scan(&exists)
	if err != nil {
		t.Fatalf("testhelper: RowExists %s: %v", table, err)
	}
	return exists
}

// CountRows counts rows of table whose column equals value.
func CountRows(t *testing.T, pool *pgxpool.Pool, table, column string, value any) int {
	t.Helper()
	var n int
	err := pool.QueryRow(context.Background(),
		fmt.Sprintf(`SELECT count(*) FROM %s WHERE %s = $1`,
			pgx.Identifier{table}.Sanitize(), pgx.Identifier{column}.Sanitize()),
		value,
	).Scan(&n)
	if err != nil {
		t.Fatalf("testhelper: CountRows %s.%s: %v", table, column, err)
	}
	return n
}
