package database

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"

	"github.com/fogwell/fogwell/internal/common/util"
)

const testConnectionEnvVar = "FOGWELL_TEST_POSTGRES"

// WithTestDb spins up a dedicated Postgres database for a test, applies migrations and runs action against it.
// The server is taken from FOGWELL_TEST_POSTGRES (a libpq connection string) and defaults to localhost.
// The test is skipped if the server cannot be reached.
func WithTestDb(t *testing.T, namespace string, migrations []Migration, action func(db *pgxpool.Pool) error) error {
	ctx := context.Background()

	connectionString := os.Getenv(testConnectionEnvVar)
	if connectionString == "" {
		connectionString = "host=localhost port=5432 user=postgres password=psw sslmode=disable"
	}
	db, err := pgx.Connect(ctx, connectionString)
	if err != nil {
		t.Skipf("postgres not available: %s", err)
		return nil
	}
	defer db.Close(ctx)

	// Connect and create a dedicated database for the test
	dbName := "test_" + util.NewULID()
	_, err = db.Exec(ctx, "CREATE DATABASE "+dbName)
	if err != nil {
		return errors.WithStack(err)
	}

	// Connect again: this time to the database we just created.  This is the database we use for tests
	testDbPool, err := pgxpool.Connect(ctx, connectionString+" dbname="+dbName)
	if err != nil {
		return errors.WithStack(err)
	}

	defer func() {
		testDbPool.Close()
		// disconnect all db user before cleanup
		_, err = db.Exec(ctx,
			`SELECT pg_terminate_backend(pg_stat_activity.pid)
			 FROM pg_stat_activity WHERE pg_stat_activity.datname = '`+dbName+`';`)
		if err != nil {
			fmt.Println("Failed to disconnect users")
		}

		_, err = db.Exec(ctx, "DROP DATABASE "+dbName)
		if err != nil {
			fmt.Println("Failed to drop database")
		}
	}()

	err = UpdateDatabase(ctx, testDbPool, namespace, migrations)
	if err != nil {
		return errors.WithStack(err)
	}

	return action(testDbPool)
}
