package testdb

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/phrazzld/bookrender/internal/platform/postgres"
	"github.com/phrazzld/bookrender/internal/redact"
)

// TestTimeout bounds connecting and migrating the test database.
const TestTimeout = 30 * time.Second

// urlEnvVars are checked in order for the test database URL.
var urlEnvVars = []string{"DATABASE_URL", "BOOKRENDER_DATABASE_URL"}

// GetTestDatabaseURL returns the first configured test database URL, or "".
func GetTestDatabaseURL() string {
	for _, name := range urlEnvVars {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// ShouldSkipDatabaseTest reports whether no test database is configured.
func ShouldSkipDatabaseTest() bool {
	return GetTestDatabaseURL() == ""
}

// GetTestDBWithT opens the test database and migrates it to the latest
// schema. The test is skipped when no database is configured and fails if
// the database cannot be reached. The connection is closed on cleanup.
func GetTestDBWithT(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := GetTestDatabaseURL()
	if dbURL == "" {
		t.Skip("Skipping database test - DATABASE_URL environment variable required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()

	db, err := postgres.Open(ctx, dbURL, 4, 5*time.Second)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %s", redact.Error(err))
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := postgres.Migrate(ctx, db, "up", nil); err != nil {
		t.Fatalf("Failed to migrate test database: %s", redact.Error(err))
	}

	return db
}

// WithTx runs fn inside a transaction that is rolled back afterwards, so
// rows written by fn never outlive the test.
func WithTx(t *testing.T, db *sql.DB, fn func(t *testing.T, tx *sql.Tx)) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("Failed to begin transaction: %s", redact.Error(err))
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			t.Errorf("Failed to roll back transaction: %s", redact.Error(err))
		}
	}()

	fn(t, tx)
}
