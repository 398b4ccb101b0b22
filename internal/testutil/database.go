package testutil

import (
	"database/sql"
	"os"
	"testing"

	_ "github.com/lib/pq"
)

// DefaultTestDSN points at a local rapidaid_test database. Override it with
// RAPIDAID_TEST_DATABASE_DSN.
const DefaultTestDSN = "host=localhost port=5432 user=rapidaid password=rapidaid dbname=rapidaid_test sslmode=disable"

// SetupTestDB connects to the integration test database and closes it when
// the test ends.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := os.Getenv("RAPIDAID_TEST_DATABASE_DSN")
	if dsn == "" {
		dsn = DefaultTestDSN
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Fatalf("Failed to ping test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// CleanupTable truncates table, logging rather than failing on error.
func CleanupTable(t *testing.T, db *sql.DB, table string) {
	t.Helper()
	if _, err := db.Exec("TRUNCATE TABLE " + table); err != nil {
		t.Logf("Warning: Failed to clean up %s: %v", table, err)
	}
}
