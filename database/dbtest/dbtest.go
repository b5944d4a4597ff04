// Package dbtest opens migrated SQLite databases for tests.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/billbatista/clubledger/database"
)

// New returns a migrated SQLite database in a temporary directory.
func New(t testing.TB) *database.DB {
	t.Helper()
	db, err := database.Open("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}
	return db
}

// CreateUser inserts a bare user and returns its id.
func CreateUser(t testing.TB, db database.Querier, username string) int64 {
	t.Helper()
	var id int64
	err := db.QueryRowContext(context.Background(),
		`INSERT INTO users (username, name, email) VALUES ($1, $2, $3) RETURNING id`,
		username, username, username+"@example.com",
	).Scan(&id)
	if err != nil {
		t.Fatalf("creating user %s: %v", username, err)
	}
	return id
}
