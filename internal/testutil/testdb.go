package testutil

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/civicpulse/civicpulse/internal/db"
)

// OpenTestDB creates an in-memory SQLite DB and applies the ledger schema.
func OpenTestDB(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	// Every pooled connection would get its own :memory: database;
	// pin the pool to one connection so the schema is visible everywhere.
	conn.SetMaxOpenConns(1)

	_, _ = conn.Exec("PRAGMA foreign_keys = ON")

	if _, err := conn.Exec(db.Schema()); err != nil {
		conn.Close()
		t.Fatalf("apply schema: %v", err)
	}

	t.Cleanup(func() { conn.Close() })
	return conn
}

// OpenBareDB creates an in-memory SQLite DB without applying the
// schema, for exercising schema-missing behavior.
func OpenBareDB(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	conn.SetMaxOpenConns(1)

	t.Cleanup(func() { conn.Close() })
	return conn
}
