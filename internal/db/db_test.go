package db

import (
	"path/filepath"
	"testing"
)

func TestInitCreatesParentAndSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "civicpulse.db")
	if err := Init(path); err != nil {
		t.Fatalf("init: %v", err)
	}

	conn, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	var name string
	err = conn.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'documents'`).Scan(&name)
	if err != nil {
		t.Fatalf("documents table missing: %v", err)
	}
}

func TestInitIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "civicpulse.db")
	if err := Init(path); err != nil {
		t.Fatalf("first init: %v", err)
	}

	conn, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := conn.Exec(`INSERT INTO documents (id, source_id, file_url, content_hash, bytes_size, created_at)
		VALUES ('d1', 'src', 'https://x.gov/a.pdf', 'abc', 3, '2025-11-06T00:00:00Z')`); err != nil {
		conn.Close()
		t.Fatalf("insert: %v", err)
	}
	conn.Close()

	if err := Init(path); err != nil {
		t.Fatalf("second init: %v", err)
	}

	conn, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer conn.Close()

	var n int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("documents = %d, want 1 (re-init must not drop data)", n)
	}
}
