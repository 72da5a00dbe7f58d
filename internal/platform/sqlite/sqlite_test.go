package sqlite

import (
	"path/filepath"
	"testing"
)

func TestOpen_Memory(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = db.Close() }()

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM jobs`).Scan(&n); err != nil {
		t.Fatalf("query jobs table: %v", err)
	}
	if n != 0 {
		t.Errorf("expected empty jobs table, got %d rows", n)
	}
}

func TestOpen_FileReopenSkipsAppliedMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "jobs.db")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	_ = db.Close()

	db, err = Open(path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer func() { _ = db.Close() }()

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n); err != nil {
		t.Fatalf("query migrations: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 applied migration, got %d", n)
	}
}
