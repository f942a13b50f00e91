package db

import (
	"path/filepath"
	"testing"
)

func TestDatabase_MigrateIsIncremental(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "test.db")
	d, err := NewDatabase(path)
	if err != nil {
		t.Fatalf("NewDatabase: %v", err)
	}
	defer d.Close()

	migrations := []string{
		"CREATE TABLE a (id INTEGER PRIMARY KEY)",
		"CREATE TABLE b (id INTEGER PRIMARY KEY)",
	}
	if err := d.Migrate(migrations[:1]); err != nil {
		t.Fatalf("first Migrate: %v", err)
	}
	if v, _ := d.SchemaVersion(); v != 1 {
		t.Fatalf("version = %d, want 1", v)
	}

	// Re-running must skip migration 1, which would fail without IF NOT EXISTS.
	if err := d.Migrate(migrations); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	if v, _ := d.SchemaVersion(); v != 2 {
		t.Fatalf("version = %d, want 2", v)
	}
	if _, err := d.Exec("INSERT INTO b (id) VALUES (1)"); err != nil {
		t.Fatalf("insert into migrated table: %v", err)
	}
}

func TestDatabase_MigrateRejectsNewerSchema(t *testing.T) {
	d, err := NewDatabase(MemoryPath)
	if err != nil {
		t.Fatalf("NewDatabase: %v", err)
	}
	defer d.Close()

	if err := d.Migrate([]string{"CREATE TABLE a (id INTEGER)", "CREATE TABLE b (id INTEGER)"}); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if err := d.Migrate([]string{"CREATE TABLE a (id INTEGER)"}); err == nil {
		t.Fatalf("expected error for a schema newer than the migration list")
	}
}

func TestDatabase_FailedMigrationRollsBack(t *testing.T) {
	d, err := NewDatabase(MemoryPath)
	if err != nil {
		t.Fatalf("NewDatabase: %v", err)
	}
	defer d.Close()

	if err := d.Migrate([]string{"CREATE TABLE broken ("}); err == nil {
		t.Fatalf("expected syntax error")
	}
	if v, _ := d.SchemaVersion(); v != 0 {
		t.Fatalf("version = %d after failed migration, want 0", v)
	}
}
