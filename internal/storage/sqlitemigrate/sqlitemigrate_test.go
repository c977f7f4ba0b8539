package sqlitemigrate

import (
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "migrate.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestApply_RunsEachMigrationOnce(t *testing.T) {
	db := openTestDB(t)
	fs := fstest.MapFS{
		"0001_init.sql": {Data: []byte(`
-- +migrate Up
CREATE TABLE things (id TEXT PRIMARY KEY);
-- +migrate Down
DROP TABLE things;
`)},
		"0002_add_column.sql": {Data: []byte(`
-- +migrate Up
ALTER TABLE things ADD COLUMN name TEXT;
`)},
	}

	if err := Apply(db, fs); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	// A second run must skip already-applied files.
	if err := Apply(db, fs); err != nil {
		t.Fatalf("Apply() rerun error = %v", err)
	}

	if _, err := db.Exec(`INSERT INTO things (id, name) VALUES ('a', 'b')`); err != nil {
		t.Fatalf("schema not applied: %v", err)
	}

	var applied int
	if err := db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&applied); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if applied != 2 {
		t.Errorf("applied migrations = %d, want 2", applied)
	}
}

func TestExtractUp_IgnoresDownSection(t *testing.T) {
	content := "-- +migrate Up\nCREATE TABLE a (id TEXT);\n-- +migrate Down\nDROP TABLE a;\n"

	up := extractUp(content)

	if up != "\nCREATE TABLE a (id TEXT);\n" {
		t.Errorf("extractUp() = %q", up)
	}
}

func TestApply_WholeFileWithoutMarkers(t *testing.T) {
	db := openTestDB(t)
	fs := fstest.MapFS{
		"0001_plain.sql": {Data: []byte(`CREATE TABLE plain (id TEXT PRIMARY KEY);`)},
	}

	if err := Apply(db, fs); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if _, err := db.Exec(`INSERT INTO plain (id) VALUES ('x')`); err != nil {
		t.Fatalf("schema not applied: %v", err)
	}
}
