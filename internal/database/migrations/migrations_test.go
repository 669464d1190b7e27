package migrations

import (
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func TestUp_FreshDatabase(t *testing.T) {
	db := openTestDB(t)

	if err := Up(db); err != nil {
		t.Fatalf("Up() failed: %v", err)
	}

	for _, table := range []string{"rules", "rule_conditions", "file_records", "scan_runs", "schema_migrations"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s was not created: %v", table, err)
		}
	}
}

func TestCheckStatus(t *testing.T) {
	db := openTestDB(t)

	if err := CheckStatus(db); !errors.Is(err, ErrNoVersion) {
		t.Fatalf("CheckStatus() on fresh database = %v, want ErrNoVersion", err)
	}

	if err := Up(db); err != nil {
		t.Fatalf("Up() failed: %v", err)
	}
	if err := CheckStatus(db); err != nil {
		t.Errorf("CheckStatus() after Up = %v", err)
	}
}

func TestUp_Idempotent(t *testing.T) {
	db := openTestDB(t)

	if err := Up(db); err != nil {
		t.Fatalf("first Up() failed: %v", err)
	}
	if err := Up(db); err != nil {
		t.Errorf("second Up() failed: %v", err)
	}
}

func TestLatestVersion(t *testing.T) {
	v, err := LatestVersion()
	if err != nil {
		t.Fatalf("LatestVersion() failed: %v", err)
	}
	if v < 1 {
		t.Errorf("LatestVersion() = %d, want >= 1", v)
	}
}

func TestSchema_RuleConditionsCascade(t *testing.T) {
	db := openTestDB(t)
	if err := Up(db); err != nil {
		t.Fatalf("Up() failed: %v", err)
	}

	mustExec(t, db, `INSERT INTO rules (id, name, destination_key, destination_name, created_at)
		VALUES ('r1', 'PDFs', 'documents', 'Documents', datetime('now'))`)
	mustExec(t, db, `INSERT INTO rule_conditions (rule_id, position, type, value)
		VALUES ('r1', 0, 'extensionEquals', 'pdf')`)
	mustExec(t, db, `DELETE FROM rules WHERE id = 'r1'`)

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM rule_conditions").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("rule_conditions has %d rows after deleting rule, want 0", n)
	}
}

func TestSchema_ConditionRequiresRule(t *testing.T) {
	db := openTestDB(t)
	if err := Up(db); err != nil {
		t.Fatalf("Up() failed: %v", err)
	}

	_, err := db.Exec(`INSERT INTO rule_conditions (rule_id, position, type, value)
		VALUES ('missing', 0, 'extensionEquals', 'pdf')`)
	if err == nil {
		t.Error("expected foreign key violation, insert succeeded")
	}
}

func TestSchema_RecordPathUnique(t *testing.T) {
	db := openTestDB(t)
	if err := Up(db); err != nil {
		t.Fatalf("Up() failed: %v", err)
	}

	insert := `INSERT INTO file_records (id, path, name, location, location_key, status)
		VALUES (?, '/home/u/Downloads/a.pdf', 'a.pdf', 'downloads', 'downloads', 'pending')`
	mustExec(t, db, insert, "rec-1")
	if _, err := db.Exec(insert, "rec-2"); err == nil {
		t.Error("expected unique constraint violation for duplicate path")
	}
}

func TestSchema_RejectsUnknownStatus(t *testing.T) {
	db := openTestDB(t)
	if err := Up(db); err != nil {
		t.Fatalf("Up() failed: %v", err)
	}

	_, err := db.Exec(`INSERT INTO file_records (id, path, name, location, location_key, status)
		VALUES ('rec-1', '/a', 'a', 'unknown', '/', 'moved')`)
	if err == nil {
		t.Error("expected check constraint violation for unknown status")
	}
}

func mustExec(t *testing.T, db *sql.DB, query string, args ...any) {
	t.Helper()
	if _, err := db.Exec(query, args...); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}

// openTestDB opens a single-connection in-memory database with foreign keys on.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}
	return db
}
