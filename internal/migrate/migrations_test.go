package migrate

import (
	"strings"
	"testing"

	"bidline/internal/db"
)

func TestMigrationsLoadPerDialect(t *testing.T) {
	for _, d := range []db.Dialect{db.SQLite, db.Postgres} {
		ms, err := loadMigrations(d)
		if err != nil {
			t.Fatalf("%s: %v", d, err)
		}
		if len(ms) != 2 || ms[0].Version != 1 || ms[1].Version != 2 {
			t.Fatalf("%s: expected migrations 1 and 2, got %+v", d, ms)
		}
		if !strings.Contains(ms[0].UpSQL, "CREATE TABLE contracts") {
			t.Fatalf("%s: contracts table missing", d)
		}
		if !strings.Contains(ms[1].UpSQL, "CREATE TABLE documents") {
			t.Fatalf("%s: documents table missing", d)
		}
	}
}

func TestMigrateIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()
	for i := 0; i < 2; i++ {
		if err := Migrate(conn, db.SQLite); err != nil {
			t.Fatalf("migrate pass %d: %v", i, err)
		}
	}
	v, err := Version(conn)
	if err != nil {
		t.Fatal(err)
	}
	if v != 2 {
		t.Fatalf("version = %d", v)
	}
	for _, table := range []string{"actors", "api_keys", "projects", "bids", "contracts", "events", "relay_cursors",
		"documents", "actor_profiles", "provider_portfolio", "provider_experience", "provider_education", "provider_certifications"} {
		var name string
		if err := conn.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name); err != nil {
			t.Fatalf("table %s: %v", table, err)
		}
	}
}
