package db

import (
	"path/filepath"
	"testing"
)

func TestRebind(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		in      string
		want    string
	}{
		{"sqlite untouched", SQLite, "SELECT * FROM t WHERE a=? AND b=?", "SELECT * FROM t WHERE a=? AND b=?"},
		{"postgres numbered", Postgres, "SELECT * FROM t WHERE a=? AND b IN (?, ?)", "SELECT * FROM t WHERE a=$1 AND b IN ($2, $3)"},
		{"no placeholders", Postgres, "SELECT 1", "SELECT 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Rebind(tt.dialect, tt.in); got != tt.want {
				t.Errorf("Rebind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, _, err := Open("oracle", "dsn"); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestOpenSQLiteMigratesTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "migrate.db")
	conn, dialect, err := Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()
	if dialect != SQLite {
		t.Fatalf("dialect = %q", dialect)
	}
	if err := Migrate(conn, dialect); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	var n int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM participants`).Scan(&n); err != nil {
		t.Fatalf("participants table missing: %v", err)
	}
}

func TestPostgresDSN(t *testing.T) {
	got := PostgresDSN("u", "p", "localhost", "5432", "surveys")
	want := "postgres://u:p@localhost:5432/surveys?sslmode=disable"
	if got != want {
		t.Errorf("PostgresDSN() = %q, want %q", got, want)
	}
}
