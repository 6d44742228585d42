// internal/db/db.go
package db

import (
	"database/sql"
	"fmt"
	"log"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// Open connects to the database for driver and applies the schema.
func Open(driver, dsn string) (*sql.DB, Dialect, error) {
	var dialect Dialect
	switch driver {
	case "postgres", "postgresql":
		dialect = Postgres
	case "sqlite", "sqlite3":
		dialect = SQLite
	default:
		return nil, "", fmt.Errorf("unsupported db driver %q", driver)
	}

	conn, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", dialect, err)
	}
	if dialect == SQLite {
		// One writer keeps conditional updates serialized and avoids SQLITE_BUSY.
		conn.SetMaxOpenConns(1)
		if _, err := conn.Exec(`PRAGMA journal_mode = WAL`); err != nil {
			conn.Close()
			return nil, "", fmt.Errorf("sqlite pragma: %w", err)
		}
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, "", fmt.Errorf("ping %s: %w", dialect, err)
	}
	if err := Migrate(conn, dialect); err != nil {
		conn.Close()
		return nil, "", err
	}

	log.Printf("✅ Connected to %s database", dialect)
	return conn, dialect, nil
}

// PostgresDSN builds a DSN from the DB_* variables the deployment provides.
func PostgresDSN(user, pass, host, port, name string) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, pass, host, port, name)
}

// Rebind rewrites ? placeholders into $n for Postgres.
func Rebind(d Dialect, query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Migrate creates the tables if they do not exist.
func Migrate(conn *sql.DB, d Dialect) error {
	timestamp := "TIMESTAMP"
	if d == Postgres {
		timestamp = "TIMESTAMPTZ"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS surveys (
			survey_id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			questions TEXT NOT NULL,
			start_date ` + timestamp + ` NOT NULL,
			end_date ` + timestamp + ` NOT NULL,
			timezone TEXT NOT NULL DEFAULT '',
			escalation_enabled BOOLEAN NOT NULL DEFAULT FALSE,
			escalation_delay_seconds BIGINT NOT NULL DEFAULT 0,
			created_at ` + timestamp + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS batches (
			batch_id TEXT PRIMARY KEY,
			survey_id TEXT NOT NULL,
			created_at ` + timestamp + ` NOT NULL,
			escalation_enabled BOOLEAN NOT NULL,
			escalation_delay_seconds BIGINT NOT NULL,
			channel_email BOOLEAN NOT NULL,
			channel_voice BOOLEAN NOT NULL,
			processed_at ` + timestamp + `
		)`,
		`CREATE INDEX IF NOT EXISTS idx_batches_survey ON batches(survey_id)`,
		`CREATE TABLE IF NOT EXISTS participants (
			participant_id TEXT PRIMARY KEY,
			batch_id TEXT NOT NULL,
			survey_id TEXT NOT NULL,
			email TEXT NOT NULL,
			phone TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			version INTEGER NOT NULL DEFAULT 0,
			sent_at ` + timestamp + ` NOT NULL,
			responded_at ` + timestamp + `,
			claimed_at ` + timestamp + `,
			called_at ` + timestamp + `,
			call_id TEXT NOT NULL DEFAULT '',
			call_result TEXT NOT NULL DEFAULT '',
			call_error TEXT NOT NULL DEFAULT '',
			answers TEXT NOT NULL DEFAULT '',
			transcript TEXT NOT NULL DEFAULT '',
			structured_answers TEXT NOT NULL DEFAULT '',
			updated_at ` + timestamp + ` NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_participants_batch ON participants(survey_id, batch_id)`,
		`CREATE INDEX IF NOT EXISTS idx_participants_call ON participants(call_id)`,
		`CREATE INDEX IF NOT EXISTS idx_participants_status ON participants(status)`,
		`CREATE TABLE IF NOT EXISTS reminder_marks (
			participant_id TEXT NOT NULL,
			reminder_type TEXT NOT NULL,
			sent_at ` + timestamp + ` NOT NULL,
			PRIMARY KEY (participant_id, reminder_type)
		)`,
		`CREATE TABLE IF NOT EXISTS call_events (
			id TEXT PRIMARY KEY,
			call_id TEXT NOT NULL,
			participant_id TEXT NOT NULL DEFAULT '',
			event_type TEXT NOT NULL,
			call_status TEXT NOT NULL DEFAULT '',
			transcript TEXT NOT NULL DEFAULT '',
			note TEXT NOT NULL DEFAULT '',
			received_at ` + timestamp + ` NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_call_events_call ON call_events(call_id)`,
	}
	for _, stmt := range stmts {
		if _, err := conn.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
