// Package storage persists check results and outage events in SQLite.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS check_results (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    host_name        TEXT    NOT NULL,
    host_address     TEXT    NOT NULL,
    timestamp        TEXT    NOT NULL,
    packets_sent     INTEGER NOT NULL CHECK(packets_sent >= 1),
    packets_received INTEGER NOT NULL CHECK(packets_received >= 0 AND packets_received <= packets_sent),
    success_rate     REAL    NOT NULL CHECK(success_rate >= 0 AND success_rate <= 100),
    min_latency      REAL,
    avg_latency      REAL,
    max_latency      REAL
);

CREATE INDEX IF NOT EXISTS idx_results_host_time ON check_results(host_address, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_results_time ON check_results(timestamp);

CREATE TABLE IF NOT EXISTS outage_events (
    id                    INTEGER PRIMARY KEY AUTOINCREMENT,
    host_name             TEXT    NOT NULL,
    host_address          TEXT    NOT NULL,
    start_time            TEXT    NOT NULL,
    end_time              TEXT,
    duration_seconds      REAL,
    checks_failed         INTEGER NOT NULL DEFAULT 1,
    checks_during_outage  INTEGER NOT NULL DEFAULT 1,
    recovery_success_rate REAL,
    event_type            TEXT    NOT NULL DEFAULT 'outage_start' CHECK(event_type IN ('outage_start', 'outage_end')),
    notes                 TEXT    NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_outages_host_start ON outage_events(host_address, start_time DESC);
CREATE UNIQUE INDEX IF NOT EXISTS idx_outages_active ON outage_events(host_address) WHERE end_time IS NULL;
`

// DB wraps a SQLite database.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and applies the schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite at %q: %w", path, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// Vacuum reclaims file space left behind by purged rows.
func (d *DB) Vacuum(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("vacuuming database: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

// timeLayout keeps the fractional part fixed-width so the stored TEXT
// sorts lexicographically; RFC3339Nano trims trailing zeros, which would
// break range predicates and ORDER BY on these columns.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		// Fallback to RFC3339 without sub-second precision.
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
		}
	}
	return t, nil
}
