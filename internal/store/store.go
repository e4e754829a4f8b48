// Package store provides SQLite-backed persistence for engagic: cities,
// meetings, agenda items, the processing queue, and the summary cache.
package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence for engagic state.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS cities (
	banana TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	state TEXT NOT NULL,
	vendor TEXT NOT NULL,
	vendor_slug TEXT NOT NULL,
	county TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'active',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (name, state)
);

CREATE TABLE IF NOT EXISTS city_zipcodes (
	city_banana TEXT NOT NULL REFERENCES cities(banana) ON DELETE CASCADE,
	zipcode TEXT NOT NULL,
	is_primary BOOLEAN NOT NULL DEFAULT 0,
	PRIMARY KEY (city_banana, zipcode)
);

CREATE INDEX IF NOT EXISTS idx_city_zipcodes_zipcode ON city_zipcodes(zipcode);

CREATE TABLE IF NOT EXISTS meetings (
	id TEXT PRIMARY KEY,
	city_banana TEXT NOT NULL REFERENCES cities(banana) ON DELETE CASCADE,
	title TEXT NOT NULL,
	meeting_date DATETIME,
	agenda_url TEXT NOT NULL DEFAULT '',
	packet_url TEXT NOT NULL DEFAULT '',
	summary TEXT,
	participation TEXT NOT NULL DEFAULT '{}',
	meeting_status TEXT NOT NULL DEFAULT '',
	topics TEXT NOT NULL DEFAULT '[]',
	processing_status TEXT NOT NULL DEFAULT 'pending',
	processing_method TEXT,
	processing_time REAL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_meetings_city_banana ON meetings(city_banana);
CREATE INDEX IF NOT EXISTS idx_meetings_date ON meetings(meeting_date);

CREATE TABLE IF NOT EXISTS agenda_items (
	id TEXT PRIMARY KEY,
	meeting_id TEXT NOT NULL REFERENCES meetings(id) ON DELETE CASCADE,
	title TEXT NOT NULL,
	sequence INTEGER NOT NULL DEFAULT 0,
	attachments TEXT NOT NULL DEFAULT '[]',
	summary TEXT,
	topics TEXT NOT NULL DEFAULT '[]',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_agenda_items_meeting_id ON agenda_items(meeting_id);

CREATE TABLE IF NOT EXISTS processing_queue (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source_url TEXT NOT NULL UNIQUE,
	meeting_id TEXT NOT NULL DEFAULT '',
	city_banana TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'pending',
	priority INTEGER NOT NULL DEFAULT 0,
	retry_count INTEGER NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	processing_metadata TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	started_at DATETIME,
	completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_queue_status_priority ON processing_queue(status, priority DESC);
CREATE INDEX IF NOT EXISTS idx_queue_city_banana ON processing_queue(city_banana);

CREATE TABLE IF NOT EXISTS processing_cache (
	packet_url TEXT PRIMARY KEY,
	content_hash TEXT NOT NULL DEFAULT '',
	processing_method TEXT NOT NULL DEFAULT '',
	processing_time REAL NOT NULL DEFAULT 0,
	cache_hit_count INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	last_accessed DATETIME NOT NULL DEFAULT (datetime('now'))
);
`

// Open opens (creating if absent) the SQLite database at dbPath in WAL mode
// with a busy timeout, then applies the schema and any pending migrations.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// migrate applies additive schema changes for databases created before a
// given column existed, guarding each ALTER TABLE with a pragma_table_info
// probe so repeated runs against an up-to-date database are no-ops.
func migrate(db *sql.DB) error {
	type columnAdd struct {
		table  string
		column string
		ddl    string
	}
	additions := []columnAdd{
		{"cities", "county", `ALTER TABLE cities ADD COLUMN county TEXT NOT NULL DEFAULT ''`},
		{"cities", "last_synced_at", `ALTER TABLE cities ADD COLUMN last_synced_at DATETIME`},
		{"meetings", "meeting_status", `ALTER TABLE meetings ADD COLUMN meeting_status TEXT NOT NULL DEFAULT ''`},
		{"processing_queue", "processing_metadata", `ALTER TABLE processing_queue ADD COLUMN processing_metadata TEXT NOT NULL DEFAULT '{}'`},
	}

	for _, add := range additions {
		var count int
		query := fmt.Sprintf(`SELECT COUNT(*) FROM pragma_table_info('%s') WHERE name = ?`, add.table)
		if err := db.QueryRow(query, add.column).Scan(&count); err != nil {
			return fmt.Errorf("probe %s.%s: %w", add.table, add.column, err)
		}
		if count > 0 {
			continue
		}
		if _, err := db.Exec(add.ddl); err != nil {
			return fmt.Errorf("add %s.%s: %w", add.table, add.column, err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for callers that need raw access
// (migrations tooling, health checks).
func (s *Store) DB() *sql.DB {
	return s.db
}
