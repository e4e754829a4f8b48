// Package ratelimit provides a persistent sliding-window request limiter
// keyed by client identifier, surviving process restarts by keeping its
// counters in their own SQLite file rather than in memory.
package ratelimit

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS rate_limit_requests (
	client_id TEXT NOT NULL,
	requested_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rate_limit_requests_client ON rate_limit_requests(client_id, requested_at);
`

// Limiter enforces a fixed request count per client within a rolling time
// window. A request older than the window is forgotten the next time that
// client is checked, so the window slides continuously rather than
// resetting at fixed boundaries.
type Limiter struct {
	db     *sql.DB
	limit  int
	window time.Duration
	mu     sync.Mutex
}

// Open creates or opens the rate-limit database at path and returns a
// Limiter enforcing at most limit requests per client per window.
func Open(path string, limit int, window time.Duration) (*Limiter, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ratelimit: init schema: %w", err)
	}

	return &Limiter{db: db, limit: limit, window: window}, nil
}

// Close releases the underlying database handle.
func (l *Limiter) Close() error {
	return l.db.Close()
}

// Allow records a request attempt for clientID and reports whether it is
// within the limit. It first evicts requests that have aged out of the
// window, then counts what remains: if the count has already reached the
// limit the request is denied (remaining 0) and not recorded; otherwise
// the request is recorded and the number of requests still available in
// the current window is returned.
func (l *Limiter) Allow(clientID string) (allowed bool, remaining int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.Begin()
	if err != nil {
		return false, 0, fmt.Errorf("ratelimit: begin: %w", err)
	}
	defer tx.Rollback()

	cutoff := time.Now().Add(-l.window)
	if _, err := tx.Exec(`DELETE FROM rate_limit_requests WHERE client_id = ? AND requested_at < ?`, clientID, cutoff); err != nil {
		return false, 0, fmt.Errorf("ratelimit: evict expired: %w", err)
	}

	var count int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM rate_limit_requests WHERE client_id = ?`, clientID).Scan(&count); err != nil {
		return false, 0, fmt.Errorf("ratelimit: count: %w", err)
	}

	if count >= l.limit {
		return false, 0, tx.Commit()
	}

	if _, err := tx.Exec(`INSERT INTO rate_limit_requests (client_id, requested_at) VALUES (?, ?)`, clientID, time.Now()); err != nil {
		return false, 0, fmt.Errorf("ratelimit: record request: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, 0, fmt.Errorf("ratelimit: commit: %w", err)
	}

	return true, l.limit - count - 1, nil
}
