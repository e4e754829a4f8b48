package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrAlreadyQueued is the sentinel returned by EnqueueForProcessing when an
// existing row for the same source_url is already pending or processing;
// the caller should treat this as a no-op, not a failure.
var ErrAlreadyQueued = errors.New("store: already queued")

// DeadLetterThreshold is the retry count at which a failed job is moved to
// dead_letter instead of being retried again.
const DeadLetterThreshold = 3

// EnqueueForProcessing inserts or reactivates a queue entry keyed by
// source_url. If the existing row is pending or processing, nothing
// changes and ErrAlreadyQueued is returned. If it is completed, failed, or
// dead_letter, it is reset to pending with retry_count zeroed and the
// error cleared, picking up the new priority and metadata — this is what
// lets a meeting whose packet changed get reprocessed instead of being
// silently stuck behind a stale "completed" row.
func (s *Store) EnqueueForProcessing(sourceURL, meetingID, cityBanana string, priority int, metadata any) (int64, error) {
	metaJSON := marshalJSON(metadata)
	if metadata == nil {
		metaJSON = "{}"
	}

	var id int64
	var status string
	err := s.db.QueryRow(`SELECT id, status FROM processing_queue WHERE source_url = ?`, sourceURL).Scan(&id, &status)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := s.db.Exec(`
			INSERT INTO processing_queue (source_url, meeting_id, city_banana, status, priority, processing_metadata, created_at)
			VALUES (?, ?, ?, 'pending', ?, ?, datetime('now'))`,
			sourceURL, meetingID, cityBanana, priority, metaJSON)
		if err != nil {
			return 0, fmt.Errorf("enqueue %s: %w", sourceURL, err)
		}
		return res.LastInsertId()
	case err != nil:
		return 0, fmt.Errorf("probe queue entry %s: %w", sourceURL, err)
	}

	if status == "pending" || status == "processing" {
		return -1, ErrAlreadyQueued
	}

	_, err = s.db.Exec(`
		UPDATE processing_queue SET
			status = 'pending', priority = ?, processing_metadata = ?,
			retry_count = 0, error_message = '', meeting_id = ?, city_banana = ?,
			started_at = NULL, completed_at = NULL
		WHERE id = ?`, priority, metaJSON, meetingID, cityBanana, id)
	if err != nil {
		return 0, fmt.Errorf("reactivate queue entry %s: %w", sourceURL, err)
	}
	return id, nil
}

func (s *Store) enqueueForProcessingTx(tx *sql.Tx, sourceURL, meetingID, cityBanana string, priority int, metadata any) error {
	metaJSON := marshalJSON(metadata)
	if metadata == nil {
		metaJSON = "{}"
	}

	var id int64
	var status string
	err := tx.QueryRow(`SELECT id, status FROM processing_queue WHERE source_url = ?`, sourceURL).Scan(&id, &status)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err := tx.Exec(`
			INSERT INTO processing_queue (source_url, meeting_id, city_banana, status, priority, processing_metadata, created_at)
			VALUES (?, ?, ?, 'pending', ?, ?, datetime('now'))`,
			sourceURL, meetingID, cityBanana, priority, metaJSON)
		return err
	case err != nil:
		return err
	}

	if status == "pending" || status == "processing" {
		return nil
	}

	_, err = tx.Exec(`
		UPDATE processing_queue SET
			status = 'pending', priority = ?, processing_metadata = ?,
			retry_count = 0, error_message = '', meeting_id = ?, city_banana = ?,
			started_at = NULL, completed_at = NULL
		WHERE id = ?`, priority, metaJSON, meetingID, cityBanana, id)
	return err
}

// GetNextForProcessing atomically claims the highest-priority pending row,
// optionally restricted to a city, moving it to processing with
// started_at=now. The UPDATE...RETURNING-equivalent two-step (select id,
// then conditional update) is race-safe because the update's WHERE clause
// re-checks status='pending', so two workers racing for the same row only
// let one through.
func (s *Store) GetNextForProcessing(cityBanana string) (*QueueEntry, error) {
	query := `SELECT id FROM processing_queue WHERE status = 'pending'`
	args := []any{}
	if cityBanana != "" {
		query += ` AND city_banana = ?`
		args = append(args, cityBanana)
	}
	query += ` ORDER BY priority DESC, created_at ASC LIMIT 1`

	var id int64
	if err := s.db.QueryRow(query, args...).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	res, err := s.db.Exec(`
		UPDATE processing_queue SET status = 'processing', started_at = datetime('now')
		WHERE id = ? AND status = 'pending'`, id)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		// Lost the race to another worker; caller should retry.
		return nil, ErrNotFound
	}

	return s.getQueueEntry(id)
}

func (s *Store) getQueueEntry(id int64) (*QueueEntry, error) {
	row := s.db.QueryRow(`
		SELECT id, source_url, meeting_id, city_banana, status, priority, retry_count,
			error_message, processing_metadata, created_at, started_at, completed_at
		FROM processing_queue WHERE id = ?`, id)

	var e QueueEntry
	if err := row.Scan(&e.ID, &e.SourceURL, &e.MeetingID, &e.CityBanana, &e.Status, &e.Priority,
		&e.RetryCount, &e.ErrorMessage, &e.ProcessingMetadata, &e.CreatedAt, &e.StartedAt, &e.CompletedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

// MarkProcessingComplete marks a queue entry finished successfully.
func (s *Store) MarkProcessingComplete(id int64) error {
	_, err := s.db.Exec(`
		UPDATE processing_queue SET status = 'completed', completed_at = datetime('now') WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark complete %d: %w", id, err)
	}
	return nil
}

// MarkProcessingFailed records a failure and, when incrementRetry is true,
// bumps retry_count; crossing DeadLetterThreshold moves the entry to
// dead_letter instead of leaving it retryable.
func (s *Store) MarkProcessingFailed(id int64, message string, incrementRetry bool) error {
	entry, err := s.getQueueEntry(id)
	if err != nil {
		return err
	}

	retries := entry.RetryCount
	if incrementRetry {
		retries++
	}

	status := "failed"
	if retries >= DeadLetterThreshold {
		status = "dead_letter"
	}

	_, err = s.db.Exec(`
		UPDATE processing_queue SET status = ?, retry_count = ?, error_message = ?, completed_at = datetime('now')
		WHERE id = ?`, status, retries, message, id)
	if err != nil {
		return fmt.Errorf("mark failed %d: %w", id, err)
	}
	return nil
}

// GetQueueStats summarizes throughput for operators: counts per status and
// the average processing duration for completed jobs.
func (s *Store) GetQueueStats() (QueueStats, error) {
	stats := QueueStats{CountByStatus: map[string]int{}}

	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM processing_queue GROUP BY status`)
	if err != nil {
		return stats, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return stats, err
		}
		stats.CountByStatus[status] = count
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	var avg sql.NullFloat64
	err = s.db.QueryRow(`
		SELECT AVG((julianday(completed_at) - julianday(started_at)) * 86400.0)
		FROM processing_queue WHERE status = 'completed' AND started_at IS NOT NULL AND completed_at IS NOT NULL`).
		Scan(&avg)
	if err != nil {
		return stats, err
	}
	if avg.Valid {
		stats.AvgProcessingSecs = avg.Float64
	}
	return stats, nil
}

// GetQueueEntryMetadata decodes a queue entry's processing_metadata JSON
// into the given destination.
func GetQueueEntryMetadata(e QueueEntry, dest any) error {
	return json.Unmarshal([]byte(e.ProcessingMetadata), dest)
}
