package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
)

// GetCachedSummary returns the cached processing result for a packet URL,
// incrementing its hit count and bumping last_accessed. ErrNotFound means
// no cache entry exists yet.
func (s *Store) GetCachedSummary(packetURL string) (*CacheEntry, error) {
	row := s.db.QueryRow(`
		SELECT packet_url, content_hash, processing_method, processing_time, cache_hit_count, created_at, last_accessed
		FROM processing_cache WHERE packet_url = ?`, packetURL)

	var e CacheEntry
	if err := row.Scan(&e.PacketURL, &e.ContentHash, &e.ProcessingMethod, &e.ProcessingTime,
		&e.CacheHitCount, &e.CreatedAt, &e.LastAccessed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if _, err := s.db.Exec(`
		UPDATE processing_cache SET cache_hit_count = cache_hit_count + 1, last_accessed = datetime('now')
		WHERE packet_url = ?`, packetURL); err != nil {
		return nil, fmt.Errorf("bump cache hit for %s: %w", packetURL, err)
	}
	e.CacheHitCount++

	return &e, nil
}

// StoreProcessingResult records (or replaces) the processing-cache row for
// a packet URL once processing succeeds.
func (s *Store) StoreProcessingResult(packetURL, method string, processingTime float64, content string) error {
	return storeProcessingResultTx(s.db, packetURL, method, processingTime, content)
}

func storeProcessingResultTx(tx execer, packetURL, method string, processingTime float64, content string) error {
	hash := sha256.Sum256([]byte(content))
	_, err := tx.Exec(`
		INSERT INTO processing_cache (packet_url, content_hash, processing_method, processing_time, created_at, last_accessed)
		VALUES (?, ?, ?, ?, datetime('now'), datetime('now'))
		ON CONFLICT(packet_url) DO UPDATE SET
			content_hash = excluded.content_hash,
			processing_method = excluded.processing_method,
			processing_time = excluded.processing_time,
			last_accessed = datetime('now')`,
		packetURL, hex.EncodeToString(hash[:]), method, processingTime)
	if err != nil {
		return fmt.Errorf("store processing result %s: %w", packetURL, err)
	}
	return nil
}

// ApplyProcessingResult persists a pipeline analysis result in a single
// transaction: the enriched meeting row and the processing-cache entry
// keyed by packet URL both commit together, or neither does.
func (s *Store) ApplyProcessingResult(meetingID, packetURL, summary, method string, processingTime float64, participation *Participation) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := updateMeetingSummaryTx(tx, meetingID, summary, method, processingTime, participation, nil); err != nil {
		return err
	}
	if err := storeProcessingResultTx(tx, packetURL, method, processingTime, summary); err != nil {
		return err
	}
	return tx.Commit()
}
