package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/engagic/engagic/internal/validator"
)

// RawAgendaItem is one itemized agenda entry as yielded by a vendor adapter,
// prior to persistence.
type RawAgendaItem struct {
	VendorItemID string
	Title        string
	Sequence     int
	Attachments  []Attachment
}

// RawMeetingRecord is the normalized shape a vendor adapter yields for a
// single meeting, before it is reconciled against stored state.
type RawMeetingRecord struct {
	ID        string
	Title     string
	Date      *time.Time
	AgendaURL string
	PacketURL string
	Status    string
	Items     []RawAgendaItem // present only for vendors that itemize agendas
}

// SyncStats reports what happened when a raw record was reconciled into
// storage, so a sweep can count outcomes without treating a skip as an
// error.
type SyncStats struct {
	MeetingsSkipped int
	SkipReason      string
	SkippedTitle    string
	Enqueued        bool
	EnqueuedURL     string
}

func marshalJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

// execer is satisfied by both *sql.DB and *sql.Tx, letting the upsert live
// in one place regardless of whether it runs standalone or inside a
// transaction.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// StoreMeeting upserts a meeting by id. summary, topics, processing_method
// and processing_time are preserved (COALESCE) when the incoming values are
// NULL, so a bare re-sync never erases already-computed enrichment.
// updated_at bumps on every call; created_at is set once.
func (s *Store) StoreMeeting(m Meeting) error {
	if err := s.storeMeetingTx(s.db, m); err != nil {
		return fmt.Errorf("store meeting %s: %w", m.ID, err)
	}
	return nil
}

func nullableTime(nt sql.NullTime) any {
	if !nt.Valid {
		return nil
	}
	return nt.Time
}

func nullableString(ns sql.NullString) any {
	if !ns.Valid {
		return nil
	}
	return ns.String
}

func nullableFloat(nf sql.NullFloat64) any {
	if !nf.Valid {
		return nil
	}
	return nf.Float64
}

// GetMeeting fetches a meeting by id.
func (s *Store) GetMeeting(id string) (*Meeting, error) {
	row := s.db.QueryRow(`
		SELECT id, city_banana, title, meeting_date, agenda_url, packet_url,
			summary, participation, meeting_status, topics,
			processing_status, processing_method, processing_time,
			created_at, updated_at
		FROM meetings WHERE id = ?`, id)
	return scanMeeting(row)
}

func scanMeeting(row *sql.Row) (*Meeting, error) {
	var m Meeting
	var participationRaw, topicsRaw string
	if err := row.Scan(&m.ID, &m.CityBanana, &m.Title, &m.Date, &m.AgendaURL, &m.PacketURL,
		&m.Summary, &participationRaw, &m.Status, &topicsRaw,
		&m.ProcessingStatus, &m.ProcessingMethod, &m.ProcessingTime,
		&m.CreatedAt, &m.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	json.Unmarshal([]byte(participationRaw), &m.Participation)
	json.Unmarshal([]byte(topicsRaw), &m.Topics)
	return &m, nil
}

// GetUnprocessedMeetings returns up to limit meetings still awaiting
// enrichment (processing_status = 'pending' with no queue entry yet),
// most-recent meeting date first, for the processing sweep to backfill.
func (s *Store) GetUnprocessedMeetings(limit int) ([]Meeting, error) {
	query := `
		SELECT id, city_banana, title, meeting_date, agenda_url, packet_url,
			summary, participation, meeting_status, topics,
			processing_status, processing_method, processing_time,
			created_at, updated_at
		FROM meetings
		WHERE processing_status = 'pending'
			AND id NOT IN (SELECT meeting_id FROM processing_queue WHERE meeting_id != '')
		ORDER BY meeting_date DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("get unprocessed meetings: %w", err)
	}
	defer rows.Close()

	var meetings []Meeting
	for rows.Next() {
		var m Meeting
		var participationRaw, topicsRaw string
		if err := rows.Scan(&m.ID, &m.CityBanana, &m.Title, &m.Date, &m.AgendaURL, &m.PacketURL,
			&m.Summary, &participationRaw, &m.Status, &topicsRaw,
			&m.ProcessingStatus, &m.ProcessingMethod, &m.ProcessingTime,
			&m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		json.Unmarshal([]byte(participationRaw), &m.Participation)
		json.Unmarshal([]byte(topicsRaw), &m.Topics)
		meetings = append(meetings, m)
	}
	return meetings, rows.Err()
}

// GetMeetingsForCities returns meetings for any of the given cities,
// newest first, for the search surface's city-lookup path. A zero limit
// means unlimited.
func (s *Store) GetMeetingsForCities(bananas []string, limit int) ([]Meeting, error) {
	if len(bananas) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(bananas))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(bananas))
	for i, b := range bananas {
		args[i] = b
	}

	query := fmt.Sprintf(`
		SELECT id, city_banana, title, meeting_date, agenda_url, packet_url,
			summary, participation, meeting_status, topics,
			processing_status, processing_method, processing_time,
			created_at, updated_at
		FROM meetings
		WHERE city_banana IN (%s)
		ORDER BY meeting_date DESC`, placeholders)
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	return queryMeetings(s.db, query, args...)
}

// GetMeetingsByTopic returns meetings whose topics list contains the given
// canonical topic, newest first. Topics are stored as a JSON array, so the
// match is a substring test against the quoted value rather than a JOIN;
// this is adequate because canonical topic keys never collide as
// substrings of one another (they're validated against the fixed
// taxonomy before being written).
func (s *Store) GetMeetingsByTopic(topic string, limit int) ([]Meeting, error) {
	query := `
		SELECT id, city_banana, title, meeting_date, agenda_url, packet_url,
			summary, participation, meeting_status, topics,
			processing_status, processing_method, processing_time,
			created_at, updated_at
		FROM meetings
		WHERE topics LIKE ?
		ORDER BY meeting_date DESC`
	args := []any{"%\"" + topic + "\"%"}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return queryMeetings(s.db, query, args...)
}

func queryMeetings(q queryer, query string, args ...any) ([]Meeting, error) {
	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query meetings: %w", err)
	}
	defer rows.Close()

	var meetings []Meeting
	for rows.Next() {
		var m Meeting
		var participationRaw, topicsRaw string
		if err := rows.Scan(&m.ID, &m.CityBanana, &m.Title, &m.Date, &m.AgendaURL, &m.PacketURL,
			&m.Summary, &participationRaw, &m.Status, &topicsRaw,
			&m.ProcessingStatus, &m.ProcessingMethod, &m.ProcessingTime,
			&m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		json.Unmarshal([]byte(participationRaw), &m.Participation)
		json.Unmarshal([]byte(topicsRaw), &m.Topics)
		meetings = append(meetings, m)
	}
	return meetings, rows.Err()
}

// UpdateMeetingSummary applies enrichment results produced by the pipeline.
func (s *Store) UpdateMeetingSummary(id, summary, method string, processingTime float64, participation *Participation, topics []string) error {
	return updateMeetingSummaryTx(s.db, id, summary, method, processingTime, participation, topics)
}

func updateMeetingSummaryTx(tx execer, id, summary, method string, processingTime float64, participation *Participation, topics []string) error {
	args := []any{summary, method, processingTime}
	setParticipation := ""
	if participation != nil {
		setParticipation = ", participation = ?"
		args = append(args, marshalJSON(participation))
	}
	setTopics := ""
	if topics != nil {
		setTopics = ", topics = ?"
		args = append(args, marshalJSON(topics))
	}
	args = append(args, id)

	query := fmt.Sprintf(`
		UPDATE meetings SET
			summary = ?, processing_method = ?, processing_time = ?,
			processing_status = 'completed', updated_at = datetime('now')
			%s %s
		WHERE id = ?`, setParticipation, setTopics)

	_, err := tx.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("update meeting summary %s: %w", id, err)
	}
	return nil
}

// StoreMeetingFromSync reconciles one vendor-yielded record against stored
// state: validates the packet URL, preserves prior enrichment by id,
// persists the meeting and its agenda items, and decides whether to
// enqueue processing work — every write inside a single transaction so a
// failure never leaves a partially-written meeting behind.
func (s *Store) StoreMeetingFromSync(rec RawMeetingRecord, city City) (*Meeting, SyncStats, error) {
	if rec.ID == "" {
		return nil, SyncStats{MeetingsSkipped: 1, SkipReason: "missing id", SkippedTitle: rec.Title}, nil
	}

	result := validator.ValidatePacketURL(rec.PacketURL, city.Vendor, city.VendorSlug)
	if result.Action == validator.ActionReject {
		return nil, SyncStats{MeetingsSkipped: 1, SkipReason: result.Error, SkippedTitle: rec.Title}, nil
	}

	existing, err := s.GetMeeting(rec.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, SyncStats{}, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, SyncStats{}, err
	}
	defer tx.Rollback()

	meeting := Meeting{
		ID:               rec.ID,
		CityBanana:       city.Banana,
		Title:            rec.Title,
		AgendaURL:        rec.AgendaURL,
		PacketURL:        rec.PacketURL,
		Status:           rec.Status,
		ProcessingStatus: "pending",
	}
	if rec.Date != nil {
		meeting.Date = sql.NullTime{Time: *rec.Date, Valid: true}
	}
	if existing != nil {
		meeting.Summary = existing.Summary
		meeting.Topics = existing.Topics
		meeting.ProcessingMethod = existing.ProcessingMethod
		meeting.ProcessingTime = existing.ProcessingTime
		meeting.ProcessingStatus = existing.ProcessingStatus
		meeting.Participation = existing.Participation
	}

	if err := s.storeMeetingTx(tx, meeting); err != nil {
		return nil, SyncStats{}, err
	}

	var items []AgendaItem
	if len(rec.Items) > 0 {
		items = make([]AgendaItem, 0, len(rec.Items))
		for _, ri := range rec.Items {
			items = append(items, AgendaItem{
				ID:          rec.ID + "_" + ri.VendorItemID,
				MeetingID:   rec.ID,
				Title:       ri.Title,
				Sequence:    ri.Sequence,
				Attachments: ri.Attachments,
			})
		}
		if err := s.storeAgendaItemsTx(tx, rec.ID, items); err != nil {
			return nil, SyncStats{}, err
		}
	}

	stats := SyncStats{}
	hasSummarizedItems := false
	for _, it := range items {
		if it.Summary.Valid {
			hasSummarizedItems = true
			break
		}
	}

	switch {
	case hasSummarizedItems:
		// Items already carry summaries: nothing to enqueue.
	case meeting.Summary.Valid:
		// Monolithic summary already present: nothing to enqueue.
	case len(rec.Items) > 0:
		sourceURL := fmt.Sprintf("items://%s", rec.ID)
		meta := QueueMetadata{CorrelationID: uuid.NewString()}
		if err := s.enqueueForProcessingTx(tx, sourceURL, rec.ID, city.Banana, syncPriority(rec.Date), meta); err != nil {
			return nil, SyncStats{}, err
		}
		stats.Enqueued = true
		stats.EnqueuedURL = sourceURL
	case rec.PacketURL != "":
		meta := QueueMetadata{CorrelationID: uuid.NewString()}
		if err := s.enqueueForProcessingTx(tx, rec.PacketURL, rec.ID, city.Banana, syncPriority(rec.Date), meta); err != nil {
			return nil, SyncStats{}, err
		}
		stats.Enqueued = true
		stats.EnqueuedURL = rec.PacketURL
	}

	if err := tx.Commit(); err != nil {
		return nil, SyncStats{}, err
	}

	stored, err := s.GetMeeting(rec.ID)
	return stored, stats, err
}

// syncPriority scores a meeting so upcoming meetings process first:
// max(0, 100 - days_since_meeting).
func syncPriority(date *time.Time) int {
	if date == nil {
		return 50
	}
	days := int(time.Since(*date).Hours() / 24)
	priority := 100 - days
	if priority < 0 {
		priority = 0
	}
	return priority
}

func (s *Store) storeMeetingTx(tx execer, m Meeting) error {
	_, err := tx.Exec(`
		INSERT INTO meetings (
			id, city_banana, title, meeting_date, agenda_url, packet_url,
			summary, participation, meeting_status, topics,
			processing_status, processing_method, processing_time,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'), datetime('now'))
		ON CONFLICT(id) DO UPDATE SET
			city_banana = excluded.city_banana,
			title = excluded.title,
			meeting_date = excluded.meeting_date,
			agenda_url = excluded.agenda_url,
			packet_url = excluded.packet_url,
			summary = COALESCE(excluded.summary, meetings.summary),
			participation = excluded.participation,
			meeting_status = excluded.meeting_status,
			topics = CASE WHEN excluded.topics IN ('[]', 'null') THEN meetings.topics ELSE excluded.topics END,
			processing_status = excluded.processing_status,
			processing_method = COALESCE(excluded.processing_method, meetings.processing_method),
			processing_time = COALESCE(excluded.processing_time, meetings.processing_time),
			updated_at = datetime('now')`,
		m.ID, m.CityBanana, m.Title, nullableTime(m.Date), m.AgendaURL, m.PacketURL,
		nullableString(m.Summary), marshalJSON(m.Participation), m.Status, marshalJSON(m.Topics),
		m.ProcessingStatus, nullableString(m.ProcessingMethod), nullableFloat(m.ProcessingTime))
	return err
}
