package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// StoreAgendaItems replaces the item set for a meeting: existing rows for
// meetingID are deleted and the given items inserted, except that an
// incoming item with no summary inherits the prior summary/topics for the
// same item id, so a re-sync never erases completed item-level enrichment.
func (s *Store) StoreAgendaItems(meetingID string, items []AgendaItem) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.storeAgendaItemsTx(tx, meetingID, items); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) storeAgendaItemsTx(tx *sql.Tx, meetingID string, items []AgendaItem) error {
	prior, err := s.agendaItemsByMeetingTx(tx, meetingID)
	if err != nil {
		return fmt.Errorf("load prior agenda items for %s: %w", meetingID, err)
	}
	priorByID := make(map[string]AgendaItem, len(prior))
	for _, p := range prior {
		priorByID[p.ID] = p
	}

	if _, err := tx.Exec(`DELETE FROM agenda_items WHERE meeting_id = ?`, meetingID); err != nil {
		return fmt.Errorf("clear agenda items for %s: %w", meetingID, err)
	}

	for _, item := range items {
		if !item.Summary.Valid {
			if prev, ok := priorByID[item.ID]; ok {
				item.Summary = prev.Summary
				if item.Topics == nil {
					item.Topics = prev.Topics
				}
			}
		}
		if _, err := tx.Exec(`
			INSERT INTO agenda_items (id, meeting_id, title, sequence, attachments, summary, topics, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, datetime('now'), datetime('now'))`,
			item.ID, meetingID, item.Title, item.Sequence, marshalJSON(item.Attachments),
			nullableString(item.Summary), marshalJSON(item.Topics)); err != nil {
			return fmt.Errorf("insert agenda item %s: %w", item.ID, err)
		}
	}
	return nil
}

// GetAgendaItems returns a meeting's items ordered by their sequence field.
func (s *Store) GetAgendaItems(meetingID string) ([]AgendaItem, error) {
	return s.agendaItemsByMeetingTx(s.db, meetingID)
}

type queryer interface {
	Query(query string, args ...any) (*sql.Rows, error)
}

func (s *Store) agendaItemsByMeetingTx(q queryer, meetingID string) ([]AgendaItem, error) {
	rows, err := q.Query(`
		SELECT id, meeting_id, title, sequence, attachments, summary, topics, created_at, updated_at
		FROM agenda_items WHERE meeting_id = ? ORDER BY sequence`, meetingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []AgendaItem
	for rows.Next() {
		var item AgendaItem
		var attachmentsRaw, topicsRaw string
		if err := rows.Scan(&item.ID, &item.MeetingID, &item.Title, &item.Sequence,
			&attachmentsRaw, &item.Summary, &topicsRaw, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, err
		}
		json.Unmarshal([]byte(attachmentsRaw), &item.Attachments)
		json.Unmarshal([]byte(topicsRaw), &item.Topics)
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpdateItemSummary applies per-item enrichment results.
func (s *Store) UpdateItemSummary(id, summary string, topics []string) error {
	_, err := s.db.Exec(`
		UPDATE agenda_items SET summary = ?, topics = ?, updated_at = datetime('now') WHERE id = ?`,
		summary, marshalJSON(topics), id)
	if err != nil {
		return fmt.Errorf("update item summary %s: %w", id, err)
	}
	return nil
}
