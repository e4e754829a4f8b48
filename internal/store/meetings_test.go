package store

import (
	"database/sql"
	"testing"
	"time"
)

func seedCity(t *testing.T, s *Store) City {
	t.Helper()
	c := City{Banana: "springfieldIL", Name: "Springfield", State: "IL", Vendor: "primegov", VendorSlug: "springfield", Status: "active"}
	if err := s.AddCity(c); err != nil {
		t.Fatalf("AddCity: %v", err)
	}
	return c
}

func TestStoreMeetingPreservesSummaryOnReplace(t *testing.T) {
	s := openTestStore(t)
	seedCity(t, s)

	m := Meeting{ID: "m1", CityBanana: "springfieldIL", Title: "Council Meeting", ProcessingStatus: "completed",
		Summary: sql.NullString{String: "existing summary", Valid: true}}
	if err := s.StoreMeeting(m); err != nil {
		t.Fatalf("StoreMeeting: %v", err)
	}

	replacement := Meeting{ID: "m1", CityBanana: "springfieldIL", Title: "Council Meeting (updated)", ProcessingStatus: "pending"}
	if err := s.StoreMeeting(replacement); err != nil {
		t.Fatalf("StoreMeeting (replace): %v", err)
	}

	got, err := s.GetMeeting("m1")
	if err != nil {
		t.Fatalf("GetMeeting: %v", err)
	}
	if !got.Summary.Valid || got.Summary.String != "existing summary" {
		t.Fatalf("expected preserved summary, got %+v", got.Summary)
	}
	if got.Title != "Council Meeting (updated)" {
		t.Fatalf("expected updated title, got %q", got.Title)
	}
}

func TestStoreMeetingFromSyncRejectsMismatchedVendorHost(t *testing.T) {
	s := openTestStore(t)
	city := seedCity(t, s)

	rec := RawMeetingRecord{ID: "m2", Title: "Bad Packet", PacketURL: "https://totally-not-primegov.example.com/packet.pdf"}
	stored, stats, err := s.StoreMeetingFromSync(rec, city)
	if err != nil {
		t.Fatalf("StoreMeetingFromSync: %v", err)
	}
	if stored != nil {
		t.Fatalf("expected rejected meeting not to be stored, got %+v", stored)
	}
	if stats.MeetingsSkipped != 1 {
		t.Fatalf("expected 1 skipped meeting, got %d", stats.MeetingsSkipped)
	}
}

func TestStoreMeetingFromSyncEnqueuesPacketURL(t *testing.T) {
	s := openTestStore(t)
	city := seedCity(t, s)

	rec := RawMeetingRecord{ID: "m3", Title: "Good Packet", PacketURL: "https://springfield.primegov.com/packet.pdf"}
	stored, stats, err := s.StoreMeetingFromSync(rec, city)
	if err != nil {
		t.Fatalf("StoreMeetingFromSync: %v", err)
	}
	if stored == nil {
		t.Fatal("expected meeting to be stored")
	}
	if !stats.Enqueued || stats.EnqueuedURL != rec.PacketURL {
		t.Fatalf("expected enqueue of packet url, got %+v", stats)
	}

	entry, err := s.GetNextForProcessing("")
	if err != nil {
		t.Fatalf("GetNextForProcessing: %v", err)
	}
	if entry.SourceURL != rec.PacketURL {
		t.Fatalf("expected queued source_url %s, got %s", rec.PacketURL, entry.SourceURL)
	}
}

func TestStoreMeetingFromSyncSkipsEnqueueWhenSummaryExists(t *testing.T) {
	s := openTestStore(t)
	city := seedCity(t, s)

	rec := RawMeetingRecord{ID: "m4", Title: "Already Done", PacketURL: "https://springfield.primegov.com/packet.pdf"}
	if _, _, err := s.StoreMeetingFromSync(rec, city); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if err := s.UpdateMeetingSummary("m4", "a real summary", "flash-lite", 1.2, nil, []string{"budget"}); err != nil {
		t.Fatalf("UpdateMeetingSummary: %v", err)
	}

	_, stats, err := s.StoreMeetingFromSync(rec, city)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if stats.Enqueued {
		t.Fatalf("expected no re-enqueue once summary exists, got %+v", stats)
	}
}

func TestStoreMeetingFromSyncItemsEnqueuesSyntheticURL(t *testing.T) {
	s := openTestStore(t)
	city := seedCity(t, s)

	rec := RawMeetingRecord{
		ID:    "m5",
		Title: "Itemized Agenda",
		Items: []RawAgendaItem{{VendorItemID: "1", Title: "Call to order", Sequence: 1}},
	}
	_, stats, err := s.StoreMeetingFromSync(rec, city)
	if err != nil {
		t.Fatalf("StoreMeetingFromSync: %v", err)
	}
	if stats.EnqueuedURL != "items://m5" {
		t.Fatalf("expected items:// synthetic url, got %q", stats.EnqueuedURL)
	}

	items, err := s.GetAgendaItems("m5")
	if err != nil {
		t.Fatalf("GetAgendaItems: %v", err)
	}
	if len(items) != 1 || items[0].Title != "Call to order" {
		t.Fatalf("unexpected items: %+v", items)
	}
}

func TestStoreAgendaItemsPreservesSummaryByID(t *testing.T) {
	s := openTestStore(t)
	seedCity(t, s)
	if err := s.StoreMeeting(Meeting{ID: "m6", CityBanana: "springfieldIL", Title: "x"}); err != nil {
		t.Fatalf("StoreMeeting: %v", err)
	}

	first := []AgendaItem{{ID: "m6_1", MeetingID: "m6", Title: "Item One", Sequence: 1}}
	if err := s.StoreAgendaItems("m6", first); err != nil {
		t.Fatalf("StoreAgendaItems: %v", err)
	}
	if err := s.UpdateItemSummary("m6_1", "summarized", []string{"zoning"}); err != nil {
		t.Fatalf("UpdateItemSummary: %v", err)
	}

	second := []AgendaItem{{ID: "m6_1", MeetingID: "m6", Title: "Item One (renamed)", Sequence: 1}}
	if err := s.StoreAgendaItems("m6", second); err != nil {
		t.Fatalf("StoreAgendaItems (resync): %v", err)
	}

	items, err := s.GetAgendaItems("m6")
	if err != nil {
		t.Fatalf("GetAgendaItems: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if !items[0].Summary.Valid || items[0].Summary.String != "summarized" {
		t.Fatalf("expected preserved item summary, got %+v", items[0].Summary)
	}
	if items[0].Title != "Item One (renamed)" {
		t.Fatalf("expected updated title, got %q", items[0].Title)
	}
}

func TestGetUnprocessedMeetingsExcludesQueuedAndCompleted(t *testing.T) {
	s := openTestStore(t)
	seedCity(t, s)

	if err := s.StoreMeeting(Meeting{ID: "pending1", CityBanana: "springfieldIL", Title: "No queue entry yet", ProcessingStatus: "pending"}); err != nil {
		t.Fatalf("StoreMeeting: %v", err)
	}
	if err := s.StoreMeeting(Meeting{ID: "done1", CityBanana: "springfieldIL", Title: "Already done", ProcessingStatus: "completed"}); err != nil {
		t.Fatalf("StoreMeeting: %v", err)
	}

	city, err := s.GetCityByBanana("springfieldIL")
	if err != nil {
		t.Fatalf("GetCityByBanana: %v", err)
	}
	queuedRec := RawMeetingRecord{ID: "queued1", Title: "Already queued", PacketURL: "https://springfield.primegov.com/q.pdf"}
	if _, _, err := s.StoreMeetingFromSync(queuedRec, *city); err != nil {
		t.Fatalf("StoreMeetingFromSync: %v", err)
	}

	unprocessed, err := s.GetUnprocessedMeetings(0)
	if err != nil {
		t.Fatalf("GetUnprocessedMeetings: %v", err)
	}
	if len(unprocessed) != 1 || unprocessed[0].ID != "pending1" {
		t.Fatalf("expected only pending1, got %+v", unprocessed)
	}
}

func TestSyncPriorityFavorsUpcomingMeetings(t *testing.T) {
	future := time.Now().Add(48 * time.Hour)
	past := time.Now().Add(-200 * 24 * time.Hour)

	if got := syncPriority(&future); got <= 100 {
		t.Fatalf("expected priority above 100 for a future meeting (not yet happened), got %d", got)
	}
	if got := syncPriority(&past); got != 0 {
		t.Fatalf("expected floor of 0 for old meeting, got %d", got)
	}
	if got := syncPriority(nil); got != 50 {
		t.Fatalf("expected default 50 for unknown date, got %d", got)
	}
}

func TestGetMeetingsForCitiesReturnsNewestFirstAcrossCities(t *testing.T) {
	s := openTestStore(t)
	seedCity(t, s)
	if err := s.AddCity(City{Banana: "decaturIL", Name: "Decatur", State: "IL", Vendor: "primegov", VendorSlug: "decatur", Status: "active"}); err != nil {
		t.Fatalf("AddCity: %v", err)
	}

	old := time.Now().Add(-48 * time.Hour)
	recent := time.Now().Add(-1 * time.Hour)
	if err := s.StoreMeeting(Meeting{ID: "m-old", CityBanana: "springfieldIL", Title: "Older", Date: sql.NullTime{Time: old, Valid: true}, ProcessingStatus: "pending"}); err != nil {
		t.Fatalf("StoreMeeting: %v", err)
	}
	if err := s.StoreMeeting(Meeting{ID: "m-recent", CityBanana: "decaturIL", Title: "Newer", Date: sql.NullTime{Time: recent, Valid: true}, ProcessingStatus: "pending"}); err != nil {
		t.Fatalf("StoreMeeting: %v", err)
	}
	if err := s.StoreMeeting(Meeting{ID: "m-other", CityBanana: "decaturIL", Title: "Belongs elsewhere", ProcessingStatus: "pending"}); err != nil {
		t.Fatalf("StoreMeeting: %v", err)
	}

	got, err := s.GetMeetingsForCities([]string{"springfieldIL", "decaturIL"}, 0)
	if err != nil {
		t.Fatalf("GetMeetingsForCities: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 meetings, got %d", len(got))
	}
	if got[0].ID != "m-recent" || got[1].ID != "m-old" {
		t.Fatalf("expected newest-first ordering, got %v, %v", got[0].ID, got[1].ID)
	}
}

func TestGetMeetingsForCitiesEmptyListReturnsNil(t *testing.T) {
	s := openTestStore(t)
	got, err := s.GetMeetingsForCities(nil, 0)
	if err != nil {
		t.Fatalf("GetMeetingsForCities: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil result for empty city list, got %v", got)
	}
}

func TestGetMeetingsByTopicMatchesCanonicalTopicOnly(t *testing.T) {
	s := openTestStore(t)
	seedCity(t, s)

	if err := s.StoreMeeting(Meeting{ID: "m-zoning", CityBanana: "springfieldIL", Title: "Zoning hearing", Topics: []string{"zoning"}, ProcessingStatus: "completed"}); err != nil {
		t.Fatalf("StoreMeeting: %v", err)
	}
	if err := s.StoreMeeting(Meeting{ID: "m-housing", CityBanana: "springfieldIL", Title: "Housing hearing", Topics: []string{"housing", "zoning_variance"}, ProcessingStatus: "completed"}); err != nil {
		t.Fatalf("StoreMeeting: %v", err)
	}

	got, err := s.GetMeetingsByTopic("zoning", 0)
	if err != nil {
		t.Fatalf("GetMeetingsByTopic: %v", err)
	}
	if len(got) != 1 || got[0].ID != "m-zoning" {
		t.Fatalf("expected only m-zoning to match exact topic %q, got %+v", "zoning", got)
	}
}
