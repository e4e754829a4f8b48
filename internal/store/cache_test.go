package store

import (
	"errors"
	"testing"
)

func TestCacheMissReturnsNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetCachedSummary("https://example.com/packet.pdf"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCacheHitIncrementsCount(t *testing.T) {
	s := openTestStore(t)
	url := "https://example.com/packet.pdf"
	if err := s.StoreProcessingResult(url, "flash-lite", 3.4, "extracted text"); err != nil {
		t.Fatalf("StoreProcessingResult: %v", err)
	}

	first, err := s.GetCachedSummary(url)
	if err != nil {
		t.Fatalf("GetCachedSummary: %v", err)
	}
	if first.CacheHitCount != 1 {
		t.Fatalf("expected hit count 1, got %d", first.CacheHitCount)
	}

	second, err := s.GetCachedSummary(url)
	if err != nil {
		t.Fatalf("GetCachedSummary: %v", err)
	}
	if second.CacheHitCount != 2 {
		t.Fatalf("expected hit count 2, got %d", second.CacheHitCount)
	}
}

func TestApplyProcessingResultCommitsMeetingAndCacheTogether(t *testing.T) {
	s := openTestStore(t)
	if err := s.AddCity(City{Banana: "springfieldIL", Name: "Springfield", State: "IL", Vendor: "primegov", VendorSlug: "springfield"}); err != nil {
		t.Fatalf("AddCity: %v", err)
	}
	url := "https://example.com/packet.pdf"
	if err := s.StoreMeeting(Meeting{ID: "m1", CityBanana: "springfieldIL", Title: "Regular Meeting", PacketURL: url, ProcessingStatus: "pending"}); err != nil {
		t.Fatalf("StoreMeeting: %v", err)
	}

	participation := &Participation{Email: "clerk@springfield.gov"}
	if err := s.ApplyProcessingResult("m1", url, "## Summary\n\napproved", "pdfextract_gemini", 4.2, participation); err != nil {
		t.Fatalf("ApplyProcessingResult: %v", err)
	}

	meeting, err := s.GetMeeting("m1")
	if err != nil {
		t.Fatalf("GetMeeting: %v", err)
	}
	if !meeting.Summary.Valid || meeting.Summary.String != "## Summary\n\napproved" {
		t.Errorf("expected summary to be persisted, got %+v", meeting.Summary)
	}
	if meeting.Participation.Email != "clerk@springfield.gov" {
		t.Errorf("expected participation to be persisted, got %+v", meeting.Participation)
	}

	entry, err := s.GetCachedSummary(url)
	if err != nil {
		t.Fatalf("GetCachedSummary: %v", err)
	}
	if entry.ProcessingMethod != "pdfextract_gemini" {
		t.Errorf("expected processing cache entry to be written, got %+v", entry)
	}
}
