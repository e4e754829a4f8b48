package topics

import (
	"path/filepath"
	"runtime"
	"testing"
)

func taxonomyPath(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("could not determine caller for taxonomy path")
	}
	return filepath.Join(filepath.Dir(thisFile), "..", "..", "configs", "topic_taxonomy.json")
}

func loadTestNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	n, err := Load(taxonomyPath(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return n
}

func TestNormalizeDirectMatch(t *testing.T) {
	n := loadTestNormalizer(t)
	got := n.Normalize([]string{"housing", "zoning"})
	if len(got) != 2 || got[0] != "housing" || got[1] != "zoning" {
		t.Fatalf("unexpected result: %v", got)
	}
}

func TestNormalizeSynonymMatch(t *testing.T) {
	n := loadTestNormalizer(t)
	got := n.Normalize([]string{"affordable housing", "rezoning"})
	if len(got) != 2 || got[0] != "housing" || got[1] != "zoning" {
		t.Fatalf("unexpected result: %v", got)
	}
}

func TestNormalizeWordBoundaryAvoidsFalsePositive(t *testing.T) {
	n := loadTestNormalizer(t)
	// "parking" must not match the "parks" synonym set via substring, only via
	// its own word-boundary synonym "parking" under transportation.
	got := n.Normalize([]string{"parking enforcement downtown"})
	if len(got) != 1 || got[0] != "transportation" {
		t.Fatalf("expected transportation (parking != parks), got %v", got)
	}
}

func TestNormalizeDeduplicatesAndSorts(t *testing.T) {
	n := loadTestNormalizer(t)
	got := n.Normalize([]string{"zoning", "rezoning", "housing"})
	if len(got) != 2 {
		t.Fatalf("expected dedup to 2 canonical topics, got %v", got)
	}
	if got[0] != "housing" || got[1] != "zoning" {
		t.Fatalf("expected sorted [housing zoning], got %v", got)
	}
}

func TestNormalizeUnknownTopicInvokesSink(t *testing.T) {
	n := loadTestNormalizer(t)
	var captured []string
	n.OnUnknownTopic(func(raw string) { captured = append(captured, raw) })

	got := n.Normalize([]string{"interpretive dance subcommittee"})
	if len(got) != 0 {
		t.Fatalf("expected no canonical match, got %v", got)
	}
	if len(captured) != 1 || captured[0] != "interpretive dance subcommittee" {
		t.Fatalf("expected unknown sink to capture raw topic, got %v", captured)
	}
}

func TestNormalizeSingleFallsBackToLowercasedOriginal(t *testing.T) {
	n := loadTestNormalizer(t)
	got := n.NormalizeSingle("Mystery Topic")
	if got != "mystery topic" {
		t.Fatalf("expected lowercased fallback, got %q", got)
	}
}

func TestDisplayNameFallsBackToTitleCase(t *testing.T) {
	n := loadTestNormalizer(t)
	if got := n.DisplayName("housing"); got != "Housing" {
		t.Fatalf("expected Housing, got %q", got)
	}
	if got := n.DisplayName("made_up_topic"); got != "Made Up Topic" {
		t.Fatalf("expected title-cased fallback, got %q", got)
	}
}
