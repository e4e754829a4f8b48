// Package topics maps free-text topic strings extracted by the summarizer
// to a fixed canonical taxonomy, so search and filtering never have to deal
// with "affordable housing" and "housing plan" as distinct values.
package topics

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
)

// Entry is one taxonomy category as loaded from the taxonomy JSON.
type Entry struct {
	Canonical   string   `json:"canonical"`
	DisplayName string   `json:"display_name"`
	Synonyms    []string `json:"synonyms"`
}

type taxonomyFile struct {
	Taxonomy       map[string]Entry `json:"taxonomy"`
	PromptExamples []string         `json:"prompt_examples"`
}

// Normalizer maps raw topic strings to the canonical taxonomy.
type Normalizer struct {
	entries        map[string]Entry // canonical -> Entry, for display-name lookup
	synonymMap     map[string]string
	promptExamples []string

	// unknownSink receives every raw string that didn't match anything,
	// already lowercased, for the append-only unknown-topics log. Nil is
	// fine; it just means nothing is recorded.
	unknownSink func(raw string)
}

// Load reads a taxonomy JSON file and builds the synonym lookup table.
func Load(path string) (*Normalizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("topics: read taxonomy %s: %w", path, err)
	}

	var parsed taxonomyFile
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("topics: parse taxonomy %s: %w", path, err)
	}

	n := &Normalizer{
		entries:        make(map[string]Entry, len(parsed.Taxonomy)),
		synonymMap:     make(map[string]string),
		promptExamples: parsed.PromptExamples,
	}

	for _, entry := range parsed.Taxonomy {
		n.entries[entry.Canonical] = entry
		n.synonymMap[strings.ToLower(entry.Canonical)] = entry.Canonical
		for _, syn := range entry.Synonyms {
			n.synonymMap[strings.ToLower(syn)] = entry.Canonical
		}
	}

	return n, nil
}

// OnUnknownTopic registers a callback invoked once per unmatched raw topic
// passed to Normalize or NormalizeSingle.
func (n *Normalizer) OnUnknownTopic(sink func(raw string)) {
	n.unknownSink = sink
}

// Normalize maps a batch of raw topic strings to deduplicated, sorted
// canonical topics. Unmatched entries are logged via unknownSink and
// otherwise dropped from the result (the original never invents a
// canonical bucket for them).
func (n *Normalizer) Normalize(rawTopics []string) []string {
	if len(rawTopics) == 0 {
		return nil
	}

	canonical := make(map[string]struct{})
	for _, raw := range rawTopics {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		lower := strings.ToLower(raw)

		if match, ok := n.synonymMap[lower]; ok {
			canonical[match] = struct{}{}
			continue
		}

		if match, ok := n.partialMatch(lower); ok {
			canonical[match] = struct{}{}
			continue
		}

		if n.unknownSink != nil {
			n.unknownSink(lower)
		}
	}

	result := make([]string, 0, len(canonical))
	for c := range canonical {
		result = append(result, c)
	}
	sort.Strings(result)
	return result
}

// NormalizeSingle maps one topic string, falling back to the lowercased
// original when nothing in the taxonomy matches.
func (n *Normalizer) NormalizeSingle(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	lower := strings.ToLower(raw)

	if match, ok := n.synonymMap[lower]; ok {
		return match
	}
	if match, ok := n.partialMatch(lower); ok {
		return match
	}

	if n.unknownSink != nil {
		n.unknownSink(lower)
	}
	return lower
}

// partialMatch looks for a synonym appearing as a complete word or phrase
// within text, preventing false positives like "park" matching "parking".
func (n *Normalizer) partialMatch(text string) (string, bool) {
	for synonym, canonical := range n.synonymMap {
		if containsWord(text, synonym) {
			return canonical, true
		}
	}
	return "", false
}

func containsWord(text, word string) bool {
	pattern := `\b` + regexp.QuoteMeta(word) + `\b`
	matched, err := regexp.MatchString(pattern, text)
	return err == nil && matched
}

// DisplayName returns the operator-facing label for a canonical topic,
// falling back to a title-cased rendering of the canonical key itself.
func (n *Normalizer) DisplayName(canonical string) string {
	if entry, ok := n.entries[canonical]; ok {
		return entry.DisplayName
	}
	return titleCase(strings.ReplaceAll(canonical, "_", " "))
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// IsCanonical reports whether topic is exactly a canonical taxonomy key
// (not a synonym), for validating model-produced topic lists that are
// expected to already be canonical.
func (n *Normalizer) IsCanonical(topic string) bool {
	_, ok := n.entries[topic]
	return ok
}

// AllCanonicalTopics returns every canonical topic, for API consumers that
// need the fixed taxonomy (e.g. a topic filter dropdown).
func (n *Normalizer) AllCanonicalTopics() []string {
	result := make([]string, 0, len(n.entries))
	for canonical := range n.entries {
		result = append(result, canonical)
	}
	sort.Strings(result)
	return result
}

// PromptExamples returns a comma-joined example list for inclusion in LLM
// prompts, so the model's free-text topic guesses land close to the
// taxonomy even before normalization runs.
func (n *Normalizer) PromptExamples() string {
	return strings.Join(n.promptExamples, ", ")
}
