package llm

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// itemResponse is the required JSON shape an item-level summarization
// response must parse into.
type itemResponse struct {
	Thinking              string   `json:"thinking"`
	SummaryMarkdown       string   `json:"summary_markdown"`
	CitizenImpactMarkdown string   `json:"citizen_impact_markdown"`
	Topics                []string `json:"topics"`
	Confidence            string   `json:"confidence"`
}

var requiredItemFields = []string{"thinking", "summary_markdown", "citizen_impact_markdown", "topics", "confidence"}

// TopicValidator reports whether topic is a member of the canonical
// taxonomy, letting response parsing drop anything the LLM invented.
type TopicValidator func(topic string) bool

// ParseItemResponse parses an item-level JSON response into its assembled
// markdown summary and validated topic list. Missing required keys are a
// hard error; invalid topics are dropped (substituting ["other"] if every
// topic was invalid).
func ParseItemResponse(raw string, isCanonicalTopic TopicValidator) (summary string, topics []string, err error) {
	raw = strings.TrimSpace(raw)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return "", nil, fmt.Errorf("llm: parse item response: %w", err)
	}

	var missing []string
	for _, f := range requiredItemFields {
		if _, ok := fields[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return "", nil, fmt.Errorf("llm: item response missing required fields: %v", missing)
	}

	var resp itemResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return "", nil, fmt.Errorf("llm: decode item response: %w", err)
	}

	validated := make([]string, 0, len(resp.Topics))
	for _, t := range resp.Topics {
		if isCanonicalTopic == nil || isCanonicalTopic(t) {
			validated = append(validated, t)
		}
	}
	if len(validated) == 0 && len(resp.Topics) > 0 {
		validated = []string{"other"}
	}
	sort.Strings(validated)

	var b strings.Builder
	if resp.Thinking != "" {
		fmt.Fprintf(&b, "## Thinking\n\n%s\n\n", resp.Thinking)
	}
	if resp.SummaryMarkdown != "" {
		fmt.Fprintf(&b, "## Summary\n\n%s\n\n", resp.SummaryMarkdown)
	}
	if resp.CitizenImpactMarkdown != "" {
		fmt.Fprintf(&b, "## Citizen Impact\n\n%s\n\n", resp.CitizenImpactMarkdown)
	}
	if resp.Confidence != "" {
		fmt.Fprintf(&b, "## Confidence\n\n%s", resp.Confidence)
	}

	return strings.TrimSpace(b.String()), validated, nil
}
