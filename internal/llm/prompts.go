package llm

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// PromptVariant is one named template within a category ("meeting.short_agenda",
// "item.standard", ...), with an optional JSON response schema for
// JSON-constrained item prompts.
type PromptVariant struct {
	Template       string         `json:"template"`
	ResponseSchema map[string]any `json:"response_schema,omitempty"`
}

// Prompts is the full loaded prompts file: category -> variant name -> PromptVariant.
type Prompts map[string]map[string]PromptVariant

// LoadPrompts reads the prompts JSON file at path.
func LoadPrompts(path string) (Prompts, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("llm: read prompts file %s: %w", path, err)
	}
	var p Prompts
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("llm: parse prompts file %s: %w", path, err)
	}
	return p, nil
}

// Render fetches the named variant and interpolates vars into its template
// using "{name}" placeholders.
func (p Prompts) Render(category, variant string, vars map[string]string) (string, error) {
	cat, ok := p[category]
	if !ok {
		return "", fmt.Errorf("llm: unknown prompt category %q", category)
	}
	v, ok := cat[variant]
	if !ok {
		return "", fmt.Errorf("llm: unknown prompt variant %q.%q", category, variant)
	}

	text := v.Template
	for name, value := range vars {
		text = strings.ReplaceAll(text, "{"+name+"}", value)
	}
	return text, nil
}

// ResponseSchema returns the variant's JSON response schema, or nil if it
// has none (meeting-level prompts are free-form markdown, not JSON).
func (p Prompts) ResponseSchema(category, variant string) map[string]any {
	cat, ok := p[category]
	if !ok {
		return nil
	}
	return cat[variant].ResponseSchema
}
