package store

import (
	"database/sql"
	"regexp"
	"strings"
	"time"
)

// City is a municipality tracked for meeting sync.
type City struct {
	Banana       string
	Name         string
	State        string
	Vendor       string
	VendorSlug   string
	County       string
	Status       string
	Zipcodes     []string // first entry is primary
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastSyncedAt sql.NullTime
}

// Participation holds contact/join information extracted from packet text.
type Participation struct {
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	ZoomURL  string `json:"zoom_url,omitempty"`
	DialIn   string `json:"dial_in,omitempty"`
}

// Meeting is a single municipal meeting record.
type Meeting struct {
	ID               string
	CityBanana       string
	Title            string
	Date             sql.NullTime
	AgendaURL        string
	PacketURL        string
	Summary          sql.NullString
	Participation    Participation
	Status           string // cancelled|postponed|revised|rescheduled|"" (none)
	Topics           []string
	ProcessingStatus string // pending|processing|completed|failed
	ProcessingMethod sql.NullString
	ProcessingTime   sql.NullFloat64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Attachment is a single file linked from an agenda item.
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Type string `json:"type"`
}

// AgendaItem is one line item of a meeting's agenda.
type AgendaItem struct {
	ID          string
	MeetingID   string
	Title       string
	Sequence    int
	Attachments []Attachment
	Summary     sql.NullString
	Topics      []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// QueueMetadata is the processing_metadata payload every queue entry
// carries. CorrelationID threads a single identifier through enqueue ->
// worker log lines -> any downstream batch job, so an operator can follow
// one unit of work across all three without guessing from timestamps.
type QueueMetadata struct {
	CorrelationID string `json:"correlation_id"`
}

// QueueEntry is a unit of deferred processing work.
type QueueEntry struct {
	ID                 int64
	SourceURL          string
	MeetingID          string
	CityBanana         string
	Status             string // pending|processing|completed|failed|dead_letter
	Priority           int
	RetryCount         int
	ErrorMessage       string
	ProcessingMetadata string // raw JSON
	CreatedAt          time.Time
	StartedAt          sql.NullTime
	CompletedAt        sql.NullTime
}

// CacheEntry is a memoized processing result keyed by packet URL.
type CacheEntry struct {
	PacketURL        string
	ContentHash      string
	ProcessingMethod string
	ProcessingTime   float64
	CacheHitCount    int
	CreatedAt        time.Time
	LastAccessed     time.Time
}

// QueueStats summarizes processing-queue throughput for operators.
type QueueStats struct {
	CountByStatus      map[string]int
	AvgProcessingSecs  float64
}

var alnumOnly = regexp.MustCompile(`[^a-z0-9]`)

// DeriveBanana computes the deterministic city identifier from name and
// state: lowercased, alphanumeric-only name, concatenated with the
// uppercased two-letter state code.
func DeriveBanana(name, state string) string {
	normalized := alnumOnly.ReplaceAllString(strings.ToLower(name), "")
	return normalized + strings.ToUpper(state)
}

// NormalizeNameState lowercases and strips whitespace for name+state lookup
// matching, independent of banana derivation.
func NormalizeNameState(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, " ", ""))
}
