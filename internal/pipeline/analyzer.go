// Package pipeline glues PDF extraction, participation-info parsing, LLM
// summarization, and topic normalization into the per-meeting analysis step
// that runs once a packet URL is dequeued for processing.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/engagic/engagic/internal/llm"
	"github.com/engagic/engagic/internal/pdfextract"
	"github.com/engagic/engagic/internal/store"
	"github.com/engagic/engagic/internal/topics"
)

// AnalysisError marks a failure in extraction or summarization that the
// queue worker should count as a retryable processing failure rather than
// a bug in the analyzer itself.
type AnalysisError struct {
	Reason string
}

func (e *AnalysisError) Error() string { return e.Reason }

// Result is what a single-meeting analysis produces for the caller
// (typically the queue worker, which persists MeetingID/CityBanana itself).
type Result struct {
	Success        bool
	Summary        string
	ProcessingTime float64
	Method         string
	Cached         bool
	Participation  store.Participation
	Error          string
}

// textExtractor is the subset of *pdfextract.Extractor the analyzer needs,
// narrowed to an interface so tests can substitute a fake without touching
// the network or a PDF toolchain.
type textExtractor interface {
	ExtractFromURL(ctx context.Context, url string) pdfextract.Result
}

// summarizerClient is the subset of *llm.Summarizer the analyzer needs.
type summarizerClient interface {
	SummarizeMeeting(ctx context.Context, text string) (string, error)
	SummarizeBatch(ctx context.Context, requests []llm.ItemRequest) ([]llm.ItemResult, error)
}

// topicNormalizer is the subset of *topics.Normalizer the analyzer needs.
type topicNormalizer interface {
	Normalize(rawTopics []string) []string
}

// Analyzer ties together text extraction, summarization, and topic
// normalization for one meeting packet at a time.
type Analyzer struct {
	extractor  textExtractor
	summarizer summarizerClient
	topics     topicNormalizer
	store      *store.Store
	logger     *slog.Logger
}

// New builds an Analyzer over already-constructed components.
func New(extractor *pdfextract.Extractor, summarizer *llm.Summarizer, normalizer *topics.Normalizer, db *store.Store, logger *slog.Logger) *Analyzer {
	return &Analyzer{extractor: extractor, summarizer: summarizer, topics: normalizer, store: db, logger: logger}
}

// ProcessMeetingWithCache is the main entry point: it consults the
// processing cache by packet URL before doing any work, and on a miss runs
// extraction, summarization, and persistence for meetingID.
func (a *Analyzer) ProcessMeetingWithCache(ctx context.Context, meetingID, packetURL string) Result {
	if packetURL == "" {
		return Result{Success: false, Error: "no packet_url provided"}
	}

	if cached, hit := a.cacheHit(meetingID, packetURL); hit {
		a.logger.Info("cache hit", "meeting_id", meetingID)
		return cached
	}

	a.logger.Info("cache miss", "meeting_id", meetingID)
	start := time.Now()

	summary, method, participation, err := a.ProcessAgenda(ctx, packetURL)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		a.logger.Error("processing failed", "meeting_id", meetingID, "error", err)
		return Result{Success: false, Error: err.Error(), ProcessingTime: elapsed}
	}

	if err := a.persist(meetingID, packetURL, summary, method, elapsed, participation); err != nil {
		a.logger.Error("persisting result failed", "meeting_id", meetingID, "error", err)
		return Result{Success: false, Error: err.Error(), ProcessingTime: elapsed}
	}

	a.logger.Info("processing success", "meeting_id", meetingID)
	return Result{
		Success:        true,
		Summary:        summary,
		ProcessingTime: elapsed,
		Method:         method,
		Cached:         false,
		Participation:  participation,
	}
}

// cacheHit checks the processing cache for packetURL. A hit only tells us
// the content was already processed, not its text, so the summary itself
// is read back from the meeting row, which preserves prior enrichment
// across re-syncs; a cache entry with no corresponding stored summary
// (packet content matched but the meeting row itself was never updated)
// is treated as a miss so the meeting still gets processed.
func (a *Analyzer) cacheHit(meetingID, packetURL string) (Result, bool) {
	entry, err := a.store.GetCachedSummary(packetURL)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			a.logger.Warn("cache lookup failed", "packet_url", packetURL, "error", err)
		}
		return Result{}, false
	}

	meeting, err := a.store.GetMeeting(meetingID)
	if err != nil || !meeting.Summary.Valid {
		return Result{}, false
	}

	return Result{
		Success:        true,
		Summary:        meeting.Summary.String,
		ProcessingTime: entry.ProcessingTime,
		Method:         entry.ProcessingMethod,
		Cached:         true,
		Participation:  meeting.Participation,
	}, true
}

// ProcessAgenda extracts text, parses participation info, and summarizes a
// single packet, failing fast per the same "reject and let the queue
// worker retry" contract as the original pipeline. The returned method is
// always "pdfextract_gemini" on success.
func (a *Analyzer) ProcessAgenda(ctx context.Context, packetURL string) (summary, method string, participation store.Participation, err error) {
	extraction := a.extractor.ExtractFromURL(ctx, packetURL)
	if !extraction.Success || !pdfextract.ValidateText(extraction.Text) {
		a.logger.Warn("no text extracted or poor quality", "url", packetURL)
		return "", "", store.Participation{}, &AnalysisError{
			Reason: "document analysis failed: this PDF may be scanned or have complex formatting",
		}
	}

	participation = ParseParticipationInfo(extraction.Text)

	summary, err = a.summarizer.SummarizeMeeting(ctx, extraction.Text)
	if err != nil {
		a.logger.Warn("summarization failed", "url", packetURL, "error", err)
		return "", "", store.Participation{}, &AnalysisError{Reason: fmt.Sprintf("summarization failed: %v", err)}
	}

	return summary, "pdfextract_gemini", participation, nil
}

// persist writes the meeting row and the processing-cache entry in a
// single transaction, so a crash between the two never leaves a meeting
// marked complete without a matching cache entry (or vice versa).
func (a *Analyzer) persist(meetingID, packetURL, summary, method string, processingTime float64, participation store.Participation) error {
	if err := a.store.ApplyProcessingResult(meetingID, packetURL, summary, method, processingTime, &participation); err != nil {
		return fmt.Errorf("pipeline: apply processing result: %w", err)
	}
	return nil
}

// ExtractItemText concatenates extracted text from all of an agenda item's
// attachments, for building a batch summarization request. Attachments
// that fail to download or yield unusable text are skipped rather than
// failing the whole item; ok is false only when none yielded any text.
func (a *Analyzer) ExtractItemText(ctx context.Context, attachments []store.Attachment) (text string, ok bool) {
	var parts []string
	for _, att := range attachments {
		if att.URL == "" {
			continue
		}
		result := a.extractor.ExtractFromURL(ctx, att.URL)
		if result.Success && pdfextract.ValidateText(result.Text) {
			parts = append(parts, result.Text)
		}
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, "\n\n"), true
}

// ProcessBatchItems summarizes a batch of agenda items (one meeting's
// itemized agenda) via the Gemini batch API and normalizes each
// successful response's topics before returning.
func (a *Analyzer) ProcessBatchItems(ctx context.Context, requests []llm.ItemRequest) ([]llm.ItemResult, error) {
	if len(requests) == 0 {
		return nil, nil
	}

	results, err := a.summarizer.SummarizeBatch(ctx, requests)
	if err != nil {
		return nil, fmt.Errorf("pipeline: batch summarization: %w", err)
	}

	for i := range results {
		if results[i].Success {
			results[i].Topics = a.topics.Normalize(results[i].Topics)
		}
	}
	return results, nil
}
