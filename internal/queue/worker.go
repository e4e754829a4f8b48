// Package queue drains the processing queue: pull the highest-priority
// pending entry, run it through the analysis pipeline in the mode its
// source_url scheme calls for, and mark the outcome.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/engagic/engagic/internal/llm"
	"github.com/engagic/engagic/internal/pipeline"
	"github.com/engagic/engagic/internal/retry"
	"github.com/engagic/engagic/internal/store"
)

// itemsScheme prefixes a synthetic source_url for meetings whose agenda is
// itemized: "items://<meeting_id>" rather than a single packet URL.
const itemsScheme = "items://"

// analyzer is the subset of *pipeline.Analyzer the worker needs, narrowed
// so tests can substitute a fake.
type analyzer interface {
	ProcessMeetingWithCache(ctx context.Context, meetingID, packetURL string) pipeline.Result
	ExtractItemText(ctx context.Context, attachments []store.Attachment) (string, bool)
	ProcessBatchItems(ctx context.Context, requests []llm.ItemRequest) ([]llm.ItemResult, error)
}

// Worker continuously drains the processing queue.
type Worker struct {
	store    *store.Store
	analyzer analyzer
	policy   retry.Policy
	logger   *slog.Logger
}

// New builds a Worker over an already-constructed Analyzer.
func New(db *store.Store, a *pipeline.Analyzer, logger *slog.Logger) *Worker {
	return &Worker{
		store:    db,
		analyzer: a,
		policy:   retry.DeadLetterPolicy(),
		logger:   logger,
	}
}

// Run polls for work at pollInterval until ctx is cancelled, draining the
// entire queue on each tick before waiting for the next one.
func (w *Worker) Run(ctx context.Context, pollInterval time.Duration) {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	w.logger.Info("queue worker started", "poll_interval", pollInterval)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("queue worker stopping")
			return
		case <-ticker.C:
			w.DrainAll(ctx)
		}
	}
}

// DrainAll processes queue entries one at a time until none remain or ctx
// is cancelled.
func (w *Worker) DrainAll(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if !w.drainOne(ctx) {
			return
		}
	}
}

// drainOne claims and processes a single queue entry. It reports whether a
// job was found at all, independent of whether processing succeeded, so
// the caller knows whether to keep draining.
func (w *Worker) drainOne(ctx context.Context) bool {
	entry, err := w.store.GetNextForProcessing("")
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			w.logger.Error("claim queue entry failed", "error", err)
		}
		return false
	}

	if err := w.process(ctx, entry); err != nil {
		w.logger.Error("processing queue entry failed", "id", entry.ID, "source_url", entry.SourceURL,
			"correlation_id", correlationID(*entry), "error", err)
		w.fail(ctx, entry, err)
	}
	return true
}

// correlationID pulls the operator-facing correlation id stamped on a
// queue entry at enqueue time, for tying a log line back to the sync or
// backfill sweep that created the entry. Entries from before this field
// existed decode to an empty string.
func correlationID(e store.QueueEntry) string {
	var meta store.QueueMetadata
	if err := store.GetQueueEntryMetadata(e, &meta); err != nil {
		return ""
	}
	return meta.CorrelationID
}

func (w *Worker) process(ctx context.Context, entry *store.QueueEntry) error {
	if strings.HasPrefix(entry.SourceURL, itemsScheme) {
		return w.processItems(ctx, entry)
	}
	return w.processPacket(ctx, entry)
}

// processPacket treats source_url as a monolithic packet and runs it
// through the single-meeting analysis path.
func (w *Worker) processPacket(ctx context.Context, entry *store.QueueEntry) error {
	result := w.analyzer.ProcessMeetingWithCache(ctx, entry.MeetingID, entry.SourceURL)
	if !result.Success {
		return errors.New(result.Error)
	}
	return w.store.MarkProcessingComplete(entry.ID)
}

// processItems fetches every agenda item for the meeting, extracts text
// from each item's attachments, and summarizes them together in one batch
// call. Per-item failures are recorded on the item itself and do not fail
// the queue entry; only a failure of the batch submission itself (e.g.
// quota exhaustion surviving its own retries) does that.
func (w *Worker) processItems(ctx context.Context, entry *store.QueueEntry) error {
	meetingID := strings.TrimPrefix(entry.SourceURL, itemsScheme)
	items, err := w.store.GetAgendaItems(meetingID)
	if err != nil {
		return fmt.Errorf("load agenda items for %s: %w", meetingID, err)
	}
	if len(items) == 0 {
		return w.store.MarkProcessingComplete(entry.ID)
	}

	requests := make([]llm.ItemRequest, 0, len(items))
	for _, item := range items {
		if item.Summary.Valid {
			continue
		}
		text, ok := w.analyzer.ExtractItemText(ctx, item.Attachments)
		if !ok {
			w.logger.Warn("no usable text in item attachments", "item_id", item.ID)
			continue
		}
		requests = append(requests, llm.ItemRequest{ItemID: item.ID, Title: item.Title, Text: text})
	}
	if len(requests) == 0 {
		return w.store.MarkProcessingComplete(entry.ID)
	}

	results, err := w.analyzer.ProcessBatchItems(ctx, requests)
	if err != nil {
		return fmt.Errorf("batch summarize items for %s: %w", meetingID, err)
	}

	succeeded, failed := 0, 0
	for _, r := range results {
		if !r.Success {
			failed++
			w.logger.Warn("item summarization failed", "item_id", r.ItemID, "error", r.Error)
			continue
		}
		if err := w.store.UpdateItemSummary(r.ItemID, r.Summary, r.Topics); err != nil {
			w.logger.Error("persisting item summary failed", "item_id", r.ItemID, "error", err)
			failed++
			continue
		}
		succeeded++
	}

	w.logger.Info("item batch processed", "meeting_id", meetingID, "correlation_id", correlationID(*entry),
		"succeeded", succeeded, "failed", failed)
	return w.store.MarkProcessingComplete(entry.ID)
}

// fail records the failure against the queue entry and, unless it just
// crossed the dead-letter threshold, pauses briefly before the next claim
// so a run of chronic failures doesn't spin the poll loop hot.
func (w *Worker) fail(ctx context.Context, entry *store.QueueEntry, cause error) {
	if err := w.store.MarkProcessingFailed(entry.ID, cause.Error(), true); err != nil {
		w.logger.Error("mark processing failed errored", "id", entry.ID, "error", err)
		return
	}

	if entry.RetryCount+1 >= store.DeadLetterThreshold {
		return
	}
	delay, shouldRetry := w.policy.NextDelay(entry.RetryCount)
	if !shouldRetry {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}
