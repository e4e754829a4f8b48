// Package llm routes extracted agenda text to a Gemini model tier, builds
// size-appropriate prompts and thinking budgets, and parses the structured
// response back into a stored summary and topic list.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/engagic/engagic/internal/retry"
)

// ItemRequest is one agenda item queued for batch summarization.
type ItemRequest struct {
	ItemID    string
	Title     string
	Text      string
	PageCount int // 0 means "estimate from text length"
}

// ItemResult is the outcome of summarizing one ItemRequest.
type ItemResult struct {
	ItemID  string
	Success bool
	Summary string
	Topics  []string
	Error   string
}

const batchChunkSize = 15
const interChunkDelay = 90 * time.Second
const batchPollInterval = 10 * time.Second
const batchMaxWait = 30 * time.Minute

var terminalBatchStates = map[string]bool{
	"JOB_STATE_SUCCEEDED": true,
	"JOB_STATE_FAILED":    true,
	"JOB_STATE_CANCELLED": true,
	"JOB_STATE_EXPIRED":   true,
}

// Summarizer orchestrates Gemini model/prompt/thinking-budget selection
// and response parsing for both meeting-level and item-level summaries.
type Summarizer struct {
	client  *genai.Client
	prompts Prompts
	topics  TopicValidator
	logger  *slog.Logger
	sleep   func(time.Duration) // overridable for tests
}

// New builds a Summarizer against the given API key and loaded prompts.
// isCanonicalTopic validates topics the model returns against the
// taxonomy; pass nil to accept every topic as-is.
func New(ctx context.Context, apiKey string, prompts Prompts, isCanonicalTopic TopicValidator, logger *slog.Logger) (*Summarizer, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("llm: create client: %w", err)
	}
	return &Summarizer{
		client:  client,
		prompts: prompts,
		topics:  isCanonicalTopic,
		logger:  logger,
		sleep:   time.Sleep,
	}, nil
}

// SummarizeMeeting produces a markdown summary for a whole agenda's text.
func (s *Summarizer) SummarizeMeeting(ctx context.Context, text string) (string, error) {
	charCount := len(text)
	pageCount := estimatePageCount(charCount)
	model := meetingModel(charCount, pageCount)
	variant := meetingPromptVariant(pageCount)

	s.logger.Info("summarizing meeting", "pages", pageCount, "chars", charCount, "model", model, "prompt", variant)

	prompt, err := s.prompts.Render("meeting", variant, map[string]string{"text": text})
	if err != nil {
		return "", err
	}

	config := &genai.GenerateContentConfig{Temperature: genai.Ptr(float32(0.3))}
	if tier := thinkingConfigFor(pageCount, charCount, model); tier.Explicit {
		config.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: genai.Ptr(tier.Budget)}
	}

	resp, err := s.client.Models.GenerateContent(ctx, model, genai.Text(prompt), config)
	if err != nil {
		return "", fmt.Errorf("llm: meeting summarization failed: %w", err)
	}
	text = resp.Text()
	if text == "" {
		return "", fmt.Errorf("llm: meeting summarization returned no text")
	}
	return text, nil
}

// SummarizeItem produces a markdown summary and validated topic list for a
// single agenda item. pageCount <= 0 falls back to estimating from text length.
func (s *Summarizer) SummarizeItem(ctx context.Context, title, text string, pageCount int) (string, []string, error) {
	charCount := len(text)
	if pageCount <= 0 {
		pageCount = estimatePageCount(charCount)
	}
	route := routeItem(charCount, pageCount)

	s.logger.Info("summarizing item", "title", title, "pages", pageCount, "chars", charCount, "model", route.Model, "prompt", route.PromptVariant)

	prompt, err := s.prompts.Render("item", route.PromptVariant, map[string]string{"title": title, "text": text})
	if err != nil {
		return "", nil, err
	}

	config := itemGenerateConfig(s.prompts.ResponseSchema("item", route.PromptVariant), 2048)
	resp, err := s.client.Models.GenerateContent(ctx, route.Model, genai.Text(prompt), config)
	if err != nil {
		return "", nil, fmt.Errorf("llm: item summarization failed: %w", err)
	}
	raw := resp.Text()
	if raw == "" {
		return "", nil, fmt.Errorf("llm: item summarization returned no text")
	}

	return ParseItemResponse(raw, s.topics)
}

// itemGenerateConfig builds the JSON-constrained config shared by single
// and batch item requests.
func itemGenerateConfig(schema map[string]any, maxOutputTokens int32) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(0.3)),
		MaxOutputTokens:  maxOutputTokens,
		ResponseMIMEType: "application/json",
	}
	if schema != nil {
		config.ResponseJsonSchema = schema
	}
	return config
}

// SummarizeBatch processes item requests in chunks of 15 via the Gemini
// batch API, sleeping 90s between chunks to respect quota refill and
// retrying a whole chunk with exponential backoff on quota exhaustion. It
// returns a result for every request, in input order, even across chunk
// boundaries. All results come back together once the last chunk finishes;
// nothing is handed to the caller chunk by chunk, so nothing can be
// persisted before the whole batch is done.
func (s *Summarizer) SummarizeBatch(ctx context.Context, requests []ItemRequest) ([]ItemResult, error) {
	if len(requests) == 0 {
		return nil, nil
	}

	var results []ItemResult
	for i := 0; i < len(requests); i += batchChunkSize {
		end := i + batchChunkSize
		if end > len(requests) {
			end = len(requests)
		}
		chunk := requests[i:end]

		chunkResults := s.processBatchChunk(ctx, chunk)
		results = append(results, chunkResults...)

		if end < len(requests) {
			s.logger.Info("batch: sleeping before next chunk", "delay", interChunkDelay)
			s.sleep(interChunkDelay)
		}
	}
	return results, nil
}

// processBatchChunk submits one chunk as a single batch job and retries the
// whole chunk under BatchChunkPolicy if the provider reports quota
// exhaustion. Any other failure ends the attempts at once. When no attempt
// succeeds, every request in the chunk is marked failed, matching the
// "chunk failure doesn't fail the sweep" semantics.
func (s *Summarizer) processBatchChunk(ctx context.Context, chunk []ItemRequest) []ItemResult {
	policy := retry.BatchChunkPolicy()

	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		results, quotaErr, err := s.submitAndPollChunk(ctx, chunk)
		if err == nil {
			return results
		}
		lastErr = err

		if !quotaErr {
			break
		}
		delay, retryable := policy.NextDelay(attempt)
		if !retryable {
			break
		}
		s.logger.Warn("batch chunk hit quota limit, retrying", "attempt", attempt+1, "delay", delay)
		s.sleep(delay)
	}

	failed := make([]ItemResult, len(chunk))
	for i, req := range chunk {
		failed[i] = ItemResult{ItemID: req.ItemID, Success: false, Error: lastErr.Error()}
	}
	return failed
}

// submitAndPollChunk submits the chunk as a single inline-request batch job
// and polls until a terminal state or the 30-minute cap. The bool return
// reports whether the failure (if any) looks like quota exhaustion, so the
// caller knows whether a retry is worthwhile.
func (s *Summarizer) submitAndPollChunk(ctx context.Context, chunk []ItemRequest) ([]ItemResult, bool, error) {
	inlineRequests := make([]*genai.InlinedRequest, len(chunk))
	for i, req := range chunk {
		pageCount := req.PageCount
		if pageCount <= 0 {
			pageCount = estimatePageCount(len(req.Text))
		}
		route := routeItem(len(req.Text), pageCount)

		prompt, err := s.prompts.Render("item", route.PromptVariant, map[string]string{"title": req.Title, "text": req.Text})
		if err != nil {
			return nil, false, err
		}
		config := itemGenerateConfig(s.prompts.ResponseSchema("item", route.PromptVariant), 8192)

		inlineRequests[i] = &genai.InlinedRequest{
			Model:    route.Model,
			Contents: []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)},
			Config:   config,
		}
	}

	job, err := s.client.Batches.Create(ctx, ModelFlagship, inlineRequests, &genai.CreateBatchJobConfig{
		DisplayName: fmt.Sprintf("engagic-chunk-%s", uuid.NewString()),
	})
	if err != nil {
		return nil, isQuotaError(err), fmt.Errorf("llm: submit batch: %w", err)
	}

	waited := time.Duration(0)
	for waited < batchMaxWait {
		job, err = s.client.Batches.Get(ctx, job.Name, nil)
		if err != nil {
			return nil, isQuotaError(err), fmt.Errorf("llm: poll batch %s: %w", job.Name, err)
		}
		if terminalBatchStates[string(job.State)] {
			break
		}
		s.sleep(batchPollInterval)
		waited += batchPollInterval
	}
	if waited >= batchMaxWait {
		return nil, false, fmt.Errorf("llm: batch %s timed out after %s", job.Name, batchMaxWait)
	}
	if job.State != "JOB_STATE_SUCCEEDED" {
		return nil, false, fmt.Errorf("llm: batch %s finished in state %s", job.Name, job.State)
	}

	return s.parseChunkResults(chunk, job)
}

// parseChunkResults maps each inlined response back to its originating
// request by index, parsing independently so one malformed response never
// sinks the rest of the chunk. Requests with no matching response are
// marked failed.
func (s *Summarizer) parseChunkResults(chunk []ItemRequest, job *genai.BatchJob) ([]ItemResult, bool, error) {
	if job.Dest == nil || job.Dest.InlinedResponses == nil {
		return nil, false, fmt.Errorf("llm: batch %s returned no inlined responses", job.Name)
	}

	results := make([]ItemResult, 0, len(chunk))
	for i, resp := range job.Dest.InlinedResponses {
		if i >= len(chunk) {
			break
		}
		req := chunk[i]

		if resp.Error != nil {
			results = append(results, ItemResult{ItemID: req.ItemID, Success: false, Error: resp.Error.Message})
			continue
		}
		if resp.Response == nil {
			results = append(results, ItemResult{ItemID: req.ItemID, Success: false, Error: "empty response"})
			continue
		}

		if len(resp.Response.Candidates) > 0 {
			finish := resp.Response.Candidates[0].FinishReason
			if finish == genai.FinishReasonMaxTokens {
				results = append(results, ItemResult{ItemID: req.ItemID, Success: false, Error: "truncated: MAX_TOKENS"})
				continue
			}
		}

		text := resp.Response.Text()
		summary, topics, err := ParseItemResponse(text, s.topics)
		if err != nil {
			s.logger.Error("failed to parse batch item response", "item_id", req.ItemID, "error", err)
			results = append(results, ItemResult{ItemID: req.ItemID, Success: false, Error: err.Error()})
			continue
		}
		results = append(results, ItemResult{ItemID: req.ItemID, Success: true, Summary: summary, Topics: topics})
	}
	for i := len(results); i < len(chunk); i++ {
		results = append(results, ItemResult{ItemID: chunk[i].ItemID, Success: false, Error: "missing response"})
	}
	return results, false, nil
}

// isQuotaError recognizes the provider's rate-limit signal so the caller
// can distinguish a retryable quota failure from a hard error.
func isQuotaError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED")
}
