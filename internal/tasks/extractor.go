package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/minahq/mina/pkg/provider/llm"
)

// systemPrompt instructs the model to emit candidate tasks as strict JSON.
// The conservative wording keeps hallucinated action items down; anything the
// model is unsure about should get a low confidence_score rather than be
// omitted, since resolution filters by confidence downstream.
const systemPrompt = `You extract action items from meeting transcripts.

Rules:
1. Only extract tasks that a participant actually committed to or assigned.
2. Quote the exact transcript sentence the task came from in evidence_quote.
3. Set owner only when a person is named; otherwise leave it empty.
4. priority is one of: high, medium, low.
5. due is the natural-language due phrase if one was said, otherwise empty.
6. confidence_score is your certainty in [0,1] that this is a real task.
7. Do not extract commentary about the meeting, recording, or note-taking.

Respond with ONLY a JSON object in this exact format:
{"tasks": [{"title": "...", "evidence_quote": "...", "owner": "...", "priority": "medium", "due": "", "confidence_score": 0.8}]}

If the transcript contains no action items, respond with {"tasks": []}.
No markdown, no explanation, no additional keys.`

const (
	extractTemperature = 0.1
	extractMaxTokens   = 2048
)

// extractionResult is the JSON envelope the model is asked to produce.
type extractionResult struct {
	Tasks []CandidateTask `json:"tasks"`
}

// Extractor asks an LLM for candidate action items in a finalized transcript.
//
// Extraction is strictly best-effort: a provider failure or an unparseable
// response yields an empty candidate list and a warning log, never an error
// that could block finalization.
type Extractor struct {
	provider llm.Provider
	log      *slog.Logger
}

// ExtractorOption configures an [Extractor].
type ExtractorOption func(*Extractor)

// WithExtractorLogger sets the logger. Defaults to [slog.Default].
func WithExtractorLogger(log *slog.Logger) ExtractorOption {
	return func(e *Extractor) { e.log = log }
}

// NewExtractor creates an Extractor backed by provider.
func NewExtractor(provider llm.Provider, opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		provider: provider,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the candidate tasks the model found in transcript. An empty
// or whitespace-only transcript short-circuits to no candidates without a
// provider call.
func (e *Extractor) Extract(ctx context.Context, transcript string) []CandidateTask {
	if strings.TrimSpace(transcript) == "" {
		return []CandidateTask{}
	}

	resp, err := e.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages:     []llm.Message{llm.UserMessage(transcript)},
		Temperature:  extractTemperature,
		MaxTokens:    extractMaxTokens,
	})
	if err != nil {
		e.log.Warn("task extraction failed, continuing without candidates",
			"model", e.provider.ModelID(),
			"error", err)
		return []CandidateTask{}
	}
	if resp == nil || resp.Content == "" {
		e.log.Warn("task extraction returned empty response",
			"model", e.provider.ModelID())
		return []CandidateTask{}
	}

	candidates, err := parseCandidates(resp.Content)
	if err != nil {
		e.log.Warn("task extraction response unparseable, continuing without candidates",
			"model", e.provider.ModelID(),
			"error", err)
		return []CandidateTask{}
	}
	return candidates
}

// parseCandidates decodes the model's JSON reply, tolerating markdown code
// fences. Candidates with malformed fields are normalized, not dropped: an
// unknown priority becomes medium and confidence is clamped into [0, 1].
func parseCandidates(content string) ([]CandidateTask, error) {
	cleaned := stripMarkdown(content)

	var result extractionResult
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		return nil, fmt.Errorf("tasks: decode extraction response: %w", err)
	}

	candidates := result.Tasks
	if candidates == nil {
		candidates = []CandidateTask{}
	}
	for i := range candidates {
		if !candidates[i].Priority.Valid() {
			candidates[i].Priority = PriorityMedium
		}
		if candidates[i].ConfidenceScore < 0 {
			candidates[i].ConfidenceScore = 0
		}
		if candidates[i].ConfidenceScore > 1 {
			candidates[i].ConfidenceScore = 1
		}
	}
	return candidates, nil
}

// stripMarkdown removes a surrounding markdown code fence if the model added
// one despite instructions.
func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	if after, ok := strings.CutPrefix(s, "```json"); ok {
		s = after
	} else if after, ok := strings.CutPrefix(s, "```"); ok {
		s = after
	}
	if before, ok := strings.CutSuffix(strings.TrimSpace(s), "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}
