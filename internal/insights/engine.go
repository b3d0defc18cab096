// Package insights turns finalized meeting transcripts into deduplicated,
// persisted action items.
//
// The [Engine] runs the full pipeline: LLM extraction, meta-commentary
// filtering and near-duplicate resolution, optional title embedding, and
// persistence. Every stage after resolution degrades gracefully: an
// embeddings or storage failure is logged and the resolved tasks are still
// returned to the caller, because losing durable history is preferable to
// losing the finalize response.
package insights

import (
	"context"
	"log/slog"
	"time"

	"github.com/minahq/mina/internal/tasks"
	"github.com/minahq/mina/pkg/provider/embeddings"
	"github.com/minahq/mina/pkg/taskstore"
)

// Engine orchestrates transcript finalization. Construct with [NewEngine].
type Engine struct {
	extractor *tasks.Extractor
	resolver  *tasks.Resolver
	embedder  embeddings.Provider // optional
	store     taskstore.Store     // optional
	log       *slog.Logger
	now       func() time.Time
}

// Option configures an [Engine].
type Option func(*Engine)

// WithEmbedder enables title embeddings on persisted tasks. Without one,
// tasks are stored with nil embeddings and cross-meeting similarity search
// returns nothing for them.
func WithEmbedder(p embeddings.Provider) Option {
	return func(e *Engine) { e.embedder = p }
}

// WithStore enables task persistence. Without one, resolved tasks are only
// returned to the caller.
func WithStore(s taskstore.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an Engine from its two mandatory stages.
func NewEngine(extractor *tasks.Extractor, resolver *tasks.Resolver, opts ...Option) *Engine {
	e := &Engine{
		extractor: extractor,
		resolver:  resolver,
		log:       slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Finalize extracts, deduplicates and persists the action items of a
// finished meeting. It returns the resolved tasks and the number of raw
// candidates the extractor produced before deduplication; the task slice
// reflects the resolver output even when embedding or persistence fails.
func (e *Engine) Finalize(ctx context.Context, meetingID, transcript string) ([]tasks.ResolvedTask, int) {
	candidates := e.extractor.Extract(ctx, transcript)
	resolved := e.resolver.Resolve(transcript, candidates)

	e.log.Info("transcript finalized",
		"meeting_id", meetingID,
		"candidates", len(candidates),
		"resolved", len(resolved))

	if e.store != nil && len(resolved) > 0 {
		e.persist(ctx, meetingID, resolved)
	}
	return resolved, len(candidates)
}

// persist stores the resolved tasks, embedding titles first when an
// embeddings provider is configured. Failures are logged and swallowed.
func (e *Engine) persist(ctx context.Context, meetingID string, resolved []tasks.ResolvedTask) {
	stored := make([]taskstore.Task, len(resolved))
	for i, r := range resolved {
		stored[i] = taskstore.Task{
			MeetingID:     meetingID,
			Title:         r.Title,
			EvidenceQuote: r.EvidenceQuote,
			Owner:         r.Owner,
			Priority:      string(r.Priority),
			Due:           r.Due,
			Confidence:    r.ConfidenceScore,
			CreatedAt:     e.now(),
		}
	}

	if e.embedder != nil {
		titles := make([]string, len(resolved))
		for i, r := range resolved {
			titles[i] = r.Title
		}
		vectors, err := e.embedder.EmbedBatch(ctx, titles)
		if err != nil || len(vectors) != len(stored) {
			e.log.Warn("task title embedding failed, storing without vectors",
				"meeting_id", meetingID,
				"model", e.embedder.ModelID(),
				"error", err)
		} else {
			for i := range stored {
				stored[i].Embedding = vectors[i]
			}
		}
	}

	if err := e.store.SaveTasks(ctx, stored); err != nil {
		e.log.Warn("task persistence failed, continuing without durable history",
			"meeting_id", meetingID,
			"tasks", len(stored),
			"error", err)
	}
}

// SimilarTasks surfaces previously stored tasks whose titles are close to
// title. It returns nil without error when the engine has no store or no
// embedder, or when embedding the query fails.
func (e *Engine) SimilarTasks(ctx context.Context, title string, topK int) []taskstore.SimilarTask {
	if e.store == nil || e.embedder == nil {
		return nil
	}
	vec, err := e.embedder.Embed(ctx, title)
	if err != nil {
		e.log.Warn("similar task lookup: embed failed", "error", err)
		return nil
	}
	similar, err := e.store.SimilarTasks(ctx, vec, topK)
	if err != nil {
		e.log.Warn("similar task lookup failed", "error", err)
		return nil
	}
	return similar
}
