// Package taskstore defines persistence for resolved action items.
//
// A [Store] keeps the deduplicated tasks produced when a meeting transcript
// is finalized, together with optional title embeddings so that similar tasks
// can be surfaced across meetings ("you already committed to this last
// Tuesday"). Two implementations exist: an in-memory store for tests and
// single-node deployments, and a PostgreSQL/pgvector store for production.
package taskstore

import (
	"context"
	"time"
)

// Task is a persisted resolved action item.
type Task struct {
	// ID uniquely identifies the stored task.
	ID string `json:"id"`
	// MeetingID is the transcription session the task was extracted from.
	MeetingID string `json:"meeting_id"`
	// Title is the short action statement.
	Title string `json:"title"`
	// EvidenceQuote is the transcript excerpt the task was derived from.
	EvidenceQuote string `json:"evidence_quote"`
	// Owner is the responsible person, if named.
	Owner string `json:"owner"`
	// Priority is high, medium or low.
	Priority string `json:"priority"`
	// Due is a natural-language due hint.
	Due string `json:"due"`
	// Confidence is the extractor's certainty in [0, 1].
	Confidence float64 `json:"confidence"`
	// Embedding is the title embedding vector, or nil when no embeddings
	// provider is configured.
	Embedding []float32 `json:"-"`
	// CreatedAt is when the task was persisted.
	CreatedAt time.Time `json:"created_at"`
}

// SimilarTask pairs a stored task with its distance to a query embedding.
// Smaller distance means more similar.
type SimilarTask struct {
	Task
	Distance float64 `json:"distance"`
}

// Store persists resolved tasks.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// SaveTasks persists a batch of tasks. Tasks with an empty ID are
	// assigned one by the store.
	SaveTasks(ctx context.Context, tasks []Task) error

	// ListTasks returns all tasks recorded for meetingID, oldest first.
	ListTasks(ctx context.Context, meetingID string) ([]Task, error)

	// SimilarTasks returns up to topK stored tasks whose title embeddings
	// are closest (cosine distance) to embedding, most similar first.
	// Tasks stored without an embedding are never returned.
	SimilarTasks(ctx context.Context, embedding []float32, topK int) ([]SimilarTask, error)

	// Close releases any resources held by the store.
	Close()
}
