// Package memstore provides an in-memory [taskstore.Store] for tests and
// single-node deployments that do not need durable task history.
package memstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/minahq/mina/pkg/taskstore"
)

var _ taskstore.Store = (*Store)(nil)

// Store keeps tasks in process memory. Safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	tasks []taskstore.Task
	now   func() time.Time
}

// Option configures a [Store].
type Option func(*Store)

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty in-memory store.
func New(opts ...Option) *Store {
	s := &Store{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SaveTasks implements [taskstore.Store].
func (s *Store) SaveTasks(_ context.Context, tasks []taskstore.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tasks {
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = s.now()
		}
		s.tasks = append(s.tasks, t)
	}
	return nil
}

// ListTasks implements [taskstore.Store].
func (s *Store) ListTasks(_ context.Context, meetingID string) ([]taskstore.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []taskstore.Task{}
	for _, t := range s.tasks {
		if t.MeetingID == meetingID {
			out = append(out, t)
		}
	}
	return out, nil
}

// SimilarTasks implements [taskstore.Store] with a linear cosine-distance
// scan. Fine for the in-memory store's intended scale.
func (s *Store) SimilarTasks(_ context.Context, embedding []float32, topK int) ([]taskstore.SimilarTask, error) {
	if topK <= 0 {
		return []taskstore.SimilarTask{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := []taskstore.SimilarTask{}
	for _, t := range s.tasks {
		if len(t.Embedding) == 0 {
			continue
		}
		d, err := cosineDistance(embedding, t.Embedding)
		if err != nil {
			return nil, fmt.Errorf("memstore: similar tasks: %w", err)
		}
		results = append(results, taskstore.SimilarTask{Task: t, Distance: d})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Close implements [taskstore.Store]. It is a no-op for the in-memory store.
func (s *Store) Close() {}

// cosineDistance returns 1 - cosine similarity of a and b.
func cosineDistance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("dimension mismatch: %d vs %d", len(a), len(b))
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1, nil
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB)), nil
}
