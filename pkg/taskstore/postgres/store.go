package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/minahq/mina/pkg/taskstore"
)

var _ taskstore.Store = (*Store)(nil)

// Store is the PostgreSQL-backed task store. It holds a single
// [pgxpool.Pool]; all operations are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store, establishes a connection pool to the
// PostgreSQL database at dsn, registers pgvector types on every connection,
// and runs [Migrate] to ensure the schema exists.
//
// embeddingDimensions must match the output dimension of the embedding model
// used to produce [taskstore.Task.Embedding] values.
func NewStore(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("task store: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so the embedding
	// column can be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("task store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("task store: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("task store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// SaveTasks implements [taskstore.Store]. Tasks with an empty ID are assigned
// a fresh UUID. The batch is written in a single transaction.
func (s *Store) SaveTasks(ctx context.Context, tasks []taskstore.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	const q = `
		INSERT INTO tasks
		    (id, meeting_id, title, evidence_quote, owner, priority, due, confidence, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, COALESCE($10, now()))`

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("task store: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, t := range tasks {
		if t.ID == "" {
			t.ID = uuid.NewString()
		}

		var vec any
		if len(t.Embedding) > 0 {
			vec = pgvector.NewVector(t.Embedding)
		}
		var createdAt any
		if !t.CreatedAt.IsZero() {
			createdAt = t.CreatedAt
		}

		if _, err := tx.Exec(ctx, q,
			t.ID,
			t.MeetingID,
			t.Title,
			t.EvidenceQuote,
			t.Owner,
			t.Priority,
			t.Due,
			t.Confidence,
			vec,
			createdAt,
		); err != nil {
			return fmt.Errorf("task store: insert task %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("task store: commit: %w", err)
	}
	return nil
}

// ListTasks implements [taskstore.Store].
func (s *Store) ListTasks(ctx context.Context, meetingID string) ([]taskstore.Task, error) {
	const q = `
		SELECT id, meeting_id, title, evidence_quote, owner, priority, due, confidence, embedding, created_at
		FROM   tasks
		WHERE  meeting_id = $1
		ORDER  BY created_at, id`

	rows, err := s.pool.Query(ctx, q, meetingID)
	if err != nil {
		return nil, fmt.Errorf("task store: list tasks: %w", err)
	}
	return collectTasks(rows)
}

// SimilarTasks implements [taskstore.Store]. Results are ordered by ascending
// cosine distance (most similar first); rows without an embedding are
// excluded.
func (s *Store) SimilarTasks(ctx context.Context, embedding []float32, topK int) ([]taskstore.SimilarTask, error) {
	const q = `
		SELECT id, meeting_id, title, evidence_quote, owner, priority, due, confidence, embedding, created_at,
		       embedding <=> $1 AS distance
		FROM   tasks
		WHERE  embedding IS NOT NULL
		ORDER  BY distance
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("task store: similar tasks: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (taskstore.SimilarTask, error) {
		var (
			st  taskstore.SimilarTask
			vec *pgvector.Vector
		)
		if err := row.Scan(
			&st.ID,
			&st.MeetingID,
			&st.Title,
			&st.EvidenceQuote,
			&st.Owner,
			&st.Priority,
			&st.Due,
			&st.Confidence,
			&vec,
			&st.CreatedAt,
			&st.Distance,
		); err != nil {
			return taskstore.SimilarTask{}, err
		}
		if vec != nil {
			st.Embedding = vec.Slice()
		}
		return st, nil
	})
	if err != nil {
		return nil, fmt.Errorf("task store: scan rows: %w", err)
	}
	if results == nil {
		results = []taskstore.SimilarTask{}
	}
	return results, nil
}

// Close releases all connections held by the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// collectTasks scans pgx rows into a slice of Task values.
func collectTasks(rows pgx.Rows) ([]taskstore.Task, error) {
	tasks, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (taskstore.Task, error) {
		var (
			t   taskstore.Task
			vec *pgvector.Vector
		)
		if err := row.Scan(
			&t.ID,
			&t.MeetingID,
			&t.Title,
			&t.EvidenceQuote,
			&t.Owner,
			&t.Priority,
			&t.Due,
			&t.Confidence,
			&vec,
			&t.CreatedAt,
		); err != nil {
			return taskstore.Task{}, err
		}
		if vec != nil {
			t.Embedding = vec.Slice()
		}
		return t, nil
	})
	if err != nil {
		return nil, fmt.Errorf("task store: scan rows: %w", err)
	}
	if tasks == nil {
		tasks = []taskstore.Task{}
	}
	return tasks, nil
}
