// Package postgres provides a PostgreSQL-backed [taskstore.Store] using
// pgx and pgvector.
//
// The pgvector extension must be available in the target database; [Migrate]
// installs it automatically via CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, 1536)
//	if err != nil { … }
//	defer store.Close()
//
//	_ = store.SaveTasks(ctx, resolved)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ddlTasks returns the tasks DDL with the embedding dimension substituted.
// The vector dimension is baked into the column type at schema creation time.
func ddlTasks(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS tasks (
    id             TEXT         PRIMARY KEY,
    meeting_id     TEXT         NOT NULL,
    title          TEXT         NOT NULL,
    evidence_quote TEXT         NOT NULL DEFAULT '',
    owner          TEXT         NOT NULL DEFAULT '',
    priority       TEXT         NOT NULL DEFAULT 'medium',
    due            TEXT         NOT NULL DEFAULT '',
    confidence     DOUBLE PRECISION NOT NULL DEFAULT 0,
    embedding      vector(%d),
    created_at     TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_tasks_meeting_id
    ON tasks (meeting_id);

CREATE INDEX IF NOT EXISTS idx_tasks_created_at
    ON tasks (created_at);

CREATE INDEX IF NOT EXISTS idx_tasks_embedding
    ON tasks USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures the tasks table, its indexes and the pgvector
// extension exist. It is idempotent and safe to call on every application
// start.
//
// embeddingDimensions must match the vector model configured for the
// deployment (e.g., 1536 for OpenAI text-embedding-3-small). Changing this
// value after the first migration requires a manual schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	if _, err := pool.Exec(ctx, ddlTasks(embeddingDimensions)); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}
