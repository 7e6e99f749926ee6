package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlExtension = `CREATE EXTENSION IF NOT EXISTS vector`

// ddlFaceEmbeddings is the append-only enrollment table. The BIGSERIAL
// primary key doubles as the insertion-order sort key for List.
const ddlFaceEmbeddings = `
CREATE TABLE IF NOT EXISTS face_embeddings (
    id          BIGSERIAL    PRIMARY KEY,
    user_id     TEXT         NOT NULL,
    embedding   VECTOR(%d)   NOT NULL,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_face_embeddings_user_id
    ON face_embeddings (user_id);
`

// Migrate ensures the pgvector extension and the face_embeddings table exist.
// It is idempotent and safe to run on every startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	if embeddingDimensions <= 0 {
		return fmt.Errorf("postgres migrate: embedding dimensions must be positive, got %d", embeddingDimensions)
	}

	if _, err := pool.Exec(ctx, ddlExtension); err != nil {
		return fmt.Errorf("postgres migrate: create extension: %w", err)
	}
	if _, err := pool.Exec(ctx, fmt.Sprintf(ddlFaceEmbeddings, embeddingDimensions)); err != nil {
		return fmt.Errorf("postgres migrate: create table: %w", err)
	}
	return nil
}
