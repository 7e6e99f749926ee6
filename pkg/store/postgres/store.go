// Package postgres provides a PostgreSQL-backed implementation of [store.Store].
//
// Embeddings are stored in a single face_embeddings table with a pgvector
// column. The pgvector extension must be available in the target database;
// [Migrate] installs it automatically via CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	s, err := postgres.NewStore(ctx, dsn, 512)
//	if err != nil { … }
//	defer s.Close()
//
//	_ = s.Append(ctx, store.Record{Identity: "u1", Embedding: vec})
//	recs, _ := s.List(ctx, "u1")
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/biosso/facegate/pkg/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is the PostgreSQL-backed embedding store. All methods are safe for
// concurrent use; the underlying pgxpool handles connection management.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store, establishes a connection pool to the PostgreSQL
// database at dsn, registers pgvector types on every connection, and runs
// [Migrate] to ensure the table and extension exist.
//
// embeddingDimensions must match the output dimension of the extractor model
// (e.g., 512 for the deployed face model). Changing this value after the
// first migration requires a manual schema change.
func NewStore(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so that the embedding
	// column can be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Append implements [store.Store].
func (s *Store) Append(ctx context.Context, rec store.Record) error {
	if rec.Identity == "" {
		return store.ErrEmptyIdentity
	}
	const q = `
		INSERT INTO face_embeddings (user_id, embedding, created_at)
		VALUES ($1, $2, $3)`

	_, err := s.pool.Exec(ctx, q, rec.Identity, pgvector.NewVector(rec.Embedding), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres store: append: %w", err)
	}
	return nil
}

// AppendBatch implements [store.Store]. All inserts run in a single
// transaction, so a batch either commits fully or not at all.
func (s *Store) AppendBatch(ctx context.Context, recs []store.Record) error {
	for _, rec := range recs {
		if rec.Identity == "" {
			return store.ErrEmptyIdentity
		}
	}
	if len(recs) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres store: begin batch: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	const q = `
		INSERT INTO face_embeddings (user_id, embedding, created_at)
		VALUES ($1, $2, $3)`

	batch := &pgx.Batch{}
	for _, rec := range recs {
		batch.Queue(q, rec.Identity, pgvector.NewVector(rec.Embedding), rec.CreatedAt)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres store: send batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres store: commit batch: %w", err)
	}
	return nil
}

// List implements [store.Store]. Records come back ordered by the serial
// primary key, which is insertion order.
func (s *Store) List(ctx context.Context, identity string) ([]store.Record, error) {
	if identity == "" {
		return nil, store.ErrEmptyIdentity
	}
	const q = `
		SELECT user_id, embedding, created_at
		FROM   face_embeddings
		WHERE  user_id = $1
		ORDER  BY id`

	rows, err := s.pool.Query(ctx, q, identity)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list: %w", err)
	}

	recs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Record, error) {
		var (
			rec store.Record
			vec pgvector.Vector
		)
		if err := row.Scan(&rec.Identity, &vec, &rec.CreatedAt); err != nil {
			return store.Record{}, err
		}
		rec.Embedding = vec.Slice()
		return rec, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan rows: %w", err)
	}
	if recs == nil {
		recs = []store.Record{}
	}
	return recs, nil
}

// Count implements [store.Store].
func (s *Store) Count(ctx context.Context, identity string) (int, error) {
	if identity == "" {
		return 0, store.ErrEmptyIdentity
	}
	const q = `SELECT count(*) FROM face_embeddings WHERE user_id = $1`

	var n int
	if err := s.pool.QueryRow(ctx, q, identity).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres store: count: %w", err)
	}
	return n, nil
}

// DeleteIdentity implements [store.Store].
func (s *Store) DeleteIdentity(ctx context.Context, identity string) (int, error) {
	if identity == "" {
		return 0, store.ErrEmptyIdentity
	}
	const q = `DELETE FROM face_embeddings WHERE user_id = $1`

	tag, err := s.pool.Exec(ctx, q, identity)
	if err != nil {
		return 0, fmt.Errorf("postgres store: delete identity: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Ping probes connectivity to the database. Used by readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close implements [store.Store] and closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
