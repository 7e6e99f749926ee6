package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/biosso/facegate/pkg/store"
	"github.com/biosso/facegate/pkg/store/postgres"
)

const testEmbeddingDim = 4

// testDSN returns the test database DSN from the environment, or skips the
// test if FACEGATE_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("FACEGATE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("FACEGATE_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a fresh [postgres.Store] against the test database and
// registers cleanup that removes the identities the test wrote.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	ctx := context.Background()

	s, err := postgres.NewStore(ctx, testDSN(t), testEmbeddingDim)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// cleanIdentity removes all rows for identity and registers the same cleanup
// for the end of the test.
func cleanIdentity(t *testing.T, s *postgres.Store, identity string) {
	t.Helper()
	ctx := context.Background()
	if _, err := s.DeleteIdentity(ctx, identity); err != nil {
		t.Fatalf("DeleteIdentity(%q): %v", identity, err)
	}
	t.Cleanup(func() { _, _ = s.DeleteIdentity(ctx, identity) })
}

func TestAppendListRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	cleanIdentity(t, s, "pg-u1")

	recs := []store.Record{
		{Identity: "pg-u1", Embedding: []float32{1, 0, 0, 0}, CreatedAt: time.Now().UTC()},
		{Identity: "pg-u1", Embedding: []float32{0, 1, 0, 0}, CreatedAt: time.Now().UTC()},
	}
	for _, rec := range recs {
		if err := s.Append(ctx, rec); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := s.List(ctx, "pg-u1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("List returned %d records, want 2", len(got))
	}
	// Insertion order.
	if got[0].Embedding[0] != 1 || got[1].Embedding[1] != 1 {
		t.Errorf("records out of insertion order: %+v", got)
	}
}

func TestAppendBatchAtomicity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	cleanIdentity(t, s, "pg-batch")

	batch := []store.Record{
		{Identity: "pg-batch", Embedding: []float32{1, 0, 0, 0}, CreatedAt: time.Now().UTC()},
		{Identity: "pg-batch", Embedding: []float32{0, 1, 0, 0}, CreatedAt: time.Now().UTC()},
		{Identity: "pg-batch", Embedding: []float32{0, 0, 1, 0}, CreatedAt: time.Now().UTC()},
	}
	if err := s.AppendBatch(ctx, batch); err != nil {
		t.Fatalf("AppendBatch: %v", err)
	}

	n, err := s.Count(ctx, "pg-batch")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 3 {
		t.Errorf("Count = %d, want 3", n)
	}

	// A batch containing a wrong-dimension vector must not commit anything.
	bad := []store.Record{
		{Identity: "pg-batch", Embedding: []float32{1, 0, 0, 0}, CreatedAt: time.Now().UTC()},
		{Identity: "pg-batch", Embedding: []float32{1, 0}, CreatedAt: time.Now().UTC()},
	}
	if err := s.AppendBatch(ctx, bad); err == nil {
		t.Fatal("AppendBatch with mismatched dimensions should fail")
	}
	n, _ = s.Count(ctx, "pg-batch")
	if n != 3 {
		t.Errorf("Count after failed batch = %d, want 3 (no partial writes)", n)
	}
}

func TestDeleteIdentityRemovesAll(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	cleanIdentity(t, s, "pg-del")

	for range 3 {
		rec := store.Record{Identity: "pg-del", Embedding: []float32{1, 2, 3, 4}, CreatedAt: time.Now().UTC()}
		if err := s.Append(ctx, rec); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	n, err := s.DeleteIdentity(ctx, "pg-del")
	if err != nil {
		t.Fatalf("DeleteIdentity: %v", err)
	}
	if n != 3 {
		t.Errorf("DeleteIdentity removed %d, want 3", n)
	}

	recs, err := s.List(ctx, "pg-del")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("List after delete returned %d records, want 0", len(recs))
	}
}
