package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/biosso/facegate/pkg/store"
	"github.com/biosso/facegate/pkg/store/memory"
)

func rec(identity string, v ...float32) store.Record {
	return store.Record{Identity: identity, Embedding: v, CreatedAt: time.Now().UTC()}
}

func TestAppendAndList(t *testing.T) {
	t.Parallel()

	s := memory.New()
	ctx := context.Background()

	if err := s.Append(ctx, rec("u1", 1, 0, 0)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Append(ctx, rec("u1", 0, 1, 0)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	recs, err := s.List(ctx, "u1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("List returned %d records, want 2", len(recs))
	}
	// Insertion order must be preserved.
	if recs[0].Embedding[0] != 1 || recs[1].Embedding[1] != 1 {
		t.Errorf("records out of insertion order: %+v", recs)
	}
}

func TestListUnknownIdentity(t *testing.T) {
	t.Parallel()

	s := memory.New()
	recs, err := s.List(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("List returned %d records for unknown identity, want 0", len(recs))
	}
}

func TestEmptyIdentityRejected(t *testing.T) {
	t.Parallel()

	s := memory.New()
	ctx := context.Background()

	if err := s.Append(ctx, rec("", 1)); !errors.Is(err, store.ErrEmptyIdentity) {
		t.Errorf("Append error = %v, want ErrEmptyIdentity", err)
	}
	if err := s.AppendBatch(ctx, []store.Record{rec("u1", 1), rec("", 2)}); !errors.Is(err, store.ErrEmptyIdentity) {
		t.Errorf("AppendBatch error = %v, want ErrEmptyIdentity", err)
	}
	// The batch must not have been partially applied.
	n, err := s.Count(ctx, "u1")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 0 {
		t.Errorf("Count = %d after rejected batch, want 0", n)
	}
}

func TestAppendBatchAtomicVisibility(t *testing.T) {
	t.Parallel()

	s := memory.New()
	ctx := context.Background()

	batch := []store.Record{rec("u1", 1, 0), rec("u1", 0, 1), rec("u1", 1, 1)}
	if err := s.AppendBatch(ctx, batch); err != nil {
		t.Fatalf("AppendBatch: %v", err)
	}
	n, err := s.Count(ctx, "u1")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 3 {
		t.Errorf("Count = %d, want 3", n)
	}
}

func TestDeleteIdentity(t *testing.T) {
	t.Parallel()

	s := memory.New()
	ctx := context.Background()

	_ = s.Append(ctx, rec("u1", 1))
	_ = s.Append(ctx, rec("u1", 2))

	n, err := s.DeleteIdentity(ctx, "u1")
	if err != nil {
		t.Fatalf("DeleteIdentity: %v", err)
	}
	if n != 2 {
		t.Errorf("DeleteIdentity removed %d, want 2", n)
	}

	n, _ = s.Count(ctx, "u1")
	if n != 0 {
		t.Errorf("Count after delete = %d, want 0", n)
	}

	n, err = s.DeleteIdentity(ctx, "u1")
	if err != nil {
		t.Fatalf("DeleteIdentity (unknown): %v", err)
	}
	if n != 0 {
		t.Errorf("DeleteIdentity of unknown identity removed %d, want 0", n)
	}
}

func TestListReturnsCopies(t *testing.T) {
	t.Parallel()

	s := memory.New()
	ctx := context.Background()

	_ = s.Append(ctx, rec("u1", 1, 0))
	recs, _ := s.List(ctx, "u1")
	recs[0].Embedding[0] = 99

	again, _ := s.List(ctx, "u1")
	if again[0].Embedding[0] != 1 {
		t.Error("mutating a listed record changed stored data")
	}
}

func TestConcurrentAppends(t *testing.T) {
	t.Parallel()

	s := memory.New()
	ctx := context.Background()

	const goroutines = 16
	const perGoroutine = 25

	var wg sync.WaitGroup
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perGoroutine {
				if err := s.Append(ctx, rec("u1", 1, 2, 3)); err != nil {
					t.Errorf("Append: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	n, err := s.Count(ctx, "u1")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != goroutines*perGoroutine {
		t.Errorf("Count = %d, want %d", n, goroutines*perGoroutine)
	}
}
