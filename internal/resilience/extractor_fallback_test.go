package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/biosso/facegate/pkg/extract"
	extractmock "github.com/biosso/facegate/pkg/extract/mock"
)

func TestExtractorFallback_PrimaryServes(t *testing.T) {
	primary := &extractmock.Provider{EmbedResult: []float32{1, 0}, DimensionsValue: 2}
	fallback := &extractmock.Provider{EmbedResult: []float32{0, 1}, DimensionsValue: 2}

	ef := NewExtractorFallback(primary, "primary", FallbackConfig{})
	ef.AddFallback("secondary", fallback)

	vec, err := ef.Embed(context.Background(), []byte("img"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vec[0] != 1 {
		t.Errorf("vector came from the wrong sidecar: %v", vec)
	}
	if len(fallback.EmbedCalls) != 0 {
		t.Errorf("fallback should not be called while the primary is healthy")
	}
}

func TestExtractorFallback_FailoverOnSidecarFault(t *testing.T) {
	primary := &extractmock.Provider{EmbedErr: errors.New("sidecar unreachable")}
	fallback := &extractmock.Provider{EmbedResult: []float32{0, 1}}

	ef := NewExtractorFallback(primary, "primary", FallbackConfig{})
	ef.AddFallback("secondary", fallback)

	vec, err := ef.Embed(context.Background(), []byte("img"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vec[1] != 1 {
		t.Errorf("vector should come from the fallback: %v", vec)
	}
}

func TestExtractorFallback_UndecodableImageDoesNotFailOver(t *testing.T) {
	primary := &extractmock.Provider{UndecodableImages: map[string]bool{"bad": true}}
	fallback := &extractmock.Provider{EmbedResult: []float32{0, 1}}

	ef := NewExtractorFallback(primary, "primary", FallbackConfig{})
	ef.AddFallback("secondary", fallback)

	_, err := ef.Embed(context.Background(), []byte("bad"))
	if !errors.Is(err, extract.ErrUndecodableImage) {
		t.Fatalf("error = %v, want ErrUndecodableImage", err)
	}
	if len(fallback.EmbedCalls) != 0 {
		t.Errorf("a client-fault image must not trigger failover")
	}
}

func TestExtractorFallback_UndecodableImageDoesNotTripBreaker(t *testing.T) {
	primary := &extractmock.Provider{UndecodableImages: map[string]bool{"bad": true}, EmbedResult: []float32{1, 0}}

	ef := NewExtractorFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2},
	})

	for range 5 {
		if _, err := ef.Embed(context.Background(), []byte("bad")); !errors.Is(err, extract.ErrUndecodableImage) {
			t.Fatalf("error = %v, want ErrUndecodableImage", err)
		}
	}

	// The breaker stayed closed: a good image still reaches the sidecar.
	vec, err := ef.Embed(context.Background(), []byte("good"))
	if err != nil {
		t.Fatalf("unexpected error after repeated client faults: %v", err)
	}
	if vec[0] != 1 {
		t.Errorf("unexpected vector: %v", vec)
	}
}

func TestExtractorFallback_AllFailed(t *testing.T) {
	primary := &extractmock.Provider{EmbedErr: errors.New("down")}
	fallback := &extractmock.Provider{EmbedErr: errors.New("also down")}

	ef := NewExtractorFallback(primary, "primary", FallbackConfig{})
	ef.AddFallback("secondary", fallback)

	_, err := ef.Embed(context.Background(), []byte("img"))
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("error = %v, want ErrAllFailed", err)
	}
}

func TestExtractorFallback_BatchPreservesProgress(t *testing.T) {
	primary := &extractmock.Provider{
		VectorsByImage:    map[string][]float32{"a": {1, 0}, "b": {0, 1}},
		UndecodableImages: map[string]bool{"bad": true},
	}

	ef := NewExtractorFallback(primary, "primary", FallbackConfig{})

	_, processed, err := ef.EmbedBatch(context.Background(), [][]byte{[]byte("a"), []byte("b"), []byte("bad")})
	if !errors.Is(err, extract.ErrUndecodableImage) {
		t.Fatalf("error = %v, want ErrUndecodableImage", err)
	}
	if processed != 2 {
		t.Errorf("processed = %d, want 2", processed)
	}
}

func TestExtractorFallback_StaticMetadataFromPrimary(t *testing.T) {
	primary := &extractmock.Provider{DimensionsValue: 512, ModelIDValue: "buffalo_sc/w600k_mbf"}
	fallback := &extractmock.Provider{DimensionsValue: 128, ModelIDValue: "other"}

	ef := NewExtractorFallback(primary, "primary", FallbackConfig{})
	ef.AddFallback("secondary", fallback)

	if ef.Dimensions() != 512 {
		t.Errorf("Dimensions() = %d, want 512", ef.Dimensions())
	}
	if ef.ModelID() != "buffalo_sc/w600k_mbf" {
		t.Errorf("ModelID() = %q", ef.ModelID())
	}
}
