package remote_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/biosso/facegate/pkg/extract"
	"github.com/biosso/facegate/pkg/extract/remote"
)

// newSidecar starts an httptest server that answers /embed with the supplied
// handler and returns a Provider pointed at it.
func newSidecar(t *testing.T, dims int, handler http.HandlerFunc) *remote.Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := remote.New(srv.URL, "buffalo_sc/w600k_mbf", dims)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestEmbed(t *testing.T) {
	t.Parallel()

	p := newSidecar(t, 3, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed" {
			t.Errorf("path = %q, want /embed", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/octet-stream" {
			t.Errorf("content type = %q", ct)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embedding": []float32{1, 0, 0},
			"model":     "buffalo_sc/w600k_mbf",
		})
	})

	vec, err := p.Embed(t.Context(), []byte("jpeg-bytes"))
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 || vec[0] != 1 {
		t.Errorf("vec = %v, want [1 0 0]", vec)
	}
}

func TestEmbed_UndecodableImage(t *testing.T) {
	t.Parallel()

	p := newSidecar(t, 3, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "cannot decode image"})
	})

	_, err := p.Embed(t.Context(), []byte("not an image"))
	if !errors.Is(err, extract.ErrUndecodableImage) {
		t.Fatalf("error = %v, want ErrUndecodableImage", err)
	}
}

func TestEmbed_DimensionValidation(t *testing.T) {
	t.Parallel()

	p := newSidecar(t, 4, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{1, 2}})
	})

	_, err := p.Embed(t.Context(), []byte("img"))
	if err == nil {
		t.Fatal("expected error for wrong-dimension response")
	}
}

func TestEmbedBatch_FailFast(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	p := newSidecar(t, 2, func(w http.ResponseWriter, _ *http.Request) {
		n := calls.Add(1)
		if n == 3 {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "cannot decode image"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{1, 0}})
	})

	images := [][]byte{[]byte("a"), []byte("b"), []byte("bad"), []byte("d")}
	_, processed, err := p.EmbedBatch(t.Context(), images)
	if !errors.Is(err, extract.ErrUndecodableImage) {
		t.Fatalf("error = %v, want ErrUndecodableImage", err)
	}
	if processed != 2 {
		t.Errorf("processed = %d, want 2", processed)
	}
	// The fourth image must never have been submitted.
	if got := calls.Load(); got != 3 {
		t.Errorf("sidecar calls = %d, want 3 (fail-fast)", got)
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := remote.New("http://x", "", 512); err == nil {
		t.Error("expected error for empty model")
	}
	if _, err := remote.New("http://x", "m", 0); err == nil {
		t.Error("expected error for zero dimensions")
	}
}
