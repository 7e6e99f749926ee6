// Package remote provides an extract.Provider backed by an HTTP inference
// sidecar.
//
// The face recognition model (an ONNX network such as insightface
// buffalo_sc/w600k_mbf) runs in a separate inference process that exposes a
// single POST /embed endpoint. This package posts raw image bytes to that
// endpoint and decodes the JSON vector response.
//
// The sidecar contract:
//
//	POST {baseURL}/embed
//	Content-Type: application/octet-stream
//	body: raw image bytes
//
//	200 → {"embedding": [0.1, ...], "model": "buffalo_sc/w600k_mbf"}
//	422 → {"error": "..."}   image bytes could not be decoded
//	5xx → {"error": "..."}   inference failure
//
// A 422 response maps to [extract.ErrUndecodableImage]; everything else is a
// backend fault.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/biosso/facegate/pkg/extract"
)

// DefaultBaseURL is the default address of a locally running inference sidecar.
const DefaultBaseURL = "http://localhost:8501"

// Compile-time interface check.
var _ extract.Provider = (*Provider)(nil)

// Provider implements extract.Provider against an HTTP inference sidecar.
// Safe for concurrent use.
type Provider struct {
	baseURL    string
	model      string
	dimensions int
	httpClient *http.Client
}

// config holds optional configuration collected from functional options.
type config struct {
	timeout    time.Duration
	httpClient *http.Client
}

// Option is a functional option for Provider.
type Option func(*config)

// WithTimeout sets a per-request HTTP timeout on the underlying HTTP client.
// A zero or negative value means no timeout (the default).
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithHTTPClient replaces the HTTP client entirely. Primarily used in tests
// to point at an httptest server with custom transport settings.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) { c.httpClient = client }
}

// New constructs a remote Provider.
//
// baseURL is the sidecar address; if empty, [DefaultBaseURL] is used. model
// names the deployed face model and is reported verbatim by ModelID.
// dimensions must match the vector length the sidecar produces.
func New(baseURL, model string, dimensions int, opts ...Option) (*Provider, error) {
	if model == "" {
		return nil, fmt.Errorf("remote extractor: model must not be empty")
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("remote extractor: dimensions must be positive, got %d", dimensions)
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	client := cfg.httpClient
	if client == nil {
		client = &http.Client{}
		if cfg.timeout > 0 {
			client.Timeout = cfg.timeout
		}
	}

	return &Provider{
		baseURL:    baseURL,
		model:      model,
		dimensions: dimensions,
		httpClient: client,
	}, nil
}

// embedResponse is the JSON body returned by the sidecar's /embed endpoint.
type embedResponse struct {
	Embedding []float32 `json:"embedding"`
	Model     string    `json:"model"`
	Error     string    `json:"error"`
}

// Embed implements extract.Provider by posting the image bytes to the
// sidecar's /embed endpoint.
func (p *Provider) Embed(ctx context.Context, image []byte) ([]float32, error) {
	vec, err := p.callEmbed(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("remote extractor: embed: %w", err)
	}
	return vec, nil
}

// EmbedBatch implements extract.Provider by embedding images sequentially and
// stopping at the first failure. The processed count reports how many leading
// images succeeded, which bulk registration uses for partial-success
// reporting.
func (p *Provider) EmbedBatch(ctx context.Context, images [][]byte) ([][]float32, int, error) {
	vectors := make([][]float32, 0, len(images))
	for i, img := range images {
		vec, err := p.callEmbed(ctx, img)
		if err != nil {
			return nil, i, fmt.Errorf("remote extractor: embed batch image %d: %w", i, err)
		}
		vectors = append(vectors, vec)
	}
	return vectors, len(images), nil
}

// Dimensions implements extract.Provider.
func (p *Provider) Dimensions() int { return p.dimensions }

// ModelID implements extract.Provider.
func (p *Provider) ModelID() string { return p.model }

// callEmbed sends one POST /embed request and returns the embedding vector.
// It respects context cancellation via http.NewRequestWithContext.
func (p *Provider) callEmbed(ctx context.Context, image []byte) ([]float32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embed", bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post /embed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnprocessableEntity {
		return nil, extract.ErrUndecodableImage
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sidecar returned status %d: %s", resp.StatusCode, truncate(body, 200))
	}

	var decoded embedResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if decoded.Error != "" {
		return nil, fmt.Errorf("sidecar error: %s", decoded.Error)
	}
	if len(decoded.Embedding) != p.dimensions {
		return nil, fmt.Errorf("sidecar returned %d-dimensional vector, expected %d", len(decoded.Embedding), p.dimensions)
	}
	return decoded.Embedding, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "…"
}
