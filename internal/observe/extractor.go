package observe

import (
	"context"
	"time"

	"github.com/biosso/facegate/pkg/extract"
)

// instrumentedExtractor wraps an [extract.Provider] and records every
// extraction call into [Metrics.ExtractionDuration].
type instrumentedExtractor struct {
	inner   extract.Provider
	metrics *Metrics
}

var _ extract.Provider = (*instrumentedExtractor)(nil)

// InstrumentExtractor decorates p so embedding extraction latency is
// recorded in m. A nil m returns p unchanged.
func InstrumentExtractor(p extract.Provider, m *Metrics) extract.Provider {
	if m == nil {
		return p
	}
	return &instrumentedExtractor{inner: p, metrics: m}
}

func (e *instrumentedExtractor) Embed(ctx context.Context, image []byte) ([]float32, error) {
	start := time.Now()
	vec, err := e.inner.Embed(ctx, image)
	e.metrics.ExtractionDuration.Record(ctx, time.Since(start).Seconds())
	return vec, err
}

func (e *instrumentedExtractor) EmbedBatch(ctx context.Context, images [][]byte) ([][]float32, int, error) {
	start := time.Now()
	vectors, processed, err := e.inner.EmbedBatch(ctx, images)
	e.metrics.ExtractionDuration.Record(ctx, time.Since(start).Seconds())
	return vectors, processed, err
}

func (e *instrumentedExtractor) Dimensions() int { return e.inner.Dimensions() }

func (e *instrumentedExtractor) ModelID() string { return e.inner.ModelID() }
