// Package gateway exposes the FaceGate surfaces over HTTP: the persistent
// enrollment/verification websocket, the live frame-feedback websocket, and
// the single-shot REST facade. All surfaces delegate to one shared
// [protocol.Pipeline], so registration and matching semantics are identical
// regardless of which surface a client uses.
package gateway

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/biosso/facegate/internal/observe"
	"github.com/biosso/facegate/internal/protocol"
)

// Defaults applied when the corresponding option is not set.
const (
	// DefaultMaxImageBytes caps a single submitted image at 8 MiB.
	DefaultMaxImageBytes = 8 << 20

	// DefaultFrameMinWidth and DefaultFrameMinHeight are the minimum
	// dimensions a live preview frame must have to pass the quality check.
	DefaultFrameMinWidth  = 50
	DefaultFrameMinHeight = 50

	// DefaultFeedbackRate and DefaultFeedbackBurst bound how many quality
	// feedback responses one connection receives per second.
	DefaultFeedbackRate  = 10.0
	DefaultFeedbackBurst = 5

	// DefaultMaxBatchImages is how many images one bulk registration frame
	// may carry; together with the image cap it sizes the websocket read
	// limit.
	DefaultMaxBatchImages = 16
)

// Server holds the shared collaborators behind every gateway surface.
type Server struct {
	pipeline *protocol.Pipeline
	metrics  *observe.Metrics
	log      *slog.Logger

	maxImageBytes  int64
	maxBatchImages int
	feedbackRate   float64
	feedbackBurst  int
	idleTimeout    time.Duration

	// frameMu guards the frame quality limits, which are hot-reloadable.
	frameMu        sync.RWMutex
	frameMinWidth  int
	frameMinHeight int
}

// Option configures a [Server].
type Option func(*Server)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetrics sets the metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithMaxImageBytes caps the size of a single submitted image.
func WithMaxImageBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxImageBytes = n
		}
	}
}

// WithMaxBatchImages sets how many images a single bulk registration frame
// may carry when sizing the websocket read limit.
func WithMaxBatchImages(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBatchImages = n
		}
	}
}

// WithFrameLimits sets the minimum dimensions for the frame quality check.
func WithFrameLimits(minWidth, minHeight int) Option {
	return func(s *Server) {
		if minWidth > 0 {
			s.frameMinWidth = minWidth
		}
		if minHeight > 0 {
			s.frameMinHeight = minHeight
		}
	}
}

// WithFeedbackLimit sets the per-connection rate and burst for quality
// feedback responses.
func WithFeedbackLimit(perSecond float64, burst int) Option {
	return func(s *Server) {
		if perSecond > 0 {
			s.feedbackRate = perSecond
		}
		if burst > 0 {
			s.feedbackBurst = burst
		}
	}
}

// WithIdleTimeout closes a protocol connection after this much inactivity.
// Zero (the default) disables the idle timeout.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.idleTimeout = d
		}
	}
}

// New creates a gateway server around the shared pipeline.
func New(pipeline *protocol.Pipeline, opts ...Option) *Server {
	s := &Server{
		pipeline:       pipeline,
		log:            slog.Default(),
		maxImageBytes:  DefaultMaxImageBytes,
		maxBatchImages: DefaultMaxBatchImages,
		frameMinWidth:  DefaultFrameMinWidth,
		frameMinHeight: DefaultFrameMinHeight,
		feedbackRate:   DefaultFeedbackRate,
		feedbackBurst:  DefaultFeedbackBurst,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// SetFrameLimits replaces the minimum dimensions for the frame quality
// check. Safe to call while feedback connections are live; in-flight frames
// use whichever limits they observe.
func (s *Server) SetFrameLimits(minWidth, minHeight int) {
	if minWidth <= 0 || minHeight <= 0 {
		return
	}
	s.frameMu.Lock()
	s.frameMinWidth, s.frameMinHeight = minWidth, minHeight
	s.frameMu.Unlock()
}

func (s *Server) frameLimits() (minWidth, minHeight int) {
	s.frameMu.RLock()
	defer s.frameMu.RUnlock()
	return s.frameMinWidth, s.frameMinHeight
}

// protocolReadLimit is the websocket message cap for the protocol endpoint:
// the largest allowed bulk registration with every image base64-encoded,
// plus envelope slack. The websocket library's own default is 32 KiB, far
// below a real camera capture.
func (s *Server) protocolReadLimit() int64 {
	perImage := base64Len(s.maxImageBytes) + 1024
	return perImage*int64(s.maxBatchImages) + 4096
}

// feedbackReadLimit caps a single quality-check frame, with room for
// clients that send base64 text instead of raw bytes.
func (s *Server) feedbackReadLimit() int64 {
	return base64Len(s.maxImageBytes) + 4096
}

// base64Len is the standard-encoding size of n raw bytes.
func base64Len(n int64) int64 { return (n + 2) / 3 * 4 }

// Register adds every gateway route to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", s.HandleProtocol)
	mux.HandleFunc("GET /ws/feedback", s.HandleFeedback)
	mux.HandleFunc("POST /register", s.HandleRegister)
	mux.HandleFunc("POST /verify", s.HandleVerify)
	mux.HandleFunc("DELETE /identities/{userID}", s.HandleDeleteIdentity)
}
