package protocol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/biosso/facegate/pkg/extract"
)

// State is the protocol position of a session between frames.
type State int

const (
	// StateAwaitingMessage is the steady state: the session is ready for
	// the next inbound frame.
	StateAwaitingMessage State = iota

	// StateProcessingImage is transient while extraction and matching run
	// for the current frame.
	StateProcessingImage

	// StateClosed is terminal; no further frames are processed.
	StateClosed
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateAwaitingMessage:
		return "awaiting_message"
	case StateProcessingImage:
		return "processing_image"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Mode is the workflow a session is currently driving.
type Mode string

const (
	ModeIdle      Mode = "idle"
	ModeVerifying Mode = "verifying"
	ModeEnrolling Mode = "registering"
)

// Session is the per-connection protocol state machine. One Session is
// created per connection and destroyed on disconnect; it is exclusively
// owned by its connection's handler goroutine and therefore needs no
// internal locking.
//
// Each inbound frame is handled to completion before the next is read, so
// within a session there is never concurrent processing of two messages.
type Session struct {
	id       string
	pipeline *Pipeline
	log      *slog.Logger

	state    State
	mode     Mode
	identity string
	step     int

	// maxImageBytes caps the decoded size of each submitted image. Zero
	// means no cap.
	maxImageBytes int64
}

// NewSession creates a session bound to the shared pipeline. The logger may
// be nil, in which case slog.Default() is used.
func NewSession(pipeline *Pipeline, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	id := uuid.NewString()
	return &Session{
		id:       id,
		pipeline: pipeline,
		log:      log.With("session_id", id),
		state:    StateAwaitingMessage,
		mode:     ModeIdle,
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// State returns the session's current protocol state.
func (s *Session) State() State { return s.state }

// Mode returns the workflow the session last drove.
func (s *Session) Mode() Mode { return s.mode }

// LimitImageBytes caps the decoded size of each submitted image. Oversized
// images are answered with a structured error and the connection stays
// open. Zero disables the cap.
func (s *Session) LimitImageBytes(n int64) { s.maxImageBytes = n }

// Close marks the session terminal. Idempotent.
func (s *Session) Close() {
	if s.state != StateClosed {
		s.state = StateClosed
		s.log.Debug("session closed", "identity", s.identity, "mode", s.mode, "steps", s.step)
	}
}

// HandleFrame processes one inbound frame and returns the response to send,
// or nil for frames that are ignored (non-JSON noise).
//
// Per-message failures — undecodable images, unknown identities,
// registration conflicts, malformed messages — are converted to structured
// error responses and never returned as errors; the session stays in
// [StateAwaitingMessage] and the connection stays open. A non-nil error is
// returned only for terminal conditions (the session is closed, or ctx is
// done) where the connection should be torn down.
func (s *Session) HandleFrame(ctx context.Context, frame []byte) (*Response, error) {
	if s.state == StateClosed {
		return nil, fmt.Errorf("protocol: session %s is closed", s.id)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	msg, err := Decode(frame)
	if err != nil {
		if errors.Is(err, ErrNotJSON) {
			s.log.Debug("ignoring non-JSON frame", "bytes", len(frame))
			return nil, nil
		}
		s.log.Warn("malformed message", "err", err)
		return &Response{
			Type:    TypeResult,
			Status:  StatusError,
			Reason:  ReasonMalformed,
			Message: "Message could not be understood",
		}, nil
	}

	if resp := s.rejectOversized(msg); resp != nil {
		return resp, nil
	}

	s.state = StateProcessingImage
	defer func() {
		if s.state != StateClosed {
			s.state = StateAwaitingMessage
		}
	}()

	switch m := msg.(type) {
	case ImageSubmission:
		s.identity = m.Identity
		s.step = m.Step
		if m.Mode == ModeLogin {
			s.mode = ModeVerifying
			return s.handleLogin(ctx, m), nil
		}
		s.mode = ModeEnrolling
		return s.handleRegisterImage(ctx, m), nil

	case BulkRegistration:
		s.identity = m.Identity
		s.mode = ModeEnrolling
		return s.handleBulkRegistration(ctx, m), nil

	default:
		// Decode only produces the two variants above.
		return &Response{
			Type:    TypeResult,
			Status:  StatusError,
			Reason:  ReasonMalformed,
			Message: "Message could not be understood",
		}, nil
	}
}

// rejectOversized answers messages carrying an image over the session's
// size cap with a structured error. Returns nil when everything fits.
func (s *Session) rejectOversized(msg Message) *Response {
	if s.maxImageBytes <= 0 {
		return nil
	}

	typ := TypeResult
	oversized := false
	switch m := msg.(type) {
	case ImageSubmission:
		oversized = int64(len(m.Image)) > s.maxImageBytes
	case BulkRegistration:
		typ = TypeRegistrationResult
		for _, img := range m.Images {
			if int64(len(img)) > s.maxImageBytes {
				oversized = true
				break
			}
		}
	}
	if !oversized {
		return nil
	}

	s.log.Warn("image exceeds size cap", "identity", msg.UserID(), "max_bytes", s.maxImageBytes)
	return &Response{
		Type:        typ,
		Status:      StatusError,
		Reason:      ReasonImageTooLarge,
		UserIDField: msg.UserID(),
		Message:     "Image too large",
	}
}

// handleLogin drives the login transition: extract, look up, match.
func (s *Session) handleLogin(ctx context.Context, m ImageSubmission) *Response {
	outcome, err := s.pipeline.Verify(ctx, m.Identity, m.Image)
	switch {
	case err == nil:
		status := StatusRejected
		if outcome.Verified {
			status = StatusVerified
		}
		s.log.Info("verification attempt",
			"user_id", m.Identity,
			"step", m.Step,
			"similarity", outcome.Similarity,
			"verified", outcome.Verified,
		)
		return &Response{
			Type:        TypeResult,
			Status:      status,
			Similarity:  floatPtr(outcome.Similarity),
			UserIDField: m.Identity,
		}

	case errors.Is(err, extract.ErrUndecodableImage):
		return s.invalidImageResponse(m.Identity, err)

	case errors.Is(err, ErrNotRegistered):
		return &Response{
			Type:        TypeResult,
			Status:      StatusRejected,
			Reason:      ReasonNotRegistered,
			UserIDField: m.Identity,
			Message:     "User is not registered",
		}

	default:
		return s.internalErrorResponse(TypeResult, m.Identity, err)
	}
}

// handleRegisterImage drives single-image enrollment.
func (s *Session) handleRegisterImage(ctx context.Context, m ImageSubmission) *Response {
	err := s.pipeline.RegisterImage(ctx, m.Identity, m.Image)
	switch {
	case err == nil:
		s.log.Info("image registered", "user_id", m.Identity, "step", m.Step)
		return &Response{
			Type:        TypeResult,
			Status:      StatusRegistered,
			UserIDField: m.Identity,
		}

	case errors.Is(err, extract.ErrUndecodableImage):
		return s.invalidImageResponse(m.Identity, err)

	case errors.Is(err, ErrAlreadyRegistered):
		return &Response{
			Type:        TypeResult,
			Status:      StatusError,
			Reason:      ReasonAlreadyRegistered,
			UserIDField: m.Identity,
			Message:     "User is already registered",
		}

	default:
		return s.internalErrorResponse(TypeResult, m.Identity, err)
	}
}

// handleBulkRegistration drives atomic multi-image enrollment.
func (s *Session) handleBulkRegistration(ctx context.Context, m BulkRegistration) *Response {
	count, err := s.pipeline.RegisterBatch(ctx, m.Identity, m.Images)

	var batchErr *BatchError
	switch {
	case err == nil:
		s.log.Info("bulk registration complete",
			"user_id", m.Identity,
			"images", count,
			"metadata_fields", len(m.ProfileMetadata),
		)
		return &Response{
			Type:        TypeRegistrationResult,
			Status:      StatusSuccess,
			UserIDField: m.Identity,
			Count:       intPtr(count),
		}

	case errors.Is(err, ErrAlreadyRegistered):
		return &Response{
			Type:        TypeRegistrationResult,
			Status:      StatusError,
			Reason:      ReasonAlreadyRegistered,
			UserIDField: m.Identity,
			Message:     "User is already registered",
		}

	case errors.As(err, &batchErr) && errors.Is(err, extract.ErrUndecodableImage):
		// Partial-success reporting: tell the client how far the batch got
		// before the undecodable image aborted it. Nothing was stored.
		s.log.Warn("bulk registration aborted",
			"user_id", m.Identity,
			"processed", batchErr.Processed,
			"total", len(m.Images),
		)
		return &Response{
			Type:        TypeRegistrationResult,
			Status:      StatusError,
			Reason:      ReasonInvalidImage,
			UserIDField: m.Identity,
			Count:       intPtr(batchErr.Processed),
			Message:     fmt.Sprintf("Image %d could not be decoded; %d image(s) were valid, nothing was stored", batchErr.Processed+1, batchErr.Processed),
		}

	default:
		return s.internalErrorResponse(TypeRegistrationResult, m.Identity, err)
	}
}

func (s *Session) invalidImageResponse(identity string, err error) *Response {
	s.log.Warn("undecodable image", "user_id", identity, "err", err)
	return &Response{
		Type:        TypeResult,
		Status:      StatusError,
		Reason:      ReasonInvalidImage,
		UserIDField: identity,
		Message:     "Image could not be decoded",
	}
}

func (s *Session) internalErrorResponse(typ, identity string, err error) *Response {
	s.log.Error("internal error handling message", "user_id", identity, "err", err)
	return &Response{
		Type:        typ,
		Status:      StatusError,
		Reason:      ReasonInternal,
		UserIDField: identity,
		Message:     "Internal error, please retry",
	}
}
