// Package protocol implements the enrollment/verification protocol for
// FaceGate: the wire message envelope, the shared
// extract → store → match pipeline, and the per-connection session state
// machine that drives registration and login flows.
package protocol

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// Inbound message types.
const (
	TypeImage    = "image"
	TypeRegister = "register"
)

// Modes for single-image submissions.
const (
	ModeLogin    = "login"
	ModeRegister = "register"
)

// Outbound message types.
const (
	TypeResult             = "result"
	TypeRegistrationResult = "registration_result"
)

// Outbound statuses.
const (
	StatusVerified   = "verified"
	StatusRejected   = "rejected"
	StatusRegistered = "registered"
	StatusSuccess    = "success"
	StatusError      = "error"
)

// Stable reason codes carried on rejected and errored responses.
const (
	ReasonInvalidImage      = "invalid_image"
	ReasonImageTooLarge     = "image_too_large"
	ReasonNotRegistered     = "not_registered"
	ReasonAlreadyRegistered = "already_registered"
	ReasonMalformed         = "malformed"
	ReasonInternal          = "internal_error"
)

var (
	// ErrNotJSON is returned by [Decode] for frames that are not JSON at
	// all. Such frames are logged and ignored, not answered with a protocol
	// error.
	ErrNotJSON = errors.New("protocol: frame is not JSON")

	// ErrMalformed is returned by [Decode] for JSON frames that do not form
	// a valid protocol message (unknown type, unknown mode, missing fields,
	// undecodable base64). The session answers these with a structured
	// malformed-message error and keeps the connection open.
	ErrMalformed = errors.New("protocol: malformed message")
)

// Message is the decoded form of an inbound frame. Exactly one of the
// concrete types [ImageSubmission] and [BulkRegistration] is produced per
// frame; consumers switch exhaustively over the variant.
type Message interface {
	// UserID returns the identity the message targets.
	UserID() string
}

// ImageSubmission is a single-image registration or login step.
type ImageSubmission struct {
	// Identity is the user the image belongs to.
	Identity string

	// Mode is [ModeLogin] or [ModeRegister].
	Mode string

	// Step is the client-side step counter within a capture flow.
	Step int

	// Image is the decoded image payload.
	Image []byte
}

// UserID implements [Message].
func (m ImageSubmission) UserID() string { return m.Identity }

// BulkRegistration enrolls an identity from several images committed as one
// atomic unit.
type BulkRegistration struct {
	// Identity is the user being registered.
	Identity string

	// Images holds the decoded image payloads in submission order.
	Images [][]byte

	// ProfileMetadata carries free-form profile fields. The core does not
	// interpret them; they are available to storage hooks and logging.
	ProfileMetadata map[string]any
}

// UserID implements [Message].
func (m BulkRegistration) UserID() string { return m.Identity }

// envelope mirrors the raw JSON shape of every inbound frame. Which fields
// are meaningful depends on Type.
type envelope struct {
	Type     string         `json:"type"`
	Payload  string         `json:"payload"`
	UserID   string         `json:"userId"`
	Mode     string         `json:"mode"`
	Step     int            `json:"step"`
	Images   []string       `json:"images"`
	UserData map[string]any `json:"userData"`
}

// Decode parses an inbound frame into its message variant.
//
// Frames that are not JSON yield [ErrNotJSON]. JSON frames with an unknown
// type, an unknown mode, a missing identity, or invalid base64 payloads
// yield an error wrapping [ErrMalformed].
func Decode(frame []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotJSON, err)
	}

	switch env.Type {
	case TypeImage:
		if env.UserID == "" {
			return nil, fmt.Errorf("%w: image submission without userId", ErrMalformed)
		}
		if env.Mode != ModeLogin && env.Mode != ModeRegister {
			return nil, fmt.Errorf("%w: unknown mode %q", ErrMalformed, env.Mode)
		}
		img, err := base64.StdEncoding.DecodeString(env.Payload)
		if err != nil {
			return nil, fmt.Errorf("%w: payload is not valid base64: %v", ErrMalformed, err)
		}
		if len(img) == 0 {
			return nil, fmt.Errorf("%w: empty image payload", ErrMalformed)
		}
		return ImageSubmission{
			Identity: env.UserID,
			Mode:     env.Mode,
			Step:     env.Step,
			Image:    img,
		}, nil

	case TypeRegister:
		if env.UserID == "" {
			return nil, fmt.Errorf("%w: bulk registration without userId", ErrMalformed)
		}
		if len(env.Images) == 0 {
			return nil, fmt.Errorf("%w: bulk registration without images", ErrMalformed)
		}
		images := make([][]byte, 0, len(env.Images))
		for i, enc := range env.Images {
			img, err := base64.StdEncoding.DecodeString(enc)
			if err != nil {
				return nil, fmt.Errorf("%w: images[%d] is not valid base64: %v", ErrMalformed, i, err)
			}
			images = append(images, img)
		}
		return BulkRegistration{
			Identity:        env.UserID,
			Images:          images,
			ProfileMetadata: env.UserData,
		}, nil

	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformed, env.Type)
	}
}

// Response is the outbound frame answering one inbound message.
type Response struct {
	// Type is [TypeResult] for image submissions and
	// [TypeRegistrationResult] for bulk registrations.
	Type string `json:"type"`

	// Status is one of the Status* constants.
	Status string `json:"status"`

	// Reason is a stable machine-readable code, set on rejected and errored
	// outcomes.
	Reason string `json:"reason,omitempty"`

	// Similarity is the best cosine similarity, present on verification
	// outcomes.
	Similarity *float64 `json:"similarity,omitempty"`

	// UserID echoes the identity the message targeted.
	UserIDField string `json:"user_id,omitempty"`

	// Count reports how many images were enrolled or, on a failed bulk
	// registration, how many were processed before the failure.
	Count *int `json:"count,omitempty"`

	// Message is a human-readable description on error and informational
	// outcomes. It never carries raw internal fault text.
	Message string `json:"message,omitempty"`
}

// Encode marshals the response for the wire.
func (r Response) Encode() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode response: %w", err)
	}
	return data, nil
}

func floatPtr(f float64) *float64 { return &f }

func intPtr(i int) *int { return &i }
