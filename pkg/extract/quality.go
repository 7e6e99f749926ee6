package extract

import (
	"bytes"
	"fmt"
	"image"

	// Register decoders for the formats capture clients send.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// Frame quality reason codes returned by [CheckFrame]. These drive the
// live-feedback path only; they never gate registration or verification.
const (
	FrameOK       = "frame_ok"
	FrameInvalid  = "invalid_frame"
	FrameTooSmall = "frame_too_small"
)

// QualityResult is the outcome of a cheap frame-quality probe.
type QualityResult struct {
	// Reason is one of the Frame* codes above.
	Reason string

	// Message is a human-readable description suitable for direct display
	// in the capture UI.
	Message string
}

// CheckFrame runs inexpensive quality checks on a raw capture frame: it
// decodes only the image header and validates minimum dimensions. It never
// invokes the embedding model, so it is cheap enough to run on every frame
// of a live preview stream.
func CheckFrame(frame []byte, minWidth, minHeight int) QualityResult {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(frame))
	if err != nil {
		return QualityResult{Reason: FrameInvalid, Message: "Invalid frame"}
	}
	if cfg.Width < minWidth || cfg.Height < minHeight {
		return QualityResult{
			Reason:  FrameTooSmall,
			Message: fmt.Sprintf("Frame too small: %dx%d, need at least %dx%d", cfg.Width, cfg.Height, minWidth, minHeight),
		}
	}
	return QualityResult{Reason: FrameOK, Message: "Frame received"}
}
