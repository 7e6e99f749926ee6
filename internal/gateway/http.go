package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/biosso/facegate/internal/protocol"
	"github.com/biosso/facegate/pkg/extract"
	"github.com/biosso/facegate/pkg/store"
)

// HandleRegister is the single-shot enrollment endpoint. It accepts a
// multipart form with an "image" file and a "user_id" field, enrolls the
// image through the shared pipeline, and returns a JSON result. The
// no-double-registration policy applies here exactly as on the websocket
// surfaces.
func (s *Server) HandleRegister(w http.ResponseWriter, r *http.Request) {
	identity, image, ok := s.readSubmission(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	start := time.Now()
	err := s.pipeline.RegisterImage(ctx, identity, image)
	s.metrics.RegistrationDuration.Record(ctx, time.Since(start).Seconds())

	switch {
	case err == nil:
		s.metrics.RecordRegistration(ctx, "single", "success")
		s.log.Info("identity registered", "user_id", identity, "surface", "http")
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "User registered successfully",
			"user_id": identity,
		})

	case errors.Is(err, protocol.ErrAlreadyRegistered):
		s.metrics.RecordRegistration(ctx, "single", "conflict")
		writeJSON(w, http.StatusConflict, map[string]any{"error": "User is already registered"})

	case errors.Is(err, extract.ErrUndecodableImage):
		s.metrics.RecordRegistration(ctx, "single", "error")
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Image could not be decoded"})

	default:
		s.metrics.RecordRegistration(ctx, "single", "error")
		s.log.Error("registration failed", "user_id", identity, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Internal error"})
	}
}

// HandleVerify is the single-shot verification endpoint. Same request shape
// as [Server.HandleRegister]; responds with the match decision and the best
// similarity.
func (s *Server) HandleVerify(w http.ResponseWriter, r *http.Request) {
	identity, image, ok := s.readSubmission(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	start := time.Now()
	outcome, err := s.pipeline.Verify(ctx, identity, image)
	s.metrics.VerificationDuration.Record(ctx, time.Since(start).Seconds())

	switch {
	case err == nil:
		result := "rejected"
		if outcome.Verified {
			result = "verified"
		}
		s.metrics.RecordVerification(ctx, result)
		s.log.Info("verification attempt",
			"user_id", identity,
			"similarity", outcome.Similarity,
			"verified", outcome.Verified,
			"surface", "http",
		)
		writeJSON(w, http.StatusOK, map[string]any{
			"success":    outcome.Verified,
			"similarity": outcome.Similarity,
		})

	case errors.Is(err, protocol.ErrNotRegistered):
		s.metrics.RecordVerification(ctx, "not_registered")
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "User not registered"})

	case errors.Is(err, extract.ErrUndecodableImage):
		s.metrics.RecordVerification(ctx, "error")
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Image could not be decoded"})

	default:
		s.metrics.RecordVerification(ctx, "error")
		s.log.Error("verification failed", "user_id", identity, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Internal error"})
	}
}

// HandleDeleteIdentity removes every enrolled embedding for an identity.
// Intended for administrative use; a deleted identity can register again.
func (s *Server) HandleDeleteIdentity(w http.ResponseWriter, r *http.Request) {
	identity := r.PathValue("userID")

	n, err := s.pipeline.DeleteIdentity(r.Context(), identity)
	switch {
	case errors.Is(err, store.ErrEmptyIdentity):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "user_id is required"})
	case err != nil:
		s.log.Error("identity deletion failed", "user_id", identity, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Internal error"})
	case n == 0:
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "User not registered"})
	default:
		s.log.Info("identity deleted", "user_id", identity, "embeddings", n)
		writeJSON(w, http.StatusOK, map[string]any{"user_id": identity, "deleted": n})
	}
}

// readSubmission parses the multipart image + user_id request shared by the
// register and verify endpoints. On failure it writes the 400 response and
// returns ok=false.
func (s *Server) readSubmission(w http.ResponseWriter, r *http.Request) (identity string, image []byte, ok bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxImageBytes+4096)

	if err := r.ParseMultipartForm(s.maxImageBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Request must be multipart form data with an image file"})
		return "", nil, false
	}

	identity = r.FormValue("user_id")
	if identity == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "user_id is required"})
		return "", nil, false
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "image file is required"})
		return "", nil, false
	}
	defer file.Close()

	image, err = io.ReadAll(io.LimitReader(file, s.maxImageBytes+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "image could not be read"})
		return "", nil, false
	}
	if int64(len(image)) > s.maxImageBytes {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{"error": "image exceeds the size limit"})
		return "", nil, false
	}
	if len(image) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "image file is empty"})
		return "", nil, false
	}

	return identity, image, true
}

// writeJSON encodes v as JSON and writes it with the given status code. On
// encoding failure it falls back to a plain-text 500 response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failure"}`, http.StatusInternalServerError)
	}
}
