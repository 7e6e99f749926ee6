package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"golang.org/x/time/rate"

	"github.com/biosso/facegate/pkg/extract"
)

// feedbackMessage is the outbound frame on the feedback websocket. The
// connected greeting carries only Status; per-frame feedback carries Type,
// Reason and Message.
type feedbackMessage struct {
	Status  string `json:"status,omitempty"`
	Type    string `json:"type,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

// HandleFeedback serves the live frame-quality feedback websocket.
//
// On open the client receives {"status":"connected"}. Every subsequent frame
// gets a one-way feedback message from cheap quality checks only: the image
// header is decoded and minimum dimensions validated, the embedding model is
// never invoked. Feedback responses are rate-limited per connection; frames
// arriving over the limit are read and discarded without a check or an
// answer, so a fast camera cannot flood the client with messages it has no
// time to render.
func (s *Server) HandleFeedback(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Warn("feedback websocket accept failed", "err", err)
		return
	}

	conn.SetReadLimit(s.feedbackReadLimit())

	ctx := r.Context()
	s.metrics.ActiveFeedbackStreams.Add(ctx, 1)
	defer s.metrics.ActiveFeedbackStreams.Add(ctx, -1)

	if err := writeFeedback(ctx, conn, feedbackMessage{Status: "connected"}); err != nil {
		s.log.Debug("feedback greeting failed", "err", err)
		conn.Close(websocket.StatusInternalError, "")
		return
	}

	limiter := rate.NewLimiter(rate.Limit(s.feedbackRate), s.feedbackBurst)

	for {
		_, frame, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				s.log.Debug("feedback connection failed", "err", err)
			}
			conn.Close(websocket.StatusNormalClosure, "")
			return
		}

		if !limiter.Allow() {
			continue
		}

		minW, minH := s.frameLimits()
		q := extract.CheckFrame(frame, minW, minH)
		msg := feedbackMessage{Type: "feedback", Reason: q.Reason, Message: q.Message}
		if err := writeFeedback(ctx, conn, msg); err != nil {
			s.log.Debug("feedback write failed", "err", err)
			return
		}
	}
}

func writeFeedback(ctx context.Context, conn *websocket.Conn, msg feedbackMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
