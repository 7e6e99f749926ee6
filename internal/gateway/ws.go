package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/biosso/facegate/internal/protocol"
)

// HandleProtocol serves the persistent enrollment/verification websocket.
//
// One [protocol.Session] is created per connection and destroyed on
// disconnect. Frames are read and handled strictly in order: a frame is
// processed to completion and its response written before the next read, so
// a client always receives responses in submission order. Failures on one
// connection never affect another; the shared pipeline is stateless across
// connections.
func (s *Server) HandleProtocol(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Capture clients are browser pages served from arbitrary origins,
		// matching the permissive CORS policy of the REST facade.
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Warn("websocket accept failed", "err", err)
		return
	}

	conn.SetReadLimit(s.protocolReadLimit())

	ctx := r.Context()
	s.metrics.ActiveConnections.Add(ctx, 1)
	defer s.metrics.ActiveConnections.Add(ctx, -1)

	sess := protocol.NewSession(s.pipeline, s.log)
	sess.LimitImageBytes(s.maxImageBytes)
	defer sess.Close()

	s.log.Debug("protocol connection opened", "session_id", sess.ID(), "remote", r.RemoteAddr)

	for {
		frame, err := s.readFrame(ctx, conn)
		if err != nil {
			// Client went away or the read deadline passed. Either way the
			// session ends here; no response is sent for anything in flight.
			s.closeConn(conn, sess, err)
			return
		}

		start := time.Now()
		resp, err := sess.HandleFrame(ctx, frame)
		if err != nil {
			s.closeConn(conn, sess, err)
			return
		}
		if resp == nil {
			continue
		}
		s.observeResponse(ctx, sess, resp, time.Since(start))

		payload, err := resp.Encode()
		if err != nil {
			s.log.Error("response encoding failed", "session_id", sess.ID(), "err", err)
			continue
		}
		if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
			// The client disconnected between processing and reply. The work
			// is already committed; there is simply no one left to tell.
			s.log.Debug("response write failed after disconnect", "session_id", sess.ID(), "err", err)
			return
		}
	}
}

// readFrame reads the next frame, applying the configured idle timeout.
func (s *Server) readFrame(ctx context.Context, conn *websocket.Conn) ([]byte, error) {
	if s.idleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.idleTimeout)
		defer cancel()
	}
	_, data, err := conn.Read(ctx)
	return data, err
}

// closeConn tears the connection down after a terminal condition.
func (s *Server) closeConn(conn *websocket.Conn, sess *protocol.Session, err error) {
	sess.Close()
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		s.log.Info("closing idle connection", "session_id", sess.ID())
		conn.Close(websocket.StatusGoingAway, "idle timeout")
	case websocket.CloseStatus(err) != -1, errors.Is(err, context.Canceled):
		s.log.Debug("connection closed", "session_id", sess.ID(), "mode", sess.Mode())
		conn.Close(websocket.StatusNormalClosure, "")
	default:
		s.log.Warn("connection failed", "session_id", sess.ID(), "err", err)
		conn.Close(websocket.StatusInternalError, "")
	}
}

// observeResponse records latency and outcome metrics for one handled frame.
func (s *Server) observeResponse(ctx context.Context, sess *protocol.Session, resp *protocol.Response, elapsed time.Duration) {
	switch resp.Type {
	case protocol.TypeRegistrationResult:
		s.metrics.RegistrationDuration.Record(ctx, elapsed.Seconds())
		s.metrics.RecordRegistration(ctx, "bulk", registrationOutcome(resp))
	case protocol.TypeResult:
		if sess.Mode() == protocol.ModeEnrolling {
			s.metrics.RegistrationDuration.Record(ctx, elapsed.Seconds())
			s.metrics.RecordRegistration(ctx, "single", registrationOutcome(resp))
		} else {
			s.metrics.VerificationDuration.Record(ctx, elapsed.Seconds())
			s.metrics.RecordVerification(ctx, verificationOutcome(resp))
		}
	}
	if resp.Status == protocol.StatusError && resp.Reason != "" {
		s.metrics.RecordProtocolError(ctx, resp.Reason)
	}
}

func verificationOutcome(resp *protocol.Response) string {
	switch {
	case resp.Status == protocol.StatusVerified:
		return "verified"
	case resp.Reason == protocol.ReasonNotRegistered:
		return "not_registered"
	case resp.Status == protocol.StatusRejected:
		return "rejected"
	default:
		return "error"
	}
}

func registrationOutcome(resp *protocol.Response) string {
	switch resp.Status {
	case protocol.StatusRegistered, protocol.StatusSuccess:
		return "success"
	default:
		if resp.Reason == protocol.ReasonAlreadyRegistered {
			return "conflict"
		}
		return "error"
	}
}
