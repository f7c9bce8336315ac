package websocket

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/ExamTrust/ProctorGate/pkg/app/monitor"
	"github.com/ExamTrust/ProctorGate/pkg/common"
	"github.com/ExamTrust/ProctorGate/pkg/domain/fingerprint"
	"github.com/ExamTrust/ProctorGate/pkg/domain/securityevent"
	"github.com/ExamTrust/ProctorGate/pkg/domain/session"
	"github.com/gofiber/contrib/websocket"
	"github.com/sirupsen/logrus"
)

const (
	handshakeWait = 10 * time.Second
	readWait      = 90 * time.Second
)

// Gate is the slice of the session registry a monitoring endpoint
// needs: admit the connection, then feed it events.
type Gate interface {
	RouteConnection(ctx context.Context, port int, identity string, fp *fingerprint.Client) (*monitor.Admission, error)
	IngestEvent(ctx context.Context, sessionID, identity string, category securityevent.Category, payload securityevent.Payload, clientTimestamp int64) (float64, error)
}

type handshakeMessage struct {
	Environment string `json:"environment"`
}

type admissionMessage struct {
	Accepted     bool   `json:"accepted"`
	SessionID    string `json:"session_id,omitempty"`
	Reason       string `json:"reason,omitempty"`
	RetryAfterMs int64  `json:"retry_after_ms,omitempty"`
}

type eventMessage struct {
	Category  string                `json:"category"`
	Payload   securityevent.Payload `json:"payload"`
	Timestamp int64                 `json:"timestamp"`
}

type ackMessage struct {
	RiskScore float64 `json:"risk_score"`
	Error     string  `json:"error,omitempty"`
}

// monitorHandler serves one session's dedicated endpoint. The port it
// was launched on identifies the session; clients never name a
// session id before admission.
type monitorHandler struct {
	logger *logrus.Logger
	gate   Gate
	port   int
}

func NewMonitorHandler(logger *logrus.Logger, gate Gate, port int) Handler {
	return &monitorHandler{
		logger: logger,
		gate:   gate,
		port:   port,
	}
}

func (h *monitorHandler) Handle(c *websocket.Conn) {
	defer func() {
		if err := c.Close(); err != nil {
			h.logger.WithError(err).Debug("failed to close websocket connection")
		}
	}()

	identity := remoteIdentity(c)

	if err := c.SetReadDeadline(time.Now().Add(handshakeWait)); err != nil {
		h.logger.WithError(err).Error("failed to set handshake deadline")
		return
	}

	var hello handshakeMessage
	if err := c.ReadJSON(&hello); err != nil {
		h.logger.WithField("identity", identity).Debug("client sent no handshake")
		return
	}

	environment := hello.Environment
	if environment == "" {
		// Older clients send the environment blob as an upgrade header
		// instead of a handshake message.
		environment = c.Headers(common.ClientEnvironmentHeader)
	}

	fp, err := fingerprint.Decode(environment)
	if err != nil {
		// An undecodable environment is scored, not dropped: the
		// validator treats the empty fingerprint as maximally thin.
		fp = &fingerprint.Client{}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	admission, err := h.gate.RouteConnection(ctx, h.port, identity, fp)
	cancel()
	if err != nil {
		h.logger.WithError(err).WithField("identity", identity).Error("failed to route connection")
		return
	}

	reply := admissionMessage{
		Accepted:  admission.Accepted,
		SessionID: admission.SessionID,
		Reason:    admission.Reason,
	}
	if admission.RetryAfter > 0 {
		reply.RetryAfterMs = admission.RetryAfter.Milliseconds()
	}
	if err := c.WriteJSON(reply); err != nil {
		h.logger.WithError(err).Debug("failed to write admission reply")
		return
	}
	if !admission.Accepted {
		return
	}

	h.serve(c, admission.SessionID, identity)
}

func (h *monitorHandler) serve(c *websocket.Conn, sessionID, identity string) {
	for {
		if err := c.SetReadDeadline(time.Now().Add(readWait)); err != nil {
			return
		}

		var msg eventMessage
		if err := c.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.WithError(err).WithField("session_id", sessionID).Debug("websocket read failed")
			}
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		score, err := h.gate.IngestEvent(ctx, sessionID, identity, securityevent.Category(msg.Category), msg.Payload, msg.Timestamp)
		cancel()

		switch {
		case err == nil:
			if err := c.WriteJSON(ackMessage{RiskScore: score}); err != nil {
				return
			}
		case errors.Is(err, session.ErrSessionNotFound):
			// Session ended underneath the connection.
			return
		case errors.Is(err, monitor.ErrIdentityBanned), errors.Is(err, monitor.ErrRateLimited):
			_ = c.WriteJSON(ackMessage{Error: err.Error()})
			return
		case errors.Is(err, monitor.ErrInvalidCategory):
			if err := c.WriteJSON(ackMessage{RiskScore: score, Error: err.Error()}); err != nil {
				return
			}
		default:
			h.logger.WithError(err).WithField("session_id", sessionID).Error("failed to ingest event")
			return
		}
	}
}

func remoteIdentity(c *websocket.Conn) string {
	addr := c.RemoteAddr().String()
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
