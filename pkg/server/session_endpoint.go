package server

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/ExamTrust/ProctorGate/pkg/app/monitor"
	"github.com/ExamTrust/ProctorGate/pkg/domain/session"
	wshandlers "github.com/ExamTrust/ProctorGate/pkg/handlers/websocket"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

const MonitorPath = "/monitor"

// SessionEndpointFactory launches one fiber app per session, bound to
// the session's acquired port. The gate is attached after the
// registry exists because the registry itself takes the factory.
type SessionEndpointFactory struct {
	logger *logrus.Logger
	host   string

	mu   sync.RWMutex
	gate wshandlers.Gate
}

func NewSessionEndpointFactory(logger *logrus.Logger, host string) *SessionEndpointFactory {
	return &SessionEndpointFactory{
		logger: logger,
		host:   host,
	}
}

// Bind attaches the registry. Must happen before the first Launch.
func (f *SessionEndpointFactory) Bind(gate wshandlers.Gate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = gate
}

// Launch binds the listener synchronously so a port conflict surfaces
// to the caller instead of dying inside a goroutine.
func (f *SessionEndpointFactory) Launch(sess *session.Session) (monitor.Endpoint, error) {
	f.mu.RLock()
	gate := f.gate
	f.mu.RUnlock()
	if gate == nil {
		return nil, fmt.Errorf("endpoint factory has no session gate bound")
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(f.host, strconv.Itoa(sess.Port)))
	if err != nil {
		return nil, fmt.Errorf("failed to bind port %d: %w", sess.Port, err)
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           120 * time.Second,
		WriteTimeout:          120 * time.Second,
	})

	app.Use(MonitorPath, func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	handler := wshandlers.NewMonitorHandler(f.logger, gate, sess.Port)
	app.Get(MonitorPath, websocket.New(
		handler.Handle,
		websocket.Config{
			HandshakeTimeout: 15 * time.Second,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
	))

	go func() {
		if err := app.Listener(ln); err != nil {
			f.logger.WithError(err).WithField("port", sess.Port).Error("session endpoint stopped")
		}
	}()

	uri := fmt.Sprintf("ws://%s%s", net.JoinHostPort(f.host, strconv.Itoa(sess.Port)), MonitorPath)
	return &sessionEndpoint{app: app, uri: uri}, nil
}

type sessionEndpoint struct {
	app *fiber.App
	uri string
}

func (e *sessionEndpoint) URI() string {
	return e.uri
}

func (e *sessionEndpoint) Shutdown(ctx context.Context) error {
	return e.app.ShutdownWithContext(ctx)
}
