package monitor

import (
	"context"

	"github.com/ExamTrust/ProctorGate/pkg/domain/session"
)

// Endpoint is one live network listener dedicated to a session.
type Endpoint interface {
	URI() string
	Shutdown(ctx context.Context) error
}

// EndpointFactory binds a listener on the session's acquired port.
// Launch must either return a working endpoint or leave nothing bound.
type EndpointFactory interface {
	Launch(sess *session.Session) (Endpoint, error)
}
