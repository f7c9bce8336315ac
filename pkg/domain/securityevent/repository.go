package securityevent

import "context"

type Repository interface {
	Save(ctx context.Context, event *Event) error
	ListBySession(ctx context.Context, sessionID string, offset, limit int) ([]*Event, error)
}
