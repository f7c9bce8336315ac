package session

import "context"

// Repository mirrors live sessions into redis so collaborators can
// observe them without touching registry internals.
type Repository interface {
	Save(ctx context.Context, session *Session) error
	GetByID(ctx context.Context, sessionID string) (*Session, error)
	Delete(ctx context.Context, sessionID string) error
}

// SummaryRepository stores the final record of a completed session.
type SummaryRepository interface {
	Save(ctx context.Context, summary *Summary) error
}
