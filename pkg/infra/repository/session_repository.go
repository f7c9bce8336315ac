package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ExamTrust/ProctorGate/pkg/cache"
	"github.com/ExamTrust/ProctorGate/pkg/common"
	"github.com/ExamTrust/ProctorGate/pkg/domain/session"
	"github.com/go-redis/redis/v8"
)

// SessionRepository mirrors live sessions into redis. The registry's
// in-memory state is authoritative; the mirror exists so external
// collaborators can observe session facts without a query API call.
type SessionRepository struct {
	cache *cache.Cache
}

func NewSessionRepository(c *cache.Cache) session.Repository {
	return &SessionRepository{
		cache: c,
	}
}

func (r *SessionRepository) Save(ctx context.Context, s *session.Session) error {
	sessionJSON, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	sessionKey := fmt.Sprintf(cache.SessionKeyPattern, s.ID)
	if err := r.cache.Set(ctx, sessionKey, string(sessionJSON), common.SessionCacheTTL); err != nil {
		return err
	}

	attemptKey := fmt.Sprintf(cache.AttemptKeyPattern, s.AttemptID, s.SubjectID)
	if err := r.cache.Set(ctx, attemptKey, s.ID, common.SessionCacheTTL); err != nil {
		return err
	}

	if m := r.cache.GetTTLMap(cache.SessionTTLName); m != nil {
		cp := *s
		m.Set(s.ID, &cp)
	}
	return nil
}

func (r *SessionRepository) GetByID(ctx context.Context, sessionID string) (*session.Session, error) {
	if m := r.cache.GetTTLMap(cache.SessionTTLName); m != nil {
		if cached, ok := m.Get(sessionID); ok {
			if s, ok := cached.(*session.Session); ok {
				cp := *s
				return &cp, nil
			}
		}
	}

	sessionKey := fmt.Sprintf(cache.SessionKeyPattern, sessionID)
	sessionJSON, err := r.cache.Get(ctx, sessionKey)
	if errors.Is(err, redis.Nil) {
		return nil, session.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	var s session.Session
	if err := json.Unmarshal([]byte(sessionJSON), &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &s, nil
}

func (r *SessionRepository) Delete(ctx context.Context, sessionID string) error {
	s, err := r.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return nil
		}
		return err
	}

	if m := r.cache.GetTTLMap(cache.SessionTTLName); m != nil {
		m.Delete(sessionID)
	}

	attemptKey := fmt.Sprintf(cache.AttemptKeyPattern, s.AttemptID, s.SubjectID)
	if err := r.cache.Delete(ctx, attemptKey); err != nil {
		return err
	}

	sessionKey := fmt.Sprintf(cache.SessionKeyPattern, sessionID)
	return r.cache.Delete(ctx, sessionKey)
}
