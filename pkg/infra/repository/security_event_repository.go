package repository

import (
	"context"

	"github.com/ExamTrust/ProctorGate/pkg/domain/securityevent"
	"gorm.io/gorm"
)

type SecurityEventRepository struct {
	db *gorm.DB
}

func NewSecurityEventRepository(db *gorm.DB) securityevent.Repository {
	return &SecurityEventRepository{
		db: db,
	}
}

func (r *SecurityEventRepository) Save(ctx context.Context, event *securityevent.Event) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *SecurityEventRepository) ListBySession(ctx context.Context, sessionID string, offset, limit int) ([]*securityevent.Event, error) {
	var events []*securityevent.Event
	err := r.db.WithContext(ctx).Model(&securityevent.Event{}).
		Where("session_id = ?", sessionID).
		Order("received_at desc").
		Limit(limit).
		Offset(offset).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
