package repository

import (
	"context"

	"github.com/ExamTrust/ProctorGate/pkg/domain/session"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SessionSummaryRepository struct {
	db *gorm.DB
}

func NewSessionSummaryRepository(db *gorm.DB) session.SummaryRepository {
	return &SessionSummaryRepository{
		db: db,
	}
}

// Save is an upsert keyed on session id so a retried flush after a
// persistence outage does not fail on the primary key.
func (r *SessionSummaryRepository) Save(ctx context.Context, summary *session.Summary) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}},
			UpdateAll: true,
		}).
		Create(summary).Error
}
