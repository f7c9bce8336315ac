package repository

import (
	"context"

	"github.com/ExamTrust/ProctorGate/pkg/domain/ban"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BanRecordRepository struct {
	db *gorm.DB
}

func NewBanRecordRepository(db *gorm.DB) ban.Repository {
	return &BanRecordRepository{
		db: db,
	}
}

func (r *BanRecordRepository) Upsert(ctx context.Context, record *ban.Record) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "identity"}},
			UpdateAll: true,
		}).
		Create(record).Error
}

func (r *BanRecordRepository) Delete(ctx context.Context, identity string) error {
	return r.db.WithContext(ctx).Delete(&ban.Record{}, "identity = ?", identity).Error
}

func (r *BanRecordRepository) List(ctx context.Context, offset, limit int) ([]*ban.Record, error) {
	var records []*ban.Record
	err := r.db.WithContext(ctx).Model(&ban.Record{}).
		Order("last_violation desc").
		Limit(limit).
		Offset(offset).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
