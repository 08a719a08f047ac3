package repository

import (
	"context"
	"errors"

	"djmix/model"

	"gorm.io/gorm"
)

// RecordingRepository stores finished recording sessions.
type RecordingRepository interface {
	Save(ctx context.Context, s *model.RecordingSession) error
	GetByID(ctx context.Context, id string) (*model.RecordingSession, error)
	List(ctx context.Context, limit, offset int) ([]*model.RecordingSession, error)
	Delete(ctx context.Context, id string) error
}

type gormRecordingRepository struct {
	db *gorm.DB
}

// NewGormRecordingRepository returns a RecordingRepository backed by db.
func NewGormRecordingRepository(db *gorm.DB) RecordingRepository {
	return &gormRecordingRepository{db: db}
}

// Save inserts s, or updates it when the id already exists.
func (r *gormRecordingRepository) Save(ctx context.Context, s *model.RecordingSession) error {
	return r.db.WithContext(ctx).Save(s).Error
}

// GetByID returns nil, nil when no session has that id.
func (r *gormRecordingRepository) GetByID(ctx context.Context, id string) (*model.RecordingSession, error) {
	var s model.RecordingSession
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// List returns sessions newest first.
func (r *gormRecordingRepository) List(ctx context.Context, limit, offset int) ([]*model.RecordingSession, error) {
	var sessions []*model.RecordingSession
	q := r.db.WithContext(ctx).Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	err := q.Find(&sessions).Error
	return sessions, err
}

func (r *gormRecordingRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&model.RecordingSession{}, "id = ?", id).Error
}
