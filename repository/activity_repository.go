package repository

import (
	"context"
	"fmt"

	"JamFM/core/activity"
	"JamFM/model"

	"gorm.io/gorm"
)

// ActivityRepository defines the interface for group activity persistence.
type ActivityRepository interface {
	activity.Sink

	GetByGroup(ctx context.Context, groupID string, limit, offset int) ([]*model.GroupActivity, error)
	DeleteByGroup(ctx context.Context, groupID string) error
}

// gormActivityRepository implements ActivityRepository with GORM.
type gormActivityRepository struct {
	db *gorm.DB
}

// NewGormActivityRepository creates a new gormActivityRepository.
func NewGormActivityRepository(db *gorm.DB) ActivityRepository {
	return &gormActivityRepository{db: db}
}

// Record persists a single activity entry.
func (r *gormActivityRepository) Record(ctx context.Context, entry activity.Entry) error {
	row := &model.GroupActivity{
		GroupID:      entry.GroupID,
		UserID:       entry.UserID,
		Username:     entry.Username,
		ActivityType: string(entry.ActivityType),
		Content:      entry.Content,
		CreatedAt:    entry.CreatedAt,
	}

	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("failed to record group activity: %w", err)
	}
	return nil
}

// GetByGroup returns activity entries for a group, newest first.
func (r *gormActivityRepository) GetByGroup(ctx context.Context, groupID string, limit, offset int) ([]*model.GroupActivity, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	var rows []*model.GroupActivity
	err := r.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query group activities: %w", err)
	}
	return rows, nil
}

// DeleteByGroup removes all activity entries of a destroyed group.
func (r *gormActivityRepository) DeleteByGroup(ctx context.Context, groupID string) error {
	err := r.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Delete(&model.GroupActivity{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete group activities: %w", err)
	}
	return nil
}
