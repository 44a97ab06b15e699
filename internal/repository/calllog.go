package repository

import (
	"context"
	"errors"

	"sameem/internal/models"

	"gorm.io/gorm"
)

// CallLogRepository defines persistence operations for per-user call history.
type CallLogRepository interface {
	Create(ctx context.Context, log *models.CallLog) error
	List(ctx context.Context, userID uint, limit int) ([]models.CallLog, error)
	// PatchDuration sets the duration on the most recent duration-less log
	// entry with the given partner. Each side logs its own entry, so the
	// patch only touches the caller's view.
	PatchDuration(ctx context.Context, userID, partnerID uint, seconds int) error
	DeleteForUser(ctx context.Context, userID uint) error
}

type callLogRepository struct {
	db *gorm.DB
}

// NewCallLogRepository returns a new CallLogRepository implementation.
func NewCallLogRepository(db *gorm.DB) CallLogRepository {
	return &callLogRepository{db: db}
}

func (r *callLogRepository) Create(ctx context.Context, log *models.CallLog) error {
	if err := r.db.WithContext(ctx).Create(log).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *callLogRepository) List(ctx context.Context, userID uint, limit int) ([]models.CallLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var logs []models.CallLog
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return logs, nil
}

func (r *callLogRepository) PatchDuration(ctx context.Context, userID, partnerID uint, seconds int) error {
	var log models.CallLog
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND partner_id = ? AND duration_seconds IS NULL", userID, partnerID).
		Order("created_at DESC").
		First(&log).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil // nothing to patch
		}
		return models.NewInternalError(err)
	}

	if err := r.db.WithContext(ctx).Model(&log).
		Update("duration_seconds", seconds).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *callLogRepository) DeleteForUser(ctx context.Context, userID uint) error {
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&models.CallLog{}).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}
