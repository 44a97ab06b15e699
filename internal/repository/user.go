// Package repository implements the data access layer for the application.
package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"sameem/internal/cache"
	"sameem/internal/models"

	"gorm.io/gorm"
)

// SignupBucket is one day of the signup histogram.
type SignupBucket struct {
	Day   time.Time `json:"day"`
	Count int64     `json:"count"`
}

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	UpdateFields(ctx context.Context, id uint, fields map[string]interface{}) error
	Delete(ctx context.Context, id uint) error
	List(ctx context.Context, limit, offset int) ([]models.User, error)

	ReserveUsername(ctx context.Context, name string, userID uint) error
	ReleaseUsername(ctx context.Context, name string) error
	RenameUser(ctx context.Context, userID uint, oldName, newName string) error

	Block(ctx context.Context, userID, blockedID uint) error
	Unblock(ctx context.Context, userID, blockedID uint) error
	IsBlocked(ctx context.Context, userID, blockedID uint) (bool, error)
	IsBlockedEitherWay(ctx context.Context, a, b uint) (bool, error)
	ListBlocked(ctx context.Context, userID uint) ([]models.User, error)

	IncrementMessageCounters(ctx context.Context, fromID, toID uint) error
	CountAll(ctx context.Context) (int64, error)
	CountAdmins(ctx context.Context) (int64, error)
	CountSuspended(ctx context.Context) (int64, error)
	SignupHistogram(ctx context.Context, days int) ([]SignupBucket, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository returns a new UserRepository implementation.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	key := cache.UserKey(id)

	err := cache.Aside(ctx, key, &user, cache.UserTTL, func() error {
		if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewNotFoundError("User", id)
			}
			return models.NewInternalError(err)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &user, nil
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &user, nil
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewValidationError("User already exists")
		}
		return models.NewInternalError(err)
	}
	return nil
}

// isUniqueConstraintError checks if a DB error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	// PostgreSQL unique violation SQLSTATE 23505
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "23505")
}

func (r *userRepository) Update(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Save(user).Error; err != nil {
		return models.NewInternalError(err)
	}
	cache.InvalidateUser(ctx, user.ID)
	return nil
}

func (r *userRepository) UpdateFields(ctx context.Context, id uint, fields map[string]interface{}) error {
	if err := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(fields).Error; err != nil {
		return models.NewInternalError(err)
	}
	cache.InvalidateUser(ctx, id)
	return nil
}

func (r *userRepository) Delete(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", id).Delete(&models.UsernameReservation{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.User{}, id).Error
	})
	if err != nil {
		return models.NewInternalError(err)
	}
	cache.InvalidateUser(ctx, id)
	return nil
}

func (r *userRepository) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	var users []models.User
	if err := r.db.WithContext(ctx).Limit(limit).Offset(offset).Order("id ASC").Find(&users).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return users, nil
}

// ReserveUsername claims the lowercased name. The primary key on the
// reservations table makes the claim atomic: a concurrent claim for the
// same name fails with a unique violation instead of silently winning.
func (r *userRepository) ReserveUsername(ctx context.Context, name string, userID uint) error {
	res := models.UsernameReservation{Name: strings.ToLower(name), UserID: userID}
	if err := r.db.WithContext(ctx).Create(&res).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewConflictError("Username is already taken")
		}
		return models.NewInternalError(err)
	}
	return nil
}

func (r *userRepository) ReleaseUsername(ctx context.Context, name string) error {
	if err := r.db.WithContext(ctx).
		Where("name = ?", strings.ToLower(name)).
		Delete(&models.UsernameReservation{}).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// RenameUser claims the new name, updates the user row, and releases the old
// name in a single transaction. The claim fails the transaction when the name
// is taken, so two racing renames cannot both succeed.
func (r *userRepository) RenameUser(ctx context.Context, userID uint, oldName, newName string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := models.UsernameReservation{Name: strings.ToLower(newName), UserID: userID}
		if err := tx.Create(&res).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.User{}).Where("id = ?", userID).Update("username", newName).Error; err != nil {
			return err
		}
		return tx.Where("name = ? AND user_id = ?", strings.ToLower(oldName), userID).
			Delete(&models.UsernameReservation{}).Error
	})
	if err != nil {
		if isUniqueConstraintError(err) {
			return models.NewConflictError("Username is already taken")
		}
		return models.NewInternalError(err)
	}
	cache.InvalidateUser(ctx, userID)
	return nil
}

func (r *userRepository) Block(ctx context.Context, userID, blockedID uint) error {
	block := models.UserBlock{UserID: userID, BlockedID: blockedID}
	if err := r.db.WithContext(ctx).Create(&block).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil // already blocked
		}
		return models.NewInternalError(err)
	}
	return nil
}

func (r *userRepository) Unblock(ctx context.Context, userID, blockedID uint) error {
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND blocked_id = ?", userID, blockedID).
		Delete(&models.UserBlock{}).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *userRepository) IsBlocked(ctx context.Context, userID, blockedID uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.UserBlock{}).
		Where("user_id = ? AND blocked_id = ?", userID, blockedID).
		Count(&count).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

func (r *userRepository) IsBlockedEitherWay(ctx context.Context, a, b uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.UserBlock{}).
		Where("(user_id = ? AND blocked_id = ?) OR (user_id = ? AND blocked_id = ?)", a, b, b, a).
		Count(&count).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

func (r *userRepository) ListBlocked(ctx context.Context, userID uint) ([]models.User, error) {
	var users []models.User
	if err := r.db.WithContext(ctx).
		Table("users").
		Joins("JOIN user_blocks b ON b.blocked_id = users.id").
		Where("b.user_id = ?", userID).
		Find(&users).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return users, nil
}

func (r *userRepository) IncrementMessageCounters(ctx context.Context, fromID, toID uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.User{}).Where("id = ?", fromID).
			Update("messages_sent", gorm.Expr("messages_sent + 1")).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).Where("id = ?", toID).
			Update("messages_received", gorm.Expr("messages_received + 1")).Error
	})
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *userRepository) CountAll(ctx context.Context) (int64, error) {
	return r.countWhere(ctx, "")
}

func (r *userRepository) CountAdmins(ctx context.Context) (int64, error) {
	return r.countWhere(ctx, "is_admin = TRUE")
}

func (r *userRepository) CountSuspended(ctx context.Context) (int64, error) {
	return r.countWhere(ctx, "suspended = TRUE")
}

func (r *userRepository) countWhere(ctx context.Context, cond string) (int64, error) {
	var count int64
	q := r.db.WithContext(ctx).Model(&models.User{})
	if cond != "" {
		q = q.Where(cond)
	}
	if err := q.Count(&count).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return count, nil
}

func (r *userRepository) SignupHistogram(ctx context.Context, days int) ([]SignupBucket, error) {
	if days <= 0 {
		days = 7
	}
	since := time.Now().AddDate(0, 0, -days+1).Truncate(24 * time.Hour)

	var buckets []SignupBucket
	if err := r.db.WithContext(ctx).Model(&models.User{}).
		Select("DATE_TRUNC('day', created_at) AS day, COUNT(*) AS count").
		Where("created_at >= ?", since).
		Group("day").
		Order("day ASC").
		Scan(&buckets).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return buckets, nil
}
