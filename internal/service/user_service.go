// Package service provides application business logic (users, chat, calls, games).
package service

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"sameem/internal/models"
	"sameem/internal/repository"
)

// usernamePattern is the canonical handle shape: lowercase letters, digits,
// underscore and dot, 3 to 20 characters.
var usernamePattern = regexp.MustCompile(`^[a-z0-9_.]{3,20}$`)

// UserService provides profile and account business logic.
type UserService struct {
	userRepo repository.UserRepository
}

// UpdateProfileInput is the input for updating a profile.
type UpdateProfileInput struct {
	UserID      uint
	DisplayName string
	Avatar      string
}

// NewUserService returns a new UserService.
func NewUserService(userRepo repository.UserRepository) *UserService {
	return &UserService{userRepo: userRepo}
}

func (s *UserService) ListUsers(ctx context.Context, limit, offset int) ([]models.User, error) {
	return s.userRepo.List(ctx, limit, offset)
}

func (s *UserService) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

func (s *UserService) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.userRepo.GetByUsername(ctx, strings.ToLower(strings.TrimSpace(username)))
}

// UpdateProfile updates the mutable profile fields. The username is not one
// of them; renames go through Rename so the handle reservation stays correct.
func (s *UserService) UpdateProfile(ctx context.Context, in UpdateProfileInput) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, in.UserID)
	if err != nil {
		return nil, err
	}

	const maxDisplayNameLen = 50

	if in.DisplayName != "" {
		if len(in.DisplayName) > maxDisplayNameLen {
			return nil, models.NewValidationError("Display name too long (max 50 characters)")
		}
		user.DisplayName = in.DisplayName
	}
	if in.Avatar != "" {
		user.Avatar = in.Avatar
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

// Rename changes the user's handle. The new handle is claimed in the
// reservation table inside a single transaction, so two users racing for the
// same name cannot both win.
func (s *UserService) Rename(ctx context.Context, userID uint, newUsername string) (*models.User, error) {
	newUsername = strings.ToLower(strings.TrimSpace(newUsername))
	if !usernamePattern.MatchString(newUsername) {
		return nil, models.NewValidationError("Username must be 3-20 characters: lowercase letters, digits, underscore or dot")
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Username == newUsername {
		return user, nil
	}

	if err := s.userRepo.RenameUser(ctx, userID, user.Username, newUsername); err != nil {
		return nil, err
	}

	user.Username = newUsername
	return user, nil
}

// UpdateSettings replaces the user's settings document.
func (s *UserService) UpdateSettings(ctx context.Context, userID uint, settings models.UserSettings) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(settings)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	user.Settings = raw

	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// SetFCMToken stores the push token for the user's current device.
func (s *UserService) SetFCMToken(ctx context.Context, userID uint, token string) error {
	return s.userRepo.UpdateFields(ctx, userID, map[string]interface{}{"fcm_token": token})
}

// SetAdmin grants or revokes admin rights. Admins cannot demote themselves,
// which keeps the instance from locking itself out.
func (s *UserService) SetAdmin(ctx context.Context, actorID, targetID uint, isAdmin bool) (*models.User, error) {
	if actorID == targetID && !isAdmin {
		return nil, models.NewValidationError("You cannot revoke your own admin rights")
	}

	user, err := s.userRepo.GetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}

	user.IsAdmin = isAdmin
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

// SetSuspended suspends or reinstates an account. A suspended user keeps
// their data but fails authentication until reinstated.
func (s *UserService) SetSuspended(ctx context.Context, actorID, targetID uint, suspended bool) (*models.User, error) {
	if actorID == targetID {
		return nil, models.NewValidationError("You cannot suspend your own account")
	}

	user, err := s.userRepo.GetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}

	user.Suspended = suspended
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

// DeleteUser removes the account and releases its handle reservation.
func (s *UserService) DeleteUser(ctx context.Context, targetID uint) error {
	if _, err := s.userRepo.GetByID(ctx, targetID); err != nil {
		return err
	}
	return s.userRepo.Delete(ctx, targetID)
}

// Block hides the target user from the blocker and stops messages in both
// directions. Blocking someone already blocked is a no-op.
func (s *UserService) Block(ctx context.Context, userID, targetID uint) error {
	if userID == targetID {
		return models.NewValidationError("You cannot block yourself")
	}
	if _, err := s.userRepo.GetByID(ctx, targetID); err != nil {
		return err
	}
	return s.userRepo.Block(ctx, userID, targetID)
}

func (s *UserService) Unblock(ctx context.Context, userID, targetID uint) error {
	return s.userRepo.Unblock(ctx, userID, targetID)
}

func (s *UserService) ListBlocked(ctx context.Context, userID uint) ([]models.User, error) {
	return s.userRepo.ListBlocked(ctx, userID)
}
