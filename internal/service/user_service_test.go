package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"sameem/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserService_UpdateProfile(t *testing.T) {
	t.Run("display name too long", func(t *testing.T) {
		svc := NewUserService(noopUserRepo())
		_, err := svc.UpdateProfile(context.Background(), UpdateProfileInput{
			UserID:      1,
			DisplayName: strings.Repeat("x", 51),
		})
		assertValidationError(t, err)
	})

	t.Run("partial update leaves other fields alone", func(t *testing.T) {
		repo := noopUserRepo()
		repo.getByIDFn = func(_ context.Context, id uint) (*models.User, error) {
			return &models.User{ID: id, DisplayName: "Old Name", Avatar: "/media/avatars/a.webp"}, nil
		}
		var saved *models.User
		repo.updateFn = func(_ context.Context, u *models.User) error {
			saved = u
			return nil
		}

		svc := NewUserService(repo)
		user, err := svc.UpdateProfile(context.Background(), UpdateProfileInput{
			UserID:      1,
			DisplayName: "New Name",
		})
		require.NoError(t, err)
		assert.Equal(t, "New Name", user.DisplayName)
		assert.Equal(t, "/media/avatars/a.webp", user.Avatar, "avatar should be unchanged when not provided")
		require.NotNil(t, saved)
	})

	t.Run("repo error propagates", func(t *testing.T) {
		repoErr := errors.New("db connection error")
		repo := noopUserRepo()
		repo.getByIDFn = func(context.Context, uint) (*models.User, error) { return nil, repoErr }

		svc := NewUserService(repo)
		_, err := svc.UpdateProfile(context.Background(), UpdateProfileInput{UserID: 1, DisplayName: "x"})
		assert.ErrorIs(t, err, repoErr)
	})
}

func TestUserService_Rename(t *testing.T) {
	t.Run("invalid handles rejected", func(t *testing.T) {
		svc := NewUserService(noopUserRepo())
		for _, bad := range []string{"ab", "UPPER", "has space", "way_too_long_for_a_handle", "emoji🙂"} {
			_, err := svc.Rename(context.Background(), 1, bad)
			assertValidationError(t, err)
		}
	})

	t.Run("valid rename goes through the reservation", func(t *testing.T) {
		repo := noopUserRepo()
		repo.getByIDFn = func(_ context.Context, id uint) (*models.User, error) {
			return &models.User{ID: id, Username: "old_name"}, nil
		}
		var gotOld, gotNew string
		repo.renameUserFn = func(_ context.Context, _ uint, oldName, newName string) error {
			gotOld, gotNew = oldName, newName
			return nil
		}

		svc := NewUserService(repo)
		user, err := svc.Rename(context.Background(), 1, "New.Name")
		require.NoError(t, err)
		assert.Equal(t, "old_name", gotOld)
		assert.Equal(t, "new.name", gotNew, "handles are lowercased before claiming")
		assert.Equal(t, "new.name", user.Username)
	})

	t.Run("rename to the current handle is a no-op", func(t *testing.T) {
		repo := noopUserRepo()
		repo.getByIDFn = func(_ context.Context, id uint) (*models.User, error) {
			return &models.User{ID: id, Username: "same"}, nil
		}
		renamed := false
		repo.renameUserFn = func(context.Context, uint, string, string) error {
			renamed = true
			return nil
		}

		svc := NewUserService(repo)
		_, err := svc.Rename(context.Background(), 1, "same")
		require.NoError(t, err)
		assert.False(t, renamed)
	})

	t.Run("conflict on a taken handle propagates", func(t *testing.T) {
		repo := noopUserRepo()
		repo.getByIDFn = func(_ context.Context, id uint) (*models.User, error) {
			return &models.User{ID: id, Username: "old_name"}, nil
		}
		repo.renameUserFn = func(context.Context, uint, string, string) error {
			return models.NewConflictError("Username is already taken")
		}

		svc := NewUserService(repo)
		_, err := svc.Rename(context.Background(), 1, "taken")
		assertAppErrorCode(t, err, "CONFLICT")
	})
}

func TestUserService_SetAdmin(t *testing.T) {
	t.Run("self-demotion refused", func(t *testing.T) {
		svc := NewUserService(noopUserRepo())
		_, err := svc.SetAdmin(context.Background(), 5, 5, false)
		assertValidationError(t, err)
	})

	t.Run("promoting another user", func(t *testing.T) {
		repo := noopUserRepo()
		repo.getByIDFn = func(_ context.Context, id uint) (*models.User, error) {
			return &models.User{ID: id, IsAdmin: false}, nil
		}
		var saved *models.User
		repo.updateFn = func(_ context.Context, u *models.User) error {
			saved = u
			return nil
		}

		svc := NewUserService(repo)
		user, err := svc.SetAdmin(context.Background(), 1, 5, true)
		require.NoError(t, err)
		assert.True(t, user.IsAdmin)
		require.NotNil(t, saved)
		assert.True(t, saved.IsAdmin)
	})
}

func TestUserService_SetSuspended(t *testing.T) {
	t.Run("cannot suspend yourself", func(t *testing.T) {
		svc := NewUserService(noopUserRepo())
		_, err := svc.SetSuspended(context.Background(), 5, 5, true)
		assertValidationError(t, err)
	})

	t.Run("suspends the target", func(t *testing.T) {
		repo := noopUserRepo()
		repo.getByIDFn = func(_ context.Context, id uint) (*models.User, error) {
			return &models.User{ID: id}, nil
		}

		svc := NewUserService(repo)
		user, err := svc.SetSuspended(context.Background(), 1, 5, true)
		require.NoError(t, err)
		assert.True(t, user.Suspended)
	})
}

func TestUserService_Block(t *testing.T) {
	svc := NewUserService(noopUserRepo())
	err := svc.Block(context.Background(), 3, 3)
	assertValidationError(t, err)

	repo := noopUserRepo()
	var blocker, blocked uint
	repo.blockFn = func(_ context.Context, userID, blockedID uint) error {
		blocker, blocked = userID, blockedID
		return nil
	}
	svc = NewUserService(repo)
	require.NoError(t, svc.Block(context.Background(), 3, 4))
	assert.Equal(t, uint(3), blocker)
	assert.Equal(t, uint(4), blocked)
}
