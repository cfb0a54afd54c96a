package services

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/tahcohcat/reconectar/internal/apperr"
	"github.com/tahcohcat/reconectar/internal/database"
	"github.com/tahcohcat/reconectar/internal/logger"
	"github.com/tahcohcat/reconectar/internal/models"
	"github.com/tahcohcat/reconectar/internal/profile"
	"github.com/tahcohcat/reconectar/internal/realtime"
	"github.com/tahcohcat/reconectar/internal/storage"
)

// ObjectStore receives uploaded avatars. *storage.S3Store implements it.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	Delete(ctx context.Context, key string) error
	// KeyOf maps a URL returned by Put back to its key.
	KeyOf(url string) (string, bool)
}

type ProfileService struct {
	db             *database.DB
	roles          *RoleService
	events         realtime.Publisher
	avatars        ObjectStore
	maxAvatarBytes int64
	now            Clock
}

func NewProfileService(db *database.DB, roles *RoleService, events realtime.Publisher, avatars ObjectStore, maxAvatarBytes int64) *ProfileService {
	return &ProfileService{
		db:             db,
		roles:          roles,
		events:         events,
		avatars:        avatars,
		maxAvatarBytes: maxAvatarBytes,
		now:            utcNow,
	}
}

const selectProfile = `SELECT id, name, username, email, avatar, bio, level, xp, digital_detox_days, active_challenges, created_at, updated_at
	FROM profiles WHERE id = ?`

// Get returns the profile of userID.
func (s *ProfileService) Get(ctx context.Context, userID string) (*models.Profile, error) {
	return s.get(ctx, s.db, userID)
}

func (s *ProfileService) get(ctx context.Context, q sqlx.QueryerContext, userID string) (*models.Profile, error) {
	var p models.Profile
	err := sqlx.GetContext(ctx, q, &p, selectProfile, userID)
	if isNoRows(err) {
		return nil, apperr.NotFound("services.GetProfile", "profile not found")
	} else if err != nil {
		return nil, apperr.Backend("services.GetProfile", fmt.Errorf("failed to get profile: %w", err))
	}
	return &p, nil
}

// Update merges patch into the caller's own profile. Level and XP can only go up.
func (s *ProfileService) Update(ctx context.Context, userID string, patch models.ProfilePatch) (*models.Profile, error) {
	return s.modify(ctx, userID, func(p models.Profile) (models.Profile, error) {
		return profile.Apply(p, patch, false)
	})
}

// Correct is the administrative update: it may lower level and XP.
func (s *ProfileService) Correct(ctx context.Context, actorID, userID string, patch models.ProfilePatch) (*models.Profile, error) {
	if err := s.roles.RequireAdmin(ctx, "services.CorrectProfile", actorID); err != nil {
		return nil, err
	}
	return s.modify(ctx, userID, func(p models.Profile) (models.Profile, error) {
		return profile.Apply(p, patch, true)
	})
}

// AwardXP adds a challenge reward to the profile.
func (s *ProfileService) AwardXP(ctx context.Context, userID string, xp int) (*models.Profile, error) {
	return s.modify(ctx, userID, func(p models.Profile) (models.Profile, error) {
		return profile.AwardXP(p, xp)
	})
}

// SetActiveChallenges stores the number of challenges in progress.
func (s *ProfileService) SetActiveChallenges(ctx context.Context, userID string, n int) (*models.Profile, error) {
	return s.modify(ctx, userID, func(p models.Profile) (models.Profile, error) {
		return profile.Apply(p, models.ProfilePatch{ActiveChallenges: &n}, false)
	})
}

// IncrementDetoxDays counts one more day without AI assistance.
func (s *ProfileService) IncrementDetoxDays(ctx context.Context, userID string) (*models.Profile, error) {
	return s.modify(ctx, userID, func(p models.Profile) (models.Profile, error) {
		days := p.DaysWithoutAI + 1
		return profile.Apply(p, models.ProfilePatch{DaysWithoutAI: &days}, false)
	})
}

// SetAvatar validates and uploads an image, then points the profile at it.
// The previous upload is removed afterwards.
func (s *ProfileService) SetAvatar(ctx context.Context, userID string, data []byte) (*models.Profile, error) {
	const op = "services.SetAvatar"
	if s.avatars == nil {
		return nil, apperr.New(op, apperr.KindBackend, "avatar storage is not configured")
	}

	contentType, ext, err := storage.ValidateImage(data, s.maxAvatarBytes)
	if err != nil {
		return nil, err
	}
	if _, err := s.Get(ctx, userID); err != nil {
		return nil, err
	}

	url, err := s.avatars.Put(ctx, storage.AvatarKey(userID, ext), contentType, data)
	if err != nil {
		return nil, apperr.Backend(op, err)
	}
	var previous *string
	p, err := s.modify(ctx, userID, func(p models.Profile) (models.Profile, error) {
		previous = p.Avatar
		return profile.Apply(p, models.ProfilePatch{Avatar: &url}, false)
	})
	if err != nil {
		return nil, err
	}

	if previous != nil && *previous != url {
		s.removeAvatar(ctx, userID, *previous)
	}
	return p, nil
}

// removeAvatar deletes an upload of userID. Failures are logged.
func (s *ProfileService) removeAvatar(ctx context.Context, userID, url string) {
	key, ok := s.avatars.KeyOf(url)
	if !ok || !storage.OwnsAvatarKey(userID, key) {
		return
	}
	if err := s.avatars.Delete(ctx, key); err != nil {
		logger.New().WithError(err).With("user_id", userID).With("key", key).Warn("Failed to delete previous avatar")
	}
}

// modify runs a read-validate-write cycle in one transaction.
func (s *ProfileService) modify(ctx context.Context, userID string, change func(models.Profile) (models.Profile, error)) (*models.Profile, error) {
	var updated models.Profile
	err := s.db.InTx(ctx, func(tx *sqlx.Tx) error {
		current, err := s.get(ctx, tx, userID)
		if err != nil {
			return err
		}
		next, err := change(*current)
		if err != nil {
			return err
		}
		next.UpdatedAt = s.now()

		_, err = tx.NamedExecContext(ctx, `
			UPDATE profiles SET name = :name, username = :username, avatar = :avatar, bio = :bio,
				level = :level, xp = :xp, digital_detox_days = :digital_detox_days,
				active_challenges = :active_challenges, updated_at = :updated_at
			WHERE id = :id`, next)
		if err != nil {
			return apperr.Backend("services.UpdateProfile", fmt.Errorf("failed to update profile: %w", err))
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	publish(s.events, realtime.TableProfiles, realtime.EventUpdate, userID, userID)
	return &updated, nil
}
