package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/tahcohcat/reconectar/internal/apperr"
	"github.com/tahcohcat/reconectar/internal/database"
	"github.com/tahcohcat/reconectar/internal/models"
	"github.com/tahcohcat/reconectar/internal/realtime"
)

const (
	DefaultBlockReason = "Violação das regras"
	DefaultCatalogIcon = "Trophy"
)

// AdminService backs the specialist/admin panel.
type AdminService struct {
	db       *database.DB
	roles    *RoleService
	profiles *ProfileService
	events   realtime.Publisher
	now      Clock
}

func NewAdminService(db *database.DB, roles *RoleService, profiles *ProfileService, events realtime.Publisher) *AdminService {
	return &AdminService{db: db, roles: roles, profiles: profiles, events: events, now: utcNow}
}

// ListUsers returns every profile, newest first, with its block flag.
func (s *AdminService) ListUsers(ctx context.Context, actorID string) ([]models.AdminUserView, error) {
	const op = "services.ListUsers"
	if err := s.roles.RequireModerator(ctx, op, actorID); err != nil {
		return nil, err
	}

	query := `
		SELECT p.id, p.name, p.username, p.email, p.avatar, p.bio, p.level, p.xp,
			p.digital_detox_days, p.active_challenges, p.created_at, p.updated_at,
			EXISTS (SELECT 1 FROM user_blocks b WHERE b.user_id = p.id) AS is_blocked
		FROM profiles p
		ORDER BY p.created_at DESC, p.rowid DESC
	`
	users := []models.AdminUserView{}
	if err := s.db.SelectContext(ctx, &users, query); err != nil {
		return nil, apperr.Backend(op, fmt.Errorf("failed to list users: %w", err))
	}
	return users, nil
}

func (s *AdminService) BlockUser(ctx context.Context, actorID, userID, reason string) (*models.UserBlock, error) {
	const op = "services.BlockUser"
	if err := s.roles.RequireModerator(ctx, op, actorID); err != nil {
		return nil, err
	}
	if actorID == userID {
		return nil, apperr.Validation(op, "you cannot block yourself")
	}
	if _, err := s.profiles.Get(ctx, userID); err != nil {
		return nil, err
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultBlockReason
	}
	block := &models.UserBlock{UserID: userID, BlockedBy: actorID, Reason: reason, CreatedAt: s.now()}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO user_blocks (user_id, blocked_by, reason, created_at)
		VALUES (:user_id, :blocked_by, :reason, :created_at)
		ON CONFLICT(user_id) DO UPDATE SET blocked_by = excluded.blocked_by, reason = excluded.reason`, block)
	if err != nil {
		return nil, apperr.Backend(op, err)
	}

	publish(s.events, realtime.TableUserBlocks, realtime.EventInsert, userID, userID)
	return block, nil
}

func (s *AdminService) UnblockUser(ctx context.Context, actorID, userID string) error {
	const op = "services.UnblockUser"
	if err := s.roles.RequireModerator(ctx, op, actorID); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM user_blocks WHERE user_id = ?`, userID)
	if err != nil {
		return apperr.Backend(op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound(op, "user is not blocked")
	}

	publish(s.events, realtime.TableUserBlocks, realtime.EventDelete, userID, userID)
	return nil
}

// CreateCatalogChallenge adds a template every user can start.
func (s *AdminService) CreateCatalogChallenge(ctx context.Context, actorID string, req *models.CreateCatalogChallengeRequest) (*models.CatalogChallenge, error) {
	const op = "services.CreateCatalogChallenge"
	if err := s.roles.RequireModerator(ctx, op, actorID); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(req.Title)
	switch {
	case title == "":
		return nil, apperr.Validation(op, "title is required")
	case req.TotalDays < 1:
		return nil, apperr.Validation(op, "total_days must be at least 1")
	case req.RewardXP < 0:
		return nil, apperr.Validation(op, "reward_xp cannot be negative")
	}

	icon := strings.TrimSpace(req.Icon)
	if icon == "" {
		icon = DefaultCatalogIcon
	}
	var badge *string
	if b := strings.TrimSpace(req.RewardBadge); b != "" {
		badge = &b
	}

	row := &models.CatalogChallenge{
		ID:          uuid.NewString(),
		Title:       title,
		Description: strings.TrimSpace(req.Description),
		TotalDays:   req.TotalDays,
		RewardXP:    req.RewardXP,
		RewardBadge: badge,
		Icon:        icon,
		CreatedBy:   actorID,
		CreatedAt:   s.now(),
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO challenges (id, title, description, total_days, reward_xp, reward_badge, icon, created_by, created_at)
		VALUES (:id, :title, :description, :total_days, :reward_xp, :reward_badge, :icon, :created_by, :created_at)`, row)
	if err != nil {
		return nil, apperr.Backend(op, fmt.Errorf("failed to create challenge: %w", err))
	}

	publish(s.events, realtime.TableChallenges, realtime.EventInsert, row.ID, "")
	return row, nil
}

// DeleteCatalogChallenge removes an admin-authored template. Challenges
// already started from it keep running.
func (s *AdminService) DeleteCatalogChallenge(ctx context.Context, actorID, id string) error {
	const op = "services.DeleteCatalogChallenge"
	if err := s.roles.RequireModerator(ctx, op, actorID); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM challenges WHERE id = ?`, id)
	if err != nil {
		return apperr.Backend(op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound(op, "challenge not found")
	}
	publish(s.events, realtime.TableChallenges, realtime.EventDelete, id, "")
	return nil
}

// CorrectProfile lets an admin fix level, XP or counters, including lowering them.
func (s *AdminService) CorrectProfile(ctx context.Context, actorID, userID string, patch models.ProfilePatch) (*models.Profile, error) {
	return s.profiles.Correct(ctx, actorID, userID, patch)
}

func (s *AdminService) GrantRole(ctx context.Context, actorID, userID string, role models.Role) error {
	return s.roles.Grant(ctx, actorID, userID, role)
}

func (s *AdminService) RevokeRole(ctx context.Context, actorID, userID string, role models.Role) error {
	return s.roles.Revoke(ctx, actorID, userID, role)
}
