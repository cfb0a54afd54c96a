package services

import (
	"context"

	"github.com/tahcohcat/reconectar/internal/apperr"
	"github.com/tahcohcat/reconectar/internal/database"
	"github.com/tahcohcat/reconectar/internal/models"
	"github.com/tahcohcat/reconectar/internal/realtime"
)

type RoleService struct {
	db     *database.DB
	events realtime.Publisher
}

func NewRoleService(db *database.DB, events realtime.Publisher) *RoleService {
	return &RoleService{db: db, events: events}
}

// Roles returns every role held by userID.
func (s *RoleService) Roles(ctx context.Context, userID string) (models.RoleSet, error) {
	var roles []models.Role
	err := s.db.SelectContext(ctx, &roles, `SELECT role FROM user_roles WHERE user_id = ? ORDER BY role`, userID)
	if err != nil {
		return models.RoleSet{}, apperr.Backend("services.Roles", err)
	}
	return models.NewRoleSet(roles), nil
}

// RequireModerator fails unless userID is a specialist or an admin.
func (s *RoleService) RequireModerator(ctx context.Context, op, userID string) error {
	roles, err := s.Roles(ctx, userID)
	if err != nil {
		return err
	}
	if !roles.CanModerate() {
		return apperr.Forbidden(op, "specialist or admin role required")
	}
	return nil
}

// RequireAdmin fails unless userID is an admin.
func (s *RoleService) RequireAdmin(ctx context.Context, op, userID string) error {
	roles, err := s.Roles(ctx, userID)
	if err != nil {
		return err
	}
	if !roles.IsAdmin {
		return apperr.Forbidden(op, "admin role required")
	}
	return nil
}

func (s *RoleService) Grant(ctx context.Context, actorID, userID string, role models.Role) error {
	const op = "services.GrantRole"
	if err := s.checkChange(ctx, op, actorID, userID, role); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO user_roles (user_id, role) VALUES (?, ?)`, userID, role); err != nil {
		return apperr.Backend(op, err)
	}
	publish(s.events, realtime.TableUserRoles, realtime.EventInsert, userID+":"+string(role), userID)
	return nil
}

func (s *RoleService) Revoke(ctx context.Context, actorID, userID string, role models.Role) error {
	const op = "services.RevokeRole"
	if err := s.checkChange(ctx, op, actorID, userID, role); err != nil {
		return err
	}
	if actorID == userID && role == models.RoleAdmin {
		return apperr.Validation(op, "admins cannot revoke their own admin role")
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = ? AND role = ?`, userID, role); err != nil {
		return apperr.Backend(op, err)
	}
	publish(s.events, realtime.TableUserRoles, realtime.EventDelete, userID+":"+string(role), userID)
	return nil
}

func (s *RoleService) checkChange(ctx context.Context, op, actorID, userID string, role models.Role) error {
	if !role.Valid() {
		return apperr.Validation(op, "unknown role "+string(role))
	}
	if err := s.RequireAdmin(ctx, op, actorID); err != nil {
		return err
	}
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM profiles WHERE id = ?`, userID); err != nil {
		return apperr.Backend(op, err)
	}
	if count == 0 {
		return apperr.NotFound(op, "user not found")
	}
	return nil
}
