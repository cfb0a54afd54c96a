package services

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/tahcohcat/reconectar/internal/apperr"
	"github.com/tahcohcat/reconectar/internal/database"
	"github.com/tahcohcat/reconectar/internal/logger"
	"github.com/tahcohcat/reconectar/internal/models"
	"github.com/tahcohcat/reconectar/internal/profile"
	"github.com/tahcohcat/reconectar/internal/realtime"
)

const MinPasswordLength = 6

var errInvalidCredentials = apperr.New("services.AuthenticateUser", apperr.KindUnauthenticated, "invalid credentials")

type UserService struct {
	db     *database.DB
	events realtime.Publisher
	now    Clock
}

func NewUserService(db *database.DB, events realtime.Publisher) *UserService {
	return &UserService{db: db, events: events, now: utcNow}
}

// CreateUser registers an account: credentials, a default profile and the
// user role, in one transaction.
func (s *UserService) CreateUser(ctx context.Context, req *models.CreateUserRequest) (*models.User, error) {
	const op = "services.CreateUser"

	name := strings.TrimSpace(req.Name)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if name == "" {
		return nil, apperr.Validation(op, "name is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperr.Validation(op, "invalid email address")
	}
	if len(req.Password) < MinPasswordLength {
		return nil, apperr.Validation(op, fmt.Sprintf("password must have at least %d characters", MinPasswordLength))
	}

	if exists, err := s.EmailExists(ctx, email); err != nil {
		return nil, apperr.Backend(op, err)
	} else if exists {
		return nil, apperr.New(op, apperr.KindConflict, "email already exists")
	}

	now := s.now()
	user := &models.User{
		ID:        uuid.NewString(),
		Email:     email,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := user.SetPassword(req.Password); err != nil {
		return nil, apperr.Backend(op, fmt.Errorf("failed to hash password: %w", err))
	}

	p := profile.New(user.ID, name, email)
	p.CreatedAt, p.UpdatedAt = now, now

	err := s.db.InTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO users (id, email, password_hash, created_at, updated_at, is_active)
			VALUES (:id, :email, :password_hash, :created_at, :updated_at, :is_active)`, user); err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO profiles (id, name, username, email, avatar, bio, level, xp, digital_detox_days, active_challenges, created_at, updated_at)
			VALUES (:id, :name, :username, :email, :avatar, :bio, :level, :xp, :digital_detox_days, :active_challenges, :created_at, :updated_at)`, p); err != nil {
			return fmt.Errorf("failed to create profile: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO user_roles (user_id, role) VALUES (?, ?)`, user.ID, models.RoleUser); err != nil {
			return fmt.Errorf("failed to assign role: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Backend(op, err)
	}

	publish(s.events, realtime.TableProfiles, realtime.EventInsert, user.ID, user.ID)
	logger.New().With("user_id", user.ID).Info("User registered")
	return user, nil
}

// AuthenticateUser validates login credentials and returns the user
func (s *UserService) AuthenticateUser(ctx context.Context, req *models.LoginRequest) (*models.User, error) {
	const op = "services.AuthenticateUser"

	user, err := s.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, errInvalidCredentials
		}
		return nil, err
	}

	if !user.CheckPassword(req.Password) {
		return nil, errInvalidCredentials
	}

	if !user.IsActive {
		return nil, apperr.Forbidden(op, "account is disabled")
	}

	if err := s.UpdateLastLogin(ctx, user.ID); err != nil {
		// Non-fatal error, just log it
		logger.New().WithError(err).With("user_id", user.ID).Warn("Failed to update last login")
	}

	return user, nil
}

// GetUserByID retrieves a user by their ID
func (s *UserService) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	query := `SELECT id, email, created_at, updated_at, last_login_at, is_active
			  FROM users WHERE id = ?`

	err := s.db.GetContext(ctx, &user, query, id)
	if isNoRows(err) {
		return nil, apperr.NotFound("services.GetUserByID", "user not found")
	} else if err != nil {
		return nil, apperr.Backend("services.GetUserByID", fmt.Errorf("failed to get user: %w", err))
	}

	return &user, nil
}

// GetUserByEmail retrieves a user, including the password hash, by email
func (s *UserService) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	query := `SELECT id, email, password_hash, created_at, updated_at, last_login_at, is_active
			  FROM users WHERE email = ?`

	err := s.db.GetContext(ctx, &user, query, strings.ToLower(strings.TrimSpace(email)))
	if isNoRows(err) {
		return nil, apperr.NotFound("services.GetUserByEmail", "user not found")
	} else if err != nil {
		return nil, apperr.Backend("services.GetUserByEmail", fmt.Errorf("failed to get user: %w", err))
	}

	return &user, nil
}

// EmailExists checks if an email is already registered
func (s *UserService) EmailExists(ctx context.Context, email string) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM users WHERE email = ?`, email)
	return count > 0, err
}

// UpdateLastLogin updates the user's last login timestamp
func (s *UserService) UpdateLastLogin(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET last_login_at = ? WHERE id = ?`, s.now(), userID)
	return err
}

// ChangePassword allows users to change their password
func (s *UserService) ChangePassword(ctx context.Context, userID string, req *models.PasswordChangeRequest) error {
	const op = "services.ChangePassword"

	if len(req.NewPassword) < MinPasswordLength {
		return apperr.Validation(op, fmt.Sprintf("password must have at least %d characters", MinPasswordLength))
	}

	var user models.User
	if err := s.db.GetContext(ctx, &user, `SELECT password_hash FROM users WHERE id = ?`, userID); err != nil {
		if isNoRows(err) {
			return apperr.NotFound(op, "user not found")
		}
		return apperr.Backend(op, err)
	}

	if !user.CheckPassword(req.CurrentPassword) {
		return apperr.Validation(op, "current password is incorrect")
	}

	if err := user.SetPassword(req.NewPassword); err != nil {
		return apperr.Backend(op, fmt.Errorf("failed to hash new password: %w", err))
	}

	updateQuery := `UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, updateQuery, user.Password, s.now(), userID); err != nil {
		return apperr.Backend(op, err)
	}
	return nil
}
