package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"github.com/jmoiron/sqlx"
	"golang.org/x/time/rate"

	"github.com/tahcohcat/reconectar/internal/apperr"
	"github.com/tahcohcat/reconectar/internal/database"
	"github.com/tahcohcat/reconectar/internal/models"
	"github.com/tahcohcat/reconectar/internal/realtime"
)

const (
	MaxChatMessageLength = 1000
	inboxLimit           = 100
	limiterCacheSize     = 4096
)

type ChatLimit struct {
	// PerMinute is the sustained number of messages a user may send.
	PerMinute int
	Burst     int
}

var DefaultChatLimit = ChatLimit{PerMinute: 20, Burst: 5}

type ChatService struct {
	db       *database.DB
	roles    *RoleService
	events   realtime.Publisher
	limit    ChatLimit
	limiters *lru.Cache
	now      Clock
}

func NewChatService(db *database.DB, roles *RoleService, events realtime.Publisher, limit ChatLimit) *ChatService {
	if limit.PerMinute <= 0 {
		limit = DefaultChatLimit
	}
	if limit.Burst <= 0 {
		limit.Burst = 1
	}
	limiters, _ := lru.New(limiterCacheSize)
	return &ChatService{
		db:       db,
		roles:    roles,
		events:   events,
		limit:    limit,
		limiters: limiters,
		now:      utcNow,
	}
}

func (s *ChatService) limiter(userID string) *rate.Limiter {
	if v, ok := s.limiters.Get(userID); ok {
		return v.(*rate.Limiter)
	}
	l := rate.NewLimiter(rate.Limit(float64(s.limit.PerMinute)/60), s.limit.Burst)
	if prev, ok, _ := s.limiters.PeekOrAdd(userID, l); ok {
		return prev.(*rate.Limiter)
	}
	return l
}

const selectChatMessage = `SELECT id, user_id, specialist_id, message, is_from_user, read, created_at FROM chat_messages`

// ListMessages returns the thread of userID, oldest first.
func (s *ChatService) ListMessages(ctx context.Context, userID string) ([]models.ChatMessage, error) {
	messages := []models.ChatMessage{}
	err := s.db.SelectContext(ctx, &messages, selectChatMessage+` WHERE user_id = ? ORDER BY created_at ASC, rowid ASC`, userID)
	if err != nil {
		return nil, apperr.Backend("services.ListMessages", fmt.Errorf("failed to list messages: %w", err))
	}
	return messages, nil
}

// SendMessage posts a message from userID into their own thread.
func (s *ChatService) SendMessage(ctx context.Context, userID, message string, specialistID *string) (*models.ChatMessage, error) {
	const op = "services.SendMessage"

	message, err := text(op, "message", message, 1, MaxChatMessageLength)
	if err != nil {
		return nil, err
	}
	if err := requireNotBlocked(ctx, s.db, op, userID); err != nil {
		return nil, err
	}
	if !s.limiter(userID).Allow() {
		return nil, apperr.New(op, apperr.KindRateLimited, "too many messages, slow down")
	}

	msg := &models.ChatMessage{
		ID:           uuid.NewString(),
		UserID:       userID,
		SpecialistID: specialistID,
		Message:      message,
		IsFromUser:   true,
		CreatedAt:    s.now(),
	}
	if err := s.insert(ctx, op, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// Reply answers in the thread of userID. Only specialists and admins reply.
func (s *ChatService) Reply(ctx context.Context, specialistID, userID, message string) (*models.ChatMessage, error) {
	const op = "services.ReplyMessage"

	if err := s.roles.RequireModerator(ctx, op, specialistID); err != nil {
		return nil, err
	}
	message, err := text(op, "message", message, 1, MaxChatMessageLength)
	if err != nil {
		return nil, err
	}

	var exists int
	if err := s.db.GetContext(ctx, &exists, `SELECT COUNT(*) FROM profiles WHERE id = ?`, userID); err != nil {
		return nil, apperr.Backend(op, err)
	}
	if exists == 0 {
		return nil, apperr.NotFound(op, "user not found")
	}

	msg := &models.ChatMessage{
		ID:           uuid.NewString(),
		UserID:       userID,
		SpecialistID: &specialistID,
		Message:      message,
		IsFromUser:   false,
		CreatedAt:    s.now(),
	}
	if err := s.insert(ctx, op, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *ChatService) insert(ctx context.Context, op string, msg *models.ChatMessage) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO chat_messages (id, user_id, specialist_id, message, is_from_user, read, created_at)
		VALUES (:id, :user_id, :specialist_id, :message, :is_from_user, :read, :created_at)`, msg)
	if err != nil {
		return apperr.Backend(op, fmt.Errorf("failed to save message: %w", err))
	}
	publish(s.events, realtime.TableChatMessages, realtime.EventInsert, msg.ID, msg.UserID)
	return nil
}

// Inbox lists the latest messages across every thread, newest first.
func (s *ChatService) Inbox(ctx context.Context, actorID string) ([]models.InboxMessage, error) {
	const op = "services.Inbox"
	if err := s.roles.RequireModerator(ctx, op, actorID); err != nil {
		return nil, err
	}

	query := `
		SELECT m.id, m.user_id, m.specialist_id, m.message, m.is_from_user, m.read, m.created_at,
			p.name AS user_name, p.avatar AS user_avatar
		FROM chat_messages m
		JOIN profiles p ON p.id = m.user_id
		ORDER BY m.created_at DESC, m.rowid DESC
		LIMIT ?
	`
	messages := []models.InboxMessage{}
	if err := s.db.SelectContext(ctx, &messages, query, inboxLimit); err != nil {
		return nil, apperr.Backend(op, err)
	}
	return messages, nil
}

// MarkRead flags messages as read. Users can only mark their own thread;
// specialists and admins can mark any thread. It returns the rows changed.
func (s *ChatService) MarkRead(ctx context.Context, actorID string, messageIDs []string) (int64, error) {
	const op = "services.MarkRead"
	if len(messageIDs) == 0 {
		return 0, nil
	}

	roles, err := s.roles.Roles(ctx, actorID)
	if err != nil {
		return 0, err
	}

	owners := `SELECT DISTINCT user_id FROM chat_messages WHERE id IN (?)`
	update := `UPDATE chat_messages SET read = TRUE WHERE id IN (?)`
	args := []interface{}{messageIDs}
	if !roles.CanModerate() {
		owners += ` AND user_id = ?`
		update += ` AND user_id = ?`
		args = append(args, actorID)
	}

	query, qargs, err := sqlx.In(owners, args...)
	if err != nil {
		return 0, apperr.Backend(op, err)
	}
	var threads []string
	if err := s.db.SelectContext(ctx, &threads, s.db.Rebind(query), qargs...); err != nil {
		return 0, apperr.Backend(op, err)
	}

	query, qargs, err = sqlx.In(update, args...)
	if err != nil {
		return 0, apperr.Backend(op, err)
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), qargs...)
	if err != nil {
		return 0, apperr.Backend(op, err)
	}
	n, _ := res.RowsAffected()

	for _, owner := range threads {
		publish(s.events, realtime.TableChatMessages, realtime.EventUpdate, "", owner)
	}
	return n, nil
}
