// Package services holds the business operations behind the HTTP API. Each
// service owns its SQL and publishes a change event after every write.
package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/jmoiron/sqlx"

	"github.com/tahcohcat/reconectar/internal/apperr"
	"github.com/tahcohcat/reconectar/internal/realtime"
)

// Clock returns the current time. Tests pin it.
type Clock func() time.Time

func utcNow() time.Time { return time.Now().UTC() }

func publish(p realtime.Publisher, table string, typ realtime.EventType, rowID, userID string) {
	if p == nil {
		return
	}
	p.Publish(realtime.ChangeEvent{Table: table, Type: typ, RowID: rowID, UserID: userID})
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// text trims s and checks its length in characters.
func text(op, field, s string, min, max int) (string, error) {
	s = strings.TrimSpace(s)
	n := utf8.RuneCountInString(s)
	switch {
	case n < min && min <= 1:
		return "", apperr.Validation(op, field+" cannot be empty")
	case n < min:
		return "", apperr.Validation(op, field+" is too short")
	case max > 0 && n > max:
		return "", apperr.Validation(op, field+" is too long")
	}
	return s, nil
}

func isBlocked(ctx context.Context, q sqlx.QueryerContext, userID string) (bool, error) {
	var count int
	if err := sqlx.GetContext(ctx, q, &count, `SELECT COUNT(*) FROM user_blocks WHERE user_id = ?`, userID); err != nil {
		return false, err
	}
	return count > 0, nil
}

func requireNotBlocked(ctx context.Context, q sqlx.QueryerContext, op, userID string) error {
	blocked, err := isBlocked(ctx, q, userID)
	if err != nil {
		return apperr.Backend(op, err)
	}
	if blocked {
		return apperr.Forbidden(op, "account is blocked")
	}
	return nil
}

// userLocks serializes read-modify-write cycles per user.
type userLocks struct {
	m sync.Map
}

func (l *userLocks) lock(userID string) func() {
	v, _ := l.m.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
