package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tahcohcat/reconectar/internal/apperr"
	"github.com/tahcohcat/reconectar/internal/models"
	"github.com/tahcohcat/reconectar/internal/realtime"
)

func TestChatThread(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ana := e.register(t, "Ana", "ana@example.com")
	doc := e.register(t, "Dra. Bia", "bia@example.com")
	e.promote(t, doc, models.RoleSpecialist)

	sent, err := e.chat.SendMessage(ctx, ana, "  Oi, preciso de ajuda  ", nil)
	require.NoError(t, err)
	assert.Equal(t, "Oi, preciso de ajuda", sent.Message)
	assert.True(t, sent.IsFromUser)
	assert.True(t, e.events.has(realtime.TableChatMessages, realtime.EventInsert, ana))

	reply, err := e.chat.Reply(ctx, doc, ana, "Claro, como posso ajudar?")
	require.NoError(t, err)
	assert.False(t, reply.IsFromUser)
	require.NotNil(t, reply.SpecialistID)
	assert.Equal(t, doc, *reply.SpecialistID)

	thread, err := e.chat.ListMessages(ctx, ana)
	require.NoError(t, err)
	require.Len(t, thread, 2)
	assert.Equal(t, sent.ID, thread[0].ID)
	assert.Equal(t, reply.ID, thread[1].ID)

	other, err := e.chat.ListMessages(ctx, doc)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestReplyRequiresSpecialist(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ana := e.register(t, "Ana", "ana@example.com")
	bob := e.register(t, "Bob", "bob@example.com")

	_, err := e.chat.Reply(ctx, bob, ana, "I am not a doctor")
	assert.True(t, errors.Is(err, apperr.ErrForbidden))

	_, err = e.chat.Inbox(ctx, bob)
	assert.True(t, errors.Is(err, apperr.ErrForbidden))

	e.promote(t, bob, models.RoleAdmin)
	_, err = e.chat.Reply(ctx, bob, "missing", "hello")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestSendMessageValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ana := e.register(t, "Ana", "ana@example.com")

	_, err := e.chat.SendMessage(ctx, ana, "   ", nil)
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = e.chat.SendMessage(ctx, ana, strings.Repeat("x", MaxChatMessageLength+1), nil)
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestSendMessageRateLimit(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ana := e.register(t, "Ana", "ana@example.com")
	bob := e.register(t, "Bob", "bob@example.com")

	chat := NewChatService(e.db, e.roles, nil, ChatLimit{PerMinute: 1, Burst: 2})
	for i := 0; i < 2; i++ {
		_, err := chat.SendMessage(ctx, ana, "hello", nil)
		require.NoError(t, err)
	}
	_, err := chat.SendMessage(ctx, ana, "hello", nil)
	assert.True(t, errors.Is(err, apperr.ErrRateLimited))
	assert.Equal(t, 429, apperr.HTTPStatus(err))

	// limits are per user
	_, err = chat.SendMessage(ctx, bob, "hello", nil)
	assert.NoError(t, err)
}

func TestInboxAndMarkRead(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ana := e.register(t, "Ana", "ana@example.com")
	bob := e.register(t, "Bob", "bob@example.com")
	doc := e.register(t, "Dra. Bia", "bia@example.com")
	e.promote(t, doc, models.RoleSpecialist)

	m1, err := e.chat.SendMessage(ctx, ana, "from ana", nil)
	require.NoError(t, err)
	m2, err := e.chat.SendMessage(ctx, bob, "from bob", nil)
	require.NoError(t, err)

	inbox, err := e.chat.Inbox(ctx, doc)
	require.NoError(t, err)
	require.Len(t, inbox, 2)
	assert.Equal(t, m2.ID, inbox[0].ID)
	assert.Equal(t, "Bob", inbox[0].UserName)
	assert.Equal(t, "Ana", inbox[1].UserName)

	// users only touch their own thread
	n, err := e.chat.MarkRead(ctx, ana, []string{m1.ID, m2.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = e.chat.MarkRead(ctx, doc, []string{m2.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.True(t, e.events.has(realtime.TableChatMessages, realtime.EventUpdate, bob))

	thread, err := e.chat.ListMessages(ctx, ana)
	require.NoError(t, err)
	assert.True(t, thread[0].Read)

	n, err = e.chat.MarkRead(ctx, ana, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}
