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

func TestFeedJoinsAuthorAndViewerFlags(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ana := e.register(t, "Ana", "ana@example.com")
	doc := e.register(t, "Dra. Bia", "bia@example.com")
	e.promote(t, doc, models.RoleSpecialist)

	first, err := e.community.AddPost(ctx, ana, "  Primeiro dia offline!  ", nil)
	require.NoError(t, err)
	assert.Equal(t, "Primeiro dia offline!", first.Content)
	_, err = e.community.AddPost(ctx, doc, "Dica: deixe o celular fora do quarto.", nil)
	require.NoError(t, err)

	liked, likes, err := e.community.ToggleLike(ctx, ana, first.ID)
	require.NoError(t, err)
	assert.True(t, liked)
	assert.Equal(t, 1, likes)

	_, err = e.community.AddComment(ctx, doc, first.ID, "Parabéns!")
	require.NoError(t, err)

	posts, err := e.community.ListPosts(ctx, ana)
	require.NoError(t, err)
	require.Len(t, posts, 2)

	assert.Equal(t, "Dra. Bia", posts[0].Author.Name)
	assert.True(t, posts[0].IsSpecialist)
	assert.False(t, posts[0].LikedByUser)

	assert.Equal(t, first.ID, posts[1].ID)
	assert.Equal(t, "Ana", posts[1].Author.Name)
	assert.Equal(t, 1, posts[1].Author.Level)
	assert.True(t, posts[1].LikedByUser)
	assert.False(t, posts[1].IsSpecialist)
	assert.Equal(t, 1, posts[1].Likes)
	assert.Equal(t, 1, posts[1].Comments)

	fromDoc, err := e.community.ListPosts(ctx, doc)
	require.NoError(t, err)
	assert.False(t, fromDoc[1].LikedByUser)
}

func TestToggleLikeTwiceRestoresCount(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ana := e.register(t, "Ana", "ana@example.com")
	post, err := e.community.AddPost(ctx, ana, "hello there", nil)
	require.NoError(t, err)

	_, _, err = e.community.ToggleLike(ctx, ana, post.ID)
	require.NoError(t, err)
	liked, likes, err := e.community.ToggleLike(ctx, ana, post.ID)
	require.NoError(t, err)
	assert.False(t, liked)
	assert.Equal(t, 0, likes)
	assert.True(t, e.events.has(realtime.TablePostLikes, realtime.EventDelete, ana))

	// a counter that drifted to zero never goes negative
	_, err = e.db.Exec(`INSERT INTO post_likes (post_id, user_id) VALUES (?, ?)`, post.ID, ana)
	require.NoError(t, err)
	_, likes, err = e.community.ToggleLike(ctx, ana, post.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, likes)

	_, _, err = e.community.ToggleLike(ctx, ana, "missing")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestAddPostValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ana := e.register(t, "Ana", "ana@example.com")

	_, err := e.community.AddPost(ctx, ana, " hi ", nil)
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = e.community.AddPost(ctx, ana, strings.Repeat("a", MaxPostLength+1), nil)
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = e.community.AddPost(ctx, ana, "123456789", nil)
	assert.True(t, errors.Is(err, apperr.ErrValidation))
	_, err = e.community.AddPost(ctx, ana, "  1234567890  ", nil)
	assert.NoError(t, err)

	_, err = e.community.AddPost(ctx, ana, strings.Repeat("é", MaxPostLength), nil)
	assert.NoError(t, err)
}

func TestSpecialistPostsMayBeLonger(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	doc := e.register(t, "Dra. Lia", "lia@example.com")
	ana := e.register(t, "Ana", "ana@example.com")
	e.promote(t, doc, models.RoleSpecialist)

	long := strings.Repeat("a", MaxSpecialistPostLength)
	_, err := e.community.AddPost(ctx, doc, long, nil)
	assert.NoError(t, err)
	_, err = e.community.AddPost(ctx, doc, long+"a", nil)
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = e.community.AddPost(ctx, ana, long, nil)
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestBlockedUsersCannotPost(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	mod := e.register(t, "Mod", "mod@example.com")
	ana := e.register(t, "Ana", "ana@example.com")
	e.promote(t, mod, models.RoleSpecialist)

	post, err := e.community.AddPost(ctx, mod, "regras da comunidade", nil)
	require.NoError(t, err)

	_, err = e.admin.BlockUser(ctx, mod, ana, "")
	require.NoError(t, err)

	_, err = e.community.AddPost(ctx, ana, "spam spam spam", nil)
	assert.True(t, errors.Is(err, apperr.ErrForbidden))
	_, err = e.community.AddComment(ctx, ana, post.ID, "spam")
	assert.True(t, errors.Is(err, apperr.ErrForbidden))
	_, err = e.chat.SendMessage(ctx, ana, "spam", nil)
	assert.True(t, errors.Is(err, apperr.ErrForbidden))
}

func TestDeletePostPermissions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ana := e.register(t, "Ana", "ana@example.com")
	bob := e.register(t, "Bob", "bob@example.com")
	admin := e.register(t, "Admin", "admin@example.com")
	e.promote(t, admin, models.RoleAdmin)

	p1, err := e.community.AddPost(ctx, ana, "first post here", nil)
	require.NoError(t, err)
	p2, err := e.community.AddPost(ctx, ana, "second post here", nil)
	require.NoError(t, err)

	err = e.community.DeletePost(ctx, bob, p1.ID)
	assert.True(t, errors.Is(err, apperr.ErrForbidden))

	require.NoError(t, e.community.DeletePost(ctx, ana, p1.ID))
	require.NoError(t, e.community.DeletePost(ctx, admin, p2.ID))

	err = e.community.DeletePost(ctx, ana, p1.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	posts, err := e.community.ListPosts(ctx, ana)
	require.NoError(t, err)
	assert.Empty(t, posts)
}

func TestCommentsAreOldestFirst(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ana := e.register(t, "Ana", "ana@example.com")
	post, err := e.community.AddPost(ctx, ana, "what helps you sleep?", nil)
	require.NoError(t, err)

	_, err = e.community.AddComment(ctx, ana, post.ID, "first")
	require.NoError(t, err)
	_, err = e.community.AddComment(ctx, ana, post.ID, "second")
	require.NoError(t, err)

	comments, err := e.community.ListComments(ctx, post.ID)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "first", comments[0].Content)
	assert.Equal(t, "Ana", comments[0].AuthorName)

	_, err = e.community.AddComment(ctx, ana, "missing", "hello")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}
