package services

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tahcohcat/reconectar/internal/apperr"
	"github.com/tahcohcat/reconectar/internal/models"
	"github.com/tahcohcat/reconectar/internal/profile"
	"github.com/tahcohcat/reconectar/internal/realtime"
)

func intp(v int) *int       { return &v }
func strp(v string) *string { return &v }

func TestUpdateProfile(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.register(t, "Ana", "ana@example.com")

	p, err := e.profiles.Update(ctx, id, models.ProfilePatch{Name: strp("Ana Lúcia"), Bio: strp("offline")})
	require.NoError(t, err)
	assert.Equal(t, "ana_lucia", p.Username)
	require.NotNil(t, p.Bio)
	assert.Equal(t, "offline", *p.Bio)

	stored, err := e.profiles.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Ana Lúcia", stored.Name)
	assert.True(t, e.events.has(realtime.TableProfiles, realtime.EventUpdate, id))

	same, err := e.profiles.Update(ctx, id, models.ProfilePatch{})
	require.NoError(t, err)
	assert.Equal(t, stored.Name, same.Name)
	assert.Equal(t, stored.XP, same.XP)
}

func TestUpdateProfileRejectsInvalidValues(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.register(t, "Ana", "ana@example.com")

	_, err := e.profiles.Update(ctx, id, models.ProfilePatch{XP: intp(-5)})
	assert.True(t, errors.Is(err, profile.ErrNegativeXP))

	_, err = e.profiles.Update(ctx, id, models.ProfilePatch{Level: intp(0)})
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	stored, err := e.profiles.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Level)
	assert.Equal(t, 0, stored.XP)
}

func TestCorrectProfileRequiresAdmin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	admin := e.register(t, "Admin", "admin@example.com")
	user := e.register(t, "Ana", "ana@example.com")
	e.promote(t, admin, models.RoleAdmin)

	_, err := e.profiles.AwardXP(ctx, user, 2500)
	require.NoError(t, err)

	_, err = e.profiles.Update(ctx, user, models.ProfilePatch{XP: intp(100)})
	assert.True(t, errors.Is(err, profile.ErrLevelDecrease))

	_, err = e.admin.CorrectProfile(ctx, user, user, models.ProfilePatch{XP: intp(100)})
	assert.True(t, errors.Is(err, apperr.ErrForbidden))

	p, err := e.admin.CorrectProfile(ctx, admin, user, models.ProfilePatch{XP: intp(100), Level: intp(1)})
	require.NoError(t, err)
	assert.Equal(t, 100, p.XP)
	assert.Equal(t, 1, p.Level)
}

func TestAwardXPRaisesLevel(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.register(t, "Ana", "ana@example.com")

	p, err := e.profiles.AwardXP(ctx, id, 3000)
	require.NoError(t, err)
	assert.Equal(t, 3000, p.XP)
	assert.Equal(t, 4, p.Level)

	p, err = e.profiles.AwardXP(ctx, id, 999)
	require.NoError(t, err)
	assert.Equal(t, 3999, p.XP)
	assert.Equal(t, 4, p.Level)

	_, err = e.profiles.AwardXP(ctx, id, -1)
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestIncrementDetoxDays(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.register(t, "Ana", "ana@example.com")

	_, err := e.profiles.IncrementDetoxDays(ctx, id)
	require.NoError(t, err)
	p, err := e.profiles.IncrementDetoxDays(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, p.DaysWithoutAI)
}

func TestSetAvatar(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.register(t, "Ana", "ana@example.com")

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	p, err := e.profiles.SetAvatar(ctx, id, png)
	require.NoError(t, err)
	require.NotNil(t, p.Avatar)
	assert.True(t, strings.HasPrefix(*p.Avatar, "https://cdn.test/avatars/"+id+"/"))
	assert.Len(t, e.objects.objects, 1)

	_, err = e.profiles.SetAvatar(ctx, id, []byte("plain text is not an image"))
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	big := append(append([]byte{}, png...), bytes.Repeat([]byte{0}, 2048)...)
	_, err = e.profiles.SetAvatar(ctx, id, big)
	assert.True(t, errors.Is(err, apperr.ErrValidation))
	assert.Len(t, e.objects.objects, 1)
}

func TestSetAvatarRemovesPreviousUpload(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.register(t, "Ana", "ana@example.com")
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

	first, err := e.profiles.SetAvatar(ctx, id, png)
	require.NoError(t, err)
	second, err := e.profiles.SetAvatar(ctx, id, png)
	require.NoError(t, err)
	require.NotEqual(t, *first.Avatar, *second.Avatar)

	require.Len(t, e.objects.objects, 1)
	key, _ := e.objects.KeyOf(*second.Avatar)
	assert.Contains(t, e.objects.objects, key)

	// an avatar URL that was not uploaded here is left alone
	external := "https://cdn.test/avatars/someone-else/x.png"
	e.objects.objects["avatars/someone-else/x.png"] = png
	_, err = e.profiles.Update(ctx, id, models.ProfilePatch{Avatar: &external})
	require.NoError(t, err)
	_, err = e.profiles.SetAvatar(ctx, id, png)
	require.NoError(t, err)
	assert.Contains(t, e.objects.objects, "avatars/someone-else/x.png")
}

func TestSetAvatarWithoutStorage(t *testing.T) {
	e := newEnv(t)
	id := e.register(t, "Ana", "ana@example.com")

	svc := NewProfileService(e.db, e.roles, nil, nil, 0)
	_, err := svc.SetAvatar(context.Background(), id, []byte("\x89PNG\r\n\x1a\n"))
	assert.True(t, errors.Is(err, apperr.ErrBackend))
}
