package storage

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tahcohcat/reconectar/internal/apperr"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestValidateImage(t *testing.T) {
	ct, ext, err := ValidateImage(pngHeader, 0)
	require.NoError(t, err)
	assert.Equal(t, "image/png", ct)
	assert.Equal(t, "png", ext)

	ct, ext, err = ValidateImage([]byte("\xff\xd8\xff\xe0\x00\x10JFIF"), 0)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", ct)
	assert.Equal(t, "jpg", ext)
}

func TestValidateImageRejects(t *testing.T) {
	cases := map[string][]byte{
		"empty": nil,
		"text":  []byte("<html><body>not an image</body></html>"),
		"large": append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{0}, 64)...),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := ValidateImage(data, 32)
			assert.True(t, errors.Is(err, apperr.ErrValidation))
		})
	}
}

func TestAvatarKey(t *testing.T) {
	a := AvatarKey("u1", "png")
	b := AvatarKey("u1", "png")
	assert.True(t, strings.HasPrefix(a, "avatars/u1/"))
	assert.True(t, strings.HasSuffix(a, ".png"))
	assert.NotEqual(t, a, b)
}

func TestS3StoreURL(t *testing.T) {
	s, err := NewS3Store(context.Background(), S3Config{
		Endpoint:  "http://localhost:9000/",
		Region:    "us-east-1",
		Bucket:    "avatars",
		AccessKey: "key",
		SecretKey: "secret",
	})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/avatars/avatars/u1/x.png", s.URL("avatars/u1/x.png"))

	s, err = NewS3Store(context.Background(), S3Config{
		Region:    "sa-east-1",
		Bucket:    "b",
		AccessKey: "key",
		SecretKey: "secret",
		PublicURL: "https://cdn.example.com/",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/k.png", s.URL("/k.png"))

	key, ok := s.KeyOf(s.URL("avatars/u1/x.png"))
	assert.True(t, ok)
	assert.Equal(t, "avatars/u1/x.png", key)

	for _, url := range []string{"https://elsewhere.example.com/avatars/u1/x.png", "https://cdn.example.com/", ""} {
		_, ok = s.KeyOf(url)
		assert.False(t, ok, url)
	}
}

func TestOwnsAvatarKey(t *testing.T) {
	assert.True(t, OwnsAvatarKey("u1", AvatarKey("u1", "png")))
	assert.False(t, OwnsAvatarKey("u1", AvatarKey("u10", "png")))
	assert.False(t, OwnsAvatarKey("", "avatars//x.png"))
	assert.False(t, OwnsAvatarKey("u1", "banners/u1/x.png"))
}
