package playback

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "edge-shared-secret"

func TestSignPathIsDeterministic(t *testing.T) {
	path := "/streams/42/7/1080p/index.m3u8"
	expiry := int64(1767225600)

	first := SignPath(path, expiry, testSecret)
	second := SignPath(path, expiry, testSecret)

	assert.Equal(t, first, second)
	assert.True(t, strings.HasPrefix(first, path+"?e=1767225600&st="))
}

func TestVerifySignedURLRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	signed := SignPath("/streams/1/4/720p/index.m3u8", now.Add(10*time.Minute).Unix(), testSecret)

	require.NoError(t, VerifySignedURL(signed, testSecret, now))
}

func TestVerifySignedURLExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	signed := SignPath("/streams/1/4/720p/index.m3u8", now.Add(-time.Second).Unix(), testSecret)

	assert.ErrorIs(t, VerifySignedURL(signed, testSecret, now), ErrLinkExpired)
}

func TestVerifySignedURLTamperedPath(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	signed := SignPath("/streams/1/4/480p/index.m3u8", now.Add(10*time.Minute).Unix(), testSecret)
	tampered := strings.Replace(signed, "480p", "2160p", 1)

	assert.ErrorIs(t, VerifySignedURL(tampered, testSecret, now), ErrBadSignature)
}

func TestVerifySignedURLWrongSecret(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	signed := SignPath("/streams/1/4/720p/index.m3u8", now.Add(10*time.Minute).Unix(), testSecret)

	assert.ErrorIs(t, VerifySignedURL(signed, "other-secret", now), ErrBadSignature)
}

func TestVerifySignedURLMalformed(t *testing.T) {
	now := time.Now()

	assert.ErrorIs(t, VerifySignedURL("/streams/1/4/720p/index.m3u8", testSecret, now), ErrMalformedLink)
	assert.ErrorIs(t, VerifySignedURL("/streams/1/4/720p/index.m3u8?e=abc&st=x", testSecret, now), ErrMalformedLink)
}
