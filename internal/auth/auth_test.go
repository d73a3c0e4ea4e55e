package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/livekit/protocol/livekit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/opentalk/internal/domain"
)

func TestStatic(t *testing.T) {
	ctx := context.Background()
	s := NewStatic(
		map[string]domain.UserID{"tok-alice": "alice"},
		map[Service]string{ServiceRecording: "rec-secret"},
	)

	id, err := s.User(ctx, "tok-alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", string(id))

	_, err = s.User(ctx, "tok-bob")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = s.User(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	assert.NoError(t, s.Service(ctx, ServiceRecording, "rec-secret"))
	assert.ErrorIs(t, s.Service(ctx, ServiceRecording, "guess"), ErrInvalidCredentials)
	assert.ErrorIs(t, s.Service(ctx, ServiceCallIn, ""), ErrInvalidCredentials)
}

func TestBearerToken(t *testing.T) {
	for header, want := range map[string]string{
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"Basic abc":    "",
		"Bearer":       "",
		"":             "",
	} {
		got, ok := BearerToken(header)
		assert.Equal(t, want, got, header)
		assert.Equal(t, want != "", ok, header)
	}
}

func claims(t *testing.T, jwt string) map[string]any {
	t.Helper()
	parts := strings.Split(jwt, ".")
	require.Len(t, parts, 3)
	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestLiveKitToken(t *testing.T) {
	keys := LiveKitKeys{APIKey: "key", APISecret: "a-secret-of-at-least-thirty-two-bytes"}
	jwt, err := keys.Token(MediaGrant{
		Room:     "room",
		Identity: "p1",
		Name:     "Gina",
		Publish:  []livekit.TrackSource{livekit.TrackSource_MICROPHONE, livekit.TrackSource_SCREEN_SHARE},
		TTL:      time.Minute,
	})
	require.NoError(t, err)
	c := claims(t, jwt)
	assert.Equal(t, "p1", c["sub"])
	assert.Equal(t, "Gina", c["name"])
	video := c["video"].(map[string]any)
	assert.Equal(t, "room", video["room"])
	assert.Equal(t, true, video["roomJoin"])
	assert.Equal(t, true, video["canPublish"])
	assert.ElementsMatch(t, []any{"microphone", "screen_share"}, video["canPublishSources"])

	jwt, err = keys.Token(MediaGrant{Room: "room", Identity: "p1-popout", TTL: time.Minute})
	require.NoError(t, err)
	video = claims(t, jwt)["video"].(map[string]any)
	assert.Equal(t, false, video["canPublish"])
	assert.Equal(t, true, video["canSubscribe"])
}
