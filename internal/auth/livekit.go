package auth

import (
	"fmt"
	"time"

	lkauth "github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
)

// LiveKitKeys signs access tokens for the media server.
type LiveKitKeys struct {
	APIKey    string
	APISecret string
}

// MediaGrant describes what a token holder may do in a media room.
type MediaGrant struct {
	Room     string
	Identity string
	Name     string
	// Publish lists the track sources the holder may publish. Empty means
	// subscribe only.
	Publish []livekit.TrackSource
	Hidden  bool
	Admin   bool
	TTL     time.Duration
}

func (k LiveKitKeys) Token(g MediaGrant) (string, error) {
	grant := &lkauth.VideoGrant{
		RoomJoin:  true,
		Room:      g.Room,
		RoomAdmin: g.Admin,
		Hidden:    g.Hidden,
	}
	grant.SetCanSubscribe(true)
	grant.SetCanPublish(len(g.Publish) > 0)
	grant.SetCanPublishData(len(g.Publish) > 0)
	for _, src := range g.Publish {
		grant.CanPublishSources = append(grant.CanPublishSources, sourceName(src))
	}
	at := lkauth.NewAccessToken(k.APIKey, k.APISecret).
		SetIdentity(g.Identity).
		SetName(g.Name).
		SetValidFor(g.TTL).
		SetVideoGrant(grant)
	jwt, err := at.ToJWT()
	if err != nil {
		return "", fmt.Errorf("sign livekit token: %w", err)
	}
	return jwt, nil
}

// ServiceToken authorizes room service calls for room.
func (k LiveKitKeys) ServiceToken(room string, ttl time.Duration) (string, error) {
	at := lkauth.NewAccessToken(k.APIKey, k.APISecret).
		SetValidFor(ttl).
		SetVideoGrant(&lkauth.VideoGrant{RoomAdmin: true, Room: room})
	return at.ToJWT()
}

func sourceName(src livekit.TrackSource) string {
	switch src {
	case livekit.TrackSource_CAMERA:
		return "camera"
	case livekit.TrackSource_MICROPHONE:
		return "microphone"
	case livekit.TrackSource_SCREEN_SHARE:
		return "screen_share"
	case livekit.TrackSource_SCREEN_SHARE_AUDIO:
		return "screen_share_audio"
	default:
		return "unknown"
	}
}
