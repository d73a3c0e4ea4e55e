package livekit

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	lk "github.com/livekit/protocol/livekit"
	"github.com/twitchtv/twirp"

	"github.com/dkeye/opentalk/internal/auth"
)

// RoomService is the part of the media server's room API the module uses.
type RoomService interface {
	GetParticipant(ctx context.Context, req *lk.RoomParticipantIdentity) (*lk.ParticipantInfo, error)
	MutePublishedTrack(ctx context.Context, req *lk.MuteRoomTrackRequest) (*lk.MuteRoomTrackResponse, error)
	UpdateParticipant(ctx context.Context, req *lk.UpdateParticipantRequest) (*lk.ParticipantInfo, error)
	RemoveParticipant(ctx context.Context, req *lk.RoomParticipantIdentity) (*lk.RemoveParticipantResponse, error)
}

// Client calls the media server's twirp room service, signing every request
// with an admin token for the addressed room.
type Client struct {
	svc  lk.RoomService
	keys auth.LiveKitKeys
}

func NewClient(serviceURL string, keys auth.LiveKitKeys) *Client {
	url := serviceURL
	switch {
	case strings.HasPrefix(url, "wss://"):
		url = "https://" + strings.TrimPrefix(url, "wss://")
	case strings.HasPrefix(url, "ws://"):
		url = "http://" + strings.TrimPrefix(url, "ws://")
	}
	return &Client{
		svc:  lk.NewRoomServiceProtobufClient(url, &http.Client{Timeout: 10 * time.Second}),
		keys: keys,
	}
}

func (c *Client) authorize(ctx context.Context, room string) (context.Context, error) {
	token, err := c.keys.ServiceToken(room, time.Minute)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	return twirp.WithHTTPRequestHeaders(ctx, header)
}

func (c *Client) GetParticipant(ctx context.Context, req *lk.RoomParticipantIdentity) (*lk.ParticipantInfo, error) {
	ctx, err := c.authorize(ctx, req.Room)
	if err != nil {
		return nil, err
	}
	return c.svc.GetParticipant(ctx, req)
}

func (c *Client) MutePublishedTrack(ctx context.Context, req *lk.MuteRoomTrackRequest) (*lk.MuteRoomTrackResponse, error) {
	ctx, err := c.authorize(ctx, req.Room)
	if err != nil {
		return nil, err
	}
	return c.svc.MutePublishedTrack(ctx, req)
}

func (c *Client) UpdateParticipant(ctx context.Context, req *lk.UpdateParticipantRequest) (*lk.ParticipantInfo, error) {
	ctx, err := c.authorize(ctx, req.Room)
	if err != nil {
		return nil, err
	}
	return c.svc.UpdateParticipant(ctx, req)
}

func (c *Client) RemoveParticipant(ctx context.Context, req *lk.RoomParticipantIdentity) (*lk.RemoveParticipantResponse, error) {
	ctx, err := c.authorize(ctx, req.Room)
	if err != nil {
		return nil, err
	}
	return c.svc.RemoveParticipant(ctx, req)
}

// isNotFound reports whether the media server does not know the participant,
// which is the normal state before the client connected its media session.
func isNotFound(err error) bool {
	var terr twirp.Error
	if errors.As(err, &terr) {
		return terr.Code() == twirp.NotFound
	}
	return false
}
