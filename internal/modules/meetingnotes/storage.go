package meetingnotes

import (
	"context"
	"time"

	"github.com/dkeye/opentalk/internal/domain"
	"github.com/dkeye/opentalk/internal/storage"
)

const initTTL = time.Minute

func padKey(room domain.SignalingRoomID) string {
	return storage.RoomKey(room, Namespace, "pad")
}

func initKey(room domain.SignalingRoomID) string {
	return storage.RoomKey(room, Namespace, "init")
}

func writersKey(room domain.SignalingRoomID) string {
	return storage.RoomKey(room, Namespace, "writers")
}

func loadPad(ctx context.Context, b storage.Backend, room domain.SignalingRoomID) (Pad, bool, error) {
	return storage.GetJSON[Pad](ctx, b, padKey(room))
}

func storePad(ctx context.Context, b storage.Backend, room domain.SignalingRoomID, pad Pad) error {
	return storage.SetJSON(ctx, b, padKey(room), pad, 0)
}

// claimInit lets exactly one runner create the pad.
func claimInit(ctx context.Context, b storage.Backend, room domain.SignalingRoomID) (bool, error) {
	return b.SetNX(ctx, initKey(room), []byte("1"), initTTL)
}

func releaseInit(ctx context.Context, b storage.Backend, room domain.SignalingRoomID) error {
	return b.Del(ctx, initKey(room))
}

func isWriter(ctx context.Context, b storage.Backend, room domain.SignalingRoomID, id domain.ParticipantID) (bool, error) {
	return b.SIsMember(ctx, writersKey(room), string(id))
}

func setWriters(ctx context.Context, b storage.Backend, room domain.SignalingRoomID, add bool, ids []domain.ParticipantID) error {
	members := make([]string, len(ids))
	for i, id := range ids {
		members[i] = string(id)
	}
	if add {
		return b.SAdd(ctx, writersKey(room), members...)
	}
	return b.SRem(ctx, writersKey(room), members...)
}

func cleanup(ctx context.Context, b storage.Backend, room domain.SignalingRoomID) error {
	return b.Del(ctx, padKey(room), initKey(room), writersKey(room))
}
