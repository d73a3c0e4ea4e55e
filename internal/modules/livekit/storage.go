package livekit

import (
	"context"

	"github.com/dkeye/opentalk/internal/domain"
	"github.com/dkeye/opentalk/internal/storage"
)

func screenShareKey(room domain.SignalingRoomID) string {
	return storage.RoomKey(room, Namespace, "screen_share")
}

func restrictionsKey(room domain.SignalingRoomID) string {
	return storage.RoomKey(room, Namespace, "microphone_restrictions")
}

type restrictions struct {
	Unrestricted []domain.ParticipantID `json:"unrestricted_participants"`
}

func loadRestrictions(ctx context.Context, b storage.Backend, room domain.SignalingRoomID) (restrictions, bool, error) {
	return storage.GetJSON[restrictions](ctx, b, restrictionsKey(room))
}

func storeRestrictions(ctx context.Context, b storage.Backend, room domain.SignalingRoomID, r restrictions) error {
	return storage.SetJSON(ctx, b, restrictionsKey(room), r, 0)
}

func canShareScreen(ctx context.Context, b storage.Backend, room domain.SignalingRoomID, id domain.ParticipantID) (bool, error) {
	return b.SIsMember(ctx, screenShareKey(room), string(id))
}

func setScreenShare(ctx context.Context, b storage.Backend, room domain.SignalingRoomID, grant bool, ids []domain.ParticipantID) error {
	members := make([]string, len(ids))
	for i, id := range ids {
		members[i] = string(id)
	}
	if grant {
		return b.SAdd(ctx, screenShareKey(room), members...)
	}
	return b.SRem(ctx, screenShareKey(room), members...)
}

func cleanup(ctx context.Context, b storage.Backend, room domain.SignalingRoomID) error {
	return b.Del(ctx, screenShareKey(room), restrictionsKey(room))
}
