package moderation

import (
	"context"

	"github.com/dkeye/opentalk/internal/domain"
	"github.com/dkeye/opentalk/internal/storage"
)

// attrUserID lets a moderator resolve the account behind a participant.
const attrUserID = "user_id"

func bansKey(room domain.RoomID) string {
	return storage.GlobalRoomKey(room, Namespace, "bans")
}

func ban(ctx context.Context, b storage.Backend, room domain.RoomID, user domain.UserID) error {
	return b.SAdd(ctx, bansKey(room), string(user))
}

// IsBanned reports whether user may no longer start sessions in room.
func IsBanned(ctx context.Context, b storage.Backend, room domain.RoomID, user domain.UserID) (bool, error) {
	return b.SIsMember(ctx, bansKey(room), string(user))
}

// DeleteBans drops the ban list together with the room.
func DeleteBans(ctx context.Context, b storage.Backend, room domain.RoomID) error {
	return b.Del(ctx, bansKey(room))
}
