package control

import (
	"context"
	"errors"
	"strconv"

	"github.com/dkeye/opentalk/internal/domain"
	"github.com/dkeye/opentalk/internal/storage"
)

// Waiting-room and hand-raise switches are room-wide and owned by the
// moderation namespace; the runner consults them during the join handshake.
const ModerationNamespace = "moderation"

func waitingRoomEnabledKey(room domain.RoomID) string {
	return storage.GlobalRoomKey(room, ModerationNamespace, "waiting_room_enabled")
}

func waitingListKey(room domain.RoomID) string {
	return storage.GlobalRoomKey(room, ModerationNamespace, "waiting_room_list")
}

func acceptedKey(room domain.RoomID) string {
	return storage.GlobalRoomKey(room, ModerationNamespace, "waiting_room_accepted")
}

func raiseHandsEnabledKey(room domain.RoomID) string {
	return storage.GlobalRoomKey(room, ModerationNamespace, "raise_hands_enabled")
}

func getFlag(ctx context.Context, b storage.Backend, key string, fallback bool) (bool, error) {
	raw, err := b.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return fallback, nil
	}
	if err != nil {
		return false, err
	}
	v, err := strconv.ParseBool(string(raw))
	if err != nil {
		return fallback, nil
	}
	return v, nil
}

func setFlag(ctx context.Context, b storage.Backend, key string, v bool) error {
	return b.Set(ctx, key, []byte(strconv.FormatBool(v)), 0)
}

// WaitingRoomEnabled falls back to the room's configured default.
func WaitingRoomEnabled(ctx context.Context, b storage.Backend, room domain.RoomInfo) (bool, error) {
	return getFlag(ctx, b, waitingRoomEnabledKey(room.ID), room.WaitingRoom)
}

// SetWaitingRoomEnabled stores the flag only if it changes and reports
// whether it did.
func SetWaitingRoomEnabled(ctx context.Context, b storage.Backend, room domain.RoomInfo, enabled bool) (bool, error) {
	current, err := WaitingRoomEnabled(ctx, b, room)
	if err != nil {
		return false, err
	}
	if current == enabled {
		return false, nil
	}
	return true, setFlag(ctx, b, waitingRoomEnabledKey(room.ID), enabled)
}

func RaiseHandsEnabled(ctx context.Context, b storage.Backend, room domain.RoomID) (bool, error) {
	return getFlag(ctx, b, raiseHandsEnabledKey(room), true)
}

func SetRaiseHandsEnabled(ctx context.Context, b storage.Backend, room domain.RoomID, enabled bool) error {
	return setFlag(ctx, b, raiseHandsEnabledKey(room), enabled)
}

func AddToWaitingList(ctx context.Context, b storage.Backend, room domain.RoomID, id domain.ParticipantID) error {
	return b.SAdd(ctx, waitingListKey(room), string(id))
}

func RemoveFromWaitingList(ctx context.Context, b storage.Backend, room domain.RoomID, id domain.ParticipantID) error {
	return b.SRem(ctx, waitingListKey(room), string(id))
}

func IsWaiting(ctx context.Context, b storage.Backend, room domain.RoomID, id domain.ParticipantID) (bool, error) {
	return b.SIsMember(ctx, waitingListKey(room), string(id))
}

func WaitingList(ctx context.Context, b storage.Backend, room domain.RoomID) ([]domain.ParticipantID, error) {
	members, err := b.SMembers(ctx, waitingListKey(room))
	if err != nil {
		return nil, err
	}
	out := make([]domain.ParticipantID, len(members))
	for i, m := range members {
		out[i] = domain.ParticipantID(m)
	}
	return out, nil
}

// Accept moves id from the waiting list to the accepted set.
func Accept(ctx context.Context, b storage.Backend, room domain.RoomID, id domain.ParticipantID) error {
	if err := b.SRem(ctx, waitingListKey(room), string(id)); err != nil {
		return err
	}
	return b.SAdd(ctx, acceptedKey(room), string(id))
}

func IsAccepted(ctx context.Context, b storage.Backend, room domain.RoomID, id domain.ParticipantID) (bool, error) {
	return b.SIsMember(ctx, acceptedKey(room), string(id))
}

func RevokeAccepted(ctx context.Context, b storage.Backend, room domain.RoomID, id domain.ParticipantID) error {
	return b.SRem(ctx, acceptedKey(room), string(id))
}

// PurgeWaitingRoom drops all room-wide moderation switches and lists.
func PurgeWaitingRoom(ctx context.Context, b storage.Backend, room domain.RoomID) error {
	return b.Del(ctx,
		waitingRoomEnabledKey(room),
		waitingListKey(room),
		acceptedKey(room),
		raiseHandsEnabledKey(room),
	)
}

// Moderation exchange messages the runner emits on behalf of a waiting
// participant.
const (
	ExJoinedWaitingRoom = "joined_waiting_room"
	ExLeftWaitingRoom   = "left_waiting_room"
)

type WaitingRoomEvent struct {
	Message string               `json:"message"`
	ID      domain.ParticipantID `json:"id"`
	Control *State               `json:"control,omitempty"`
}
