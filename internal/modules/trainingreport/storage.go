package trainingreport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/opentalk/internal/domain"
	"github.com/dkeye/opentalk/internal/storage"
)

// State is the presence logging run of a room.
type State struct {
	Creator        domain.ParticipantID `json:"creator"`
	StartedAt      time.Time            `json:"started_at"`
	Interval       TimeRange            `json:"interval"`
	NextCheckpoint time.Time            `json:"next_checkpoint"`
	Checkpoints    []time.Time          `json:"checkpoints"`
}

type attendee struct {
	DisplayName string    `json:"display_name"`
	JoinedAt    time.Time `json:"joined_at"`
}

func stateKey(room domain.SignalingRoomID) string {
	return storage.RoomKey(room, Namespace, "state")
}

func attendeesKey(room domain.SignalingRoomID) string {
	return storage.RoomKey(room, Namespace, "attendees")
}

func confirmationsKey(room domain.SignalingRoomID) string {
	return storage.RoomKey(room, Namespace, "confirmations")
}

func confirmationField(checkpoint time.Time, id domain.ParticipantID) string {
	return fmt.Sprintf("%d:%s", checkpoint.Unix(), id)
}

func loadState(ctx context.Context, b storage.Backend, room domain.SignalingRoomID) (State, []byte, bool, error) {
	raw, err := b.Get(ctx, stateKey(room))
	if errors.Is(err, storage.ErrNotFound) {
		return State{}, nil, false, nil
	}
	if err != nil {
		return State{}, nil, false, err
	}
	var s State
	if err := json.Unmarshal(raw, &s); err != nil {
		return State{}, nil, false, err
	}
	return s, raw, true, nil
}

func createState(ctx context.Context, b storage.Backend, room domain.SignalingRoomID, s State) (bool, error) {
	return storage.SetNXJSON(ctx, b, stateKey(room), s, 0)
}

// advance replaces the state read as raw. It reports false when another
// runner got there first.
func advance(ctx context.Context, b storage.Backend, room domain.SignalingRoomID, raw []byte, next State) (bool, error) {
	ok, err := b.CompareAndDelete(ctx, stateKey(room), raw)
	if err != nil || !ok {
		return false, err
	}
	return true, storage.SetJSON(ctx, b, stateKey(room), next, 0)
}

func registerAttendee(ctx context.Context, b storage.Backend, room domain.SignalingRoomID, id domain.ParticipantID, a attendee) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return err
	}
	_, err = b.HSetNX(ctx, attendeesKey(room), string(id), raw)
	return err
}

func confirm(ctx context.Context, b storage.Backend, room domain.SignalingRoomID, checkpoint time.Time, id domain.ParticipantID, at time.Time) error {
	raw, err := json.Marshal(at)
	if err != nil {
		return err
	}
	_, err = b.HSetNX(ctx, confirmationsKey(room), confirmationField(checkpoint, id), raw)
	return err
}

// snapshot is everything the report needs, read before the keys are
// dropped.
type snapshot struct {
	state         State
	attendees     map[string]attendee
	confirmations map[string]time.Time
}

func takeSnapshot(ctx context.Context, b storage.Backend, room domain.SignalingRoomID, s State) (snapshot, error) {
	attendees, err := storage.HGetAllJSON[attendee](ctx, b, attendeesKey(room))
	if err != nil {
		return snapshot{}, err
	}
	confirmations, err := storage.HGetAllJSON[time.Time](ctx, b, confirmationsKey(room))
	if err != nil {
		return snapshot{}, err
	}
	return snapshot{state: s, attendees: attendees, confirmations: confirmations}, nil
}

func cleanup(ctx context.Context, b storage.Backend, room domain.SignalingRoomID) error {
	return b.Del(ctx, stateKey(room), attendeesKey(room), confirmationsKey(room))
}
