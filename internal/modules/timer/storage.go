package timer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dkeye/opentalk/internal/domain"
	"github.com/dkeye/opentalk/internal/storage"
)

const attrReadyStatus = "timer_ready_status"

// State is the stored room timer.
type State struct {
	ID                string               `json:"id"`
	CreatedBy         domain.ParticipantID `json:"created_by"`
	StartedAt         time.Time            `json:"started_at"`
	Kind              Kind                 `json:"kind"`
	EndsAt            *time.Time           `json:"ends_at,omitempty"`
	Style             string               `json:"style,omitempty"`
	Title             string               `json:"title,omitempty"`
	ReadyCheckEnabled bool                 `json:"ready_check_enabled"`
}

func (s State) started() Started {
	return Started{
		Message:           MsgStarted,
		TimerID:           s.ID,
		StartedAt:         s.StartedAt,
		Kind:              s.Kind,
		EndsAt:            s.EndsAt,
		Style:             s.Style,
		Title:             s.Title,
		ReadyCheckEnabled: s.ReadyCheckEnabled,
		CreatedBy:         s.CreatedBy,
	}
}

type readyEntry struct {
	TimerID string `json:"timer_id"`
	Status  bool   `json:"status"`
}

func timerKey(room domain.SignalingRoomID) string {
	return storage.RoomKey(room, Namespace)
}

func createTimer(ctx context.Context, b storage.Backend, room domain.SignalingRoomID, s State) (bool, error) {
	return storage.SetNXJSON(ctx, b, timerKey(room), s, 0)
}

// loadTimer also returns the stored bytes for a later CompareAndDelete.
func loadTimer(ctx context.Context, b storage.Backend, room domain.SignalingRoomID) (State, []byte, bool, error) {
	raw, err := b.Get(ctx, timerKey(room))
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

func deleteTimer(ctx context.Context, b storage.Backend, room domain.SignalingRoomID) error {
	return b.Del(ctx, timerKey(room))
}

func readyStatus(ctx context.Context, b storage.Backend, room domain.SignalingRoomID, id domain.ParticipantID, timerID string) (bool, error) {
	entry, found, err := storage.GetAttribute[readyEntry](ctx, b, room, storage.ScopeLocal, id, attrReadyStatus)
	if err != nil || !found {
		return false, err
	}
	return entry.TimerID == timerID && entry.Status, nil
}

func setReadyStatus(ctx context.Context, b storage.Backend, room domain.SignalingRoomID, id domain.ParticipantID, timerID string, status bool) error {
	return storage.SetAttribute(ctx, b, room, storage.ScopeLocal, id, attrReadyStatus, readyEntry{TimerID: timerID, Status: status})
}
