package recording

import (
	"context"
	"encoding/json"

	"github.com/dkeye/opentalk/internal/domain"
	"github.com/dkeye/opentalk/internal/storage"
)

const attrConsent = "recording_consent"

func targetsKey(room domain.SignalingRoomID) string {
	return storage.RoomKey(room, Namespace, "streams")
}

// seedTargets writes the configured targets unless another runner already
// did.
func seedTargets(ctx context.Context, b storage.Backend, room domain.SignalingRoomID, targets []Target) error {
	for _, t := range targets {
		raw, err := json.Marshal(t)
		if err != nil {
			return err
		}
		if _, err := b.HSetNX(ctx, targetsKey(room), string(t.ID), raw); err != nil {
			return err
		}
	}
	return nil
}

func loadTargets(ctx context.Context, b storage.Backend, room domain.SignalingRoomID) (map[TargetID]Target, error) {
	all, err := storage.HGetAllJSON[Target](ctx, b, targetsKey(room))
	if err != nil {
		return nil, err
	}
	out := make(map[TargetID]Target, len(all))
	for id, t := range all {
		out[TargetID(id)] = t
	}
	return out, nil
}

func storeTarget(ctx context.Context, b storage.Backend, room domain.SignalingRoomID, t Target) error {
	return storage.HSetJSON(ctx, b, targetsKey(room), string(t.ID), t)
}

func consent(ctx context.Context, b storage.Backend, room domain.SignalingRoomID, id domain.ParticipantID) (bool, error) {
	v, _, err := storage.GetAttribute[bool](ctx, b, room, storage.ScopeLocal, id, attrConsent)
	return v, err
}

func setConsent(ctx context.Context, b storage.Backend, room domain.SignalingRoomID, id domain.ParticipantID, v bool) error {
	return storage.SetAttribute(ctx, b, room, storage.ScopeLocal, id, attrConsent, v)
}
