package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dkeye/opentalk/internal/domain"
	"github.com/dkeye/opentalk/internal/storage"
)

func enabledKey(room domain.RoomID) string {
	return storage.GlobalRoomKey(room, Namespace, "enabled")
}

func roomHistoryKey(room domain.SignalingRoomID) string {
	return storage.RoomKey(room, Namespace, "room_history")
}

func groupHistoryKey(room domain.SignalingRoomID, group string) string {
	return storage.RoomKey(room, Namespace, "group="+group)
}

// privateHistoryKey is shared by both correspondents.
func privateHistoryKey(room domain.SignalingRoomID, a, b domain.ParticipantID) string {
	pair := []string{string(a), string(b)}
	sort.Strings(pair)
	return storage.RoomKey(room, Namespace, "private="+pair[0]+","+pair[1])
}

func correspondentsKey(room domain.SignalingRoomID, id domain.ParticipantID) string {
	return storage.RoomKey(room, Namespace, "correspondents", "participant="+string(id))
}

func lastSeenKey(room domain.SignalingRoomID, id domain.ParticipantID) string {
	return storage.RoomKey(room, Namespace, "last_seen", "participant="+string(id))
}

// keysKey indexes every chat key of a room for cleanup.
func keysKey(room domain.SignalingRoomID) string {
	return storage.RoomKey(room, Namespace, "keys")
}

func isEnabled(ctx context.Context, b storage.Backend, room domain.RoomID) (bool, error) {
	enabled, found, err := storage.GetJSON[bool](ctx, b, enabledKey(room))
	if err != nil || !found {
		return true, err
	}
	return enabled, nil
}

func setEnabled(ctx context.Context, b storage.Backend, room domain.RoomID, enabled bool) error {
	return storage.SetJSON(ctx, b, enabledKey(room), enabled, 0)
}

func isParticipant(ctx context.Context, b storage.Backend, room domain.SignalingRoomID, id domain.ParticipantID) (bool, error) {
	return storage.IsParticipant(ctx, b, room, id)
}

// appendHistory pushes msg and trims the list to the newest limit entries in
// one batch.
func appendHistory(ctx context.Context, b storage.Backend, room domain.SignalingRoomID, key string, msg StoredMessage, limit int64) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode chat message: %w", err)
	}
	_, err = b.Batch(ctx, []storage.Op{
		{Kind: storage.OpRPush, Key: key, Value: raw},
		{Kind: storage.OpLTrim, Key: key, Delta: -limit, Stop: -1},
		{Kind: storage.OpSAdd, Key: keysKey(room), Value: []byte(key)},
	})
	return err
}

// clearHistories drops the room history and every group history of room in
// one batch. Private conversations stay.
func clearHistories(ctx context.Context, b storage.Backend, room domain.SignalingRoomID) error {
	keys, err := b.SMembers(ctx, keysKey(room))
	if err != nil {
		return err
	}
	groups := groupHistoryKey(room, "")
	ops := []storage.Op{{Kind: storage.OpDel, Key: roomHistoryKey(room)}}
	for _, key := range keys {
		if !strings.HasPrefix(key, groups) {
			continue
		}
		ops = append(ops,
			storage.Op{Kind: storage.OpDel, Key: key},
			storage.Op{Kind: storage.OpSRem, Key: keysKey(room), Value: []byte(key)},
		)
	}
	_, err = b.Batch(ctx, ops)
	return err
}

func history(ctx context.Context, b storage.Backend, key string) ([]StoredMessage, error) {
	msgs, err := storage.LRangeJSON[StoredMessage](ctx, b, key)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []StoredMessage{}
	}
	return msgs, nil
}

func addCorrespondents(ctx context.Context, b storage.Backend, room domain.SignalingRoomID, a, other domain.ParticipantID) error {
	_, err := b.Batch(ctx, []storage.Op{
		{Kind: storage.OpSAdd, Key: correspondentsKey(room, a), Value: []byte(other)},
		{Kind: storage.OpSAdd, Key: correspondentsKey(room, other), Value: []byte(a)},
		{Kind: storage.OpSAdd, Key: keysKey(room), Value: []byte(correspondentsKey(room, a))},
		{Kind: storage.OpSAdd, Key: keysKey(room), Value: []byte(correspondentsKey(room, other))},
	})
	return err
}

func correspondents(ctx context.Context, b storage.Backend, room domain.SignalingRoomID, id domain.ParticipantID) ([]domain.ParticipantID, error) {
	members, err := b.SMembers(ctx, correspondentsKey(room, id))
	if err != nil {
		return nil, err
	}
	sort.Strings(members)
	out := make([]domain.ParticipantID, len(members))
	for i, m := range members {
		out[i] = domain.ParticipantID(m)
	}
	return out, nil
}

func seenField(scope Scope, target string) string {
	if scope == ScopeGlobal {
		return string(ScopeGlobal)
	}
	return string(scope) + "=" + target
}

func setLastSeen(ctx context.Context, b storage.Backend, room domain.SignalingRoomID, id domain.ParticipantID, scope Scope, target string, ts time.Time) error {
	if err := storage.HSetJSON(ctx, b, lastSeenKey(room, id), seenField(scope, target), ts); err != nil {
		return err
	}
	return b.SAdd(ctx, keysKey(room), lastSeenKey(room, id))
}

func lastSeen(ctx context.Context, b storage.Backend, room domain.SignalingRoomID, id domain.ParticipantID) (seenTimestamps, error) {
	all, err := storage.HGetAllJSON[time.Time](ctx, b, lastSeenKey(room, id))
	if err != nil {
		return seenTimestamps{}, err
	}
	seen := seenTimestamps{}
	for field, ts := range all {
		if field == string(ScopeGlobal) {
			ts := ts
			seen.global = &ts
			continue
		}
		if group, ok := strings.CutPrefix(field, string(ScopeGroup)+"="); ok {
			if seen.groups == nil {
				seen.groups = make(map[string]time.Time)
			}
			seen.groups[group] = ts
		} else if id, ok := strings.CutPrefix(field, string(ScopePrivate)+"="); ok {
			if seen.private == nil {
				seen.private = make(map[domain.ParticipantID]time.Time)
			}
			seen.private[domain.ParticipantID(id)] = ts
		}
	}
	return seen, nil
}

func purgeRoom(ctx context.Context, b storage.Backend, room domain.SignalingRoomID) error {
	keys, err := b.SMembers(ctx, keysKey(room))
	if err != nil {
		return err
	}
	keys = append(keys, keysKey(room), roomHistoryKey(room))
	return b.Del(ctx, keys...)
}
