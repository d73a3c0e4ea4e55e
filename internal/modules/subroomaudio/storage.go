package subroomaudio

import (
	"context"
	"sort"

	"github.com/dkeye/opentalk/internal/domain"
	"github.com/dkeye/opentalk/internal/storage"
)

func groupKey(room domain.SignalingRoomID, id string) string {
	return storage.RoomKey(room, Namespace, "whisper="+id)
}

func groupsKey(room domain.SignalingRoomID) string {
	return storage.RoomKey(room, Namespace, "groups")
}

func loadGroup(ctx context.Context, b storage.Backend, room domain.SignalingRoomID, id string) ([]Member, error) {
	all, err := storage.HGetAllJSON[MemberState](ctx, b, groupKey(room, id))
	if err != nil {
		return nil, err
	}
	members := make([]Member, 0, len(all))
	for pid, state := range all {
		members = append(members, Member{ParticipantID: domain.ParticipantID(pid), State: state})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ParticipantID < members[j].ParticipantID })
	return members, nil
}

func memberState(ctx context.Context, b storage.Backend, room domain.SignalingRoomID, id string, pid domain.ParticipantID) (MemberState, bool, error) {
	return storage.HGetJSON[MemberState](ctx, b, groupKey(room, id), string(pid))
}

func setMember(ctx context.Context, b storage.Backend, room domain.SignalingRoomID, id string, pid domain.ParticipantID, state MemberState) error {
	return storage.HSetJSON(ctx, b, groupKey(room, id), string(pid), state)
}

func createGroup(ctx context.Context, b storage.Backend, room domain.SignalingRoomID, id string, members []Member) error {
	for _, m := range members {
		if err := setMember(ctx, b, room, id, m.ParticipantID, m.State); err != nil {
			return err
		}
	}
	return b.SAdd(ctx, groupsKey(room), id)
}

func removeMembers(ctx context.Context, b storage.Backend, room domain.SignalingRoomID, id string, pids ...domain.ParticipantID) (int64, error) {
	fields := make([]string, len(pids))
	for i, pid := range pids {
		fields[i] = string(pid)
	}
	return b.HDel(ctx, groupKey(room, id), fields...)
}

func deleteGroup(ctx context.Context, b storage.Backend, room domain.SignalingRoomID, id string) error {
	if err := b.Del(ctx, groupKey(room, id)); err != nil {
		return err
	}
	return b.SRem(ctx, groupsKey(room), id)
}

func groupIDs(ctx context.Context, b storage.Backend, room domain.SignalingRoomID) ([]string, error) {
	return b.SMembers(ctx, groupsKey(room))
}

func cleanup(ctx context.Context, b storage.Backend, room domain.SignalingRoomID) error {
	ids, err := groupIDs(ctx, b, room)
	if err != nil {
		return err
	}
	keys := []string{groupsKey(room)}
	for _, id := range ids {
		keys = append(keys, groupKey(room, id))
	}
	return b.Del(ctx, keys...)
}
