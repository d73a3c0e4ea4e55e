package storage

import (
	"context"

	"github.com/dkeye/opentalk/internal/domain"
)

// The room participant set is mutated only while holding the room lock.

func AddParticipant(ctx context.Context, b Backend, room domain.SignalingRoomID, id domain.ParticipantID) error {
	return b.SAdd(ctx, ParticipantsKey(room), string(id))
}

// RemoveParticipant removes id and returns how many participants remain.
func RemoveParticipant(ctx context.Context, b Backend, room domain.SignalingRoomID, id domain.ParticipantID) (int64, error) {
	if err := b.SRem(ctx, ParticipantsKey(room), string(id)); err != nil {
		return 0, err
	}
	return b.SCard(ctx, ParticipantsKey(room))
}

func Participants(ctx context.Context, b Backend, room domain.SignalingRoomID) ([]domain.ParticipantID, error) {
	members, err := b.SMembers(ctx, ParticipantsKey(room))
	if err != nil {
		return nil, err
	}
	out := make([]domain.ParticipantID, len(members))
	for i, m := range members {
		out[i] = domain.ParticipantID(m)
	}
	return out, nil
}

func ParticipantCount(ctx context.Context, b Backend, room domain.SignalingRoomID) (int64, error) {
	return b.SCard(ctx, ParticipantsKey(room))
}

func IsParticipant(ctx context.Context, b Backend, room domain.SignalingRoomID, id domain.ParticipantID) (bool, error) {
	return b.SIsMember(ctx, ParticipantsKey(room), string(id))
}
