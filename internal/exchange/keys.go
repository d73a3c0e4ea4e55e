package exchange

import "github.com/dkeye/opentalk/internal/domain"

// Routing keys are shared with other controller processes through the relay
// and must stay stable.

func RoomParticipants(room domain.SignalingRoomID) string {
	return "room=" + room.String() + ":participants"
}

func RoomParticipant(room domain.SignalingRoomID, id domain.ParticipantID) string {
	return "room=" + room.String() + ":participant=" + string(id)
}

func RoomUser(room domain.SignalingRoomID, id domain.UserID) string {
	return "room=" + room.String() + ":user=" + string(id)
}

func GlobalRoomParticipants(room domain.RoomID) string {
	return "global_room=" + string(room) + ":participants"
}

func GlobalRoomParticipant(room domain.RoomID, id domain.ParticipantID) string {
	return "global_room=" + string(room) + ":participant=" + string(id)
}

func GlobalRoomUser(room domain.RoomID, id domain.UserID) string {
	return "global_room=" + string(room) + ":user=" + string(id)
}

// SessionKeys is the fixed set a joined session listens on. User keys are
// only added for user participants.
func SessionKeys(room domain.SignalingRoomID, id domain.ParticipantID, p domain.Participant) []string {
	keys := []string{
		RoomParticipants(room),
		RoomParticipant(room, id),
		GlobalRoomParticipants(room.Room),
		GlobalRoomParticipant(room.Room, id),
	}
	if p.IsUser() {
		keys = append(keys, RoomUser(room, p.User), GlobalRoomUser(room.Room, p.User))
	}
	return keys
}
