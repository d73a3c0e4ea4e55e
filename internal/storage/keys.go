package storage

import (
	"strings"

	"github.com/dkeye/opentalk/internal/domain"
)

// KeyPrefix namespaces every key written by the signaling runtime.
const KeyPrefix = "opentalk-signaling"

func TicketKey(t domain.TicketToken) string {
	return KeyPrefix + ":ticket=" + string(t)
}

func ResumptionKey(t domain.ResumptionToken) string {
	return KeyPrefix + ":resumption=" + string(t)
}

func RunnerKey(id domain.ParticipantID) string {
	return KeyPrefix + ":runner=" + string(id)
}

// RoomKey builds "opentalk-signaling:room=<room>:<part>:<part>...".
func RoomKey(room domain.SignalingRoomID, parts ...string) string {
	var b strings.Builder
	b.WriteString(KeyPrefix)
	b.WriteString(":room=")
	b.WriteString(room.String())
	for _, p := range parts {
		b.WriteByte(':')
		b.WriteString(p)
	}
	return b.String()
}

// GlobalRoomKey is RoomKey on the parent room; the breakout slot is ignored on
// purpose so the key is shared by the parent and all its breakouts.
func GlobalRoomKey(room domain.RoomID, parts ...string) string {
	return RoomKey(domain.SignalingRoomID{Room: room}, parts...)
}

func ParticipantsKey(room domain.SignalingRoomID) string {
	return RoomKey(room, "participants")
}

func RoomLockKey(room domain.SignalingRoomID) string {
	return RoomKey(room, "lock")
}

func attributeKey(room domain.SignalingRoomID, scope Scope, name string) string {
	if scope == ScopeGlobal {
		return GlobalRoomKey(room.Room, "participants", "attributes", "global", name)
	}
	return RoomKey(room, "participants", "attributes", "local", name)
}

func attributeIndexKey(room domain.SignalingRoomID, scope Scope) string {
	if scope == ScopeGlobal {
		return GlobalRoomKey(room.Room, "participants", "attributes", "global")
	}
	return RoomKey(room, "participants", "attributes", "local")
}
