package domain

import "strings"

type (
	RoomID         string
	BreakoutRoomID string
)

// SignalingRoomID identifies the signaling surface a participant is attached
// to: the parent room, or one of its breakout rooms.
type SignalingRoomID struct {
	Room     RoomID         `json:"room"`
	Breakout BreakoutRoomID `json:"breakout_room,omitempty"`
}

func NewSignalingRoomID(room RoomID, breakout BreakoutRoomID) SignalingRoomID {
	return SignalingRoomID{Room: room, Breakout: breakout}
}

// ParentRoom returns the signaling id of the parent room.
func (s SignalingRoomID) ParentRoom() SignalingRoomID {
	return SignalingRoomID{Room: s.Room}
}

func (s SignalingRoomID) IsBreakout() bool { return s.Breakout != "" }

// String renders "<room>" or "<room>:<breakout>". The result is part of
// storage keys and exchange routing keys.
func (s SignalingRoomID) String() string {
	if s.Breakout == "" {
		return string(s.Room)
	}
	return string(s.Room) + ":" + string(s.Breakout)
}

// ParseSignalingRoomID is the inverse of String.
func ParseSignalingRoomID(raw string) SignalingRoomID {
	room, breakout, _ := strings.Cut(raw, ":")
	return SignalingRoomID{Room: RoomID(room), Breakout: BreakoutRoomID(breakout)}
}
