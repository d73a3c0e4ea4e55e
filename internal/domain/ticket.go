package domain

type (
	TicketToken     string
	ResumptionToken string
)

// TicketData is written by the REST start endpoint and redeemed once by the
// WebSocket handshake.
type TicketData struct {
	ParticipantID   ParticipantID   `json:"participant_id"`
	Resuming        bool            `json:"resuming"`
	Participant     Participant     `json:"participant"`
	Room            RoomID          `json:"room"`
	Breakout        BreakoutRoomID  `json:"breakout_room,omitempty"`
	ResumptionToken ResumptionToken `json:"resumption"`
}

func (t TicketData) SignalingRoom() SignalingRoomID {
	return NewSignalingRoomID(t.Room, t.Breakout)
}

// ResumptionData lets a dropped client reclaim its participant id.
type ResumptionData struct {
	ParticipantID ParticipantID  `json:"participant_id"`
	Participant   Participant    `json:"participant"`
	Room          RoomID         `json:"room"`
	Breakout      BreakoutRoomID `json:"breakout_room,omitempty"`
}
