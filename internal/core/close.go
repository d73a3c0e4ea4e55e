package core

// CloseCode is the websocket close status sent when a session ends.
type CloseCode int

const (
	CloseNormal             CloseCode = 1000
	CloseServerError        CloseCode = 1011
	CloseTicketInvalid      CloseCode = 4401
	CloseBanned             CloseCode = 4403
	CloseParticipantIDInUse CloseCode = 4409
	CloseRoomClosed         CloseCode = 4410
)

func (c CloseCode) String() string {
	switch c {
	case CloseNormal:
		return "normal"
	case CloseServerError:
		return "server_error"
	case CloseTicketInvalid:
		return "ticket_invalid"
	case CloseBanned:
		return "banned"
	case CloseParticipantIDInUse:
		return "participant_id_in_use"
	case CloseRoomClosed:
		return "room_closed"
	default:
		return "unknown"
	}
}

// ExitReason is why a module asked the runner to end the session.
type ExitReason int

const (
	ExitNormal ExitReason = iota
	ExitKicked
	ExitBanned
	ExitRoomClosed
	ExitServerError
)

func (r ExitReason) CloseCode() CloseCode {
	switch r {
	case ExitBanned:
		return CloseBanned
	case ExitRoomClosed:
		return CloseRoomClosed
	case ExitServerError:
		return CloseServerError
	default:
		return CloseNormal
	}
}

func (r ExitReason) String() string {
	switch r {
	case ExitKicked:
		return "kicked"
	case ExitBanned:
		return "banned"
	case ExitRoomClosed:
		return "room_closed"
	case ExitServerError:
		return "server_error"
	default:
		return "normal"
	}
}
