package breakout

import (
	"time"

	"github.com/dkeye/opentalk/internal/core"
	"github.com/dkeye/opentalk/internal/domain"
)

const (
	MsgStarted = "started"
	MsgStopped = "stopped"
	MsgExpired = "expired"
	MsgJoined  = "joined"
	MsgLeft    = "left"
)

var ErrInactive = core.NewError("inactive")

type RoomInfo struct {
	ID   domain.BreakoutRoomID `json:"id"`
	Name string                `json:"name"`
}

type Started struct {
	Message    string                 `json:"message"`
	Rooms      []RoomInfo             `json:"rooms"`
	Duration   *uint64                `json:"duration,omitempty"`
	Expires    *time.Time             `json:"expires,omitempty"`
	Assignment *domain.BreakoutRoomID `json:"assignment,omitempty"`
}

type Simple struct {
	Message string `json:"message"`
}

// Presence tells participants in other rooms of the same meeting who moved
// where.
type Presence struct {
	Message     string                `json:"message"`
	ID          domain.ParticipantID  `json:"id"`
	DisplayName string                `json:"display_name,omitempty"`
	Breakout    domain.BreakoutRoomID `json:"breakout_room,omitempty"`
}

// FrontendData is sent while a breakout config is active.
type FrontendData struct {
	Current *domain.BreakoutRoomID `json:"current"`
	Rooms   []RoomInfo             `json:"rooms"`
	Expires *time.Time             `json:"expires,omitempty"`
}
