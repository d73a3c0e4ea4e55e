package core

import (
	"encoding/json"
	"time"

	"github.com/dkeye/opentalk/internal/control"
	"github.com/dkeye/opentalk/internal/domain"
)

// Event is the closed set of inputs a module receives.
type Event interface{ isEvent() }

// Joined is delivered once after the participant entered the room.
// Participants has one slot per visible peer.
type Joined struct {
	Control      control.State
	Frontend     *Slot
	Participants map[domain.ParticipantID]*Slot
}

type Leaving struct{}

type RaiseHand struct{}

type LowerHand struct{}

type ParticipantJoined struct {
	ID   domain.ParticipantID
	Data *Slot
}

type ParticipantLeft struct {
	ID domain.ParticipantID
}

type ParticipantUpdated struct {
	ID   domain.ParticipantID
	Data *Slot
}

type RoleUpdated struct {
	Role domain.Role
}

// WsMessage is an inbound frame addressed to the module's namespace.
type WsMessage struct {
	Payload json.RawMessage
}

// ExchangeMessage arrived from a runner of the same room.
type ExchangeMessage struct {
	Key       string
	Timestamp time.Time
	Payload   json.RawMessage
}

// Ext is the result of work registered through Spawn, After or
// AddEventStream.
type Ext struct {
	Value any
}

func (Joined) isEvent()             {}
func (Leaving) isEvent()            {}
func (RaiseHand) isEvent()          {}
func (LowerHand) isEvent()          {}
func (ParticipantJoined) isEvent()  {}
func (ParticipantLeft) isEvent()    {}
func (ParticipantUpdated) isEvent() {}
func (RoleUpdated) isEvent()        {}
func (WsMessage) isEvent()          {}
func (ExchangeMessage) isEvent()    {}
func (Ext) isEvent()                {}
