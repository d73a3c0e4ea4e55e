package control

import (
	"encoding/json"
	"time"

	"github.com/dkeye/opentalk/internal/domain"
)

// Inbound actions.
const (
	ActionJoin                = "join"
	ActionEnterRoom           = "enter_room"
	ActionRaiseHand           = "raise_hand"
	ActionLowerHand           = "lower_hand"
	ActionGrantModeratorRole  = "grant_moderator_role"
	ActionRevokeModeratorRole = "revoke_moderator_role"
)

type Join struct {
	Action      string `json:"action"`
	DisplayName string `json:"display_name,omitempty"`
}

// Target is the payload of the moderator role commands.
type Target struct {
	Action string               `json:"action"`
	Target domain.ParticipantID `json:"target" validate:"required"`
}

// Participant is how peers appear on the wire: the control projection plus
// one entry per module namespace.
type Participant map[string]any

func NewParticipant(id domain.ParticipantID, s State) Participant {
	return Participant{"id": id, Namespace: s}
}

// JoinSuccess answers a successful join. Module frontend data is merged in
// under each module's namespace by the runner.
type JoinSuccess struct {
	Message      string               `json:"message"`
	ID           domain.ParticipantID `json:"id"`
	DisplayName  string               `json:"display_name"`
	AvatarURL    string               `json:"avatar_url,omitempty"`
	Role         domain.Role          `json:"role"`
	ClosesAt     *time.Time           `json:"closes_at,omitempty"`
	Tariff       domain.Tariff        `json:"tariff"`
	Participants []Participant        `json:"participants"`
	EventInfo    *domain.EventInfo    `json:"event_info,omitempty"`
	RoomInfo     domain.RoomInfo      `json:"room_info"`
	IsRoomOwner  bool                 `json:"is_room_owner"`

	// Modules holds each module's frontend data keyed by namespace.
	Modules map[string]any `json:"-"`
}

func (j JoinSuccess) MarshalJSON() ([]byte, error) {
	type plain JoinSuccess
	raw, err := json.Marshal(plain(j))
	if err != nil || len(j.Modules) == 0 {
		return raw, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	for ns, v := range j.Modules {
		enc, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		fields[ns] = enc
	}
	return json.Marshal(fields)
}

// WithMessage returns a copy tagged as the outbound message kind.
func (p Participant) WithMessage(message string) Participant {
	out := make(Participant, len(p)+1)
	for k, v := range p {
		out[k] = v
	}
	out["message"] = message
	return out
}

type Left struct {
	Message string               `json:"message"`
	ID      domain.ParticipantID `json:"id"`
}

type RoleUpdatedMsg struct {
	Message string      `json:"message"`
	NewRole domain.Role `json:"new_role"`
}

// Simple is a message without fields: in_waiting_room, accepted, kicked,
// banned, room_deleted, hand_raised, hand_lowered.
type Simple struct {
	Message string `json:"message"`
}

func Msg(message string) Simple { return Simple{Message: message} }

const (
	MsgJoinSuccess   = "join_success"
	MsgJoined        = "joined"
	MsgLeft          = "left"
	MsgUpdate        = "update"
	MsgRoleUpdated   = "role_updated"
	MsgInWaitingRoom = "in_waiting_room"
	MsgAccepted      = "accepted"
	MsgKicked        = "kicked"
	MsgBanned        = "banned"
	MsgRoomDeleted   = "room_deleted"
)

// Exchange messages exchanged between runners in the control namespace.
type ExchangeParticipant struct {
	Message string               `json:"message"`
	ID      domain.ParticipantID `json:"id"`
}

type SetRoleMsg struct {
	Message string      `json:"message"`
	Role    domain.Role `json:"role"`
}

const (
	ExJoined      = "joined"
	ExLeft        = "left"
	ExUpdate      = "update"
	ExSetRole     = "set_role"
	ExAccepted    = "accepted"
	ExRoomDeleted = "room_deleted"
)
