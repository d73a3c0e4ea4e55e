package moderation

import (
	"github.com/dkeye/opentalk/internal/control"
	"github.com/dkeye/opentalk/internal/core"
	"github.com/dkeye/opentalk/internal/domain"
)

const (
	MsgWaitingRoomEnabled         = "waiting_room_enabled"
	MsgWaitingRoomDisabled        = "waiting_room_disabled"
	MsgRaiseHandsEnabled          = "raise_hands_enabled"
	MsgRaiseHandsDisabled         = "raise_hands_disabled"
	MsgJoinedWaitingRoom          = control.ExJoinedWaitingRoom
	MsgLeftWaitingRoom            = control.ExLeftWaitingRoom
	MsgDebriefed                  = "debriefed"
	MsgRaisedHandResetByModerator = "raised_hand_reset_by_moderator"
	MsgSentToWaitingRoom          = "sent_to_waiting_room"
)

var (
	ErrInvalidParticipant = core.NewError("invalid_participant")
	ErrTargetIsRoomOwner  = core.NewError("target_is_room_owner")
	ErrCannotBanGuest     = core.NewError("cannot_ban_guest")
	ErrNotInWaitingRoom   = core.NewError("not_in_waiting_room")
)

// Issued carries the moderator behind an action.
type Issued struct {
	Message  string               `json:"message"`
	IssuedBy domain.ParticipantID `json:"issued_by"`
}

type Debriefed struct {
	Message   string               `json:"message"`
	IssuedBy  domain.ParticipantID `json:"issued_by"`
	KickScope KickScope            `json:"kick_scope"`
}

type WaitingParticipant struct {
	ID domain.ParticipantID `json:"id"`
}

// FrontendData is the moderation part of join_success. The waiting room
// fields are only sent to moderators.
type FrontendData struct {
	RaiseHandsEnabled       bool                 `json:"raise_hands_enabled"`
	WaitingRoomEnabled      *bool                `json:"waiting_room_enabled,omitempty"`
	WaitingRoomParticipants []WaitingParticipant `json:"waiting_room_participants,omitempty"`
}
