package moderation

import "github.com/dkeye/opentalk/internal/domain"

const (
	ActionKick               = "kick"
	ActionBan                = "ban"
	ActionSendToWaitingRoom  = "send_to_waiting_room"
	ActionDebrief            = "debrief"
	ActionEnableWaitingRoom  = "enable_waiting_room"
	ActionDisableWaitingRoom = "disable_waiting_room"
	ActionEnableRaiseHands   = "enable_raise_hands"
	ActionDisableRaiseHands  = "disable_raise_hands"
	ActionAccept             = "accept"
	ActionResetRaisedHands   = "reset_raised_hands"
)

type Target struct {
	Action string               `json:"action"`
	Target domain.ParticipantID `json:"target" validate:"required"`
}

// KickScope selects who a debrief removes. Moderators always stay.
type KickScope string

const (
	KickGuests         KickScope = "guests"
	KickUsersAndGuests KickScope = "users_and_guests"
	KickAll            KickScope = "all"
)

func (s KickScope) Covers(kind domain.ParticipationKind) bool {
	switch s {
	case KickGuests:
		return kind == domain.KindGuest || kind == domain.KindSip
	case KickUsersAndGuests:
		return kind == domain.KindGuest || kind == domain.KindSip || kind == domain.KindUser
	case KickAll:
		return true
	}
	return false
}

type Debrief struct {
	Action    string    `json:"action"`
	KickScope KickScope `json:"kick_scope" validate:"oneof=guests users_and_guests all"`
}

type ResetRaisedHands struct {
	Action string                `json:"action"`
	Target *domain.ParticipantID `json:"target,omitempty"`
}
