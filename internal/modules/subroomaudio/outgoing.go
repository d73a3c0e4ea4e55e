package subroomaudio

import (
	"github.com/dkeye/opentalk/internal/core"
	"github.com/dkeye/opentalk/internal/domain"
)

const (
	MsgWhisperGroupCreated   = "whisper_group_created"
	MsgWhisperInvite         = "whisper_invite"
	MsgWhisperToken          = "whisper_token"
	MsgParticipantsInvited   = "participants_invited"
	MsgWhisperInviteAccepted = "whisper_invite_accepted"
	MsgWhisperInviteDeclined = "whisper_invite_declined"
	MsgLeftWhisperGroup      = "left_whisper_group"
	MsgKicked                = "kicked"
)

var (
	ErrInvalidWhisperID          = core.NewError("invalid_whisper_id")
	ErrNotInvited                = core.NewError("not_invited")
	ErrInvalidParticipantTargets = core.NewError("invalid_participant_targets")
)

// MemberState is where a participant stands in a whisper group.
type MemberState string

const (
	StateCreator  MemberState = "creator"
	StateInvited  MemberState = "invited"
	StateAccepted MemberState = "accepted"
)

func (s MemberState) joined() bool { return s == StateCreator || s == StateAccepted }

type Member struct {
	ParticipantID domain.ParticipantID `json:"participant_id"`
	State         MemberState          `json:"state"`
}

type GroupCreated struct {
	Message      string   `json:"message"`
	WhisperID    string   `json:"whisper_id"`
	Participants []Member `json:"participants"`
}

type Invite struct {
	Message      string               `json:"message"`
	Issuer       domain.ParticipantID `json:"issuer"`
	WhisperID    string               `json:"whisper_id"`
	Participants []Member             `json:"participants"`
}

type Token struct {
	Message   string `json:"message"`
	WhisperID string `json:"whisper_id"`
	Room      string `json:"room"`
	Token     string `json:"token"`
}

type Invited struct {
	Message        string                 `json:"message"`
	WhisperID      string                 `json:"whisper_id"`
	ParticipantIDs []domain.ParticipantID `json:"participant_ids"`
}

// MemberChanged reports one participant's move in a group: accepted,
// declined or left.
type MemberChanged struct {
	Message       string               `json:"message"`
	WhisperID     string               `json:"whisper_id"`
	ParticipantID domain.ParticipantID `json:"participant_id"`
}

type Kicked struct {
	Message   string `json:"message"`
	WhisperID string `json:"whisper_id"`
}
