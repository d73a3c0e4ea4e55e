package subroomaudio

import "github.com/dkeye/opentalk/internal/domain"

const (
	ActionCreateWhisperGroup      = "create_whisper_group"
	ActionInviteToWhisperGroup    = "invite_to_whisper_group"
	ActionAcceptWhisperInvite     = "accept_whisper_invite"
	ActionDeclineWhisperInvite    = "decline_whisper_invite"
	ActionLeaveWhisperGroup       = "leave_whisper_group"
	ActionKickWhisperParticipants = "kick_whisper_participants"
)

type CreateWhisperGroup struct {
	Action         string                 `json:"action"`
	ParticipantIDs []domain.ParticipantID `json:"participant_ids" validate:"required,min=1,max=32,dive,required"`
}

type WhisperTargets struct {
	Action         string                 `json:"action"`
	WhisperID      string                 `json:"whisper_id" validate:"required"`
	ParticipantIDs []domain.ParticipantID `json:"participant_ids" validate:"required,min=1,max=32,dive,required"`
}

type WhisperID struct {
	Action    string `json:"action"`
	WhisperID string `json:"whisper_id" validate:"required"`
}
