package livekit

import "github.com/dkeye/opentalk/internal/domain"

const (
	ActionCreateNewAccessToken           = "create_new_access_token"
	ActionForceMute                      = "force_mute"
	ActionGrantScreenSharePermission     = "grant_screen_share_permission"
	ActionRevokeScreenSharePermission    = "revoke_screen_share_permission"
	ActionEnableMicrophoneRestrictions   = "enable_microphone_restrictions"
	ActionDisableMicrophoneRestrictions  = "disable_microphone_restrictions"
	ActionRequestPopoutStreamAccessToken = "request_popout_stream_access_token"
)

// Participants addresses the targets of a moderator action.
type Participants struct {
	Action       string                 `json:"action"`
	Participants []domain.ParticipantID `json:"participants" validate:"required,min=1,dive,required"`
}

type EnableMicrophoneRestrictions struct {
	Action                   string                 `json:"action"`
	UnrestrictedParticipants []domain.ParticipantID `json:"unrestricted_participants"`
}
