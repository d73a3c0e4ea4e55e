package livekit

import (
	"github.com/dkeye/opentalk/internal/core"
	"github.com/dkeye/opentalk/internal/domain"
)

const (
	MsgCredentials                    = "credentials"
	MsgMicrophoneRestrictionsEnabled  = "microphone_restrictions_enabled"
	MsgMicrophoneRestrictionsDisabled = "microphone_restrictions_disabled"
	MsgForceMuted                     = "force_muted"
	MsgPopoutStreamAccessToken        = "popout_stream_access_token"
)

var ErrLivekitUnavailable = core.NewError("livekit_unavailable")

// Credentials let the client connect its media session.
type Credentials struct {
	Message    string `json:"message,omitempty"`
	Room       string `json:"room"`
	Token      string `json:"token"`
	PublicURL  string `json:"public_url"`
	ServiceURL string `json:"service_url,omitempty"`
}

type RestrictionState struct {
	Type                     string                 `json:"type"`
	UnrestrictedParticipants []domain.ParticipantID `json:"unrestricted_participants,omitempty"`
}

type MicrophoneRestrictions struct {
	Message                  string                 `json:"message"`
	UnrestrictedParticipants []domain.ParticipantID `json:"unrestricted_participants,omitempty"`
}

type ForceMuted struct {
	Message   string               `json:"message"`
	Moderator domain.ParticipantID `json:"moderator"`
}

type PopoutToken struct {
	Message string `json:"message"`
	Token   string `json:"token"`
}

type FrontendData struct {
	Credentials                Credentials      `json:"credentials"`
	MicrophoneRestrictionState RestrictionState `json:"microphone_restriction_state"`
}
