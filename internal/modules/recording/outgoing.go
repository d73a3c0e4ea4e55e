package recording

import "github.com/dkeye/opentalk/internal/core"

const MsgStreamUpdated = "stream_updated"

var (
	ErrRoomE2EEncrypted = core.NewError("room_e2e_encrypted")
	ErrInvalidStreamID  = core.NewError("invalid_stream_id")
	ErrInvalidState     = core.NewError("invalid_state")
)

type Status string

const (
	StatusInactive Status = "inactive"
	StatusStarting Status = "starting"
	StatusActive   Status = "active"
	StatusPaused   Status = "paused"
	StatusError    Status = "error"
)

type Kind string

const (
	KindRecording  Kind = "recording"
	KindLivestream Kind = "livestream"
)

// Target is one recording or livestream destination of the room.
type Target struct {
	ID       TargetID `json:"target_id"`
	Kind     Kind     `json:"kind"`
	Name     string   `json:"name"`
	Status   Status   `json:"status"`
	Reason   string   `json:"reason,omitempty"`
	Location string   `json:"public_url,omitempty"`
}

type StreamUpdated struct {
	Message string `json:"message"`
	Target
}

type FrontendData struct {
	Targets map[TargetID]Target `json:"targets"`
	Consent bool                `json:"consent"`
}

type PeerData struct {
	ConsentsRecording bool `json:"consents_recording"`
}
