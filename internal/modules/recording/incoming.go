package recording

const (
	ActionStartStream        = "start_stream"
	ActionPauseStream        = "pause_stream"
	ActionStopStream         = "stop_stream"
	ActionSetConsent         = "set_consent"
	ActionUpdateStreamStatus = "update_stream_status"
)

type TargetID string

// Targets selects stream targets; an empty list means all of them.
type Targets struct {
	Action    string     `json:"action"`
	TargetIDs []TargetID `json:"target_ids"`
}

type SetConsent struct {
	Action  string `json:"action"`
	Consent bool   `json:"consent"`
}

// UpdateStreamStatus is sent by the recorder participant.
type UpdateStreamStatus struct {
	Action   string   `json:"action"`
	TargetID TargetID `json:"target_id" validate:"required"`
	Status   Status   `json:"status" validate:"oneof=inactive active paused error"`
	Reason   string   `json:"reason,omitempty"`
}
