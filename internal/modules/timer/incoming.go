package timer

const (
	ActionStart             = "start"
	ActionStop              = "stop"
	ActionUpdateReadyStatus = "update_ready_status"
)

type Kind string

const (
	KindCountdown Kind = "countdown"
	KindStopwatch Kind = "stopwatch"
)

// Start creates the room timer. Duration is in seconds and required for
// countdowns.
type Start struct {
	Action           string  `json:"action"`
	Kind             Kind    `json:"kind" validate:"oneof=countdown stopwatch"`
	Duration         *uint64 `json:"duration,omitempty" validate:"omitempty,min=1,max=86400"`
	Style            string  `json:"style,omitempty" validate:"max=255"`
	Title            string  `json:"title,omitempty" validate:"max=255"`
	EnableReadyCheck bool    `json:"enable_ready_check"`
}

type Stop struct {
	Action  string `json:"action"`
	TimerID string `json:"timer_id" validate:"required"`
	Reason  string `json:"reason,omitempty" validate:"max=255"`
}

type UpdateReadyStatus struct {
	Action  string `json:"action"`
	TimerID string `json:"timer_id" validate:"required"`
	Status  bool   `json:"status"`
}
