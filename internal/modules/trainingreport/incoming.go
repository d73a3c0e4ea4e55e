package trainingreport

const (
	ActionEnablePresenceLogging  = "enable_presence_logging"
	ActionDisablePresenceLogging = "disable_presence_logging"
	ActionConfirmPresence        = "confirm_presence"
)

// TimeRange picks a moment After seconds plus a random share of Within
// seconds from its reference point.
type TimeRange struct {
	After  uint64 `json:"after" validate:"max=86400"`
	Within uint64 `json:"within" validate:"max=86400"`
}

type EnablePresenceLogging struct {
	Action                 string     `json:"action"`
	InitialCheckpointDelay *TimeRange `json:"initial_checkpoint_delay"`
	CheckpointInterval     *TimeRange `json:"checkpoint_interval"`
}
