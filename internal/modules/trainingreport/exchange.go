package trainingreport

import "time"

const (
	exEnabled    = "enabled"
	exCheckpoint = "checkpoint"
	exDisabled   = "disabled"
)

type exEnabledMessage struct {
	Message string `json:"message"`
	State   State  `json:"state"`
}

// exCheckpointMessage is published by the runner that claimed checkpoint At.
type exCheckpointMessage struct {
	Message string    `json:"message"`
	At      time.Time `json:"at"`
	Next    time.Time `json:"next"`
}
