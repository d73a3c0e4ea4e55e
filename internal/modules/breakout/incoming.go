package breakout

import "github.com/dkeye/opentalk/internal/domain"

const (
	ActionStart = "start"
	ActionStop  = "stop"
)

type RoomParams struct {
	Name        string                 `json:"name" validate:"required"`
	Assignments []domain.ParticipantID `json:"assignments"`
}

// Start opens the breakout rooms. Duration is in seconds, at most a day.
// Without it the rooms stay open until stopped.
type Start struct {
	Action   string       `json:"action"`
	Rooms    []RoomParams `json:"rooms" validate:"required,min=1,max=100,dive"`
	Duration *uint64      `json:"duration,omitempty" validate:"omitempty,min=1,max=86400"`
}
