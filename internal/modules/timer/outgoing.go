package timer

import (
	"time"

	"github.com/dkeye/opentalk/internal/core"
	"github.com/dkeye/opentalk/internal/domain"
)

const (
	MsgStarted            = "started"
	MsgStopped            = "stopped"
	MsgUpdatedReadyStatus = "updated_ready_status"
)

var (
	ErrTimerAlreadyRunning = core.NewError("timer_already_running")
	ErrInvalidTimerID      = core.NewError("invalid_timer_id")
)

type Started struct {
	Message           string               `json:"message"`
	TimerID           string               `json:"timer_id"`
	StartedAt         time.Time            `json:"started_at"`
	Kind              Kind                 `json:"kind"`
	EndsAt            *time.Time           `json:"ends_at,omitempty"`
	Style             string               `json:"style,omitempty"`
	Title             string               `json:"title,omitempty"`
	ReadyCheckEnabled bool                 `json:"ready_check_enabled"`
	CreatedBy         domain.ParticipantID `json:"created_by"`
}

const (
	StopByModerator = "by_moderator"
	StopExpired     = "expired"
)

type StopKind struct {
	Kind          string                `json:"kind"`
	ParticipantID *domain.ParticipantID `json:"participant_id,omitempty"`
}

type Stopped struct {
	Message string   `json:"message"`
	TimerID string   `json:"timer_id"`
	Kind    StopKind `json:"kind"`
	Reason  string   `json:"reason,omitempty"`
}

type ReadyStatusUpdated struct {
	Message       string               `json:"message"`
	TimerID       string               `json:"timer_id"`
	ParticipantID domain.ParticipantID `json:"participant_id"`
	Status        bool                 `json:"status"`
}

// FrontendData describes the running timer to a joining participant.
type FrontendData struct {
	Started
	ReadyStatus *bool `json:"ready_status,omitempty"`
}

type PeerData struct {
	ReadyStatus bool `json:"ready_status"`
}
