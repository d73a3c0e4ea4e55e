package polls

import (
	"time"

	"github.com/dkeye/opentalk/internal/core"
)

const (
	MsgStarted    = "started"
	MsgVoted      = "voted"
	MsgLiveUpdate = "live_update"
	MsgDone       = "done"
)

var (
	ErrStillRunning       = core.NewError("still_running")
	ErrInvalidPollID      = core.NewError("invalid_poll_id")
	ErrInvalidChoiceID    = core.NewError("invalid_choice_id")
	ErrInvalidChoiceCount = core.NewError("invalid_choice_count")
)

type Choice struct {
	ID      ChoiceID `json:"id"`
	Content string   `json:"content"`
}

// Started also serves as frontend data; Remaining is in seconds.
type Started struct {
	Message        string   `json:"message"`
	ID             string   `json:"id"`
	Topic          string   `json:"topic"`
	Live           bool     `json:"live"`
	MultipleChoice bool     `json:"multiple_choice"`
	Choices        []Choice `json:"choices"`
	Duration       uint64   `json:"duration"`
	Remaining      uint64   `json:"remaining"`
}

type Voted struct {
	Message string     `json:"message"`
	PollID  string     `json:"poll_id"`
	Choices []ChoiceID `json:"choices"`
}

type Item struct {
	ID    ChoiceID `json:"id"`
	Count int64    `json:"count"`
}

type Results struct {
	Message string `json:"message"`
	ID      string `json:"id"`
	Results []Item `json:"results"`
}

func remaining(ends, now time.Time) uint64 {
	if !now.Before(ends) {
		return 0
	}
	return uint64(ends.Sub(now).Round(time.Second) / time.Second)
}
