package app

import "github.com/dkeye/opentalk/internal/domain"

// BackpressureAction is what the transport does with a frame that does not
// fit into a client's send queue.
type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	CloseSlow
)

func (a BackpressureAction) String() string {
	switch a {
	case DropFrame:
		return "drop_frame"
	case CloseSlow:
		return "close_slow"
	default:
		return "none"
	}
}

type Policy interface {
	// OnBackpressure is called with the number of frames dropped in a row for
	// the participant, including the current one.
	OnBackpressure(id domain.ParticipantID, dropped int) BackpressureAction
}

// ThresholdPolicy drops frames of a slow client and closes it once Limit
// consecutive frames were lost. A zero Limit never closes.
type ThresholdPolicy struct {
	Limit int
}

func (p ThresholdPolicy) OnBackpressure(_ domain.ParticipantID, dropped int) BackpressureAction {
	if p.Limit > 0 && dropped >= p.Limit {
		return CloseSlow
	}
	return DropFrame
}
