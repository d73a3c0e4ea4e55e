package timer

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dkeye/opentalk/internal/core"
	"github.com/dkeye/opentalk/internal/domain"
	"github.com/dkeye/opentalk/internal/testutil"
)

func TestWireRoundTrip(t *testing.T) {
	dur := uint64(300)
	startedAt := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	endsAt := startedAt.Add(5 * time.Minute)
	moderator := domain.ParticipantID("p1")
	state := State{
		ID:                "t1",
		CreatedBy:         moderator,
		StartedAt:         startedAt,
		Kind:              KindCountdown,
		EndsAt:            &endsAt,
		Style:             "coffee_break",
		Title:             "Break",
		ReadyCheckEnabled: true,
	}
	tests := map[string]func(t *testing.T){
		"start countdown": func(t *testing.T) {
			testutil.RoundTripIncoming(t, Namespace, Start{Action: ActionStart, Kind: KindCountdown, Duration: &dur, Title: "Break", EnableReadyCheck: true})
		},
		"start stopwatch": func(t *testing.T) {
			testutil.RoundTripIncoming(t, Namespace, Start{Action: ActionStart, Kind: KindStopwatch})
		},
		"stop": func(t *testing.T) {
			testutil.RoundTripIncoming(t, Namespace, Stop{Action: ActionStop, TimerID: "t1", Reason: "done"})
		},
		"update ready status": func(t *testing.T) {
			testutil.RoundTripIncoming(t, Namespace, UpdateReadyStatus{Action: ActionUpdateReadyStatus, TimerID: "t1", Status: true})
		},
		"started": func(t *testing.T) {
			testutil.RoundTripOutgoing(t, Namespace, state.started())
		},
		"stopped by moderator": func(t *testing.T) {
			testutil.RoundTripOutgoing(t, Namespace, Stopped{Message: MsgStopped, TimerID: "t1", Kind: StopKind{Kind: StopByModerator, ParticipantID: &moderator}, Reason: "done"})
		},
		"stopped expired": func(t *testing.T) {
			testutil.RoundTripOutgoing(t, Namespace, Stopped{Message: MsgStopped, TimerID: "t1", Kind: StopKind{Kind: StopExpired}})
		},
		"ready status updated": func(t *testing.T) {
			testutil.RoundTripOutgoing(t, Namespace, ReadyStatusUpdated{Message: MsgUpdatedReadyStatus, TimerID: "t1", ParticipantID: "p2", Status: true})
		},
		"exchange started": func(t *testing.T) {
			testutil.RoundTripExchange(t, Namespace, exStartedMessage{Message: exStarted, Timer: state})
		},
		"error already running": func(t *testing.T) { testutil.RoundTripError(t, Namespace, ErrTimerAlreadyRunning) },
		"error timer id":        func(t *testing.T) { testutil.RoundTripError(t, Namespace, ErrInvalidTimerID) },
	}
	for name, fn := range tests {
		t.Run(name, fn)
	}
}

func TestStartDurationBounds(t *testing.T) {
	for _, tt := range []struct {
		duration uint64
		ok       bool
	}{
		{1, true},
		{86400, true},
		{0, false},
		{86401, false},
		{1 << 62, false},
	} {
		raw := json.RawMessage(fmt.Sprintf(`{"action":"start","kind":"countdown","duration":%d}`, tt.duration))
		_, err := core.Decode[Start](raw)
		if tt.ok {
			assert.NoError(t, err, tt.duration)
		} else {
			assert.ErrorIs(t, err, core.ErrInvalidJSON, tt.duration)
		}
	}
}
