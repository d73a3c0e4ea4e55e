package polls

import (
	"testing"
	"time"

	"github.com/dkeye/opentalk/internal/testutil"
)

func TestWireRoundTrip(t *testing.T) {
	poll := Poll{
		ID:             "poll1",
		Topic:          "Lunch?",
		Live:           true,
		MultipleChoice: true,
		Choices:        []Choice{{ID: 0, Content: "Pizza"}, {ID: 1, Content: "Salad"}},
		Started:        time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		Duration:       time.Minute,
	}
	tests := map[string]func(t *testing.T){
		"start": func(t *testing.T) {
			testutil.RoundTripIncoming(t, Namespace, Start{Action: ActionStart, Topic: "Lunch?", Live: true, Choices: []string{"Pizza", "Salad"}, Duration: 60})
		},
		"vote": func(t *testing.T) {
			testutil.RoundTripIncoming(t, Namespace, Vote{Action: ActionVote, PollID: "poll1", Choices: []ChoiceID{0, 1}})
		},
		"finish": func(t *testing.T) {
			testutil.RoundTripIncoming(t, Namespace, Finish{Action: ActionFinish, PollID: "poll1"})
		},
		"started": func(t *testing.T) {
			testutil.RoundTripOutgoing(t, Namespace, Started{
				Message:        MsgStarted,
				ID:             poll.ID,
				Topic:          poll.Topic,
				Live:           true,
				MultipleChoice: true,
				Choices:        poll.Choices,
				Duration:       60,
				Remaining:      42,
			})
		},
		"voted": func(t *testing.T) {
			testutil.RoundTripOutgoing(t, Namespace, Voted{Message: MsgVoted, PollID: "poll1", Choices: []ChoiceID{1}})
		},
		"done": func(t *testing.T) {
			testutil.RoundTripOutgoing(t, Namespace, Results{Message: MsgDone, ID: "poll1", Results: []Item{{ID: 0, Count: 3}, {ID: 1, Count: 0}}})
		},
		"exchange started": func(t *testing.T) {
			testutil.RoundTripExchange(t, Namespace, exStartedMessage{Message: exStarted, Poll: poll})
		},
		"exchange live update": func(t *testing.T) {
			testutil.RoundTripExchange(t, Namespace, Results{Message: MsgLiveUpdate, ID: "poll1", Results: []Item{{ID: 1, Count: 2}}})
		},
		"error still running": func(t *testing.T) { testutil.RoundTripError(t, Namespace, ErrStillRunning) },
		"error poll id":       func(t *testing.T) { testutil.RoundTripError(t, Namespace, ErrInvalidPollID) },
		"error choice id":     func(t *testing.T) { testutil.RoundTripError(t, Namespace, ErrInvalidChoiceID) },
		"error choice count":  func(t *testing.T) { testutil.RoundTripError(t, Namespace, ErrInvalidChoiceCount) },
	}
	for name, fn := range tests {
		t.Run(name, fn)
	}
}
