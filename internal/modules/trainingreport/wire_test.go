package trainingreport

import (
	"testing"
	"time"

	"github.com/dkeye/opentalk/internal/testutil"
)

func TestWireRoundTrip(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	next := start.Add(15 * time.Minute)
	tests := map[string]func(t *testing.T){
		"enable presence logging": func(t *testing.T) {
			testutil.RoundTripIncoming(t, Namespace, EnablePresenceLogging{
				Action:                 ActionEnablePresenceLogging,
				InitialCheckpointDelay: &TimeRange{After: 60, Within: 120},
				CheckpointInterval:     &TimeRange{After: 600, Within: 300},
			})
		},
		"enable with defaults": func(t *testing.T) {
			testutil.RoundTripIncoming(t, Namespace, EnablePresenceLogging{Action: ActionEnablePresenceLogging})
		},
		"confirmation requested": func(t *testing.T) {
			testutil.RoundTripOutgoing(t, Namespace, ConfirmationRequested{Message: MsgPresenceConfirmationRequested, Checkpoint: next})
		},
		"confirmation logged": func(t *testing.T) {
			testutil.RoundTripOutgoing(t, Namespace, Simple{Message: MsgPresenceConfirmationLogged})
		},
		"pdf asset": func(t *testing.T) {
			testutil.RoundTripOutgoing(t, Namespace, PdfAsset{Message: MsgPdfAsset, AssetID: "a1", Filename: "training_report.pdf"})
		},
		"exchange enabled": func(t *testing.T) {
			testutil.RoundTripExchange(t, Namespace, exEnabledMessage{Message: exEnabled, State: State{
				Creator:        "p1",
				StartedAt:      start,
				Interval:       TimeRange{After: 600, Within: 300},
				NextCheckpoint: next,
				Checkpoints:    []time.Time{start.Add(5 * time.Minute)},
			}})
		},
		"exchange checkpoint": func(t *testing.T) {
			testutil.RoundTripExchange(t, Namespace, exCheckpointMessage{Message: exCheckpoint, At: next, Next: next.Add(12 * time.Minute)})
		},
		"exchange disabled": func(t *testing.T) {
			testutil.RoundTripExchange(t, Namespace, Simple{Message: exDisabled})
		},
		"error enabled":     func(t *testing.T) { testutil.RoundTripError(t, Namespace, ErrAlreadyEnabled) },
		"error not enabled": func(t *testing.T) { testutil.RoundTripError(t, Namespace, ErrNotEnabled) },
		"error nothing":     func(t *testing.T) { testutil.RoundTripError(t, Namespace, ErrNothingToConfirm) },
		"error internal":    func(t *testing.T) { testutil.RoundTripError(t, Namespace, ErrInternal) },
	}
	for name, fn := range tests {
		t.Run(name, fn)
	}
}
