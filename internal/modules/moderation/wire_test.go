package moderation

import (
	"testing"

	"github.com/dkeye/opentalk/internal/domain"
	"github.com/dkeye/opentalk/internal/testutil"
)

func TestWireRoundTrip(t *testing.T) {
	target := domain.ParticipantID("p2")
	tests := map[string]func(t *testing.T){
		"kick": func(t *testing.T) {
			testutil.RoundTripIncoming(t, Namespace, Target{Action: ActionKick, Target: target})
		},
		"ban": func(t *testing.T) {
			testutil.RoundTripIncoming(t, Namespace, Target{Action: ActionBan, Target: target})
		},
		"debrief": func(t *testing.T) {
			testutil.RoundTripIncoming(t, Namespace, Debrief{Action: ActionDebrief, KickScope: KickUsersAndGuests})
		},
		"reset raised hands of one": func(t *testing.T) {
			testutil.RoundTripIncoming(t, Namespace, ResetRaisedHands{Action: ActionResetRaisedHands, Target: &target})
		},
		"reset raised hands of all": func(t *testing.T) {
			testutil.RoundTripIncoming(t, Namespace, ResetRaisedHands{Action: ActionResetRaisedHands})
		},
		"waiting room enabled": func(t *testing.T) {
			testutil.RoundTripOutgoing(t, Namespace, Issued{Message: MsgWaitingRoomEnabled, IssuedBy: "p1"})
		},
		"debriefed": func(t *testing.T) {
			testutil.RoundTripOutgoing(t, Namespace, Debriefed{Message: MsgDebriefed, IssuedBy: "p1", KickScope: KickGuests})
		},
		"exchange kicked": func(t *testing.T) {
			testutil.RoundTripExchange(t, Namespace, Issued{Message: exKicked, IssuedBy: "p1"})
		},
		"exchange debriefed": func(t *testing.T) {
			testutil.RoundTripExchange(t, Namespace, Debriefed{Message: MsgDebriefed, IssuedBy: "p1", KickScope: KickAll})
		},
		"error participant": func(t *testing.T) { testutil.RoundTripError(t, Namespace, ErrInvalidParticipant) },
		"error room owner":  func(t *testing.T) { testutil.RoundTripError(t, Namespace, ErrTargetIsRoomOwner) },
		"error ban guest":   func(t *testing.T) { testutil.RoundTripError(t, Namespace, ErrCannotBanGuest) },
		"error not waiting": func(t *testing.T) { testutil.RoundTripError(t, Namespace, ErrNotInWaitingRoom) },
	}
	for name, fn := range tests {
		t.Run(name, fn)
	}
}
