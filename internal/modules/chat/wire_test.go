package chat

import (
	"testing"
	"time"

	"github.com/dkeye/opentalk/internal/testutil"
)

func TestWireRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 0, 30, 0, time.UTC)
	stored := StoredMessage{ID: "m1", Source: "p1", Timestamp: at, Content: "hello", Scope: ScopeGroup, Target: "dev"}
	tests := map[string]func(t *testing.T){
		"send global": func(t *testing.T) {
			testutil.RoundTripIncoming(t, Namespace, SendMessage{Action: ActionSendMessage, Content: "hi", Scope: ScopeGlobal})
		},
		"send private": func(t *testing.T) {
			testutil.RoundTripIncoming(t, Namespace, SendMessage{Action: ActionSendMessage, Content: "hi", Scope: ScopePrivate, Target: "p2"})
		},
		"set last seen": func(t *testing.T) {
			testutil.RoundTripIncoming(t, Namespace, SetLastSeenTimestamp{Action: ActionSetLastSeenTimestamp, Scope: ScopeGroup, Target: "dev", Timestamp: at})
		},
		"message sent": func(t *testing.T) {
			testutil.RoundTripOutgoing(t, Namespace, stored.sent())
		},
		"history cleared": func(t *testing.T) {
			testutil.RoundTripOutgoing(t, Namespace, Issued{Message: MsgHistoryCleared, IssuedBy: "p1"})
		},
		"exchange message sent": func(t *testing.T) {
			testutil.RoundTripExchange(t, Namespace, stored.sent())
		},
		"exchange chat disabled": func(t *testing.T) {
			testutil.RoundTripExchange(t, Namespace, Issued{Message: MsgChatDisabled, IssuedBy: "p1"})
		},
		"error disabled": func(t *testing.T) { testutil.RoundTripError(t, Namespace, ErrChatDisabled) },
		"error scope":    func(t *testing.T) { testutil.RoundTripError(t, Namespace, ErrInvalidScope) },
		"error too long": func(t *testing.T) { testutil.RoundTripError(t, Namespace, ErrMessageTooLong) },
	}
	for name, fn := range tests {
		t.Run(name, fn)
	}
}
