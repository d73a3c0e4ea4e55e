package whiteboard

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/opentalk/internal/core"
	"github.com/dkeye/opentalk/internal/testutil"
)

func TestWireRoundTrip(t *testing.T) {
	tests := map[string]func(t *testing.T){
		"initialize": func(t *testing.T) {
			action, err := core.DecodeAction(json.RawMessage(`{"action":"initialize"}`))
			require.NoError(t, err)
			assert.Equal(t, ActionInitialize, action)
		},
		"space url": func(t *testing.T) {
			testutil.RoundTripOutgoing(t, Namespace, SpaceURL{Message: MsgSpaceURL, URL: "https://spacedeck.example.com/s/room1-abc"})
		},
		"exchange space url": func(t *testing.T) {
			testutil.RoundTripExchange(t, Namespace, SpaceURL{Message: exSpaceURL, URL: "https://spacedeck.example.com/s/room1-abc"})
		},
		"error initializing": func(t *testing.T) { testutil.RoundTripError(t, Namespace, ErrCurrentlyInitializing) },
		"error initialized":  func(t *testing.T) { testutil.RoundTripError(t, Namespace, ErrAlreadyInitialized) },
		"error internal":     func(t *testing.T) { testutil.RoundTripError(t, Namespace, ErrInternal) },
	}
	for name, fn := range tests {
		t.Run(name, fn)
	}
}
