package whiteboard

import (
	"context"
	"time"

	"github.com/dkeye/opentalk/internal/domain"
	"github.com/dkeye/opentalk/internal/storage"
)

const (
	statusInitializing = "initializing"
	statusInitialized  = "initialized"
)

// initializingTTL bounds how long a crashed initializer can block retries.
const initializingTTL = time.Minute

type state struct {
	Status string `json:"status"`
	URL    string `json:"url,omitempty"`
}

func stateKey(room domain.SignalingRoomID) string {
	return storage.RoomKey(room, Namespace, "state")
}

func loadState(ctx context.Context, b storage.Backend, room domain.SignalingRoomID) (state, bool, error) {
	return storage.GetJSON[state](ctx, b, stateKey(room))
}

// claimInitialization marks the room as initializing unless any state exists.
func claimInitialization(ctx context.Context, b storage.Backend, room domain.SignalingRoomID) (bool, error) {
	return storage.SetNXJSON(ctx, b, stateKey(room), state{Status: statusInitializing}, initializingTTL)
}

func storeSpace(ctx context.Context, b storage.Backend, room domain.SignalingRoomID, url string) error {
	return storage.SetJSON(ctx, b, stateKey(room), state{Status: statusInitialized, URL: url}, 0)
}

func deleteState(ctx context.Context, b storage.Backend, room domain.SignalingRoomID) error {
	return b.Del(ctx, stateKey(room))
}
