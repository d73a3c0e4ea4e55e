package whiteboard

import "github.com/dkeye/opentalk/internal/core"

const MsgSpaceURL = "space_url"

var (
	ErrCurrentlyInitializing = core.NewError("currently_initializing")
	ErrAlreadyInitialized    = core.NewError("already_initialized")
	ErrInternal              = core.NewError("internal")
)

type SpaceURL struct {
	Message string `json:"message"`
	URL     string `json:"url"`
}

type FrontendData struct {
	Status string `json:"status"`
	URL    string `json:"url,omitempty"`
}
