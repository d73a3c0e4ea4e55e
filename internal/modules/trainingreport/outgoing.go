package trainingreport

import (
	"time"

	"github.com/dkeye/opentalk/internal/assets"
	"github.com/dkeye/opentalk/internal/core"
)

const (
	MsgPresenceLoggingEnabled        = "presence_logging_enabled"
	MsgPresenceLoggingDisabled       = "presence_logging_disabled"
	MsgPresenceConfirmationRequested = "presence_confirmation_requested"
	MsgPresenceConfirmationLogged    = "presence_confirmation_logged"
	MsgPdfAsset                      = "pdf_asset"
)

var (
	ErrAlreadyEnabled   = core.NewError("presence_logging_already_enabled")
	ErrNotEnabled       = core.NewError("presence_logging_not_enabled")
	ErrNothingToConfirm = core.NewError("nothing_to_confirm")
	ErrInternal         = core.NewError("internal")
)

type Simple struct {
	Message string `json:"message"`
}

type ConfirmationRequested struct {
	Message    string    `json:"message"`
	Checkpoint time.Time `json:"checkpoint"`
}

type PdfAsset struct {
	Message  string    `json:"message"`
	AssetID  assets.ID `json:"asset_id"`
	Filename string    `json:"filename"`
}

type FrontendData struct {
	State string `json:"state"`
}
