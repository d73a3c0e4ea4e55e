package meetingnotes

import (
	"github.com/dkeye/opentalk/internal/assets"
	"github.com/dkeye/opentalk/internal/core"
)

const (
	MsgReadURL  = "read_url"
	MsgWriteURL = "write_url"
	MsgPdfAsset = "pdf_asset"
)

var (
	ErrCurrentlyInitializing = core.NewError("currently_initializing")
	ErrNotInitialized        = core.NewError("not_initialized")
	ErrInternal              = core.NewError("internal")
)

type AccessURL struct {
	Message string `json:"message"`
	URL     string `json:"url"`
}

type PdfAsset struct {
	Message  string    `json:"message"`
	AssetID  assets.ID `json:"asset_id"`
	Filename string    `json:"filename"`
}

type FrontendData struct {
	ReadURL string `json:"read_url"`
}
