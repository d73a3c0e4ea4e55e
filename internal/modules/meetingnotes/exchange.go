package meetingnotes

const (
	// exPadReady tells every runner that the pad exists.
	exPadReady = "pad_ready"
	// exAccessChanged tells the addressed runners that their writer status
	// changed.
	exAccessChanged = "access_changed"
)

type exMessage struct {
	Message string `json:"message"`
}
