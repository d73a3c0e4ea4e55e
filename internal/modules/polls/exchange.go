package polls

const exStarted = "started"

type exStartedMessage struct {
	Message string `json:"message"`
	Poll    Poll   `json:"poll"`
}
