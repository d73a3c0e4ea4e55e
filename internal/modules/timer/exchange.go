package timer

const exStarted = "started"

// exStartedMessage carries the stored state so every runner can schedule the
// expiry itself.
type exStartedMessage struct {
	Message string `json:"message"`
	Timer   State  `json:"timer"`
}
