package moderation

// Messages addressed to a single participant's runner.
const (
	exKicked            = "kicked"
	exBanned            = "banned"
	exSentToWaitingRoom = "sent_to_waiting_room"
	exResetRaisedHands  = "reset_raised_hands"
)
