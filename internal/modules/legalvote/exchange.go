package legalvote

import (
	"github.com/dkeye/opentalk/internal/assets"
	"github.com/dkeye/opentalk/internal/domain"
)

// exStarted only names the vote; receivers load the parameters and their
// own token from storage.
const exStarted = "started"

type exStartedMessage struct {
	Message string `json:"message"`
	VoteID  string `json:"vote_id"`
}

type expired struct {
	voteID string
}

// pdfReady is the result of a report job.
type pdfReady struct {
	voteID    string
	requester domain.ParticipantID
	meta      assets.Meta
	err       error
}
