package legalvote

import (
	"time"

	"github.com/dkeye/opentalk/internal/assets"
	"github.com/dkeye/opentalk/internal/core"
	"github.com/dkeye/opentalk/internal/domain"
)

const (
	MsgStarted  = "started"
	MsgVoted    = "voted"
	MsgUpdated  = "updated"
	MsgStopped  = "stopped"
	MsgCanceled = "canceled"
	MsgPdfAsset = "pdf_asset"
)

var (
	ErrVoteAlreadyActive       = core.NewError("vote_already_active")
	ErrNoVoteActive            = core.NewError("no_vote_active")
	ErrInvalidVoteID           = core.NewError("invalid_vote_id")
	ErrIneligible              = core.NewError("ineligible")
	ErrInvalidOption           = core.NewError("invalid_option")
	ErrAllowlistContainsGuests = core.NewError("allowlist_contains_guests")
	ErrInternal                = core.NewError("internal")
)

// Started is sent to every participant; Token is only set for those allowed
// to vote who have not voted yet.
type Started struct {
	Message string     `json:"message"`
	VoteID  string     `json:"vote_id"`
	Params  Parameters `json:"parameters"`
	Token   string     `json:"token,omitempty"`
	Voted   bool       `json:"voted"`
}

type Voted struct {
	Message       string `json:"message"`
	VoteID        string `json:"vote_id"`
	Response      string `json:"response"`
	Option        Option `json:"vote_option"`
	ConsumedToken string `json:"consumed_token"`
}

type Results struct {
	Yes     uint64  `json:"yes"`
	No      uint64  `json:"no"`
	Abstain *uint64 `json:"abstain,omitempty"`
}

type Updated struct {
	Message      string                          `json:"message"`
	VoteID       string                          `json:"vote_id"`
	Results      Results                         `json:"results"`
	VotingRecord map[domain.ParticipantID]Option `json:"voting_record,omitempty"`
}

const (
	StopByParticipant = "by_participant"
	StopAuto          = "auto"
	StopExpired       = "expired"
)

type StopKind struct {
	Kind   string                `json:"kind"`
	Issuer *domain.ParticipantID `json:"issuer,omitempty"`
}

type Stopped struct {
	Message      string                          `json:"message"`
	VoteID       string                          `json:"vote_id"`
	Kind         StopKind                        `json:"kind"`
	Results      Results                         `json:"results"`
	VotingRecord map[domain.ParticipantID]Option `json:"voting_record,omitempty"`
	EndTime      time.Time                       `json:"end_time"`
}

type Canceled struct {
	Message string               `json:"message"`
	VoteID  string               `json:"vote_id"`
	Reason  string               `json:"reason"`
	Issuer  domain.ParticipantID `json:"issuer"`
}

type PdfAsset struct {
	Message  string    `json:"message"`
	VoteID   string    `json:"vote_id"`
	AssetID  assets.ID `json:"asset_id"`
	Filename string    `json:"filename"`
}
