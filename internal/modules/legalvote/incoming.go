package legalvote

import "github.com/dkeye/opentalk/internal/domain"

const (
	ActionStart       = "start"
	ActionStop        = "stop"
	ActionCancel      = "cancel"
	ActionVote        = "vote"
	ActionGeneratePDF = "generate_pdf"
)

type Kind string

const (
	KindRollCall     Kind = "roll_call"
	KindPseudonymous Kind = "pseudonymous"
	KindLiveRollCall Kind = "live_roll_call"
)

// PublicRecord reports whether ballots are attributed to participants.
func (k Kind) PublicRecord() bool { return k != KindPseudonymous }

type Option string

const (
	OptionYes     Option = "yes"
	OptionNo      Option = "no"
	OptionAbstain Option = "abstain"
)

// Start opens a vote. Duration is in seconds, at most a day.
type Start struct {
	Action              string                 `json:"action"`
	Name                string                 `json:"name" validate:"required,max=150"`
	Subtitle            string                 `json:"subtitle,omitempty" validate:"max=255"`
	Topic               string                 `json:"topic,omitempty" validate:"max=500"`
	Kind                Kind                   `json:"kind" validate:"oneof=roll_call pseudonymous live_roll_call"`
	AllowedParticipants []domain.ParticipantID `json:"allowed_participants" validate:"min=1,max=1000,dive,required"`
	EnableAbstain       bool                   `json:"enable_abstain"`
	AutoClose           bool                   `json:"auto_close"`
	Duration            *uint64                `json:"duration,omitempty" validate:"omitempty,min=5,max=86400"`
	CreatePDF           bool                   `json:"create_pdf"`
}

type Stop struct {
	Action string `json:"action"`
	VoteID string `json:"vote_id" validate:"required"`
}

type Cancel struct {
	Action string `json:"action"`
	VoteID string `json:"vote_id" validate:"required"`
	Reason string `json:"reason" validate:"required,max=255"`
}

type Vote struct {
	Action string `json:"action"`
	VoteID string `json:"vote_id" validate:"required"`
	Option Option `json:"option" validate:"oneof=yes no abstain"`
	Token  string `json:"token" validate:"required"`
}

type GeneratePDF struct {
	Action string `json:"action"`
	VoteID string `json:"vote_id" validate:"required"`
}
