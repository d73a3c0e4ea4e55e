package legalvote

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dkeye/opentalk/internal/core"
	"github.com/dkeye/opentalk/internal/domain"
	"github.com/dkeye/opentalk/internal/testutil"
)

func TestWireRoundTrip(t *testing.T) {
	dur := uint64(120)
	abstain := uint64(1)
	initiator := domain.ParticipantID("p1")
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Minute)
	params := Parameters{
		Name:                "Budget",
		Topic:               "Approve the budget",
		Kind:                KindRollCall,
		AllowedParticipants: []domain.ParticipantID{"p1", "p2"},
		EnableAbstain:       true,
		AutoClose:           true,
		Initiator:           initiator,
		StartTime:           start,
	}
	results := Results{Yes: 2, No: 1, Abstain: &abstain}
	record := map[domain.ParticipantID]Option{"p1": OptionYes, "p2": OptionAbstain}
	tests := map[string]func(t *testing.T){
		"start": func(t *testing.T) {
			testutil.RoundTripIncoming(t, Namespace, Start{
				Action:              ActionStart,
				Name:                "Budget",
				Subtitle:            "Q3",
				Kind:                KindPseudonymous,
				AllowedParticipants: []domain.ParticipantID{"p1", "p2"},
				EnableAbstain:       true,
				Duration:            &dur,
				CreatePDF:           true,
			})
		},
		"stop": func(t *testing.T) {
			testutil.RoundTripIncoming(t, Namespace, Stop{Action: ActionStop, VoteID: "v1"})
		},
		"cancel": func(t *testing.T) {
			testutil.RoundTripIncoming(t, Namespace, Cancel{Action: ActionCancel, VoteID: "v1", Reason: "wrong topic"})
		},
		"vote": func(t *testing.T) {
			testutil.RoundTripIncoming(t, Namespace, Vote{Action: ActionVote, VoteID: "v1", Option: OptionNo, Token: "tok"})
		},
		"generate pdf": func(t *testing.T) {
			testutil.RoundTripIncoming(t, Namespace, GeneratePDF{Action: ActionGeneratePDF, VoteID: "v1"})
		},
		"started": func(t *testing.T) {
			testutil.RoundTripOutgoing(t, Namespace, Started{Message: MsgStarted, VoteID: "v1", Params: params, Token: "tok"})
		},
		"voted": func(t *testing.T) {
			testutil.RoundTripOutgoing(t, Namespace, Voted{Message: MsgVoted, VoteID: "v1", Response: "success", Option: OptionYes, ConsumedToken: "tok"})
		},
		"updated": func(t *testing.T) {
			testutil.RoundTripOutgoing(t, Namespace, Updated{Message: MsgUpdated, VoteID: "v1", Results: results, VotingRecord: record})
		},
		"stopped": func(t *testing.T) {
			testutil.RoundTripOutgoing(t, Namespace, Stopped{
				Message:      MsgStopped,
				VoteID:       "v1",
				Kind:         StopKind{Kind: StopByParticipant, Issuer: &initiator},
				Results:      results,
				VotingRecord: record,
				EndTime:      end,
			})
		},
		"canceled": func(t *testing.T) {
			testutil.RoundTripOutgoing(t, Namespace, Canceled{Message: MsgCanceled, VoteID: "v1", Reason: "wrong topic", Issuer: initiator})
		},
		"pdf asset": func(t *testing.T) {
			testutil.RoundTripOutgoing(t, Namespace, PdfAsset{Message: MsgPdfAsset, VoteID: "v1", AssetID: "a1", Filename: "vote_protocol.pdf"})
		},
		"exchange started": func(t *testing.T) {
			testutil.RoundTripExchange(t, Namespace, exStartedMessage{Message: exStarted, VoteID: "v1"})
		},
		"exchange stopped expired": func(t *testing.T) {
			testutil.RoundTripExchange(t, Namespace, Stopped{Message: MsgStopped, VoteID: "v1", Kind: StopKind{Kind: StopExpired}, Results: Results{Yes: 1}, EndTime: end})
		},
	}
	for _, e := range []*core.Error{
		ErrVoteAlreadyActive,
		ErrNoVoteActive,
		ErrInvalidVoteID,
		ErrIneligible,
		ErrInvalidOption,
		ErrAllowlistContainsGuests,
		ErrInternal,
	} {
		tests["error "+e.Code] = func(t *testing.T) { testutil.RoundTripError(t, Namespace, e) }
	}
	for name, fn := range tests {
		t.Run(name, fn)
	}
}

func TestStartDurationBounds(t *testing.T) {
	for _, tt := range []struct {
		duration uint64
		ok       bool
	}{
		{5, true},
		{86400, true},
		{4, false},
		{86401, false},
		{1 << 62, false},
	} {
		raw := json.RawMessage(fmt.Sprintf(`{"action":"start","name":"Budget","kind":"roll_call","allowed_participants":["p1"],"duration":%d}`, tt.duration))
		_, err := core.Decode[Start](raw)
		if tt.ok {
			assert.NoError(t, err, tt.duration)
		} else {
			assert.ErrorIs(t, err, core.ErrInvalidJSON, tt.duration)
		}
	}
}
