package legalvote

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/dkeye/opentalk/internal/domain"
	"github.com/dkeye/opentalk/internal/storage"
)

// Parameters is the stored description of a vote.
type Parameters struct {
	Name                string                 `json:"name"`
	Subtitle            string                 `json:"subtitle,omitempty"`
	Topic               string                 `json:"topic,omitempty"`
	Kind                Kind                   `json:"kind"`
	AllowedParticipants []domain.ParticipantID `json:"allowed_participants"`
	EnableAbstain       bool                   `json:"enable_abstain"`
	AutoClose           bool                   `json:"auto_close"`
	CreatePDF           bool                   `json:"create_pdf"`
	Initiator           domain.ParticipantID   `json:"initiator"`
	StartTime           time.Time              `json:"start_time"`
	EndTime             *time.Time             `json:"end_time,omitempty"`
}

// ProtocolEntry is one line of the append-only vote protocol.
type ProtocolEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Event     Event     `json:"event"`
}

const (
	EventStart        = "start"
	EventVote         = "vote"
	EventStop         = "stop"
	EventCancel       = "cancel"
	EventFinalResults = "final_results"
)

type Event struct {
	Kind        string                `json:"kind"`
	Issuer      *domain.ParticipantID `json:"issuer,omitempty"`
	Participant *domain.ParticipantID `json:"participant,omitempty"`
	Token       string                `json:"token,omitempty"`
	Option      Option                `json:"option,omitempty"`
	StopKind    string                `json:"stop_kind,omitempty"`
	Reason      string                `json:"reason,omitempty"`
	Results     *Results              `json:"results,omitempty"`
}

const fieldTotal = "total"

func currentKey(room domain.SignalingRoomID) string {
	return storage.RoomKey(room, Namespace, "current")
}

func indexKey(room domain.SignalingRoomID) string {
	return storage.RoomKey(room, Namespace, "votes")
}

func voteKey(room domain.SignalingRoomID, vote string, purpose string) string {
	return storage.RoomKey(room, Namespace, "vote="+vote, purpose)
}

func newToken() string {
	b := make([]byte, 10)
	_, _ = rand.Read(b)
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(b)
}

func currentVote(ctx context.Context, b storage.Backend, room domain.SignalingRoomID) (string, bool, error) {
	raw, err := b.Get(ctx, currentKey(room))
	if errors.Is(err, storage.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(raw), true, nil
}

// create claims the room's vote slot and stores everything a vote needs.
// Tokens are keyed by participant.
func create(ctx context.Context, b storage.Backend, room domain.SignalingRoomID, id string, p Parameters, ttl time.Duration) (bool, error) {
	ok, err := b.SetNX(ctx, currentKey(room), []byte(id), ttl)
	if err != nil || !ok {
		return false, err
	}
	params, err := json.Marshal(p)
	if err != nil {
		return false, err
	}
	start, err := json.Marshal(ProtocolEntry{Timestamp: p.StartTime, Event: Event{Kind: EventStart, Issuer: &p.Initiator}})
	if err != nil {
		return false, err
	}
	ops := []storage.Op{
		{Kind: storage.OpSet, Key: voteKey(room, id, "params"), Value: params},
		{Kind: storage.OpSAdd, Key: indexKey(room), Value: []byte(id)},
		{Kind: storage.OpRPush, Key: voteKey(room, id, "protocol"), Value: start},
	}
	for _, pid := range p.AllowedParticipants {
		ops = append(ops, storage.Op{Kind: storage.OpHSet, Key: voteKey(room, id, "tokens"), Field: string(pid), Value: []byte(newToken())})
	}
	_, err = b.Batch(ctx, ops)
	return true, err
}

func loadParams(ctx context.Context, b storage.Backend, room domain.SignalingRoomID, id string) (Parameters, bool, error) {
	return storage.GetJSON[Parameters](ctx, b, voteKey(room, id, "params"))
}

func token(ctx context.Context, b storage.Backend, room domain.SignalingRoomID, id string, p domain.ParticipantID) (string, bool, error) {
	raw, err := b.HGet(ctx, voteKey(room, id, "tokens"), string(p))
	if errors.Is(err, storage.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(raw), true, nil
}

func hasVoted(ctx context.Context, b storage.Backend, room domain.SignalingRoomID, id string, p domain.ParticipantID) (bool, error) {
	_, err := b.HGet(ctx, voteKey(room, id, "ballots"), string(p))
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// castBallot records the ballot of p once and returns the number of ballots
// cast so far.
func castBallot(ctx context.Context, b storage.Backend, room domain.SignalingRoomID, id string, p domain.ParticipantID, option Option, entry ProtocolEntry) (int64, bool, error) {
	first, err := b.HSetNX(ctx, voteKey(room, id, "ballots"), string(p), []byte(option))
	if err != nil || !first {
		return 0, false, err
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return 0, false, err
	}
	results, err := b.Batch(ctx, []storage.Op{
		{Kind: storage.OpHDel, Key: voteKey(room, id, "tokens"), Field: string(p)},
		{Kind: storage.OpHIncrBy, Key: voteKey(room, id, "results"), Field: string(option), Delta: 1},
		{Kind: storage.OpHIncrBy, Key: voteKey(room, id, "results"), Field: fieldTotal, Delta: 1},
		{Kind: storage.OpRPush, Key: voteKey(room, id, "protocol"), Value: raw},
	})
	if err != nil {
		return 0, false, err
	}
	return results[2].Int, true, nil
}

func loadResults(ctx context.Context, b storage.Backend, room domain.SignalingRoomID, id string, p Parameters) (Results, error) {
	counts, err := b.HGetAll(ctx, voteKey(room, id, "results"))
	if err != nil {
		return Results{}, err
	}
	n := func(o Option) uint64 {
		v, _ := strconv.ParseUint(string(counts[string(o)]), 10, 64)
		return v
	}
	r := Results{Yes: n(OptionYes), No: n(OptionNo)}
	if p.EnableAbstain {
		abstain := n(OptionAbstain)
		r.Abstain = &abstain
	}
	return r, nil
}

func votingRecord(ctx context.Context, b storage.Backend, room domain.SignalingRoomID, id string) (map[domain.ParticipantID]Option, error) {
	ballots, err := b.HGetAll(ctx, voteKey(room, id, "ballots"))
	if err != nil {
		return nil, err
	}
	out := make(map[domain.ParticipantID]Option, len(ballots))
	for p, o := range ballots {
		out[domain.ParticipantID(p)] = Option(o)
	}
	return out, nil
}

func appendProtocol(ctx context.Context, b storage.Backend, room domain.SignalingRoomID, id string, entries ...any) error {
	return storage.RPushJSON(ctx, b, voteKey(room, id, "protocol"), entries...)
}

// Protocol returns the recorded protocol of a vote.
func Protocol(ctx context.Context, b storage.Backend, room domain.SignalingRoomID, id string) ([]ProtocolEntry, error) {
	return storage.LRangeJSON[ProtocolEntry](ctx, b, voteKey(room, id, "protocol"))
}

func isKnown(ctx context.Context, b storage.Backend, room domain.SignalingRoomID, id string) (bool, error) {
	return b.SIsMember(ctx, indexKey(room), id)
}

func purge(ctx context.Context, b storage.Backend, room domain.SignalingRoomID) error {
	ids, err := b.SMembers(ctx, indexKey(room))
	if err != nil {
		return err
	}
	keys := []string{currentKey(room), indexKey(room)}
	for _, id := range ids {
		for _, purpose := range []string{"params", "tokens", "ballots", "results", "protocol"} {
			keys = append(keys, voteKey(room, id, purpose))
		}
	}
	return b.Del(ctx, keys...)
}
