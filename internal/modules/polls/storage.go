package polls

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/samber/lo"

	"github.com/dkeye/opentalk/internal/domain"
	"github.com/dkeye/opentalk/internal/storage"
)

// expiryGrace keeps the stored poll past its end so the runners' expiry
// handlers still find it.
const expiryGrace = time.Minute

type Poll struct {
	ID             string        `json:"id"`
	Topic          string        `json:"topic"`
	Live           bool          `json:"live"`
	MultipleChoice bool          `json:"multiple_choice"`
	Choices        []Choice      `json:"choices"`
	Started        time.Time     `json:"started"`
	Duration       time.Duration `json:"duration"`
}

func (p Poll) endsAt() time.Time { return p.Started.Add(p.Duration) }

func (p Poll) hasChoice(id ChoiceID) bool {
	return lo.ContainsBy(p.Choices, func(c Choice) bool { return c.ID == id })
}

func (p Poll) started(now time.Time) Started {
	return Started{
		Message:        MsgStarted,
		ID:             p.ID,
		Topic:          p.Topic,
		Live:           p.Live,
		MultipleChoice: p.MultipleChoice,
		Choices:        p.Choices,
		Duration:       uint64(p.Duration / time.Second),
		Remaining:      remaining(p.endsAt(), now),
	}
}

func currentKey(room domain.SignalingRoomID) string {
	return storage.RoomKey(room, Namespace, "current")
}

func resultsKey(room domain.SignalingRoomID, poll string) string {
	return storage.RoomKey(room, Namespace, "poll="+poll, "results")
}

func votesKey(room domain.SignalingRoomID, poll string) string {
	return storage.RoomKey(room, Namespace, "poll="+poll, "votes")
}

func createCurrent(ctx context.Context, b storage.Backend, room domain.SignalingRoomID, p Poll) (bool, error) {
	return storage.SetNXJSON(ctx, b, currentKey(room), p, p.Duration+expiryGrace)
}

// loadCurrent also returns the stored bytes for a later CompareAndDelete.
func loadCurrent(ctx context.Context, b storage.Backend, room domain.SignalingRoomID) (Poll, []byte, bool, error) {
	raw, err := b.Get(ctx, currentKey(room))
	if errors.Is(err, storage.ErrNotFound) {
		return Poll{}, nil, false, nil
	}
	if err != nil {
		return Poll{}, nil, false, err
	}
	var p Poll
	if err := json.Unmarshal(raw, &p); err != nil {
		return Poll{}, nil, false, err
	}
	return p, raw, true, nil
}

// castVote replaces the participant's previous choices. The counters of the
// old choices are decremented in the same batch.
func castVote(ctx context.Context, b storage.Backend, room domain.SignalingRoomID, poll string, id domain.ParticipantID, choices []ChoiceID) error {
	previous, _, err := storage.HGetJSON[[]ChoiceID](ctx, b, votesKey(room, poll), string(id))
	if err != nil {
		return err
	}
	raw, err := json.Marshal(choices)
	if err != nil {
		return err
	}
	results := resultsKey(room, poll)
	ops := []storage.Op{{Kind: storage.OpHSet, Key: votesKey(room, poll), Field: string(id), Value: raw}}
	for _, c := range previous {
		ops = append(ops, storage.Op{Kind: storage.OpHIncrBy, Key: results, Field: choiceField(c), Delta: -1})
	}
	for _, c := range choices {
		ops = append(ops, storage.Op{Kind: storage.OpHIncrBy, Key: results, Field: choiceField(c), Delta: 1})
	}
	_, err = b.Batch(ctx, ops)
	return err
}

func loadResults(ctx context.Context, b storage.Backend, room domain.SignalingRoomID, p Poll) ([]Item, error) {
	counts, err := b.HGetAll(ctx, resultsKey(room, p.ID))
	if err != nil {
		return nil, err
	}
	return lo.Map(p.Choices, func(c Choice, _ int) Item {
		n, _ := strconv.ParseInt(string(counts[choiceField(c.ID)]), 10, 64)
		return Item{ID: c.ID, Count: n}
	}), nil
}

func purgePoll(ctx context.Context, b storage.Backend, room domain.SignalingRoomID, poll string) error {
	return b.Del(ctx, resultsKey(room, poll), votesKey(room, poll))
}

func purge(ctx context.Context, b storage.Backend, room domain.SignalingRoomID) error {
	p, _, found, err := loadCurrent(ctx, b, room)
	if err != nil {
		return err
	}
	if found {
		if err := purgePoll(ctx, b, room, p.ID); err != nil {
			return err
		}
	}
	return b.Del(ctx, currentKey(room))
}

func choiceField(id ChoiceID) string {
	return strconv.FormatUint(uint64(id), 10)
}
