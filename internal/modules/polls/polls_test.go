package polls_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/opentalk/internal/modules/polls"
	"github.com/dkeye/opentalk/internal/runner/runnertest"
	"github.com/dkeye/opentalk/internal/testutil"
)

func counts(t *testing.T, f testutil.Frame) []float64 {
	t.Helper()
	items, ok := f.Payload["results"].([]any)
	require.True(t, ok, "no results in %s", f.Raw)
	out := make([]float64, len(items))
	for i, item := range items {
		out[i] = item.(map[string]any)["count"].(float64)
	}
	return out
}

func startPoll(t *testing.T, owner *runnertest.Client, live, multiple bool) string {
	t.Helper()
	owner.Do(polls.Namespace, polls.ActionStart, map[string]any{
		"topic":           "Lunch?",
		"live":            live,
		"multiple_choice": multiple,
		"choices":         []string{"Pizza", "Salad", "Soup"},
		"duration":        60,
	})
	started := owner.Expect(t, polls.Namespace, polls.MsgStarted)
	return started.Payload["id"].(string)
}

func TestLivePoll_RevoteMovesCount(t *testing.T) {
	env := runnertest.New(t, polls.NewBuilder())
	owner, _ := env.JoinOwner()
	guest, _ := env.JoinGuest("Gina")
	id := startPoll(t, owner, true, false)
	guest.Expect(t, polls.Namespace, polls.MsgStarted)

	guest.Do(polls.Namespace, polls.ActionVote, map[string]any{"poll_id": id, "choices": []int{0}})
	guest.Expect(t, polls.Namespace, polls.MsgVoted)
	assert.Equal(t, []float64{1, 0, 0}, counts(t, owner.Expect(t, polls.Namespace, polls.MsgLiveUpdate)))
	guest.Expect(t, polls.Namespace, polls.MsgLiveUpdate)

	guest.Do(polls.Namespace, polls.ActionVote, map[string]any{"poll_id": id, "choices": []int{2}})
	assert.Equal(t, []float64{0, 0, 1}, counts(t, owner.Expect(t, polls.Namespace, polls.MsgLiveUpdate)))
	guest.Expect(t, polls.Namespace, polls.MsgLiveUpdate)

	owner.Do(polls.Namespace, polls.ActionVote, map[string]any{"poll_id": id, "choices": []int{2}})
	assert.Equal(t, []float64{0, 0, 2}, counts(t, guest.Expect(t, polls.Namespace, polls.MsgLiveUpdate)))

	owner.Do(polls.Namespace, polls.ActionFinish, map[string]any{"poll_id": id})
	done := guest.Expect(t, polls.Namespace, polls.MsgDone)
	assert.Equal(t, []float64{0, 0, 2}, counts(t, done))

	guest.Do(polls.Namespace, polls.ActionVote, map[string]any{"poll_id": id, "choices": []int{0}})
	e := guest.Expect(t, polls.Namespace, "error")
	assert.Equal(t, "invalid_poll_id", e.Payload["error"])
}

func TestPoll_ValidatesChoices(t *testing.T) {
	env := runnertest.New(t, polls.NewBuilder())
	owner, _ := env.JoinOwner()
	id := startPoll(t, owner, false, false)

	owner.Do(polls.Namespace, polls.ActionVote, map[string]any{"poll_id": id, "choices": []int{0, 1}})
	e := owner.Expect(t, polls.Namespace, "error")
	assert.Equal(t, "invalid_choice_count", e.Payload["error"])

	owner.Do(polls.Namespace, polls.ActionVote, map[string]any{"poll_id": id, "choices": []int{7}})
	e = owner.Expect(t, polls.Namespace, "error")
	assert.Equal(t, "invalid_choice_id", e.Payload["error"])

	owner.Do(polls.Namespace, polls.ActionStart, map[string]any{"topic": "Again", "choices": []string{"a", "b"}, "duration": 10})
	e = owner.Expect(t, polls.Namespace, "error")
	assert.Equal(t, "still_running", e.Payload["error"])

	owner.Do(polls.Namespace, polls.ActionVote, map[string]any{"poll_id": id, "choices": []int{1}})
	owner.Expect(t, polls.Namespace, polls.MsgVoted)
	owner.ExpectNone(t, polls.Namespace, polls.MsgLiveUpdate, 50*time.Millisecond)
}

func TestPoll_ExpiresWithResults(t *testing.T) {
	env := runnertest.New(t, polls.NewBuilder())
	owner, _ := env.JoinOwner()
	guest, _ := env.JoinGuest("Gina")
	id := startPoll(t, owner, false, true)
	guest.Expect(t, polls.Namespace, polls.MsgStarted)

	guest.Do(polls.Namespace, polls.ActionVote, map[string]any{"poll_id": id, "choices": []int{0, 1}})
	guest.Expect(t, polls.Namespace, polls.MsgVoted)

	env.Advance(60 * time.Second)
	for _, c := range []*runnertest.Client{owner, guest} {
		done := c.Expect(t, polls.Namespace, polls.MsgDone)
		assert.Equal(t, id, done.Payload["id"])
		assert.Equal(t, []float64{1, 1, 0}, counts(t, done))
	}
	owner.ExpectNone(t, polls.Namespace, polls.MsgDone, 50*time.Millisecond)
}

func TestPoll_LateJoinerSeesRunningPoll(t *testing.T) {
	env := runnertest.New(t, polls.NewBuilder())
	owner, _ := env.JoinOwner()
	id := startPoll(t, owner, false, false)

	env.Advance(20 * time.Second)
	_, success := env.JoinGuest("Late")
	data, ok := success.Payload[polls.Namespace].(map[string]any)
	require.True(t, ok, "no polls data in %s", success.Raw)
	assert.Equal(t, id, data["id"])
	assert.Equal(t, float64(40), data["remaining"])
}

func TestPoll_ModeratorOnly(t *testing.T) {
	env := runnertest.New(t, polls.NewBuilder())
	env.JoinOwner()
	guest, _ := env.JoinGuest("Gina")

	guest.Do(polls.Namespace, polls.ActionStart, map[string]any{"topic": "x", "choices": []string{"a", "b"}, "duration": 10})
	e := guest.Expect(t, polls.Namespace, "error")
	assert.Equal(t, "insufficient_permissions", e.Payload["error"])
}
