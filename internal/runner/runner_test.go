package runner_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/opentalk/internal/control"
	"github.com/dkeye/opentalk/internal/core"
	"github.com/dkeye/opentalk/internal/domain"
	"github.com/dkeye/opentalk/internal/exchange"
	"github.com/dkeye/opentalk/internal/runner"
	"github.com/dkeye/opentalk/internal/runner/runnertest"
	"github.com/dkeye/opentalk/internal/storage"
	"github.com/dkeye/opentalk/internal/testutil"
)

func participants(t *testing.T, f testutil.Frame) map[string]map[string]any {
	t.Helper()
	list, ok := f.Payload["participants"].([]any)
	require.True(t, ok, "participants missing: %s", f.Raw)
	out := make(map[string]map[string]any, len(list))
	for _, p := range list {
		entry := p.(map[string]any)
		out[entry["id"].(string)] = entry
	}
	return out
}

func controlOf(entry map[string]any) map[string]any {
	return entry[control.Namespace].(map[string]any)
}

func publishControl(t *testing.T, env *runnertest.Env, key string, payload any) {
	t.Helper()
	msg, err := exchange.NewMessage(control.Namespace, env.Clock.Now(), payload)
	require.NoError(t, err)
	require.NoError(t, env.Hub.Publish(context.Background(), key, msg))
}

func TestJoinSuccess_ListsEveryPeer(t *testing.T) {
	env := runnertest.New(t)
	owner, first := env.JoinOwner()
	assert.Empty(t, participants(t, first))
	assert.Equal(t, "moderator", first.Payload["role"])
	assert.Equal(t, "Olivia Owner", first.Payload["display_name"])
	assert.Equal(t, true, first.Payload["is_room_owner"])

	guest, second := env.JoinGuest("  Gina   Guest ")
	peers := participants(t, second)
	require.Len(t, peers, 1)
	ctl := controlOf(peers[string(owner.ID)])
	assert.Equal(t, "Olivia Owner", ctl["display_name"])
	assert.Equal(t, "moderator", ctl["role"])
	assert.Equal(t, "user", ctl["participation_kind"])
	assert.Equal(t, "Gina Guest", second.Payload["display_name"])
	assert.Equal(t, "guest", second.Payload["role"])

	joined := owner.Expect(t, control.Namespace, control.MsgJoined)
	assert.Equal(t, string(guest.ID), joined.Payload["id"])
	assert.Equal(t, "Gina Guest", joined.Payload[control.Namespace].(map[string]any)["display_name"])
}

func TestMembership_FollowsJoinAndLeave(t *testing.T) {
	env := runnertest.New(t)
	ctx := context.Background()
	room := domain.NewSignalingRoomID(runnertest.Room, "")

	owner, _ := env.JoinOwner()
	guest, _ := env.JoinGuest("Gina")
	owner.Expect(t, control.Namespace, control.MsgJoined)

	ids, err := storage.Participants(ctx, env.Store, room)
	require.NoError(t, err)
	assert.ElementsMatch(t, []domain.ParticipantID{owner.ID, guest.ID}, ids)

	guest.Leave(t)
	left := owner.Expect(t, control.Namespace, control.MsgLeft)
	assert.Equal(t, string(guest.ID), left.Payload["id"])
	ids, err = storage.Participants(ctx, env.Store, room)
	require.NoError(t, err)
	assert.Equal(t, []domain.ParticipantID{owner.ID}, ids)

	leftAt, found, err := storage.GetAttribute[time.Time](ctx, env.Store, room, storage.ScopeLocal, guest.ID, control.AttrLeftAt)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, env.Clock.Now().Equal(leftAt))

	owner.Leave(t)
	n, err := storage.ParticipantCount(ctx, env.Store, room)
	require.NoError(t, err)
	assert.Zero(t, n)
	members, err := env.Store.SMembers(ctx, storage.GlobalRoomKey(runnertest.Room, "all_participants"))
	require.NoError(t, err)
	assert.Empty(t, members)

	// The last leaver purges both scopes.
	_, found, err = storage.GetAttribute[string](ctx, env.Store, room, storage.ScopeGlobal, owner.ID, control.AttrDisplayName)
	require.NoError(t, err)
	assert.False(t, found)
	_, found, err = storage.GetAttribute[bool](ctx, env.Store, room, storage.ScopeLocal, owner.ID, control.AttrHandIsUp)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, core.CloseNormal, owner.CloseCode())
}

func TestParticipantIDInUse(t *testing.T) {
	env := runnertest.New(t)
	issued, data := env.Issue(domain.GuestParticipant(), "", nil)
	first := env.Run(issued, data)
	first.Command(control.Namespace, control.Join{Action: control.ActionJoin, DisplayName: "A"})
	first.Expect(t, control.Namespace, control.MsgJoinSuccess)

	second := env.Run(issued, data)
	env.AdvanceUntil(t, second.Closed())
	assert.Equal(t, core.CloseParticipantIDInUse, second.WaitClosed(t))

	// The first session is untouched.
	first.Command(control.Namespace, map[string]string{"action": control.ActionRaiseHand})
	first.ExpectNone(t, control.Namespace, "error", 50*time.Millisecond)
}

func TestModeratorRole_GrantAndRevoke(t *testing.T) {
	env := runnertest.New(t)
	owner, _ := env.JoinOwner()
	guest, _ := env.JoinGuest("Gina")
	owner.Expect(t, control.Namespace, control.MsgJoined)

	guest.Do(control.Namespace, control.ActionGrantModeratorRole, map[string]any{"target": owner.ID})
	e := guest.Expect(t, control.Namespace, "error")
	assert.Equal(t, "insufficient_permissions", e.Payload["error"])

	owner.Do(control.Namespace, control.ActionGrantModeratorRole, map[string]any{"target": guest.ID})
	updated := guest.Expect(t, control.Namespace, control.MsgRoleUpdated)
	assert.Equal(t, "moderator", updated.Payload["new_role"])
	peer := owner.Expect(t, control.Namespace, control.MsgUpdate)
	assert.Equal(t, "moderator", peer.Payload[control.Namespace].(map[string]any)["role"])

	owner.Do(control.Namespace, control.ActionGrantModeratorRole, map[string]any{"target": guest.ID})
	e = owner.Expect(t, control.Namespace, "error")
	assert.Equal(t, "nothing_to_do", e.Payload["error"])

	guest.Do(control.Namespace, control.ActionRevokeModeratorRole, map[string]any{"target": owner.ID})
	e = guest.Expect(t, control.Namespace, "error")
	assert.Equal(t, "target_is_room_owner", e.Payload["error"])

	owner.Do(control.Namespace, control.ActionRevokeModeratorRole, map[string]any{"target": guest.ID})
	updated = guest.Expect(t, control.Namespace, control.MsgRoleUpdated)
	assert.Equal(t, "guest", updated.Payload["new_role"])
}

func TestWaitingRoom_AcceptThenEnter(t *testing.T) {
	env := runnertest.New(t)
	env.Directory.PutRoom(domain.RoomInfo{ID: runnertest.Room, CreatedBy: runnertest.Owner, WaitingRoom: true})
	ctx := context.Background()

	owner, _ := env.JoinOwner()
	guest := env.Connect(domain.GuestParticipant())
	guest.Command(control.Namespace, control.Join{Action: control.ActionJoin, DisplayName: "Gina"})
	guest.Expect(t, control.Namespace, control.MsgInWaitingRoom)

	waiting, err := control.IsWaiting(ctx, env.Store, runnertest.Room, guest.ID)
	require.NoError(t, err)
	assert.True(t, waiting)

	guest.Do(control.Namespace, control.ActionEnterRoom, nil)
	e := guest.Expect(t, control.Namespace, "error")
	assert.Equal(t, "not_accepted_or_not_in_waiting_room", e.Payload["error"])

	require.NoError(t, control.Accept(ctx, env.Store, runnertest.Room, guest.ID))
	publishControl(t, env, exchange.GlobalRoomParticipant(runnertest.Room, guest.ID), control.Msg(control.ExAccepted))
	guest.Expect(t, control.Namespace, control.MsgAccepted)

	guest.Do(control.Namespace, control.ActionEnterRoom, nil)
	success := guest.Expect(t, control.Namespace, control.MsgJoinSuccess)
	assert.Contains(t, participants(t, success), string(owner.ID))

	waiting, err = control.IsWaiting(ctx, env.Store, runnertest.Room, guest.ID)
	require.NoError(t, err)
	assert.False(t, waiting)
	owner.Expect(t, control.Namespace, control.MsgJoined)
}

func TestRecorder_IsInvisible(t *testing.T) {
	env := runnertest.New(t)
	owner, _ := env.JoinOwner()
	rec, success := env.Join(domain.RecorderParticipant(), "ignored")
	assert.Equal(t, domain.RecorderName, success.Payload["display_name"])
	owner.ExpectNone(t, control.Namespace, control.MsgJoined, 50*time.Millisecond)

	_, guestSuccess := env.JoinGuest("Gina")
	peers := participants(t, guestSuccess)
	assert.Contains(t, peers, string(owner.ID))
	assert.NotContains(t, peers, string(rec.ID))

	rec.Leave(t)
	owner.ExpectNone(t, control.Namespace, control.MsgLeft, 50*time.Millisecond)
}

func TestRaiseHand(t *testing.T) {
	env := runnertest.New(t)
	ctx := context.Background()
	owner, _ := env.JoinOwner()
	guest, _ := env.JoinGuest("Gina")
	owner.Expect(t, control.Namespace, control.MsgJoined)

	guest.Do(control.Namespace, control.ActionRaiseHand, nil)
	update := owner.Expect(t, control.Namespace, control.MsgUpdate)
	assert.Equal(t, true, update.Payload[control.Namespace].(map[string]any)["hand_is_up"])

	require.NoError(t, control.SetRaiseHandsEnabled(ctx, env.Store, runnertest.Room, false))
	guest.Do(control.Namespace, control.ActionRaiseHand, nil)
	e := guest.Expect(t, control.Namespace, "error")
	assert.Equal(t, "raise_hands_disabled", e.Payload["error"])

	// Lowering stays possible.
	guest.Do(control.Namespace, control.ActionLowerHand, nil)
	update = owner.Expect(t, control.Namespace, control.MsgUpdate)
	assert.Equal(t, false, update.Payload[control.Namespace].(map[string]any)["hand_is_up"])
}

func TestProtocolErrors(t *testing.T) {
	env := runnertest.New(t)
	c := env.Connect(domain.GuestParticipant())

	c.Command("chat", map[string]string{"action": "send_message"})
	e := c.Expect(t, control.Namespace, "error")
	assert.Equal(t, "not_yet_joined", e.Payload["error"])

	c.SendRaw([]byte(`{"namespace":`))
	e = c.Expect(t, control.Namespace, "error")
	assert.Equal(t, "invalid_json", e.Payload["error"])

	c.Do(control.Namespace, "dance", nil)
	e = c.Expect(t, control.Namespace, "error")
	assert.Equal(t, "invalid_action", e.Payload["error"])

	c.Command(control.Namespace, control.Join{Action: control.ActionJoin, DisplayName: "A"})
	c.Expect(t, control.Namespace, control.MsgJoinSuccess)
	c.Command(control.Namespace, control.Join{Action: control.ActionJoin})
	e = c.Expect(t, control.Namespace, "error")
	assert.Equal(t, "already_joined", e.Payload["error"])

	c.Command("nope", map[string]string{"action": "x"})
	e = c.Expect(t, control.Namespace, "error")
	assert.Equal(t, "invalid_namespace", e.Payload["error"])
}

func TestTooManyViolationsCloses(t *testing.T) {
	env := runnertest.New(t)
	env.Options.MaxViolations = 2
	c := env.Connect(domain.GuestParticipant())
	for i := 0; i < 3; i++ {
		c.SendRaw([]byte(`garbage`))
	}
	assert.Equal(t, core.CloseServerError, c.WaitClosed(t))
}

func TestRoomDeleted_ClosesEverySession(t *testing.T) {
	env := runnertest.New(t)
	owner, _ := env.JoinOwner()
	guest, _ := env.JoinGuest("Gina")

	publishControl(t, env, exchange.GlobalRoomParticipants(runnertest.Room), control.Msg(control.ExRoomDeleted))
	for _, c := range []*runnertest.Client{owner, guest} {
		c.Expect(t, control.Namespace, control.MsgRoomDeleted)
		assert.Equal(t, core.CloseRoomClosed, c.WaitClosed(t))
	}
}

func TestResumedSessionKeepsRole(t *testing.T) {
	env := runnertest.New(t)
	owner, _ := env.JoinOwner()
	guest, _ := env.JoinGuest("Gina")
	owner.Do(control.Namespace, control.ActionGrantModeratorRole, map[string]any{"target": guest.ID})
	guest.Expect(t, control.Namespace, control.MsgRoleUpdated)

	token := guest.Issued.Resumption
	guest.Leave(t)

	issued, data := env.Issue(domain.GuestParticipant(), "", &token)
	require.True(t, data.Resuming)
	assert.Equal(t, guest.ID, issued.ParticipantID)
	again := env.Run(issued, data)
	again.Command(control.Namespace, control.Join{Action: control.ActionJoin, DisplayName: "Gina"})
	success := again.Expect(t, control.Namespace, control.MsgJoinSuccess)
	assert.Equal(t, "moderator", success.Payload["role"])
}

func TestNew_DefaultsOptions(t *testing.T) {
	r := runner.New(runner.Deps{}, testutil.NewFakeConn(), domain.TicketData{ParticipantID: "p", Room: "r"})
	assert.NotEmpty(t, r.ID())
}

// teardownRecorder is a module that records every OnDestroy call.
type teardownRecorder struct {
	mu    sync.Mutex
	calls []teardown
}

type teardown struct {
	id         domain.ParticipantID
	last       bool
	lastGlobal bool
}

func (b *teardownRecorder) Namespace() string { return "teardown" }

func (b *teardownRecorder) Init(ctx *core.InitContext) (core.Module, error) {
	return &teardownModule{rec: b, id: ctx.ID()}, nil
}

func (b *teardownRecorder) snapshot() []teardown {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]teardown(nil), b.calls...)
}

type teardownModule struct {
	rec *teardownRecorder
	id  domain.ParticipantID
}

func (m *teardownModule) Namespace() string { return "teardown" }

func (m *teardownModule) OnEvent(*core.ModuleContext, core.Event) error { return nil }

func (m *teardownModule) OnDestroy(ctx *core.DestroyContext) error {
	m.rec.mu.Lock()
	defer m.rec.mu.Unlock()
	m.rec.calls = append(m.rec.calls, teardown{id: m.id, last: ctx.Last, lastGlobal: ctx.LastGlobal})
	return nil
}

func TestConcurrentLeave_LastLeaverTeardownOnce(t *testing.T) {
	rec := &teardownRecorder{}
	env := runnertest.New(t, rec)
	ctx := context.Background()
	room := domain.NewSignalingRoomID(runnertest.Room, "")

	owner, _ := env.JoinOwner()
	guest, _ := env.JoinGuest("Gina")
	owner.Expect(t, control.Namespace, control.MsgJoined)

	owner.Disconnect()
	guest.Disconnect()
	testutil.RequireClosed(t, owner.Done, testutil.Timeout, "owner runner did not stop")
	testutil.RequireClosed(t, guest.Done, testutil.Timeout, "guest runner did not stop")

	calls := rec.snapshot()
	require.Len(t, calls, 2)
	assert.ElementsMatch(t, []domain.ParticipantID{owner.ID, guest.ID}, []domain.ParticipantID{calls[0].id, calls[1].id})
	last, lastGlobal := 0, 0
	for _, c := range calls {
		if c.last {
			last++
		}
		if c.lastGlobal {
			lastGlobal++
		}
	}
	assert.Equal(t, 1, last, "room teardown must run for exactly one leaver")
	assert.Equal(t, 1, lastGlobal, "room-wide teardown must run for exactly one leaver")
	// The teardown flags go to whoever left second.
	assert.True(t, calls[1].last)
	assert.True(t, calls[1].lastGlobal)

	n, err := storage.ParticipantCount(ctx, env.Store, room)
	require.NoError(t, err)
	assert.Zero(t, n)
	_, found, err := storage.GetAttribute[string](ctx, env.Store, room, storage.ScopeGlobal, owner.ID, control.AttrDisplayName)
	require.NoError(t, err)
	assert.False(t, found)
}
