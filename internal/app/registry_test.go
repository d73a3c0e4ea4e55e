package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/opentalk/internal/control"
	"github.com/dkeye/opentalk/internal/core"
	"github.com/dkeye/opentalk/internal/domain"
	"github.com/dkeye/opentalk/internal/runner/runnertest"
	"github.com/dkeye/opentalk/internal/testutil"
)

func serve(t *testing.T, reg *Registry, data domain.TicketData) (*testutil.FakeConn, <-chan struct{}) {
	t.Helper()
	conn := testutil.NewFakeConn()
	done := make(chan struct{})
	go func() {
		defer close(done)
		reg.Serve(context.Background(), conn, data)
	}()
	return conn, done
}

func join(t *testing.T, conn *testutil.FakeConn, name string) {
	t.Helper()
	conn.Command(control.Namespace, control.Join{Action: control.ActionJoin, DisplayName: name})
	conn.Expect(t, control.Namespace, control.MsgJoinSuccess)
}

func TestRegistryTracksSessions(t *testing.T) {
	env := runnertest.New(t)
	reg := NewRegistry(env.Deps())

	_, data := env.Issue(domain.GuestParticipant(), "", nil)
	conn, done := serve(t, reg, data)
	join(t, conn, "Gus Guest")

	assert.Equal(t, 1, reg.Count())
	room, ok := reg.RoomOf(data.ParticipantID)
	require.True(t, ok)
	assert.Equal(t, domain.NewSignalingRoomID(runnertest.Room, ""), room)

	conn.Disconnect()
	testutil.RequireClosed(t, done, testutil.Timeout, "serve did not return")
	assert.Equal(t, 0, reg.Count())
	_, ok = reg.RoomOf(data.ParticipantID)
	assert.False(t, ok)
}

func TestRegistryCancel(t *testing.T) {
	env := runnertest.New(t)
	reg := NewRegistry(env.Deps())

	_, data := env.Issue(domain.GuestParticipant(), "", nil)
	conn, done := serve(t, reg, data)
	join(t, conn, "Gus Guest")

	assert.False(t, reg.Cancel("nobody"))
	assert.True(t, reg.Cancel(data.ParticipantID))
	conn.WaitClosed(t)
	testutil.RequireClosed(t, done, testutil.Timeout, "serve did not return")
}

func TestRegistryCancelAll(t *testing.T) {
	env := runnertest.New(t)
	reg := NewRegistry(env.Deps())

	var conns []*testutil.FakeConn
	var dones []<-chan struct{}
	for _, name := range []string{"Ann", "Ben", "Cat"} {
		_, data := env.Issue(domain.GuestParticipant(), "", nil)
		conn, done := serve(t, reg, data)
		join(t, conn, name)
		conns = append(conns, conn)
		dones = append(dones, done)
	}
	require.Equal(t, 3, reg.Count())

	ctx, cancel := context.WithTimeout(context.Background(), testutil.Timeout)
	defer cancel()
	require.NoError(t, reg.CancelAll(ctx))

	assert.Equal(t, 0, reg.Count())
	for i := range conns {
		conns[i].WaitClosed(t)
		testutil.RequireClosed(t, dones[i], testutil.Timeout, "serve did not return")
	}
}

func TestRegistryKeepsFirstRunnerOfParticipant(t *testing.T) {
	env := runnertest.New(t)
	reg := NewRegistry(env.Deps())

	_, data := env.Issue(domain.GuestParticipant(), "", nil)
	first, _ := serve(t, reg, data)
	join(t, first, "Gus Guest")

	second, secondDone := serve(t, reg, data)
	env.AdvanceUntil(t, second.Closed())
	assert.Equal(t, core.CloseParticipantIDInUse, second.WaitClosed(t))
	testutil.RequireClosed(t, secondDone, testutil.Timeout, "second serve did not return")

	assert.Equal(t, 1, reg.Count())
	assert.True(t, reg.Cancel(data.ParticipantID))
	first.WaitClosed(t)
}

func TestThresholdPolicy(t *testing.T) {
	p := ThresholdPolicy{Limit: 3}
	assert.Equal(t, DropFrame, p.OnBackpressure("p", 1))
	assert.Equal(t, DropFrame, p.OnBackpressure("p", 2))
	assert.Equal(t, CloseSlow, p.OnBackpressure("p", 3))
	assert.Equal(t, DropFrame, ThresholdPolicy{}.OnBackpressure("p", 1000))
}

func TestCancelAllHonorsDeadline(t *testing.T) {
	reg := NewRegistry(runnertest.New(t).Deps())
	reg.wg.Add(1)
	defer reg.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, reg.CancelAll(ctx), context.DeadlineExceeded)
}
