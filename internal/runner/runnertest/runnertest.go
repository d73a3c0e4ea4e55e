// Package runnertest runs real session runners against the in-process
// backend so module and runner tests can drive whole meetings.
package runnertest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/opentalk/internal/control"
	"github.com/dkeye/opentalk/internal/core"
	"github.com/dkeye/opentalk/internal/directory"
	"github.com/dkeye/opentalk/internal/domain"
	"github.com/dkeye/opentalk/internal/exchange"
	"github.com/dkeye/opentalk/internal/runner"
	"github.com/dkeye/opentalk/internal/storage"
	"github.com/dkeye/opentalk/internal/storage/memory"
	"github.com/dkeye/opentalk/internal/testutil"
	"github.com/dkeye/opentalk/internal/ticket"
)

// Room is the room every Env creates. Its owner is the user "owner".
const (
	Room  domain.RoomID = "room"
	Owner domain.UserID = "owner"
)

// Env is one isolated deployment: fresh backend, hub and mock clock.
type Env struct {
	t *testing.T

	Store     *memory.Store
	Clock     *clock.Mock
	Hub       *exchange.Hub
	Tickets   *ticket.Service
	Directory *directory.Memory
	Builders  []core.Builder
	Options   runner.Options
	Spawner   core.Spawner

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New prepares an env with the given module builders. Runners still alive
// when the test ends are cancelled and awaited.
func New(t *testing.T, builders ...core.Builder) *Env {
	t.Helper()
	clk := clock.NewMock()
	clk.Set(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	store := memory.New(clk)

	dir := directory.NewMemory()
	dir.PutUser(domain.User{ID: Owner, DisplayName: "Olivia Owner"})
	dir.PutRoom(domain.RoomInfo{ID: Room, Title: "Weekly", CreatedBy: Owner})

	opts := runner.DefaultOptions
	opts.RunnerLock = storage.RunnerLockOptions{TTL: time.Minute, Timeout: 200 * time.Millisecond, Step: 20 * time.Millisecond}
	opts.RoomLockTimeout = 2 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	e := &Env{
		t:         t,
		Store:     store,
		Clock:     clk,
		Hub:       exchange.NewHub(0),
		Tickets:   ticket.NewService(store, ticket.DefaultOptions),
		Directory: dir,
		Builders:  builders,
		Options:   opts,
		ctx:       ctx,
		cancel:    cancel,
	}
	t.Cleanup(func() {
		cancel()
		e.wg.Wait()
	})
	return e
}

// Deps is what each runner of the env shares.
func (e *Env) Deps() runner.Deps {
	return runner.Deps{
		Storage:   e.Store,
		Exchange:  e.Hub,
		Resumer:   e.Tickets,
		Directory: e.Directory,
		Builders:  e.Builders,
		Clock:     e.Clock,
		Spawner:   e.Spawner,
		Options:   e.Options,
	}
}

// Client is one connected participant.
type Client struct {
	*testutil.FakeConn
	ID     domain.ParticipantID
	Issued ticket.Issued
	// Done is closed when the runner returned.
	Done chan struct{}
}

// Issue starts a session for p in Room and redeems the ticket.
func (e *Env) Issue(p domain.Participant, breakout domain.BreakoutRoomID, resumption *domain.ResumptionToken) (ticket.Issued, domain.TicketData) {
	e.t.Helper()
	issued, err := e.Tickets.StartOrContinue(e.ctx, ticket.Start{
		Participant: p,
		Room:        Room,
		Breakout:    breakout,
		Resumption:  resumption,
	})
	require.NoError(e.t, err)
	data, err := e.Tickets.TakeTicket(e.ctx, issued.Ticket)
	require.NoError(e.t, err)
	return issued, data
}

// Connect starts a runner for p without joining.
func (e *Env) Connect(p domain.Participant) *Client {
	e.t.Helper()
	issued, data := e.Issue(p, "", nil)
	return e.Run(issued, data)
}

// Run starts a runner for an already redeemed ticket.
func (e *Env) Run(issued ticket.Issued, data domain.TicketData) *Client {
	c := &Client{
		FakeConn: testutil.NewFakeConn(),
		ID:       data.ParticipantID,
		Issued:   issued,
		Done:     make(chan struct{}),
	}
	r := runner.New(e.Deps(), c.FakeConn, data)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer close(c.Done)
		r.Run(e.ctx)
	}()
	return c
}

// Join connects p, sends join and waits for join_success.
func (e *Env) Join(p domain.Participant, name string) (*Client, testutil.Frame) {
	e.t.Helper()
	c := e.Connect(p)
	c.Command(control.Namespace, control.Join{Action: control.ActionJoin, DisplayName: name})
	return c, c.Expect(e.t, control.Namespace, control.MsgJoinSuccess)
}

// JoinOwner joins the room owner, who is a moderator.
func (e *Env) JoinOwner() (*Client, testutil.Frame) {
	e.t.Helper()
	return e.Join(domain.UserParticipant(Owner), "")
}

// JoinUser registers a user in the directory and joins them.
func (e *Env) JoinUser(id domain.UserID, name string, groups ...string) (*Client, testutil.Frame) {
	e.t.Helper()
	e.Directory.PutUser(domain.User{ID: id, DisplayName: name, Groups: groups})
	return e.Join(domain.UserParticipant(id), "")
}

// JoinGuest joins a guest under name.
func (e *Env) JoinGuest(name string) (*Client, testutil.Frame) {
	e.t.Helper()
	return e.Join(domain.GuestParticipant(), name)
}

// Leave disconnects c and waits for its runner to finish.
func (c *Client) Leave(t *testing.T) {
	t.Helper()
	c.Disconnect()
	testutil.RequireClosed(t, c.Done, testutil.Timeout, "runner did not stop")
}

// Do sends an action to namespace. Extra fields are merged into the payload.
func (c *Client) Do(namespace, action string, fields map[string]any) {
	payload := map[string]any{"action": action}
	for k, v := range fields {
		payload[k] = v
	}
	c.Command(namespace, payload)
}

// Advance moves the mock clock and gives woken goroutines time to run.
func (e *Env) Advance(d time.Duration) {
	e.Clock.Add(d)
	time.Sleep(20 * time.Millisecond)
}

// AdvanceUntil steps the mock clock until done is closed, so waits that
// poll on the clock, like the runner lock, run out.
func (e *Env) AdvanceUntil(t *testing.T, done <-chan struct{}) {
	t.Helper()
	step := e.Options.RunnerLock.Step
	require.Eventually(t, func() bool {
		select {
		case <-done:
			return true
		default:
			e.Clock.Add(step)
			return false
		}
	}, testutil.Timeout, 5*time.Millisecond)
}
