package core

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dkeye/opentalk/internal/domain"
	"github.com/dkeye/opentalk/internal/storage"
)

// Session is the identity of the participant a runner drives. The runner
// owns it; modules read it through their contexts.
type Session struct {
	ID          domain.ParticipantID
	Participant domain.Participant
	Room        domain.SignalingRoomID
	Role        domain.Role
	User        *domain.User
	RoomInfo    domain.RoomInfo
	Tariff      domain.Tariff
	IsRoomOwner bool
	DisplayName string
}

// Env is what every context shares. ctx is cancelled when the participant
// leaves the current signaling room.
type Env struct {
	Ctx     context.Context
	Session *Session
	Storage storage.Backend
	Clock   clock.Clock
	Spawner Spawner
	Ext     chan<- ExtEvent
}

// Spawner runs background work. The report pool implements it.
type Spawner interface {
	Go(func())
}

type goSpawner struct{}

func (goSpawner) Go(fn func()) { go fn() }

// ExtEvent is delivered to the runner's loop and routed to Namespace.
type ExtEvent struct {
	Namespace string
	Value     any
}

type base struct {
	env Env
}

func (b *base) Context() context.Context           { return b.env.Ctx }
func (b *base) ID() domain.ParticipantID           { return b.env.Session.ID }
func (b *base) Participant() domain.Participant    { return b.env.Session.Participant }
func (b *base) Room() domain.SignalingRoomID       { return b.env.Session.Room }
func (b *base) Role() domain.Role                  { return b.env.Session.Role }
func (b *base) User() *domain.User                 { return b.env.Session.User }
func (b *base) RoomInfo() domain.RoomInfo          { return b.env.Session.RoomInfo }
func (b *base) Tariff() domain.Tariff              { return b.env.Session.Tariff }
func (b *base) IsRoomOwner() bool                  { return b.env.Session.IsRoomOwner }
func (b *base) DisplayName() string                { return b.env.Session.DisplayName }
func (b *base) Storage() storage.Backend           { return b.env.Storage }
func (b *base) Clock() clock.Clock                 { return b.env.Clock }
func (b *base) IsModerator() bool                  { return b.env.Session.Role.IsModerator() }
func (b *base) ParentRoom() domain.SignalingRoomID { return b.env.Session.Room.ParentRoom() }

type InitContext struct{ base }

func NewInitContext(env Env) *InitContext { return &InitContext{base{env}} }

// DestroyContext is passed to OnDestroy while the room lock is held. Last is
// set when the participant was the last one in the signaling room; modules
// then purge state scoped to it. LastGlobal is set when nobody is left in
// the parent room or any of its breakouts.
type DestroyContext struct {
	base
	Last       bool
	LastGlobal bool
}

func NewDestroyContext(env Env, last, lastGlobal bool) *DestroyContext {
	return &DestroyContext{base: base{env}, Last: last, LastGlobal: lastGlobal}
}

// Outbound is one queued websocket message.
type Outbound struct {
	Namespace string
	Payload   any
}

// Publish is one queued exchange message.
type Publish struct {
	Key       string
	Namespace string
	Payload   any
}

// Outbox collects the effects of one event cycle. The runner flushes it
// after the handler returns.
type Outbox struct {
	WS         []Outbound
	Exchange   []Publish
	Invalidate bool
	ResetHand  bool
	Exit       *ExitReason
	// SwitchTo is set when the participant must move to another signaling
	// room of the same parent.
	SwitchTo    *domain.SignalingRoomID
	WaitingRoom bool
}

func (o *Outbox) Reset() { *o = Outbox{} }

// ModuleContext is handed to OnEvent. Effects are queued and applied by the
// runner in order once the handler returns.
type ModuleContext struct {
	base
	namespace string
	timestamp time.Time
	out       *Outbox
}

func NewModuleContext(env Env, namespace string, ts time.Time, out *Outbox) *ModuleContext {
	if env.Spawner == nil {
		env.Spawner = goSpawner{}
	}
	return &ModuleContext{base: base{env}, namespace: namespace, timestamp: ts, out: out}
}

// Timestamp is the single timestamp of the current event cycle.
func (m *ModuleContext) Timestamp() time.Time { return m.timestamp }

func (m *ModuleContext) WsSend(payload any) {
	m.out.WS = append(m.out.WS, Outbound{Namespace: m.namespace, Payload: payload})
}

func (m *ModuleContext) ExchangePublish(key string, payload any) {
	m.ExchangePublishAs(m.namespace, key, payload)
}

// ExchangePublishAs publishes on behalf of another namespace.
func (m *ModuleContext) ExchangePublishAs(namespace, key string, payload any) {
	m.out.Exchange = append(m.out.Exchange, Publish{Key: key, Namespace: namespace, Payload: payload})
}

// InvalidateData makes the runner broadcast a control update after this cycle.
func (m *ModuleContext) InvalidateData() { m.out.Invalidate = true }

// ResetRaisedHand lowers the participant's hand after this cycle.
func (m *ModuleContext) ResetRaisedHand() { m.out.ResetHand = true }

func (m *ModuleContext) Exit(reason ExitReason) {
	r := reason
	m.out.Exit = &r
}

// SwitchRoom moves the participant to breakout, or to the parent room when
// breakout is empty.
func (m *ModuleContext) SwitchRoom(breakout domain.BreakoutRoomID) {
	target := domain.NewSignalingRoomID(m.env.Session.Room.Room, breakout)
	m.out.SwitchTo = &target
}

// EnterWaitingRoom leaves the room and parks the participant in the waiting
// room until a moderator accepts them again.
func (m *ModuleContext) EnterWaitingRoom() { m.out.WaitingRoom = true }

func (m *ModuleContext) ext(v any) {
	select {
	case m.env.Ext <- ExtEvent{Namespace: m.namespace, Value: v}:
	case <-m.env.Ctx.Done():
	}
}

// Spawn runs job off the runner and delivers its result as an Ext event.
func (m *ModuleContext) Spawn(job func(ctx context.Context) any) {
	ctx := m.env.Ctx
	m.env.Spawner.Go(func() {
		v := job(ctx)
		if ctx.Err() != nil {
			return
		}
		m.ext(v)
	})
}

// After delivers value as an Ext event once d has passed on the session
// clock. The returned func cancels the delivery.
func (m *ModuleContext) After(d time.Duration, value any) (cancel func()) {
	timer := m.env.Clock.Timer(d)
	stop := make(chan struct{})
	ctx := m.env.Ctx
	go func() {
		select {
		case <-timer.C:
			m.ext(value)
		case <-stop:
			timer.Stop()
		case <-ctx.Done():
			timer.Stop()
		}
	}()
	var closed bool
	return func() {
		if !closed {
			closed = true
			close(stop)
		}
	}
}

// AddEventStream forwards every value of stream to the module as an Ext
// event until the stream closes or the participant leaves the room.
func AddEventStream[T any](m *ModuleContext, stream <-chan T) {
	ctx := m.env.Ctx
	go func() {
		for {
			select {
			case v, ok := <-stream:
				if !ok {
					return
				}
				m.ext(v)
			case <-ctx.Done():
				return
			}
		}
	}()
}
