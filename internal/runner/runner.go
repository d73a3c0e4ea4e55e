// Package runner drives one participant's signaling session: it redeems the
// ticket, joins the room under the room lock, multiplexes websocket frames,
// exchange messages and module events, and always runs the leave path.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/opentalk/internal/control"
	"github.com/dkeye/opentalk/internal/core"
	"github.com/dkeye/opentalk/internal/domain"
	"github.com/dkeye/opentalk/internal/exchange"
	"github.com/dkeye/opentalk/internal/metrics"
	"github.com/dkeye/opentalk/internal/storage"
)

// Conn is the client side of a session.
type Conn interface {
	// Incoming yields inbound frames and is closed when the client goes away.
	Incoming() <-chan []byte
	// Send queues a frame without blocking.
	Send(frame []byte) error
	Close(code core.CloseCode, reason string)
}

// Directory resolves what the REST layer knew at ticket time.
type Directory interface {
	Room(ctx context.Context, id domain.RoomID) (domain.RoomInfo, error)
	User(ctx context.Context, id domain.UserID) (*domain.User, error)
	Tariff(ctx context.Context, room domain.RoomID) (domain.Tariff, error)
	Event(ctx context.Context, room domain.RoomID) (*domain.EventInfo, error)
	PhoneNumberName(number string) (string, bool)
}

// Resumer keeps the session's resumption entry alive.
type Resumer interface {
	RefreshResumption(ctx context.Context, token domain.ResumptionToken) error
}

type Options struct {
	RunnerLock      storage.RunnerLockOptions
	RoomLockTimeout time.Duration
	// RefreshInterval is how often the runner lock and the resumption entry
	// are extended.
	RefreshInterval time.Duration
	// MaxViolations is how many malformed frames are tolerated.
	MaxViolations int
}

var DefaultOptions = Options{
	RunnerLock:      storage.DefaultRunnerLockOptions,
	RoomLockTimeout: 10 * time.Second,
	RefreshInterval: 30 * time.Second,
	MaxViolations:   16,
}

// Deps are shared by every runner of the process.
type Deps struct {
	Storage   storage.Backend
	Exchange  *exchange.Hub
	Resumer   Resumer
	Directory Directory
	Builders  []core.Builder
	Clock     clock.Clock
	Spawner   core.Spawner
	Options   Options
}

type state int

const (
	stateConnected state = iota
	stateWaiting
	stateAccepted
	stateJoined
)

func (s state) String() string {
	return [...]string{"connected", "waiting", "accepted", "joined"}[s]
}

type Runner struct {
	id     domain.RunnerID
	deps   Deps
	conn   Conn
	ticket domain.TicketData
	logger zerolog.Logger

	session   core.Session
	eventInfo *domain.EventInfo
	state     state
	// everJoined is set once the participant was added to the room-wide set.
	everJoined bool

	modules    []core.Module
	sub        *exchange.Subscription
	roomKeys   []string
	ext        chan core.ExtEvent
	roomCtx    context.Context
	roomCancel context.CancelFunc

	violations int
	exit       *core.ExitReason
}

// New prepares a runner for a redeemed ticket.
func New(deps Deps, conn Conn, data domain.TicketData) *Runner {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Options.RoomLockTimeout == 0 {
		deps.Options = DefaultOptions
	}
	id := domain.NewRunnerID()
	return &Runner{
		id:     id,
		deps:   deps,
		conn:   conn,
		ticket: data,
		ext:    make(chan core.ExtEvent, 64),
		logger: log.With().
			Str("module", "runner").
			Str("runner", string(id)).
			Str("participant", string(data.ParticipantID)).
			Str("room", data.SignalingRoom().String()).
			Logger(),
		session: core.Session{
			ID:          data.ParticipantID,
			Participant: data.Participant,
			Room:        data.SignalingRoom(),
		},
	}
}

func (r *Runner) ID() domain.RunnerID { return r.id }

// Run drives the session until the client leaves, a module exits or ctx is
// cancelled. The leave path runs in every case.
func (r *Runner) Run(ctx context.Context) {
	metrics.RunnersActive.Inc()
	defer metrics.RunnersActive.Dec()

	store := r.deps.Storage
	pid := r.session.ID
	if err := storage.AcquireRunnerLock(ctx, store, r.deps.Clock, pid, r.id, r.deps.Options.RunnerLock); err != nil {
		code := core.CloseServerError
		if errors.Is(err, storage.ErrLockTimeout) {
			code = core.CloseParticipantIDInUse
		}
		r.logger.Warn().Err(err).Msg("participant id lock not acquired")
		r.finish(code)
		return
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := storage.ReleaseRunnerLock(releaseCtx, store, pid, r.id); err != nil {
			r.logger.Error().Err(err).Msg("release runner lock")
		}
	}()

	if err := r.prepare(ctx); err != nil {
		r.logger.Error().Err(err).Msg("prepare session")
		r.finish(core.CloseServerError)
		return
	}
	defer r.sub.Close()

	reason := r.loop(ctx)

	cleanupCtx := context.WithoutCancel(ctx)
	switch reason {
	case core.ExitKicked:
		r.sendControl(r.deps.Clock.Now(), control.Msg(control.MsgKicked))
	case core.ExitBanned:
		r.sendControl(r.deps.Clock.Now(), control.Msg(control.MsgBanned))
	case core.ExitRoomClosed:
		r.sendControl(r.deps.Clock.Now(), control.Msg(control.MsgRoomDeleted))
	}
	r.teardown(cleanupCtx)
	r.finish(reason.CloseCode())
}

func (r *Runner) finish(code core.CloseCode) {
	metrics.RunnerExits.WithLabelValues(code.String()).Inc()
	r.logger.Info().Str("close", code.String()).Msg("session closed")
	r.conn.Close(code, code.String())
}

// prepare resolves the room, the account and the starting role, and
// subscribes to the keys that address this participant across breakouts.
func (r *Runner) prepare(ctx context.Context) error {
	dir := r.deps.Directory
	info, err := dir.Room(ctx, r.ticket.Room)
	if err != nil {
		return fmt.Errorf("resolve room: %w", err)
	}
	tariff, err := dir.Tariff(ctx, r.ticket.Room)
	if err != nil {
		return fmt.Errorf("resolve tariff: %w", err)
	}
	r.eventInfo, err = dir.Event(ctx, r.ticket.Room)
	if err != nil {
		return fmt.Errorf("resolve event: %w", err)
	}

	p := r.session.Participant
	if p.IsUser() {
		user, err := dir.User(ctx, p.User)
		if err != nil {
			return fmt.Errorf("resolve user: %w", err)
		}
		r.session.User = user
	}
	r.session.RoomInfo = info
	r.session.Tariff = tariff
	r.session.IsRoomOwner = info.IsOwner(p)
	r.session.Role = domain.DefaultRole(p, r.session.IsRoomOwner)

	// A resumed participant keeps a role granted earlier in the meeting.
	if r.ticket.Resuming {
		role, found, err := control.GetRole(ctx, r.deps.Storage, r.session.Room, r.session.ID)
		if err != nil {
			return fmt.Errorf("load role: %w", err)
		}
		if found {
			r.session.Role = role
		}
	}

	room := r.session.Room.Room
	r.sub = r.deps.Exchange.Subscribe(
		exchange.GlobalRoomParticipants(room),
		exchange.GlobalRoomParticipant(room, r.session.ID),
	)
	r.logger.Info().Str("role", string(r.session.Role)).Bool("resuming", r.ticket.Resuming).Msg("session ready")
	return nil
}

func (r *Runner) loop(ctx context.Context) core.ExitReason {
	refresh := r.deps.Clock.Ticker(r.deps.Options.RefreshInterval)
	defer refresh.Stop()

	incoming := r.conn.Incoming()
	for {
		select {
		case <-ctx.Done():
			return core.ExitNormal
		case raw, ok := <-incoming:
			if !ok {
				r.logger.Debug().Msg("client went away")
				return core.ExitNormal
			}
			r.handleFrame(ctx, raw)
		case d, ok := <-r.sub.C():
			if !ok {
				return core.ExitServerError
			}
			r.handleExchange(ctx, d)
		case ev := <-r.ext:
			r.handleExt(ctx, ev)
		case <-refresh.C:
			r.refresh(ctx)
		}
		if r.exit != nil {
			return *r.exit
		}
	}
}

func (r *Runner) refresh(ctx context.Context) {
	if err := storage.RefreshRunnerLock(ctx, r.deps.Storage, r.session.ID, r.deps.Options.RunnerLock.TTL); err != nil {
		r.logger.Warn().Err(err).Msg("refresh runner lock")
	}
	if r.deps.Resumer == nil {
		return
	}
	if err := r.deps.Resumer.RefreshResumption(ctx, r.ticket.ResumptionToken); err != nil {
		r.logger.Warn().Err(err).Msg("refresh resumption")
	}
}

// fail ends the session with a server error.
func (r *Runner) fail(err error) {
	r.logger.Error().Err(err).Msg("session failed")
	reason := core.ExitServerError
	r.exit = &reason
}
