// Package timer runs one countdown or stopwatch per room with an optional
// ready check.
package timer

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/opentalk/internal/core"
	"github.com/dkeye/opentalk/internal/domain"
	"github.com/dkeye/opentalk/internal/exchange"
)

const Namespace = "timer"

type Builder struct{}

func NewBuilder() *Builder { return &Builder{} }

func (*Builder) Namespace() string { return Namespace }

func (*Builder) Init(ctx *core.InitContext) (core.Module, error) {
	return &Timer{
		room:   ctx.Room(),
		id:     ctx.ID(),
		logger: log.With().Str("module", Namespace).Str("participant", string(ctx.ID())).Logger(),
	}, nil
}

type Timer struct {
	room   domain.SignalingRoomID
	id     domain.ParticipantID
	logger zerolog.Logger

	cancelExpiry func()
}

type expired struct {
	timerID string
}

func (t *Timer) Namespace() string { return Namespace }

func (t *Timer) OnEvent(ctx *core.ModuleContext, ev core.Event) error {
	switch ev := ev.(type) {
	case core.Joined:
		return t.onJoined(ctx, ev)
	case core.ParticipantJoined:
		return t.peerData(ctx, ev.ID, ev.Data)
	case core.ParticipantUpdated:
		return t.peerData(ctx, ev.ID, ev.Data)
	case core.WsMessage:
		return t.onCommand(ctx, ev.Payload)
	case core.ExchangeMessage:
		return t.onExchange(ctx, ev.Payload)
	case core.Ext:
		if e, ok := ev.Value.(expired); ok {
			return t.onExpired(ctx, e.timerID)
		}
	}
	return nil
}

func (t *Timer) OnDestroy(ctx *core.DestroyContext) error {
	if ctx.Last {
		return deleteTimer(ctx.Context(), ctx.Storage(), t.room)
	}
	return nil
}

func (t *Timer) onJoined(ctx *core.ModuleContext, ev core.Joined) error {
	rctx, store := ctx.Context(), ctx.Storage()
	current, _, found, err := loadTimer(rctx, store, t.room)
	if err != nil || !found {
		return err
	}
	t.schedule(ctx, current)

	data := FrontendData{Started: current.started()}
	if current.ReadyCheckEnabled {
		status, err := readyStatus(rctx, store, t.room, t.id, current.ID)
		if err != nil {
			return err
		}
		data.ReadyStatus = &status
		for id, slot := range ev.Participants {
			if err := t.peerData(ctx, id, slot); err != nil {
				return err
			}
		}
	}
	ev.Frontend.Set(data)
	return nil
}

func (t *Timer) peerData(ctx *core.ModuleContext, id domain.ParticipantID, slot *core.Slot) error {
	rctx, store := ctx.Context(), ctx.Storage()
	current, _, found, err := loadTimer(rctx, store, t.room)
	if err != nil || !found || !current.ReadyCheckEnabled {
		return err
	}
	status, err := readyStatus(rctx, store, t.room, id, current.ID)
	if err != nil {
		return err
	}
	slot.Set(PeerData{ReadyStatus: status})
	return nil
}

func (t *Timer) schedule(ctx *core.ModuleContext, current State) {
	if t.cancelExpiry != nil {
		t.cancelExpiry()
		t.cancelExpiry = nil
	}
	if current.EndsAt != nil {
		t.cancelExpiry = ctx.After(current.EndsAt.Sub(ctx.Timestamp()), expired{timerID: current.ID})
	}
}

func (t *Timer) onCommand(ctx *core.ModuleContext, payload json.RawMessage) error {
	action, err := core.DecodeAction(payload)
	if err != nil {
		return err
	}
	switch action {
	case ActionStart:
		if !ctx.IsModerator() {
			return core.ErrInsufficientPermissions
		}
		cmd, err := core.Decode[Start](payload)
		if err != nil {
			return err
		}
		if cmd.Kind == KindCountdown && cmd.Duration == nil {
			return core.ErrInvalidJSON
		}
		return t.start(ctx, cmd)
	case ActionStop:
		if !ctx.IsModerator() {
			return core.ErrInsufficientPermissions
		}
		cmd, err := core.Decode[Stop](payload)
		if err != nil {
			return err
		}
		return t.stop(ctx, cmd)
	case ActionUpdateReadyStatus:
		cmd, err := core.Decode[UpdateReadyStatus](payload)
		if err != nil {
			return err
		}
		return t.updateReadyStatus(ctx, cmd)
	default:
		return core.ErrInvalidAction
	}
}

func (t *Timer) start(ctx *core.ModuleContext, cmd Start) error {
	now := ctx.Timestamp()
	state := State{
		ID:                uuid.NewString(),
		CreatedBy:         t.id,
		StartedAt:         now,
		Kind:              cmd.Kind,
		Style:             cmd.Style,
		Title:             cmd.Title,
		ReadyCheckEnabled: cmd.EnableReadyCheck,
	}
	if cmd.Kind == KindCountdown {
		ends := now.Add(time.Duration(*cmd.Duration) * time.Second)
		state.EndsAt = &ends
	}
	ok, err := createTimer(ctx.Context(), ctx.Storage(), t.room, state)
	if err != nil {
		return err
	}
	if !ok {
		return ErrTimerAlreadyRunning
	}
	t.logger.Info().Str("timer", state.ID).Str("kind", string(state.Kind)).Msg("timer started")
	ctx.ExchangePublish(exchange.RoomParticipants(t.room), exStartedMessage{Message: exStarted, Timer: state})
	return nil
}

func (t *Timer) stop(ctx *core.ModuleContext, cmd Stop) error {
	rctx, store := ctx.Context(), ctx.Storage()
	current, raw, found, err := loadTimer(rctx, store, t.room)
	if err != nil {
		return err
	}
	if !found || current.ID != cmd.TimerID {
		return ErrInvalidTimerID
	}
	deleted, err := store.CompareAndDelete(rctx, timerKey(t.room), raw)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrInvalidTimerID
	}
	by := t.id
	ctx.ExchangePublish(exchange.RoomParticipants(t.room), Stopped{
		Message: MsgStopped,
		TimerID: current.ID,
		Kind:    StopKind{Kind: StopByModerator, ParticipantID: &by},
		Reason:  cmd.Reason,
	})
	return nil
}

func (t *Timer) updateReadyStatus(ctx *core.ModuleContext, cmd UpdateReadyStatus) error {
	rctx, store := ctx.Context(), ctx.Storage()
	current, _, found, err := loadTimer(rctx, store, t.room)
	if err != nil {
		return err
	}
	if !found || current.ID != cmd.TimerID || !current.ReadyCheckEnabled {
		return ErrInvalidTimerID
	}
	if err := setReadyStatus(rctx, store, t.room, t.id, current.ID, cmd.Status); err != nil {
		return err
	}
	ctx.ExchangePublish(exchange.RoomParticipants(t.room), ReadyStatusUpdated{
		Message:       MsgUpdatedReadyStatus,
		TimerID:       current.ID,
		ParticipantID: t.id,
		Status:        cmd.Status,
	})
	return nil
}

// onExpired ends a countdown. Every runner in the room schedules the same
// expiry; only the one whose delete wins announces it.
func (t *Timer) onExpired(ctx *core.ModuleContext, timerID string) error {
	t.cancelExpiry = nil
	rctx, store := ctx.Context(), ctx.Storage()
	current, raw, found, err := loadTimer(rctx, store, t.room)
	if err != nil || !found || current.ID != timerID {
		return err
	}
	deleted, err := store.CompareAndDelete(rctx, timerKey(t.room), raw)
	if err != nil || !deleted {
		return err
	}
	ctx.ExchangePublish(exchange.RoomParticipants(t.room), Stopped{
		Message: MsgStopped,
		TimerID: timerID,
		Kind:    StopKind{Kind: StopExpired},
	})
	return nil
}

func (t *Timer) onExchange(ctx *core.ModuleContext, payload json.RawMessage) error {
	message, err := core.DecodeMessage(payload)
	if err != nil {
		return nil
	}
	switch message {
	case exStarted:
		var m exStartedMessage
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil
		}
		t.schedule(ctx, m.Timer)
		ctx.WsSend(m.Timer.started())
	case MsgStopped:
		if t.cancelExpiry != nil {
			t.cancelExpiry()
			t.cancelExpiry = nil
		}
		ctx.WsSend(payload)
	case MsgUpdatedReadyStatus:
		ctx.WsSend(payload)
	}
	return nil
}
