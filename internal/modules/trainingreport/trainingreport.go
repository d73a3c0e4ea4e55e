// Package trainingreport asks participants of a training to confirm their
// presence at random checkpoints and hands the room owner a report of who
// did.
package trainingreport

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/opentalk/internal/assets"
	"github.com/dkeye/opentalk/internal/core"
	"github.com/dkeye/opentalk/internal/domain"
	"github.com/dkeye/opentalk/internal/exchange"
	"github.com/dkeye/opentalk/internal/report"
)

const Namespace = "training_participation_report"

// Defaults apply when enable_presence_logging leaves a range out.
type Defaults struct {
	InitialCheckpointDelay TimeRange
	CheckpointInterval     TimeRange
}

var DefaultDefaults = Defaults{
	InitialCheckpointDelay: TimeRange{After: 300, Within: 600},
	CheckpointInterval:     TimeRange{After: 900, Within: 900},
}

type Builder struct {
	defaults  Defaults
	generator report.Generator
	assets    assets.Store
}

func NewBuilder(defaults Defaults, gen report.Generator, store assets.Store) *Builder {
	return &Builder{defaults: defaults, generator: gen, assets: store}
}

func (*Builder) Namespace() string { return Namespace }

func (b *Builder) Init(ctx *core.InitContext) (core.Module, error) {
	if ctx.Participant().Kind == domain.KindRecorder {
		return nil, nil
	}
	return &TrainingReport{
		defaults:  b.defaults,
		generator: b.generator,
		assets:    b.assets,
		room:      ctx.Room(),
		id:        ctx.ID(),
		logger:    log.With().Str("module", Namespace).Str("participant", string(ctx.ID())).Logger(),
	}, nil
}

type TrainingReport struct {
	defaults  Defaults
	generator report.Generator
	assets    assets.Store
	room      domain.SignalingRoomID
	id        domain.ParticipantID
	logger    zerolog.Logger

	cancelCheckpoint func()
}

type (
	checkpointDue struct {
		at time.Time
	}
	reportReady struct {
		meta assets.Meta
		err  error
	}
)

func (t *TrainingReport) Namespace() string { return Namespace }

func (t *TrainingReport) OnEvent(ctx *core.ModuleContext, ev core.Event) error {
	switch ev := ev.(type) {
	case core.Joined:
		return t.onJoined(ctx, ev)
	case core.WsMessage:
		return t.onCommand(ctx, ev.Payload)
	case core.ExchangeMessage:
		return t.onExchange(ctx, ev.Payload)
	case core.Ext:
		switch v := ev.Value.(type) {
		case checkpointDue:
			t.cancelCheckpoint = nil
			return t.onCheckpoint(ctx, v.at)
		case reportReady:
			if v.err != nil {
				t.logger.Error().Err(v.err).Msg("participation report failed")
				return ErrInternal
			}
			ctx.WsSend(PdfAsset{Message: MsgPdfAsset, AssetID: v.meta.ID, Filename: v.meta.Filename})
		}
	}
	return nil
}

func (t *TrainingReport) OnDestroy(ctx *core.DestroyContext) error {
	if ctx.Last {
		return cleanup(ctx.Context(), ctx.Storage(), t.room)
	}
	return nil
}

func (t *TrainingReport) onJoined(ctx *core.ModuleContext, ev core.Joined) error {
	s, _, found, err := loadState(ctx.Context(), ctx.Storage(), t.room)
	if err != nil {
		return err
	}
	if !found {
		ev.Frontend.Set(FrontendData{State: "disabled"})
		return nil
	}
	if err := t.register(ctx); err != nil {
		return err
	}
	t.schedule(ctx, s.NextCheckpoint)
	ev.Frontend.Set(FrontendData{State: "enabled"})
	return nil
}

func (t *TrainingReport) register(ctx *core.ModuleContext) error {
	return registerAttendee(ctx.Context(), ctx.Storage(), t.room, t.id, attendee{
		DisplayName: ctx.DisplayName(),
		JoinedAt:    ctx.Timestamp(),
	})
}

func (t *TrainingReport) schedule(ctx *core.ModuleContext, at time.Time) {
	if t.cancelCheckpoint != nil {
		t.cancelCheckpoint()
	}
	t.cancelCheckpoint = ctx.After(at.Sub(ctx.Timestamp()), checkpointDue{at: at})
}

func (t *TrainingReport) stopSchedule() {
	if t.cancelCheckpoint != nil {
		t.cancelCheckpoint()
		t.cancelCheckpoint = nil
	}
}

// pick returns ref plus r.After seconds plus a random share of r.Within.
func pick(ref time.Time, r TimeRange) time.Time {
	d := time.Duration(r.After) * time.Second
	if r.Within > 0 {
		d += rand.N(time.Duration(r.Within) * time.Second)
	}
	return ref.Add(d)
}

func (t *TrainingReport) onCommand(ctx *core.ModuleContext, payload json.RawMessage) error {
	action, err := core.DecodeAction(payload)
	if err != nil {
		return err
	}
	switch action {
	case ActionEnablePresenceLogging:
		if !ctx.IsRoomOwner() {
			return core.ErrInsufficientPermissions
		}
		cmd, err := core.Decode[EnablePresenceLogging](payload)
		if err != nil {
			return err
		}
		return t.enable(ctx, cmd)
	case ActionDisablePresenceLogging:
		if !ctx.IsRoomOwner() {
			return core.ErrInsufficientPermissions
		}
		return t.disable(ctx)
	case ActionConfirmPresence:
		return t.confirm(ctx)
	default:
		return core.ErrInvalidAction
	}
}

func (t *TrainingReport) enable(ctx *core.ModuleContext, cmd EnablePresenceLogging) error {
	initial, interval := t.defaults.InitialCheckpointDelay, t.defaults.CheckpointInterval
	if cmd.InitialCheckpointDelay != nil {
		initial = *cmd.InitialCheckpointDelay
	}
	if cmd.CheckpointInterval != nil {
		interval = *cmd.CheckpointInterval
	}
	if interval.After+interval.Within == 0 {
		return core.ErrInvalidJSON
	}
	now := ctx.Timestamp()
	s := State{
		Creator:        t.id,
		StartedAt:      now,
		Interval:       interval,
		NextCheckpoint: pick(now, initial),
	}
	ok, err := createState(ctx.Context(), ctx.Storage(), t.room, s)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyEnabled
	}
	t.logger.Info().Time("first_checkpoint", s.NextCheckpoint).Msg("presence logging enabled")
	ctx.ExchangePublish(exchange.RoomParticipants(t.room), exEnabledMessage{Message: exEnabled, State: s})
	return nil
}

// onCheckpoint fires in every runner; the one that advances the stored
// state announces the checkpoint.
func (t *TrainingReport) onCheckpoint(ctx *core.ModuleContext, at time.Time) error {
	rctx, store := ctx.Context(), ctx.Storage()
	s, raw, found, err := loadState(rctx, store, t.room)
	if err != nil || !found || !s.NextCheckpoint.Equal(at) {
		return err
	}
	next := s
	next.Checkpoints = append(append([]time.Time(nil), s.Checkpoints...), at)
	next.NextCheckpoint = pick(at, s.Interval)
	won, err := advance(rctx, store, t.room, raw, next)
	if err != nil || !won {
		return err
	}
	ctx.ExchangePublish(exchange.RoomParticipants(t.room), exCheckpointMessage{
		Message: exCheckpoint,
		At:      at,
		Next:    next.NextCheckpoint,
	})
	return nil
}

func (t *TrainingReport) confirm(ctx *core.ModuleContext) error {
	rctx, store := ctx.Context(), ctx.Storage()
	s, _, found, err := loadState(rctx, store, t.room)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotEnabled
	}
	if len(s.Checkpoints) == 0 {
		return ErrNothingToConfirm
	}
	last := s.Checkpoints[len(s.Checkpoints)-1]
	if err := confirm(rctx, store, t.room, last, t.id, ctx.Timestamp()); err != nil {
		return err
	}
	ctx.WsSend(Simple{Message: MsgPresenceConfirmationLogged})
	return nil
}

func (t *TrainingReport) disable(ctx *core.ModuleContext) error {
	rctx, store := ctx.Context(), ctx.Storage()
	s, _, found, err := loadState(rctx, store, t.room)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotEnabled
	}
	snap, err := takeSnapshot(rctx, store, t.room, s)
	if err != nil {
		return err
	}
	if err := cleanup(rctx, store, t.room); err != nil {
		return err
	}
	ctx.ExchangePublish(exchange.RoomParticipants(t.room), Simple{Message: exDisabled})

	if t.generator == nil || t.assets == nil {
		return nil
	}
	gen, assetStore, room := t.generator, t.assets, t.room.Room
	ctx.Spawn(func(jctx context.Context) any {
		meta, err := report.Render(jctx, gen, assetStore, room, "training_participation_report", participationDocument(snap))
		return reportReady{meta: meta, err: err}
	})
	return nil
}

func (t *TrainingReport) onExchange(ctx *core.ModuleContext, payload json.RawMessage) error {
	message, err := core.DecodeMessage(payload)
	if err != nil {
		return nil
	}
	switch message {
	case exEnabled:
		var m exEnabledMessage
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil
		}
		if err := t.register(ctx); err != nil {
			return err
		}
		t.schedule(ctx, m.State.NextCheckpoint)
		ctx.WsSend(Simple{Message: MsgPresenceLoggingEnabled})
	case exCheckpoint:
		var m exCheckpointMessage
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil
		}
		t.schedule(ctx, m.Next)
		s, _, found, err := loadState(ctx.Context(), ctx.Storage(), t.room)
		if err != nil {
			return err
		}
		if found && s.Creator != t.id {
			ctx.WsSend(ConfirmationRequested{Message: MsgPresenceConfirmationRequested, Checkpoint: m.At})
		}
	case exDisabled:
		t.stopSchedule()
		ctx.WsSend(Simple{Message: MsgPresenceLoggingDisabled})
	}
	return nil
}
