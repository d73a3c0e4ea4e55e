// Package recording tracks the recording and livestream targets of a room
// and hands start, pause and stop requests to the recorder service.
package recording

import (
	"encoding/json"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/dkeye/opentalk/internal/core"
	"github.com/dkeye/opentalk/internal/domain"
	"github.com/dkeye/opentalk/internal/exchange"
	"github.com/dkeye/opentalk/internal/storage"
)

const Namespace = "recording"

// RecordingTarget is the id of the room's own recording.
const RecordingTarget TargetID = "recording"

type Params struct {
	Queue       TaskQueue
	Livestreams []Target
}

type Builder struct {
	params Params
}

func NewBuilder(p Params) *Builder { return &Builder{params: p} }

func (*Builder) Namespace() string { return Namespace }

// Init declines when no recorder can be reached.
func (b *Builder) Init(ctx *core.InitContext) (core.Module, error) {
	if b.params.Queue == nil {
		return nil, nil
	}
	targets := []Target{{ID: RecordingTarget, Kind: KindRecording, Name: "Recording", Status: StatusInactive}}
	for _, t := range b.params.Livestreams {
		t.Kind, t.Status = KindLivestream, StatusInactive
		targets = append(targets, t)
	}
	return &Recording{
		queue:    b.params.Queue,
		defaults: targets,
		room:     ctx.Room(),
		id:       ctx.ID(),
		e2e:      ctx.RoomInfo().E2EEncrypted,
		recorder: ctx.Participant().Kind == domain.KindRecorder,
		logger:   log.With().Str("module", Namespace).Str("participant", string(ctx.ID())).Logger(),
	}, nil
}

type Recording struct {
	queue    TaskQueue
	defaults []Target
	room     domain.SignalingRoomID
	id       domain.ParticipantID
	e2e      bool
	recorder bool
	logger   zerolog.Logger
}

func (r *Recording) Namespace() string { return Namespace }

func (r *Recording) OnEvent(ctx *core.ModuleContext, ev core.Event) error {
	switch ev := ev.(type) {
	case core.Joined:
		return r.onJoined(ctx, ev)
	case core.ParticipantJoined:
		return r.peerData(ctx, ev.ID, ev.Data)
	case core.ParticipantUpdated:
		return r.peerData(ctx, ev.ID, ev.Data)
	case core.WsMessage:
		return r.onCommand(ctx, ev.Payload)
	case core.ExchangeMessage:
		if message, err := core.DecodeMessage(ev.Payload); err == nil && message == exStreamUpdated {
			ctx.WsSend(ev.Payload)
		}
	}
	return nil
}

func (r *Recording) OnDestroy(ctx *core.DestroyContext) error {
	if !ctx.Last {
		return nil
	}
	rctx, store := ctx.Context(), ctx.Storage()
	targets, err := loadTargets(rctx, store, r.room)
	if err != nil {
		return err
	}
	running := lo.Filter(lo.Values(targets), func(t Target, _ int) bool { return t.Status != StatusInactive })
	if len(running) > 0 {
		ids := lo.Map(running, func(t Target, _ int) TargetID { return t.ID })
		if err := r.queue.Push(rctx, newTask(TaskStop, r.room, ids)); err != nil {
			r.logger.Warn().Err(err).Msg("stop streams of empty room")
		}
	}
	return store.Del(rctx, targetsKey(r.room))
}

func (r *Recording) onJoined(ctx *core.ModuleContext, ev core.Joined) error {
	rctx, store := ctx.Context(), ctx.Storage()
	if err := seedTargets(rctx, store, r.room, r.defaults); err != nil {
		return err
	}
	targets, err := loadTargets(rctx, store, r.room)
	if err != nil {
		return err
	}
	own, err := consent(rctx, store, r.room, r.id)
	if err != nil {
		return err
	}
	for id, slot := range ev.Participants {
		if err := r.peerData(ctx, id, slot); err != nil {
			return err
		}
	}
	ev.Frontend.Set(FrontendData{Targets: targets, Consent: own})
	return nil
}

func (r *Recording) peerData(ctx *core.ModuleContext, id domain.ParticipantID, slot *core.Slot) error {
	v, err := consent(ctx.Context(), ctx.Storage(), r.room, id)
	if err != nil {
		return err
	}
	slot.Set(PeerData{ConsentsRecording: v})
	return nil
}

func (r *Recording) onCommand(ctx *core.ModuleContext, payload json.RawMessage) error {
	action, err := core.DecodeAction(payload)
	if err != nil {
		return err
	}
	switch action {
	case ActionSetConsent:
		cmd, err := core.Decode[SetConsent](payload)
		if err != nil {
			return err
		}
		if err := setConsent(ctx.Context(), ctx.Storage(), r.room, r.id, cmd.Consent); err != nil {
			return err
		}
		ctx.InvalidateData()
		return nil
	case ActionUpdateStreamStatus:
		if !r.recorder {
			return core.ErrInsufficientPermissions
		}
		cmd, err := core.Decode[UpdateStreamStatus](payload)
		if err != nil {
			return err
		}
		return r.updateStatus(ctx, cmd)
	case ActionStartStream, ActionPauseStream, ActionStopStream:
		if !ctx.IsModerator() {
			return core.ErrInsufficientPermissions
		}
		cmd, err := core.Decode[Targets](payload)
		if err != nil {
			return err
		}
		return r.transition(ctx, action, cmd.TargetIDs)
	default:
		return core.ErrInvalidAction
	}
}

type transitionRule struct {
	task string
	from []Status
	to   Status
}

var transitions = map[string]transitionRule{
	ActionStartStream: {task: TaskStart, from: []Status{StatusInactive, StatusPaused, StatusError}, to: StatusStarting},
	ActionPauseStream: {task: TaskPause, from: []Status{StatusActive}, to: StatusPaused},
	ActionStopStream:  {task: TaskStop, from: []Status{StatusStarting, StatusActive, StatusPaused, StatusError}, to: StatusInactive},
}

// transition moves the selected targets and asks the recorder to follow.
func (r *Recording) transition(ctx *core.ModuleContext, action string, ids []TargetID) error {
	if action == ActionStartStream && r.e2e {
		return ErrRoomE2EEncrypted
	}
	rule := transitions[action]
	rctx, store := ctx.Context(), ctx.Storage()
	targets, err := loadTargets(rctx, store, r.room)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		ids = lo.Keys(targets)
	}
	ids = lo.Uniq(ids)
	selected := make([]Target, 0, len(ids))
	for _, id := range ids {
		t, ok := targets[id]
		if !ok {
			return ErrInvalidStreamID
		}
		if !lo.Contains(rule.from, t.Status) {
			return ErrInvalidState
		}
		selected = append(selected, t)
	}
	if err := r.queue.Push(rctx, newTask(rule.task, r.room, ids)); err != nil {
		return err
	}
	for _, t := range selected {
		t.Status, t.Reason = rule.to, ""
		if err := storeTarget(rctx, store, r.room, t); err != nil {
			return err
		}
		ctx.ExchangePublish(exchange.RoomParticipants(r.room), StreamUpdated{Message: MsgStreamUpdated, Target: t})
	}
	r.logger.Info().Str("task", rule.task).Int("targets", len(selected)).Msg("recorder task queued")
	return nil
}

func (r *Recording) updateStatus(ctx *core.ModuleContext, cmd UpdateStreamStatus) error {
	rctx, store := ctx.Context(), ctx.Storage()
	t, found, err := storage.HGetJSON[Target](rctx, store, targetsKey(r.room), string(cmd.TargetID))
	if err != nil {
		return err
	}
	if !found {
		return ErrInvalidStreamID
	}
	t.Status, t.Reason = cmd.Status, cmd.Reason
	if err := storeTarget(rctx, store, r.room, t); err != nil {
		return err
	}
	ctx.ExchangePublish(exchange.RoomParticipants(r.room), StreamUpdated{Message: MsgStreamUpdated, Target: t})
	return nil
}
