// Package polls runs one poll per room. Votes are counted in a per-choice
// hash so every runner can read the results without coordination.
package polls

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/dkeye/opentalk/internal/core"
	"github.com/dkeye/opentalk/internal/domain"
	"github.com/dkeye/opentalk/internal/exchange"
)

const Namespace = "polls"

type Builder struct{}

func NewBuilder() *Builder { return &Builder{} }

func (*Builder) Namespace() string { return Namespace }

func (*Builder) Init(ctx *core.InitContext) (core.Module, error) {
	return &Polls{
		room:   ctx.Room(),
		id:     ctx.ID(),
		logger: log.With().Str("module", Namespace).Str("participant", string(ctx.ID())).Logger(),
	}, nil
}

type Polls struct {
	room   domain.SignalingRoomID
	id     domain.ParticipantID
	logger zerolog.Logger

	cancelExpiry func()
}

type expired struct {
	pollID string
}

func (p *Polls) Namespace() string { return Namespace }

func (p *Polls) OnEvent(ctx *core.ModuleContext, ev core.Event) error {
	switch ev := ev.(type) {
	case core.Joined:
		poll, _, found, err := loadCurrent(ctx.Context(), ctx.Storage(), p.room)
		if err != nil || !found {
			return err
		}
		p.schedule(ctx, poll)
		ev.Frontend.Set(poll.started(ctx.Timestamp()))
	case core.WsMessage:
		return p.onCommand(ctx, ev.Payload)
	case core.ExchangeMessage:
		return p.onExchange(ctx, ev.Payload)
	case core.Ext:
		if e, ok := ev.Value.(expired); ok {
			p.cancelExpiry = nil
			return p.finish(ctx, e.pollID, false)
		}
	}
	return nil
}

func (p *Polls) OnDestroy(ctx *core.DestroyContext) error {
	if !ctx.Last {
		return nil
	}
	return purge(ctx.Context(), ctx.Storage(), p.room)
}

func (p *Polls) schedule(ctx *core.ModuleContext, poll Poll) {
	p.stopExpiry()
	p.cancelExpiry = ctx.After(poll.endsAt().Sub(ctx.Timestamp()), expired{pollID: poll.ID})
}

func (p *Polls) stopExpiry() {
	if p.cancelExpiry != nil {
		p.cancelExpiry()
		p.cancelExpiry = nil
	}
}

func (p *Polls) onCommand(ctx *core.ModuleContext, payload json.RawMessage) error {
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
		return p.start(ctx, cmd)
	case ActionVote:
		cmd, err := core.Decode[Vote](payload)
		if err != nil {
			return err
		}
		return p.vote(ctx, cmd)
	case ActionFinish:
		if !ctx.IsModerator() {
			return core.ErrInsufficientPermissions
		}
		cmd, err := core.Decode[Finish](payload)
		if err != nil {
			return err
		}
		return p.finish(ctx, cmd.PollID, true)
	default:
		return core.ErrInvalidAction
	}
}

func (p *Polls) start(ctx *core.ModuleContext, cmd Start) error {
	poll := Poll{
		ID:             uuid.NewString(),
		Topic:          cmd.Topic,
		Live:           cmd.Live,
		MultipleChoice: cmd.MultipleChoice,
		Choices: lo.Map(cmd.Choices, func(content string, i int) Choice {
			return Choice{ID: ChoiceID(i), Content: content}
		}),
		Started:  ctx.Timestamp(),
		Duration: time.Duration(cmd.Duration) * time.Second,
	}
	ok, err := createCurrent(ctx.Context(), ctx.Storage(), p.room, poll)
	if err != nil {
		return err
	}
	if !ok {
		return ErrStillRunning
	}
	p.logger.Info().Str("poll", poll.ID).Int("choices", len(poll.Choices)).Msg("poll started")
	ctx.ExchangePublish(exchange.RoomParticipants(p.room), exStartedMessage{Message: exStarted, Poll: poll})
	return nil
}

func (p *Polls) vote(ctx *core.ModuleContext, cmd Vote) error {
	rctx, store := ctx.Context(), ctx.Storage()
	poll, _, found, err := loadCurrent(rctx, store, p.room)
	if err != nil {
		return err
	}
	if !found || poll.ID != cmd.PollID {
		return ErrInvalidPollID
	}
	choices := lo.Uniq(cmd.Choices)
	if !poll.MultipleChoice && len(choices) > 1 {
		return ErrInvalidChoiceCount
	}
	if lo.SomeBy(choices, func(c ChoiceID) bool { return !poll.hasChoice(c) }) {
		return ErrInvalidChoiceID
	}
	if err := castVote(rctx, store, p.room, poll.ID, p.id, choices); err != nil {
		return err
	}
	ctx.WsSend(Voted{Message: MsgVoted, PollID: poll.ID, Choices: choices})
	if poll.Live {
		results, err := loadResults(rctx, store, p.room, poll)
		if err != nil {
			return err
		}
		ctx.ExchangePublish(exchange.RoomParticipants(p.room), Results{Message: MsgLiveUpdate, ID: poll.ID, Results: results})
	}
	return nil
}

// finish closes the poll with pollID. Explicit finishes report an unknown
// id; expiries lose silently to whichever runner got there first.
func (p *Polls) finish(ctx *core.ModuleContext, pollID string, explicit bool) error {
	rctx, store := ctx.Context(), ctx.Storage()
	poll, raw, found, err := loadCurrent(rctx, store, p.room)
	if err != nil {
		return err
	}
	if !found || poll.ID != pollID {
		if explicit {
			return ErrInvalidPollID
		}
		return nil
	}
	results, err := loadResults(rctx, store, p.room, poll)
	if err != nil {
		return err
	}
	deleted, err := store.CompareAndDelete(rctx, currentKey(p.room), raw)
	if err != nil {
		return err
	}
	if !deleted {
		if explicit {
			return ErrInvalidPollID
		}
		return nil
	}
	if err := purgePoll(rctx, store, p.room, poll.ID); err != nil {
		p.logger.Warn().Err(err).Str("poll", poll.ID).Msg("purge poll votes")
	}
	p.logger.Info().Str("poll", poll.ID).Bool("expired", !explicit).Msg("poll done")
	ctx.ExchangePublish(exchange.RoomParticipants(p.room), Results{Message: MsgDone, ID: poll.ID, Results: results})
	return nil
}

func (p *Polls) onExchange(ctx *core.ModuleContext, payload json.RawMessage) error {
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
		p.schedule(ctx, m.Poll)
		ctx.WsSend(m.Poll.started(ctx.Timestamp()))
	case MsgDone:
		p.stopExpiry()
		ctx.WsSend(payload)
	case MsgLiveUpdate:
		ctx.WsSend(payload)
	}
	return nil
}
