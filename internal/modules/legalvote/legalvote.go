// Package legalvote implements formal votes with a recorded protocol. A
// finished vote can be rendered into a report that is stored as an asset.
package legalvote

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/dkeye/opentalk/internal/assets"
	"github.com/dkeye/opentalk/internal/control"
	"github.com/dkeye/opentalk/internal/core"
	"github.com/dkeye/opentalk/internal/domain"
	"github.com/dkeye/opentalk/internal/exchange"
	"github.com/dkeye/opentalk/internal/report"
	"github.com/dkeye/opentalk/internal/storage"
)

const Namespace = "legal_vote"

// expiryGrace keeps the current vote claimed past its end so the expiry
// handlers still find it.
const expiryGrace = time.Minute

// Builder carries the report collaborators. Without an asset store votes
// still run but no reports are produced.
type Builder struct {
	generator report.Generator
	assets    assets.Store
}

func NewBuilder(gen report.Generator, store assets.Store) *Builder {
	return &Builder{generator: gen, assets: store}
}

func (*Builder) Namespace() string { return Namespace }

func (b *Builder) Init(ctx *core.InitContext) (core.Module, error) {
	return &LegalVote{
		generator: b.generator,
		assets:    b.assets,
		room:      ctx.Room(),
		id:        ctx.ID(),
		logger:    log.With().Str("module", Namespace).Str("participant", string(ctx.ID())).Logger(),
	}, nil
}

type LegalVote struct {
	generator report.Generator
	assets    assets.Store
	room      domain.SignalingRoomID
	id        domain.ParticipantID
	logger    zerolog.Logger

	cancelExpiry func()
}

func (v *LegalVote) Namespace() string { return Namespace }

func (v *LegalVote) OnEvent(ctx *core.ModuleContext, ev core.Event) error {
	switch ev := ev.(type) {
	case core.Joined:
		id, found, err := currentVote(ctx.Context(), ctx.Storage(), v.room)
		if err != nil || !found {
			return err
		}
		started, err := v.started(ctx, id)
		if err != nil {
			return err
		}
		ev.Frontend.Set(started)
	case core.WsMessage:
		return v.onCommand(ctx, ev.Payload)
	case core.ExchangeMessage:
		return v.onExchange(ctx, ev.Payload)
	case core.Ext:
		switch e := ev.Value.(type) {
		case expired:
			v.cancelExpiry = nil
			_, err := v.finish(ctx, e.voteID, StopKind{Kind: StopExpired})
			return err
		case pdfReady:
			return v.onPdfReady(ctx, e)
		}
	}
	return nil
}

func (v *LegalVote) OnDestroy(ctx *core.DestroyContext) error {
	if !ctx.Last {
		return nil
	}
	return purge(ctx.Context(), ctx.Storage(), v.room)
}

// started builds the started message for this participant and schedules the
// vote's expiry.
func (v *LegalVote) started(ctx *core.ModuleContext, id string) (Started, error) {
	rctx, store := ctx.Context(), ctx.Storage()
	params, found, err := loadParams(rctx, store, v.room, id)
	if err != nil {
		return Started{}, err
	}
	if !found {
		return Started{}, fmt.Errorf("vote %s has no parameters", id)
	}
	tok, _, err := token(rctx, store, v.room, id, v.id)
	if err != nil {
		return Started{}, err
	}
	voted, err := hasVoted(rctx, store, v.room, id, v.id)
	if err != nil {
		return Started{}, err
	}
	if v.cancelExpiry != nil {
		v.cancelExpiry()
		v.cancelExpiry = nil
	}
	if params.EndTime != nil {
		v.cancelExpiry = ctx.After(params.EndTime.Sub(ctx.Timestamp()), expired{voteID: id})
	}
	return Started{Message: MsgStarted, VoteID: id, Params: params, Token: tok, Voted: voted}, nil
}

func (v *LegalVote) onCommand(ctx *core.ModuleContext, payload json.RawMessage) error {
	action, err := core.DecodeAction(payload)
	if err != nil {
		return err
	}
	if action == ActionVote {
		cmd, err := core.Decode[Vote](payload)
		if err != nil {
			return err
		}
		return v.vote(ctx, cmd)
	}
	if !ctx.IsModerator() {
		return core.ErrInsufficientPermissions
	}
	switch action {
	case ActionStart:
		cmd, err := core.Decode[Start](payload)
		if err != nil {
			return err
		}
		return v.start(ctx, cmd)
	case ActionStop:
		cmd, err := core.Decode[Stop](payload)
		if err != nil {
			return err
		}
		if err := v.requireCurrent(ctx, cmd.VoteID); err != nil {
			return err
		}
		issuer := v.id
		ok, err := v.finish(ctx, cmd.VoteID, StopKind{Kind: StopByParticipant, Issuer: &issuer})
		if err == nil && !ok {
			return ErrInvalidVoteID
		}
		return err
	case ActionCancel:
		cmd, err := core.Decode[Cancel](payload)
		if err != nil {
			return err
		}
		return v.cancel(ctx, cmd)
	case ActionGeneratePDF:
		cmd, err := core.Decode[GeneratePDF](payload)
		if err != nil {
			return err
		}
		return v.requestPDF(ctx, cmd.VoteID)
	default:
		return core.ErrInvalidAction
	}
}

func (v *LegalVote) requireCurrent(ctx *core.ModuleContext, voteID string) error {
	current, found, err := currentVote(ctx.Context(), ctx.Storage(), v.room)
	if err != nil {
		return err
	}
	if !found {
		return ErrNoVoteActive
	}
	if current != voteID {
		return ErrInvalidVoteID
	}
	return nil
}

func (v *LegalVote) start(ctx *core.ModuleContext, cmd Start) error {
	rctx, store := ctx.Context(), ctx.Storage()
	allowed := lo.Uniq(cmd.AllowedParticipants)
	for _, p := range allowed {
		kind, _, err := storage.GetAttribute[domain.ParticipationKind](rctx, store, v.room, storage.ScopeGlobal, p, control.AttrKind)
		if err != nil {
			return err
		}
		if kind != domain.KindUser {
			return ErrAllowlistContainsGuests
		}
	}

	now := ctx.Timestamp()
	params := Parameters{
		Name:                cmd.Name,
		Subtitle:            cmd.Subtitle,
		Topic:               cmd.Topic,
		Kind:                cmd.Kind,
		AllowedParticipants: allowed,
		EnableAbstain:       cmd.EnableAbstain,
		AutoClose:           cmd.AutoClose,
		CreatePDF:           cmd.CreatePDF,
		Initiator:           v.id,
		StartTime:           now,
	}
	var ttl time.Duration
	if cmd.Duration != nil {
		d := time.Duration(*cmd.Duration) * time.Second
		end := now.Add(d)
		params.EndTime = &end
		ttl = d + expiryGrace
	}
	id := uuid.NewString()
	ok, err := create(rctx, store, v.room, id, params, ttl)
	if err != nil {
		return err
	}
	if !ok {
		return ErrVoteAlreadyActive
	}
	v.logger.Info().Str("vote", id).Str("kind", string(params.Kind)).Int("allowed", len(allowed)).Msg("vote started")
	ctx.ExchangePublish(exchange.RoomParticipants(v.room), exStartedMessage{Message: exStarted, VoteID: id})
	return nil
}

func (v *LegalVote) vote(ctx *core.ModuleContext, cmd Vote) error {
	rctx, store := ctx.Context(), ctx.Storage()
	if err := v.requireCurrent(ctx, cmd.VoteID); err != nil {
		return err
	}
	params, found, err := loadParams(rctx, store, v.room, cmd.VoteID)
	if err != nil {
		return err
	}
	if !found {
		return ErrInvalidVoteID
	}
	if cmd.Option == OptionAbstain && !params.EnableAbstain {
		return ErrInvalidOption
	}
	tok, found, err := token(rctx, store, v.room, cmd.VoteID, v.id)
	if err != nil {
		return err
	}
	if !found || tok != cmd.Token {
		return ErrIneligible
	}

	event := Event{Kind: EventVote, Option: cmd.Option}
	if params.Kind.PublicRecord() {
		self := v.id
		event.Participant = &self
	} else {
		event.Token = tok
	}
	total, first, err := castBallot(rctx, store, v.room, cmd.VoteID, v.id, cmd.Option, ProtocolEntry{Timestamp: ctx.Timestamp(), Event: event})
	if err != nil {
		return err
	}
	if !first {
		return ErrIneligible
	}
	ctx.WsSend(Voted{Message: MsgVoted, VoteID: cmd.VoteID, Response: "success", Option: cmd.Option, ConsumedToken: tok})

	results, err := loadResults(rctx, store, v.room, cmd.VoteID, params)
	if err != nil {
		return err
	}
	update := Updated{Message: MsgUpdated, VoteID: cmd.VoteID, Results: results}
	if params.Kind == KindLiveRollCall {
		if update.VotingRecord, err = votingRecord(rctx, store, v.room, cmd.VoteID); err != nil {
			return err
		}
	}
	ctx.ExchangePublish(exchange.RoomParticipants(v.room), update)

	if params.AutoClose && total >= int64(len(params.AllowedParticipants)) {
		_, err := v.finish(ctx, cmd.VoteID, StopKind{Kind: StopAuto})
		return err
	}
	return nil
}

// finish ends the vote if it is still current. Only one runner wins the
// compare-and-delete; it records the protocol and announces the result.
func (v *LegalVote) finish(ctx *core.ModuleContext, voteID string, kind StopKind) (bool, error) {
	rctx, store := ctx.Context(), ctx.Storage()
	won, err := store.CompareAndDelete(rctx, currentKey(v.room), []byte(voteID))
	if err != nil || !won {
		return false, err
	}
	params, _, err := loadParams(rctx, store, v.room, voteID)
	if err != nil {
		return true, err
	}
	results, err := loadResults(rctx, store, v.room, voteID, params)
	if err != nil {
		return true, err
	}
	now := ctx.Timestamp()
	stopped := Stopped{Message: MsgStopped, VoteID: voteID, Kind: kind, Results: results, EndTime: now}
	if params.Kind.PublicRecord() {
		if stopped.VotingRecord, err = votingRecord(rctx, store, v.room, voteID); err != nil {
			return true, err
		}
	}
	err = appendProtocol(rctx, store, v.room, voteID,
		ProtocolEntry{Timestamp: now, Event: Event{Kind: EventStop, StopKind: kind.Kind, Issuer: kind.Issuer}},
		ProtocolEntry{Timestamp: now, Event: Event{Kind: EventFinalResults, Results: &results}},
	)
	if err != nil {
		return true, err
	}
	v.logger.Info().Str("vote", voteID).Str("stop", kind.Kind).Msg("vote stopped")
	ctx.ExchangePublish(exchange.RoomParticipants(v.room), stopped)
	if params.CreatePDF {
		v.generate(ctx, voteID)
	}
	return true, nil
}

func (v *LegalVote) cancel(ctx *core.ModuleContext, cmd Cancel) error {
	rctx, store := ctx.Context(), ctx.Storage()
	if err := v.requireCurrent(ctx, cmd.VoteID); err != nil {
		return err
	}
	won, err := store.CompareAndDelete(rctx, currentKey(v.room), []byte(cmd.VoteID))
	if err != nil {
		return err
	}
	if !won {
		return ErrInvalidVoteID
	}
	issuer := v.id
	entry := ProtocolEntry{Timestamp: ctx.Timestamp(), Event: Event{Kind: EventCancel, Issuer: &issuer, Reason: cmd.Reason}}
	if err := appendProtocol(rctx, store, v.room, cmd.VoteID, entry); err != nil {
		return err
	}
	ctx.ExchangePublish(exchange.RoomParticipants(v.room), Canceled{Message: MsgCanceled, VoteID: cmd.VoteID, Reason: cmd.Reason, Issuer: issuer})
	return nil
}

func (v *LegalVote) requestPDF(ctx *core.ModuleContext, voteID string) error {
	rctx, store := ctx.Context(), ctx.Storage()
	known, err := isKnown(rctx, store, v.room, voteID)
	if err != nil {
		return err
	}
	current, _, err := currentVote(rctx, store, v.room)
	if err != nil {
		return err
	}
	if !known || current == voteID {
		return ErrInvalidVoteID
	}
	if v.assets == nil || v.generator == nil {
		return ErrInternal
	}
	v.generate(ctx, voteID)
	return nil
}

// generate renders the protocol off the runner.
func (v *LegalVote) generate(ctx *core.ModuleContext, voteID string) {
	if v.assets == nil || v.generator == nil {
		return
	}
	store, room, requester := ctx.Storage(), v.room, v.id
	gen, assetStore := v.generator, v.assets
	ctx.Spawn(func(jctx context.Context) any {
		res := pdfReady{voteID: voteID, requester: requester}
		params, _, err := loadParams(jctx, store, room, voteID)
		if err != nil {
			res.err = err
			return res
		}
		protocol, err := Protocol(jctx, store, room, voteID)
		if err != nil {
			res.err = err
			return res
		}
		res.meta, res.err = report.Render(jctx, gen, assetStore, room.Room, "vote_protocol", protocolDocument(params, protocol))
		return res
	})
}

func (v *LegalVote) onPdfReady(ctx *core.ModuleContext, res pdfReady) error {
	if res.err != nil {
		v.logger.Error().Err(res.err).Str("vote", res.voteID).Msg("vote report failed")
		return ErrInternal
	}
	ctx.ExchangePublish(exchange.RoomParticipants(v.room), PdfAsset{
		Message:  MsgPdfAsset,
		VoteID:   res.voteID,
		AssetID:  res.meta.ID,
		Filename: res.meta.Filename,
	})
	return nil
}

func (v *LegalVote) onExchange(ctx *core.ModuleContext, payload json.RawMessage) error {
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
		started, err := v.started(ctx, m.VoteID)
		if err != nil {
			return err
		}
		ctx.WsSend(started)
	case MsgStopped, MsgCanceled:
		if v.cancelExpiry != nil {
			v.cancelExpiry()
			v.cancelExpiry = nil
		}
		ctx.WsSend(payload)
	case MsgUpdated, MsgPdfAsset:
		ctx.WsSend(payload)
	}
	return nil
}
