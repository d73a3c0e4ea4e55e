// Package moderation gives moderators control over who stays in the room:
// kick, ban, the waiting room and raised hands.
package moderation

import (
	"encoding/json"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/opentalk/internal/control"
	"github.com/dkeye/opentalk/internal/core"
	"github.com/dkeye/opentalk/internal/domain"
	"github.com/dkeye/opentalk/internal/exchange"
	"github.com/dkeye/opentalk/internal/storage"
)

const Namespace = control.ModerationNamespace

type Builder struct{}

func NewBuilder() *Builder { return &Builder{} }

func (Builder) Namespace() string { return Namespace }

func (Builder) Init(ctx *core.InitContext) (core.Module, error) {
	return &Moderation{
		room:   ctx.Room(),
		id:     ctx.ID(),
		logger: log.With().Str("module", Namespace).Str("participant", string(ctx.ID())).Logger(),
	}, nil
}

type Moderation struct {
	room   domain.SignalingRoomID
	id     domain.ParticipantID
	logger zerolog.Logger
}

func (m *Moderation) Namespace() string { return Namespace }

func (m *Moderation) OnEvent(ctx *core.ModuleContext, ev core.Event) error {
	switch ev := ev.(type) {
	case core.Joined:
		if u := ctx.User(); u != nil {
			if err := storage.SetAttribute(ctx.Context(), ctx.Storage(), m.room, storage.ScopeGlobal, m.id, attrUserID, u.ID); err != nil {
				return err
			}
		}
		data, err := m.frontendData(ctx)
		if err != nil {
			return err
		}
		ev.Frontend.Set(data)
	case core.WsMessage:
		return m.onCommand(ctx, ev.Payload)
	case core.ExchangeMessage:
		return m.onExchange(ctx, ev.Payload)
	}
	return nil
}

// OnDestroy keeps the ban list: it outlives the meeting.
func (m *Moderation) OnDestroy(*core.DestroyContext) error { return nil }

func (m *Moderation) onCommand(ctx *core.ModuleContext, payload json.RawMessage) error {
	action, err := core.DecodeAction(payload)
	if err != nil {
		return err
	}
	if !ctx.IsModerator() {
		return core.ErrInsufficientPermissions
	}
	switch action {
	case ActionKick, ActionBan, ActionSendToWaitingRoom:
		cmd, err := core.Decode[Target](payload)
		if err != nil {
			return err
		}
		return m.removeParticipant(ctx, action, cmd.Target)
	case ActionDebrief:
		cmd, err := core.Decode[Debrief](payload)
		if err != nil {
			return err
		}
		ctx.ExchangePublish(exchange.GlobalRoomParticipants(m.room.Room), Debriefed{Message: MsgDebriefed, IssuedBy: m.id, KickScope: cmd.KickScope})
		return nil
	case ActionEnableWaitingRoom, ActionDisableWaitingRoom:
		return m.setWaitingRoom(ctx, action == ActionEnableWaitingRoom)
	case ActionEnableRaiseHands, ActionDisableRaiseHands:
		enabled := action == ActionEnableRaiseHands
		if err := control.SetRaiseHandsEnabled(ctx.Context(), ctx.Storage(), m.room.Room, enabled); err != nil {
			return err
		}
		message := MsgRaiseHandsDisabled
		if enabled {
			message = MsgRaiseHandsEnabled
		}
		ctx.ExchangePublish(exchange.GlobalRoomParticipants(m.room.Room), Issued{Message: message, IssuedBy: m.id})
		return nil
	case ActionAccept:
		cmd, err := core.Decode[Target](payload)
		if err != nil {
			return err
		}
		return m.accept(ctx, cmd.Target)
	case ActionResetRaisedHands:
		cmd, err := core.Decode[ResetRaisedHands](payload)
		if err != nil {
			return err
		}
		key := exchange.GlobalRoomParticipants(m.room.Room)
		if cmd.Target != nil {
			key = exchange.GlobalRoomParticipant(m.room.Room, *cmd.Target)
		}
		ctx.ExchangePublish(key, Issued{Message: exResetRaisedHands, IssuedBy: m.id})
		return nil
	default:
		return core.ErrInvalidAction
	}
}

// removeParticipant kicks, bans or parks target. The target's own runner
// performs the exit when it receives the message.
func (m *Moderation) removeParticipant(ctx *core.ModuleContext, action string, target domain.ParticipantID) error {
	rctx, store := ctx.Context(), ctx.Storage()
	present, err := store.SIsMember(rctx, storage.GlobalRoomKey(m.room.Room, "all_participants"), string(target))
	if err != nil {
		return err
	}
	if !present || target == m.id {
		return ErrInvalidParticipant
	}
	owner, err := control.IsRoomOwner(rctx, store, m.room, target)
	if err != nil {
		return err
	}
	if owner {
		return ErrTargetIsRoomOwner
	}

	message := exKicked
	switch action {
	case ActionBan:
		user, found, err := storage.GetAttribute[domain.UserID](rctx, store, m.room, storage.ScopeGlobal, target, attrUserID)
		if err != nil {
			return err
		}
		if !found {
			return ErrCannotBanGuest
		}
		if err := ban(rctx, store, m.room.Room, user); err != nil {
			return err
		}
		message = exBanned
	case ActionSendToWaitingRoom:
		message = exSentToWaitingRoom
	}
	m.logger.Info().Str("target", string(target)).Str("action", action).Msg("moderating participant")
	ctx.ExchangePublish(exchange.GlobalRoomParticipant(m.room.Room, target), Issued{Message: message, IssuedBy: m.id})
	return nil
}

func (m *Moderation) setWaitingRoom(ctx *core.ModuleContext, enabled bool) error {
	rctx, store := ctx.Context(), ctx.Storage()
	changed, err := control.SetWaitingRoomEnabled(rctx, store, ctx.RoomInfo(), enabled)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	message := MsgWaitingRoomDisabled
	if enabled {
		message = MsgWaitingRoomEnabled
	}
	ctx.ExchangePublish(exchange.GlobalRoomParticipants(m.room.Room), Issued{Message: message, IssuedBy: m.id})
	if enabled {
		return nil
	}
	// Everyone still waiting is let in.
	waiting, err := control.WaitingList(rctx, store, m.room.Room)
	if err != nil {
		return err
	}
	for _, id := range waiting {
		if err := m.admit(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (m *Moderation) accept(ctx *core.ModuleContext, target domain.ParticipantID) error {
	waiting, err := control.IsWaiting(ctx.Context(), ctx.Storage(), m.room.Room, target)
	if err != nil {
		return err
	}
	if !waiting {
		return ErrNotInWaitingRoom
	}
	return m.admit(ctx, target)
}

func (m *Moderation) admit(ctx *core.ModuleContext, target domain.ParticipantID) error {
	if err := control.Accept(ctx.Context(), ctx.Storage(), m.room.Room, target); err != nil {
		return err
	}
	ctx.ExchangePublishAs(control.Namespace, exchange.GlobalRoomParticipant(m.room.Room, target), control.Msg(control.ExAccepted))
	return nil
}

func (m *Moderation) onExchange(ctx *core.ModuleContext, payload json.RawMessage) error {
	message, err := core.DecodeMessage(payload)
	if err != nil {
		return nil
	}
	var issued Issued
	_ = json.Unmarshal(payload, &issued)

	switch message {
	case exKicked:
		ctx.Exit(core.ExitKicked)
	case exBanned:
		ctx.Exit(core.ExitBanned)
	case exSentToWaitingRoom:
		ctx.WsSend(Issued{Message: MsgSentToWaitingRoom, IssuedBy: issued.IssuedBy})
		ctx.EnterWaitingRoom()
	case exResetRaisedHands:
		ctx.ResetRaisedHand()
		ctx.WsSend(Issued{Message: MsgRaisedHandResetByModerator, IssuedBy: issued.IssuedBy})
	case MsgRaiseHandsDisabled:
		ctx.ResetRaisedHand()
		ctx.WsSend(payload)
	case MsgRaiseHandsEnabled, MsgWaitingRoomEnabled, MsgWaitingRoomDisabled:
		ctx.WsSend(payload)
	case MsgDebriefed:
		var d Debriefed
		if err := json.Unmarshal(payload, &d); err != nil {
			return nil
		}
		if !ctx.IsModerator() && d.KickScope.Covers(ctx.Participant().Kind) {
			ctx.Exit(core.ExitKicked)
			return nil
		}
		ctx.WsSend(d)
	case control.ExJoinedWaitingRoom, control.ExLeftWaitingRoom:
		if ctx.IsModerator() {
			ctx.WsSend(payload)
		}
	}
	return nil
}

func (m *Moderation) frontendData(ctx *core.ModuleContext) (FrontendData, error) {
	rctx, store := ctx.Context(), ctx.Storage()
	var (
		data FrontendData
		err  error
	)
	if data.RaiseHandsEnabled, err = control.RaiseHandsEnabled(rctx, store, m.room.Room); err != nil {
		return data, err
	}
	if !ctx.IsModerator() {
		return data, nil
	}
	enabled, err := control.WaitingRoomEnabled(rctx, store, ctx.RoomInfo())
	if err != nil {
		return data, err
	}
	data.WaitingRoomEnabled = &enabled
	waiting, err := control.WaitingList(rctx, store, m.room.Room)
	if err != nil {
		return data, err
	}
	data.WaitingRoomParticipants = make([]WaitingParticipant, 0, len(waiting))
	for _, id := range waiting {
		data.WaitingRoomParticipants = append(data.WaitingRoomParticipants, WaitingParticipant{ID: id})
	}
	return data, nil
}
