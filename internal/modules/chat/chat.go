// Package chat implements room, group and private text messages with a
// bounded history per scope and a moderator controlled on/off switch.
package chat

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

const Namespace = "chat"

type Params struct {
	// HistoryLen caps the stored messages per scope.
	HistoryLen       int64
	MaxMessageLength int
}

var DefaultParams = Params{HistoryLen: 100, MaxMessageLength: 4096}

type Builder struct {
	params Params
}

func NewBuilder(p Params) *Builder {
	if p.HistoryLen <= 0 {
		p.HistoryLen = DefaultParams.HistoryLen
	}
	if p.MaxMessageLength <= 0 {
		p.MaxMessageLength = DefaultParams.MaxMessageLength
	}
	return &Builder{params: p}
}

func (b *Builder) Namespace() string { return Namespace }

func (b *Builder) Init(ctx *core.InitContext) (core.Module, error) {
	var groups []string
	if u := ctx.User(); u != nil {
		groups = u.Groups
	}
	return &Chat{
		params: b.params,
		room:   ctx.Room(),
		id:     ctx.ID(),
		groups: groups,
		logger: log.With().Str("module", Namespace).Str("participant", string(ctx.ID())).Logger(),
	}, nil
}

type Chat struct {
	params Params
	room   domain.SignalingRoomID
	id     domain.ParticipantID
	groups []string
	logger zerolog.Logger
}

func (c *Chat) Namespace() string { return Namespace }

func (c *Chat) OnEvent(ctx *core.ModuleContext, ev core.Event) error {
	switch ev := ev.(type) {
	case core.Joined:
		data, err := c.frontendData(ctx)
		if err != nil {
			return err
		}
		ev.Frontend.Set(data)
	case core.WsMessage:
		return c.onCommand(ctx, ev.Payload)
	case core.ExchangeMessage:
		return c.onExchange(ctx, ev.Payload)
	}
	return nil
}

func (c *Chat) OnDestroy(ctx *core.DestroyContext) error {
	if ctx.Last {
		if err := purgeRoom(ctx.Context(), ctx.Storage(), c.room); err != nil {
			return err
		}
	}
	if ctx.LastGlobal {
		return ctx.Storage().Del(ctx.Context(), enabledKey(c.room.Room))
	}
	return nil
}

func (c *Chat) onCommand(ctx *core.ModuleContext, payload json.RawMessage) error {
	action, err := core.DecodeAction(payload)
	if err != nil {
		return err
	}
	switch action {
	case ActionSendMessage:
		cmd, err := core.Decode[SendMessage](payload)
		if err != nil {
			return err
		}
		return c.sendMessage(ctx, cmd)
	case ActionEnableChat, ActionDisableChat:
		return c.setEnabled(ctx, action == ActionEnableChat)
	case ActionClearHistory:
		return c.clearHistory(ctx)
	case ActionSetLastSeenTimestamp:
		cmd, err := core.Decode[SetLastSeenTimestamp](payload)
		if err != nil {
			return err
		}
		return setLastSeen(ctx.Context(), ctx.Storage(), c.room, c.id, cmd.Scope, cmd.Target, cmd.Timestamp)
	default:
		return core.ErrInvalidAction
	}
}

func (c *Chat) sendMessage(ctx *core.ModuleContext, cmd SendMessage) error {
	store := ctx.Storage()
	enabled, err := isEnabled(ctx.Context(), store, c.room.Room)
	if err != nil {
		return err
	}
	if !enabled {
		return ErrChatDisabled
	}
	if len([]rune(cmd.Content)) > c.params.MaxMessageLength {
		return ErrMessageTooLong
	}

	msg := StoredMessage{
		ID:        uuid.NewString(),
		Source:    c.id,
		Timestamp: ctx.Timestamp(),
		Content:   cmd.Content,
		Scope:     cmd.Scope,
		Target:    cmd.Target,
	}
	switch cmd.Scope {
	case ScopeGlobal:
		msg.Target = ""
		if err := appendHistory(ctx.Context(), store, c.room, roomHistoryKey(c.room), msg, c.params.HistoryLen); err != nil {
			return err
		}
		ctx.ExchangePublish(exchange.RoomParticipants(c.room), msg.sent())
	case ScopeGroup:
		if !lo.Contains(c.groups, cmd.Target) {
			return ErrInvalidScope
		}
		if err := appendHistory(ctx.Context(), store, c.room, groupHistoryKey(c.room, cmd.Target), msg, c.params.HistoryLen); err != nil {
			return err
		}
		ctx.ExchangePublish(exchange.RoomParticipants(c.room), msg.sent())
	case ScopePrivate:
		target := domain.ParticipantID(cmd.Target)
		if err := c.sendPrivate(ctx, target, msg); err != nil {
			return err
		}
	}
	return nil
}

func (c *Chat) sendPrivate(ctx *core.ModuleContext, target domain.ParticipantID, msg StoredMessage) error {
	store := ctx.Storage()
	if target == c.id {
		return ErrInvalidScope
	}
	present, err := isParticipant(ctx.Context(), store, c.room, target)
	if err != nil {
		return err
	}
	if !present {
		return ErrInvalidScope
	}
	if err := appendHistory(ctx.Context(), store, c.room, privateHistoryKey(c.room, c.id, target), msg, c.params.HistoryLen); err != nil {
		return err
	}
	if err := addCorrespondents(ctx.Context(), store, c.room, c.id, target); err != nil {
		return err
	}
	ctx.WsSend(msg.sent())
	ctx.ExchangePublish(exchange.RoomParticipant(c.room, target), msg.sent())
	return nil
}

func (c *Chat) setEnabled(ctx *core.ModuleContext, enabled bool) error {
	if !ctx.IsModerator() {
		return core.ErrInsufficientPermissions
	}
	if err := setEnabled(ctx.Context(), ctx.Storage(), c.room.Room, enabled); err != nil {
		return err
	}
	message := MsgChatDisabled
	if enabled {
		message = MsgChatEnabled
	}
	c.logger.Info().Bool("enabled", enabled).Msg("chat toggled")
	ctx.ExchangePublish(exchange.GlobalRoomParticipants(c.room.Room), Issued{Message: message, IssuedBy: c.id})
	return nil
}

func (c *Chat) clearHistory(ctx *core.ModuleContext) error {
	if !ctx.IsModerator() {
		return core.ErrInsufficientPermissions
	}
	if err := clearHistories(ctx.Context(), ctx.Storage(), c.room); err != nil {
		return err
	}
	ctx.ExchangePublish(exchange.RoomParticipants(c.room), Issued{Message: MsgHistoryCleared, IssuedBy: c.id})
	return nil
}

func (c *Chat) onExchange(ctx *core.ModuleContext, payload json.RawMessage) error {
	message, err := core.DecodeMessage(payload)
	if err != nil {
		c.logger.Warn().Msg("malformed exchange message")
		return nil
	}
	switch message {
	case MsgMessageSent:
		var sent MessageSent
		if err := json.Unmarshal(payload, &sent); err != nil {
			return nil
		}
		if sent.Scope == ScopeGroup && !lo.Contains(c.groups, sent.Target) {
			return nil
		}
		ctx.WsSend(sent)
	case MsgChatEnabled, MsgChatDisabled, MsgHistoryCleared:
		ctx.WsSend(payload)
	}
	return nil
}

func (c *Chat) frontendData(ctx *core.ModuleContext) (FrontendData, error) {
	store := ctx.Storage()
	rctx := ctx.Context()
	data := FrontendData{
		GroupsHistory:  []GroupHistory{},
		PrivateHistory: []PrivateHistory{},
	}
	var err error
	if data.Enabled, err = isEnabled(rctx, store, c.room.Room); err != nil {
		return data, err
	}
	if data.RoomHistory, err = history(rctx, store, roomHistoryKey(c.room)); err != nil {
		return data, err
	}
	for _, g := range lo.Uniq(c.groups) {
		h, err := history(rctx, store, groupHistoryKey(c.room, g))
		if err != nil {
			return data, err
		}
		data.GroupsHistory = append(data.GroupsHistory, GroupHistory{Name: g, History: h})
	}
	correspondents, err := correspondents(rctx, store, c.room, c.id)
	if err != nil {
		return data, err
	}
	for _, other := range correspondents {
		h, err := history(rctx, store, privateHistoryKey(c.room, c.id, other))
		if err != nil {
			return data, err
		}
		data.PrivateHistory = append(data.PrivateHistory, PrivateHistory{Correspondent: other, History: h})
	}

	seen, err := lastSeen(rctx, store, c.room, c.id)
	if err != nil {
		return data, err
	}
	data.LastSeenTimestampGlobal = seen.global
	data.LastSeenTimestampsGroup = seen.groups
	data.LastSeenTimestampsPrivate = seen.private
	return data, nil
}

type seenTimestamps struct {
	global  *time.Time
	groups  map[string]time.Time
	private map[domain.ParticipantID]time.Time
}
