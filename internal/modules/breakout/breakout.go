// Package breakout splits a meeting into child rooms. Runners move their
// participants server side; when the configured duration runs out everyone
// returns to the parent room.
package breakout

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

const Namespace = "breakout"

type Builder struct{}

func NewBuilder() *Builder { return &Builder{} }

func (Builder) Namespace() string { return Namespace }

func (Builder) Init(ctx *core.InitContext) (core.Module, error) {
	return &Breakout{
		room:   ctx.Room(),
		id:     ctx.ID(),
		logger: log.With().Str("module", Namespace).Str("participant", string(ctx.ID())).Logger(),
	}, nil
}

type Breakout struct {
	room   domain.SignalingRoomID
	id     domain.ParticipantID
	logger zerolog.Logger

	config       *Config
	cancelExpiry func()
}

// expiry is delivered when the active config's duration is over.
type expiry struct {
	configID string
}

func (b *Breakout) Namespace() string { return Namespace }

func (b *Breakout) OnEvent(ctx *core.ModuleContext, ev core.Event) error {
	switch ev := ev.(type) {
	case core.Joined:
		return b.onJoined(ctx, ev)
	case core.Leaving:
		if b.config != nil {
			ctx.ExchangePublish(exchange.GlobalRoomParticipants(b.room.Room), Presence{Message: MsgLeft, ID: b.id, Breakout: b.room.Breakout})
		}
		b.stopExpiry()
	case core.WsMessage:
		return b.onCommand(ctx, ev.Payload)
	case core.ExchangeMessage:
		return b.onExchange(ctx, ev.Payload)
	case core.Ext:
		if e, ok := ev.Value.(expiry); ok {
			return b.onExpired(ctx, e.configID)
		}
	}
	return nil
}

func (b *Breakout) OnDestroy(ctx *core.DestroyContext) error {
	if ctx.LastGlobal {
		return deleteConfig(ctx.Context(), ctx.Storage(), b.room.Room)
	}
	return nil
}

func (b *Breakout) onJoined(ctx *core.ModuleContext, ev core.Joined) error {
	cfg, found, err := loadConfig(ctx.Context(), ctx.Storage(), b.room.Room)
	if err != nil {
		return err
	}
	if found && cfg.expired(ctx.Timestamp()) {
		found = false
	}
	if !found {
		if b.room.IsBreakout() {
			// The breakout ended while this participant was away.
			ctx.SwitchRoom("")
		}
		return nil
	}
	if b.room.IsBreakout() && !cfg.has(b.room.Breakout) {
		ctx.SwitchRoom("")
		return nil
	}

	b.activate(ctx, cfg)
	ev.Frontend.Set(FrontendData{
		Current: current(b.room),
		Rooms:   cfg.roomList(),
		Expires: cfg.ExpiresAt,
	})
	ctx.ExchangePublish(exchange.GlobalRoomParticipants(b.room.Room), Presence{
		Message:     MsgJoined,
		ID:          b.id,
		DisplayName: ctx.DisplayName(),
		Breakout:    b.room.Breakout,
	})
	return nil
}

func (b *Breakout) activate(ctx *core.ModuleContext, cfg Config) {
	b.stopExpiry()
	b.config = &cfg
	if cfg.ExpiresAt != nil {
		b.cancelExpiry = ctx.After(cfg.ExpiresAt.Sub(ctx.Timestamp()), expiry{configID: cfg.ID})
	}
}

func (b *Breakout) stopExpiry() {
	if b.cancelExpiry != nil {
		b.cancelExpiry()
		b.cancelExpiry = nil
	}
}

func (b *Breakout) onCommand(ctx *core.ModuleContext, payload json.RawMessage) error {
	action, err := core.DecodeAction(payload)
	if err != nil {
		return err
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
		return b.start(ctx, cmd)
	case ActionStop:
		rctx, store := ctx.Context(), ctx.Storage()
		_, found, err := loadConfig(rctx, store, b.room.Room)
		if err != nil {
			return err
		}
		if !found {
			return ErrInactive
		}
		if err := deleteConfig(rctx, store, b.room.Room); err != nil {
			return err
		}
		ctx.ExchangePublish(exchange.GlobalRoomParticipants(b.room.Room), stopMessage{Message: exStop, IssuedBy: b.id})
		return nil
	default:
		return core.ErrInvalidAction
	}
}

func (b *Breakout) start(ctx *core.ModuleContext, cmd Start) error {
	cfg := Config{
		ID:      uuid.NewString(),
		Started: ctx.Timestamp(),
		Rooms: lo.Map(cmd.Rooms, func(r RoomParams, _ int) Room {
			return Room{ID: domain.NewBreakoutRoomID(), Name: r.Name, Assignments: r.Assignments}
		}),
	}
	var ttl time.Duration
	if cmd.Duration != nil {
		ttl = time.Duration(*cmd.Duration) * time.Second
		expires := cfg.Started.Add(ttl)
		cfg.Duration = cmd.Duration
		cfg.ExpiresAt = &expires
	}
	if err := storeConfig(ctx.Context(), ctx.Storage(), b.room.Room, cfg, ttl); err != nil {
		return err
	}
	b.logger.Info().Str("config", cfg.ID).Int("rooms", len(cfg.Rooms)).Dur("ttl", ttl).Msg("breakout started")
	ctx.ExchangePublish(exchange.GlobalRoomParticipants(b.room.Room), startMessage{Message: exStart, Config: cfg})
	return nil
}

func (b *Breakout) onExchange(ctx *core.ModuleContext, payload json.RawMessage) error {
	message, err := core.DecodeMessage(payload)
	if err != nil {
		return nil
	}
	switch message {
	case exStart:
		var m startMessage
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil
		}
		b.activate(ctx, m.Config)
		assignment := m.Config.assignment(b.id)
		ctx.WsSend(Started{
			Message:    MsgStarted,
			Rooms:      m.Config.roomList(),
			Duration:   m.Config.Duration,
			Expires:    m.Config.ExpiresAt,
			Assignment: assignment,
		})
		target := domain.BreakoutRoomID("")
		if assignment != nil {
			target = *assignment
		}
		if target != b.room.Breakout {
			ctx.SwitchRoom(target)
		}
	case exStop:
		b.stopExpiry()
		b.config = nil
		ctx.WsSend(Simple{Message: MsgStopped})
		if b.room.IsBreakout() {
			ctx.SwitchRoom("")
		}
	case MsgJoined, MsgLeft:
		var p Presence
		if err := json.Unmarshal(payload, &p); err != nil || p.ID == b.id || p.Breakout == b.room.Breakout {
			return nil
		}
		ctx.WsSend(p)
	}
	return nil
}

func (b *Breakout) onExpired(ctx *core.ModuleContext, configID string) error {
	if b.config == nil || b.config.ID != configID {
		return nil
	}
	cfg, found, err := loadConfig(ctx.Context(), ctx.Storage(), b.room.Room)
	if err != nil {
		return err
	}
	if found && cfg.ID != configID {
		return nil
	}
	if found {
		if err := deleteConfig(ctx.Context(), ctx.Storage(), b.room.Room); err != nil {
			return err
		}
	}
	b.config, b.cancelExpiry = nil, nil
	b.logger.Info().Str("config", configID).Msg("breakout expired")
	ctx.WsSend(Simple{Message: MsgExpired})
	if b.room.IsBreakout() {
		ctx.SwitchRoom("")
	}
	return nil
}

func current(room domain.SignalingRoomID) *domain.BreakoutRoomID {
	if !room.IsBreakout() {
		return nil
	}
	id := room.Breakout
	return &id
}
