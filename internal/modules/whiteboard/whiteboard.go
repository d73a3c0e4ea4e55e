// Package whiteboard creates one shared whiteboard space per room on demand.
package whiteboard

import (
	"context"
	"net/url"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/opentalk/internal/core"
	"github.com/dkeye/opentalk/internal/domain"
	"github.com/dkeye/opentalk/internal/exchange"
)

const Namespace = "whiteboard"

type Builder struct {
	spaces Spaces
}

// NewBuilder returns a builder whose module declines when spaces is nil.
func NewBuilder(spaces Spaces) *Builder { return &Builder{spaces: spaces} }

func (*Builder) Namespace() string { return Namespace }

func (b *Builder) Init(ctx *core.InitContext) (core.Module, error) {
	if b.spaces == nil {
		return nil, nil
	}
	return &Whiteboard{
		spaces: b.spaces,
		room:   ctx.Room(),
		logger: log.With().Str("module", Namespace).Str("participant", string(ctx.ID())).Logger(),
	}, nil
}

type Whiteboard struct {
	spaces Spaces
	room   domain.SignalingRoomID
	logger zerolog.Logger
}

type spaceCreated struct {
	url *url.URL
	err error
}

func (w *Whiteboard) Namespace() string { return Namespace }

func (w *Whiteboard) OnEvent(ctx *core.ModuleContext, ev core.Event) error {
	switch ev := ev.(type) {
	case core.Joined:
		s, found, err := loadState(ctx.Context(), ctx.Storage(), w.room)
		if err != nil {
			return err
		}
		if found && s.Status == statusInitialized {
			ev.Frontend.Set(FrontendData{Status: s.Status, URL: s.URL})
		}
	case core.WsMessage:
		action, err := core.DecodeAction(ev.Payload)
		if err != nil {
			return err
		}
		if action != ActionInitialize {
			return core.ErrInvalidAction
		}
		if !ctx.IsModerator() {
			return core.ErrInsufficientPermissions
		}
		return w.initialize(ctx)
	case core.ExchangeMessage:
		if message, err := core.DecodeMessage(ev.Payload); err == nil && message == exSpaceURL {
			ctx.WsSend(ev.Payload)
		}
	case core.Ext:
		if res, ok := ev.Value.(spaceCreated); ok {
			return w.onSpaceCreated(ctx, res)
		}
	}
	return nil
}

func (w *Whiteboard) OnDestroy(ctx *core.DestroyContext) error {
	if ctx.Last {
		return deleteState(ctx.Context(), ctx.Storage(), w.room)
	}
	return nil
}

func (w *Whiteboard) initialize(ctx *core.ModuleContext) error {
	rctx, store := ctx.Context(), ctx.Storage()
	claimed, err := claimInitialization(rctx, store, w.room)
	if err != nil {
		return err
	}
	if !claimed {
		s, _, err := loadState(rctx, store, w.room)
		if err != nil {
			return err
		}
		if s.Status == statusInitialized {
			return ErrAlreadyInitialized
		}
		return ErrCurrentlyInitializing
	}
	name := w.room.String()
	spaces := w.spaces
	ctx.Spawn(func(jctx context.Context) any {
		u, err := spaces.CreateSpace(jctx, name)
		return spaceCreated{url: u, err: err}
	})
	return nil
}

func (w *Whiteboard) onSpaceCreated(ctx *core.ModuleContext, res spaceCreated) error {
	rctx, store := ctx.Context(), ctx.Storage()
	if res.err != nil {
		w.logger.Error().Err(res.err).Msg("create whiteboard space")
		if err := deleteState(rctx, store, w.room); err != nil {
			return err
		}
		return ErrInternal
	}
	if err := storeSpace(rctx, store, w.room, res.url.String()); err != nil {
		return err
	}
	w.logger.Info().Str("url", res.url.String()).Msg("whiteboard initialized")
	ctx.ExchangePublish(exchange.RoomParticipants(w.room), SpaceURL{Message: MsgSpaceURL, URL: res.url.String()})
	return nil
}

