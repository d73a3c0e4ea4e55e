// Package meetingnotes gives the room a shared notes pad that selected
// participants may edit while everyone else reads along.
package meetingnotes

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/opentalk/internal/assets"
	"github.com/dkeye/opentalk/internal/core"
	"github.com/dkeye/opentalk/internal/domain"
	"github.com/dkeye/opentalk/internal/exchange"
	"github.com/dkeye/opentalk/internal/report"
)

const Namespace = "meeting_notes"

type Builder struct {
	pads      Pads
	generator report.Generator
	assets    assets.Store
}

// NewBuilder returns a builder whose module declines when pads is nil.
func NewBuilder(pads Pads, gen report.Generator, store assets.Store) *Builder {
	return &Builder{pads: pads, generator: gen, assets: store}
}

func (*Builder) Namespace() string { return Namespace }

func (b *Builder) Init(ctx *core.InitContext) (core.Module, error) {
	if b.pads == nil {
		return nil, nil
	}
	return &MeetingNotes{
		pads:      b.pads,
		generator: b.generator,
		assets:    b.assets,
		room:      ctx.Room(),
		id:        ctx.ID(),
		logger:    log.With().Str("module", Namespace).Str("participant", string(ctx.ID())).Logger(),
	}, nil
}

type MeetingNotes struct {
	pads      Pads
	generator report.Generator
	assets    assets.Store
	room      domain.SignalingRoomID
	id        domain.ParticipantID
	logger    zerolog.Logger
}

type (
	padCreated struct {
		pad Pad
		err error
	}
	writeURLReady struct {
		url *url.URL
		err error
	}
	pdfReady struct {
		meta assets.Meta
		err  error
	}
)

func (n *MeetingNotes) Namespace() string { return Namespace }

func (n *MeetingNotes) OnEvent(ctx *core.ModuleContext, ev core.Event) error {
	switch ev := ev.(type) {
	case core.Joined:
		return n.onJoined(ctx, ev)
	case core.WsMessage:
		return n.onCommand(ctx, ev.Payload)
	case core.ExchangeMessage:
		message, err := core.DecodeMessage(ev.Payload)
		if err != nil {
			return nil
		}
		switch message {
		case exPadReady, exAccessChanged:
			return n.sendAccess(ctx)
		case MsgPdfAsset:
			ctx.WsSend(ev.Payload)
		}
	case core.Ext:
		switch res := ev.Value.(type) {
		case padCreated:
			return n.onPadCreated(ctx, res)
		case writeURLReady:
			if res.err != nil {
				n.logger.Error().Err(res.err).Msg("open write session")
				return ErrInternal
			}
			ctx.WsSend(AccessURL{Message: MsgWriteURL, URL: res.url.String()})
		case pdfReady:
			if res.err != nil {
				n.logger.Error().Err(res.err).Msg("notes report failed")
				return ErrInternal
			}
			ctx.ExchangePublish(exchange.RoomParticipants(n.room), PdfAsset{
				Message:  MsgPdfAsset,
				AssetID:  res.meta.ID,
				Filename: res.meta.Filename,
			})
		}
	}
	return nil
}

func (n *MeetingNotes) OnDestroy(ctx *core.DestroyContext) error {
	if ctx.Last {
		return cleanup(ctx.Context(), ctx.Storage(), n.room)
	}
	return nil
}

func (n *MeetingNotes) onJoined(ctx *core.ModuleContext, ev core.Joined) error {
	rctx, store := ctx.Context(), ctx.Storage()
	pad, found, err := loadPad(rctx, store, n.room)
	if err != nil || !found {
		return err
	}
	ev.Frontend.Set(FrontendData{ReadURL: n.pads.ReadURL(pad).String()})
	writer, err := isWriter(rctx, store, n.room, n.id)
	if err != nil {
		return err
	}
	if writer {
		n.openWriteSession(ctx, pad)
	}
	return nil
}

func (n *MeetingNotes) onCommand(ctx *core.ModuleContext, payload json.RawMessage) error {
	action, err := core.DecodeAction(payload)
	if err != nil {
		return err
	}
	switch action {
	case ActionSelectWriter, ActionDeselectWriter, ActionGeneratePdf:
	default:
		return core.ErrInvalidAction
	}
	if !ctx.IsModerator() {
		return core.ErrInsufficientPermissions
	}
	if action == ActionGeneratePdf {
		return n.generatePdf(ctx)
	}
	cmd, err := core.Decode[Writers](payload)
	if err != nil {
		return err
	}
	return n.changeWriters(ctx, action == ActionSelectWriter, cmd.ParticipantIDs)
}

// changeWriters updates the writer set. The pad is created on the first
// selection; its creation notifies every runner.
func (n *MeetingNotes) changeWriters(ctx *core.ModuleContext, add bool, ids []domain.ParticipantID) error {
	rctx, store := ctx.Context(), ctx.Storage()
	if err := setWriters(rctx, store, n.room, add, ids); err != nil {
		return err
	}
	_, found, err := loadPad(rctx, store, n.room)
	if err != nil {
		return err
	}
	if found {
		for _, id := range ids {
			ctx.ExchangePublish(exchange.RoomParticipant(n.room, id), exMessage{Message: exAccessChanged})
		}
		return nil
	}
	if !add {
		return nil
	}
	claimed, err := claimInit(rctx, store, n.room)
	if err != nil || !claimed {
		return err
	}
	pads, name := n.pads, n.room.String()
	ctx.Spawn(func(jctx context.Context) any {
		pad, err := pads.CreatePad(jctx, name)
		return padCreated{pad: pad, err: err}
	})
	return nil
}

func (n *MeetingNotes) onPadCreated(ctx *core.ModuleContext, res padCreated) error {
	rctx, store := ctx.Context(), ctx.Storage()
	if res.err != nil {
		n.logger.Error().Err(res.err).Msg("create notes pad")
		if err := releaseInit(rctx, store, n.room); err != nil {
			return err
		}
		return ErrInternal
	}
	if err := storePad(rctx, store, n.room, res.pad); err != nil {
		return err
	}
	n.logger.Info().Str("pad", res.pad.PadID).Msg("notes pad created")
	ctx.ExchangePublish(exchange.RoomParticipants(n.room), exMessage{Message: exPadReady})
	return nil
}

// sendAccess tells the participant how it may reach the pad now.
func (n *MeetingNotes) sendAccess(ctx *core.ModuleContext) error {
	rctx, store := ctx.Context(), ctx.Storage()
	pad, found, err := loadPad(rctx, store, n.room)
	if err != nil || !found {
		return err
	}
	writer, err := isWriter(rctx, store, n.room, n.id)
	if err != nil {
		return err
	}
	if writer {
		n.openWriteSession(ctx, pad)
		return nil
	}
	ctx.WsSend(AccessURL{Message: MsgReadURL, URL: n.pads.ReadURL(pad).String()})
	return nil
}

func (n *MeetingNotes) openWriteSession(ctx *core.ModuleContext, pad Pad) {
	pads, author, name := n.pads, string(n.id), ctx.DisplayName()
	ctx.Spawn(func(jctx context.Context) any {
		u, err := pads.WriteURL(jctx, pad, author, name)
		return writeURLReady{url: u, err: err}
	})
}

func (n *MeetingNotes) generatePdf(ctx *core.ModuleContext) error {
	pad, found, err := loadPad(ctx.Context(), ctx.Storage(), n.room)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotInitialized
	}
	if n.generator == nil || n.assets == nil {
		return ErrInternal
	}
	pads, gen, store, room := n.pads, n.generator, n.assets, n.room.Room
	ctx.Spawn(func(jctx context.Context) any {
		text, err := pads.Text(jctx, pad)
		if err != nil {
			return pdfReady{err: err}
		}
		doc := report.Document{
			Title:    "Meeting notes",
			Sections: []report.Section{{Markdown: text}},
		}
		meta, err := report.Render(jctx, gen, store, room, "meeting_notes", doc)
		return pdfReady{meta: meta, err: err}
	})
	return nil
}
