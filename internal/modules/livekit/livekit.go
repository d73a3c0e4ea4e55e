// Package livekit hands out media server credentials and applies moderator
// decisions (mute, screen share, microphone restrictions) to the media
// server through its room service.
package livekit

import (
	"encoding/json"
	"time"

	lk "github.com/livekit/protocol/livekit"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/dkeye/opentalk/internal/auth"
	"github.com/dkeye/opentalk/internal/core"
	"github.com/dkeye/opentalk/internal/domain"
	"github.com/dkeye/opentalk/internal/exchange"
)

const Namespace = "livekit"

type Params struct {
	Service    RoomService
	Keys       auth.LiveKitKeys
	PublicURL  string
	ServiceURL string
	TokenTTL   time.Duration
}

type Builder struct {
	params Params
}

func NewBuilder(p Params) *Builder {
	if p.TokenTTL <= 0 {
		p.TokenTTL = 6 * time.Hour
	}
	return &Builder{params: p}
}

func (*Builder) Namespace() string { return Namespace }

// Init declines when no media server is configured.
func (b *Builder) Init(ctx *core.InitContext) (core.Module, error) {
	if b.params.Service == nil || b.params.Keys.APIKey == "" {
		return nil, nil
	}
	return &LiveKit{
		params:   b.params,
		room:     ctx.Room(),
		id:       ctx.ID(),
		recorder: ctx.Participant().Kind == domain.KindRecorder,
		logger:   log.With().Str("module", Namespace).Str("participant", string(ctx.ID())).Logger(),
	}, nil
}

type LiveKit struct {
	params   Params
	room     domain.SignalingRoomID
	id       domain.ParticipantID
	recorder bool
	logger   zerolog.Logger
}

func (l *LiveKit) Namespace() string { return Namespace }

func (l *LiveKit) OnEvent(ctx *core.ModuleContext, ev core.Event) error {
	switch ev := ev.(type) {
	case core.Joined:
		return l.onJoined(ctx, ev)
	case core.RoleUpdated:
		return l.applyPermissions(ctx)
	case core.WsMessage:
		return l.onCommand(ctx, ev.Payload)
	case core.ExchangeMessage:
		return l.onExchange(ctx, ev.Payload)
	}
	return nil
}

// OnDestroy removes the participant from the media room it was admitted to.
func (l *LiveKit) OnDestroy(ctx *core.DestroyContext) error {
	_, err := l.params.Service.RemoveParticipant(ctx.Context(), &lk.RoomParticipantIdentity{
		Room:     l.room.String(),
		Identity: string(l.id),
	})
	if err != nil && !isNotFound(err) {
		l.logger.Warn().Err(err).Msg("remove media participant")
	}
	if ctx.Last {
		return cleanup(ctx.Context(), ctx.Storage(), l.room)
	}
	return nil
}

func (l *LiveKit) onJoined(ctx *core.ModuleContext, ev core.Joined) error {
	creds, err := l.credentials(ctx)
	if err != nil {
		return err
	}
	r, enabled, err := loadRestrictions(ctx.Context(), ctx.Storage(), l.room)
	if err != nil {
		return err
	}
	state := RestrictionState{Type: "disabled"}
	if enabled {
		state = RestrictionState{Type: "enabled", UnrestrictedParticipants: r.Unrestricted}
	}
	ev.Frontend.Set(FrontendData{Credentials: creds, MicrophoneRestrictionState: state})
	return nil
}

func (l *LiveKit) credentials(ctx *core.ModuleContext) (Credentials, error) {
	sources, err := l.publishSources(ctx)
	if err != nil {
		return Credentials{}, err
	}
	token, err := l.params.Keys.Token(auth.MediaGrant{
		Room:     l.room.String(),
		Identity: string(l.id),
		Name:     ctx.DisplayName(),
		Publish:  sources,
		Hidden:   l.recorder,
		TTL:      l.params.TokenTTL,
	})
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{
		Room:       l.room.String(),
		Token:      token,
		PublicURL:  l.params.PublicURL,
		ServiceURL: l.params.ServiceURL,
	}, nil
}

// publishSources derives what the participant may publish from its role,
// screen share grants and the room's microphone restrictions.
func (l *LiveKit) publishSources(ctx *core.ModuleContext) ([]lk.TrackSource, error) {
	if l.recorder {
		return nil, nil
	}
	rctx, store := ctx.Context(), ctx.Storage()
	moderator := ctx.IsModerator()
	sources := []lk.TrackSource{lk.TrackSource_CAMERA}

	r, restricted, err := loadRestrictions(rctx, store, l.room)
	if err != nil {
		return nil, err
	}
	if !restricted || moderator || lo.Contains(r.Unrestricted, l.id) {
		sources = append(sources, lk.TrackSource_MICROPHONE)
	}

	granted, err := canShareScreen(rctx, store, l.room, l.id)
	if err != nil {
		return nil, err
	}
	if moderator || granted {
		sources = append(sources, lk.TrackSource_SCREEN_SHARE, lk.TrackSource_SCREEN_SHARE_AUDIO)
	}
	return sources, nil
}

// applyPermissions pushes the participant's publish permissions to the media
// server. A participant without a media session yet is skipped; its next
// token carries the permissions.
func (l *LiveKit) applyPermissions(ctx *core.ModuleContext) error {
	sources, err := l.publishSources(ctx)
	if err != nil {
		return err
	}
	_, err = l.params.Service.UpdateParticipant(ctx.Context(), &lk.UpdateParticipantRequest{
		Room:     l.room.String(),
		Identity: string(l.id),
		Permission: &lk.ParticipantPermission{
			CanSubscribe:      true,
			CanPublish:        len(sources) > 0,
			CanPublishData:    len(sources) > 0,
			CanPublishSources: sources,
			Hidden:            l.recorder,
		},
	})
	switch {
	case err == nil:
	case isNotFound(err):
		l.logger.Debug().Msg("no media session to update")
	default:
		l.logger.Warn().Err(err).Msg("update media permissions")
	}
	return nil
}

func (l *LiveKit) onCommand(ctx *core.ModuleContext, payload json.RawMessage) error {
	action, err := core.DecodeAction(payload)
	if err != nil {
		return err
	}
	switch action {
	case ActionCreateNewAccessToken:
		creds, err := l.credentials(ctx)
		if err != nil {
			return err
		}
		creds.Message = MsgCredentials
		ctx.WsSend(creds)
		return nil
	case ActionRequestPopoutStreamAccessToken:
		token, err := l.params.Keys.Token(auth.MediaGrant{
			Room:     l.room.String(),
			Identity: string(l.id) + "-popout",
			Name:     ctx.DisplayName(),
			Hidden:   true,
			TTL:      l.params.TokenTTL,
		})
		if err != nil {
			return err
		}
		ctx.WsSend(PopoutToken{Message: MsgPopoutStreamAccessToken, Token: token})
		return nil
	}

	if !ctx.IsModerator() {
		switch action {
		case ActionForceMute, ActionGrantScreenSharePermission, ActionRevokeScreenSharePermission,
			ActionEnableMicrophoneRestrictions, ActionDisableMicrophoneRestrictions:
			return core.ErrInsufficientPermissions
		}
		return core.ErrInvalidAction
	}

	switch action {
	case ActionForceMute:
		cmd, err := core.Decode[Participants](payload)
		if err != nil {
			return err
		}
		return l.forceMute(ctx, cmd.Participants)
	case ActionGrantScreenSharePermission, ActionRevokeScreenSharePermission:
		cmd, err := core.Decode[Participants](payload)
		if err != nil {
			return err
		}
		if err := setScreenShare(ctx.Context(), ctx.Storage(), l.room, action == ActionGrantScreenSharePermission, cmd.Participants); err != nil {
			return err
		}
		for _, id := range cmd.Participants {
			ctx.ExchangePublish(exchange.RoomParticipant(l.room, id), exPermissionsChangedMessage{Message: exPermissionsChanged})
		}
		return nil
	case ActionEnableMicrophoneRestrictions:
		cmd, err := core.Decode[EnableMicrophoneRestrictions](payload)
		if err != nil {
			return err
		}
		unrestricted := lo.Uniq(cmd.UnrestrictedParticipants)
		if err := storeRestrictions(ctx.Context(), ctx.Storage(), l.room, restrictions{Unrestricted: unrestricted}); err != nil {
			return err
		}
		ctx.ExchangePublish(exchange.RoomParticipants(l.room), MicrophoneRestrictions{
			Message:                  MsgMicrophoneRestrictionsEnabled,
			UnrestrictedParticipants: unrestricted,
		})
		return nil
	case ActionDisableMicrophoneRestrictions:
		if err := ctx.Storage().Del(ctx.Context(), restrictionsKey(l.room)); err != nil {
			return err
		}
		ctx.ExchangePublish(exchange.RoomParticipants(l.room), MicrophoneRestrictions{Message: MsgMicrophoneRestrictionsDisabled})
		return nil
	default:
		return core.ErrInvalidAction
	}
}

// forceMute mutes every published microphone track of the targets.
func (l *LiveKit) forceMute(ctx *core.ModuleContext, targets []domain.ParticipantID) error {
	rctx := ctx.Context()
	for _, target := range lo.Uniq(targets) {
		info, err := l.params.Service.GetParticipant(rctx, &lk.RoomParticipantIdentity{
			Room:     l.room.String(),
			Identity: string(target),
		})
		if err != nil {
			if isNotFound(err) {
				continue
			}
			l.logger.Error().Err(err).Str("target", string(target)).Msg("look up media participant")
			return ErrLivekitUnavailable
		}
		for _, track := range info.GetTracks() {
			if track.GetSource() != lk.TrackSource_MICROPHONE || track.GetMuted() {
				continue
			}
			if _, err := l.params.Service.MutePublishedTrack(rctx, &lk.MuteRoomTrackRequest{
				Room:     l.room.String(),
				Identity: string(target),
				TrackSid: track.GetSid(),
				Muted:    true,
			}); err != nil {
				l.logger.Error().Err(err).Str("target", string(target)).Msg("mute track")
				return ErrLivekitUnavailable
			}
		}
		ctx.ExchangePublish(exchange.RoomParticipant(l.room, target), ForceMuted{Message: MsgForceMuted, Moderator: l.id})
	}
	return nil
}

func (l *LiveKit) onExchange(ctx *core.ModuleContext, payload json.RawMessage) error {
	message, err := core.DecodeMessage(payload)
	if err != nil {
		return nil
	}
	switch message {
	case exPermissionsChanged:
		return l.applyPermissions(ctx)
	case MsgMicrophoneRestrictionsEnabled, MsgMicrophoneRestrictionsDisabled:
		ctx.WsSend(payload)
		return l.applyPermissions(ctx)
	case MsgForceMuted:
		ctx.WsSend(payload)
	}
	return nil
}
