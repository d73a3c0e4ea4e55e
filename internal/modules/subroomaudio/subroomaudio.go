// Package subroomaudio lets participants form whisper groups: small audio
// rooms on the media server next to the main conference.
package subroomaudio

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	lk "github.com/livekit/protocol/livekit"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/dkeye/opentalk/internal/auth"
	"github.com/dkeye/opentalk/internal/core"
	"github.com/dkeye/opentalk/internal/domain"
	"github.com/dkeye/opentalk/internal/exchange"
	"github.com/dkeye/opentalk/internal/storage"
)

const Namespace = "subroom_audio"

type Builder struct {
	keys auth.LiveKitKeys
	ttl  time.Duration
}

// NewBuilder returns a builder whose module declines without media keys.
func NewBuilder(keys auth.LiveKitKeys, tokenTTL time.Duration) *Builder {
	if tokenTTL <= 0 {
		tokenTTL = 6 * time.Hour
	}
	return &Builder{keys: keys, ttl: tokenTTL}
}

func (*Builder) Namespace() string { return Namespace }

func (b *Builder) Init(ctx *core.InitContext) (core.Module, error) {
	if b.keys.APIKey == "" || ctx.Participant().Kind == domain.KindRecorder {
		return nil, nil
	}
	return &SubroomAudio{
		keys:   b.keys,
		ttl:    b.ttl,
		room:   ctx.Room(),
		id:     ctx.ID(),
		logger: log.With().Str("module", Namespace).Str("participant", string(ctx.ID())).Logger(),
	}, nil
}

type SubroomAudio struct {
	keys   auth.LiveKitKeys
	ttl    time.Duration
	room   domain.SignalingRoomID
	id     domain.ParticipantID
	logger zerolog.Logger
}

func (s *SubroomAudio) Namespace() string { return Namespace }

func (s *SubroomAudio) OnEvent(ctx *core.ModuleContext, ev core.Event) error {
	switch ev := ev.(type) {
	case core.Leaving:
		return s.leaveAll(ctx)
	case core.WsMessage:
		return s.onCommand(ctx, ev.Payload)
	case core.ExchangeMessage:
		if message, err := core.DecodeMessage(ev.Payload); err == nil && forwarded[message] {
			ctx.WsSend(ev.Payload)
		}
	}
	return nil
}

func (s *SubroomAudio) OnDestroy(ctx *core.DestroyContext) error {
	if ctx.Last {
		return cleanup(ctx.Context(), ctx.Storage(), s.room)
	}
	return nil
}

func (s *SubroomAudio) onCommand(ctx *core.ModuleContext, payload json.RawMessage) error {
	action, err := core.DecodeAction(payload)
	if err != nil {
		return err
	}
	switch action {
	case ActionCreateWhisperGroup:
		cmd, err := core.Decode[CreateWhisperGroup](payload)
		if err != nil {
			return err
		}
		return s.create(ctx, cmd.ParticipantIDs)
	case ActionInviteToWhisperGroup:
		cmd, err := core.Decode[WhisperTargets](payload)
		if err != nil {
			return err
		}
		return s.invite(ctx, cmd.WhisperID, cmd.ParticipantIDs)
	case ActionKickWhisperParticipants:
		cmd, err := core.Decode[WhisperTargets](payload)
		if err != nil {
			return err
		}
		return s.kick(ctx, cmd.WhisperID, cmd.ParticipantIDs)
	case ActionAcceptWhisperInvite, ActionDeclineWhisperInvite, ActionLeaveWhisperGroup:
		cmd, err := core.Decode[WhisperID](payload)
		if err != nil {
			return err
		}
		switch action {
		case ActionAcceptWhisperInvite:
			return s.accept(ctx, cmd.WhisperID)
		case ActionDeclineWhisperInvite:
			return s.decline(ctx, cmd.WhisperID)
		default:
			return s.leave(ctx, cmd.WhisperID)
		}
	default:
		return core.ErrInvalidAction
	}
}

// targets drops the caller and fails unless every target is in the room.
func (s *SubroomAudio) targets(ctx *core.ModuleContext, ids []domain.ParticipantID) ([]domain.ParticipantID, error) {
	ids = lo.Without(lo.Uniq(ids), s.id)
	if len(ids) == 0 {
		return nil, ErrInvalidParticipantTargets
	}
	for _, id := range ids {
		ok, err := storage.IsParticipant(ctx.Context(), ctx.Storage(), s.room, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrInvalidParticipantTargets
		}
	}
	return ids, nil
}

func (s *SubroomAudio) create(ctx *core.ModuleContext, ids []domain.ParticipantID) error {
	targets, err := s.targets(ctx, ids)
	if err != nil {
		return err
	}
	whisperID := uuid.NewString()
	members := []Member{{ParticipantID: s.id, State: StateCreator}}
	for _, id := range targets {
		members = append(members, Member{ParticipantID: id, State: StateInvited})
	}
	if err := createGroup(ctx.Context(), ctx.Storage(), s.room, whisperID, members); err != nil {
		return err
	}
	token, err := s.token(ctx, whisperID)
	if err != nil {
		return err
	}
	ctx.WsSend(GroupCreated{Message: MsgWhisperGroupCreated, WhisperID: whisperID, Participants: members})
	ctx.WsSend(token)
	invite := Invite{Message: MsgWhisperInvite, Issuer: s.id, WhisperID: whisperID, Participants: members}
	for _, id := range targets {
		ctx.ExchangePublish(exchange.RoomParticipant(s.room, id), invite)
	}
	s.logger.Info().Str("whisper", whisperID).Int("invited", len(targets)).Msg("whisper group created")
	return nil
}

// member loads the group and the caller's state in it. Groups the caller
// does not belong to are reported as unknown.
func (s *SubroomAudio) member(ctx *core.ModuleContext, whisperID string) ([]Member, MemberState, error) {
	members, err := loadGroup(ctx.Context(), ctx.Storage(), s.room, whisperID)
	if err != nil {
		return nil, "", err
	}
	self, ok := lo.Find(members, func(m Member) bool { return m.ParticipantID == s.id })
	if !ok {
		return nil, "", ErrInvalidWhisperID
	}
	return members, self.State, nil
}

func (s *SubroomAudio) invite(ctx *core.ModuleContext, whisperID string, ids []domain.ParticipantID) error {
	members, state, err := s.member(ctx, whisperID)
	if err != nil {
		return err
	}
	if !state.joined() {
		return core.ErrInsufficientPermissions
	}
	targets, err := s.targets(ctx, ids)
	if err != nil {
		return err
	}
	known := lo.Map(members, func(m Member, _ int) domain.ParticipantID { return m.ParticipantID })
	targets = lo.Without(targets, known...)
	if len(targets) == 0 {
		return nil
	}
	for _, id := range targets {
		if err := setMember(ctx.Context(), ctx.Storage(), s.room, whisperID, id, StateInvited); err != nil {
			return err
		}
		members = append(members, Member{ParticipantID: id, State: StateInvited})
	}
	invite := Invite{Message: MsgWhisperInvite, Issuer: s.id, WhisperID: whisperID, Participants: members}
	for _, id := range targets {
		ctx.ExchangePublish(exchange.RoomParticipant(s.room, id), invite)
	}
	s.notify(ctx, members, Invited{Message: MsgParticipantsInvited, WhisperID: whisperID, ParticipantIDs: targets}, targets...)
	return nil
}

func (s *SubroomAudio) accept(ctx *core.ModuleContext, whisperID string) error {
	members, state, err := s.member(ctx, whisperID)
	if err != nil {
		return err
	}
	if state != StateInvited {
		return ErrNotInvited
	}
	if err := setMember(ctx.Context(), ctx.Storage(), s.room, whisperID, s.id, StateAccepted); err != nil {
		return err
	}
	token, err := s.token(ctx, whisperID)
	if err != nil {
		return err
	}
	ctx.WsSend(token)
	s.notify(ctx, members, MemberChanged{Message: MsgWhisperInviteAccepted, WhisperID: whisperID, ParticipantID: s.id}, s.id)
	return nil
}

func (s *SubroomAudio) decline(ctx *core.ModuleContext, whisperID string) error {
	members, state, err := s.member(ctx, whisperID)
	if err != nil {
		return err
	}
	if state != StateInvited {
		return ErrNotInvited
	}
	if _, err := removeMembers(ctx.Context(), ctx.Storage(), s.room, whisperID, s.id); err != nil {
		return err
	}
	s.notify(ctx, members, MemberChanged{Message: MsgWhisperInviteDeclined, WhisperID: whisperID, ParticipantID: s.id}, s.id)
	return nil
}

func (s *SubroomAudio) leave(ctx *core.ModuleContext, whisperID string) error {
	members, state, err := s.member(ctx, whisperID)
	if err != nil {
		return err
	}
	if !state.joined() {
		return ErrInvalidWhisperID
	}
	return s.remove(ctx, whisperID, members, s.id)
}

func (s *SubroomAudio) kick(ctx *core.ModuleContext, whisperID string, ids []domain.ParticipantID) error {
	members, state, err := s.member(ctx, whisperID)
	if err != nil {
		return err
	}
	if state != StateCreator && !ctx.IsModerator() {
		return core.ErrInsufficientPermissions
	}
	known := lo.Map(members, func(m Member, _ int) domain.ParticipantID { return m.ParticipantID })
	targets := lo.Intersect(known, lo.Without(ids, s.id))
	if len(targets) == 0 {
		return ErrInvalidParticipantTargets
	}
	for _, id := range targets {
		ctx.ExchangePublish(exchange.RoomParticipant(s.room, id), Kicked{Message: MsgKicked, WhisperID: whisperID})
	}
	return s.remove(ctx, whisperID, members, targets...)
}

// remove takes pids out of the group and tells the remaining members. The
// group is dropped once nobody joined is left in it.
func (s *SubroomAudio) remove(ctx *core.ModuleContext, whisperID string, members []Member, pids ...domain.ParticipantID) error {
	rctx, store := ctx.Context(), ctx.Storage()
	if _, err := removeMembers(rctx, store, s.room, whisperID, pids...); err != nil {
		return err
	}
	remaining := lo.Filter(members, func(m Member, _ int) bool { return !lo.Contains(pids, m.ParticipantID) })
	for _, pid := range pids {
		s.notify(ctx, remaining, MemberChanged{Message: MsgLeftWhisperGroup, WhisperID: whisperID, ParticipantID: pid})
	}
	if !lo.SomeBy(remaining, func(m Member) bool { return m.State.joined() }) {
		return deleteGroup(rctx, store, s.room, whisperID)
	}
	return nil
}

// leaveAll runs when the participant leaves the room.
func (s *SubroomAudio) leaveAll(ctx *core.ModuleContext) error {
	ids, err := groupIDs(ctx.Context(), ctx.Storage(), s.room)
	if err != nil {
		return err
	}
	for _, whisperID := range ids {
		members, err := loadGroup(ctx.Context(), ctx.Storage(), s.room, whisperID)
		if err != nil {
			return err
		}
		if !lo.ContainsBy(members, func(m Member) bool { return m.ParticipantID == s.id }) {
			continue
		}
		if err := s.remove(ctx, whisperID, members, s.id); err != nil {
			return err
		}
	}
	return nil
}

// notify publishes msg to every member except the caller and skip.
func (s *SubroomAudio) notify(ctx *core.ModuleContext, members []Member, msg any, skip ...domain.ParticipantID) {
	for _, m := range members {
		if m.ParticipantID == s.id || lo.Contains(skip, m.ParticipantID) {
			continue
		}
		ctx.ExchangePublish(exchange.RoomParticipant(s.room, m.ParticipantID), msg)
	}
}

func (s *SubroomAudio) token(ctx *core.ModuleContext, whisperID string) (Token, error) {
	room := s.room.String() + ":whisper=" + whisperID
	jwt, err := s.keys.Token(auth.MediaGrant{
		Room:     room,
		Identity: string(s.id),
		Name:     ctx.DisplayName(),
		Publish:  []lk.TrackSource{lk.TrackSource_MICROPHONE},
		TTL:      s.ttl,
	})
	if err != nil {
		return Token{}, err
	}
	return Token{Message: MsgWhisperToken, WhisperID: whisperID, Room: room, Token: jwt}, nil
}
