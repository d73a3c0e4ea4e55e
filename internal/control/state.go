// Package control holds the participant state every module depends on: the
// control attributes, their storage layout and the control wire messages.
package control

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/opentalk/internal/domain"
	"github.com/dkeye/opentalk/internal/storage"
)

// Namespace of the control module on the wire and on the exchange.
const Namespace = "control"

// Attribute names. The first group is global to the parent room, the second
// is local to the signaling room.
const (
	AttrDisplayName = "display_name"
	AttrRole        = "role"
	AttrAvatarURL   = "avatar_url"
	AttrKind        = "kind"
	AttrIsRoomOwner = "is_room_owner"

	AttrJoinedAt      = "joined_at"
	AttrLeftAt        = "left_at"
	AttrHandIsUp      = "hand_is_up"
	AttrHandUpdatedAt = "hand_updated_at"
)

// State is the public projection of a participant.
type State struct {
	DisplayName       string                   `json:"display_name"`
	Role              domain.Role              `json:"role"`
	AvatarURL         string                   `json:"avatar_url,omitempty"`
	ParticipationKind domain.ParticipationKind `json:"participation_kind"`
	HandIsUp          bool                     `json:"hand_is_up"`
	JoinedAt          time.Time                `json:"joined_at"`
	LeftAt            *time.Time               `json:"left_at,omitempty"`
	HandUpdatedAt     time.Time                `json:"hand_updated_at"`
	IsRoomOwner       bool                     `json:"is_room_owner"`
}

var epoch = time.Unix(0, 0).UTC()

// FromStorage loads the control attributes of id in one batch. Missing
// attributes fall back to defaults and are logged, never failing the caller.
func FromStorage(ctx context.Context, b storage.Backend, room domain.SignalingRoomID, id domain.ParticipantID) (State, error) {
	batch := storage.NewAttributeBatch(room)
	displayName := storage.GetGlobal[string](batch, id, AttrDisplayName)
	role := storage.GetGlobal[domain.Role](batch, id, AttrRole)
	avatar := storage.GetGlobal[string](batch, id, AttrAvatarURL)
	kind := storage.GetGlobal[domain.ParticipationKind](batch, id, AttrKind)
	owner := storage.GetGlobal[bool](batch, id, AttrIsRoomOwner)
	joinedAt := storage.GetLocal[time.Time](batch, id, AttrJoinedAt)
	leftAt := storage.GetLocal[time.Time](batch, id, AttrLeftAt)
	hand := storage.GetLocal[bool](batch, id, AttrHandIsUp)
	handAt := storage.GetLocal[time.Time](batch, id, AttrHandUpdatedAt)

	if err := batch.Exec(ctx, b); err != nil {
		return State{}, err
	}

	missing := func(name string) {
		log.Warn().Str("module", "control").Str("participant", string(id)).Str("attribute", name).Msg("attribute missing, using default")
	}
	s := State{
		DisplayName:       or(displayName, domain.DefaultDisplayName, AttrDisplayName, missing),
		Role:              or(role, domain.RoleGuest, AttrRole, missing),
		AvatarURL:         avatar.Or(""),
		ParticipationKind: or(kind, domain.KindGuest, AttrKind, missing),
		HandIsUp:          or(hand, false, AttrHandIsUp, missing),
		JoinedAt:          or(joinedAt, epoch, AttrJoinedAt, missing),
		HandUpdatedAt:     or(handAt, epoch, AttrHandUpdatedAt, missing),
		IsRoomOwner:       or(owner, false, AttrIsRoomOwner, missing),
	}
	if v, ok := leftAt.Get(); ok {
		s.LeftAt = &v
	}
	return s, nil
}

func or[T any](a *storage.Attribute[T], fallback T, name string, missing func(string)) T {
	v, ok := a.Get()
	if !ok {
		missing(name)
		return fallback
	}
	return v
}

// Visible reports whether peers see this participant in control state.
func (s State) Visible() bool { return s.ParticipationKind != domain.KindRecorder }

// JoinAttributes is written under the room lock when a participant joins.
type JoinAttributes struct {
	DisplayName string
	Role        domain.Role
	AvatarURL   string
	Kind        domain.ParticipationKind
	IsRoomOwner bool
	JoinedAt    time.Time
}

// WriteJoin queues the global and local attributes of a fresh join. Local
// attributes are always reset; the previous left_at is cleared.
func WriteJoin(batch *storage.AttributeBatch, id domain.ParticipantID, a JoinAttributes) *storage.AttributeBatch {
	batch.SetGlobal(id, AttrDisplayName, a.DisplayName).
		SetGlobal(id, AttrRole, a.Role).
		SetGlobal(id, AttrKind, a.Kind).
		SetGlobal(id, AttrIsRoomOwner, a.IsRoomOwner).
		SetLocal(id, AttrJoinedAt, a.JoinedAt).
		SetLocal(id, AttrHandIsUp, false).
		SetLocal(id, AttrHandUpdatedAt, a.JoinedAt).
		DeleteLocal(id, AttrLeftAt)
	if a.AvatarURL != "" {
		batch.SetGlobal(id, AttrAvatarURL, a.AvatarURL)
	} else {
		batch.DeleteGlobal(id, AttrAvatarURL)
	}
	return batch
}

// SetHand writes the hand attributes.
func SetHand(ctx context.Context, b storage.Backend, room domain.SignalingRoomID, id domain.ParticipantID, up bool, at time.Time) error {
	return storage.NewAttributeBatch(room).
		SetLocal(id, AttrHandIsUp, up).
		SetLocal(id, AttrHandUpdatedAt, at).
		Exec(ctx, b)
}

func SetLeftAt(ctx context.Context, b storage.Backend, room domain.SignalingRoomID, id domain.ParticipantID, at time.Time) error {
	return storage.SetAttribute(ctx, b, room, storage.ScopeLocal, id, AttrLeftAt, at)
}

func SetRole(ctx context.Context, b storage.Backend, room domain.SignalingRoomID, id domain.ParticipantID, role domain.Role) error {
	return storage.SetAttribute(ctx, b, room, storage.ScopeGlobal, id, AttrRole, role)
}

func GetRole(ctx context.Context, b storage.Backend, room domain.SignalingRoomID, id domain.ParticipantID) (domain.Role, bool, error) {
	return storage.GetAttribute[domain.Role](ctx, b, room, storage.ScopeGlobal, id, AttrRole)
}

func IsRoomOwner(ctx context.Context, b storage.Backend, room domain.SignalingRoomID, id domain.ParticipantID) (bool, error) {
	v, _, err := storage.GetAttribute[bool](ctx, b, room, storage.ScopeGlobal, id, AttrIsRoomOwner)
	return v, err
}

// Kinds returns the participation kind of every participant of room.
func Kinds(ctx context.Context, b storage.Backend, room domain.SignalingRoomID) (map[domain.ParticipantID]domain.ParticipationKind, error) {
	return storage.GetAttributeForAll[domain.ParticipationKind](ctx, b, room, storage.ScopeGlobal, AttrKind)
}

// Roles returns the role of every participant of room.
func Roles(ctx context.Context, b storage.Backend, room domain.SignalingRoomID) (map[domain.ParticipantID]domain.Role, error) {
	return storage.GetAttributeForAll[domain.Role](ctx, b, room, storage.ScopeGlobal, AttrRole)
}
