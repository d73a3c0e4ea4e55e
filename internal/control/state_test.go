package control

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/opentalk/internal/domain"
	"github.com/dkeye/opentalk/internal/storage"
	"github.com/dkeye/opentalk/internal/storage/memory"
)

func TestFromStorage_DefaultsForMissing(t *testing.T) {
	store := memory.New(clock.NewMock())
	s, err := FromStorage(context.Background(), store, domain.NewSignalingRoomID("r", ""), "ghost")
	require.NoError(t, err)

	assert.Equal(t, domain.DefaultDisplayName, s.DisplayName)
	assert.Equal(t, domain.RoleGuest, s.Role)
	assert.False(t, s.HandIsUp)
	assert.True(t, s.JoinedAt.Equal(time.Unix(0, 0)))
	assert.True(t, s.HandUpdatedAt.Equal(time.Unix(0, 0)))
	assert.False(t, s.IsRoomOwner)
	assert.Nil(t, s.LeftAt)
}

func TestWriteJoin_BreakoutRoundTrip(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	store := memory.New(clk)
	parent := domain.NewSignalingRoomID("r", "")
	breakout := domain.NewSignalingRoomID("r", "b1")
	id := domain.ParticipantID("p")

	join := JoinAttributes{
		DisplayName: "Alice",
		Role:        domain.RoleUser,
		Kind:        domain.KindUser,
		JoinedAt:    clk.Now(),
	}
	require.NoError(t, WriteJoin(storage.NewAttributeBatch(parent), id, join).Exec(ctx, store))
	require.NoError(t, SetHand(ctx, store, parent, id, true, clk.Now()))

	clk.Add(time.Minute)
	join.JoinedAt = clk.Now()
	require.NoError(t, WriteJoin(storage.NewAttributeBatch(breakout), id, join).Exec(ctx, store))

	inBreakout, err := FromStorage(ctx, store, breakout, id)
	require.NoError(t, err)
	assert.Equal(t, "Alice", inBreakout.DisplayName)
	assert.False(t, inBreakout.HandIsUp)

	inParent, err := FromStorage(ctx, store, parent, id)
	require.NoError(t, err)
	assert.True(t, inParent.HandIsUp, "parent local slice untouched by breakout join")

	require.NoError(t, SetRole(ctx, store, breakout, id, domain.RoleModerator))
	role, ok, err := GetRole(ctx, store, parent, id)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, domain.RoleModerator, role)
}

func TestWriteJoin_ClearsLeftAt(t *testing.T) {
	ctx := context.Background()
	store := memory.New(clock.NewMock())
	room := domain.NewSignalingRoomID("r", "")

	require.NoError(t, SetLeftAt(ctx, store, room, "p", time.Now()))
	require.NoError(t, WriteJoin(storage.NewAttributeBatch(room), "p", JoinAttributes{Kind: domain.KindGuest}).Exec(ctx, store))

	s, err := FromStorage(ctx, store, room, "p")
	require.NoError(t, err)
	assert.Nil(t, s.LeftAt)
}

type phones map[string]string

func (p phones) PhoneNumberName(n string) (string, bool) {
	v, ok := p[n]
	return v, ok
}

func TestDisplayName(t *testing.T) {
	long := make([]rune, domain.MaxDisplayNameLen+1)
	for i := range long {
		long[i] = 'x'
	}

	tests := []struct {
		name      string
		p         domain.Participant
		user      *domain.User
		requested string
		want      string
	}{
		{"user account name", domain.UserParticipant("u"), &domain.User{DisplayName: "Bob"}, "ignored", "Bob"},
		{"guest trimmed", domain.GuestParticipant(), nil, "  Carol   Ann ", "Carol Ann"},
		{"guest empty", domain.GuestParticipant(), nil, "   ", domain.DefaultDisplayName},
		{"guest too long", domain.GuestParticipant(), nil, string(long), domain.DefaultDisplayName},
		{"sip known", domain.SipParticipant("+4912345"), nil, "", "Reception"},
		{"sip unknown", domain.SipParticipant("+4999999"), nil, "", "*****999"},
		{"recorder", domain.RecorderParticipant(), nil, "x", domain.RecorderName},
	}
	book := phones{"+4912345": "Reception"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DisplayName(tt.p, tt.user, tt.requested, book))
		})
	}
}

func TestWaitingRoomFlags(t *testing.T) {
	ctx := context.Background()
	store := memory.New(clock.NewMock())
	info := domain.RoomInfo{ID: "r", WaitingRoom: true}

	enabled, err := WaitingRoomEnabled(ctx, store, info)
	require.NoError(t, err)
	assert.True(t, enabled, "room default applies until changed")

	changed, err := SetWaitingRoomEnabled(ctx, store, info, false)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = SetWaitingRoomEnabled(ctx, store, info, false)
	require.NoError(t, err)
	assert.False(t, changed)

	require.NoError(t, AddToWaitingList(ctx, store, "r", "p"))
	require.NoError(t, Accept(ctx, store, "r", "p"))
	waiting, err := IsWaiting(ctx, store, "r", "p")
	require.NoError(t, err)
	assert.False(t, waiting)
	accepted, err := IsAccepted(ctx, store, "r", "p")
	require.NoError(t, err)
	assert.True(t, accepted)

	hands, err := RaiseHandsEnabled(ctx, store, "r")
	require.NoError(t, err)
	assert.True(t, hands)
}
