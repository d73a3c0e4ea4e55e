package ticket

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/opentalk/internal/domain"
	"github.com/dkeye/opentalk/internal/storage"
	"github.com/dkeye/opentalk/internal/storage/memory"
)

func newService(t *testing.T) (*Service, *memory.Store, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock()
	store := memory.New(clk)
	return NewService(store, DefaultOptions), store, clk
}

func TestTicket_HappyPathSingleUse(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	issued, err := svc.StartOrContinue(ctx, Start{Participant: domain.GuestParticipant(), Room: "R"})
	require.NoError(t, err)
	assert.NotEmpty(t, issued.Ticket)
	assert.NotEmpty(t, issued.Resumption)
	assert.False(t, issued.Resuming)

	data, err := svc.TakeTicket(ctx, issued.Ticket)
	require.NoError(t, err)
	assert.Equal(t, domain.KindGuest, data.Participant.Kind)
	assert.Equal(t, domain.RoomID("R"), data.Room)
	assert.Equal(t, issued.ParticipantID, data.ParticipantID)
	assert.Equal(t, issued.Resumption, data.ResumptionToken)

	_, err = svc.TakeTicket(ctx, issued.Ticket)
	assert.ErrorIs(t, err, ErrInvalidTicket)
}

func TestTicket_ConcurrentTakeSucceedsOnce(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	issued, err := svc.StartOrContinue(ctx, Start{Participant: domain.GuestParticipant(), Room: "R"})
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.TakeTicket(ctx, issued.Ticket); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestTicket_Expires(t *testing.T) {
	svc, _, clk := newService(t)
	ctx := context.Background()

	issued, err := svc.StartOrContinue(ctx, Start{Participant: domain.GuestParticipant(), Room: "R"})
	require.NoError(t, err)

	clk.Add(30 * time.Second)
	_, err = svc.TakeTicket(ctx, issued.Ticket)
	assert.ErrorIs(t, err, ErrInvalidTicket)
}

func TestTicket_ResumptionReclaim(t *testing.T) {
	svc, _, clk := newService(t)
	ctx := context.Background()
	who := domain.UserParticipant("u1")

	first, err := svc.StartOrContinue(ctx, Start{Participant: who, Room: "R"})
	require.NoError(t, err)

	clk.Add(100 * time.Second)
	token := first.Resumption
	second, err := svc.StartOrContinue(ctx, Start{Participant: who, Room: "R", Resumption: &token})
	require.NoError(t, err)
	assert.Equal(t, first.ParticipantID, second.ParticipantID)
	assert.True(t, second.Resuming)

	data, err := svc.TakeTicket(ctx, second.Ticket)
	require.NoError(t, err)
	assert.True(t, data.Resuming)

	third, err := svc.StartOrContinue(ctx, Start{Participant: who, Room: "R", Resumption: &token})
	require.NoError(t, err)
	assert.NotEqual(t, first.ParticipantID, third.ParticipantID, "resumption token is single use")
}

func TestTicket_ResumptionMismatchIsNotFound(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	first, err := svc.StartOrContinue(ctx, Start{Participant: domain.UserParticipant("u1"), Room: "R"})
	require.NoError(t, err)
	token := first.Resumption

	other, err := svc.StartOrContinue(ctx, Start{Participant: domain.UserParticipant("u1"), Room: "OTHER", Resumption: &token})
	require.NoError(t, err)
	assert.NotEqual(t, first.ParticipantID, other.ParticipantID)

	kind, err := svc.StartOrContinue(ctx, Start{Participant: domain.GuestParticipant(), Room: "R", Resumption: &token})
	require.NoError(t, err)
	assert.NotEqual(t, first.ParticipantID, kind.ParticipantID)

	// The mismatching attempts left the token usable by its owner.
	same, err := svc.StartOrContinue(ctx, Start{Participant: domain.UserParticipant("u1"), Room: "R", Resumption: &token})
	require.NoError(t, err)
	assert.Equal(t, first.ParticipantID, same.ParticipantID)
}

func TestTicket_SessionRunning(t *testing.T) {
	svc, store, clk := newService(t)
	ctx := context.Background()
	who := domain.GuestParticipant()

	first, err := svc.StartOrContinue(ctx, Start{Participant: who, Room: "R"})
	require.NoError(t, err)

	require.NoError(t, storage.AcquireRunnerLock(ctx, store, clk, first.ParticipantID, "runner-a", storage.DefaultRunnerLockOptions))

	token := first.Resumption
	_, err = svc.StartOrContinue(ctx, Start{Participant: who, Room: "R", Resumption: &token})
	assert.ErrorIs(t, err, ErrSessionRunning)

	require.NoError(t, storage.ReleaseRunnerLock(ctx, store, first.ParticipantID, "runner-a"))
	again, err := svc.StartOrContinue(ctx, Start{Participant: who, Room: "R", Resumption: &token})
	require.NoError(t, err)
	assert.Equal(t, first.ParticipantID, again.ParticipantID)
}

func TestTicket_TokensAreDistinct(t *testing.T) {
	seen := make(map[domain.TicketToken]struct{})
	for i := 0; i < 100; i++ {
		tok := NewTicketToken()
		assert.Len(t, string(tok), 52)
		_, dup := seen[tok]
		require.False(t, dup)
		seen[tok] = struct{}{}
	}
}
