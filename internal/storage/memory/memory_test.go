package memory

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
)

func newStore(t *testing.T) (*Store, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock()
	return New(clk), clk
}

func TestStore_TTLExpiresOnMockClock(t *testing.T) {
	s, clk := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v"), 30*time.Second))

	clk.Add(29 * time.Second)
	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)

	clk.Add(time.Second)
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	ok, err := s.SetNX(ctx, "k", []byte("w"), 0)
	require.NoError(t, err)
	assert.True(t, ok, "expired key must not block SetNX")
}

func TestStore_ExpireRefreshesDeadline(t *testing.T) {
	s, clk := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v"), 10*time.Second))
	clk.Add(8 * time.Second)
	ok, err := s.Expire(ctx, "k", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	clk.Add(8 * time.Second)
	exists, err := s.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, exists)

	ok, err = s.Expire(ctx, "missing", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_GetDelIsSingleUse(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "ticket", []byte("data"), 0))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.GetDel(ctx, "ticket"); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestStore_CompareAndDelete(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("a"), 0))

	ok, err := s.CompareAndDelete(ctx, "k", []byte("b"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.CompareAndDelete(ctx, "k", []byte("a"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.CompareAndDelete(ctx, "k", []byte("a"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_Collections(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.SAdd(ctx, "set", "a", "b", "a"))
	n, err := s.SCard(ctx, "set")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	require.NoError(t, s.SRem(ctx, "set", "a", "b"))
	exists, err := s.Exists(ctx, "set")
	require.NoError(t, err)
	assert.False(t, exists, "empty set is removed")

	v, err := s.HIncrBy(ctx, "h", "count", 3)
	require.NoError(t, err)
	assert.EqualValues(t, 3, v)
	v, err = s.HIncrBy(ctx, "h", "count", -1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, v)

	ok, err := s.HSetNX(ctx, "h", "count", []byte("9"))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.RPush(ctx, "l", []byte("1"), []byte("2"), []byte("3"), []byte("4")))
	require.NoError(t, s.LTrim(ctx, "l", -2, -1))
	items, err := s.LRange(ctx, "l", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("3"), []byte("4")}, items)

	require.NoError(t, s.Set(ctx, "str", []byte("x"), 0))
	err = s.SAdd(ctx, "str", "a")
	assert.ErrorIs(t, err, storage.ErrFatal)
}

func TestStore_LockSerializesAndCollects(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	first, err := s.Lock(ctx, "room", time.Second)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = s.Lock(waitCtx, "room", time.Second)
	assert.ErrorIs(t, err, storage.ErrLockTimeout)

	acquired := make(chan storage.Unlocker)
	go func() {
		u, err := s.Lock(ctx, "room", time.Second)
		if err == nil {
			acquired <- u
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired a held lock")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, first.Unlock(ctx))
	require.NoError(t, first.Unlock(ctx), "unlock is idempotent")

	select {
	case second := <-acquired:
		require.NoError(t, second.Unlock(ctx))
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired the lock")
	}
	assert.Equal(t, 0, s.lockCount())
}

func TestStore_BatchAndAttributeScopes(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	parent := domain.NewSignalingRoomID("r1", "")
	breakout := domain.NewSignalingRoomID("r1", "b1")
	pid := domain.ParticipantID("p1")

	err := storage.NewAttributeBatch(breakout).
		SetLocal(pid, "hand_is_up", true).
		SetGlobal(pid, "role", "moderator").
		Exec(ctx, s)
	require.NoError(t, err)

	batch := storage.NewAttributeBatch(parent)
	hand := storage.GetLocal[bool](batch, pid, "hand_is_up")
	role := storage.GetGlobal[string](batch, pid, "role")
	require.NoError(t, batch.Exec(ctx, s))

	_, found := hand.Get()
	assert.False(t, found, "local attributes stay in their breakout")
	assert.Equal(t, "moderator", role.Or(""))

	require.NoError(t, storage.RemoveRoomAttributes(ctx, s, breakout, storage.ScopeLocal))
	_, found, err = storage.GetAttribute[bool](ctx, s, breakout, storage.ScopeLocal, pid, "hand_is_up")
	require.NoError(t, err)
	assert.False(t, found)

	got, found, err := storage.GetAttribute[string](ctx, s, parent, storage.ScopeGlobal, pid, "role")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "moderator", got)
}
