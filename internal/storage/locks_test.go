package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/opentalk/internal/storage"
	"github.com/dkeye/opentalk/internal/storage/memory"
	"github.com/dkeye/opentalk/internal/testutil"
)

var lockOpts = storage.RunnerLockOptions{TTL: time.Minute, Timeout: 10 * time.Second, Step: time.Second}

// acquire runs AcquireRunnerLock in the background and steps clk until it
// returns.
func acquire(t *testing.T, store storage.Backend, clk *clock.Mock, before func()) error {
	t.Helper()
	res := make(chan error, 1)
	go func() {
		res <- storage.AcquireRunnerLock(context.Background(), store, clk, "p1", "runner-b", lockOpts)
	}()
	if before != nil {
		time.Sleep(20 * time.Millisecond)
		before()
	}
	var err error
	require.Eventually(t, func() bool {
		select {
		case err = <-res:
			return true
		default:
			clk.Add(lockOpts.Step)
			return false
		}
	}, testutil.Timeout, 5*time.Millisecond)
	return err
}

func TestAcquireRunnerLock_TimesOutOnClock(t *testing.T) {
	clk := clock.NewMock()
	store := memory.New(clk)
	ctx := context.Background()
	require.NoError(t, storage.AcquireRunnerLock(ctx, store, clk, "p1", "runner-a", lockOpts))

	start := clk.Now()
	err := acquire(t, store, clk, nil)
	assert.ErrorIs(t, err, storage.ErrLockTimeout)
	assert.Less(t, clk.Now().Sub(start), lockOpts.TTL)

	held, err := storage.RunnerLockHeld(ctx, store, "p1")
	require.NoError(t, err)
	assert.True(t, held)
}

func TestAcquireRunnerLock_TakesReleasedLock(t *testing.T) {
	clk := clock.NewMock()
	store := memory.New(clk)
	ctx := context.Background()
	require.NoError(t, storage.AcquireRunnerLock(ctx, store, clk, "p1", "runner-a", lockOpts))

	err := acquire(t, store, clk, func() {
		require.NoError(t, storage.ReleaseRunnerLock(ctx, store, "p1", "runner-a"))
	})
	require.NoError(t, err)

	// runner-b holds it now, so runner-a cannot release it.
	require.NoError(t, storage.ReleaseRunnerLock(ctx, store, "p1", "runner-a"))
	held, err := storage.RunnerLockHeld(ctx, store, "p1")
	require.NoError(t, err)
	assert.True(t, held)
}
