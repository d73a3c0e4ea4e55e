package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dkeye/opentalk/internal/domain"
)

// roomLockTTL bounds how long a crashed process can hold a room lock on a
// networked backend.
const roomLockTTL = 30 * time.Second

// LockRoom acquires the exclusive lock over room, waiting at most timeout.
func LockRoom(ctx context.Context, b Backend, room domain.SignalingRoomID, timeout time.Duration) (Unlocker, error) {
	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	u, err := b.Lock(lockCtx, RoomLockKey(room), roomLockTTL)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrLockTimeout) {
			return nil, fmt.Errorf("room %s: %w", room, ErrLockTimeout)
		}
		return nil, err
	}
	return u, nil
}

// RunnerLockOptions bounds the participant-id lock acquisition.
type RunnerLockOptions struct {
	TTL     time.Duration
	Timeout time.Duration
	Step    time.Duration
}

// DefaultRunnerLockOptions retries once per second for ten seconds.
var DefaultRunnerLockOptions = RunnerLockOptions{
	TTL:     60 * time.Second,
	Timeout: 10 * time.Second,
	Step:    time.Second,
}

// AcquireRunnerLock claims participant id for runner, polling on clk. It
// returns ErrLockTimeout when another runner keeps holding the id.
func AcquireRunnerLock(ctx context.Context, b Backend, clk clock.Clock, id domain.ParticipantID, runner domain.RunnerID, opts RunnerLockOptions) error {
	deadline := clk.Now().Add(opts.Timeout)
	for {
		ok, err := b.SetNX(ctx, RunnerKey(id), []byte(runner), opts.TTL)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if !clk.Now().Add(opts.Step).Before(deadline) {
			return fmt.Errorf("participant %s: %w", id, ErrLockTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clk.After(opts.Step):
		}
	}
}

// RefreshRunnerLock extends the runner lock TTL.
func RefreshRunnerLock(ctx context.Context, b Backend, id domain.ParticipantID, ttl time.Duration) error {
	_, err := b.Expire(ctx, RunnerKey(id), ttl)
	return err
}

// ReleaseRunnerLock drops the lock if runner still owns it.
func ReleaseRunnerLock(ctx context.Context, b Backend, id domain.ParticipantID, runner domain.RunnerID) error {
	_, err := b.CompareAndDelete(ctx, RunnerKey(id), []byte(runner))
	return err
}

// RunnerLockHeld reports whether any runner currently holds id.
func RunnerLockHeld(ctx context.Context, b Backend, id domain.ParticipantID) (bool, error) {
	return b.Exists(ctx, RunnerKey(id))
}
