package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/opentalk/internal/storage"
)

// keyedMutex is a one-slot channel so waiters can give up when their context
// ends. refs counts holders and waiters; the entry is dropped at zero.
type keyedMutex struct {
	ch   chan struct{}
	refs int
}

type unlocker struct {
	store *Store
	key   string
	m     *keyedMutex
	once  sync.Once
}

// Lock ignores ttl: a process-local holder cannot outlive the process.
func (s *Store) Lock(ctx context.Context, key string, _ time.Duration) (storage.Unlocker, error) {
	s.locksMu.Lock()
	m, ok := s.locks[key]
	if !ok {
		m = &keyedMutex{ch: make(chan struct{}, 1)}
		s.locks[key] = m
	}
	m.refs++
	s.locksMu.Unlock()

	select {
	case m.ch <- struct{}{}:
		return &unlocker{store: s, key: key, m: m}, nil
	case <-ctx.Done():
		s.release(key, m)
		return nil, fmt.Errorf("%w: %s: %v", storage.ErrLockTimeout, key, ctx.Err())
	}
}

func (s *Store) release(key string, m *keyedMutex) {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	m.refs--
	if m.refs == 0 {
		delete(s.locks, key)
	}
}

func (u *unlocker) Unlock(context.Context) error {
	u.once.Do(func() {
		<-u.m.ch
		u.store.release(u.key, u.m)
	})
	return nil
}

// lockCount is the number of keys with holders or waiters.
func (s *Store) lockCount() int {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	return len(s.locks)
}
