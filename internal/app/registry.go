// Package app owns the process-level view of live sessions and assembles the
// module set runners are built with.
package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/opentalk/internal/domain"
	"github.com/dkeye/opentalk/internal/runner"
)

type sessionEntry struct {
	Room   domain.SignalingRoomID
	Cancel context.CancelFunc
	Done   chan struct{}
}

// Registry tracks the runners of this process so shutdown can end them and
// operators can see what is live.
type Registry struct {
	deps runner.Deps

	mu       sync.RWMutex
	sessions map[domain.ParticipantID]*sessionEntry
	wg       sync.WaitGroup
}

func NewRegistry(deps runner.Deps) *Registry {
	return &Registry{
		deps:     deps,
		sessions: make(map[domain.ParticipantID]*sessionEntry),
	}
}

// Serve runs a session for a redeemed ticket and blocks until it ends.
func (r *Registry) Serve(ctx context.Context, conn runner.Conn, data domain.TicketData) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	entry := r.bind(data, cancel)
	defer r.unbind(data.ParticipantID, entry)

	runner.New(r.deps, conn, data).Run(ctx)
}

func (r *Registry) bind(data domain.TicketData, cancel context.CancelFunc) *sessionEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry := &sessionEntry{Room: data.SignalingRoom(), Cancel: cancel, Done: make(chan struct{})}
	// A second runner for the same id loses the runner lock and exits on its
	// own; keep the first entry so its cancel stays reachable.
	if _, ok := r.sessions[data.ParticipantID]; !ok {
		r.sessions[data.ParticipantID] = entry
	}
	r.wg.Add(1)
	log.Info().Str("module", "app.registry").Str("participant", string(data.ParticipantID)).Str("room", entry.Room.String()).Msg("bound session")
	return entry
}

func (r *Registry) unbind(id domain.ParticipantID, entry *sessionEntry) {
	r.mu.Lock()
	if r.sessions[id] == entry {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	close(entry.Done)
	r.wg.Done()
	log.Info().Str("module", "app.registry").Str("participant", string(id)).Msg("unbind session")
}

// Count is the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// RoomOf reports the signaling room a participant's session runs in.
func (r *Registry) RoomOf(id domain.ParticipantID) (domain.SignalingRoomID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[id]
	if !ok {
		return domain.SignalingRoomID{}, false
	}
	return e.Room, true
}

// Cancel ends one session. It does not wait for the runner to finish.
func (r *Registry) Cancel(id domain.ParticipantID) bool {
	r.mu.RLock()
	e, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	e.Cancel()
	log.Info().Str("module", "app.registry").Str("participant", string(id)).Msg("canceled session")
	return true
}

// CancelAll ends every session and waits until their runners returned or ctx
// expired.
func (r *Registry) CancelAll(ctx context.Context) error {
	r.mu.RLock()
	for _, e := range r.sessions {
		e.Cancel()
	}
	n := len(r.sessions)
	r.mu.RUnlock()
	log.Info().Str("module", "app.registry").Int("sessions", n).Msg("canceling all sessions")

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
