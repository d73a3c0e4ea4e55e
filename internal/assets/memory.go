package assets

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/dkeye/opentalk/internal/domain"
)

type memoryEntry struct {
	meta Meta
	data []byte
}

// Memory keeps assets in process. It backs tests and single node setups
// without an assets directory.
type Memory struct {
	mu    sync.RWMutex
	clock clock.Clock
	items map[ID]memoryEntry
}

var _ Store = (*Memory)(nil)

func NewMemory(c clock.Clock) *Memory {
	return &Memory{clock: c, items: make(map[ID]memoryEntry)}
}

func (m *Memory) Put(_ context.Context, room domain.RoomID, filename, contentType string, data []byte) (Meta, error) {
	meta := Meta{
		ID:          ID(uuid.NewString()),
		Room:        room,
		Filename:    filename,
		ContentType: contentType,
		Size:        int64(len(data)),
		Created:     m.clock.Now(),
	}
	m.mu.Lock()
	m.items[meta.ID] = memoryEntry{meta: meta, data: append([]byte(nil), data...)}
	m.mu.Unlock()
	return meta, nil
}

func (m *Memory) Get(_ context.Context, id ID) (Meta, []byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.items[id]
	if !ok {
		return Meta{}, nil, ErrNotFound
	}
	return e.meta, append([]byte(nil), e.data...), nil
}

func (m *Memory) Delete(_ context.Context, id ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return ErrNotFound
	}
	delete(m.items, id)
	return nil
}

// List returns the assets of room.
func (m *Memory) List(room domain.RoomID) []Meta {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Meta
	for _, e := range m.items {
		if e.meta.Room == room {
			out = append(out, e.meta)
		}
	}
	return out
}
