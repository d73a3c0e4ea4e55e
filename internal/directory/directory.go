// Package directory stands in for the database the REST layer reads rooms,
// users and tariffs from. The signaling core only consumes it through small
// interfaces.
package directory

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/opentalk/internal/domain"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrUserNotFound = errors.New("user not found")
)

// Memory is a directory seeded from configuration and mutated by tests.
type Memory struct {
	mu      sync.RWMutex
	rooms   map[domain.RoomID]domain.RoomInfo
	users   map[domain.UserID]domain.User
	tariffs map[string]domain.Tariff
	events  map[domain.RoomID]domain.EventInfo
	phones  map[string]string

	defaultTariff domain.Tariff
}

func NewMemory() *Memory {
	return &Memory{
		rooms:         make(map[domain.RoomID]domain.RoomInfo),
		users:         make(map[domain.UserID]domain.User),
		tariffs:       make(map[string]domain.Tariff),
		events:        make(map[domain.RoomID]domain.EventInfo),
		phones:        make(map[string]string),
		defaultTariff: domain.Tariff{ID: "default", Name: "Default"},
	}
}

func (m *Memory) PutRoom(r domain.RoomInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[r.ID] = r
}

func (m *Memory) DeleteRoom(id domain.RoomID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rooms[id]
	delete(m.rooms, id)
	delete(m.events, id)
	return ok
}

func (m *Memory) PutUser(u domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

func (m *Memory) PutTariff(t domain.Tariff) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tariffs[t.ID] = t
}

func (m *Memory) SetDefaultTariff(t domain.Tariff) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultTariff = t
}

func (m *Memory) PutEvent(room domain.RoomID, e domain.EventInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[room] = e
}

func (m *Memory) PutPhoneNumber(number, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phones[number] = name
}

func (m *Memory) Room(_ context.Context, id domain.RoomID) (domain.RoomInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	if !ok {
		return domain.RoomInfo{}, ErrRoomNotFound
	}
	return r, nil
}

func (m *Memory) User(_ context.Context, id domain.UserID) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

// Tariff resolves the tariff of the room owner.
func (m *Memory) Tariff(_ context.Context, room domain.RoomID) (domain.Tariff, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[room]
	if !ok {
		return domain.Tariff{}, ErrRoomNotFound
	}
	if owner, ok := m.users[r.CreatedBy]; ok && owner.Tariff != "" {
		if t, ok := m.tariffs[owner.Tariff]; ok {
			return t, nil
		}
		log.Warn().Str("module", "directory").Str("tariff", owner.Tariff).Msg("unknown tariff, using default")
	}
	return m.defaultTariff, nil
}

func (m *Memory) Event(_ context.Context, room domain.RoomID) (*domain.EventInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.events[room]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *Memory) PhoneNumberName(number string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	name, ok := m.phones[number]
	return name, ok
}
