package breakout

import (
	"context"
	"time"

	"github.com/samber/lo"

	"github.com/dkeye/opentalk/internal/domain"
	"github.com/dkeye/opentalk/internal/storage"
)

type Room struct {
	ID          domain.BreakoutRoomID  `json:"id"`
	Name        string                 `json:"name"`
	Assignments []domain.ParticipantID `json:"assignments"`
}

// Config is the room-wide breakout state. It is stored with the duration as
// TTL, so a missing config means no breakout is running.
type Config struct {
	ID        string     `json:"id"`
	Rooms     []Room     `json:"rooms"`
	Started   time.Time  `json:"started"`
	Duration  *uint64    `json:"duration,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (c Config) expired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

func (c Config) has(id domain.BreakoutRoomID) bool {
	return lo.ContainsBy(c.Rooms, func(r Room) bool { return r.ID == id })
}

func (c Config) assignment(p domain.ParticipantID) *domain.BreakoutRoomID {
	room, ok := lo.Find(c.Rooms, func(r Room) bool { return lo.Contains(r.Assignments, p) })
	if !ok {
		return nil
	}
	return &room.ID
}

func (c Config) roomList() []RoomInfo {
	return lo.Map(c.Rooms, func(r Room, _ int) RoomInfo { return RoomInfo{ID: r.ID, Name: r.Name} })
}

func configKey(room domain.RoomID) string {
	return storage.GlobalRoomKey(room, Namespace, "config")
}

func storeConfig(ctx context.Context, b storage.Backend, room domain.RoomID, cfg Config, ttl time.Duration) error {
	return storage.SetJSON(ctx, b, configKey(room), cfg, ttl)
}

func loadConfig(ctx context.Context, b storage.Backend, room domain.RoomID) (Config, bool, error) {
	return storage.GetJSON[Config](ctx, b, configKey(room))
}

func deleteConfig(ctx context.Context, b storage.Backend, room domain.RoomID) error {
	return b.Del(ctx, configKey(room))
}

// ValidBreakout reports whether id names a room of the active config. The
// REST start endpoint uses it to reject stale breakout ids.
func ValidBreakout(ctx context.Context, b storage.Backend, room domain.RoomID, id domain.BreakoutRoomID) (bool, error) {
	cfg, found, err := loadConfig(ctx, b, room)
	if err != nil || !found {
		return false, err
	}
	return cfg.has(id), nil
}
