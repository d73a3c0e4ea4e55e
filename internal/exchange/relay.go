package exchange

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RelayChannel is the pub/sub channel shared by all controller processes.
const RelayChannel = "opentalk-signaling:exchange"

type relayFrame struct {
	Origin  string  `json:"origin"`
	Key     string  `json:"key"`
	Message Message `json:"message"`
}

// RedisRelay mirrors hub traffic over Redis pub/sub so runners of one room can
// live in different processes.
type RedisRelay struct {
	client *redis.Client
	hub    *Hub
	origin string
}

func NewRedisRelay(client *redis.Client, hub *Hub) *RedisRelay {
	r := &RedisRelay{client: client, hub: hub, origin: uuid.NewString()}
	hub.SetForwarder(r)
	return r
}

func (r *RedisRelay) Forward(ctx context.Context, key string, msg Message) error {
	raw, err := json.Marshal(relayFrame{Origin: r.origin, Key: key, Message: msg})
	if err != nil {
		return fmt.Errorf("encode relay frame: %w", err)
	}
	return r.client.Publish(ctx, RelayChannel, raw).Err()
}

// Run delivers frames published by other processes until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) error {
	ps := r.client.Subscribe(ctx, RelayChannel)
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", RelayChannel, err)
	}
	log.Info().Str("module", "exchange").Str("origin", r.origin).Msg("relay subscribed")

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var f relayFrame
			if err := json.Unmarshal([]byte(m.Payload), &f); err != nil {
				log.Warn().Err(err).Str("module", "exchange").Msg("bad relay frame")
				continue
			}
			if f.Origin == r.origin {
				continue
			}
			r.hub.Deliver(f.Key, f.Message)
		}
	}
}
