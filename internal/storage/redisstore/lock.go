package redisstore

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/opentalk/internal/storage"
)

type lock struct {
	store *Store
	key   string
	token string
	once  sync.Once
}

// Lock is a SET NX token lock; ttl frees it if the holder dies.
func (s *Store) Lock(ctx context.Context, key string, ttl time.Duration) (storage.Unlocker, error) {
	token := uuid.NewString()
	for {
		ok, err := s.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %s: %v", storage.ErrLockTimeout, key, ctx.Err())
			}
			return nil, classify(err)
		}
		if ok {
			return &lock{store: s, key: key, token: token}, nil
		}
		jitter := time.Duration(rand.Int64N(int64(s.lockRetry)))
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", storage.ErrLockTimeout, key, ctx.Err())
		case <-time.After(s.lockRetry + jitter):
		}
	}
}

func (l *lock) Unlock(ctx context.Context) error {
	var err error
	l.once.Do(func() {
		var released bool
		released, err = l.store.CompareAndDelete(ctx, l.key, []byte(l.token))
		if err == nil && !released {
			log.Warn().Str("module", "storage").Str("key", l.key).Msg("lock expired before release")
		}
	})
	return err
}
