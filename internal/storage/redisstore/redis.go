// Package redisstore is the shared storage backend used when several
// controller processes serve the same rooms.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/opentalk/internal/storage"
)

var _ storage.Backend = (*Store)(nil)

var compareAndDelete = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Store struct {
	client *redis.Client
	// lockRetry is the pause between lock attempts.
	lockRetry time.Duration
}

// Open connects to url ("redis://host:port/db") and pings it.
func Open(ctx context.Context, url string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("%w: parse redis url: %v", storage.ErrFatal, err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, classify(err)
	}
	log.Info().Str("module", "storage").Str("addr", opts.Addr).Msg("redis connected")
	return New(client), nil
}

// New wraps an existing client.
func New(client *redis.Client) *Store {
	return &Store{client: client, lockRetry: 25 * time.Millisecond}
}

// Client exposes the connection for the exchange relay.
func (s *Store) Client() *redis.Client { return s.client }

// classify maps client errors onto the storage error kinds.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return storage.ErrNotFound
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	// Dial failures, read/write deadlines and pool timeouts all surface
	// as net.Error.
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %v", storage.ErrTransient, err)
	}
	return fmt.Errorf("%w: %v", storage.ErrFatal, err)
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.client.Get(ctx, key).Bytes()
	return v, classify(err)
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return classify(s.client.Set(ctx, key, value, ttl).Err())
}

func (s *Store) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, value, ttl).Result()
	return ok, classify(err)
}

func (s *Store) GetDel(ctx context.Context, key string) ([]byte, error) {
	v, err := s.client.GetDel(ctx, key).Bytes()
	return v, classify(err)
}

func (s *Store) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return classify(s.client.Del(ctx, keys...).Err())
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	return n > 0, classify(err)
}

func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.Expire(ctx, key, ttl).Result()
	return ok, classify(err)
}

func (s *Store) CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error) {
	n, err := compareAndDelete.Run(ctx, s.client, []string{key}, expected).Int64()
	if err != nil {
		return false, classify(err)
	}
	return n == 1, nil
}

func toArgs(members []string) []any {
	out := make([]any, len(members))
	for i, m := range members {
		out[i] = m
	}
	return out
}

func (s *Store) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	return classify(s.client.SAdd(ctx, key, toArgs(members)...).Err())
}

func (s *Store) SRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	return classify(s.client.SRem(ctx, key, toArgs(members)...).Err())
}

func (s *Store) SMembers(ctx context.Context, key string) ([]string, error) {
	v, err := s.client.SMembers(ctx, key).Result()
	return v, classify(err)
}

func (s *Store) SIsMember(ctx context.Context, key, member string) (bool, error) {
	v, err := s.client.SIsMember(ctx, key, member).Result()
	return v, classify(err)
}

func (s *Store) SCard(ctx context.Context, key string) (int64, error) {
	v, err := s.client.SCard(ctx, key).Result()
	return v, classify(err)
}

func (s *Store) HSet(ctx context.Context, key, field string, value []byte) error {
	return classify(s.client.HSet(ctx, key, field, value).Err())
}

func (s *Store) HSetNX(ctx context.Context, key, field string, value []byte) (bool, error) {
	v, err := s.client.HSetNX(ctx, key, field, value).Result()
	return v, classify(err)
}

func (s *Store) HGet(ctx context.Context, key, field string) ([]byte, error) {
	v, err := s.client.HGet(ctx, key, field).Bytes()
	return v, classify(err)
}

func (s *Store) HGetAll(ctx context.Context, key string) (map[string][]byte, error) {
	all, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, classify(err)
	}
	out := make(map[string][]byte, len(all))
	for f, v := range all {
		out[f] = []byte(v)
	}
	return out, nil
}

func (s *Store) HDel(ctx context.Context, key string, fields ...string) (int64, error) {
	v, err := s.client.HDel(ctx, key, fields...).Result()
	return v, classify(err)
}

func (s *Store) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	v, err := s.client.HIncrBy(ctx, key, field, delta).Result()
	return v, classify(err)
}

func (s *Store) RPush(ctx context.Context, key string, values ...[]byte) error {
	if len(values) == 0 {
		return nil
	}
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return classify(s.client.RPush(ctx, key, args...).Err())
}

func (s *Store) LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	v, err := s.client.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, classify(err)
	}
	out := make([][]byte, len(v))
	for i, item := range v {
		out[i] = []byte(item)
	}
	return out, nil
}

func (s *Store) LTrim(ctx context.Context, key string, start, stop int64) error {
	return classify(s.client.LTrim(ctx, key, start, stop).Err())
}

// Batch runs ops in a MULTI/EXEC transaction.
func (s *Store) Batch(ctx context.Context, ops []storage.Op) ([]storage.Result, error) {
	if len(ops) == 0 {
		return nil, nil
	}
	cmds := make([]redis.Cmder, len(ops))
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, op := range ops {
			switch op.Kind {
			case storage.OpGet:
				cmds[i] = pipe.Get(ctx, op.Key)
			case storage.OpSet:
				cmds[i] = pipe.Set(ctx, op.Key, op.Value, op.TTL)
			case storage.OpDel:
				cmds[i] = pipe.Del(ctx, op.Key)
			case storage.OpHGet:
				cmds[i] = pipe.HGet(ctx, op.Key, op.Field)
			case storage.OpHSet:
				cmds[i] = pipe.HSet(ctx, op.Key, op.Field, op.Value)
			case storage.OpHDel:
				cmds[i] = pipe.HDel(ctx, op.Key, op.Field)
			case storage.OpHIncrBy:
				cmds[i] = pipe.HIncrBy(ctx, op.Key, op.Field, op.Delta)
			case storage.OpSAdd:
				cmds[i] = pipe.SAdd(ctx, op.Key, string(op.Value))
			case storage.OpSRem:
				cmds[i] = pipe.SRem(ctx, op.Key, string(op.Value))
			case storage.OpRPush:
				cmds[i] = pipe.RPush(ctx, op.Key, op.Value)
			case storage.OpLTrim:
				cmds[i] = pipe.LTrim(ctx, op.Key, op.Delta, op.Stop)
			case storage.OpExpire:
				cmds[i] = pipe.Expire(ctx, op.Key, op.TTL)
			default:
				return fmt.Errorf("%w: unknown batch op %d", storage.ErrFatal, op.Kind)
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		if errors.Is(err, storage.ErrFatal) {
			return nil, err
		}
		return nil, classify(err)
	}

	results := make([]storage.Result, len(ops))
	for i, cmd := range cmds {
		switch c := cmd.(type) {
		case *redis.StringCmd:
			v, err := c.Bytes()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				return nil, classify(err)
			}
			results[i] = storage.Result{Value: v, Found: true}
		case *redis.IntCmd:
			v, err := c.Result()
			if err != nil {
				return nil, classify(err)
			}
			results[i].Int = v
		default:
			if err := cmd.Err(); err != nil {
				return nil, classify(err)
			}
		}
	}
	return results, nil
}

func (s *Store) Close() error { return s.client.Close() }
