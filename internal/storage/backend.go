package storage

import (
	"context"
	"time"
)

// Backend is the union of the primitives the runtime needs. Missing keys are
// reported as ErrNotFound by single-value reads and as empty results by
// collection reads. A ttl of zero means no expiry.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetNX writes only when the key is absent and reports whether it did.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	GetDel(ctx context.Context, key string) ([]byte, error)
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// CompareAndDelete deletes key only if it currently holds expected.
	CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error)

	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SIsMember(ctx context.Context, key, member string) (bool, error)
	SCard(ctx context.Context, key string) (int64, error)

	HSet(ctx context.Context, key, field string, value []byte) error
	HSetNX(ctx context.Context, key, field string, value []byte) (bool, error)
	HGet(ctx context.Context, key, field string) ([]byte, error)
	HGetAll(ctx context.Context, key string) (map[string][]byte, error)
	HDel(ctx context.Context, key string, fields ...string) (int64, error)
	HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error)

	RPush(ctx context.Context, key string, values ...[]byte) error
	LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error)
	LTrim(ctx context.Context, key string, start, stop int64) error

	// Batch runs ops atomically and returns one Result per op.
	Batch(ctx context.Context, ops []Op) ([]Result, error)

	// Lock blocks until the exclusive lock on key is held or ctx is done.
	// ttl bounds how long a crashed holder can keep the lock on networked
	// backends.
	Lock(ctx context.Context, key string, ttl time.Duration) (Unlocker, error)

	Close() error
}

// Unlocker releases a lock obtained from Backend.Lock. Unlock is idempotent.
type Unlocker interface {
	Unlock(ctx context.Context) error
}

type OpKind int

const (
	OpGet OpKind = iota
	OpSet
	OpDel
	OpHGet
	OpHSet
	OpHDel
	OpHIncrBy
	OpSAdd
	OpSRem
	OpRPush
	OpLTrim
	OpExpire
)

// Op is one command of a Batch.
type Op struct {
	Kind  OpKind
	Key   string
	Field string
	Value []byte
	// Delta is the increment for OpHIncrBy and the start index for OpLTrim.
	Delta int64
	// Stop is the stop index for OpLTrim.
	Stop int64
	TTL  time.Duration
}

// Result of one Op. Found is set by OpGet/OpHGet.
type Result struct {
	Value []byte
	Found bool
	Int   int64
}
