package storage

import (
	"context"
)

// WithReadRetry wraps b so idempotent reads are retried once when they fail
// with ErrTransient. Writes are passed through untouched.
func WithReadRetry(b Backend) Backend {
	return &readRetry{Backend: b}
}

type readRetry struct {
	Backend
}

func retryOnce[T any](fn func() (T, error)) (T, error) {
	v, err := fn()
	if err != nil && IsTransient(err) {
		return fn()
	}
	return v, err
}

func (r *readRetry) Get(ctx context.Context, key string) ([]byte, error) {
	return retryOnce(func() ([]byte, error) { return r.Backend.Get(ctx, key) })
}

func (r *readRetry) Exists(ctx context.Context, key string) (bool, error) {
	return retryOnce(func() (bool, error) { return r.Backend.Exists(ctx, key) })
}

func (r *readRetry) SMembers(ctx context.Context, key string) ([]string, error) {
	return retryOnce(func() ([]string, error) { return r.Backend.SMembers(ctx, key) })
}

func (r *readRetry) SIsMember(ctx context.Context, key, member string) (bool, error) {
	return retryOnce(func() (bool, error) { return r.Backend.SIsMember(ctx, key, member) })
}

func (r *readRetry) SCard(ctx context.Context, key string) (int64, error) {
	return retryOnce(func() (int64, error) { return r.Backend.SCard(ctx, key) })
}

func (r *readRetry) HGet(ctx context.Context, key, field string) ([]byte, error) {
	return retryOnce(func() ([]byte, error) { return r.Backend.HGet(ctx, key, field) })
}

func (r *readRetry) HGetAll(ctx context.Context, key string) (map[string][]byte, error) {
	return retryOnce(func() (map[string][]byte, error) { return r.Backend.HGetAll(ctx, key) })
}

func (r *readRetry) LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	return retryOnce(func() ([][]byte, error) { return r.Backend.LRange(ctx, key, start, stop) })
}
