package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

func isNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// GetJSON reads and decodes key. A missing key is reported as found=false.
func GetJSON[T any](ctx context.Context, b Backend, key string) (T, bool, error) {
	var v T
	raw, err := b.Get(ctx, key)
	if err != nil {
		if isNotFound(err) {
			return v, false, nil
		}
		return v, false, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return v, true, nil
}

// GetDelJSON atomically reads and deletes key.
func GetDelJSON[T any](ctx context.Context, b Backend, key string) (T, bool, error) {
	var v T
	raw, err := b.GetDel(ctx, key)
	if err != nil {
		if isNotFound(err) {
			return v, false, nil
		}
		return v, false, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return v, true, nil
}

func SetJSON(ctx context.Context, b Backend, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return b.Set(ctx, key, raw, ttl)
}

func SetNXJSON(ctx context.Context, b Backend, key string, v any, ttl time.Duration) (bool, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return false, fmt.Errorf("encode %s: %w", key, err)
	}
	return b.SetNX(ctx, key, raw, ttl)
}

func HGetJSON[T any](ctx context.Context, b Backend, key, field string) (T, bool, error) {
	var v T
	raw, err := b.HGet(ctx, key, field)
	if err != nil {
		if isNotFound(err) {
			return v, false, nil
		}
		return v, false, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false, fmt.Errorf("decode %s[%s]: %w", key, field, err)
	}
	return v, true, nil
}

func HSetJSON(ctx context.Context, b Backend, key, field string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s[%s]: %w", key, field, err)
	}
	return b.HSet(ctx, key, field, raw)
}

func HGetAllJSON[T any](ctx context.Context, b Backend, key string) (map[string]T, error) {
	all, err := b.HGetAll(ctx, key)
	if err != nil {
		return nil, err
	}
	out := make(map[string]T, len(all))
	for field, raw := range all {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode %s[%s]: %w", key, field, err)
		}
		out[field] = v
	}
	return out, nil
}

func RPushJSON(ctx context.Context, b Backend, key string, values ...any) error {
	raws := make([][]byte, 0, len(values))
	for _, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		raws = append(raws, raw)
	}
	return b.RPush(ctx, key, raws...)
}

// LRangeJSON decodes the whole list stored at key.
func LRangeJSON[T any](ctx context.Context, b Backend, key string) ([]T, error) {
	raws, err := b.LRange(ctx, key, 0, -1)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(raws))
	for _, raw := range raws {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		out = append(out, v)
	}
	return out, nil
}
