package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dkeye/opentalk/internal/domain"
)

// Scope selects where a participant attribute lives. Local attributes are
// keyed by the full signaling room id; global attributes ignore the breakout
// slot and survive a breakout round-trip.
type Scope int

const (
	ScopeLocal Scope = iota
	ScopeGlobal
)

func (s Scope) String() string {
	if s == ScopeGlobal {
		return "global"
	}
	return "local"
}

// AttributeBatch collects attribute reads and writes for one signaling room
// and executes them in a single round-trip.
type AttributeBatch struct {
	room     domain.SignalingRoomID
	ops      []Op
	decoders []func(Result) error
	err      error
}

func NewAttributeBatch(room domain.SignalingRoomID) *AttributeBatch {
	return &AttributeBatch{room: room}
}

// Attribute is the typed result slot of a batched read. It is filled by Exec.
type Attribute[T any] struct {
	value T
	found bool
}

// Get returns the value and whether it was present.
func (a *Attribute[T]) Get() (T, bool) { return a.value, a.found }

// Or returns the value, or fallback when it was missing.
func (a *Attribute[T]) Or(fallback T) T {
	if !a.found {
		return fallback
	}
	return a.value
}

func GetLocal[T any](b *AttributeBatch, id domain.ParticipantID, name string) *Attribute[T] {
	return getAttr[T](b, ScopeLocal, id, name)
}

func GetGlobal[T any](b *AttributeBatch, id domain.ParticipantID, name string) *Attribute[T] {
	return getAttr[T](b, ScopeGlobal, id, name)
}

func getAttr[T any](b *AttributeBatch, scope Scope, id domain.ParticipantID, name string) *Attribute[T] {
	slot := &Attribute[T]{}
	b.ops = append(b.ops, Op{Kind: OpHGet, Key: attributeKey(b.room, scope, name), Field: string(id)})
	b.decoders = append(b.decoders, func(r Result) error {
		if !r.Found {
			return nil
		}
		if err := json.Unmarshal(r.Value, &slot.value); err != nil {
			return fmt.Errorf("decode attribute %s: %w", name, err)
		}
		slot.found = true
		return nil
	})
	return slot
}

func (b *AttributeBatch) SetLocal(id domain.ParticipantID, name string, value any) *AttributeBatch {
	return b.set(ScopeLocal, id, name, value)
}

func (b *AttributeBatch) SetGlobal(id domain.ParticipantID, name string, value any) *AttributeBatch {
	return b.set(ScopeGlobal, id, name, value)
}

func (b *AttributeBatch) DeleteLocal(id domain.ParticipantID, name string) *AttributeBatch {
	return b.del(ScopeLocal, id, name)
}

func (b *AttributeBatch) DeleteGlobal(id domain.ParticipantID, name string) *AttributeBatch {
	return b.del(ScopeGlobal, id, name)
}

func (b *AttributeBatch) set(scope Scope, id domain.ParticipantID, name string, value any) *AttributeBatch {
	raw, err := json.Marshal(value)
	if err != nil {
		if b.err == nil {
			b.err = fmt.Errorf("encode attribute %s: %w", name, err)
		}
		return b
	}
	key := attributeKey(b.room, scope, name)
	b.ops = append(b.ops,
		Op{Kind: OpHSet, Key: key, Field: string(id), Value: raw},
		Op{Kind: OpSAdd, Key: attributeIndexKey(b.room, scope), Value: []byte(key)},
	)
	b.decoders = append(b.decoders, nil, nil)
	return b
}

func (b *AttributeBatch) del(scope Scope, id domain.ParticipantID, name string) *AttributeBatch {
	b.ops = append(b.ops, Op{Kind: OpHDel, Key: attributeKey(b.room, scope, name), Field: string(id)})
	b.decoders = append(b.decoders, nil)
	return b
}

// Len is the number of queued ops.
func (b *AttributeBatch) Len() int { return len(b.ops) }

// Exec runs the queued actions and fills every Attribute slot.
func (b *AttributeBatch) Exec(ctx context.Context, backend Backend) error {
	if b.err != nil {
		return b.err
	}
	if len(b.ops) == 0 {
		return nil
	}
	results, err := backend.Batch(ctx, b.ops)
	if err != nil {
		return fmt.Errorf("attribute batch: %w", err)
	}
	for i, decode := range b.decoders {
		if decode == nil {
			continue
		}
		if err := decode(results[i]); err != nil {
			return err
		}
	}
	return nil
}

// GetAttribute reads a single attribute.
func GetAttribute[T any](ctx context.Context, backend Backend, room domain.SignalingRoomID, scope Scope, id domain.ParticipantID, name string) (T, bool, error) {
	var zero T
	raw, err := backend.HGet(ctx, attributeKey(room, scope, name), string(id))
	if err != nil {
		if isNotFound(err) {
			return zero, false, nil
		}
		return zero, false, err
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, false, fmt.Errorf("decode attribute %s: %w", name, err)
	}
	return v, true, nil
}

// SetAttribute writes a single attribute.
func SetAttribute(ctx context.Context, backend Backend, room domain.SignalingRoomID, scope Scope, id domain.ParticipantID, name string, value any) error {
	return NewAttributeBatch(room).set(scope, id, name, value).Exec(ctx, backend)
}

// DeleteAttribute removes a single attribute.
func DeleteAttribute(ctx context.Context, backend Backend, room domain.SignalingRoomID, scope Scope, id domain.ParticipantID, name string) error {
	_, err := backend.HDel(ctx, attributeKey(room, scope, name), string(id))
	return err
}

// GetAttributeForAll returns the attribute for every participant that has it.
func GetAttributeForAll[T any](ctx context.Context, backend Backend, room domain.SignalingRoomID, scope Scope, name string) (map[domain.ParticipantID]T, error) {
	all, err := backend.HGetAll(ctx, attributeKey(room, scope, name))
	if err != nil {
		return nil, err
	}
	out := make(map[domain.ParticipantID]T, len(all))
	for field, raw := range all {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode attribute %s: %w", name, err)
		}
		out[domain.ParticipantID(field)] = v
	}
	return out, nil
}

// RemoveRoomAttributes deletes every attribute hash of the given scope that
// was ever written for room.
func RemoveRoomAttributes(ctx context.Context, backend Backend, room domain.SignalingRoomID, scope Scope) error {
	index := attributeIndexKey(room, scope)
	keys, err := backend.SMembers(ctx, index)
	if err != nil {
		return err
	}
	return backend.Del(ctx, append(keys, index)...)
}
