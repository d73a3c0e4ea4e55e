// Package memory is the in-process storage backend. Every key lives in one
// map guarded by a read-write lock; expired entries are skipped by reads and
// dropped by writes, so no background sweeper is needed.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dkeye/opentalk/internal/storage"
)

// Compile-time interface check.
var _ storage.Backend = (*Store)(nil)

type kind int

const (
	kindString kind = iota
	kindSet
	kindHash
	kindList
)

type entry struct {
	kind     kind
	str      []byte
	set      map[string]struct{}
	hash     map[string][]byte
	list     [][]byte
	deadline time.Time
}

// Store is the volatile backend. The zero value is not usable; call New.
type Store struct {
	clock clock.Clock

	mu   sync.RWMutex
	data map[string]*entry

	locksMu sync.Mutex
	locks   map[string]*keyedMutex
}

// New returns an empty store whose TTLs are measured on clk.
func New(clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.New()
	}
	return &Store{
		clock: clk,
		data:  make(map[string]*entry),
		locks: make(map[string]*keyedMutex),
	}
}

func errWrongType(key string) error {
	return fmt.Errorf("%w: key %s holds the wrong kind of value", storage.ErrFatal, key)
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (s *Store) expired(e *entry, now time.Time) bool {
	return !e.deadline.IsZero() && !now.Before(e.deadline)
}

// lookup returns the live entry for key. Callers hold at least the read lock.
func (s *Store) lookup(key string) *entry {
	e, ok := s.data[key]
	if !ok || s.expired(e, s.clock.Now()) {
		return nil
	}
	return e
}

// lookupWrite is lookup for writers: expired entries are dropped.
func (s *Store) lookupWrite(key string) *entry {
	e, ok := s.data[key]
	if !ok {
		return nil
	}
	if s.expired(e, s.clock.Now()) {
		delete(s.data, key)
		return nil
	}
	return e
}

func (s *Store) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.clock.Now().Add(ttl)
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(key)
}

func (s *Store) getLocked(key string) ([]byte, error) {
	e := s.lookup(key)
	if e == nil {
		return nil, storage.ErrNotFound
	}
	if e.kind != kindString {
		return nil, errWrongType(key)
	}
	return clone(e.str), nil
}

func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(key, value, ttl)
	return nil
}

func (s *Store) setLocked(key string, value []byte, ttl time.Duration) {
	s.data[key] = &entry{kind: kindString, str: clone(value), deadline: s.deadline(ttl)}
}

func (s *Store) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lookupWrite(key) != nil {
		return false, nil
	}
	s.setLocked(key, value, ttl)
	return true, nil
}

func (s *Store) GetDel(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.getLocked(key)
	if err != nil {
		return nil, err
	}
	delete(s.data, key)
	return v, nil
}

func (s *Store) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookup(key) != nil, nil
}

func (s *Store) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expireLocked(key, ttl), nil
}

func (s *Store) expireLocked(key string, ttl time.Duration) bool {
	e := s.lookupWrite(key)
	if e == nil {
		return false
	}
	if ttl <= 0 {
		delete(s.data, key)
		return true
	}
	e.deadline = s.deadline(ttl)
	return true
}

func (s *Store) CompareAndDelete(_ context.Context, key string, expected []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.lookupWrite(key)
	if e == nil || e.kind != kindString || !bytes.Equal(e.str, expected) {
		return false, nil
	}
	delete(s.data, key)
	return true, nil
}

func (s *Store) SAdd(_ context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saddLocked(key, members...)
}

func (s *Store) saddLocked(key string, members ...string) error {
	e := s.lookupWrite(key)
	if e == nil {
		e = &entry{kind: kindSet, set: make(map[string]struct{})}
		s.data[key] = e
	}
	if e.kind != kindSet {
		return errWrongType(key)
	}
	for _, m := range members {
		e.set[m] = struct{}{}
	}
	return nil
}

func (s *Store) SRem(_ context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sremLocked(key, members...)
}

func (s *Store) sremLocked(key string, members ...string) error {
	e := s.lookupWrite(key)
	if e == nil {
		return nil
	}
	if e.kind != kindSet {
		return errWrongType(key)
	}
	for _, m := range members {
		delete(e.set, m)
	}
	if len(e.set) == 0 {
		delete(s.data, key)
	}
	return nil
}

func (s *Store) SMembers(_ context.Context, key string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e := s.lookup(key)
	if e == nil {
		return []string{}, nil
	}
	if e.kind != kindSet {
		return nil, errWrongType(key)
	}
	out := make([]string, 0, len(e.set))
	for m := range e.set {
		out = append(out, m)
	}
	return out, nil
}

func (s *Store) SIsMember(_ context.Context, key, member string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e := s.lookup(key)
	if e == nil {
		return false, nil
	}
	if e.kind != kindSet {
		return false, errWrongType(key)
	}
	_, ok := e.set[member]
	return ok, nil
}

func (s *Store) SCard(_ context.Context, key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e := s.lookup(key)
	if e == nil {
		return 0, nil
	}
	if e.kind != kindSet {
		return 0, errWrongType(key)
	}
	return int64(len(e.set)), nil
}

func (s *Store) hashForWrite(key string) (*entry, error) {
	e := s.lookupWrite(key)
	if e == nil {
		e = &entry{kind: kindHash, hash: make(map[string][]byte)}
		s.data[key] = e
	}
	if e.kind != kindHash {
		return nil, errWrongType(key)
	}
	return e, nil
}

func (s *Store) HSet(_ context.Context, key, field string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hsetLocked(key, field, value)
}

func (s *Store) hsetLocked(key, field string, value []byte) error {
	e, err := s.hashForWrite(key)
	if err != nil {
		return err
	}
	e.hash[field] = clone(value)
	return nil
}

func (s *Store) HSetNX(_ context.Context, key, field string, value []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.hashForWrite(key)
	if err != nil {
		return false, err
	}
	if _, ok := e.hash[field]; ok {
		return false, nil
	}
	e.hash[field] = clone(value)
	return true, nil
}

func (s *Store) HGet(_ context.Context, key, field string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hgetLocked(key, field)
}

func (s *Store) hgetLocked(key, field string) ([]byte, error) {
	e := s.lookup(key)
	if e == nil {
		return nil, storage.ErrNotFound
	}
	if e.kind != kindHash {
		return nil, errWrongType(key)
	}
	v, ok := e.hash[field]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return clone(v), nil
}

func (s *Store) HGetAll(_ context.Context, key string) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e := s.lookup(key)
	if e == nil {
		return map[string][]byte{}, nil
	}
	if e.kind != kindHash {
		return nil, errWrongType(key)
	}
	out := make(map[string][]byte, len(e.hash))
	for f, v := range e.hash {
		out[f] = clone(v)
	}
	return out, nil
}

func (s *Store) HDel(_ context.Context, key string, fields ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hdelLocked(key, fields...)
}

func (s *Store) hdelLocked(key string, fields ...string) (int64, error) {
	e := s.lookupWrite(key)
	if e == nil {
		return 0, nil
	}
	if e.kind != kindHash {
		return 0, errWrongType(key)
	}
	var removed int64
	for _, f := range fields {
		if _, ok := e.hash[f]; ok {
			delete(e.hash, f)
			removed++
		}
	}
	if len(e.hash) == 0 {
		delete(s.data, key)
	}
	return removed, nil
}

func (s *Store) HIncrBy(_ context.Context, key, field string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hincrLocked(key, field, delta)
}

func (s *Store) hincrLocked(key, field string, delta int64) (int64, error) {
	e, err := s.hashForWrite(key)
	if err != nil {
		return 0, err
	}
	var current int64
	if raw, ok := e.hash[field]; ok {
		current, err = strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s[%s] is not an integer", storage.ErrFatal, key, field)
		}
	}
	current += delta
	e.hash[field] = []byte(strconv.FormatInt(current, 10))
	return current, nil
}

func (s *Store) RPush(_ context.Context, key string, values ...[]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rpushLocked(key, values...)
}

func (s *Store) rpushLocked(key string, values ...[]byte) error {
	e := s.lookupWrite(key)
	if e == nil {
		e = &entry{kind: kindList}
		s.data[key] = e
	}
	if e.kind != kindList {
		return errWrongType(key)
	}
	for _, v := range values {
		e.list = append(e.list, clone(v))
	}
	return nil
}

// bounds converts redis-style inclusive, possibly negative indices.
func bounds(start, stop int64, n int) (int, int, bool) {
	size := int64(n)
	if start < 0 {
		start += size
	}
	if stop < 0 {
		stop += size
	}
	if start < 0 {
		start = 0
	}
	if stop >= size {
		stop = size - 1
	}
	if start > stop || start >= size {
		return 0, 0, false
	}
	return int(start), int(stop) + 1, true
}

func (s *Store) LRange(_ context.Context, key string, start, stop int64) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e := s.lookup(key)
	if e == nil {
		return [][]byte{}, nil
	}
	if e.kind != kindList {
		return nil, errWrongType(key)
	}
	from, to, ok := bounds(start, stop, len(e.list))
	if !ok {
		return [][]byte{}, nil
	}
	out := make([][]byte, 0, to-from)
	for _, v := range e.list[from:to] {
		out = append(out, clone(v))
	}
	return out, nil
}

func (s *Store) LTrim(_ context.Context, key string, start, stop int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ltrimLocked(key, start, stop)
}

func (s *Store) ltrimLocked(key string, start, stop int64) error {
	e := s.lookupWrite(key)
	if e == nil {
		return nil
	}
	if e.kind != kindList {
		return errWrongType(key)
	}
	from, to, ok := bounds(start, stop, len(e.list))
	if !ok {
		delete(s.data, key)
		return nil
	}
	e.list = append([][]byte(nil), e.list[from:to]...)
	return nil
}

// Batch applies ops inside one critical section.
func (s *Store) Batch(_ context.Context, ops []storage.Op) ([]storage.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	results := make([]storage.Result, len(ops))
	for i, op := range ops {
		var err error
		switch op.Kind {
		case storage.OpGet:
			var v []byte
			v, err = s.getLocked(op.Key)
			if err == nil {
				results[i] = storage.Result{Value: v, Found: true}
			}
		case storage.OpSet:
			s.setLocked(op.Key, op.Value, op.TTL)
		case storage.OpDel:
			delete(s.data, op.Key)
		case storage.OpHGet:
			var v []byte
			v, err = s.hgetLocked(op.Key, op.Field)
			if err == nil {
				results[i] = storage.Result{Value: v, Found: true}
			}
		case storage.OpHSet:
			err = s.hsetLocked(op.Key, op.Field, op.Value)
		case storage.OpHDel:
			results[i].Int, err = s.hdelLocked(op.Key, op.Field)
		case storage.OpHIncrBy:
			results[i].Int, err = s.hincrLocked(op.Key, op.Field, op.Delta)
		case storage.OpSAdd:
			err = s.saddLocked(op.Key, string(op.Value))
		case storage.OpSRem:
			err = s.sremLocked(op.Key, string(op.Value))
		case storage.OpRPush:
			err = s.rpushLocked(op.Key, op.Value)
		case storage.OpLTrim:
			err = s.ltrimLocked(op.Key, op.Delta, op.Stop)
		case storage.OpExpire:
			s.expireLocked(op.Key, op.TTL)
		default:
			err = fmt.Errorf("%w: unknown batch op %d", storage.ErrFatal, op.Kind)
		}
		if err == storage.ErrNotFound {
			err = nil
		}
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

func (s *Store) Close() error { return nil }
