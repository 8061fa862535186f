// Package cache provides the in-memory tier shared by the blacklist and the
// session registry: a map of expiring entries split over independently locked
// shards so concurrent readers of different keys never contend.
package cache

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// DefaultShards is the shard count used when New is given a non-positive value.
const DefaultShards = 64

// MaxShards bounds the shard count accepted by New.
const MaxShards = 4096

type item[V any] struct {
	value     V
	expiresAt time.Time
}

func (it item[V]) expired(now time.Time) bool {
	return !now.Before(it.expiresAt)
}

type shard[V any] struct {
	mu sync.RWMutex
	m  map[string]item[V]
}

// Sharded is a concurrency-safe map from string keys to values that carry an
// expiry. An entry whose expiry is at or before the lookup time is absent.
// Every mutation is a single map operation under one shard lock.
type Sharded[V any] struct {
	shards []*shard[V]
	mask   uint64
}

// New returns a cache with n shards, rounded up to a power of two and capped
// at MaxShards.
func New[V any](n int) *Sharded[V] {
	if n <= 0 {
		n = DefaultShards
	}
	if n > MaxShards {
		n = MaxShards
	}
	size := 1
	for size < n {
		size <<= 1
	}
	c := &Sharded[V]{shards: make([]*shard[V], size), mask: uint64(size - 1)}
	for i := range c.shards {
		c.shards[i] = &shard[V]{m: make(map[string]item[V])}
	}
	return c
}

func (c *Sharded[V]) shardFor(key string) *shard[V] {
	return c.shards[xxhash.Sum64String(key)&c.mask]
}

// Get returns the value for key when present and not expired at now. An
// expired entry is removed before returning.
func (c *Sharded[V]) Get(key string, now time.Time) (V, bool) {
	s := c.shardFor(key)
	s.mu.RLock()
	it, ok := s.m[key]
	s.mu.RUnlock()
	if !ok {
		var zero V
		return zero, false
	}
	if it.expired(now) {
		s.mu.Lock()
		// A concurrent Put may have replaced the entry since the read lock was released.
		if cur, ok := s.m[key]; ok && cur.expired(now) {
			delete(s.m, key)
		}
		s.mu.Unlock()
		var zero V
		return zero, false
	}
	return it.value, true
}

// Put stores value under key until expiresAt, replacing any existing entry.
func (c *Sharded[V]) Put(key string, value V, expiresAt time.Time) {
	s := c.shardFor(key)
	s.mu.Lock()
	s.m[key] = item[V]{value: value, expiresAt: expiresAt}
	s.mu.Unlock()
}

// PutIfAbsent stores value unless a live entry already exists for key at
// now. An expired entry is replaced. Reports whether value was stored.
func (c *Sharded[V]) PutIfAbsent(key string, value V, expiresAt, now time.Time) bool {
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.m[key]; ok && !cur.expired(now) {
		return false
	}
	s.m[key] = item[V]{value: value, expiresAt: expiresAt}
	return true
}

// PutIfAbsentWhen is PutIfAbsent gated by allow, which is evaluated under
// the shard lock immediately before the write.
func (c *Sharded[V]) PutIfAbsentWhen(key string, value V, expiresAt, now time.Time, allow func() bool) bool {
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.m[key]; ok && !cur.expired(now) {
		return false
	}
	if !allow() {
		return false
	}
	s.m[key] = item[V]{value: value, expiresAt: expiresAt}
	return true
}

// Update replaces the value under key with the result of fn, keeping its
// expiry. fn returning false leaves the entry alone. Reports whether the
// entry was replaced.
func (c *Sharded[V]) Update(key string, fn func(V) (V, bool)) bool {
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.m[key]
	if !ok {
		return false
	}
	v, ok := fn(it.value)
	if !ok {
		return false
	}
	s.m[key] = item[V]{value: v, expiresAt: it.expiresAt}
	return true
}

// UpdateFunc applies fn to every entry, one shard at a time, and returns how
// many were replaced.
func (c *Sharded[V]) UpdateFunc(fn func(key string, value V) (V, bool)) int {
	updated := 0
	for _, s := range c.shards {
		s.mu.Lock()
		for k, it := range s.m {
			if v, ok := fn(k, it.value); ok {
				s.m[k] = item[V]{value: v, expiresAt: it.expiresAt}
				updated++
			}
		}
		s.mu.Unlock()
	}
	return updated
}

// Delete removes key. Reports whether an entry was present.
func (c *Sharded[V]) Delete(key string) bool {
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[key]; !ok {
		return false
	}
	delete(s.m, key)
	return true
}

// DeleteIf removes key when match returns true for its current value.
// The check and the delete happen under the same lock.
func (c *Sharded[V]) DeleteIf(key string, match func(V) bool) bool {
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.m[key]
	if !ok || !match(it.value) {
		return false
	}
	delete(s.m, key)
	return true
}

// DeleteFunc removes every entry for which match returns true, one shard at
// a time, and returns how many were removed.
func (c *Sharded[V]) DeleteFunc(match func(key string, value V) bool) int {
	removed := 0
	for _, s := range c.shards {
		s.mu.Lock()
		for k, it := range s.m {
			if match(k, it.value) {
				delete(s.m, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Sweep removes every entry expired at now and returns how many were removed.
func (c *Sharded[V]) Sweep(now time.Time) int {
	removed := 0
	for _, s := range c.shards {
		s.mu.Lock()
		for k, it := range s.m {
			if it.expired(now) {
				delete(s.m, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Len returns the number of entries, expired or not.
func (c *Sharded[V]) Len() int {
	n := 0
	for _, s := range c.shards {
		s.mu.RLock()
		n += len(s.m)
		s.mu.RUnlock()
	}
	return n
}
