// Package cache holds the open dataset handle and the per-dataset page and
// thumbnail caches shared by concurrent viewer requests.
package cache

import (
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

const shardCount = 16

// Store is a string-keyed map split into RW-locked shards selected by the
// xxhash of the key. Readers of different shards never contend.
type Store[V any] struct {
	shards [shardCount]shard[V]
	hits   atomic.Uint64
	misses atomic.Uint64
}

type shard[V any] struct {
	mu sync.RWMutex
	m  map[string]V
}

// NewStore creates an empty store.
func NewStore[V any]() *Store[V] {
	s := &Store[V]{}
	for i := range s.shards {
		s.shards[i].m = make(map[string]V)
	}
	return s
}

func (s *Store[V]) shardFor(key string) *shard[V] {
	return &s.shards[xxhash.Sum64String(key)%shardCount]
}

// Get returns the value under key. A fault inside the critical section is
// reported as a miss.
func (s *Store[V]) Get(key string) (v V, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			var zero V
			v, ok = zero, false
		}
		if ok {
			s.hits.Add(1)
		} else {
			s.misses.Add(1)
		}
	}()

	sh := s.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	v, ok = sh.m[key]
	return v, ok
}

// Put stores v under key, replacing any existing entry.
func (s *Store[V]) Put(key string, v V) {
	defer func() { _ = recover() }()

	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.m[key] = v
}

// Len returns the number of entries.
func (s *Store[V]) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		n += len(sh.m)
		sh.mu.RUnlock()
	}
	return n
}

// Clear drops every entry. Counters are kept.
func (s *Store[V]) Clear() {
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		sh.m = make(map[string]V)
		sh.mu.Unlock()
	}
}

// Hits returns the number of successful lookups.
func (s *Store[V]) Hits() uint64 { return s.hits.Load() }

// Misses returns the number of failed lookups.
func (s *Store[V]) Misses() uint64 { return s.misses.Load() }
