package history

import (
	"slices"

	lru "github.com/hashicorp/golang-lru/v2/simplelru"
)

// DefaultStoreCapacity is the number of entries kept before LRU eviction.
const DefaultStoreCapacity = 10000

// Store is the fingerprint-indexed LRU of learned entries. It is not safe for
// concurrent use; Predictor guards it.
type Store struct {
	cache    *lru.LRU[uint32, *Entry]
	capacity int
	evicted  int
}

// NewStore creates a store that evicts the least recently inserted entry past capacity.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultStoreCapacity
	}
	s := &Store{capacity: capacity}
	cache, err := lru.NewLRU[uint32, *Entry](capacity, func(uint32, *Entry) { s.evicted++ })
	if err != nil {
		// only fails on a non-positive size
		panic(err)
	}
	s.cache = cache
	return s
}

// Insert returns the entry for fp, creating an empty one when absent, and
// marks it most recently used.
func (s *Store) Insert(fp uint32) (entry *Entry, created bool) {
	if e, ok := s.cache.Get(fp); ok {
		return e, false
	}
	e := &Entry{}
	s.cache.Add(fp, e)
	return e, true
}

// Lookup returns the entry for fp without touching recency, or nil.
func (s *Store) Lookup(fp uint32) *Entry {
	if e, ok := s.cache.Peek(fp); ok {
		return e
	}
	return nil
}

// Erase drops fp from the store.
func (s *Store) Erase(fp uint32) bool {
	n := s.evicted
	defer func() { s.evicted = n }()
	return s.cache.Remove(fp)
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	return s.cache.Len()
}

// Capacity returns the eviction threshold.
func (s *Store) Capacity() int {
	return s.capacity
}

// Evicted returns how many entries capacity pressure has pushed out.
func (s *Store) Evicted() int {
	return s.evicted
}

// Clear drops every entry.
func (s *Store) Clear() {
	n := s.evicted
	s.cache.Purge()
	s.evicted = n
}

// Fingerprints lists keys most recently used first.
func (s *Store) Fingerprints() []uint32 {
	keys := s.cache.Keys()
	slices.Reverse(keys)
	return keys
}

// Each visits entries most recently used first until fn returns false.
func (s *Store) Each(fn func(fp uint32, e *Entry) bool) {
	for _, fp := range s.Fingerprints() {
		e, ok := s.cache.Peek(fp)
		if !ok {
			continue
		}
		if !fn(fp, e) {
			return
		}
	}
}

// Oldest lists entries least recently used first, the order snapshots are written in.
func (s *Store) Oldest() []*Entry {
	keys := s.cache.Keys()
	out := make([]*Entry, 0, len(keys))
	for _, fp := range keys {
		if e, ok := s.cache.Peek(fp); ok {
			out = append(out, e)
		}
	}
	return out
}
