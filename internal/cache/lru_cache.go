// Package cache implements the sharded LRU cache used for the table
// (open-SST) cache. No block cache is built on it; data blocks are read
// from the file on every access.
//
// The cache is split into a fixed 16 shards, each independently locked, to
// keep lock contention low under concurrent reads. Every cached entry is
// reference-counted: Lookup pins the entry (preventing eviction) and the
// caller must Unpin it when done. An entry with a nonzero pin count is
// never evicted, even under capacity pressure.
package cache

import (
	"container/list"
	"fmt"
	"hash/maphash"
	"sync"

	"github.com/crwen/ckv/internal/errs"
)

// NumShards is fixed at 16 — the shard count is not configurable.
const NumShards = 16

// Handle is an opaque reference to a cached entry. Callers must call
// Cache.Unpin exactly once for every Handle they are given, whether from
// Insert or Lookup.
type Handle struct {
	key    string
	value  any
	charge int

	shard  *shard
	elem   *list.Element // position in the shard's LRU list
	pinned int
}

// Value returns the cached value associated with the handle.
func (h *Handle) Value() any { return h.value }

type entry struct {
	key    string
	value  any
	charge int
	pinned int
	elem   *list.Element
}

type shard struct {
	mu       sync.Mutex
	capacity int
	usage    int
	items    map[string]*entry
	lru      *list.List // front = least recently used unpinned candidate
}

func newShard(capacity int) *shard {
	return &shard{
		capacity: capacity,
		items:    make(map[string]*entry),
		lru:      list.New(),
	}
}

// Cache is a fixed-shard-count LRU cache keyed by arbitrary byte strings.
type Cache struct {
	shards [NumShards]*shard
	seed   maphash.Seed
}

// New creates a Cache with the given total capacity (in caller-defined
// charge units, typically bytes), split evenly across the 16 shards.
func New(capacity int) *Cache {
	perShard := capacity / NumShards
	if perShard <= 0 {
		perShard = 1
	}
	c := &Cache{seed: maphash.MakeSeed()}
	for i := range c.shards {
		c.shards[i] = newShard(perShard)
	}
	return c
}

func (c *Cache) shardFor(key []byte) *shard {
	var h maphash.Hash
	h.SetSeed(c.seed)
	_, _ = h.Write(key)
	return c.shards[h.Sum64()%NumShards]
}

// Insert adds key/value to the cache with the given charge, returning a
// pinned Handle the caller must Unpin. If key is already present, returns
// ErrDuplicateInsert and a nil handle — charge accounting is per
// entry-handle, not per insert call, so a duplicate insert never
// double-charges capacity.
func (c *Cache) Insert(key []byte, value any, charge int) (*Handle, error) {
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	k := string(key)
	if _, ok := s.items[k]; ok {
		return nil, fmt.Errorf("cache: insert %q: %w", k, errs.ErrDuplicateInsert)
	}

	for s.usage+charge > s.capacity {
		if !s.evictOneLocked() {
			return nil, fmt.Errorf("cache: insert %q: %w", k, errs.ErrCacheFull)
		}
	}

	e := &entry{key: k, value: value, charge: charge, pinned: 1}
	s.items[k] = e
	s.usage += charge

	return &Handle{key: k, value: value, charge: charge, shard: s, pinned: 1}, nil
}

// evictOneLocked removes the least-recently-used unpinned entry. Reports
// whether an entry was evicted.
func (s *shard) evictOneLocked() bool {
	for el := s.lru.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry)
		if e.pinned == 0 {
			s.lru.Remove(el)
			delete(s.items, e.key)
			s.usage -= e.charge
			return true
		}
	}
	return false
}

// Lookup finds key and returns a pinned Handle, or (nil, false) if absent.
func (c *Cache) Lookup(key []byte) (*Handle, bool) {
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	k := string(key)
	e, ok := s.items[k]
	if !ok {
		return nil, false
	}
	if e.elem != nil {
		s.lru.Remove(e.elem)
		e.elem = nil
	}
	e.pinned++
	return &Handle{key: k, value: e.value, charge: e.charge, shard: s, pinned: 1}, true
}

// Unpin releases one reference on h. Once an entry's pin count reaches
// zero it becomes eligible for eviction (and is pushed to the back of the
// shard's LRU list as the most-recently-used eviction candidate).
func (c *Cache) Unpin(h *Handle) error {
	if h == nil || h.pinned == 0 {
		return errs.ErrUnpinUnpinned
	}
	h.pinned = 0

	s := h.shard
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[h.key]
	if !ok {
		// Entry was already evicted from the cache; nothing to update.
		return nil
	}
	e.pinned--
	if e.pinned < 0 {
		return errs.ErrUnpinUnpinned
	}
	if e.pinned == 0 && e.elem == nil {
		e.elem = s.lru.PushBack(e)
	}
	return nil
}

// Erase removes key from the cache if present and unpinned. It is a no-op
// if the key is absent or currently pinned.
func (c *Cache) Erase(key []byte) {
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	k := string(key)
	e, ok := s.items[k]
	if !ok || e.pinned > 0 {
		return
	}
	if e.elem != nil {
		s.lru.Remove(e.elem)
	}
	delete(s.items, k)
	s.usage -= e.charge
}
