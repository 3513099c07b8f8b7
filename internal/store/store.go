// Package store implements the frame cache's LRU store: a fixed-capacity
// associative structure keyed by frame identifier, maintaining recency
// order for O(1) eviction. This is the hottest path in the core — every
// get and put must land within a handful of milliseconds — so it is built
// the way the Python original's lru_cache.py builds it: a hash map for
// O(1) lookup plus an intrusive doubly-linked list for O(1) recency
// updates and eviction, rather than the scan-based session eviction policy
// the Go teacher repo uses for its session store.
package store

import (
	"fmt"
	"sync"
	"time"

	"framecache/internal/cache"
)

// node is an intrusive doubly-linked-list entry. The zero value is never
// used as a real entry; head and tail are sentinel nodes so insertion and
// removal never need a nil check.
type node struct {
	key        string
	frame      cache.Frame
	size       uint64
	lastAccess time.Time
	prev, next *node
}

// Config configures a Store.
type Config struct {
	Name       string
	MaxEntries int
	ByteLimit  uint64
}

// Stats is a point-in-time snapshot of Store counters.
type Stats struct {
	Name          string
	Entries       int
	BytesUsed     uint64
	ByteLimit     uint64
	Hits          uint64
	Misses        uint64
	Evictions     uint64
	OversizedRejections uint64
}

// HitRate returns hits / (hits + misses), or 0 over zero accesses.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Store is the LRU frame store described in spec.md 4.1. It is protected
// by a single mutex; critical sections never span I/O — callers load
// frames through the external loader capability outside any Store lock and
// only re-acquire it to insert the result.
type Store struct {
	cfg Config

	mu    sync.Mutex
	items map[string]*node
	head  *node // sentinel: head.next is most-recently-used
	tail  *node // sentinel: tail.prev is least-recently-used

	bytesUsed uint64
	hits      uint64
	misses    uint64
	evictions uint64
	oversized uint64

	pressureCallbacks map[cache.PressureLevel][]func(cache.PressureLevel)
}

// New creates a Store. MaxEntries and ByteLimit must both be positive.
func New(cfg Config) (*Store, error) {
	if cfg.MaxEntries <= 0 {
		return nil, fmt.Errorf("store %q: max entries must be positive", cfg.Name)
	}
	if cfg.ByteLimit == 0 {
		return nil, fmt.Errorf("store %q: byte limit must be positive", cfg.Name)
	}

	head := &node{}
	tail := &node{}
	head.next = tail
	tail.prev = head

	return &Store{
		cfg:               cfg,
		items:             make(map[string]*node, cfg.MaxEntries),
		head:              head,
		tail:              tail,
		pressureCallbacks: make(map[cache.PressureLevel][]func(cache.PressureLevel)),
	}, nil
}

// Get probes the store. On hit it promotes the entry to most-recent,
// stamps the access time, and returns the stored payload directly (a view,
// not a copy — see SPEC_FULL.md 3.1; callers must not mutate it).
func (s *Store) Get(key string) (cache.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.items[key]
	if !ok {
		s.misses++
		return cache.Frame{}, false
	}

	n.lastAccess = time.Now()
	s.moveToFront(n)
	s.hits++
	return n.frame, true
}

// Put inserts or replaces a frame. Replace-in-place never triggers
// eviction when the new size is <= the old size; otherwise least-recent
// entries are evicted until the new entry fits. A frame larger than the
// byte ceiling is rejected outright, never partially applied.
func (s *Store) Put(key string, frame cache.Frame) error {
	size := frame.Size()
	if size == 0 {
		return cache.ErrInvalidPayload
	}
	if size > s.cfg.ByteLimit {
		s.mu.Lock()
		s.oversized++
		s.mu.Unlock()
		return cache.ErrOversizedFrame
	}

	// Copy into a freshly allocated buffer so a caller mutating its
	// original slice after Put cannot corrupt cache state.
	owned := make([]byte, len(frame.Data))
	copy(owned, frame.Data)
	frame = cache.Frame{Data: owned}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.items[key]; ok {
		// Unlink and un-account the old entry first so eviction, if
		// needed to make room for growth, can never pick this same
		// entry as its own least-recently-used victim.
		s.removeLocked(existing)
		s.bytesUsed -= existing.size

		s.evictUntilFitsLocked(size)

		existing.frame = frame
		existing.size = size
		existing.lastAccess = time.Now()
		s.bytesUsed += size
		s.addToFrontLocked(existing)
		return nil
	}

	if uint64(len(s.items)) >= uint64(s.cfg.MaxEntries) {
		s.evictLRULocked()
	}
	s.evictUntilFitsLocked(size)

	n := &node{key: key, frame: frame, size: size, lastAccess: time.Now()}
	s.items[key] = n
	s.addToFrontLocked(n)
	s.bytesUsed += size

	for uint64(len(s.items)) > uint64(s.cfg.MaxEntries) {
		s.evictLRULocked()
	}

	return nil
}

// EvictLRU removes the least-recently-used entry, used by external
// pressure control (the Memory Monitor). It reports the evicted key and
// size, or ok=false if the store is empty.
func (s *Store) EvictLRU() (key string, size uint64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evictLRULocked()
}

// Contains reports whether key is currently resident, without affecting
// recency order or hit/miss counters. Used by the Preloader to avoid
// queueing a fetch for a frame that is already in the Store.
func (s *Store) Contains(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[key]
	return ok
}

// Size returns the number of resident entries.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// BytesUsed returns current byte occupancy.
func (s *Store) BytesUsed() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytesUsed
}

// ByteLimit returns the configured byte ceiling.
func (s *Store) ByteLimit() uint64 {
	return s.cfg.ByteLimit
}

// MaxEntries returns the configured entry-count ceiling.
func (s *Store) MaxEntries() int {
	return s.cfg.MaxEntries
}

// HitRate returns hits / (hits + misses), 0 over zero accesses.
func (s *Store) HitRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Hits: s.hits, Misses: s.misses}.HitRate()
}

// Clear empties the cache and resets counters.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[string]*node, s.cfg.MaxEntries)
	s.head.next = s.tail
	s.tail.prev = s.head
	s.bytesUsed = 0
	s.hits = 0
	s.misses = 0
	s.evictions = 0
	s.oversized = 0
}

// Stats returns a point-in-time snapshot of store counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Name:                s.cfg.Name,
		Entries:             len(s.items),
		BytesUsed:           s.bytesUsed,
		ByteLimit:           s.cfg.ByteLimit,
		Hits:                s.hits,
		Misses:              s.misses,
		Evictions:           s.evictions,
		OversizedRejections: s.oversized,
	}
}

// RegisterPressureCallback registers fn to run for the given pressure
// level. The Store itself never invokes these; the Memory Monitor fires
// them when its sampling loop observes a transition into level (spec.md
// 4.1/4.2). fn must return quickly — it runs on the Monitor's timer
// goroutine.
func (s *Store) RegisterPressureCallback(level cache.PressureLevel, fn func(cache.PressureLevel)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pressureCallbacks[level] = append(s.pressureCallbacks[level], fn)
}

// FirePressureCallbacks invokes every callback registered for level. Only
// the Memory Monitor calls this.
func (s *Store) FirePressureCallbacks(level cache.PressureLevel) {
	s.mu.Lock()
	callbacks := append([]func(cache.PressureLevel){}, s.pressureCallbacks[level]...)
	s.mu.Unlock()

	for _, fn := range callbacks {
		fn(level)
	}
}

// --- unexported helpers; all assume s.mu is held ---

func (s *Store) evictLRULocked() (key string, size uint64, ok bool) {
	lru := s.tail.prev
	if lru == s.head {
		return "", 0, false
	}
	s.removeLocked(lru)
	delete(s.items, lru.key)
	s.bytesUsed -= lru.size
	s.evictions++
	return lru.key, lru.size, true
}

func (s *Store) evictUntilFitsLocked(needed uint64) {
	for s.bytesUsed+needed > s.cfg.ByteLimit && len(s.items) > 0 {
		if _, _, ok := s.evictLRULocked(); !ok {
			return
		}
	}
}

func (s *Store) moveToFront(n *node) {
	s.removeLocked(n)
	s.addToFrontLocked(n)
}

func (s *Store) addToFrontLocked(n *node) {
	n.prev = s.head
	n.next = s.head.next
	s.head.next.prev = n
	s.head.next = n
}

func (s *Store) removeLocked(n *node) {
	n.prev.next = n.next
	n.next.prev = n.prev
}
