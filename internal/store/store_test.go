package store

import (
	"testing"

	"framecache/internal/cache"
)

func frame(n int) cache.Frame {
	return cache.Frame{Data: make([]byte, n)}
}

func TestStore_PutGetRoundTrip(t *testing.T) {
	s, err := New(Config{Name: "t", MaxEntries: 10, ByteLimit: 1000})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := s.Put("frame_000001", frame(100)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok := s.Get("frame_000001")
	if !ok {
		t.Fatalf("expected hit")
	}
	if got.Size() != 100 {
		t.Fatalf("expected size 100, got %d", got.Size())
	}

	if _, ok := s.Get("frame_999999"); ok {
		t.Fatalf("expected miss for unknown key")
	}
}

func TestStore_LRUEvictionOrder(t *testing.T) {
	s, _ := New(Config{Name: "t", MaxEntries: 3, ByteLimit: 1_000_000})

	_ = s.Put("a", frame(10))
	_ = s.Put("b", frame(10))
	_ = s.Put("c", frame(10))

	// touch a so b becomes least-recently-used
	if _, ok := s.Get("a"); !ok {
		t.Fatalf("expected hit on a")
	}

	_ = s.Put("d", frame(10)) // should evict b, not a or c

	if _, ok := s.Get("b"); ok {
		t.Fatalf("expected b evicted")
	}
	if _, ok := s.Get("a"); !ok {
		t.Fatalf("expected a to survive")
	}
	if _, ok := s.Get("c"); !ok {
		t.Fatalf("expected c to survive")
	}
	if _, ok := s.Get("d"); !ok {
		t.Fatalf("expected d present")
	}
}

func TestStore_ByteCeilingEviction(t *testing.T) {
	s, _ := New(Config{Name: "t", MaxEntries: 100, ByteLimit: 250})

	_ = s.Put("a", frame(100))
	_ = s.Put("b", frame(100))
	if s.Size() != 2 {
		t.Fatalf("expected 2 entries, got %d", s.Size())
	}

	// c needs 100 bytes but only 50 remain; a is LRU and must go.
	_ = s.Put("c", frame(100))

	if _, ok := s.Get("a"); ok {
		t.Fatalf("expected a evicted to respect byte ceiling")
	}
	if s.BytesUsed() > 250 {
		t.Fatalf("byte ceiling violated: %d", s.BytesUsed())
	}
}

func TestStore_OversizedFrameRejected(t *testing.T) {
	s, _ := New(Config{Name: "t", MaxEntries: 10, ByteLimit: 100})

	err := s.Put("huge", frame(200))
	if err != cache.ErrOversizedFrame {
		t.Fatalf("expected ErrOversizedFrame, got %v", err)
	}
	if s.Size() != 0 {
		t.Fatalf("oversized put must not partially apply")
	}
}

func TestStore_EmptyPayloadRejected(t *testing.T) {
	s, _ := New(Config{Name: "t", MaxEntries: 10, ByteLimit: 100})

	if err := s.Put("empty", cache.Frame{}); err != cache.ErrInvalidPayload {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestStore_ReplaceInPlaceNoEvictionWhenShrinking(t *testing.T) {
	s, _ := New(Config{Name: "t", MaxEntries: 10, ByteLimit: 150})

	_ = s.Put("a", frame(100))
	_ = s.Put("b", frame(40)) // 140 of 150 bytes used

	// replacing a with something smaller must not evict b
	_ = s.Put("a", frame(10))

	if _, ok := s.Get("b"); !ok {
		t.Fatalf("shrinking replace must not evict other entries")
	}
	if s.BytesUsed() != 50 {
		t.Fatalf("expected 50 bytes used, got %d", s.BytesUsed())
	}
}

func TestStore_HitRate(t *testing.T) {
	s, _ := New(Config{Name: "t", MaxEntries: 10, ByteLimit: 1000})
	_ = s.Put("a", frame(10))

	s.Get("a")
	s.Get("a")
	s.Get("missing")

	if rate := s.HitRate(); rate < 0.66 || rate > 0.67 {
		t.Fatalf("expected hit rate ~0.667, got %f", rate)
	}
}

func TestStore_Clear(t *testing.T) {
	s, _ := New(Config{Name: "t", MaxEntries: 10, ByteLimit: 1000})
	_ = s.Put("a", frame(10))
	s.Get("a")

	s.Clear()

	if s.Size() != 0 || s.BytesUsed() != 0 {
		t.Fatalf("expected empty store after Clear")
	}
	stats := s.Stats()
	if stats.Hits != 0 || stats.Misses != 0 {
		t.Fatalf("expected counters reset after Clear")
	}
}

func TestStore_PressureCallbacksFiredOnlyOnDemand(t *testing.T) {
	s, _ := New(Config{Name: "t", MaxEntries: 10, ByteLimit: 1000})

	fired := false
	s.RegisterPressureCallback(cache.PressureWarning, func(cache.PressureLevel) {
		fired = true
	})

	_ = s.Put("a", frame(10))
	if fired {
		t.Fatalf("Store must never fire pressure callbacks on its own")
	}

	s.FirePressureCallbacks(cache.PressureWarning)
	if !fired {
		t.Fatalf("expected callback to fire when invoked explicitly")
	}
}
