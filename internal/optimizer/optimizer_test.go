package optimizer

import (
	"context"
	"testing"
	"time"

	"framecache/internal/cache"
	"framecache/internal/metrics"
)

type fakeStore struct {
	used, limit uint64
	entries     int
	hitRate     float64
	evictions   int
}

func (f *fakeStore) BytesUsed() uint64 { return f.used }
func (f *fakeStore) ByteLimit() uint64 { return f.limit }
func (f *fakeStore) Size() int         { return f.entries }
func (f *fakeStore) HitRate() float64  { return f.hitRate }
func (f *fakeStore) EvictLRU() (string, uint64, bool) {
	if f.used == 0 {
		return "", 0, false
	}
	f.evictions++
	f.used -= 10
	if f.entries > 0 {
		f.entries--
	}
	return "k", 10, true
}

type fakeMonitor struct {
	requested []float64
}

func (m *fakeMonitor) RequestForcedEviction(targetFraction float64) {
	m.requested = append(m.requested, targetFraction)
}

type fakeRadius struct {
	base int
}

func (r *fakeRadius) PreloadRadiusBase() int    { return r.base }
func (r *fakeRadius) SetPreloadRadiusBase(b int) { r.base = b }

func TestOptimizer_RunRoutineRecordsHistory(t *testing.T) {
	st := &fakeStore{used: 10, limit: 100}
	rec := metrics.New(100)
	o := New(DefaultConfig(), st, nil, nil, rec, func() cache.Verdict {
		return cache.Verdict{Kind: cache.PatternSequential, Confidence: 0.9}
	})

	o.RunRoutine()

	hist := o.History()
	if len(hist) != 1 || hist[0].Reactive {
		t.Fatalf("expected one routine action, got %+v", hist)
	}
}

func TestOptimizer_RunRoutineAdjustsPreloadRadius(t *testing.T) {
	st := &fakeStore{used: 10, limit: 100}
	rec := metrics.New(100)
	radius := &fakeRadius{base: 25}
	o := New(DefaultConfig(), st, nil, radius, rec, func() cache.Verdict {
		return cache.Verdict{Kind: cache.PatternSequential, Confidence: 0.9, PreloadRadius: 38}
	})

	o.RunRoutine()

	if radius.base != 38 {
		t.Fatalf("expected radius base adjusted to 38, got %d", radius.base)
	}
}

func TestOptimizer_RunRoutineRequestsForcedEvictionWhenHitRateHighAndMemoryOver90(t *testing.T) {
	st := &fakeStore{used: 95, limit: 100, hitRate: 0.9}
	rec := metrics.New(100)
	mon := &fakeMonitor{}
	o := New(DefaultConfig(), st, mon, nil, rec, func() cache.Verdict { return cache.Verdict{} })

	o.RunRoutine()

	if len(mon.requested) != 1 {
		t.Fatalf("expected one forced-eviction request, got %d", len(mon.requested))
	}
}

func TestOptimizer_RunRoutineSkipsForcedEvictionWhenOccupancyLow(t *testing.T) {
	st := &fakeStore{used: 50, limit: 100, hitRate: 0.95}
	rec := metrics.New(100)
	mon := &fakeMonitor{}
	o := New(DefaultConfig(), st, mon, nil, rec, func() cache.Verdict { return cache.Verdict{} })

	o.RunRoutine()

	if len(mon.requested) != 0 {
		t.Fatalf("expected no forced-eviction request under 90%% occupancy, got %d", len(mon.requested))
	}
}

func TestOptimizer_ObserveGetLatencyTriggersReactiveOnBreach(t *testing.T) {
	st := &fakeStore{used: 90, limit: 100, entries: 9}
	rec := metrics.New(100)
	o := New(Config{
		RoutineInterval:            time.Hour,
		WarnLatency:                10 * time.Millisecond,
		EmergencyOccupancyFraction: 0.80,
		HistoryCapacity:            10,
	}, st, nil, nil, rec, func() cache.Verdict { return cache.Verdict{} })

	o.ObserveGetLatency(context.Background(), 5*time.Millisecond) // under threshold
	if len(o.History()) != 0 {
		t.Fatalf("expected no reactive action under threshold")
	}

	o.ObserveGetLatency(context.Background(), 50*time.Millisecond) // breach
	hist := o.History()
	if len(hist) != 1 || !hist[0].Reactive {
		t.Fatalf("expected one reactive action, got %+v", hist)
	}
	if st.evictions == 0 {
		t.Fatalf("expected emergency eviction given high occupancy")
	}
	if st.used > uint64(emergencyByteTarget*float64(st.limit)) {
		t.Fatalf("expected eviction down to %.0f%% of limit, used=%d", emergencyByteTarget*100, st.used)
	}
}

func TestOptimizer_HistoryBounded(t *testing.T) {
	st := &fakeStore{used: 10, limit: 100}
	rec := metrics.New(100)
	o := New(Config{RoutineInterval: time.Hour, WarnLatency: time.Second, HistoryCapacity: 3}, st, nil, nil, rec, func() cache.Verdict {
		return cache.Verdict{}
	})

	for i := 0; i < 10; i++ {
		o.RunRoutine()
	}

	if len(o.History()) != 3 {
		t.Fatalf("expected history capped at 3, got %d", len(o.History()))
	}
}
