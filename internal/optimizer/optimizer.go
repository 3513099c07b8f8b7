// Package optimizer implements the Optimizer: a periodic and
// reactive tuning loop that watches recent get-latency metrics and
// pattern verdicts, recommends parameter adjustments, and escalates to
// aggressive memory cleanup when latency or occupancy crosses emergency
// thresholds.
//
// Grounded on the Python original's
// frame_cache/cache_optimizer.py CacheOptimizer — periodic routine
// optimization every ~30s, reactive emergency_optimization triggered
// immediately when a single get exceeds the warn-latency target, and a
// bounded history of the last 100 optimization results.
package optimizer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"framecache/internal/cache"
	"framecache/internal/logging"
	"framecache/internal/metrics"
)

// storeController is the subset of Store the Optimizer can act on.
type storeController interface {
	BytesUsed() uint64
	ByteLimit() uint64
	Size() int
	EvictLRU() (key string, size uint64, ok bool)
	HitRate() float64
}

// monitorController lets the Optimizer ask the Memory Monitor to force
// eviction down to a target occupancy fraction, for the routine
// escalation pass described in spec.md 4.5.
type monitorController interface {
	RequestForcedEviction(targetFraction float64)
}

// radiusController lets the Optimizer read and adjust the Pattern
// Analyzer's base preload radius, for the routine escalation pass
// described in spec.md 4.5.
type radiusController interface {
	PreloadRadiusBase() int
	SetPreloadRadiusBase(base int)
}

// Action is one tuning decision taken or recommended by the Optimizer.
type Action struct {
	At          time.Time
	Reason      string
	Description string
	Reactive    bool
}

// Config configures the Optimizer.
type Config struct {
	RoutineInterval  time.Duration
	WarnLatency      time.Duration // spec.md's warn_latency_ms
	EmergencyOccupancyFraction float64
	HistoryCapacity  int
}

// DefaultConfig mirrors the Python original's 30s / 45ms defaults.
func DefaultConfig() Config {
	return Config{
		RoutineInterval:            30 * time.Second,
		WarnLatency:                45 * time.Millisecond,
		EmergencyOccupancyFraction: 0.80,
		HistoryCapacity:            100,
	}
}

// highHitRateThreshold is the hit rate above which the working set is
// considered to already fit comfortably in cache, making it worth trading
// some depth for headroom when occupancy is also high (spec.md 4.5
// routine escalation action 2).
const highHitRateThreshold = 0.80

// routineForcedEvictionTarget is the occupancy fraction the routine
// escalation pass asks the Monitor to evict down to.
const routineForcedEvictionTarget = 0.75

// emergencyByteTarget is the occupancy fraction the reactive pass evicts
// down to when latency breaches WarnLatency under high occupancy.
const emergencyByteTarget = 0.60

// emergencyEntryCountFraction is the optional additional entry-count
// reduction the reactive pass applies on top of the byte-based eviction.
const emergencyEntryCountFraction = 0.70

// Optimizer runs routine and reactive tuning passes.
type Optimizer struct {
	cfg     Config
	store   storeController
	monitor monitorController
	radius  radiusController
	metrics *metrics.Recorder
	verdict func() cache.Verdict // current Pattern Analyzer verdict, injected to avoid an import cycle

	mu      sync.Mutex
	history []Action

	stop chan struct{}
	wg   sync.WaitGroup
}

// New creates an Optimizer. verdictFn supplies the latest pattern verdict
// on demand; it is typically analyzer.Analyze. mon and radius back the
// routine escalation actions from spec.md 4.5; they are typically the
// Agent's *monitor.Monitor and *pattern.Analyzer.
func New(cfg Config, store storeController, mon monitorController, radius radiusController, rec *metrics.Recorder, verdictFn func() cache.Verdict) *Optimizer {
	return &Optimizer{
		cfg:     cfg,
		store:   store,
		monitor: mon,
		radius:  radius,
		metrics: rec,
		verdict: verdictFn,
		stop:    make(chan struct{}),
	}
}

// Start launches the routine optimization loop.
func (o *Optimizer) Start(ctx context.Context) {
	o.wg.Add(1)
	go o.loop(ctx)
}

// Stop ends the routine loop and waits for it to exit.
func (o *Optimizer) Stop() {
	close(o.stop)
	o.wg.Wait()
}

func (o *Optimizer) loop(ctx context.Context) {
	defer o.wg.Done()

	ticker := time.NewTicker(o.cfg.RoutineInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stop:
			return
		case <-ticker.C:
			o.RunRoutine()
		}
	}
}

// RunRoutine performs one routine optimization pass: it inspects the
// current metrics snapshot and pattern verdict, records a recommendation,
// and applies the two routine escalation actions from spec.md 4.5 — nudge
// the preload radius toward the Analyzer's own recommendation, and request
// forced eviction via the Monitor when the hit rate is already high but
// memory is still over 90% occupied. A reactive pass (emergencyOptimization)
// is the only other path that forces eviction.
func (o *Optimizer) RunRoutine() Action {
	snap := o.metrics.Calc()
	v := o.verdict()

	desc := routineDescription(snap, v)

	if o.radius != nil && v.Kind != cache.PatternInsufficient && v.PreloadRadius > 0 {
		if current := o.radius.PreloadRadiusBase(); current != v.PreloadRadius {
			o.radius.SetPreloadRadiusBase(v.PreloadRadius)
			desc += fmt.Sprintf("; preload radius base adjusted %d -> %d", current, v.PreloadRadius)
		}
	}

	if o.monitor != nil {
		var occupancy float64
		if limit := o.store.ByteLimit(); limit > 0 {
			occupancy = float64(o.store.BytesUsed()) / float64(limit)
		}
		if o.store.HitRate() >= highHitRateThreshold && occupancy > 0.90 {
			o.monitor.RequestForcedEviction(routineForcedEvictionTarget)
			desc += "; requested forced eviction (high hit rate, memory over 90%)"
		}
	}

	action := Action{
		At:          time.Now(),
		Reason:      "routine",
		Description: desc,
	}
	o.recordAndReset(action)
	return action
}

// ObserveGetLatency is called by the Agent after every get. If d exceeds
// WarnLatency it immediately triggers a reactive emergency pass, mirroring
// the Python original's record_frame_switch_time threshold check.
func (o *Optimizer) ObserveGetLatency(ctx context.Context, d time.Duration) {
	o.metrics.Observe(d)
	if d > o.cfg.WarnLatency {
		o.emergencyOptimization(ctx, d)
	}
}

func (o *Optimizer) emergencyOptimization(ctx context.Context, observed time.Duration) {
	used := o.store.BytesUsed()
	limit := o.store.ByteLimit()
	var fraction float64
	if limit > 0 {
		fraction = float64(used) / float64(limit)
	}

	evicted := 0
	if fraction > o.cfg.EmergencyOccupancyFraction {
		target := uint64(emergencyByteTarget * float64(limit))
		for o.store.BytesUsed() > target {
			if _, _, ok := o.store.EvictLRU(); !ok {
				break
			}
			evicted++
		}

		// Optional additional cache-size reduction: shrink the entry
		// count itself rather than relying on byte pressure alone, in
		// case a handful of oversized frames dominate occupancy.
		targetCount := int(emergencyEntryCountFraction * float64(o.store.Size()))
		for o.store.Size() > targetCount {
			if _, _, ok := o.store.EvictLRU(); !ok {
				break
			}
			evicted++
		}
	}

	action := Action{
		At:          time.Now(),
		Reason:      "reactive",
		Description: "latency exceeded warn threshold",
		Reactive:    true,
	}
	o.recordAndReset(action)

	logging.Warn(ctx, logging.ComponentOptimizer, logging.ActionOptimize, "reactive optimization triggered",
		map[string]interface{}{"observed_ms": observed.Milliseconds(), "evicted": evicted, "occupancy_fraction": fraction})
}

func (o *Optimizer) recordAndReset(action Action) {
	o.mu.Lock()
	o.history = append(o.history, action)
	if len(o.history) > o.cfg.HistoryCapacity {
		o.history = o.history[len(o.history)-o.cfg.HistoryCapacity:]
	}
	o.mu.Unlock()

	o.metrics.Reset()
}

// Recommendations returns human-readable tuning recommendations derived
// from history, consumed only by reporting (agent.Stats()), never by
// control flow — mirroring get_optimization_recommendations in the Python
// original.
func (o *Optimizer) Recommendations() []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	recs := make([]string, 0, len(o.history))
	for _, a := range o.history {
		recs = append(recs, a.Description)
	}
	return recs
}

// History returns a copy of recorded optimization actions, most recent
// last.
func (o *Optimizer) History() []Action {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Action{}, o.history...)
}

func routineDescription(snap metrics.Snapshot, v cache.Verdict) string {
	switch v.Kind {
	case cache.PatternSequential:
		return "sequential access detected; widen preload radius"
	case cache.PatternJump:
		return "jump access detected; prioritize stride-aligned preload"
	case cache.PatternHotspot:
		return "hotspot access detected; pin hotspot keys against eviction pressure"
	case cache.PatternRandom:
		return "random access detected; narrow preload radius to limit waste"
	default:
		return "insufficient access history for pattern-specific tuning"
	}
}
