// Package agent implements the Agent facade: the public entry point that
// wires the Store, Memory Monitor, Pattern Analyzer, Preloader, and
// Optimizer together and exposes the single Get operation an annotation
// UI actually calls, plus the operational Stats/Optimize/Clear surface.
//
// Grounded on the Python original's
// src/cache_layer/cache_agent.py CacheAgent — component wiring in
// __init__, get_frame's hit/miss branches, _trigger_preload, and the
// context-manager lifecycle (mapped here to Open/Close, the idiomatic Go
// equivalent of __enter__/__exit__, per SPEC_FULL.md 3.6). The get-miss
// singleflight dedup is grounded on mrz1836-go-broadcast's
// internal/cache/ttl_cache.go GetOrLoad; the bounded shutdown join is
// grounded on the same repo's use of golang.org/x/sync/errgroup.
package agent

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"framecache/internal/cache"
	"framecache/internal/events"
	"framecache/internal/logging"
	"framecache/internal/metrics"
	"framecache/internal/monitor"
	"framecache/internal/optimizer"
	"framecache/internal/pattern"
	"framecache/internal/preload"
	"framecache/internal/store"
	"framecache/pkg/config"
)

// Agent is the public facade over the frame cache core.
type Agent struct {
	cfg *config.Config

	store     *store.Store
	monitor   *monitor.Monitor
	analyzer  *pattern.Analyzer
	preloader *preload.Preloader
	optimizer *optimizer.Optimizer
	bus       *events.Bus
	metrics   *metrics.Recorder

	loader    cache.FrameLoader
	publisher cache.EventPublisher

	sf singleflight.Group

	lastFrameID string
	closed      bool
}

// Open constructs and starts every component, wiring them per spec.md
// section 5's dependency order (Store first, then Monitor/Analyzer that
// observe it, then Preloader/Optimizer that act on it). publisher may be
// nil, in which case events are only delivered to the internal bus.
func Open(ctx context.Context, cfg *config.Config, loader cache.FrameLoader, publisher cache.EventPublisher) (*Agent, error) {
	if loader == nil {
		return nil, fmt.Errorf("agent: a frame loader is required")
	}
	byteLimit, err := config.ParseByteSize(cfg.Store.ByteLimit)
	if err != nil {
		return nil, fmt.Errorf("agent: %w", err)
	}

	st, err := store.New(store.Config{
		Name:       cfg.Node.ID,
		MaxEntries: cfg.Store.MaxEntries,
		ByteLimit:  byteLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("agent: %w", err)
	}

	bus := events.New()
	rec := metrics.New(1000)
	analyzer := pattern.New(pattern.Config{
		WindowCapacity:    cfg.Pattern.WindowCapacity,
		MinSamples:        cfg.Pattern.MinSamples,
		VerdictCacheTTL:   cfg.VerdictCacheTTL(),
		PreloadRadiusBase: cfg.Preload.PreloadRadiusBase,
	})

	mon := monitor.New(monitor.Config{
		Thresholds:      monitor.DefaultThresholds(),
		SampleInterval:  cfg.SampleInterval(),
		HistoryCapacity: cfg.Monitor.HistoryCapacity,
		ForceEvictHigh:  cfg.Monitor.ForceEvictHigh,
		ForceEvictLow:   cfg.Monitor.ForceEvictLow,
	}, st)

	pl := preload.New(preload.Config{Workers: cfg.Preload.Workers}, loader, st)

	opt := optimizer.New(optimizer.Config{
		RoutineInterval:            cfg.RoutineInterval(),
		WarnLatency:                cfg.WarnLatency(),
		EmergencyOccupancyFraction: cfg.Optimizer.EmergencyOccupancyFraction,
		HistoryCapacity:            cfg.Optimizer.HistoryCapacity,
	}, st, mon, analyzer, rec, analyzer.Analyze)

	a := &Agent{
		cfg:       cfg,
		store:     st,
		monitor:   mon,
		analyzer:  analyzer,
		preloader: pl,
		optimizer: opt,
		bus:       bus,
		metrics:   rec,
		loader:    loader,
		publisher: publisher,
	}

	for _, level := range []cache.PressureLevel{cache.PressureWarning, cache.PressureCritical, cache.PressureEmergency} {
		lvl := level
		st.RegisterPressureCallback(lvl, func(cache.PressureLevel) {
			a.publish(cache.Event{
				Kind:       cache.EventMemoryWarning,
				Timestamp:  time.Now(),
				UsedBytes:  st.BytesUsed(),
				LimitBytes: st.ByteLimit(),
				Level:      lvl,
			})
		})
	}

	mon.Start(ctx)
	pl.Start(ctx)
	opt.Start(ctx)

	logging.Info(ctx, logging.ComponentAgent, logging.ActionStart, "frame cache agent started",
		map[string]interface{}{"max_entries": cfg.Store.MaxEntries, "byte_limit": byteLimit})

	return a, nil
}

// Get returns the frame for frameID, serving from cache on a hit or
// loading it through the injected FrameLoader on a miss. It enforces
// cfg.Agent.GetDeadlineMS as a soft deadline on the miss path via ctx.
// After Close it returns cache.ErrShutdownInProgress.
func (a *Agent) Get(ctx context.Context, frameID string) (cache.Frame, error) {
	if a.closed {
		return cache.Frame{}, cache.ErrShutdownInProgress
	}
	start := time.Now()

	deadline := a.cfg.GetDeadline()
	getCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	frame, hit, err := a.getOnce(getCtx, frameID)
	elapsed := time.Since(start)

	a.analyzer.Record(frameID)
	a.optimizer.ObserveGetLatency(ctx, elapsed)

	if err != nil {
		return cache.Frame{}, err
	}

	kind := cache.EventCacheMiss
	if hit {
		kind = cache.EventCacheHit
		if a.preloader.WasPreloaded(frameID) {
			a.preloader.RecordHitContribution()
		}
	}
	a.publish(cache.Event{Kind: kind, Timestamp: time.Now(), FrameID: frameID, ElapsedMS: float64(elapsed.Microseconds()) / 1000})

	previousFrameID := a.lastFrameID
	if previousFrameID != "" && previousFrameID != frameID {
		a.publish(cache.Event{Kind: cache.EventFrameChanged, Timestamp: time.Now(), FrameID: frameID, PreviousFrameID: previousFrameID})
	}
	a.lastFrameID = frameID

	a.triggerPreload(frameID, inferDirection(previousFrameID, frameID))

	return frame, nil
}

// getOnce serves a single get: cache hit, or a singleflight-deduped load
// on miss so concurrent requests for the same frame only load it once.
func (a *Agent) getOnce(ctx context.Context, frameID string) (cache.Frame, bool, error) {
	if frame, ok := a.store.Get(frameID); ok {
		return frame, true, nil
	}

	v, err, _ := a.sf.Do(frameID, func() (interface{}, error) {
		frame, loadErr := a.loader.Load(ctx, frameID)
		if loadErr != nil {
			return cache.Frame{}, loadErr
		}
		if putErr := a.store.Put(frameID, frame); putErr != nil {
			return cache.Frame{}, putErr
		}
		return frame, nil
	})
	if err != nil {
		return cache.Frame{}, false, err
	}
	return v.(cache.Frame), false, nil
}

// triggerPreload computes speculative preload targets from the current
// pattern verdict and submits them, cancelling any previously queued
// targets that are no longer relevant. direction is the most recently
// observed movement between gets, used to orient sequential read-ahead.
func (a *Agent) triggerPreload(frameID string, direction cache.Direction) {
	verdict := a.analyzer.Analyze()
	if verdict.Kind == cache.PatternInsufficient || verdict.Advisory() {
		return
	}

	var offsets []int
	switch verdict.Kind {
	case cache.PatternSequential:
		offsets = directionalOffsets(direction, verdict.PreloadRadius)
	case cache.PatternJump:
		if verdict.StrideAligned != 0 {
			offsets = append(offsets, verdict.StrideAligned, 2*verdict.StrideAligned)
		}
	case cache.PatternHotspot:
		// Hotspot targets are explicit keys, not offsets; submit directly.
		for _, k := range verdict.HotspotKeys {
			a.preloader.Submit(k, cache.PriorityHigh, time.Now())
		}
		return
	default:
		return
	}

	targets := nextFrameIDs(frameID, offsets)
	keep := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		keep[t] = struct{}{}
		a.preloader.Submit(t, cache.PriorityNormal, time.Now().Add(100*time.Millisecond))
	}
	a.preloader.CancelObsolete(keep)
}

// Preload is the public preload hint operation from spec.md 4.6: it asks
// the Preloader to speculatively fetch up to radius frames around key in
// direction, independent of whatever the Pattern Analyzer's own verdict
// currently recommends. Callers use this when they have out-of-band
// knowledge of where playback is headed (e.g. a scrub-bar drag) that the
// access-history-based Analyzer hasn't observed yet.
func (a *Agent) Preload(key string, direction cache.Direction) {
	radius := a.analyzer.PreloadRadiusBase()
	if radius <= 0 {
		radius = 1
	}

	offsets := directionalOffsets(direction, radius)
	targets := nextFrameIDs(key, offsets)
	for _, t := range targets {
		a.preloader.Submit(t, cache.PriorityHigh, time.Now())
	}
}

func (a *Agent) publish(evt cache.Event) {
	a.bus.Publish(evt)
	if a.publisher != nil {
		a.publisher.Publish(evt)
	}
}

// Subscribe exposes the internal event bus to external subscribers (e.g.
// the annotation UI), without requiring they implement EventPublisher.
func (a *Agent) Subscribe(bufferSize int) (handle int, ch <-chan cache.Event) {
	return a.bus.Subscribe(bufferSize)
}

// Unsubscribe removes a previously registered subscriber.
func (a *Agent) Unsubscribe(handle int) {
	a.bus.Unsubscribe(handle)
}

// Stats aggregates a point-in-time report across every component,
// mirroring get_cache_statistics in the Python original.
type Stats struct {
	Store           store.Stats
	PressureLevel   cache.PressureLevel
	Trend           monitor.Trend
	Verdict         cache.Verdict
	Preload         preload.Stats
	Recommendations []string
	Latency         metrics.Snapshot
}

// Stats returns an aggregated snapshot across every component.
func (a *Agent) Stats() Stats {
	return Stats{
		Store:           a.store.Stats(),
		PressureLevel:   a.monitor.CurrentLevel(),
		Trend:           a.monitor.PredictTrend(time.Minute),
		Verdict:         a.analyzer.Analyze(),
		Preload:         a.preloader.Stats(),
		Recommendations: a.optimizer.Recommendations(),
		Latency:         a.metrics.Calc(),
	}
}

// Optimize runs an immediate routine optimization pass outside the
// periodic schedule.
func (a *Agent) Optimize() optimizer.Action {
	return a.optimizer.RunRoutine()
}

// Clear empties the store. Other components retain their history.
func (a *Agent) Clear() {
	a.store.Clear()
}

// Close stops every background component, bounding the shutdown wait with
// an errgroup the way mrz1836-go-broadcast bounds its worker joins: it waits
// at most two seconds for the components to exit, then returns an error and
// abandons any that are still running.
func (a *Agent) Close(ctx context.Context) error {
	if a.closed {
		return nil
	}
	a.closed = true

	const joinCap = 2 * time.Second

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error { a.monitor.Stop(); return nil })
	g.Go(func() error { a.preloader.Stop(); return nil })
	g.Go(func() error { a.optimizer.Stop(); return nil })

	joined := make(chan error, 1)
	go func() { joined <- g.Wait() }()

	var err error
	select {
	case err = <-joined:
	case <-time.After(joinCap):
		err = fmt.Errorf("agent: shutdown join exceeded %s", joinCap)
	}
	a.bus.Close()

	logging.Info(ctx, logging.ComponentAgent, logging.ActionStop, "frame cache agent stopped", nil)
	return err
}

// Run opens an Agent, invokes fn, and guarantees Close runs afterward —
// including on panic — the Go equivalent of the Python original's
// `with create_cache_agent(...) as agent:` context manager.
func Run(ctx context.Context, cfg *config.Config, loader cache.FrameLoader, publisher cache.EventPublisher, fn func(*Agent) error) error {
	a, err := Open(ctx, cfg, loader, publisher)
	if err != nil {
		return err
	}
	defer a.Close(ctx)
	return fn(a)
}
