// Package monitor implements the frame cache's Memory Monitor: a periodic
// sampler that classifies Store byte occupancy against a pressure ladder,
// fires the Store's registered pressure callbacks on level transitions,
// and predicts short-horizon memory trend via linear regression.
//
// The pressure ladder and callback-dispatch shape follow the teacher's
// internal/storage/memory_pool.go (threshold fields, checkMemoryPressure
// firing handlers asynchronously on transition). The trend-prediction
// method is grounded in the Python original's
// frame_cache/memory_monitor.py predict_memory_trend, adapted from a
// system-wide psutil sample to this core's own byte occupancy signal.
package monitor

import (
	"context"
	"sync"
	"time"

	"framecache/internal/cache"
	"framecache/internal/logging"
)

// occupancySource is the subset of Store this package depends on. Kept as
// an interface so the Monitor never imports a concrete Store type.
type occupancySource interface {
	BytesUsed() uint64
	ByteLimit() uint64
	EvictLRU() (key string, size uint64, ok bool)
	FirePressureCallbacks(level cache.PressureLevel)
}

// Thresholds are fractions of ByteLimit that delimit each pressure level.
// Ordered ascending; a sample at or above a threshold is at least that
// level.
type Thresholds struct {
	Caution   float64
	Warning   float64
	Critical  float64
	Emergency float64
}

// DefaultThresholds mirrors the ladder in spec.md 4.2.
func DefaultThresholds() Thresholds {
	return Thresholds{Caution: 0.75, Warning: 0.90, Critical: 0.95, Emergency: 1.00}
}

// Level classifies a byte occupancy fraction. Pure function: same inputs,
// same output, no side effects (spec.md invariant I7).
func (t Thresholds) Level(usedFraction float64) cache.PressureLevel {
	switch {
	case usedFraction >= t.Emergency:
		return cache.PressureEmergency
	case usedFraction >= t.Critical:
		return cache.PressureCritical
	case usedFraction >= t.Warning:
		return cache.PressureWarning
	case usedFraction >= t.Caution:
		return cache.PressureCaution
	default:
		return cache.PressureNormal
	}
}

// sample is one historical occupancy observation, used for trend fitting.
type sample struct {
	at   time.Time
	used uint64
}

// Trend is a linear projection of future byte occupancy.
type Trend struct {
	SlopeBytesPerSec float64
	ProjectedUsed    uint64
	Confidence       float64 // 0..1, proportional to history depth
}

// Config configures a Monitor.
type Config struct {
	Thresholds      Thresholds
	SampleInterval  time.Duration
	HistoryCapacity int // bounded ring size, e.g. an hour of minute samples
	ForceEvictHigh  float64 // occupancy fraction that triggers forced eviction
	ForceEvictLow   float64 // target fraction to evict down to
}

// DefaultConfig mirrors the teacher's conservative defaults, adapted to
// this core's byte-ceiling semantics.
func DefaultConfig() Config {
	return Config{
		Thresholds:      DefaultThresholds(),
		SampleInterval:  5 * time.Second,
		HistoryCapacity: 720, // 1 hour at 5s intervals
		ForceEvictHigh:  0.95,
		ForceEvictLow:   0.75,
	}
}

// Monitor periodically samples a Store's occupancy, fires pressure
// callbacks on level transitions, and forces eviction down to
// ForceEvictLow whenever a sample reaches ForceEvictHigh.
type Monitor struct {
	cfg   Config
	store occupancySource

	mu      sync.Mutex
	history []sample
	level   cache.PressureLevel

	stop chan struct{}
	wg   sync.WaitGroup
}

// New creates a Monitor bound to store. Call Start to begin sampling.
func New(cfg Config, store occupancySource) *Monitor {
	return &Monitor{
		cfg:     cfg,
		store:   store,
		history: make([]sample, 0, cfg.HistoryCapacity),
		level:   cache.PressureNormal,
		stop:    make(chan struct{}),
	}
}

// Start begins the sampling loop in a background goroutine. It returns
// immediately; call Stop to end it.
func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(1)
	go m.loop(ctx)
}

// Stop ends the sampling loop and waits for it to exit.
func (m *Monitor) Stop() {
	close(m.stop)
	m.wg.Wait()
}

func (m *Monitor) loop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
			m.sampleOnce()
		}
	}
}

// sampleOnce takes one occupancy reading, records history, and fires
// pressure callbacks if the level changed.
func (m *Monitor) sampleOnce() {
	used := m.store.BytesUsed()
	limit := m.store.ByteLimit()
	var fraction float64
	if limit > 0 {
		fraction = float64(used) / float64(limit)
	}
	level := m.cfg.Thresholds.Level(fraction)

	m.mu.Lock()
	m.history = append(m.history, sample{at: time.Now(), used: used})
	if len(m.history) > m.cfg.HistoryCapacity {
		m.history = m.history[len(m.history)-m.cfg.HistoryCapacity:]
	}
	transitioned := level != m.level
	m.level = level
	m.mu.Unlock()

	if transitioned {
		logging.Warn(context.Background(), logging.ComponentMonitor, logging.ActionWarning,
			"pressure level changed", map[string]interface{}{"level": level.String(), "used_bytes": used, "limit_bytes": limit})
		m.store.FirePressureCallbacks(level)
	}

	if fraction >= m.cfg.ForceEvictHigh {
		m.forceEvictDownTo(m.cfg.ForceEvictLow, limit)
	}
}

// RequestForcedEviction evicts least-recently-used entries until occupancy
// falls at or below targetFraction of the configured byte limit. It is the
// same mechanism the sampling loop uses when occupancy crosses
// ForceEvictHigh, exposed here for the Optimizer's routine escalation pass
// (spec.md 4.5) to invoke directly when a high hit rate makes it worth
// trading some cache depth for headroom.
func (m *Monitor) RequestForcedEviction(targetFraction float64) {
	m.forceEvictDownTo(targetFraction, m.store.ByteLimit())
}

// forceEvictDownTo evicts least-recently-used entries until occupancy
// falls at or below targetFraction of limit, or the store empties.
func (m *Monitor) forceEvictDownTo(targetFraction float64, limit uint64) {
	target := uint64(targetFraction * float64(limit))
	for m.store.BytesUsed() > target {
		if _, _, ok := m.store.EvictLRU(); !ok {
			return
		}
	}
}

// CurrentLevel returns the most recently observed pressure level.
func (m *Monitor) CurrentLevel() cache.PressureLevel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

// PredictTrend fits a simple linear regression over recorded history and
// projects byte occupancy horizon into the future. Confidence grows with
// history depth, capped at 1.0 once 60 samples are available — the same
// shape as the Python original's predict_memory_trend.
func (m *Monitor) PredictTrend(horizon time.Duration) Trend {
	m.mu.Lock()
	hist := append([]sample{}, m.history...)
	m.mu.Unlock()

	const minSamples = 2
	const fullConfidenceSamples = 60

	if len(hist) < minSamples {
		return Trend{Confidence: 0}
	}

	// Linear regression of used bytes against elapsed seconds since the
	// first sample.
	t0 := hist[0].at
	var sumX, sumY, sumXY, sumXX float64
	n := float64(len(hist))
	for _, s := range hist {
		x := s.at.Sub(t0).Seconds()
		y := float64(s.used)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	var slope float64
	if denom != 0 {
		slope = (n*sumXY - sumX*sumY) / denom
	}
	intercept := (sumY - slope*sumX) / n

	lastX := hist[len(hist)-1].at.Sub(t0).Seconds()
	projectedX := lastX + horizon.Seconds()
	projected := intercept + slope*projectedX
	if projected < 0 {
		projected = 0
	}

	confidence := n / fullConfidenceSamples
	if confidence > 1.0 {
		confidence = 1.0
	}

	return Trend{
		SlopeBytesPerSec: slope,
		ProjectedUsed:    uint64(projected),
		Confidence:       confidence,
	}
}
