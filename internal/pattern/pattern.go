// Package pattern implements the Access Pattern Analyzer: it watches the
// stream of get keys and classifies recent history as sequential, jump,
// hotspot, or random, producing a cached Verdict that the Preloader uses
// to decide what to speculatively fetch next.
//
// Grounded on the Python original's
// frame_cache/preloader.py AccessPatternAnalyzer — the per-pattern
// scoring heuristics (run-length for sequential, modal interval for jump,
// frequency concentration for hotspot) are carried over verbatim in
// shape; the numeric-index extraction is generalized from the Python
// original's `split('_')[1]` convention (which assumes every key looks
// like "frame_000123") to a "first maximal digit run" extractor so it
// works against any opaque key format per spec.md's definition of a
// frame identifier.
package pattern

import (
	"math"
	"sync"
	"time"

	"framecache/internal/cache"
)

// access is one recorded get, used to build the analysis window.
type access struct {
	key string
	at  time.Time
	idx int
	has bool // whether a numeric index could be extracted from key
}

// Config configures the Analyzer.
type Config struct {
	WindowCapacity    int           // bounded access log length
	MinSamples        int           // minimum accesses before any classification
	VerdictCacheTTL   time.Duration // how long a computed Verdict is reused
	PreloadRadiusBase int           // base radius scaled per pattern kind (spec.md 4.3)
}

// DefaultConfig mirrors spec.md's documented defaults (section 6/8).
func DefaultConfig() Config {
	return Config{
		WindowCapacity:    200,
		MinSamples:        10,
		VerdictCacheTTL:   10 * time.Second,
		PreloadRadiusBase: 25,
	}
}

// Analyzer tracks recent access history and classifies it on demand.
type Analyzer struct {
	cfg Config

	mu      sync.Mutex
	window  []access
	cached  cache.Verdict
	hasCache bool
}

// New creates an Analyzer.
func New(cfg Config) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// Record appends a get to the access window.
func (a *Analyzer) Record(key string) {
	idx, has := extractIndex(key)

	a.mu.Lock()
	defer a.mu.Unlock()

	a.window = append(a.window, access{key: key, at: time.Now(), idx: idx, has: has})
	if len(a.window) > a.cfg.WindowCapacity {
		a.window = a.window[len(a.window)-a.cfg.WindowCapacity:]
	}
	a.hasCache = false // any new access invalidates the cached verdict early
}

// PreloadRadiusBase returns the base radius currently used to scale
// per-pattern preload radii.
func (a *Analyzer) PreloadRadiusBase() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg.PreloadRadiusBase
}

// SetPreloadRadiusBase adjusts the base radius used by future radius
// computations and invalidates the cached verdict so the new base takes
// effect on the next Analyze call. Used by the Optimizer's routine
// escalation pass (spec.md 4.5) to tune read-ahead depth to observed
// performance.
func (a *Analyzer) SetPreloadRadiusBase(base int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfg.PreloadRadiusBase = base
	a.hasCache = false
}

// Analyze returns the current pattern verdict, recomputing only if the
// cached verdict has expired or been invalidated.
func (a *Analyzer) Analyze() cache.Verdict {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.hasCache && time.Since(a.cached.ComputedAt) < a.cfg.VerdictCacheTTL {
		return a.cached
	}

	verdict := a.classifyLocked()
	a.cached = verdict
	a.hasCache = true
	return verdict
}

// patternFloor is the minimum score a pattern must reach to be reported as
// Sequential, Jump, or Hotspot (spec.md 4.3); below it the access stream is
// classified as Random.
const patternFloor = 0.3

func (a *Analyzer) classifyLocked() cache.Verdict {
	if len(a.window) < a.cfg.MinSamples {
		return cache.Verdict{Kind: cache.PatternInsufficient, ComputedAt: time.Now()}
	}

	seq := a.sequentialScore()
	jump, stride := a.jumpScore()
	hotspot, hotKeys := a.hotspotScore()

	base := a.cfg.PreloadRadiusBase
	if base <= 0 {
		base = 1
	}

	var best cache.PatternKind
	var bestScore float64

	switch {
	case seq >= patternFloor && seq >= jump && seq >= hotspot:
		best = cache.PatternSequential
		bestScore = seq
	case jump >= patternFloor && jump >= hotspot:
		best = cache.PatternJump
		bestScore = jump
	case hotspot >= patternFloor:
		best = cache.PatternHotspot
		bestScore = hotspot
	default:
		best = cache.PatternRandom
		bestScore = max3(seq, jump, hotspot)
	}

	v := cache.Verdict{
		Kind:          best,
		Confidence:    bestScore,
		PreloadRadius: radiusFor(best, base),
		ComputedAt:    time.Now(),
	}
	if best == cache.PatternJump {
		v.StrideAligned = stride
	}
	if best == cache.PatternHotspot {
		v.HotspotKeys = hotKeys
	}
	return v
}

// radiusFor scales base by the multiplier spec.md 4.3 assigns each pattern
// kind, rounding to the nearest frame count.
func radiusFor(kind cache.PatternKind, base int) int {
	var mult float64
	switch kind {
	case cache.PatternSequential:
		mult = 1.5
	case cache.PatternJump:
		mult = 1.0
	case cache.PatternHotspot:
		mult = 0.8
	default:
		mult = 1.2
	}
	radius := int(math.Round(float64(base) * mult))
	if radius < 1 {
		radius = 1
	}
	return radius
}

// sequentialScore measures what fraction of consecutive accesses advance
// the numeric index by exactly +1 or -1.
func (a *Analyzer) sequentialScore() float64 {
	indexed := a.indexedRuns()
	if len(indexed) < 2 {
		return 0
	}
	hits := 0
	for i := 1; i < len(indexed); i++ {
		d := indexed[i] - indexed[i-1]
		if d == 1 || d == -1 {
			hits++
		}
	}
	return float64(hits) / float64(len(indexed)-1)
}

// jumpScore measures the fraction of consecutive access triples whose two
// gaps are equal and greater than 1 in magnitude — a run of evenly spaced
// jumps (e.g. +10, +10, +10), as distinct from the +-1 runs sequentialScore
// already accounts for. Ties in the modal stride are broken by first
// occurrence, for determinism (unlike the Python original's use of
// Python's max(set(...)) which is hash-order dependent).
func (a *Analyzer) jumpScore() (score float64, stride int) {
	indexed := a.indexedRuns()
	if len(indexed) < 3 {
		return 0, 0
	}

	counts := make(map[int]int)
	order := make([]int, 0)
	triples := 0
	matches := 0

	for i := 2; i < len(indexed); i++ {
		gap1 := indexed[i-1] - indexed[i-2]
		gap2 := indexed[i] - indexed[i-1]
		triples++

		if gap1 != gap2 || abs(gap1) <= 1 {
			continue
		}
		matches++
		if _, seen := counts[gap1]; !seen {
			order = append(order, gap1)
		}
		counts[gap1]++
	}

	if triples == 0 {
		return 0, 0
	}
	score = float64(matches) / float64(triples)
	if len(order) == 0 {
		return score, 0
	}

	modal := order[0]
	modalCount := counts[modal]
	for _, v := range order[1:] {
		if counts[v] > modalCount {
			modal = v
			modalCount = counts[v]
		}
	}

	return score, modal
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// hotspotScore measures the fraction of total window accesses that land on
// the top 20% most frequently accessed keys: total accesses to those keys
// divided by total accesses in the window (spec.md 4.3).
func (a *Analyzer) hotspotScore() (score float64, topKeys []string) {
	if len(a.window) == 0 {
		return 0, nil
	}

	counts := make(map[string]int)
	order := make([]string, 0)
	for _, acc := range a.window {
		if _, seen := counts[acc.key]; !seen {
			order = append(order, acc.key)
		}
		counts[acc.key]++
	}

	// Most-visited first, for both the top-20% sum and the keys reported
	// to the Preloader. Ties broken by first-seen order, for determinism.
	type kv struct {
		key   string
		count int
	}
	kvs := make([]kv, 0, len(order))
	for _, k := range order {
		kvs = append(kvs, kv{k, counts[k]})
	}
	for i := 0; i < len(kvs); i++ {
		for j := i + 1; j < len(kvs); j++ {
			if kvs[j].count > kvs[i].count {
				kvs[i], kvs[j] = kvs[j], kvs[i]
			}
		}
	}

	topN := int(math.Ceil(0.2 * float64(len(kvs))))
	if topN < 1 {
		topN = 1
	}
	if topN > len(kvs) {
		topN = len(kvs)
	}

	sum := 0
	for i := 0; i < topN; i++ {
		sum += kvs[i].count
		topKeys = append(topKeys, kvs[i].key)
	}

	score = float64(sum) / float64(len(a.window))
	return score, topKeys
}

// indexedRuns returns the numeric indices of window entries that carried
// an extractable index, in access order.
func (a *Analyzer) indexedRuns() []int {
	out := make([]int, 0, len(a.window))
	for _, acc := range a.window {
		if acc.has {
			out = append(out, acc.idx)
		}
	}
	return out
}

func max3(a, b, c float64) float64 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}

// extractIndex finds the first maximal run of ASCII digits in key and
// parses it as an int. This generalizes the Python original's assumption
// that every key looks like "frame_000123" to any opaque key containing
// a numeric run anywhere in it.
func extractIndex(key string) (int, bool) {
	start := -1
	for i := 0; i <= len(key); i++ {
		isDigit := i < len(key) && key[i] >= '0' && key[i] <= '9'
		if isDigit && start == -1 {
			start = i
		}
		if !isDigit && start != -1 {
			return parseDigits(key[start:i]), true
		}
	}
	return 0, false
}

func parseDigits(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}
