// Package metrics tracks get-path latency so the Agent and Optimizer can
// reason about whether the core is meeting its access-time budget.
//
// Grounded on the teacher pack's jamiealquiza/bicache, which keeps a
// tachymeter histogram per shard and recalculates it on its autoevict
// tick (bicache.go bgAutoEvict). This core has no shards, so a single
// tachymeter instance covers every get; Reset is called by the Optimizer
// on each optimization pass rather than on an eviction tick.
package metrics

import (
	"sync"
	"time"

	"github.com/jamiealquiza/tachymeter"
)

// Recorder wraps a tachymeter histogram behind a mutex — tachymeter
// itself is not safe for concurrent AddTime/Calc calls.
type Recorder struct {
	mu   sync.Mutex
	t    *tachymeter.Tachymeter
	size int
}

// New creates a Recorder retaining up to size recent samples.
func New(size int) *Recorder {
	if size <= 0 {
		size = 1000
	}
	return &Recorder{t: tachymeter.New(&tachymeter.Config{Size: size}), size: size}
}

// Observe records one get's elapsed duration.
func (r *Recorder) Observe(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.t.AddTime(d)
}

// Snapshot is a point-in-time view of recorded latencies.
type Snapshot struct {
	Count      int
	Cumulative time.Duration
	Min        time.Duration
	Max        time.Duration
	P50        time.Duration
	P95        time.Duration
	P99        time.Duration
}

// Calc computes a Snapshot over samples recorded since the last Reset.
func (r *Recorder) Calc() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.t.Calc()
	return Snapshot{
		Count:      int(m.Count),
		Cumulative: m.Time.Cumulative,
		Min:        m.Time.Min,
		Max:        m.Time.Max,
		P50:        m.Time.P50,
		P95:        m.Time.P95,
		P99:        m.Time.P99,
	}
}

// Reset clears recorded samples, called by the Optimizer at the end of
// each optimization pass so each window reflects only recent behavior.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.t.Reset()
}
