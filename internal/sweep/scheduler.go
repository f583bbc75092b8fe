package sweep

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Per-key states used by Schedule.
const (
	stateRunning uint8 = 1 // goroutine is actively compacting
	stateQueued  uint8 = 2 // goroutine is running AND another run is pending
)

// Scheduler runs compactions with at most one active goroutine per key and
// one pending slot. Across keys, no more than the sweeper's concurrency run
// at once. A run skips a session that is under budget.
type Scheduler struct {
	ctx     context.Context
	sweeper *Sweeper
	onDone  func(Report, error)
	slots   *semaphore.Weighted

	mu     sync.Mutex
	states map[string]uint8
	wg     sync.WaitGroup
}

// NewScheduler returns a Scheduler whose runs use ctx. onDone, if non-nil,
// is called after every run.
func NewScheduler(ctx context.Context, s *Sweeper, onDone func(Report, error)) *Scheduler {
	return &Scheduler{
		ctx:     ctx,
		sweeper: s,
		onDone:  onDone,
		slots:   semaphore.NewWeighted(int64(s.opts.Concurrency)),
		states:  make(map[string]uint8),
	}
}

// Schedule requests a compaction of key.
//
// State machine per key:
//
//	absent       → stateRunning  launch goroutine
//	stateRunning → stateQueued   mark pending, goroutine will re-run
//	stateQueued  → stateQueued   already queued, nothing to do
func (sc *Scheduler) Schedule(key string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	switch sc.states[key] {
	case stateRunning:
		sc.states[key] = stateQueued
		return
	case stateQueued:
		return
	}

	sc.states[key] = stateRunning
	sc.wg.Add(1)
	go func() {
		defer sc.wg.Done()
		for {
			rep, err := sc.run(key)
			if err != nil && sc.ctx.Err() == nil {
				sc.sweeper.logger.Error("sweep: scheduled compaction failed", "key", key, "err", err)
			}
			if sc.onDone != nil {
				sc.onDone(rep, err)
			}

			sc.mu.Lock()
			if sc.states[key] == stateQueued && sc.ctx.Err() == nil {
				sc.states[key] = stateRunning
				sc.mu.Unlock()
				continue
			}
			delete(sc.states, key)
			sc.mu.Unlock()
			return
		}
	}()
}

func (sc *Scheduler) run(key string) (Report, error) {
	if err := sc.slots.Acquire(sc.ctx, 1); err != nil {
		return Report{Key: key}, fmt.Errorf("wait for slot %s: %w", key, err)
	}
	defer sc.slots.Release(1)
	return sc.sweeper.sweepOne(sc.ctx, key)
}

// Pending reports whether key has a run in progress or queued.
func (sc *Scheduler) Pending(key string) bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.states[key] != 0
}

// Wait blocks until every scheduled run has finished.
func (sc *Scheduler) Wait() { sc.wg.Wait() }
