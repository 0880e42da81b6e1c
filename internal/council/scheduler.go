package council

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"quorum/internal/logging"
)

// Scheduler caps concurrent provider calls across a consultation. Members
// acquire a slot before each call and release it after, so a large panel
// never exceeds the provider-side concurrency limit.
type Scheduler struct {
	slots chan struct{}

	mu        sync.Mutex
	waitStart map[string]time.Time

	totalCalls         int64
	currentlyWaiting   int32
	currentlyExecuting int32
}

// NewScheduler creates a scheduler allowing maxConcurrent simultaneous
// calls.
func NewScheduler(maxConcurrent int) *Scheduler {
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}
	return &Scheduler{
		slots:     make(chan struct{}, maxConcurrent),
		waitStart: make(map[string]time.Time),
	}
}

// Acquire blocks until a call slot is free or the context is cancelled.
func (s *Scheduler) Acquire(ctx context.Context, personaID string) error {
	s.mu.Lock()
	s.waitStart[personaID] = time.Now()
	s.mu.Unlock()

	atomic.AddInt32(&s.currentlyWaiting, 1)
	defer atomic.AddInt32(&s.currentlyWaiting, -1)

	select {
	case s.slots <- struct{}{}:
		s.mu.Lock()
		waited := time.Since(s.waitStart[personaID])
		delete(s.waitStart, personaID)
		s.mu.Unlock()

		atomic.AddInt32(&s.currentlyExecuting, 1)
		if waited > 100*time.Millisecond {
			logging.CouncilDebug("scheduler: %s acquired slot after %v", personaID, waited)
		}
		return nil

	case <-ctx.Done():
		s.mu.Lock()
		delete(s.waitStart, personaID)
		s.mu.Unlock()
		logging.CouncilWarn("scheduler: %s cancelled while waiting for slot", personaID)
		return ctx.Err()
	}
}

// Release frees a slot after the call completes.
func (s *Scheduler) Release(personaID string) {
	select {
	case <-s.slots:
	default:
		logging.CouncilError("scheduler: %s released slot it didn't hold", personaID)
		return
	}
	atomic.AddInt32(&s.currentlyExecuting, -1)
	atomic.AddInt64(&s.totalCalls, 1)
}

// Executing returns the number of in-flight calls.
func (s *Scheduler) Executing() int {
	return int(atomic.LoadInt32(&s.currentlyExecuting))
}

// TotalCalls returns the number of completed acquire/release cycles.
func (s *Scheduler) TotalCalls() int64 {
	return atomic.LoadInt64(&s.totalCalls)
}
