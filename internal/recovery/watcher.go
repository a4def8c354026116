package recovery

import (
	"context"
	"sync"
	"time"
)

// IdleWatcher requests a replay-to-tailing transition whenever the
// consume loop has gone quiet for longer than idleTimeout. It never
// flips state itself — spec.md §9 resolves the cyclic concern between
// the consume loop and the idle watcher by making the consume loop the
// single writer; the watcher only signals a request on RequestCh, and
// the consume loop decides whether the request still applies.
type IdleWatcher struct {
	idleTimeout time.Duration
	requestCh   chan struct{}

	mu            sync.Mutex
	lastBatchTime time.Time
}

// NewIdleWatcher builds a watcher whose idle clock starts at construction
// time (lastBatchTime is seeded with time.Now()).
func NewIdleWatcher(idleTimeout time.Duration) *IdleWatcher {
	return &IdleWatcher{
		idleTimeout:   idleTimeout,
		requestCh:     make(chan struct{}, 1),
		lastBatchTime: time.Now(),
	}
}

// Touch records that a batch was just processed, resetting the idle
// clock. Safe to call from the consume loop concurrently with Run's
// background ticking.
func (w *IdleWatcher) Touch(now time.Time) {
	w.mu.Lock()
	w.lastBatchTime = now
	w.mu.Unlock()
}

// RequestCh delivers a non-blocking catch-up request whenever the idle
// timeout has elapsed since the last Touch. The consume loop should
// drain it at well-defined points and re-check isReplaying itself.
func (w *IdleWatcher) RequestCh() <-chan struct{} {
	return w.requestCh
}

// Run polls for idleness until ctx is cancelled. It should run in its
// own goroutine, scoped to the engine's lifetime.
func (w *IdleWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.mu.Lock()
			idleFor := time.Since(w.lastBatchTime)
			w.mu.Unlock()
			if idleFor >= w.idleTimeout {
				select {
				case w.requestCh <- struct{}{}:
				default:
				}
			}
		}
	}
}
