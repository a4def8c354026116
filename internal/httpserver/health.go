// Package httpserver exposes the engine's ambient HTTP surface: liveness,
// readiness, and a Prometheus-compatible metrics endpoint. It carries no
// leaderboard read routes — those are out of scope per spec.md §1.
package httpserver

import "sync"

// HealthState tracks readiness for the process. Liveness is always true
// while the process is running; readiness toggles with the engine's
// lifecycle (not ready during Starting/Stopping, ready during
// Replaying/Tailing).
type HealthState struct {
	mu    sync.RWMutex
	ready bool
}

// NewHealthState constructs the health tracker, initially not ready.
func NewHealthState() *HealthState {
	return &HealthState{}
}

// SetReady flips the readiness flag.
func (h *HealthState) SetReady(value bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = value
}

// Ready reports the current readiness flag.
func (h *HealthState) Ready() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ready
}
