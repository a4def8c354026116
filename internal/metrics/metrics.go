// Package metrics provides a minimal Prometheus-compatible registry for
// engine instrumentation, adapted from the donor ledger service's
// hand-rolled counter/gauge/histogram registry.
package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

type counterVec struct {
	mu     sync.RWMutex
	values map[string]uint64
}

func newCounterVec() *counterVec {
	return &counterVec{values: make(map[string]uint64)}
}

func (c *counterVec) inc(label string) {
	c.mu.Lock()
	c.values[label]++
	c.mu.Unlock()
}

func (c *counterVec) snapshot() map[string]uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]uint64, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

type gauge struct {
	mu    sync.Mutex
	value float64
}

func newGauge() *gauge { return &gauge{} }

func (g *gauge) set(v float64) {
	g.mu.Lock()
	g.value = v
	g.mu.Unlock()
}

func (g *gauge) snapshot() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value
}

type histogram struct {
	mu      sync.RWMutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(edges []float64) *histogram {
	sorted := append([]float64(nil), edges...)
	sort.Float64s(sorted)
	return &histogram{buckets: sorted, counts: make([]uint64, len(sorted))}
}

func (h *histogram) observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, upper := range h.buckets {
		if v <= upper {
			h.counts[i]++
		}
	}
	h.count++
	h.sum += v
}

func (h *histogram) snapshot() (buckets []float64, counts []uint64, sum float64, count uint64) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]float64(nil), h.buckets...), append([]uint64(nil), h.counts...), h.sum, h.count
}

var (
	eventsApplied      = newCounterVec() // label: gameMode
	eventsRejected     = newCounterVec() // label: reason
	notificationsSent  = newCounterVec() // label: result
	cachePurges        = newCounterVec() // label: result
	storeRetries       = newCounterVec() // label: op
	hotGroupSize       = newHistogram([]float64{1, 2, 4, 8, 16, 32, 64})
	batchLatencySecond = newHistogram([]float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5})
	replaying          = newGauge() // 1 while replaying, 0 while tailing
)

// IncEventApplied records a successfully applied event for the given game mode.
func IncEventApplied(gameMode int) {
	eventsApplied.inc(fmt.Sprintf("%d", gameMode))
}

// IncEventRejected records a skipped event, labeled by rejection reason.
func IncEventRejected(reason string) {
	eventsRejected.inc(reason)
}

// IncNotification records a rank-change publish attempt's outcome.
func IncNotification(result string) {
	notificationsSent.inc(result)
}

// IncCachePurge records a cache-purge attempt's outcome.
func IncCachePurge(result string) {
	cachePurges.inc(result)
}

// IncStoreRetry records a retried store operation.
func IncStoreRetry(op string) {
	storeRetries.inc(op)
}

// ObserveHotGroupSize records the number of events in one hot group.
func ObserveHotGroupSize(n int) {
	hotGroupSize.observe(float64(n))
}

// ObserveBatchLatency records the wall-clock time to process one batch.
func ObserveBatchLatency(seconds float64) {
	if seconds < 0 {
		return
	}
	batchLatencySecond.observe(seconds)
}

// SetReplaying updates the replay/tailing state gauge.
func SetReplaying(v bool) {
	if v {
		replaying.set(1)
		return
	}
	replaying.set(0)
}

// Render builds the Prometheus text exposition for every registered metric.
func Render() string {
	var b strings.Builder
	writeCounterBlock(&b, "leaderboard_events_applied_total", "gameMode", eventsApplied.snapshot())
	writeCounterBlock(&b, "leaderboard_events_rejected_total", "reason", eventsRejected.snapshot())
	writeCounterBlock(&b, "leaderboard_notifications_total", "result", notificationsSent.snapshot())
	writeCounterBlock(&b, "leaderboard_cache_purges_total", "result", cachePurges.snapshot())
	writeCounterBlock(&b, "leaderboard_store_retries_total", "op", storeRetries.snapshot())
	writeHistogramBlock(&b, "leaderboard_hot_group_size", hotGroupSize)
	writeHistogramBlock(&b, "leaderboard_batch_latency_seconds", batchLatencySecond)
	writeGaugeBlock(&b, "leaderboard_replaying", replaying.snapshot())
	return b.String()
}

func writeCounterBlock(b *strings.Builder, name, label string, values map[string]uint64) {
	fmt.Fprintf(b, "# TYPE %s counter\n", name)
	if len(values) == 0 {
		fmt.Fprintf(b, "%s{} 0\n", name)
		return
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "%s{%s=%q} %d\n", name, label, k, values[k])
	}
}

func writeHistogramBlock(b *strings.Builder, name string, h *histogram) {
	fmt.Fprintf(b, "# TYPE %s histogram\n", name)
	buckets, counts, sum, count := h.snapshot()
	var cumulative uint64
	for i, upper := range buckets {
		cumulative += counts[i]
		fmt.Fprintf(b, "%s_bucket{le=\"%g\"} %d\n", name, upper, cumulative)
	}
	fmt.Fprintf(b, "%s_bucket{le=\"+Inf\"} %d\n", name, count)
	fmt.Fprintf(b, "%s_sum %f\n", name, sum)
	fmt.Fprintf(b, "%s_count %d\n", name, count)
}

func writeGaugeBlock(b *strings.Builder, name string, value float64) {
	fmt.Fprintf(b, "# TYPE %s gauge\n", name)
	fmt.Fprintf(b, "%s{} %g\n", name, value)
}
