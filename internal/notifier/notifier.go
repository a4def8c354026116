// Package notifier is the Notifier (C3): a best-effort fan-out of
// rank-change events to the leaderboard-updated log and, for changes
// that touch the top 100, a CDN cache purge. Adapted from the donor
// ledger's async publisher queue, dropping its circuit breaker (spec.md
// calls for log-only best-effort delivery here, never a blocking trip
// state) in favor of a plain kafka.Writer.
package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/segmentio/kafka-go"

	"leaderboard-engine/internal/domain"
	"leaderboard-engine/internal/metrics"
)

const queueSize = 256

// Notifier publishes rank-change notifications asynchronously so a slow
// or unreachable output log never blocks the batch that produced them.
type Notifier struct {
	log    *slog.Logger
	writer *kafka.Writer
	purge  *PurgeClient

	queue  chan domain.RankChange
	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

// New constructs a Notifier. purge may be nil, in which case cache-purge
// requests are skipped entirely (e.g. in tests).
func New(brokers []string, topic string, log *slog.Logger, purge *PurgeClient) *Notifier {
	return &Notifier{
		log: log.With(slog.String("component", "notifier")),
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.RoundRobin{},
			AllowAutoTopicCreation: false,
		},
		purge: purge,
		queue: make(chan domain.RankChange, queueSize),
	}
}

// Start launches the background delivery loop.
func (n *Notifier) Start(ctx context.Context) {
	n.startOnce.Do(func() {
		n.runCtx, n.cancel = context.WithCancel(ctx)
		n.wg.Add(1)
		go n.run()
	})
}

// Stop drains any queued notifications and closes the writer.
func (n *Notifier) Stop() {
	n.stopOnce.Do(func() {
		if n.cancel != nil {
			n.cancel()
		}
		n.wg.Wait()
		if err := n.writer.Close(); err != nil {
			n.log.Error("writer_close_failed", slog.Any("err", err))
		}
	})
}

// Publish enqueues a rank change for delivery. It never blocks the
// caller beyond the queue's capacity and never returns an error: failure
// handling is entirely internal, matching spec.md §7's "log only; do not
// fail event" rule for PublishFailed and CachePurgeFailed.
func (n *Notifier) Publish(change domain.RankChange) {
	select {
	case n.queue <- change:
	default:
		n.log.Warn("notifier_queue_full", slog.String("playerId", change.PlayerID), slog.Int("gameMode", change.GameMode))
	}
}

func (n *Notifier) run() {
	defer n.wg.Done()
	for {
		select {
		case <-n.runCtx.Done():
			n.drain()
			return
		case change := <-n.queue:
			n.deliver(change)
		}
	}
}

func (n *Notifier) drain() {
	for {
		select {
		case change := <-n.queue:
			n.deliver(change)
		default:
			return
		}
	}
}

func (n *Notifier) deliver(change domain.RankChange) {
	value, err := json.Marshal(change)
	if err != nil {
		metrics.IncNotification("encode_error")
		n.log.Error("notification_encode_failed", slog.Any("err", err))
		return
	}

	if err := n.writer.WriteMessages(context.Background(), kafka.Message{Value: value}); err != nil {
		metrics.IncNotification("publish_failed")
		n.log.Error("notification_publish_failed", slog.Any("err", err), slog.String("playerId", change.PlayerID))
	} else {
		metrics.IncNotification("ok")
	}

	if n.purge != nil && change.CrossesTop100() {
		n.purgeTop100(change.GameMode)
	}
}

func (n *Notifier) purgeTop100(gameMode int) {
	paths := []string{
		fmt.Sprintf("/api/leaderboard/%d/top100", gameMode),
		fmt.Sprintf("/api/leaderboard/%d?limit=100&offset=0", gameMode),
		fmt.Sprintf("/api/leaderboard/%d?type=global&limit=100&offset=0", gameMode),
	}
	if err := n.purge.Purge(context.Background(), paths); err != nil {
		metrics.IncCachePurge("failed")
		n.log.Warn("cache_purge_failed", slog.Any("err", err), slog.Int("gameMode", gameMode))
		return
	}
	metrics.IncCachePurge("ok")
}
