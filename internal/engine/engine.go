// Package engine wires the Store Gateway, Event Log Client, Notifier,
// Recovery Detector, Leaderboard Applier, and Batch Dispatcher into the
// long-running LeaderboardEngine, adapted from the donor Application's
// New/Run/Close lifecycle shape. The module-scope mutable flags spec.md
// §9 flags for re-architecture are split: isReplaying and emptyBatchCount
// are fields here, owned by the single goroutine that runs Run, while
// lastBatchTime lives on the recovery.IdleWatcher behind its mutex.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"leaderboard-engine/internal/apperrors"
	"leaderboard-engine/internal/applier"
	"leaderboard-engine/internal/config"
	"leaderboard-engine/internal/dispatcher"
	"leaderboard-engine/internal/eventlog"
	"leaderboard-engine/internal/httpserver"
	"leaderboard-engine/internal/metrics"
	"leaderboard-engine/internal/notifier"
	"leaderboard-engine/internal/recovery"
	"leaderboard-engine/internal/store"
)

// State names the engine's position in its lifecycle, exposed for
// logging and readiness reporting.
type State string

const (
	StateStarting  State = "starting"
	StateReplaying State = "replaying"
	StateTailing   State = "tailing"
	StateStopping  State = "stopping"
	StateStopped   State = "stopped"
)

const maxBatchSize = 500
const batchWait = 500 * time.Millisecond

// LeaderboardEngine owns every long-lived resource and the replay/tailing
// state machine.
type LeaderboardEngine struct {
	cfg        config.Config
	log        *slog.Logger
	gateway    *store.RedisGateway
	logClient  *eventlog.Client
	notifier   *notifier.Notifier
	dispatcher *dispatcher.Dispatcher
	health     *httpserver.HealthState
	watcher    *recovery.IdleWatcher

	state           State
	isReplaying     bool
	emptyBatchCount int
}

// New wires every component per config and returns an engine ready to
// Run. The caller is responsible for calling Close once Run returns.
func New(cfg config.Config, log *slog.Logger, health *httpserver.HealthState) *LeaderboardEngine {
	gateway := store.NewRedisGateway(cfg.StoreAddr(), cfg.StorePassword, cfg.StoreDB)

	logClient := eventlog.New(eventlog.Options{
		Brokers:  cfg.Brokers,
		ClientID: cfg.ClientID,
		GroupID:  cfg.GroupID,
		Topic:    cfg.ScoreTopic,
	}, log)

	var purgeClient *notifier.PurgeClient
	if cfg.PurgeURL != "" {
		purgeClient = notifier.NewPurgeClient(cfg.PurgeURL, cfg.PurgeKey, notifier.Provider(cfg.PurgeProvider), cfg.PurgeTimeout)
	}
	n := notifier.New(cfg.Brokers, cfg.RankChangeTopic, log, purgeClient)

	a := applier.New(gateway, log)
	d := dispatcher.New(a, gateway, n, log)

	return &LeaderboardEngine{
		cfg:        cfg,
		log:        log.With(slog.String("component", "engine")),
		gateway:    gateway,
		logClient:  logClient,
		notifier:   n,
		dispatcher: d,
		health:     health,
		watcher:    recovery.NewIdleWatcher(cfg.IdleTimeout),
		state:      StateStarting,
	}
}

// Close releases every owned resource. Safe to call once, after Run has
// returned.
func (e *LeaderboardEngine) Close() error {
	var firstErr error
	if err := e.logClient.Close(); err != nil {
		firstErr = err
	}
	if err := e.gateway.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Run drives the consume loop until ctx is cancelled or a fatal broker
// error occurs. It performs the startup replay check, starts the
// notifier and idle watcher, and transitions between replaying and
// tailing as the catch-up heuristics fire.
func (e *LeaderboardEngine) Run(ctx context.Context) error {
	e.isReplaying = recovery.NeedsReplay(ctx, e.gateway, e.log)
	metrics.SetReplaying(e.isReplaying)

	if e.isReplaying {
		e.state = StateReplaying
		e.log.Info("replay_required")
		if err := eventlog.ResetToEarliest(ctx, e.cfg.Brokers, e.cfg.GroupID); err != nil {
			e.log.Warn("offset_reset_failed", slog.Any("err", err))
		}
	} else {
		e.state = StateTailing
		e.log.Info("tailing_from_start")
	}

	if err := e.logClient.Subscribe(e.isReplaying); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	e.notifier.Start(ctx)
	defer e.notifier.Stop()

	watcherCtx, cancelWatcher := context.WithCancel(ctx)
	defer cancelWatcher()
	go e.watcher.Run(watcherCtx)

	e.health.SetReady(true)
	defer e.health.SetReady(false)

	for {
		select {
		case <-ctx.Done():
			e.state = StateStopping
			e.log.Info("shutdown_signal")
			return nil
		case <-e.watcher.RequestCh():
			e.exitReplayIfNeeded("idle_timeout")
		default:
		}

		batch, err := e.logClient.FetchBatch(ctx, maxBatchSize, batchWait)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			if errors.Is(err, apperrors.ErrLogFatal) {
				e.log.Error("log_fatal", slog.Any("err", err))
				return err
			}
			return err
		}

		batchStart := time.Now()
		outcome, err := e.dispatcher.ProcessBatch(ctx, batch.Messages, e.isReplaying)
		metrics.ObserveBatchLatency(time.Since(batchStart).Seconds())
		if err != nil {
			if errors.Is(err, apperrors.ErrStoreUnavailable) {
				e.log.Error("batch_aborted_store_unavailable", slog.Any("err", err))
				return err
			}
			return err
		}

		e.updateReplayBookkeeping(outcome.ValidEventCount)

		if err := e.logClient.CommitBatch(ctx, batch); err != nil {
			e.log.Error("commit_failed", slog.Any("err", err))
		}
	}
}

func (e *LeaderboardEngine) updateReplayBookkeeping(validEventCount int) {
	if !e.isReplaying {
		return
	}
	e.watcher.Touch(time.Now())
	if validEventCount == 0 {
		e.emptyBatchCount++
		if e.emptyBatchCount >= e.cfg.EmptyBatchThreshold {
			e.exitReplayIfNeeded("empty_batch_threshold")
		}
		return
	}
	e.emptyBatchCount = 0
}

// exitReplayIfNeeded flips isReplaying exactly once. The consume loop is
// the only writer; the idle watcher only requests the transition.
func (e *LeaderboardEngine) exitReplayIfNeeded(reason string) {
	if !e.isReplaying {
		return
	}
	e.isReplaying = false
	e.state = StateTailing
	e.emptyBatchCount = 0
	metrics.SetReplaying(false)
	e.log.Info("replay_to_tailing", slog.String("reason", reason))
}
