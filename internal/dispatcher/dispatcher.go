package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"leaderboard-engine/internal/apperrors"
	"leaderboard-engine/internal/applier"
	"leaderboard-engine/internal/domain"
	"leaderboard-engine/internal/metrics"
	"leaderboard-engine/internal/notifier"
	"leaderboard-engine/internal/store"
)

// Dispatcher orchestrates one batch at a time: parse, snapshot, apply,
// notify. It holds no batch-scoped mutable state between calls — the
// replay/tailing bookkeeping (empty-batch counter, idle clock) lives on
// the owning engine per spec.md §9.
type Dispatcher struct {
	applier  *applier.Applier
	gateway  store.Gateway
	notifier *notifier.Notifier
	log      *slog.Logger
}

// New builds a Dispatcher.
func New(a *applier.Applier, gateway store.Gateway, n *notifier.Notifier, log *slog.Logger) *Dispatcher {
	return &Dispatcher{applier: a, gateway: gateway, notifier: n, log: log.With(slog.String("component", "dispatcher"))}
}

// Outcome reports what ProcessBatch did, for the engine's replay
// bookkeeping and metrics.
type Outcome struct {
	ValidEventCount int
}

// ProcessBatch runs the full per-batch algorithm from spec.md §4.6. It
// returns an error only when a store operation exhausted its retry
// budget (apperrors.ErrStoreUnavailable) — the caller must then abort
// the batch without committing offsets. Malformed individual messages
// are logged and skipped; they never fail the batch.
func (d *Dispatcher) ProcessBatch(ctx context.Context, messages []kafka.Message, replaying bool) (Outcome, error) {
	events := make([]domain.ScoreEvent, 0, len(messages))
	for _, msg := range messages {
		event, err := decodeEvent(msg.Value)
		if err != nil {
			metrics.IncEventRejected("malformed_event")
			d.log.Warn("event_skipped", slog.Any("err", err), slog.Int("partition", msg.Partition), slog.Int64("offset", msg.Offset))
			continue
		}
		events = append(events, event)
	}

	outcome := Outcome{ValidEventCount: len(events)}
	if len(events) == 0 {
		return outcome, nil
	}

	grouped := groupByKey(events)
	hotGroups, singletons := partition(grouped)

	initialRank, err := d.snapshotInitialRanks(ctx, grouped)
	if err != nil {
		return outcome, err
	}

	if err := d.processHotGroups(ctx, hotGroups, initialRank, replaying); err != nil {
		return outcome, err
	}

	if err := d.processSingletons(ctx, singletons, initialRank, replaying); err != nil {
		return outcome, err
	}

	return outcome, nil
}

func groupByKey(events []domain.ScoreEvent) map[domain.EventKey][]domain.ScoreEvent {
	grouped := make(map[domain.EventKey][]domain.ScoreEvent)
	for _, e := range events {
		key := e.Key()
		grouped[key] = append(grouped[key], e)
	}
	return grouped
}

func partition(grouped map[domain.EventKey][]domain.ScoreEvent) (hot, singles map[domain.EventKey][]domain.ScoreEvent) {
	hot = make(map[domain.EventKey][]domain.ScoreEvent)
	singles = make(map[domain.EventKey][]domain.ScoreEvent)
	for key, events := range grouped {
		if len(events) >= 2 {
			hot[key] = events
		} else {
			singles[key] = events
		}
	}
	return hot, singles
}

// snapshotInitialRanks reads each distinct key's current global rank
// once, before any event in this batch is applied; this is the "old
// rank" downstream notifications diff against.
func (d *Dispatcher) snapshotInitialRanks(ctx context.Context, grouped map[domain.EventKey][]domain.ScoreEvent) (map[domain.EventKey]*int64, error) {
	snapshot := make(map[domain.EventKey]*int64, len(grouped))
	for key := range grouped {
		globalKey := d.gateway.GlobalKey(key.GameMode)
		rankScore, err := d.gateway.ZRevRankAndScore(ctx, globalKey, key.PlayerID)
		if err != nil {
			return nil, fmt.Errorf("snapshot initial rank: %w", err)
		}
		if rankScore == nil {
			snapshot[key] = nil
			continue
		}
		rank := rankScore.Rank
		snapshot[key] = &rank
	}
	return snapshot, nil
}

// processHotGroups applies each hot-group key's events strictly in
// arrival order, one goroutine per key so distinct keys run
// concurrently. The first store error from any key aborts the whole
// batch.
func (d *Dispatcher) processHotGroups(ctx context.Context, hotGroups map[domain.EventKey][]domain.ScoreEvent, initialRank map[domain.EventKey]*int64, replaying bool) error {
	if len(hotGroups) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	errCh := make(chan error, len(hotGroups))

	for key, events := range hotGroups {
		metrics.ObserveHotGroupSize(len(events))
		wg.Add(1)
		go func(key domain.EventKey, events []domain.ScoreEvent) {
			defer wg.Done()
			if err := d.applyKeySequentially(ctx, key, events, initialRank[key], replaying); err != nil {
				errCh <- err
			}
		}(key, events)
	}

	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) applyKeySequentially(ctx context.Context, key domain.EventKey, events []domain.ScoreEvent, initial *int64, replaying bool) error {
	currentRank := initial
	for _, event := range events {
		previousRank := currentRank
		result, err := d.applier.Apply(ctx, event)
		if err != nil {
			if errors.Is(err, apperrors.ErrStoreUnavailable) {
				return err
			}
			d.log.Warn("hot_group_event_failed", slog.Any("err", err), slog.String("playerId", key.PlayerID), slog.Int("gameMode", key.GameMode))
			continue
		}
		newRank := result.GlobalRank.Rank
		currentRank = &newRank
		d.maybeNotify(key, previousRank, result, replaying)
	}
	return nil
}

// processSingletons upserts each singleton player with its own store call,
// then folds every singleton key's leaderboard credits, TTLs, stats
// increments and rank read-backs into one pipelined round trip.
func (d *Dispatcher) processSingletons(ctx context.Context, singletons map[domain.EventKey][]domain.ScoreEvent, initialRank map[domain.EventKey]*int64, replaying bool) error {
	if len(singletons) == 0 {
		return nil
	}

	for key, events := range singletons {
		if err := d.gateway.UpsertPlayerIfMissing(ctx, key.PlayerID, events[0].Username, events[0].Timestamp); err != nil {
			return fmt.Errorf("upsert singleton player: %w", err)
		}
	}

	pipe := d.gateway.Pipeline()
	type queued struct {
		key        domain.EventKey
		rankFuture store.RankFuture
	}
	entries := make([]queued, 0, len(singletons))

	for key, events := range singletons {
		event := events[0]
		globalKey := d.gateway.GlobalKey(key.GameMode)
		pipe.ZIncrBy(ctx, globalKey, key.PlayerID, event.Score)

		dailyKey := d.gateway.DailyKey(key.GameMode, applier.Today(event.Timestamp))
		pipe.ZIncrBy(ctx, dailyKey, key.PlayerID, event.Score)
		pipe.Expire(ctx, dailyKey, store.DailyTTL)

		if event.Score > 0 {
			weeklyKey := d.gateway.WeeklyKey(key.GameMode, applier.WeekID(event.Timestamp))
			pipe.ZIncrBy(ctx, weeklyKey, key.PlayerID, event.Score)
			pipe.Expire(ctx, weeklyKey, store.WeeklyTTL)
		} else {
			d.log.Warn("weekly_step_skipped", slog.String("playerId", key.PlayerID), slog.Int("gameMode", key.GameMode))
		}

		pipe.IncPlayerStats(ctx, key.PlayerID, event.Score)
		rankFuture := pipe.ZRevRankAndScore(ctx, globalKey, key.PlayerID)

		entries = append(entries, queued{key: key, rankFuture: rankFuture})
	}

	if err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("exec singleton pipeline: %w: %w", apperrors.ErrStoreUnavailable, err)
	}

	for _, e := range entries {
		metrics.IncEventApplied(e.key.GameMode)
		rankScore, err := e.rankFuture.Result()
		if err != nil {
			d.log.Warn("singleton_rank_read_failed", slog.Any("err", err), slog.String("playerId", e.key.PlayerID))
			continue
		}
		if rankScore == nil {
			continue
		}
		result := applier.Result{GlobalRank: *rankScore}
		d.maybeNotify(e.key, initialRank[e.key], result, replaying)
	}
	return nil
}

func (d *Dispatcher) maybeNotify(key domain.EventKey, previousRank *int64, result applier.Result, replaying bool) {
	if replaying {
		return
	}
	newRank := result.GlobalRank.Rank
	if previousRank != nil && *previousRank == newRank {
		return
	}
	change := domain.RankChange{
		GameMode:  key.GameMode,
		PlayerID:  key.PlayerID,
		OldRank:   previousRank,
		NewRank:   newRank,
		Score:     result.GlobalRank.Score,
		Timestamp: time.Now().UTC(),
	}
	d.notifier.Publish(change)
}
