package applier

import (
	"context"
	"fmt"
	"log/slog"

	"leaderboard-engine/internal/apperrors"
	"leaderboard-engine/internal/domain"
	"leaderboard-engine/internal/metrics"
	"leaderboard-engine/internal/store"
)

// Applier mutates player stats and every leaderboard scope a score event
// touches, following the six-step pipeline spec.md §4.5 describes.
type Applier struct {
	gateway store.Gateway
	log     *slog.Logger
}

// New constructs an Applier over the given store gateway.
func New(gateway store.Gateway, log *slog.Logger) *Applier {
	return &Applier{gateway: gateway, log: log.With(slog.String("component", "applier"))}
}

// Result reports the global rank and score a player reached after an
// event, for the dispatcher to diff against the pre-batch snapshot. Daily
// and weekly ranks are not read back.
type Result struct {
	GlobalRank domain.RankScore
}

// Apply runs one event through the full pipeline: upsert the player
// record, then credit the global leaderboard, credit the scoped
// daily/weekly leaderboards, and update aggregate player stats as one
// pipelined round trip, per spec.md:110's "composed into a single
// pipeline round-trip per event" requirement for the sequential path. It
// returns the player's new global rank/score so the dispatcher can
// compute whether a notification is due.
func (a *Applier) Apply(ctx context.Context, event domain.ScoreEvent) (Result, error) {
	if err := a.gateway.UpsertPlayerIfMissing(ctx, event.PlayerID, event.Username, event.Timestamp); err != nil {
		return Result{}, fmt.Errorf("upsert player: %w", err)
	}

	globalKey := a.gateway.GlobalKey(event.GameMode)
	dailyKey := a.gateway.DailyKey(event.GameMode, Today(event.Timestamp))

	pipe := a.gateway.Pipeline()
	pipe.ZIncrBy(ctx, globalKey, event.PlayerID, event.Score)
	pipe.ZIncrBy(ctx, dailyKey, event.PlayerID, event.Score)
	pipe.Expire(ctx, dailyKey, store.DailyTTL)

	if event.Score <= 0 {
		metrics.IncEventRejected("weekly_skip_non_positive_score")
		a.log.Warn("weekly_step_skipped",
			slog.String("playerId", event.PlayerID), slog.Int("gameMode", event.GameMode), slog.Int64("score", event.Score))
	} else {
		weeklyKey := a.gateway.WeeklyKey(event.GameMode, WeekID(event.Timestamp))
		pipe.ZIncrBy(ctx, weeklyKey, event.PlayerID, event.Score)
		pipe.Expire(ctx, weeklyKey, store.WeeklyTTL)
	}

	pipe.IncPlayerStats(ctx, event.PlayerID, event.Score)
	rankFuture := pipe.ZRevRankAndScore(ctx, globalKey, event.PlayerID)

	if err := pipe.Exec(ctx); err != nil {
		return Result{}, fmt.Errorf("exec applier pipeline: %w: %w", apperrors.ErrStoreUnavailable, err)
	}

	metrics.IncEventApplied(event.GameMode)

	rankScore, err := rankFuture.Result()
	if err != nil {
		return Result{}, fmt.Errorf("read global rank: %w", err)
	}
	if rankScore == nil {
		return Result{}, fmt.Errorf("player missing from global leaderboard immediately after credit")
	}
	return Result{GlobalRank: *rankScore}, nil
}
