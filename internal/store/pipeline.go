package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"leaderboard-engine/internal/domain"
)

// Pipeline accumulates a sequence of store commands and executes them in a
// single round trip, per spec.md §9's builder-plus-future shape: callers
// queue commands, call Exec, then read each command's own result. It is
// an interface, not the concrete Redis pipeline, so callers like
// internal/applier can be exercised against a hand-written fake in tests
// the same way they're exercised against Redis in production.
type Pipeline interface {
	ZIncrBy(ctx context.Context, key, member string, delta int64) ScoreFuture
	Expire(ctx context.Context, key string, ttl time.Duration)
	IncPlayerStats(ctx context.Context, playerID string, scoreDelta int64)
	ZRevRankAndScore(ctx context.Context, key, member string) RankFuture
	Exec(ctx context.Context) error
}

// ScoreFuture yields the result of one queued scoring command once Exec
// has run.
type ScoreFuture interface {
	Result() (int64, error)
}

// RankFuture yields the rank/score of a member queued mid-pipeline,
// combining a ZREVRANK and a ZSCORE command under one result.
type RankFuture interface {
	Result() (*domain.RankScore, error)
}

// redisPipeline is Pipeline backed by a real go-redis pipeliner.
type redisPipeline struct {
	redisPipe redis.Pipeliner
}

// Pipeline starts a new batch against this gateway's connection.
func (g *RedisGateway) Pipeline() Pipeline {
	return &redisPipeline{redisPipe: g.client.Pipeline()}
}

type redisScoreFuture struct {
	cmd *redis.FloatCmd
}

// Result returns the new score, or the per-command error if this specific
// operation failed even though the pipeline as a whole executed.
func (f *redisScoreFuture) Result() (int64, error) {
	v, err := f.cmd.Result()
	return int64(v), err
}

// ZIncrBy queues a sorted-set increment.
func (p *redisPipeline) ZIncrBy(ctx context.Context, key, member string, delta int64) ScoreFuture {
	return &redisScoreFuture{cmd: p.redisPipe.ZIncrBy(ctx, key, float64(delta), member)}
}

// Expire queues a TTL assignment; its result is discarded by callers that
// don't need per-op confirmation.
func (p *redisPipeline) Expire(ctx context.Context, key string, ttl time.Duration) {
	p.redisPipe.Expire(ctx, key, ttl)
}

// IncPlayerStats queues the two-field player hash increment.
func (p *redisPipeline) IncPlayerStats(ctx context.Context, playerID string, scoreDelta int64) {
	p.redisPipe.HIncrBy(ctx, playerKey(playerID), "total_score", scoreDelta)
	p.redisPipe.HIncrBy(ctx, playerKey(playerID), "games_played", 1)
}

type redisRankFuture struct {
	rankCmd  *redis.IntCmd
	scoreCmd *redis.FloatCmd
}

// Result returns the member's 1-indexed rank and score, or nil if the
// member was absent from the set at execution time.
func (f *redisRankFuture) Result() (*domain.RankScore, error) {
	rank, err := f.rankCmd.Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	score, err := f.scoreCmd.Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &domain.RankScore{Rank: rank + 1, Score: int64(score)}, nil
}

// ZRevRankAndScore queues a combined rank/score lookup.
func (p *redisPipeline) ZRevRankAndScore(ctx context.Context, key, member string) RankFuture {
	return &redisRankFuture{
		rankCmd:  p.redisPipe.ZRevRank(ctx, key, member),
		scoreCmd: p.redisPipe.ZScore(ctx, key, member),
	}
}

// Exec runs every queued command in one round trip. Ordering inside the
// pipeline is preserved; a per-command error does not abort the commands
// queued after it, and each future still reports its own command's
// result. The returned error is the one go-redis reports for the whole
// pipeline: a transport failure, or else the first failed command's
// error. A redis.Nil reported that way (an absent member on a rank or
// score lookup) is returned as nil.
func (p *redisPipeline) Exec(ctx context.Context) error {
	_, err := p.redisPipe.Exec(ctx)
	if err == redis.Nil {
		return nil
	}
	return err
}
