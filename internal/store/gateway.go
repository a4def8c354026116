package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"leaderboard-engine/internal/apperrors"
	"leaderboard-engine/internal/domain"
	"leaderboard-engine/internal/metrics"
	"leaderboard-engine/internal/retry"
)

// DailyTTL and WeeklyTTL are the sorted-set expirations named in spec.md §6.
const (
	DailyTTL  = 7 * 24 * time.Hour
	WeeklyTTL = 28 * 24 * time.Hour
)

// Member pairs a sorted-set entry's player id with its score, as returned
// by ZRevRange in descending score order; it carries no rank.
type Member struct {
	PlayerID string
	Score    int64
}

// Gateway is the typed surface every other component depends on instead of
// talking to Redis directly.
type Gateway interface {
	GetPlayer(ctx context.Context, playerID string) (*domain.Player, error)
	UpsertPlayerIfMissing(ctx context.Context, playerID, username string, now time.Time) error
	IncPlayerStats(ctx context.Context, playerID string, scoreDelta int64) error
	ZIncrBy(ctx context.Context, key, member string, delta int64) (int64, error)
	ZRevRankAndScore(ctx context.Context, key, member string) (*domain.RankScore, error)
	ZCard(ctx context.Context, key string) (int64, error)
	ZRevRange(ctx context.Context, key string, offset, limit int64) ([]Member, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	ScanKeys(ctx context.Context, pattern string) (<-chan string, <-chan error)
	Pipeline() Pipeline

	GlobalKey(gameMode int) string
	DailyKey(gameMode int, date string) string
	WeeklyKey(gameMode int, weekID string) string
	PlayerKey(playerID string) string
	LastSubmissionKey(playerID string) string
}

// RedisGateway implements Gateway over a go-redis client, retrying
// transient network errors per retry.StorePolicy before surfacing
// apperrors.ErrStoreUnavailable.
type RedisGateway struct {
	client *redis.Client
}

// NewRedisGateway constructs a gateway from a dial address, password, and
// logical database index.
func NewRedisGateway(addr, password string, db int) *RedisGateway {
	return &RedisGateway{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

// Close releases the underlying connection pool.
func (g *RedisGateway) Close() error {
	return g.client.Close()
}

func (g *RedisGateway) GlobalKey(gameMode int) string                { return globalLeaderboardKey(gameMode) }
func (g *RedisGateway) DailyKey(gameMode int, date string) string    { return dailyLeaderboardKey(gameMode, date) }
func (g *RedisGateway) WeeklyKey(gameMode int, weekID string) string { return weeklyLeaderboardKey(gameMode, weekID) }
func (g *RedisGateway) PlayerKey(playerID string) string             { return playerKey(playerID) }
func (g *RedisGateway) LastSubmissionKey(playerID string) string     { return lastSubmissionKey(playerID) }

// withRetry runs op under retry.StorePolicy, translating an exhausted
// budget into apperrors.ErrStoreUnavailable while preserving the original
// error for logging via %w.
func withRetry(ctx context.Context, op string, fn func() error) error {
	err := retry.Do(ctx, retry.StorePolicy, func(attempt int) error {
		err := fn()
		if err != nil && attempt > 1 {
			metrics.IncStoreRetry(op)
		}
		return err
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, apperrors.ErrStoreUnavailable, err)
}

func (g *RedisGateway) GetPlayer(ctx context.Context, playerID string) (*domain.Player, error) {
	var player *domain.Player
	err := withRetry(ctx, "getPlayer", func() error {
		values, err := g.client.HGetAll(ctx, playerKey(playerID)).Result()
		if err != nil {
			return err
		}
		if len(values) == 0 {
			player = nil
			return nil
		}
		p := domain.Player{ID: playerID, Username: values["username"]}
		p.TotalScore, _ = strconv.ParseInt(values["total_score"], 10, 64)
		p.GamesPlayed, _ = strconv.ParseInt(values["games_played"], 10, 64)
		if createdAtUnix, convErr := strconv.ParseInt(values["created_at"], 10, 64); convErr == nil {
			p.CreatedAt = time.Unix(createdAtUnix, 0).UTC()
		}
		player = &p
		return nil
	})
	return player, err
}

// UpsertPlayerIfMissing inserts a fresh player hash atomically via a Lua
// script so a concurrent writer cannot observe a half-written hash; an
// existing player only has its username refreshed.
var upsertIfMissingScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	redis.call("HSET", KEYS[1], "username", ARGV[1])
else
	redis.call("HSET", KEYS[1], "username", ARGV[1], "total_score", "0", "games_played", "0", "created_at", ARGV[2])
end
return 1
`)

func (g *RedisGateway) UpsertPlayerIfMissing(ctx context.Context, playerID, username string, now time.Time) error {
	return withRetry(ctx, "upsertPlayerIfMissing", func() error {
		return upsertIfMissingScript.Run(ctx, g.client, []string{playerKey(playerID)}, username, now.UTC().Unix()).Err()
	})
}

func (g *RedisGateway) IncPlayerStats(ctx context.Context, playerID string, scoreDelta int64) error {
	return withRetry(ctx, "incPlayerStats", func() error {
		pipe := g.client.TxPipeline()
		pipe.HIncrBy(ctx, playerKey(playerID), "total_score", scoreDelta)
		pipe.HIncrBy(ctx, playerKey(playerID), "games_played", 1)
		_, err := pipe.Exec(ctx)
		return err
	})
}

func (g *RedisGateway) ZIncrBy(ctx context.Context, key, member string, delta int64) (int64, error) {
	var newScore int64
	err := withRetry(ctx, "zIncrBy", func() error {
		score, err := g.client.ZIncrBy(ctx, key, float64(delta), member).Result()
		if err != nil {
			return err
		}
		newScore = int64(score)
		return nil
	})
	return newScore, err
}

func (g *RedisGateway) ZRevRankAndScore(ctx context.Context, key, member string) (*domain.RankScore, error) {
	var result *domain.RankScore
	err := withRetry(ctx, "zRevRankAndScore", func() error {
		rank, err := g.client.ZRevRank(ctx, key, member).Result()
		if errors.Is(err, redis.Nil) {
			result = nil
			return nil
		}
		if err != nil {
			return err
		}
		score, err := g.client.ZScore(ctx, key, member).Result()
		if errors.Is(err, redis.Nil) {
			result = nil
			return nil
		}
		if err != nil {
			return err
		}
		result = &domain.RankScore{Rank: rank + 1, Score: int64(score)}
		return nil
	})
	return result, err
}

func (g *RedisGateway) ZCard(ctx context.Context, key string) (int64, error) {
	var n int64
	err := withRetry(ctx, "zCard", func() error {
		v, err := g.client.ZCard(ctx, key).Result()
		if err != nil {
			return err
		}
		n = v
		return nil
	})
	return n, err
}

func (g *RedisGateway) ZRevRange(ctx context.Context, key string, offset, limit int64) ([]Member, error) {
	var members []Member
	err := withRetry(ctx, "zRevRange", func() error {
		results, err := g.client.ZRevRangeWithScores(ctx, key, offset, offset+limit-1).Result()
		if err != nil {
			return err
		}
		members = make([]Member, 0, len(results))
		for _, r := range results {
			id, ok := r.Member.(string)
			if !ok {
				continue
			}
			members = append(members, Member{PlayerID: id, Score: int64(r.Score)})
		}
		return nil
	})
	return members, err
}

func (g *RedisGateway) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return withRetry(ctx, "expire", func() error {
		return g.client.Expire(ctx, key, ttl).Err()
	})
}

// ScanKeys walks the keyspace with a non-blocking cursor scan, streaming
// matches on the returned channel. The error channel carries at most one
// error and is closed alongside the key channel.
func (g *RedisGateway) ScanKeys(ctx context.Context, pattern string) (<-chan string, <-chan error) {
	keys := make(chan string)
	errs := make(chan error, 1)

	go func() {
		defer close(keys)
		defer close(errs)

		var cursor uint64
		for {
			var batch []string
			var nextCursor uint64
			err := withRetry(ctx, "scanKeys", func() error {
				b, c, err := g.client.Scan(ctx, cursor, pattern, 200).Result()
				if err != nil {
					return err
				}
				batch, nextCursor = b, c
				return nil
			})
			if err != nil {
				errs <- err
				return
			}
			for _, k := range batch {
				select {
				case keys <- k:
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
			}
			cursor = nextCursor
			if cursor == 0 {
				return
			}
		}
	}()

	return keys, errs
}
