package leaderboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	StreakKey      = "leaderboard:streak"
	StreakNamesKey = "leaderboard:streak:names"
)

// RedisBoard ranks users by longest streak in a sorted set. Writes are best
// effort and happen after the streak itself is committed.
type RedisBoard struct {
	client *redis.Client
}

func NewRedisBoard(client *redis.Client) *RedisBoard {
	return &RedisBoard{client: client}
}

// UpdateStreak records longest for userID. GT keeps a stale, lower write
// from overwriting a newer higher score.
func (b *RedisBoard) UpdateStreak(ctx context.Context, userID uuid.UUID, username string, longest int) error {
	member := userID.String()

	pipe := b.client.TxPipeline()
	pipe.ZAddGT(ctx, StreakKey, redis.Z{Score: float64(longest), Member: member})
	if username != "" {
		pipe.HSet(ctx, StreakNamesKey, member, username)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("update streak leaderboard: %w", err)
	}
	return nil
}

func (b *RedisBoard) Top(ctx context.Context, limit int64) (*Leaderboard, error) {
	results, err := b.client.ZRevRangeWithScores(ctx, StreakKey, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read streak leaderboard: %w", err)
	}

	members := make([]string, len(results))
	for i, r := range results {
		members[i], _ = r.Member.(string)
	}

	names := make([]any, len(members))
	if len(members) > 0 {
		names, err = b.client.HMGet(ctx, StreakNamesKey, members...).Result()
		if err != nil {
			return nil, fmt.Errorf("read leaderboard names: %w", err)
		}
	}

	entries := make([]*LeaderboardEntry, 0, len(results))
	for i, r := range results {
		id, err := uuid.Parse(members[i])
		if err != nil {
			continue
		}
		name, _ := names[i].(string)
		entries = append(entries, &LeaderboardEntry{
			UserID:        id,
			Username:      name,
			LongestStreak: int(r.Score),
			Rank:          i + 1,
		})
	}

	total, err := b.client.ZCard(ctx, StreakKey).Result()
	if err != nil {
		return nil, fmt.Errorf("count streak leaderboard: %w", err)
	}

	return &Leaderboard{Entries: entries, TotalUsers: int(total)}, nil
}

// Position fills in the caller's own rank, if ranked.
func (b *RedisBoard) Position(ctx context.Context, userID uuid.UUID) (*LeaderboardEntry, error) {
	member := userID.String()
	rank, err := b.client.ZRevRank(ctx, StreakKey, member).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read leaderboard rank: %w", err)
	}
	score, err := b.client.ZScore(ctx, StreakKey, member).Result()
	if err != nil {
		return nil, fmt.Errorf("read leaderboard score: %w", err)
	}
	name, err := b.client.HGet(ctx, StreakNamesKey, member).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("read leaderboard name: %w", err)
	}
	return &LeaderboardEntry{UserID: userID, Username: name, LongestStreak: int(score), Rank: int(rank) + 1}, nil
}

// Disabled is used when no Redis address is configured.
type Disabled struct{}

func (Disabled) UpdateStreak(context.Context, uuid.UUID, string, int) error { return nil }

func (Disabled) Top(context.Context, int64) (*Leaderboard, error) {
	return &Leaderboard{Entries: []*LeaderboardEntry{}}, nil
}

func (Disabled) Position(context.Context, uuid.UUID) (*LeaderboardEntry, error) { return nil, nil }
