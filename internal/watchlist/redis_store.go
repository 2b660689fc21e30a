package watchlist

import (
	"context"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

const redisKey = "watchlist:accounts"

// RedisStore keeps the watch set in Redis, shared across instances.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore creates a Redis-backed watchlist.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Add(ctx context.Context, account string) error {
	if err := s.rdb.SAdd(ctx, redisKey, normalize(account)).Err(); err != nil {
		return fmt.Errorf("watchlist add failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, account string) error {
	if err := s.rdb.SRem(ctx, redisKey, normalize(account)).Err(); err != nil {
		return fmt.Errorf("watchlist remove failed: %w", err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	members, err := s.rdb.SMembers(ctx, redisKey).Result()
	if err != nil {
		return nil, fmt.Errorf("watchlist list failed: %w", err)
	}
	sort.Strings(members)
	return members, nil
}

func (s *RedisStore) Contains(ctx context.Context, account string) (bool, error) {
	ok, err := s.rdb.SIsMember(ctx, redisKey, normalize(account)).Result()
	if err != nil {
		return false, fmt.Errorf("watchlist check failed: %w", err)
	}
	return ok, nil
}
