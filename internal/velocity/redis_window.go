package velocity

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisWindow keeps per-source-account sliding windows in Redis, so velocity
// state survives restarts and is shared across instances.
//
// Layout per source account:
//
//	vel:<src>:payees   ZSET  member = dst account, score = unix seconds
//	vel:<src>:amounts  ZSET  member = "<seq>:<amount>", score = unix seconds
type RedisWindow struct {
	cfg Config
	rdb *redis.Client
}

// NewRedisWindow creates a Redis-backed velocity window.
func NewRedisWindow(rdb *redis.Client, cfg Config) *RedisWindow {
	return &RedisWindow{cfg: cfg, rdb: rdb}
}

func (r *RedisWindow) keys(src string) (payees, amounts string) {
	return "vel:" + src + ":payees", "vel:" + src + ":amounts"
}

// RecordAndScore records the payment and scores the window including it.
func (r *RedisWindow) RecordAndScore(ctx context.Context, srcAccount, dstAccount string, amount float64, firstToPayee bool) (int, []string, error) {
	now := time.Now()
	minTS := now.Add(-WindowDuration).Unix()
	payeesKey, amountsKey := r.keys(srcAccount)

	// Amounts need unique members; a nanosecond sequence prefix keeps two
	// identical amounts from collapsing into one ZSET entry.
	member := fmt.Sprintf("%d:%s", now.UnixNano(), strconv.FormatFloat(amount, 'f', -1, 64))

	pipe := r.rdb.Pipeline()
	pipe.ZRemRangeByScore(ctx, payeesKey, "0", strconv.FormatInt(minTS, 10))
	pipe.ZRemRangeByScore(ctx, amountsKey, "0", strconv.FormatInt(minTS, 10))
	pipe.ZAdd(ctx, payeesKey, redis.Z{Score: float64(now.Unix()), Member: dstAccount})
	pipe.ZAdd(ctx, amountsKey, redis.Z{Score: float64(now.Unix()), Member: member})
	pipe.Expire(ctx, payeesKey, WindowDuration+time.Minute)
	pipe.Expire(ctx, amountsKey, WindowDuration+time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, nil, fmt.Errorf("velocity record failed: %w", err)
	}

	uniquePayees, err := r.rdb.ZCount(ctx, payeesKey,
		strconv.FormatInt(minTS, 10), strconv.FormatInt(now.Unix(), 10)).Result()
	if err != nil {
		return 0, nil, fmt.Errorf("velocity count failed: %w", err)
	}

	members, err := r.rdb.ZRangeByScore(ctx, amountsKey, &redis.ZRangeBy{
		Min: strconv.FormatInt(minTS, 10),
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
	if err != nil {
		return 0, nil, fmt.Errorf("velocity range failed: %w", err)
	}

	total := 0.0
	for _, m := range members {
		if idx := strings.IndexByte(m, ':'); idx >= 0 {
			if v, err := strconv.ParseFloat(m[idx+1:], 64); err == nil {
				total += v
			}
		}
	}

	score, reasons := r.cfg.score(int(uniquePayees), total, firstToPayee)
	return score, reasons, nil
}
