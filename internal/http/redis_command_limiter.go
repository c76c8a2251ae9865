package httpx

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const redisLimiterPrefix = "netwatch:commands:"

// slidingWindowScript keeps one sorted-set member per admitted command,
// scored by admission time in milliseconds. It returns
// {allowed, used, oldest_ms}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local used = redis.call('ZCARD', key)
local allowed = 0
if used < limit then
	redis.call('ZADD', key, now, ARGV[4])
	used = used + 1
	allowed = 1
end
redis.call('PEXPIRE', key, window)

local oldest = now
local first = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if first[2] then
	oldest = tonumber(first[2])
end
return {allowed, used, oldest}
`)

// redisCommandLimiter shares budgets across dashboard replicas. While Redis
// is unreachable it admits against a process-local limiter instead.
type redisCommandLimiter struct {
	client   *redis.Client
	logger   *slog.Logger
	timeout  time.Duration
	fallback *memoryCommandLimiter
}

// NewRedisCommandLimiter connects to Redis and verifies it answers.
func NewRedisCommandLimiter(ctx context.Context, addr, password string, db int, logger *slog.Logger) (CommandLimiter, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &redisCommandLimiter{
		client:   client,
		logger:   logger.With("component", "command_limiter"),
		timeout:  250 * time.Millisecond,
		fallback: newMemoryCommandLimiter(time.Now),
	}, nil
}

func (rl *redisCommandLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) budgetDecision {
	if limit <= 0 {
		return budgetDecision{Allowed: true}
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rl.timeout)
	defer cancel()

	now := time.Now()
	res, err := slidingWindowScript.Run(ctx, rl.client,
		[]string{redisLimiterPrefix + key},
		now.UnixMilli(), window.Milliseconds(), limit, uuid.NewString(),
	).Int64Slice()
	if err != nil || len(res) != 3 {
		rl.logger.Error("redis budget check failed; using local budget", "key", key, "error", err)
		return rl.fallback.Allow(ctx, key, limit, window)
	}
	return budgetDecision{
		Allowed: res[0] == 1,
		Used:    int(res[1]),
		Limit:   limit,
		ResetAt: time.UnixMilli(res[2]).Add(window),
	}
}

func (rl *redisCommandLimiter) Close() {
	_ = rl.client.Close()
}
