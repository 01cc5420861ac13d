package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Rate limiting key patterns:
// - ratelimit:{user_id}:messages - per-minute chat message limit
// - ratelimit:{ip}:connect - per-minute websocket handshakes

type RateLimitConfig struct {
	MessageLimit  int
	MessageWindow time.Duration
	ConnectLimit  int
	ConnectWindow time.Duration
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MessageLimit:  60,
		MessageWindow: 60 * time.Second,
		ConnectLimit:  10,
		ConnectWindow: 60 * time.Second,
	}
}

// RateLimiter handles rate limiting using Redis
type RateLimiter struct {
	client *goredis.Client
	config RateLimitConfig
}

type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
	Limit     int
}

func NewRateLimiter(client *goredis.Client, config RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		client: client,
		config: config,
	}
}

// Fixed window counter. The window starts at the first hit.
var limitScript = goredis.NewScript(`
	local key = KEYS[1]
	local limit = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])

	local current = redis.call('GET', key)
	if current == false then
		current = 0
	else
		current = tonumber(current)
	end

	local ttl = redis.call('TTL', key)
	if ttl < 0 then
		ttl = window
	end

	if current < limit then
		redis.call('INCR', key)
		if ttl == window then
			redis.call('EXPIRE', key, window)
		end
		return {1, limit - current - 1, ttl}
	else
		return {0, 0, ttl}
	end
`)

func MessageKey(userID uint) string {
	return fmt.Sprintf("ratelimit:%d:messages", userID)
}

func ConnectKey(ip string) string {
	return fmt.Sprintf("ratelimit:%s:connect", ip)
}

// AllowMessage checks if a user can send a chat message.
func (r *RateLimiter) AllowMessage(ctx context.Context, userID uint) (*RateLimitResult, error) {
	return r.checkLimit(ctx, MessageKey(userID), r.config.MessageLimit, r.config.MessageWindow)
}

// AllowConnect checks if an address can open another websocket.
func (r *RateLimiter) AllowConnect(ctx context.Context, ip string) (*RateLimitResult, error) {
	return r.checkLimit(ctx, ConnectKey(ip), r.config.ConnectLimit, r.config.ConnectWindow)
}

func (r *RateLimiter) checkLimit(ctx context.Context, key string, limit int, window time.Duration) (*RateLimitResult, error) {
	result, err := limitScript.Run(ctx, r.client, []string{key}, limit, int(window.Seconds())).Result()
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}
	return parseLimitResult(result, limit)
}

func parseLimitResult(result interface{}, limit int) (*RateLimitResult, error) {
	values, ok := result.([]interface{})
	if !ok || len(values) < 3 {
		return nil, fmt.Errorf("unexpected rate limit result format")
	}
	nums := make([]int64, 3)
	for i := range nums {
		n, ok := values[i].(int64)
		if !ok {
			return nil, fmt.Errorf("unexpected rate limit result format")
		}
		nums[i] = n
	}
	return &RateLimitResult{
		Allowed:   nums[0] == 1,
		Remaining: int(nums[1]),
		ResetIn:   time.Duration(nums[2]) * time.Second,
		Limit:     limit,
	}, nil
}

// Reset clears a key (admin operation)
func (r *RateLimiter) Reset(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}
