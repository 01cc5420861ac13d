package redis

import (
	"testing"
	"time"

	"marketplace-chat/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLimitResult(t *testing.T) {
	res, err := parseLimitResult([]interface{}{int64(1), int64(59), int64(60)}, 60)
	require.NoError(t, err)
	assert.Equal(t, &RateLimitResult{Allowed: true, Remaining: 59, ResetIn: time.Minute, Limit: 60}, res)

	res, err = parseLimitResult([]interface{}{int64(0), int64(0), int64(12)}, 60)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 12*time.Second, res.ResetIn)

	_, err = parseLimitResult("OK", 60)
	assert.Error(t, err)
	_, err = parseLimitResult([]interface{}{"1", int64(0), int64(0)}, 60)
	assert.Error(t, err)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "ratelimit:7:messages", MessageKey(7))
	assert.Equal(t, "ratelimit:10.0.0.1:connect", ConnectKey("10.0.0.1"))
}

func TestNewClientAddress(t *testing.T) {
	client := NewClient(config.RedisConfig{Host: "cache", Port: "6380", DB: 2})
	defer client.Close()
	assert.Equal(t, "cache:6380", client.Options().Addr)
	assert.Equal(t, 2, client.Options().DB)
}
