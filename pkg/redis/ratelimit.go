package redis

import (
	"context"
	"fmt"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// luaRateLimit：滑动窗口限流（原子操作）
// KEYS[1]=限流key，ARGV[1]=当前时间戳，ARGV[2]=窗口开始时间戳，ARGV[3]=窗口秒数，
// ARGV[4]=成员，ARGV[5]=上限；超限返回 -1
const luaRateLimit = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local windowStart = tonumber(ARGV[2])
local windowSec = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '0', windowStart)
local count = redis.call('ZCARD', key)
if count < tonumber(ARGV[5]) then
  redis.call('ZADD', key, now, member)
  redis.call('EXPIRE', key, windowSec)
  return count + 1
end
return -1
`

// Allow 判断 key 在窗口内是否还有额度。
func Allow(ctx context.Context, rdb *rd.Client, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now()
	windowSec := int64(window.Seconds())
	if windowSec <= 0 {
		windowSec = 1
	}
	member := fmt.Sprintf("%d-%d", now.Unix(), now.UnixNano())
	res, err := rdb.Eval(ctx, luaRateLimit, []string{key},
		now.Unix(), now.Unix()-windowSec, windowSec, member, limit).Int()
	if err != nil {
		return false, err
	}
	return res >= 0, nil
}

// UserRateLimiter 按用户限流，供 Telegram 传输层使用。
type UserRateLimiter struct {
	RDB    *rd.Client
	Limit  int
	Window time.Duration
}

func (l UserRateLimiter) Allow(ctx context.Context, userID int64) (bool, error) {
	return Allow(ctx, l.RDB, RateLimitKey(userID), l.Limit, l.Window)
}

// KeyRateLimiter 按任意 key 限流，供 HTTP 中间件使用（user 或 IP）。
type KeyRateLimiter struct {
	RDB    *rd.Client
	Limit  int
	Window time.Duration
}

func (l KeyRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return Allow(ctx, l.RDB, key, l.Limit, l.Window)
}
