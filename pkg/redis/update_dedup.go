package redis

import (
	"context"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// luaMarkOnce 通过 SETNX 保证同一个 update 只被处理一次。
const luaMarkOnce = `
local key = KEYS[1]
local ttlSec = tonumber(ARGV[1])
if redis.call('SETNX', key, '1') == 1 then
  redis.call('EXPIRE', key, ttlSec)
  return 1
end
return 0
`

// MarkUpdateOnce 首次看到返回 true，重投返回 false。
func MarkUpdateOnce(ctx context.Context, rdb *rd.Client, updateID int64, ttl time.Duration) (bool, error) {
	ttlSec := int64(ttl / time.Second)
	if ttlSec <= 0 {
		ttlSec = 1
	}
	n, err := rdb.Eval(ctx, luaMarkOnce, []string{UpdateSeenKey(updateID)}, ttlSec).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// UpdateDeduper 传输层 update 去重。
type UpdateDeduper struct {
	RDB *rd.Client
	TTL time.Duration
}

func (d UpdateDeduper) FirstSeen(ctx context.Context, updateID int64) (bool, error) {
	return MarkUpdateOnce(ctx, d.RDB, updateID, d.TTL)
}

// Release 处理失败（限流、5xx）时撤销标记，让重试能再次进入。
func (d UpdateDeduper) Release(ctx context.Context, updateID int64) error {
	return d.RDB.Del(ctx, UpdateSeenKey(updateID)).Err()
}
