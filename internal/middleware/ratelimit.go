package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"

	rediskey "order_assistant/pkg/redis"
)

// eventHead 事件 body 里中间件关心的字段。
type eventHead struct {
	UpdateID int64  `json:"update_id"`
	UserID   int64  `json:"user_id"`
	Text     string `json:"text"`
}

// Limiter 按 key 的窗口限流。
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Deduper 按 update_id 去重；Release 撤销未成功处理的标记。
type Deduper interface {
	FirstSeen(ctx context.Context, updateID int64) (bool, error)
	Release(ctx context.Context, updateID int64) error
}

// RedisRateLimit Redis 分布式限流（Lua 原子操作 + 按 UserID）。
func RedisRateLimit(rdb *rd.Client, limit int, window time.Duration) gin.HandlerFunc {
	return RateLimit(rediskey.KeyRateLimiter{RDB: rdb, Limit: limit, Window: window})
}

// RateLimit 只限制自由文本：每条文本都会触发一次模型调用，按钮和订单事件不受影响。
// 必须挂在 UpdateDedup 之前，被限流的事件不能留下去重标记。
func RateLimit(l Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		head, err := peekEvent(c)
		if err != nil {
			// body 不是合法 JSON，交给 handler 返回 400
			c.Next()
			return
		}
		if strings.TrimSpace(head.Text) == "" {
			c.Next()
			return
		}

		// 限流 key：按 user_id（如果解析成功）或 IP（降级）
		key := rediskey.RateLimitIPKey(c.ClientIP())
		if head.UserID > 0 {
			key = rediskey.RateLimitKey(head.UserID)
		}

		ok, err := l.Allow(c.Request.Context(), key)
		if err != nil {
			// Redis 出错时放行（降级策略）
			slog.Warn("rate limit check failed", "key", key, "err", err)
			c.Next()
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code": 429,
				"msg":  "too many messages, slow down",
			})
			return
		}
		c.Next()
	}
}

// RedisUpdateDedup 基于 Redis SETNX 的去重。
func RedisUpdateDedup(rdb *rd.Client, ttl time.Duration) gin.HandlerFunc {
	return UpdateDedup(rediskey.UpdateDeduper{RDB: rdb, TTL: ttl})
}

// UpdateDedup 同一个 update_id 只成功处理一次，重投的事件直接回 duplicate。
// 下游没有返回 2xx 时撤销标记，客户端可以用同一个 update_id 重试。
func UpdateDedup(d Deduper) gin.HandlerFunc {
	return func(c *gin.Context) {
		head, err := peekEvent(c)
		if err != nil || head.UpdateID <= 0 {
			c.Next()
			return
		}
		first, err := d.FirstSeen(c.Request.Context(), head.UpdateID)
		if err != nil {
			slog.Warn("update dedup failed", "update_id", head.UpdateID, "err", err)
			c.Next()
			return
		}
		if !first {
			c.AbortWithStatusJSON(http.StatusOK, gin.H{
				"code": 0,
				"data": gin.H{"update_id": head.UpdateID, "duplicate": true},
			})
			return
		}

		c.Next()

		if status := c.Writer.Status(); status < 200 || status >= 300 {
			// 请求 ctx 可能已取消，撤销标记不能依赖它
			ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), time.Second)
			defer cancel()
			if err := d.Release(ctx, head.UpdateID); err != nil {
				slog.Warn("release update marker", "update_id", head.UpdateID, "status", status, "err", err)
			}
		}
	}
}

// peekEvent 从请求 body 中解析事件头（不消耗 body，可重复读）
func peekEvent(c *gin.Context) (eventHead, error) {
	bodyBytes, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return eventHead{}, err
	}

	// 重置 body，让后续 handler 能继续读
	c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

	var head eventHead
	if err := json.Unmarshal(bodyBytes, &head); err != nil {
		return eventHead{}, err
	}
	return head, nil
}
