package redis

import "fmt"

// RateLimitKey 按用户的消息限流窗口。
func RateLimitKey(userID int64) string {
	return fmt.Sprintf("assistant:rate_limit:user:%d", userID)
}

// RateLimitIPKey 无法识别用户时按 IP 降级限流。
func RateLimitIPKey(ip string) string {
	return fmt.Sprintf("assistant:rate_limit:ip:%s", ip)
}

// UpdateSeenKey 标记传输层 update 是否已处理过（回调重投去重）。
func UpdateSeenKey(updateID int64) string {
	return fmt.Sprintf("assistant:update:seen:%d", updateID)
}
