package model

import "time"

// Role 对话角色。
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message 一条对话消息（turn）。
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Profile 首次接触时从传输层带过来的用户信息，仅作展示。
type Profile struct {
	DisplayName string
	Handle      string
}

// UserSession 单个用户的对话状态，进程内存活。
type UserSession struct {
	UserID      int64
	DisplayName string
	Handle      string
	FirstSeenAt time.Time
	History     []Message
}

// CompletionParams 语言模型调用参数。
type CompletionParams struct {
	Temperature float64
	MaxTokens   int
}
