package assistant

import "strings"

// Kind 入站事件分类。
type Kind int

const (
	KindUnknown Kind = iota
	KindCommand
	KindOrderPayload
	KindText
	KindCallback
)

func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindOrderPayload:
		return "order_payload"
	case KindText:
		return "text"
	case KindCallback:
		return "callback"
	default:
		return "unknown"
	}
}

// 固定命令。
const (
	CommandStart = "start"
	CommandHelp  = "help"
	CommandCart  = "cart"
	CommandOrder = "order"
)

// Update 与传输层无关的入站事件。
type Update struct {
	ID           int64 // 传输层 update id，用于去重；0 表示未知
	UserID       int64
	ChatID       int64
	MessageID    int // 回调所在消息，用于原地编辑
	DisplayName  string
	Handle       string
	Text         string
	WebAppData   string
	CallbackID   string
	CallbackData string
}

// Classify 只看事件形状，不做业务判断。
func Classify(u Update) Kind {
	switch {
	case u.UserID == 0:
		return KindUnknown
	case u.CallbackData != "":
		return KindCallback
	case u.WebAppData != "":
		return KindOrderPayload
	case strings.HasPrefix(u.Text, "/"):
		if _, ok := ParseCommand(u.Text); ok {
			return KindCommand
		}
		return KindUnknown
	case strings.TrimSpace(u.Text) != "":
		return KindText
	default:
		return KindUnknown
	}
}

// ParseCommand 解析 "/start"、"/order@shop_bot args" 这类命令。
func ParseCommand(text string) (string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	fields := strings.Fields(text[1:])
	if len(fields) == 0 || strings.HasPrefix(text[1:], " ") {
		return "", false
	}
	name, _, _ := strings.Cut(fields[0], "@")
	name = strings.ToLower(name)
	switch name {
	case CommandStart, CommandHelp, CommandCart, CommandOrder:
		return name, true
	}
	return "", false
}

// CommandMention 命令里 @ 后的机器人名，没有则为空。
func CommandMention(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	fields := strings.Fields(text[1:])
	if len(fields) == 0 {
		return ""
	}
	_, mention, _ := strings.Cut(fields[0], "@")
	return mention
}
