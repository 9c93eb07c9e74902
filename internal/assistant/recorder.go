package assistant

import (
	"context"
	"sync"

	"order_assistant/internal/model"
)

// Rendered 一条出站渲染指令。
type Rendered struct {
	Op        string         `json:"op"` // send | edit
	ChatID    int64          `json:"chat_id"`
	MessageID int            `json:"message_id,omitempty"`
	Text      string         `json:"text"`
	Keyboard  model.Keyboard `json:"keyboard,omitempty"`
}

// Recorder 把渲染指令收集起来，供 HTTP 传输层回包和测试使用。
type Recorder struct {
	mu     sync.Mutex
	out    []Rendered
	typing int
	acked  []string
}

func (r *Recorder) RenderText(_ context.Context, chatID int64, text string, kb model.Keyboard) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.out = append(r.out, Rendered{Op: "send", ChatID: chatID, Text: text, Keyboard: kb})
	return nil
}

func (r *Recorder) EditMessage(_ context.Context, chatID int64, messageID int, text string, kb model.Keyboard) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.out = append(r.out, Rendered{Op: "edit", ChatID: chatID, MessageID: messageID, Text: text, Keyboard: kb})
	return nil
}

func (r *Recorder) NotifyTyping(context.Context, int64) error {
	r.mu.Lock()
	r.typing++
	r.mu.Unlock()
	return nil
}

func (r *Recorder) AckCallback(_ context.Context, callbackID string) error {
	r.mu.Lock()
	r.acked = append(r.acked, callbackID)
	r.mu.Unlock()
	return nil
}

// Replies 已渲染内容的副本。
func (r *Recorder) Replies() []Rendered {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Rendered(nil), r.out...)
}

// Last 最后一条渲染内容。
func (r *Recorder) Last() (Rendered, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.out) == 0 {
		return Rendered{}, false
	}
	return r.out[len(r.out)-1], true
}
