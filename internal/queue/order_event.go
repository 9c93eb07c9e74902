package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"order_assistant/internal/model"
)

// OrderEventType 订单事件类型。
type OrderEventType string

const (
	OrderCreated OrderEventType = "order_created"
	OrderPaid    OrderEventType = "order_paid"
)

// OrderEvent 订单生命周期事件：先写 Redis Stream，再由 Relay 转发 Kafka。
type OrderEvent struct {
	EventID    string         `json:"event_id"`
	Type       OrderEventType `json:"type"`
	OrderID    string         `json:"order_id"`
	UserID     int64          `json:"user_id"`
	Total      int64          `json:"total"` // 分
	Items      string         `json:"items"` // 订单行 JSON
	ItemCount  int            `json:"item_count"`
	Status     string         `json:"status"`
	OccurredAt int64          `json:"occurred_at"` // unix 毫秒
}

// NewOrderEvent 从订单快照生成事件，event_id 作为下游幂等标识。
func NewOrderEvent(t OrderEventType, o model.Order, at time.Time) OrderEvent {
	items, _ := json.Marshal(o.Items)
	return OrderEvent{
		EventID:    uuid.New().String(),
		Type:       t,
		OrderID:    o.ID,
		UserID:     o.UserID,
		Total:      int64(o.Total),
		Items:      string(items),
		ItemCount:  len(o.Items),
		Status:     string(o.Status),
		OccurredAt: at.UnixMilli(),
	}
}

// Validate 做最小字段校验，防止消费者处理脏消息。
func (e OrderEvent) Validate() error {
	if e.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	if e.Type != OrderCreated && e.Type != OrderPaid {
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.OrderID == "" {
		return fmt.Errorf("order_id is required")
	}
	if e.UserID == 0 {
		return fmt.Errorf("user_id is required")
	}
	if e.Total < 0 {
		return fmt.Errorf("total must be >= 0")
	}
	return nil
}

// Values 平铺为 Stream 字段。
func (e OrderEvent) Values() map[string]any {
	return map[string]any{
		"event_id":    e.EventID,
		"type":        string(e.Type),
		"order_id":    e.OrderID,
		"user_id":     e.UserID,
		"total":       e.Total,
		"items":       e.Items,
		"item_count":  e.ItemCount,
		"status":      e.Status,
		"occurred_at": e.OccurredAt,
	}
}
