package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"order_assistant/internal/model"
)

// Consumer 消费订单事件并写入归档表 order_records。
type Consumer struct {
	r  *kafka.Reader
	db *gorm.DB
}

func NewConsumer(brokers []string, topic, groupID string, db *gorm.DB) *Consumer {
	return &Consumer{
		r: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1e3,
			MaxBytes: 1e6,
		}),
		db: db,
	}
}

func (c *Consumer) Close() error { return c.r.Close() }

func (c *Consumer) Run(ctx context.Context) {
	for {
		m, err := c.r.ReadMessage(ctx)
		if err != nil {
			return // ctx cancel / 连接断开等
		}

		var e OrderEvent
		if err := json.Unmarshal(m.Value, &e); err != nil {
			slog.Warn("consumer unmarshal", "offset", m.Offset, "err", err)
			continue
		}
		if err := c.Apply(ctx, e); err != nil {
			slog.Error("consumer apply", "order_id", e.OrderID, "event_id", e.EventID, "err", err)
		}
	}
}

// Apply 幂等写入归档：
// - created 重复投递直接忽略，也不会把已支付记录改回 pending
// - paid 即使 created 丢失也能补出完整记录
func (c *Consumer) Apply(ctx context.Context, e OrderEvent) error {
	if err := e.Validate(); err != nil {
		return err
	}
	rec := model.OrderRecord{
		OrderNo:     e.OrderID,
		UserID:      e.UserID,
		Total:       e.Total,
		ItemCount:   e.ItemCount,
		Items:       e.Items,
		Status:      e.Status,
		LastEventID: e.EventID,
	}

	db := c.db.WithContext(ctx)
	switch e.Type {
	case OrderCreated:
		return db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_no"}},
			DoNothing: true,
		}).Create(&rec).Error
	case OrderPaid:
		paidAt := time.UnixMilli(e.OccurredAt)
		rec.PaidAt = &paidAt
		rec.Status = string(model.OrderPaid)
		return db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_no"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "paid_at", "last_event_id", "updated_at"}),
		}).Create(&rec).Error
	}
	return nil
}
