package model

import (
	"time"

	"gorm.io/gorm"
)

// OrderRecord 订单归档：由 Kafka 消费者根据订单事件写入，只作查询副本。
type OrderRecord struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	OrderNo   string `gorm:"size:64;uniqueIndex;not null" json:"order_no"`
	UserID    int64  `gorm:"not null;index" json:"user_id"`
	Total     int64  `gorm:"not null" json:"total"` // 单位分
	ItemCount int    `gorm:"not null;default:0" json:"item_count"`
	Items     string `gorm:"type:text" json:"items"` // 订单行 JSON
	Status    string `gorm:"size:16;not null;index" json:"status"`
	// LastEventID 用于识别重复投递的事件。
	LastEventID string     `gorm:"size:64" json:"last_event_id"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
}

func (OrderRecord) TableName() string { return "order_records" }
