package queue

import (
	"context"

	rd "github.com/redis/go-redis/v9"
)

// Outbox 把订单事件原子写入 Redis Stream，Relay 异步转发到 Kafka。
type Outbox struct {
	rdb    *rd.Client
	stream string
	maxLen int64
}

func NewOutbox(rdb *rd.Client, stream string) *Outbox {
	return &Outbox{rdb: rdb, stream: stream, maxLen: 100000}
}

// PublishOrderEvent 写入一条事件。Stream 近似截断，避免 Relay 长时间不可用时无限增长。
func (o *Outbox) PublishOrderEvent(ctx context.Context, e OrderEvent) error {
	if err := e.Validate(); err != nil {
		return err
	}
	return o.rdb.XAdd(ctx, &rd.XAddArgs{
		Stream: o.stream,
		MaxLen: o.maxLen,
		Approx: true,
		Values: e.Values(),
	}).Err()
}
