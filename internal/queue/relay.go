package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// Publisher 事件下游（Kafka Producer）。
type Publisher interface {
	Publish(ctx context.Context, e OrderEvent) error
}

// Relay 将 Redis Stream 中的订单事件异步转发到 Kafka。
// 语义：发布成功后才 ACK，失败则保留等待重试。
type Relay struct {
	rdb       *rd.Client
	publisher Publisher

	stream   string
	group    string
	consumer string
}

func NewRelay(rdb *rd.Client, publisher Publisher, stream, group, consumer string) *Relay {
	return &Relay{
		rdb:       rdb,
		publisher: publisher,
		stream:    stream,
		group:     group,
		consumer:  consumer,
	}
}

func (r *Relay) Run(ctx context.Context) {
	if err := r.ensureGroup(ctx); err != nil {
		slog.Error("relay ensure group", "stream", r.stream, "err", err)
		return
	}

	for {
		if ctx.Err() != nil {
			return
		}

		// 先处理本消费者遗留的 pending，再读新消息。
		msgs, err := r.readGroup(ctx, "0", 0)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			slog.Warn("relay read pending", "err", err)
			time.Sleep(300 * time.Millisecond)
			continue
		}
		if len(msgs) == 0 {
			msgs, err = r.readGroup(ctx, ">", 2*time.Second)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, context.Canceled) {
					return
				}
				slog.Warn("relay read new", "err", err)
				time.Sleep(300 * time.Millisecond)
				continue
			}
		}

		for _, xm := range msgs {
			if err := r.processOne(ctx, xm); err != nil {
				slog.Warn("relay process message", "id", xm.ID, "err", err)
				time.Sleep(200 * time.Millisecond)
				break
			}
		}
	}
}

func (r *Relay) ensureGroup(ctx context.Context) error {
	err := r.rdb.XGroupCreateMkStream(ctx, r.stream, r.group, "0").Err()
	if err == nil || strings.Contains(err.Error(), "BUSYGROUP") {
		return nil
	}
	return err
}

func (r *Relay) readGroup(ctx context.Context, streamID string, block time.Duration) ([]rd.XMessage, error) {
	streams, err := r.rdb.XReadGroup(ctx, &rd.XReadGroupArgs{
		Group:    r.group,
		Consumer: r.consumer,
		Streams:  []string{r.stream, streamID},
		Count:    16,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]rd.XMessage, 0, 16)
	for _, s := range streams {
		out = append(out, s.Messages...)
	}
	return out, nil
}

func (r *Relay) processOne(ctx context.Context, xm rd.XMessage) error {
	e, err := parseOrderEvent(xm.Values)
	if err != nil {
		// 脏消息直接 ACK 丢弃，避免阻塞队列。
		slog.Warn("relay drop malformed event", "id", xm.ID, "err", err)
		if ackErr := r.ackAndDelete(ctx, xm.ID); ackErr != nil {
			return fmt.Errorf("parse failed: %v, ack failed: %w", err, ackErr)
		}
		return nil
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.publisher.Publish(pubCtx, e); err != nil {
		return err
	}
	return r.ackAndDelete(ctx, xm.ID)
}

func (r *Relay) ackAndDelete(ctx context.Context, id string) error {
	pipe := r.rdb.TxPipeline()
	pipe.XAck(ctx, r.stream, r.group, id)
	pipe.XDel(ctx, r.stream, id)
	_, err := pipe.Exec(ctx)
	return err
}

func parseOrderEvent(values map[string]interface{}) (OrderEvent, error) {
	var (
		e   OrderEvent
		err error
		s   string
	)
	if e.EventID, err = getStreamString(values, "event_id"); err != nil {
		return OrderEvent{}, err
	}
	if s, err = getStreamString(values, "type"); err != nil {
		return OrderEvent{}, err
	}
	e.Type = OrderEventType(s)
	if e.OrderID, err = getStreamString(values, "order_id"); err != nil {
		return OrderEvent{}, err
	}
	if e.Status, err = getStreamString(values, "status"); err != nil {
		return OrderEvent{}, err
	}
	// items 可以为空串，缺失也按空处理。
	e.Items, _ = getStreamString(values, "items")

	if e.UserID, err = getStreamInt(values, "user_id"); err != nil {
		return OrderEvent{}, err
	}
	if e.Total, err = getStreamInt(values, "total"); err != nil {
		return OrderEvent{}, err
	}
	if e.OccurredAt, err = getStreamInt(values, "occurred_at"); err != nil {
		return OrderEvent{}, err
	}
	count, err := getStreamInt(values, "item_count")
	if err != nil {
		return OrderEvent{}, err
	}
	e.ItemCount = int(count)

	if err := e.Validate(); err != nil {
		return OrderEvent{}, err
	}
	return e, nil
}

func getStreamInt(values map[string]interface{}, key string) (int64, error) {
	s, err := getStreamString(values, key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", key, s)
	}
	return n, nil
}

func getStreamString(values map[string]interface{}, key string) (string, error) {
	v, ok := values[key]
	if !ok {
		return "", fmt.Errorf("missing field %s", key)
	}
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case float64:
		return strconv.FormatInt(int64(x), 10), nil
	default:
		return "", fmt.Errorf("unsupported field type %s: %T", key, v)
	}
}
