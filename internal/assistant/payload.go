package assistant

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"order_assistant/internal/model"
)

// ActionNewOrder Web App 提交订单时的 action。
const ActionNewOrder = "new_order"

// TotalPolicy 订单总额与明细不一致时的处理方式。
type TotalPolicy string

const (
	// TotalAccept 记录告警，保留客户端提交的总额。
	TotalAccept TotalPolicy = "accept"
	// TotalReject 拒绝订单。
	TotalReject TotalPolicy = "reject"
	// TotalRecompute 以明细合计覆盖总额。
	TotalRecompute TotalPolicy = "recompute"
)

// ParseTotalPolicy 解析配置值。
func ParseTotalPolicy(s string) (TotalPolicy, error) {
	switch p := TotalPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case TotalAccept, TotalReject, TotalRecompute:
		return p, nil
	case "":
		return TotalAccept, nil
	}
	return "", fmt.Errorf("unknown total policy %q", s)
}

// orderID Web App 里订单号可能是数字也可能是字符串。
type orderID string

func (id *orderID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = orderID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("order id %s is not an integer", n)
	}
	*id = orderID(n.String())
	return nil
}

type webAppPayload struct {
	Action string          `json:"action"`
	Order  json.RawMessage `json:"order"`
}

type itemPayload struct {
	Name     string        `json:"name"`
	Quantity *int          `json:"quantity"`
	Price    *model.Amount `json:"price"`
}

type orderPayload struct {
	ID    orderID       `json:"id"`
	Items []itemPayload `json:"items"`
	Total *model.Amount `json:"total"`
}

// decodeAction 只取 action 字段，用于路由；缺少 action 视为格式错误。
func decodeAction(data string) (webAppPayload, error) {
	var p webAppPayload
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return webAppPayload{}, model.Because(model.ErrInvalidOrder, errors.WithMessage(err, "payload is not json"))
	}
	if strings.TrimSpace(p.Action) == "" {
		return webAppPayload{}, errors.WithMessage(model.ErrInvalidOrder, "action is missing")
	}
	return p, nil
}

// decodeOrder 把 new_order 负载转成订单；任何缺失字段都返回 ErrInvalidOrder，
// 不会产生半成品订单。
func decodeOrder(raw json.RawMessage, policy TotalPolicy) (model.Order, error) {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return model.Order{}, errors.WithMessage(model.ErrInvalidOrder, "order is missing")
	}
	var p orderPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return model.Order{}, model.Because(model.ErrInvalidOrder, err)
	}
	if len(p.Items) == 0 {
		return model.Order{}, errors.WithMessage(model.ErrInvalidOrder, "items are missing")
	}

	o := model.Order{ID: string(p.ID), Items: make([]model.OrderItem, 0, len(p.Items))}
	for i, it := range p.Items {
		if it.Quantity == nil || it.Price == nil {
			return model.Order{}, errors.WithMessagef(model.ErrInvalidOrder, "item %d: quantity and price are required", i)
		}
		o.Items = append(o.Items, model.OrderItem{
			Name:      strings.TrimSpace(it.Name),
			Quantity:  *it.Quantity,
			UnitPrice: *it.Price,
		})
	}

	sum, err := o.CheckedItemsTotal()
	if err != nil {
		return model.Order{}, model.Because(model.ErrInvalidOrder, err)
	}
	switch {
	case p.Total == nil && policy == TotalReject:
		return model.Order{}, errors.WithMessage(model.ErrInvalidOrder, "total is missing")
	case p.Total == nil:
		o.Total = sum
	default:
		o.Total = *p.Total
	}
	if o.Total != sum {
		switch policy {
		case TotalReject:
			return model.Order{}, errors.WithMessagef(model.ErrInvalidOrder, "total %s does not match items %s", o.Total, sum)
		case TotalRecompute:
			o.Total = sum
		}
	}
	return o, nil
}
