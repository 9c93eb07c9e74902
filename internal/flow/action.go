package flow

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"order_assistant/internal/model"
)

// ActionKind 回调按钮动作。
type ActionKind int

const (
	ActionPay ActionKind = iota + 1
	ActionProcessCard
	ActionProcessInvoice
	ActionProcessCash
	ActionConfirm
	ActionDelivery
	ActionAsk
	ActionBack
	ActionCancel
)

var actionNames = map[ActionKind]string{
	ActionPay:            "pay",
	ActionProcessCard:    "process_card",
	ActionProcessInvoice: "process_invoice",
	ActionProcessCash:    "process_cash",
	ActionConfirm:        "confirm",
	ActionDelivery:       "delivery",
	ActionAsk:            "ask",
	ActionBack:           "back",
	ActionCancel:         "cancel",
}

var actionsByName = func() map[string]ActionKind {
	m := make(map[string]ActionKind, len(actionNames))
	for k, name := range actionNames {
		m[name] = k
	}
	return m
}()

// tokenPattern 回调 token 语法：action[_subaction]_orderId。
var tokenPattern = regexp.MustCompile(`^[a-z]+(_[a-z]+)?_[A-Za-z0-9-]+$`)

func (k ActionKind) String() string {
	if name, ok := actionNames[k]; ok {
		return name
	}
	return "unknown"
}

// Action 解析后的回调动作，只在传输边界校验一次。
type Action struct {
	Kind    ActionKind
	OrderID string
}

// Token 编码为按钮 callback_data。
func (a Action) Token() string {
	return a.Kind.String() + "_" + a.OrderID
}

// Token 便捷构造。
func Token(kind ActionKind, orderID string) string {
	return Action{Kind: kind, OrderID: orderID}.Token()
}

// ParseAction 解析 callback token。订单号不含下划线，最后一个 "_" 之后即为订单号。
func ParseAction(token string) (Action, error) {
	if !tokenPattern.MatchString(token) {
		return Action{}, errors.WithMessagef(model.ErrMalformedAction, "token %q", token)
	}
	i := strings.LastIndexByte(token, '_')
	name, orderID := token[:i], token[i+1:]
	kind, ok := actionsByName[name]
	if !ok {
		return Action{}, errors.WithMessagef(model.ErrMalformedAction, "unknown action %q", name)
	}
	if len(orderID) > model.MaxOrderIDLen {
		return Action{}, errors.WithMessagef(model.ErrMalformedAction, "order id too long in %q", token)
	}
	return Action{Kind: kind, OrderID: orderID}, nil
}
