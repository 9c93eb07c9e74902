package flow

import (
	"github.com/pkg/errors"

	"order_assistant/internal/model"
)

// Orders 状态机依赖的订单存储能力。
type Orders interface {
	Get(orderID string) (model.Order, bool)
	SetStatus(orderID string, status model.OrderStatus) error
	ClearActiveIfMatches(userID int64, orderID string) bool
}

// Result 一次回调的处理结果。
type Result struct {
	View  View
	Order model.Order
	// Paid 仅在本次调用把订单从 pending 推进到 paid 时为 true。
	Paid bool
}

// Machine 订单生命周期状态机。只有 confirm 会落状态，其余动作都是菜单导航，
// 重复点击总是安全的。
type Machine struct {
	orders Orders
}

func NewMachine(orders Orders) *Machine {
	return &Machine{orders: orders}
}

// Apply 按动作推进订单。userID 为点击按钮的用户，非订单所有者视为订单不存在。
func (m *Machine) Apply(userID int64, a Action) (Result, error) {
	if a.Kind == ActionCancel {
		return Result{View: cancelledView()}, nil
	}

	o, ok := m.orders.Get(a.OrderID)
	if !ok || o.UserID != userID {
		return Result{}, errors.WithMessagef(model.ErrUnknownOrder, "order %s (user %d)", a.OrderID, userID)
	}

	res := Result{Order: o}
	switch a.Kind {
	case ActionPay:
		res.View = paymentMethodsView(o.ID)
	case ActionProcessCard, ActionProcessInvoice, ActionProcessCash:
		if o.Status != model.OrderPending {
			res.View = alreadyPaidView(o.ID)
			break
		}
		res.View = processView(a.Kind, o)
	case ActionConfirm:
		return m.confirm(o)
	case ActionDelivery:
		res.View = deliveryOptionsView(o.ID)
	case ActionAsk:
		res.View = askView()
	case ActionBack:
		res.View = backView(o.ID)
	default:
		return Result{}, errors.WithMessagef(model.ErrMalformedAction, "unhandled action %d", a.Kind)
	}
	return res, nil
}

// confirm 重复确认（传输层重投、双击）不报错，直接再渲染成功页。
func (m *Machine) confirm(o model.Order) (Result, error) {
	res := Result{Order: o, View: paymentSuccessView(o.ID)}
	if o.Status != model.OrderPending {
		return res, nil
	}
	err := m.orders.SetStatus(o.ID, model.OrderPaid)
	switch {
	case err == nil:
		res.Paid = true
		res.Order.Status = model.OrderPaid
	case errors.Is(err, model.ErrInvalidTransition):
		// 并发确认中的落败方：订单已被另一请求置为 paid。
		res.Order.Status = model.OrderPaid
	default:
		return Result{}, err
	}
	m.orders.ClearActiveIfMatches(o.UserID, o.ID)
	return res, nil
}

func processView(kind ActionKind, o model.Order) View {
	switch kind {
	case ActionProcessCard:
		return cardPaymentView(o)
	case ActionProcessInvoice:
		return invoiceView(o)
	default:
		return cashOnDeliveryView(o.ID)
	}
}
