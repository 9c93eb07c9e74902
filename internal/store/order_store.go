package store

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"order_assistant/internal/model"
)

// OrderStore 订单表 + 活跃订单索引（userID -> orderID）。
// 锁内只做 map 读写，不做任何 I/O。
type OrderStore struct {
	mu     sync.RWMutex
	orders map[string]*model.Order
	active map[int64]string
	now    func() time.Time
}

func NewOrderStore() *OrderStore {
	return &OrderStore{
		orders: make(map[string]*model.Order),
		active: make(map[int64]string),
		now:    time.Now,
	}
}

// CreateOrder 以 pending 状态入库，并设为该用户的活跃订单（覆盖旧引用）。
// 旧订单仍可按 id 查询。校验失败时不写入任何状态。
func (s *OrderStore) CreateOrder(o model.Order) (string, error) {
	if err := o.Validate(); err != nil {
		return "", model.Because(model.ErrInvalidOrder, err)
	}

	rec := o.Clone()
	rec.Status = model.OrderPending
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.orders[rec.ID]; exists {
		return "", errors.WithMessagef(model.ErrInvalidOrder, "order %s already exists", rec.ID)
	}
	s.orders[rec.ID] = &rec
	s.active[rec.UserID] = rec.ID
	return rec.ID, nil
}

// Get 按订单号查询。
func (s *OrderStore) Get(orderID string) (model.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[orderID]
	if !ok {
		return model.Order{}, false
	}
	return o.Clone(), true
}

// GetActive 查询用户当前的活跃订单。
func (s *OrderStore) GetActive(userID int64) (model.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.active[userID]
	if !ok {
		return model.Order{}, false
	}
	o, ok := s.orders[id]
	if !ok {
		return model.Order{}, false
	}
	return o.Clone(), true
}

// SetStatus 仅允许 pending -> paid；其它迁移返回 ErrInvalidTransition 且不改状态。
func (s *OrderStore) SetStatus(orderID string, status model.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return errors.WithMessagef(model.ErrUnknownOrder, "order %s", orderID)
	}
	if !legalTransition(o.Status, status) {
		return errors.WithMessagef(model.ErrInvalidTransition, "order %s: %s -> %s", orderID, o.Status, status)
	}
	o.Status = status
	return nil
}

// ClearActiveIfMatches 只有活跃引用仍指向 orderID 时才删除，避免误删更新的订单。
func (s *OrderStore) ClearActiveIfMatches(userID int64, orderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active[userID] != orderID {
		return false
	}
	delete(s.active, userID)
	return true
}

func legalTransition(from, to model.OrderStatus) bool {
	return from == model.OrderPending && to == model.OrderPaid
}
