package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// OrderStatus 订单状态。取消、返回只是界面导航，不会落成状态。
type OrderStatus string

const (
	OrderPending OrderStatus = "pending"
	OrderPaid    OrderStatus = "paid"
)

// MaxOrderIDLen 保证回调 token 不超过 Telegram callback_data 的 64 字节上限。
const MaxOrderIDLen = 40

var orderIDPattern = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// ValidOrderID 订单号必须能原样嵌入按钮回调 token。
func ValidOrderID(id string) bool {
	return len(id) <= MaxOrderIDLen && orderIDPattern.MatchString(id)
}

// MaxQuantity 单行数量上限。
const MaxQuantity = 100_000

// OrderItem 订单行。
type OrderItem struct {
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice Amount `json:"price"`
}

// Subtotal 行小计。
func (it OrderItem) Subtotal() Amount { return it.UnitPrice * Amount(it.Quantity) }

// Order 一笔由 Web App 提交的订单，归属唯一用户。
type Order struct {
	ID        string
	UserID    int64
	UserName  string
	Items     []OrderItem
	Total     Amount
	Status    OrderStatus
	CreatedAt time.Time
}

// ItemsTotal 按订单行重新计算的合计。只对通过 CheckedItemsTotal 的订单有意义。
func (o Order) ItemsTotal() Amount {
	var sum Amount
	for _, it := range o.Items {
		sum += it.Subtotal()
	}
	return sum
}

// CheckedItemsTotal 带上限检查的合计：数量、单价、小计和合计超出范围时返回错误。
func (o Order) CheckedItemsTotal() (Amount, error) {
	var sum Amount
	for i, it := range o.Items {
		if it.Quantity <= 0 || it.Quantity > MaxQuantity {
			return 0, fmt.Errorf("item %d: quantity must be within [1, %d]", i, MaxQuantity)
		}
		if it.UnitPrice < 0 || it.UnitPrice > MaxAmount {
			return 0, fmt.Errorf("item %d: price must be within [0, %s]", i, MaxAmount)
		}
		sub := it.Subtotal()
		if sub > MaxAmount {
			return 0, fmt.Errorf("item %d: subtotal exceeds %s", i, MaxAmount)
		}
		sum += sub
		if sum > MaxAmount {
			return 0, fmt.Errorf("items total exceeds %s", MaxAmount)
		}
	}
	return sum, nil
}

// Clone 深拷贝，store 对外只暴露快照。
func (o Order) Clone() Order {
	out := o
	out.Items = append([]OrderItem(nil), o.Items...)
	return out
}

// Validate 做最小字段校验，任何一项不通过都不会落库。
func (o Order) Validate() error {
	if o.ID == "" {
		return fmt.Errorf("order id is required")
	}
	if !ValidOrderID(o.ID) {
		return fmt.Errorf("order id %q is not callback-safe", o.ID)
	}
	if o.UserID == 0 {
		return fmt.Errorf("user id is required")
	}
	if len(o.Items) == 0 {
		return fmt.Errorf("items must not be empty")
	}
	for i, it := range o.Items {
		if strings.TrimSpace(it.Name) == "" {
			return fmt.Errorf("item %d: name is required", i)
		}
	}
	if _, err := o.CheckedItemsTotal(); err != nil {
		return err
	}
	if o.Total < 0 || o.Total > MaxAmount {
		return fmt.Errorf("total must be within [0, %s]", MaxAmount)
	}
	return nil
}
