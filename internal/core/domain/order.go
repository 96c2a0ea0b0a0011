package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// progression rank; cancelled sits outside the forward chain.
var statusRank = map[OrderStatus]int{
	OrderStatusPending:    0,
	OrderStatusProcessing: 1,
	OrderStatusShipped:    2,
	OrderStatusDelivered:  3,
}

// ParseOrderStatus validates s against the fixed set of order statuses.
func ParseOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(s)
	if status == OrderStatusCancelled {
		return status, nil
	}
	if _, ok := statusRank[status]; ok {
		return status, nil
	}
	return "", &InvalidStatusError{To: s}
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// CanTransitionTo reports whether an order in status s may move to target.
// Forward moves may skip steps; cancelled is reachable from any non-terminal status.
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if target == OrderStatusCancelled {
		return true
	}
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[target]
	if !ok {
		return false
	}
	return to > from
}

// OrderLine is a snapshot of a purchased product. UnitPrice is frozen at order creation.
type OrderLine struct {
	OrderID   string
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Order struct {
	ID               string
	UserID           string
	TotalAmount      decimal.Decimal
	Status           OrderStatus
	ShippingAddress  string
	PaymentReference *string
	Lines            []OrderLine
	CreatedAt        time.Time
	UpdatedAt        time.Time
	DeletedAt        *time.Time
}

func (o Order) IsDeleted() bool {
	return o.DeletedAt != nil
}

// NewOrder builds a pending order and computes its total once from the line snapshots.
func NewOrder(id, userID string, lines []OrderLine, shippingAddress string, paymentRef *string, now time.Time) Order {
	total := decimal.Zero
	snapshot := make([]OrderLine, 0, len(lines))
	for _, l := range lines {
		l.OrderID = id
		total = total.Add(l.Subtotal())
		snapshot = append(snapshot, l)
	}
	return Order{
		ID:               id,
		UserID:           userID,
		TotalAmount:      total,
		Status:           OrderStatusPending,
		ShippingAddress:  shippingAddress,
		PaymentReference: paymentRef,
		Lines:            snapshot,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}
