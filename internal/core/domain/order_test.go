package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrder_FreezesTotal(t *testing.T) {
	lines := []OrderLine{
		{ProductID: "a", Quantity: 2, UnitPrice: decimal.RequireFromString("10.00")},
		{ProductID: "b", Quantity: 1, UnitPrice: decimal.RequireFromString("3.50")},
	}
	now := time.Date(2025, 3, 11, 12, 0, 0, 0, time.UTC)

	o := NewOrder("order-1", "user-1", lines, "1 Main St", nil, now)

	assert.True(t, o.TotalAmount.Equal(decimal.RequireFromString("23.50")), "total %s", o.TotalAmount)
	assert.Equal(t, OrderStatusPending, o.Status)
	require.Len(t, o.Lines, 2)
	for _, l := range o.Lines {
		assert.Equal(t, "order-1", l.OrderID)
	}

	// mutating the input slice afterwards must not leak into the order
	lines[0].UnitPrice = decimal.RequireFromString("99")
	assert.True(t, o.Lines[0].UnitPrice.Equal(decimal.RequireFromString("10.00")))
}

func TestParseOrderStatus(t *testing.T) {
	for _, s := range []string{"pending", "processing", "shipped", "delivered", "cancelled"} {
		got, err := ParseOrderStatus(s)
		require.NoError(t, err)
		assert.Equal(t, OrderStatus(s), got)
	}

	_, err := ParseOrderStatus("completed")
	assert.True(t, errors.Is(err, ErrInvalidStatus))
}

func TestOrderStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to OrderStatus
		want     bool
	}{
		{OrderStatusPending, OrderStatusProcessing, true},
		{OrderStatusPending, OrderStatusShipped, true},
		{OrderStatusProcessing, OrderStatusShipped, true},
		{OrderStatusShipped, OrderStatusDelivered, true},
		{OrderStatusShipped, OrderStatusCancelled, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusShipped, OrderStatusPending, false},
		{OrderStatusPending, OrderStatusPending, false},
		{OrderStatusDelivered, OrderStatusCancelled, false},
		{OrderStatusCancelled, OrderStatusPending, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestErrorTaxonomy(t *testing.T) {
	assert.True(t, errors.Is(NewNotFound("cart", "u1"), ErrNotFound))
	assert.True(t, errors.Is(&InsufficientStockError{ProductID: "p"}, ErrInsufficientStock))

	cause := errors.New("connection reset")
	txErr := &TransactionError{Op: "commit", Err: cause}
	assert.True(t, errors.Is(txErr, ErrTransaction))
	assert.True(t, errors.Is(txErr, cause))

	assert.True(t, IsDomainError(txErr))
	assert.False(t, IsDomainError(cause))
}
