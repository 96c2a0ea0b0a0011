package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/core/domain"
)

func newCartService(t *testing.T) (*CartService, *storage.MemoryAdapter) {
	t.Helper()
	store := storage.NewMemoryAdapter()
	seedProduct(t, store, "A", "10.00", 5)
	seedProduct(t, store, "B", "3.50", 1)
	return NewCartService(discardLogger(), store, store), store
}

func TestCartService_AddItem(t *testing.T) {
	svc, _ := newCartService(t)
	ctx := context.Background()

	cart, err := svc.AddItem(ctx, "user-1", "A", 2)
	require.NoError(t, err)
	cart, err = svc.AddItem(ctx, "user-1", "B", 1)
	require.NoError(t, err)

	assert.Len(t, cart.Lines, 2)
	assert.True(t, cart.TotalPrice.Equal(decimal.RequireFromString("23.50")), "total %s", cart.TotalPrice)

	cart, err = svc.AddItem(ctx, "user-1", "A", 1)
	require.NoError(t, err)
	line, ok := cart.Line("A")
	require.True(t, ok)
	assert.Equal(t, 3, line.Quantity, "re-adding increments the line")
}

func TestCartService_AddItemValidation(t *testing.T) {
	svc, _ := newCartService(t)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "user-1", "A", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = svc.AddItem(ctx, "user-1", "ghost", 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.AddItem(ctx, "user-1", "B", 2)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	_, err = svc.AddItem(ctx, "user-1", "A", 4)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, "user-1", "A", 2)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock, "existing quantity counts against stock")
}

func TestCartService_AddItemDoesNotReserveStock(t *testing.T) {
	svc, store := newCartService(t)

	_, err := svc.AddItem(context.Background(), "user-1", "A", 5)
	require.NoError(t, err)
	assert.Equal(t, 5, stockOf(t, store, "A"))
}

func TestCartService_TotalFollowsCurrentPrice(t *testing.T) {
	svc, store := newCartService(t)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "user-1", "A", 2)
	require.NoError(t, err)

	a, _ := store.GetProduct(ctx, "A")
	a.Price = decimal.RequireFromString("12.00")
	require.NoError(t, store.UpdateProduct(ctx, a))

	cart, err := svc.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, cart.TotalPrice.Equal(decimal.RequireFromString("24.00")))
}

func TestCartService_UpdateAndRemove(t *testing.T) {
	svc, _ := newCartService(t)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "user-1", "A", 1)
	require.NoError(t, err)

	cart, err := svc.UpdateItem(ctx, "user-1", "A", 4)
	require.NoError(t, err)
	line, _ := cart.Line("A")
	assert.Equal(t, 4, line.Quantity)

	_, err = svc.UpdateItem(ctx, "user-1", "A", 6)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	_, err = svc.UpdateItem(ctx, "user-1", "B", 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	cart, err = svc.RemoveItem(ctx, "user-1", "A")
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())
	assert.True(t, cart.TotalPrice.IsZero())

	_, err = svc.RemoveItem(ctx, "user-1", "A")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCartService_Clear(t *testing.T) {
	svc, _ := newCartService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Clear(ctx, "user-1"), domain.ErrNotFound)

	_, err := svc.AddItem(ctx, "user-1", "A", 1)
	require.NoError(t, err)
	require.NoError(t, svc.Clear(ctx, "user-1"))

	cart, err := svc.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())
}
