package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubNotifier struct {
	mu       sync.Mutex
	err      error
	panicMsg string
	sent     []domain.Order
	deadline bool
}

func (n *stubNotifier) SendOrderConfirmation(ctx context.Context, _ string, order domain.Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.panicMsg != "" {
		panic(n.panicMsg)
	}
	_, n.deadline = ctx.Deadline()
	n.sent = append(n.sent, order)
	return n.err
}

func (n *stubNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type stubRecorder struct {
	mu                  sync.Mutex
	outcomes            []string
	notificationFailure int
}

func (r *stubRecorder) CheckoutCompleted(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *stubRecorder) NotificationFailed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notificationFailure++
}

type checkoutFixture struct {
	store    *storage.MemoryAdapter
	notifier *stubNotifier
	svc      *CheckoutService
}

// newCheckoutFixture seeds product A (10.00, stock 5) and B (3.50, stock 1)
// and a cart for user-1 holding 2 A and 1 B.
func newCheckoutFixture(t *testing.T, opts ...CheckoutOption) *checkoutFixture {
	t.Helper()
	store := storage.NewMemoryAdapter()

	seedProduct(t, store, "A", "10.00", 5)
	seedProduct(t, store, "B", "3.50", 1)
	fillCart(t, store, "user-1", map[string]int{"A": 2, "B": 1})

	notifier := &stubNotifier{}
	svc := NewCheckoutService(discardLogger(), store, store, notifier, opts...)
	return &checkoutFixture{store: store, notifier: notifier, svc: svc}
}

func seedProduct(t *testing.T, store *storage.MemoryAdapter, id, price string, stock int) {
	t.Helper()
	require.NoError(t, store.CreateProduct(context.Background(), domain.Product{
		ID: id, Name: "product " + id, Price: decimal.RequireFromString(price), Stock: stock,
	}))
}

func fillCart(t *testing.T, store *storage.MemoryAdapter, userID string, lines map[string]int) {
	t.Helper()
	ctx := context.Background()
	cart, err := store.GetOrCreateCart(ctx, userID)
	require.NoError(t, err)
	for productID, qty := range lines {
		require.NoError(t, store.AddLine(ctx, cart.ID, productID, qty))
	}
}

func stockOf(t *testing.T, store *storage.MemoryAdapter, id string) int {
	t.Helper()
	p, err := store.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func TestCheckout_Success(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	res, err := f.svc.Checkout(ctx, CheckoutRequest{UserID: "user-1", Email: "u1@example.com", ShippingAddress: "1 Main St"})
	require.NoError(t, err)

	assert.True(t, res.Order.TotalAmount.Equal(decimal.RequireFromString("23.50")), "total %s", res.Order.TotalAmount)
	assert.Equal(t, domain.OrderStatusPending, res.Order.Status)
	assert.Len(t, res.Order.Lines, 2)
	assert.Empty(t, res.Warning)
	assert.False(t, res.Replayed)

	assert.Equal(t, 3, stockOf(t, f.store, "A"))
	assert.Equal(t, 0, stockOf(t, f.store, "B"))

	cart, err := f.store.GetCart(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())

	stored, err := f.store.GetOrder(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, "1 Main St", stored.ShippingAddress)

	assert.Equal(t, 1, f.notifier.count())
	assert.True(t, f.notifier.deadline, "notification runs under a bounded timeout")
}

func TestCheckout_InsufficientStockWritesNothing(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	b, _ := f.store.GetProduct(ctx, "B")
	b.Stock = 0
	require.NoError(t, f.store.UpdateProduct(ctx, b))

	_, err := f.svc.Checkout(ctx, CheckoutRequest{UserID: "user-1"})
	var stockErr *domain.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "B", stockErr.ProductID)
	assert.Equal(t, 1, stockErr.Requested)
	assert.Equal(t, 0, stockErr.Available)

	orders, err := f.store.ListOrders(ctx, port.OrderFilter{UserID: "user-1", IncludeDeleted: true})
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Equal(t, 5, stockOf(t, f.store, "A"))

	cart, _ := f.store.GetCart(ctx, "user-1")
	assert.Len(t, cart.Lines, 2, "cart untouched")
	assert.Zero(t, f.notifier.count())
}

func TestCheckout_SoldOutProduct(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	seedProduct(t, f.store, "C", "4.00", 0)
	fillCart(t, f.store, "user-2", map[string]int{"C": 1})

	_, err := f.svc.Checkout(ctx, CheckoutRequest{UserID: "user-2"})
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, 0, stockOf(t, f.store, "C"))

	orders, err := f.store.ListOrders(ctx, port.OrderFilter{UserID: "user-2"})
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestCheckout_EmptyCart(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	_, err := f.svc.Checkout(ctx, CheckoutRequest{UserID: "user-1"})
	require.NoError(t, err)

	// the cart was cleared by the first checkout, so every retry is rejected
	for i := 0; i < 2; i++ {
		_, err = f.svc.Checkout(ctx, CheckoutRequest{UserID: "user-1"})
		assert.ErrorIs(t, err, domain.ErrEmptyCart)
	}

	orders, _ := f.store.ListOrders(ctx, port.OrderFilter{UserID: "user-1"})
	assert.Len(t, orders, 1)
}

func TestCheckout_MissingCart(t *testing.T) {
	f := newCheckoutFixture(t)

	_, err := f.svc.Checkout(context.Background(), CheckoutRequest{UserID: "nobody"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCheckout_MissingProduct(t *testing.T) {
	f := newCheckoutFixture(t)
	fillCart(t, f.store, "user-1", map[string]int{"ghost": 1})

	_, err := f.svc.Checkout(context.Background(), CheckoutRequest{UserID: "user-1"})
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "product", nf.Entity)
	assert.Equal(t, 5, stockOf(t, f.store, "A"))
}

func TestCheckout_PricesAreFrozen(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	res, err := f.svc.Checkout(ctx, CheckoutRequest{UserID: "user-1"})
	require.NoError(t, err)

	a, _ := f.store.GetProduct(ctx, "A")
	a.Price = decimal.RequireFromString("99.00")
	require.NoError(t, f.store.UpdateProduct(ctx, a))

	stored, err := f.store.GetOrder(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.True(t, stored.TotalAmount.Equal(decimal.RequireFromString("23.50")))
	for _, l := range stored.Lines {
		if l.ProductID == "A" {
			assert.True(t, l.UnitPrice.Equal(decimal.RequireFromString("10.00")))
		}
	}
}

func TestCheckout_ConcurrentLastUnits(t *testing.T) {
	store := storage.NewMemoryAdapter()
	seedProduct(t, store, "hot", "1.00", 3)

	const buyers = 10
	for i := 0; i < buyers; i++ {
		fillCart(t, store, fmt.Sprintf("buyer-%d", i), map[string]int{"hot": 3})
	}
	svc := NewCheckoutService(discardLogger(), store, store, &stubNotifier{})

	var (
		wg         sync.WaitGroup
		successes  atomic.Int32
		outOfStock atomic.Int32
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Checkout(context.Background(), CheckoutRequest{UserID: fmt.Sprintf("buyer-%d", i)})
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				outOfStock.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, successes.Load())
	assert.EqualValues(t, buyers-1, outOfStock.Load())
	assert.Equal(t, 0, stockOf(t, store, "hot"))
}

func TestCheckout_ConcurrentSameCart(t *testing.T) {
	f := newCheckoutFixture(t)
	a, _ := f.store.GetProduct(context.Background(), "A")
	a.Stock = 100
	require.NoError(t, f.store.UpdateProduct(context.Background(), a))
	b, _ := f.store.GetProduct(context.Background(), "B")
	b.Stock = 100
	require.NoError(t, f.store.UpdateProduct(context.Background(), b))

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Checkout(context.Background(), CheckoutRequest{UserID: "user-1"}); err == nil {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, successes.Load(), "a cart is ordered once")
	assert.Equal(t, 98, stockOf(t, f.store, "A"))
}

func TestCheckout_NotificationFailureIsWarning(t *testing.T) {
	rec := &stubRecorder{}
	f := newCheckoutFixture(t, WithRecorder(rec))
	f.notifier.err = errors.New("smtp down")

	res, err := f.svc.Checkout(context.Background(), CheckoutRequest{UserID: "user-1"})
	require.NoError(t, err)
	assert.Contains(t, res.Warning, "smtp down")

	_, err = f.store.GetOrder(context.Background(), res.Order.ID)
	require.NoError(t, err, "order stays committed")
	assert.Equal(t, 1, rec.notificationFailure)
	assert.Equal(t, []string{"success"}, rec.outcomes)
}

func TestCheckout_NotifierPanicIsWarning(t *testing.T) {
	f := newCheckoutFixture(t)
	f.notifier.panicMsg = "template exploded"

	res, err := f.svc.Checkout(context.Background(), CheckoutRequest{UserID: "user-1"})
	require.NoError(t, err)
	assert.Contains(t, res.Warning, "template exploded")
	assert.Equal(t, 3, stockOf(t, f.store, "A"))
}

type failingUoW struct {
	port.UnitOfWork
	clearErr  error
	commitErr error
}

func (u failingUoW) Begin(ctx context.Context) (port.Tx, error) {
	tx, err := u.UnitOfWork.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &failingTx{Tx: tx, clearErr: u.clearErr, commitErr: u.commitErr}, nil
}

type failingTx struct {
	port.Tx
	clearErr  error
	commitErr error
}

func (t *failingTx) Carts() port.CartWriter {
	return failingCarts{CartWriter: t.Tx.Carts(), err: t.clearErr}
}

func (t *failingTx) Commit() error {
	if t.commitErr != nil {
		return t.commitErr
	}
	return t.Tx.Commit()
}

type failingCarts struct {
	port.CartWriter
	err error
}

func (c failingCarts) ClearCart(ctx context.Context, cartID string) error {
	if c.err != nil {
		return c.err
	}
	return c.CartWriter.ClearCart(ctx, cartID)
}

func TestCheckout_FailureRollsBackEverything(t *testing.T) {
	tests := []struct {
		name string
		uow  func(port.UnitOfWork) port.UnitOfWork
	}{
		{"clear cart fails", func(u port.UnitOfWork) port.UnitOfWork {
			return failingUoW{UnitOfWork: u, clearErr: errors.New("disk full")}
		}},
		{"commit fails", func(u port.UnitOfWork) port.UnitOfWork {
			return failingUoW{UnitOfWork: u, commitErr: errors.New("connection reset")}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCheckoutFixture(t)
			ctx := context.Background()
			svc := NewCheckoutService(discardLogger(), f.store, tt.uow(f.store), f.notifier)

			_, err := svc.Checkout(ctx, CheckoutRequest{UserID: "user-1"})
			assert.ErrorIs(t, err, domain.ErrTransaction)

			orders, _ := f.store.ListOrders(ctx, port.OrderFilter{IncludeDeleted: true})
			assert.Empty(t, orders)
			assert.Equal(t, 5, stockOf(t, f.store, "A"))
			assert.Equal(t, 1, stockOf(t, f.store, "B"))
			cart, _ := f.store.GetCart(ctx, "user-1")
			assert.Len(t, cart.Lines, 2)
			assert.Zero(t, f.notifier.count())
		})
	}
}

func TestCheckout_IdempotentReplay(t *testing.T) {
	idem := storage.NewMemoryIdempotency()
	f := newCheckoutFixture(t, WithIdempotency(idem))
	ctx := context.Background()
	req := CheckoutRequest{UserID: "user-1", IdempotencyKey: "key-1"}

	first, err := f.svc.Checkout(ctx, req)
	require.NoError(t, err)

	second, err := f.svc.Checkout(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Equal(t, 3, stockOf(t, f.store, "A"), "stock decremented once")
	assert.Equal(t, 1, f.notifier.count())
}

func TestCheckout_IdempotencyInFlight(t *testing.T) {
	idem := storage.NewMemoryIdempotency()
	f := newCheckoutFixture(t, WithIdempotency(idem))
	ctx := context.Background()

	_, _, err := idem.Reserve(ctx, idempotencyKey("user-1", "key-1"))
	require.NoError(t, err)

	_, err = f.svc.Checkout(ctx, CheckoutRequest{UserID: "user-1", IdempotencyKey: "key-1"})
	assert.ErrorIs(t, err, domain.ErrDuplicateRequest)
	assert.Equal(t, 5, stockOf(t, f.store, "A"))
}

func TestCheckout_FailedAttemptReleasesKey(t *testing.T) {
	idem := storage.NewMemoryIdempotency()
	f := newCheckoutFixture(t, WithIdempotency(idem))
	ctx := context.Background()
	req := CheckoutRequest{UserID: "user-1", IdempotencyKey: "key-1"}

	b, _ := f.store.GetProduct(ctx, "B")
	b.Stock = 0
	require.NoError(t, f.store.UpdateProduct(ctx, b))

	_, err := f.svc.Checkout(ctx, req)
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	b, _ = f.store.GetProduct(ctx, "B")
	b.Stock = 1
	require.NoError(t, f.store.UpdateProduct(ctx, b))

	res, err := f.svc.Checkout(ctx, req)
	require.NoError(t, err)
	assert.False(t, res.Replayed)
}

func TestCheckout_CommitFailureKeepsKeyReserved(t *testing.T) {
	idem := storage.NewMemoryIdempotency()
	f := newCheckoutFixture(t)
	ctx := context.Background()
	req := CheckoutRequest{UserID: "user-1", IdempotencyKey: "key-1"}

	// the commit outcome is unknown, so the order may exist
	broken := NewCheckoutService(discardLogger(), f.store,
		failingUoW{UnitOfWork: f.store, commitErr: errors.New("connection reset")},
		f.notifier, WithIdempotency(idem))
	_, err := broken.Checkout(ctx, req)
	require.ErrorIs(t, err, domain.ErrTransaction)

	healthy := NewCheckoutService(discardLogger(), f.store, f.store, f.notifier, WithIdempotency(idem))
	_, err = healthy.Checkout(ctx, req)
	assert.ErrorIs(t, err, domain.ErrDuplicateRequest)

	orders, _ := f.store.ListOrders(ctx, port.OrderFilter{IncludeDeleted: true})
	assert.Empty(t, orders)

	// a fresh key is still free to proceed
	res, err := healthy.Checkout(ctx, CheckoutRequest{UserID: "user-1", IdempotencyKey: "key-2"})
	require.NoError(t, err)
	assert.False(t, res.Replayed)
}

func TestCheckout_UsesClockAndIDGenerator(t *testing.T) {
	at := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	f := newCheckoutFixture(t,
		WithClock(func() time.Time { return at }),
		WithIDGenerator(func() string { return "order-fixed" }),
	)

	res, err := f.svc.Checkout(context.Background(), CheckoutRequest{UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, "order-fixed", res.Order.ID)
	assert.Equal(t, at, res.Order.CreatedAt)
}

func TestCheckoutOutcome(t *testing.T) {
	assert.Equal(t, "success", checkoutOutcome(nil))
	assert.Equal(t, "empty_cart", checkoutOutcome(domain.ErrEmptyCart))
	assert.Equal(t, "insufficient_stock", checkoutOutcome(&domain.InsufficientStockError{}))
	assert.Equal(t, "not_found", checkoutOutcome(domain.NewNotFound("cart", "u")))
	assert.Equal(t, "error", checkoutOutcome(&domain.TransactionError{Op: "commit", Err: errors.New("x")}))
}
