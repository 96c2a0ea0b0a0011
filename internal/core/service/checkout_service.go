package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

const defaultNotifyTimeout = 5 * time.Second

// Recorder receives checkout outcomes for metrics.
type Recorder interface {
	CheckoutCompleted(outcome string)
	NotificationFailed()
}

type nopRecorder struct{}

func (nopRecorder) CheckoutCompleted(string) {}
func (nopRecorder) NotificationFailed()      {}

type CheckoutRequest struct {
	UserID           string
	Email            string
	ShippingAddress  string
	PaymentReference *string
	IdempotencyKey   string
}

type CheckoutResult struct {
	Order    domain.Order
	Warning  string // set when the order committed but the confirmation was not sent
	Replayed bool   // order returned from a completed idempotency key
}

type CheckoutService struct {
	log           *slog.Logger
	orders        port.OrderRepository
	uow           port.UnitOfWork
	notifier      port.Notifier
	idem          port.IdempotencyStore
	recorder      Recorder
	tracer        trace.Tracer
	notifyTimeout time.Duration
	now           func() time.Time
	newID         func() string
}

type CheckoutOption func(*CheckoutService)

func WithIdempotency(store port.IdempotencyStore) CheckoutOption {
	return func(s *CheckoutService) { s.idem = store }
}

func WithRecorder(r Recorder) CheckoutOption {
	return func(s *CheckoutService) { s.recorder = r }
}

func WithNotifyTimeout(d time.Duration) CheckoutOption {
	return func(s *CheckoutService) { s.notifyTimeout = d }
}

func WithClock(now func() time.Time) CheckoutOption {
	return func(s *CheckoutService) { s.now = now }
}

func WithIDGenerator(newID func() string) CheckoutOption {
	return func(s *CheckoutService) { s.newID = newID }
}

func NewCheckoutService(
	log *slog.Logger,
	orders port.OrderRepository,
	uow port.UnitOfWork,
	notifier port.Notifier,
	opts ...CheckoutOption,
) *CheckoutService {
	s := &CheckoutService{
		log:           log,
		orders:        orders,
		uow:           uow,
		notifier:      notifier,
		recorder:      nopRecorder{},
		tracer:        otel.Tracer("checkout-service"),
		notifyTimeout: defaultNotifyTimeout,
		now:           time.Now,
		newID:         uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Checkout turns the user's cart into a pending order. The order, its line
// snapshots, the stock decrements and the cart clear commit together or not at
// all. The confirmation is sent after commit and can only produce a warning.
func (s *CheckoutService) Checkout(ctx context.Context, req CheckoutRequest) (res CheckoutResult, err error) {
	ctx, span := s.tracer.Start(ctx, "Checkout", trace.WithAttributes(attribute.String("user_id", req.UserID)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		s.recorder.CheckoutCompleted(checkoutOutcome(err))
	}()

	if req.IdempotencyKey != "" && s.idem != nil {
		key := idempotencyKey(req.UserID, req.IdempotencyKey)
		var (
			orderID  string
			reserved bool
		)
		orderID, reserved, err = s.idem.Reserve(ctx, key)
		if err != nil {
			return CheckoutResult{}, &domain.TransactionError{Op: "reserve idempotency key", Err: err}
		}
		if !reserved {
			return s.replay(ctx, orderID)
		}
		defer func() { s.settleKey(ctx, key, res.Order.ID, err) }()
	}

	order, err := s.placeOrder(ctx, req)
	if err != nil {
		return CheckoutResult{}, err
	}
	span.SetAttributes(attribute.String("order_id", order.ID))

	res = CheckoutResult{Order: order}
	if nerr := s.notify(ctx, req.Email, order); nerr != nil {
		res.Warning = nerr.Error()
	}
	return res, nil
}

func (s *CheckoutService) placeOrder(ctx context.Context, req CheckoutRequest) (domain.Order, error) {
	tx, err := s.uow.Begin(ctx)
	if err != nil {
		return domain.Order{}, &domain.TransactionError{Op: "begin tx", Err: err}
	}
	defer tx.Rollback()

	cart, err := tx.Carts().LockCart(ctx, req.UserID)
	if err != nil {
		return domain.Order{}, persistenceErr("read cart", err)
	}
	if cart.IsEmpty() {
		return domain.Order{}, domain.ErrEmptyCart
	}

	// lock rows in a fixed order so concurrent checkouts cannot deadlock
	lines := slices.Clone(cart.Lines)
	slices.SortFunc(lines, func(a, b domain.CartLine) int { return cmp.Compare(a.ProductID, b.ProductID) })

	snapshot := make([]domain.OrderLine, 0, len(lines))
	for _, line := range lines {
		product, err := tx.Stock().LockProduct(ctx, line.ProductID)
		if err != nil {
			return domain.Order{}, persistenceErr("lock product", err)
		}
		if product.Stock < line.Quantity {
			return domain.Order{}, &domain.InsufficientStockError{
				ProductID: product.ID,
				Requested: line.Quantity,
				Available: product.Stock,
			}
		}
		snapshot = append(snapshot, domain.OrderLine{
			ProductID: product.ID,
			Quantity:  line.Quantity,
			UnitPrice: product.Price,
		})
	}

	order := domain.NewOrder(s.newID(), req.UserID, snapshot, req.ShippingAddress, req.PaymentReference, s.now().UTC())

	if err := tx.Orders().CreateOrder(ctx, order); err != nil {
		return domain.Order{}, persistenceErr("create order", err)
	}
	for _, line := range order.Lines {
		if err := tx.Stock().DecrementStock(ctx, line.ProductID, line.Quantity); err != nil {
			return domain.Order{}, persistenceErr("decrement stock", err)
		}
	}
	if err := tx.Carts().ClearCart(ctx, cart.ID); err != nil {
		return domain.Order{}, persistenceErr("clear cart", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.Order{}, &domain.TransactionError{Op: opCommit, Err: err}
	}

	s.log.Info("order placed",
		"order_id", order.ID,
		"user_id", order.UserID,
		"total", order.TotalAmount.StringFixed(2),
		"lines", len(order.Lines),
	)
	return order, nil
}

func (s *CheckoutService) notify(ctx context.Context, email string, order domain.Order) (err error) {
	if s.notifier == nil {
		return nil
	}

	// the order is committed; a client disconnect must not cancel the confirmation
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notifier panic: %v", r)
		}
		if err != nil {
			err = &domain.NotificationError{OrderID: order.ID, Err: err}
			s.log.Warn("order confirmation failed", "order_id", order.ID, "err", err)
			s.recorder.NotificationFailed()
		}
	}()

	return s.notifier.SendOrderConfirmation(ctx, email, order)
}

func (s *CheckoutService) replay(ctx context.Context, orderID string) (CheckoutResult, error) {
	if orderID == "" {
		return CheckoutResult{}, domain.ErrDuplicateRequest
	}
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return CheckoutResult{}, persistenceErr("read replayed order", err)
	}
	s.log.Info("checkout replayed", "order_id", orderID, "user_id", order.UserID)
	return CheckoutResult{Order: order, Replayed: true}, nil
}

func (s *CheckoutService) settleKey(ctx context.Context, key, orderID string, checkoutErr error) {
	ctx = context.WithoutCancel(ctx)
	var txErr *domain.TransactionError
	if errors.As(checkoutErr, &txErr) && txErr.Op == opCommit {
		// The order may have been written; a retry must not place it again.
		s.log.Warn("commit outcome unknown, idempotency key stays reserved", "key", key, "err", checkoutErr)
		return
	}
	if checkoutErr != nil {
		if err := s.idem.Release(ctx, key); err != nil {
			s.log.Error("release idempotency key failed", "key", key, "err", err)
		}
		return
	}
	if err := s.idem.Complete(ctx, key, orderID); err != nil {
		s.log.Error("complete idempotency key failed", "key", key, "order_id", orderID, "err", err)
	}
}

// opCommit marks a TransactionError whose outcome is unknown to the caller.
const opCommit = "commit"

func idempotencyKey(userID, key string) string {
	return fmt.Sprintf("checkout:%s:%s", userID, key)
}

// persistenceErr keeps domain errors intact and wraps anything else as a
// TransactionError, since the store could not complete the operation.
func persistenceErr(op string, err error) error {
	if domain.IsDomainError(err) {
		return err
	}
	return &domain.TransactionError{Op: op, Err: err}
}

func checkoutOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrDuplicateRequest):
		return "duplicate"
	default:
		return "error"
	}
}
