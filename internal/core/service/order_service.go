package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

type OrderService struct {
	log    *slog.Logger
	orders port.OrderRepository
	now    func() time.Time
}

func NewOrderService(log *slog.Logger, orders port.OrderRepository) *OrderService {
	return &OrderService{log: log, orders: orders, now: time.Now}
}

// History lists the caller's orders, newest first. Soft-deleted orders are hidden.
func (s *OrderService) History(ctx context.Context, userID string) ([]domain.Order, error) {
	return s.orders.ListOrders(ctx, port.OrderFilter{UserID: userID})
}

// Get returns an order to its owner or to an admin.
func (s *OrderService) Get(ctx context.Context, caller domain.Identity, orderID string) (domain.Order, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !caller.IsAdmin() && order.UserID != caller.UserID {
		return domain.Order{}, domain.ErrForbidden
	}
	return order, nil
}

func (s *OrderService) ListAll(ctx context.Context, caller domain.Identity, includeDeleted bool) ([]domain.Order, error) {
	if !caller.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	return s.orders.ListOrders(ctx, port.OrderFilter{IncludeDeleted: includeDeleted})
}

// UpdateStatus moves an order through its state machine. Admin only.
func (s *OrderService) UpdateStatus(ctx context.Context, caller domain.Identity, orderID, target string) (domain.Order, error) {
	if !caller.IsAdmin() {
		return domain.Order{}, domain.ErrForbidden
	}

	status, err := domain.ParseOrderStatus(target)
	if err != nil {
		return domain.Order{}, err
	}

	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !order.Status.CanTransitionTo(status) {
		return domain.Order{}, &domain.InvalidStatusError{From: order.Status, To: target}
	}

	now := s.now().UTC()
	if err := s.orders.UpdateStatus(ctx, order.ID, order.Status, status, now); err != nil {
		return domain.Order{}, err
	}

	s.log.Info("order status updated",
		"order_id", order.ID,
		"from", order.Status,
		"to", status,
		"by", caller.UserID,
	)
	order.Status = status
	order.UpdatedAt = now
	return order, nil
}

// Delete soft-deletes an order. The row stays for audit. Admin only.
func (s *OrderService) Delete(ctx context.Context, caller domain.Identity, orderID string) error {
	if !caller.IsAdmin() {
		return domain.ErrForbidden
	}
	if err := s.orders.SoftDelete(ctx, orderID, s.now().UTC()); err != nil {
		return err
	}
	s.log.Info("order deleted", "order_id", orderID, "by", caller.UserID)
	return nil
}
