package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidStatus     = errors.New("invalid order status")
	ErrTransaction       = errors.New("transaction failed")
	ErrNotification      = errors.New("notification failed")

	ErrInvalidQuantity  = errors.New("quantity must be at least 1")
	ErrInvalidProduct   = errors.New("invalid product")
	ErrConflict         = errors.New("concurrent modification")
	ErrDuplicateRequest = errors.New("duplicate request")
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrForbidden        = errors.New("forbidden")
)

type NotFoundError struct {
	Entity string
	ID     string
}

func NewNotFound(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %q: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// InvalidStatusError covers both unknown target statuses (From empty)
// and transitions the order state machine forbids.
type InvalidStatusError struct {
	From OrderStatus
	To   string
}

func (e *InvalidStatusError) Error() string {
	if e.From == "" {
		return fmt.Sprintf("invalid order status %q", e.To)
	}
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}

func (e *InvalidStatusError) Is(target error) bool { return target == ErrInvalidStatus }

type TransactionError struct {
	Op  string
	Err error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransactionError) Is(target error) bool { return target == ErrTransaction }

func (e *TransactionError) Unwrap() error { return e.Err }

type NotificationError struct {
	OrderID string
	Err     error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("order %s confirmation not sent: %v", e.OrderID, e.Err)
}

func (e *NotificationError) Is(target error) bool { return target == ErrNotification }

func (e *NotificationError) Unwrap() error { return e.Err }

// IsDomainError reports whether err belongs to the checkout error taxonomy rather
// than being a raw persistence failure.
func IsDomainError(err error) bool {
	for _, target := range []error{
		ErrNotFound, ErrEmptyCart, ErrInsufficientStock, ErrInvalidStatus,
		ErrTransaction, ErrInvalidQuantity, ErrInvalidProduct, ErrConflict,
		ErrDuplicateRequest, ErrUnauthenticated, ErrForbidden,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
