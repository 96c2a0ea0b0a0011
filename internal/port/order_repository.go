package port

import (
	"context"
	"time"

	"github.com/rl1809/storefront/internal/core/domain"
)

type OrderFilter struct {
	UserID         string // empty means all users
	IncludeDeleted bool
}

type OrderRepository interface {
	// GetOrder returns a non-deleted order with its lines, or a NotFoundError
	GetOrder(ctx context.Context, id string) (domain.Order, error)

	// ListOrders returns orders newest first
	ListOrders(ctx context.Context, filter OrderFilter) ([]domain.Order, error)

	// UpdateStatus moves the order from one status to another, failing with ErrConflict
	// if the stored status is no longer from
	UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus, at time.Time) error

	// SoftDelete marks the order and its lines deleted
	SoftDelete(ctx context.Context, id string, at time.Time) error
}

// OrderWriter is the order ledger view available inside a unit of work.
type OrderWriter interface {
	// CreateOrder inserts the order row and its line snapshots
	CreateOrder(ctx context.Context, order domain.Order) error
}
