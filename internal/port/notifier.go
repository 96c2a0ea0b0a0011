package port

import (
	"context"

	"github.com/rl1809/storefront/internal/core/domain"
)

type Notifier interface {
	// SendOrderConfirmation renders and dispatches the confirmation for a committed order
	SendOrderConfirmation(ctx context.Context, email string, order domain.Order) error
}
