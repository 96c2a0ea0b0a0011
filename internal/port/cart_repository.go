package port

import (
	"context"

	"github.com/rl1809/storefront/internal/core/domain"
)

type CartRepository interface {
	// GetCart returns the user's cart with its lines, or a NotFoundError
	GetCart(ctx context.Context, userID string) (domain.Cart, error)

	// GetOrCreateCart returns the user's cart, creating an empty one if none exists
	GetOrCreateCart(ctx context.Context, userID string) (domain.Cart, error)

	// AddLine adds quantity to the (cart, product) line, creating it if absent
	AddLine(ctx context.Context, cartID, productID string, quantity int) error

	// SetLineQuantity replaces the quantity of an existing line
	SetLineQuantity(ctx context.Context, cartID, productID string, quantity int) error

	RemoveLine(ctx context.Context, cartID, productID string) error

	ClearCart(ctx context.Context, cartID string) error
}

// CartWriter is the cart view available inside a unit of work.
type CartWriter interface {
	// LockCart reads the user's cart and holds it until the tx ends, so two
	// checkouts of the same cart cannot both see its lines
	LockCart(ctx context.Context, userID string) (domain.Cart, error)

	ClearCart(ctx context.Context, cartID string) error
}
