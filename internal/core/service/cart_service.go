package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

type CartService struct {
	log     *slog.Logger
	carts   port.CartRepository
	catalog port.CatalogRepository
}

func NewCartService(log *slog.Logger, carts port.CartRepository, catalog port.CatalogRepository) *CartService {
	return &CartService{log: log, carts: carts, catalog: catalog}
}

// Get returns the user's cart with TotalPrice computed from current prices.
func (s *CartService) Get(ctx context.Context, userID string) (domain.Cart, error) {
	cart, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		return domain.Cart{}, err
	}
	return s.price(ctx, cart)
}

// AddItem adds quantity of a product, creating the cart on first use. Stock is
// checked but not reserved; it is only decremented at checkout.
func (s *CartService) AddItem(ctx context.Context, userID, productID string, quantity int) (domain.Cart, error) {
	if quantity < 1 {
		return domain.Cart{}, domain.ErrInvalidQuantity
	}

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return domain.Cart{}, err
	}

	cart, err := s.carts.GetOrCreateCart(ctx, userID)
	if err != nil {
		return domain.Cart{}, err
	}

	wanted := quantity
	if line, ok := cart.Line(productID); ok {
		wanted += line.Quantity
	}
	if product.Stock < wanted {
		return domain.Cart{}, &domain.InsufficientStockError{ProductID: productID, Requested: wanted, Available: product.Stock}
	}

	if err := s.carts.AddLine(ctx, cart.ID, productID, quantity); err != nil {
		return domain.Cart{}, err
	}
	return s.Get(ctx, userID)
}

func (s *CartService) UpdateItem(ctx context.Context, userID, productID string, quantity int) (domain.Cart, error) {
	if quantity < 1 {
		return domain.Cart{}, domain.ErrInvalidQuantity
	}

	cart, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		return domain.Cart{}, err
	}
	if _, ok := cart.Line(productID); !ok {
		return domain.Cart{}, domain.NewNotFound("cart line", productID)
	}

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return domain.Cart{}, err
	}
	if product.Stock < quantity {
		return domain.Cart{}, &domain.InsufficientStockError{ProductID: productID, Requested: quantity, Available: product.Stock}
	}

	if err := s.carts.SetLineQuantity(ctx, cart.ID, productID, quantity); err != nil {
		return domain.Cart{}, err
	}
	return s.Get(ctx, userID)
}

func (s *CartService) RemoveItem(ctx context.Context, userID, productID string) (domain.Cart, error) {
	cart, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		return domain.Cart{}, err
	}
	if _, ok := cart.Line(productID); !ok {
		return domain.Cart{}, domain.NewNotFound("cart line", productID)
	}
	if err := s.carts.RemoveLine(ctx, cart.ID, productID); err != nil {
		return domain.Cart{}, err
	}
	return s.Get(ctx, userID)
}

func (s *CartService) Clear(ctx context.Context, userID string) error {
	cart, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		return err
	}
	return s.carts.ClearCart(ctx, cart.ID)
}

func (s *CartService) price(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	total := decimal.Zero
	for _, line := range cart.Lines {
		product, err := s.catalog.GetProduct(ctx, line.ProductID)
		if errors.Is(err, domain.ErrNotFound) {
			s.log.Warn("cart references missing product", "cart_id", cart.ID, "product_id", line.ProductID)
			continue
		}
		if err != nil {
			return domain.Cart{}, err
		}
		total = total.Add(product.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	cart.TotalPrice = total
	return cart, nil
}
