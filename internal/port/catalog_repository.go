package port

import (
	"context"

	"github.com/rl1809/storefront/internal/core/domain"
)

type CatalogRepository interface {
	// GetProduct returns the committed product, or a NotFoundError
	GetProduct(ctx context.Context, id string) (domain.Product, error)

	// ListProducts lists products, optionally filtered by category
	ListProducts(ctx context.Context, category string) ([]domain.Product, error)

	CreateProduct(ctx context.Context, product domain.Product) error

	// UpdateProduct overwrites name, description, price, stock and category.
	// It fails with ErrConflict unless the stored row is still at product.Version.
	UpdateProduct(ctx context.Context, product domain.Product) error

	// DeleteProduct fails with ErrConflict while any order line references the product
	DeleteProduct(ctx context.Context, id string) error
}

// StockLedger is the catalog view available inside a unit of work.
type StockLedger interface {
	// LockProduct reads the current product row and holds it until the tx ends
	LockProduct(ctx context.Context, id string) (domain.Product, error)

	// DecrementStock lowers stock, failing with InsufficientStockError if it would go negative
	DecrementStock(ctx context.Context, id string, quantity int) error
}
