package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PriceScale is the number of decimal places a price may carry.
const PriceScale = 2

// maxPrice is the largest value a DECIMAL(10,2) price column holds.
var maxPrice = decimal.RequireFromString("99999999.99")

type Product struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	Category    string
	// Version increases on every write to the row, stock decrements included.
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks the invariants every stored product must hold.
func (p Product) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidProduct)
	}
	if p.Price.IsNegative() {
		return fmt.Errorf("%w: price must be non-negative", ErrInvalidProduct)
	}
	if !p.Price.Equal(p.Price.Truncate(PriceScale)) {
		return fmt.Errorf("%w: price must have at most %d decimal places", ErrInvalidProduct, PriceScale)
	}
	if p.Price.GreaterThan(maxPrice) {
		return fmt.Errorf("%w: price must not exceed %s", ErrInvalidProduct, maxPrice.StringFixed(PriceScale))
	}
	if p.Stock < 0 {
		return fmt.Errorf("%w: stock must be non-negative", ErrInvalidProduct)
	}
	return nil
}
