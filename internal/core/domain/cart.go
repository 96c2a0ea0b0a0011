package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type CartLine struct {
	CartID    string
	ProductID string
	Quantity  int
}

type Cart struct {
	ID         string
	UserID     string
	Lines      []CartLine
	TotalPrice decimal.Decimal // derived from current catalog prices
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (c Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// Line returns the line for productID, if present.
func (c Cart) Line(productID string) (CartLine, bool) {
	for _, l := range c.Lines {
		if l.ProductID == productID {
			return l, true
		}
	}
	return CartLine{}, false
}
