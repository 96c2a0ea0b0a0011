package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

type mysqlTx struct {
	tx   *sql.Tx
	done bool
}

func (t *mysqlTx) Stock() port.StockLedger  { return t }
func (t *mysqlTx) Orders() port.OrderWriter { return t }
func (t *mysqlTx) Carts() port.CartWriter   { return t }

func (t *mysqlTx) LockProduct(ctx context.Context, id string) (domain.Product, error) {
	return getProduct(ctx, t.tx, id, true)
}

func (t *mysqlTx) DecrementStock(ctx context.Context, id string, quantity int) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - ?, version = version + 1, updated_at = UTC_TIMESTAMP(6)
		WHERE id = ? AND stock >= ?`,
		quantity, id, quantity,
	)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		p, err := getProduct(ctx, t.tx, id, false)
		if err != nil {
			return err
		}
		return &domain.InsufficientStockError{ProductID: id, Requested: quantity, Available: p.Stock}
	}
	return nil
}

func (t *mysqlTx) CreateOrder(ctx context.Context, order domain.Order) error {
	return createOrder(ctx, t.tx, order)
}

func (t *mysqlTx) LockCart(ctx context.Context, userID string) (domain.Cart, error) {
	return getCart(ctx, t.tx, userID, true)
}

func (t *mysqlTx) ClearCart(ctx context.Context, cartID string) error {
	return clearCart(ctx, t.tx, cartID)
}

func (t *mysqlTx) Commit() error {
	t.done = true
	return t.tx.Commit()
}

func (t *mysqlTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}
