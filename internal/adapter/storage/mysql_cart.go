package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/storefront/internal/core/domain"
)

func getCart(ctx context.Context, q querier, userID string, forUpdate bool) (domain.Cart, error) {
	query := `SELECT id, user_id, created_at, updated_at FROM carts WHERE user_id = ?`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var c domain.Cart
	err := q.QueryRowContext(ctx, query, userID).Scan(&c.ID, &c.UserID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Cart{}, domain.NewNotFound("cart", userID)
	}
	if err != nil {
		return domain.Cart{}, fmt.Errorf("query cart: %w", err)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT cart_id, product_id, quantity FROM cart_items
		WHERE cart_id = ? ORDER BY product_id`, c.ID)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("query cart items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l domain.CartLine
		if err := rows.Scan(&l.CartID, &l.ProductID, &l.Quantity); err != nil {
			return domain.Cart{}, fmt.Errorf("scan cart item: %w", err)
		}
		c.Lines = append(c.Lines, l)
	}
	return c, rows.Err()
}

func (m *MySQLAdapter) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	return getCart(ctx, m.db, userID, false)
}

func (m *MySQLAdapter) GetOrCreateCart(ctx context.Context, userID string) (domain.Cart, error) {
	now := time.Now().UTC()
	_, err := m.db.ExecContext(ctx, `
		INSERT IGNORE INTO carts (id, user_id, created_at, updated_at)
		VALUES (?, ?, ?, ?)`,
		uuid.NewString(), userID, now, now,
	)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("insert cart: %w", err)
	}
	return m.GetCart(ctx, userID)
}

func (m *MySQLAdapter) AddLine(ctx context.Context, cartID, productID string, quantity int) error {
	if err := m.touchCart(ctx, cartID); err != nil {
		return err
	}
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO cart_items (cart_id, product_id, quantity) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE quantity = quantity + VALUES(quantity)`,
		cartID, productID, quantity,
	)
	if err != nil {
		return fmt.Errorf("upsert cart item: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) SetLineQuantity(ctx context.Context, cartID, productID string, quantity int) error {
	if err := m.touchCart(ctx, cartID); err != nil {
		return err
	}
	result, err := m.db.ExecContext(ctx, `
		UPDATE cart_items SET quantity = ? WHERE cart_id = ? AND product_id = ?`,
		quantity, cartID, productID,
	)
	if err != nil {
		return fmt.Errorf("update cart item: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		var n int
		err := m.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM cart_items WHERE cart_id = ? AND product_id = ?`,
			cartID, productID,
		).Scan(&n)
		if err != nil {
			return fmt.Errorf("query cart item: %w", err)
		}
		if n == 0 {
			return domain.NewNotFound("cart line", productID)
		}
	}
	return nil
}

func (m *MySQLAdapter) RemoveLine(ctx context.Context, cartID, productID string) error {
	result, err := m.db.ExecContext(ctx, `
		DELETE FROM cart_items WHERE cart_id = ? AND product_id = ?`, cartID, productID)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.NewNotFound("cart line", productID)
	}
	return m.touchCart(ctx, cartID)
}

func (m *MySQLAdapter) ClearCart(ctx context.Context, cartID string) error {
	return clearCart(ctx, m.db, cartID)
}

func clearCart(ctx context.Context, q querier, cartID string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = ?`, cartID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	if _, err := q.ExecContext(ctx, `UPDATE carts SET updated_at = ? WHERE id = ?`, time.Now().UTC(), cartID); err != nil {
		return fmt.Errorf("touch cart: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) touchCart(ctx context.Context, cartID string) error {
	result, err := m.db.ExecContext(ctx, `UPDATE carts SET updated_at = ? WHERE id = ?`, time.Now().UTC(), cartID)
	if err != nil {
		return fmt.Errorf("touch cart: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.NewNotFound("cart", cartID)
	}
	return nil
}
