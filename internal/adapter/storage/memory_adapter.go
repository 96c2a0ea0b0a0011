package storage

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

var errTxDone = errors.New("transaction already finished")

// MemoryAdapter keeps the catalog, carts and orders in process. Writers are
// serialized through a single-slot semaphore, which a transaction holds from
// Begin until Commit or Rollback, so a checkout sees the same isolation it would
// get from row locks.
type MemoryAdapter struct {
	writer chan struct{}

	mu         sync.RWMutex
	products   map[string]domain.Product
	carts      map[string]domain.Cart // by cart id
	cartByUser map[string]string
	orders     map[string]domain.Order

	now func() time.Time
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		writer:     make(chan struct{}, 1),
		products:   make(map[string]domain.Product),
		carts:      make(map[string]domain.Cart),
		cartByUser: make(map[string]string),
		orders:     make(map[string]domain.Order),
		now:        time.Now,
	}
}

func (m *MemoryAdapter) acquire(ctx context.Context) error {
	select {
	case m.writer <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MemoryAdapter) release() { <-m.writer }

// write runs fn holding the writer slot and the data lock.
func (m *MemoryAdapter) write(ctx context.Context, fn func() error) error {
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.release()

	m.mu.Lock()
	defer m.mu.Unlock()
	return fn()
}

// Catalog

func (m *MemoryAdapter) GetProduct(_ context.Context, id string) (domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.products[id]
	if !ok {
		return domain.Product{}, domain.NewNotFound("product", id)
	}
	return p, nil
}

func (m *MemoryAdapter) ListProducts(_ context.Context, category string) ([]domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Product, 0, len(m.products))
	for _, p := range m.products {
		if category != "" && p.Category != category {
			continue
		}
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b domain.Product) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (m *MemoryAdapter) CreateProduct(ctx context.Context, product domain.Product) error {
	return m.write(ctx, func() error {
		if _, ok := m.products[product.ID]; ok {
			return fmt.Errorf("product %q exists: %w", product.ID, domain.ErrConflict)
		}
		product.Version = 1
		m.products[product.ID] = product
		return nil
	})
}

func (m *MemoryAdapter) UpdateProduct(ctx context.Context, product domain.Product) error {
	return m.write(ctx, func() error {
		current, ok := m.products[product.ID]
		if !ok {
			return domain.NewNotFound("product", product.ID)
		}
		if current.Version != product.Version {
			return fmt.Errorf("product %q at version %d, not %d: %w",
				product.ID, current.Version, product.Version, domain.ErrConflict)
		}
		product.CreatedAt = current.CreatedAt
		product.Version = current.Version + 1
		m.products[product.ID] = product
		return nil
	})
}

// DeleteProduct removes a product that no order line references, along with
// any cart lines still holding it.
func (m *MemoryAdapter) DeleteProduct(ctx context.Context, id string) error {
	return m.write(ctx, func() error {
		if _, ok := m.products[id]; !ok {
			return domain.NewNotFound("product", id)
		}
		for _, o := range m.orders {
			if slices.ContainsFunc(o.Lines, func(l domain.OrderLine) bool { return l.ProductID == id }) {
				return fmt.Errorf("product %q is referenced by order %q: %w", id, o.ID, domain.ErrConflict)
			}
		}
		delete(m.products, id)
		for cartID, cart := range m.carts {
			if !slices.ContainsFunc(cart.Lines, func(l domain.CartLine) bool { return l.ProductID == id }) {
				continue
			}
			cart = cloneCart(cart)
			cart.Lines = slices.DeleteFunc(cart.Lines, func(l domain.CartLine) bool { return l.ProductID == id })
			m.carts[cartID] = cart
		}
		return nil
	})
}

// Carts

func (m *MemoryAdapter) GetCart(_ context.Context, userID string) (domain.Cart, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.cartByUser[userID]
	if !ok {
		return domain.Cart{}, domain.NewNotFound("cart", userID)
	}
	return cloneCart(m.carts[id]), nil
}

func (m *MemoryAdapter) GetOrCreateCart(ctx context.Context, userID string) (domain.Cart, error) {
	var cart domain.Cart
	err := m.write(ctx, func() error {
		if id, ok := m.cartByUser[userID]; ok {
			cart = cloneCart(m.carts[id])
			return nil
		}
		now := m.now().UTC()
		cart = domain.Cart{ID: uuid.NewString(), UserID: userID, CreatedAt: now, UpdatedAt: now}
		m.carts[cart.ID] = cart
		m.cartByUser[userID] = cart.ID
		return nil
	})
	return cart, err
}

func (m *MemoryAdapter) AddLine(ctx context.Context, cartID, productID string, quantity int) error {
	return m.write(ctx, func() error {
		cart, ok := m.carts[cartID]
		if !ok {
			return domain.NewNotFound("cart", cartID)
		}
		lines := slices.Clone(cart.Lines)
		i := slices.IndexFunc(lines, func(l domain.CartLine) bool { return l.ProductID == productID })
		if i >= 0 {
			lines[i].Quantity += quantity
		} else {
			lines = append(lines, domain.CartLine{CartID: cartID, ProductID: productID, Quantity: quantity})
		}
		cart.Lines = lines
		cart.UpdatedAt = m.now().UTC()
		m.carts[cartID] = cart
		return nil
	})
}

func (m *MemoryAdapter) SetLineQuantity(ctx context.Context, cartID, productID string, quantity int) error {
	return m.write(ctx, func() error {
		cart, ok := m.carts[cartID]
		if !ok {
			return domain.NewNotFound("cart", cartID)
		}
		lines := slices.Clone(cart.Lines)
		i := slices.IndexFunc(lines, func(l domain.CartLine) bool { return l.ProductID == productID })
		if i < 0 {
			return domain.NewNotFound("cart line", productID)
		}
		lines[i].Quantity = quantity
		cart.Lines = lines
		cart.UpdatedAt = m.now().UTC()
		m.carts[cartID] = cart
		return nil
	})
}

func (m *MemoryAdapter) RemoveLine(ctx context.Context, cartID, productID string) error {
	return m.write(ctx, func() error {
		cart, ok := m.carts[cartID]
		if !ok {
			return domain.NewNotFound("cart", cartID)
		}
		n := len(cart.Lines)
		cart.Lines = slices.DeleteFunc(slices.Clone(cart.Lines), func(l domain.CartLine) bool { return l.ProductID == productID })
		if len(cart.Lines) == n {
			return domain.NewNotFound("cart line", productID)
		}
		cart.UpdatedAt = m.now().UTC()
		m.carts[cartID] = cart
		return nil
	})
}

func (m *MemoryAdapter) ClearCart(ctx context.Context, cartID string) error {
	return m.write(ctx, func() error {
		m.clearCart(cartID)
		return nil
	})
}

func (m *MemoryAdapter) clearCart(cartID string) {
	cart, ok := m.carts[cartID]
	if !ok {
		return
	}
	cart.Lines = nil
	cart.UpdatedAt = m.now().UTC()
	m.carts[cartID] = cart
}

// Orders

func (m *MemoryAdapter) GetOrder(_ context.Context, id string) (domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.orders[id]
	if !ok || o.IsDeleted() {
		return domain.Order{}, domain.NewNotFound("order", id)
	}
	return cloneOrder(o), nil
}

func (m *MemoryAdapter) ListOrders(_ context.Context, filter port.OrderFilter) ([]domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Order, 0)
	for _, o := range m.orders {
		if filter.UserID != "" && o.UserID != filter.UserID {
			continue
		}
		if o.IsDeleted() && !filter.IncludeDeleted {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	slices.SortFunc(out, func(a, b domain.Order) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(b.ID, a.ID))
	})
	return out, nil
}

func (m *MemoryAdapter) UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus, at time.Time) error {
	return m.write(ctx, func() error {
		o, ok := m.orders[id]
		if !ok || o.IsDeleted() {
			return domain.NewNotFound("order", id)
		}
		if o.Status != from {
			return fmt.Errorf("order %s is %s, expected %s: %w", id, o.Status, from, domain.ErrConflict)
		}
		o.Status = to
		o.UpdatedAt = at
		m.orders[id] = o
		return nil
	})
}

func (m *MemoryAdapter) SoftDelete(ctx context.Context, id string, at time.Time) error {
	return m.write(ctx, func() error {
		o, ok := m.orders[id]
		if !ok || o.IsDeleted() {
			return domain.NewNotFound("order", id)
		}
		o.DeletedAt = &at
		o.UpdatedAt = at
		m.orders[id] = o
		return nil
	})
}

// Unit of work

func (m *MemoryAdapter) Begin(ctx context.Context) (port.Tx, error) {
	if err := m.acquire(ctx); err != nil {
		return nil, err
	}
	return &memoryTx{m: m, decrements: make(map[string]int)}, nil
}

// memoryTx stages its writes and applies them on Commit.
type memoryTx struct {
	m          *MemoryAdapter
	decrements map[string]int
	orders     []domain.Order
	clears     []string
	done       bool
}

func (tx *memoryTx) Stock() port.StockLedger  { return tx }
func (tx *memoryTx) Orders() port.OrderWriter { return tx }
func (tx *memoryTx) Carts() port.CartWriter   { return tx }

func (tx *memoryTx) LockProduct(_ context.Context, id string) (domain.Product, error) {
	if tx.done {
		return domain.Product{}, errTxDone
	}
	tx.m.mu.RLock()
	defer tx.m.mu.RUnlock()

	p, ok := tx.m.products[id]
	if !ok {
		return domain.Product{}, domain.NewNotFound("product", id)
	}
	p.Stock -= tx.decrements[id]
	return p, nil
}

func (tx *memoryTx) DecrementStock(ctx context.Context, id string, quantity int) error {
	p, err := tx.LockProduct(ctx, id)
	if err != nil {
		return err
	}
	if p.Stock < quantity {
		return &domain.InsufficientStockError{ProductID: id, Requested: quantity, Available: p.Stock}
	}
	tx.decrements[id] += quantity
	return nil
}

func (tx *memoryTx) CreateOrder(_ context.Context, order domain.Order) error {
	if tx.done {
		return errTxDone
	}
	tx.m.mu.RLock()
	_, exists := tx.m.orders[order.ID]
	tx.m.mu.RUnlock()
	if exists {
		return fmt.Errorf("order %q exists: %w", order.ID, domain.ErrConflict)
	}
	tx.orders = append(tx.orders, cloneOrder(order))
	return nil
}

func (tx *memoryTx) LockCart(_ context.Context, userID string) (domain.Cart, error) {
	if tx.done {
		return domain.Cart{}, errTxDone
	}
	tx.m.mu.RLock()
	defer tx.m.mu.RUnlock()

	id, ok := tx.m.cartByUser[userID]
	if !ok {
		return domain.Cart{}, domain.NewNotFound("cart", userID)
	}
	return cloneCart(tx.m.carts[id]), nil
}

func (tx *memoryTx) ClearCart(_ context.Context, cartID string) error {
	if tx.done {
		return errTxDone
	}
	tx.clears = append(tx.clears, cartID)
	return nil
}

func (tx *memoryTx) Commit() error {
	if tx.done {
		return errTxDone
	}
	tx.done = true
	defer tx.m.release()

	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()

	for id, n := range tx.decrements {
		p := tx.m.products[id]
		p.Stock -= n
		p.Version++
		p.UpdatedAt = tx.m.now().UTC()
		tx.m.products[id] = p
	}
	for _, o := range tx.orders {
		tx.m.orders[o.ID] = o
	}
	for _, id := range tx.clears {
		tx.m.clearCart(id)
	}
	return nil
}

func (tx *memoryTx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true
	tx.m.release()
	return nil
}

func cloneCart(c domain.Cart) domain.Cart {
	c.Lines = slices.Clone(c.Lines)
	return c
}

func cloneOrder(o domain.Order) domain.Order {
	o.Lines = slices.Clone(o.Lines)
	if o.DeletedAt != nil {
		at := *o.DeletedAt
		o.DeletedAt = &at
	}
	return o
}

// MemoryIdempotency is an in-process IdempotencyStore.
type MemoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]string
}

func NewMemoryIdempotency() *MemoryIdempotency {
	return &MemoryIdempotency{keys: make(map[string]string)}
}

func (s *MemoryIdempotency) Reserve(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if orderID, ok := s.keys[key]; ok {
		return orderID, false, nil
	}
	s.keys[key] = ""
	return "", true, nil
}

func (s *MemoryIdempotency) Complete(_ context.Context, key, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key] = orderID
	return nil
}

func (s *MemoryIdempotency) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
	return nil
}
