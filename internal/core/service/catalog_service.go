package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

type ProductInput struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	Category    string
	// Version is the product version the edit was based on. Zero means the
	// version read at the start of Update.
	Version int
}

type CatalogService struct {
	log     *slog.Logger
	catalog port.CatalogRepository
	now     func() time.Time
}

func NewCatalogService(log *slog.Logger, catalog port.CatalogRepository) *CatalogService {
	return &CatalogService{log: log, catalog: catalog, now: time.Now}
}

func (s *CatalogService) Get(ctx context.Context, id string) (domain.Product, error) {
	return s.catalog.GetProduct(ctx, id)
}

func (s *CatalogService) List(ctx context.Context, category string) ([]domain.Product, error) {
	return s.catalog.ListProducts(ctx, category)
}

func (s *CatalogService) Create(ctx context.Context, caller domain.Identity, in ProductInput) (domain.Product, error) {
	if !caller.IsAdmin() {
		return domain.Product{}, domain.ErrForbidden
	}

	now := s.now().UTC()
	p := domain.Product{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		Stock:       in.Stock,
		Category:    in.Category,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := p.Validate(); err != nil {
		return domain.Product{}, err
	}
	if err := s.catalog.CreateProduct(ctx, p); err != nil {
		return domain.Product{}, err
	}
	s.log.Info("product created", "product_id", p.ID, "by", caller.UserID)
	return p, nil
}

// Update replaces the editable fields of a product. Existing orders keep the
// prices they were placed at. The write only lands if no checkout or other
// edit has touched the product since the version it was based on; otherwise
// it fails with ErrConflict and the caller must re-read.
func (s *CatalogService) Update(ctx context.Context, caller domain.Identity, id string, in ProductInput) (domain.Product, error) {
	if !caller.IsAdmin() {
		return domain.Product{}, domain.ErrForbidden
	}

	p, err := s.catalog.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	if in.Version != 0 && in.Version != p.Version {
		return domain.Product{}, fmt.Errorf("product %q is at version %d, edit was based on %d: %w",
			id, p.Version, in.Version, domain.ErrConflict)
	}
	p.Name = in.Name
	p.Description = in.Description
	p.Price = in.Price
	p.Stock = in.Stock
	p.Category = in.Category
	p.UpdatedAt = s.now().UTC()
	if err := p.Validate(); err != nil {
		return domain.Product{}, err
	}

	if err := s.catalog.UpdateProduct(ctx, p); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			s.log.Warn("product update lost a race", "product_id", p.ID, "version", p.Version)
		}
		return domain.Product{}, err
	}
	p.Version++
	s.log.Info("product updated", "product_id", p.ID, "price", p.Price.StringFixed(domain.PriceScale), "stock", p.Stock, "version", p.Version, "by", caller.UserID)
	return p, nil
}

// Delete removes a product. Products that appear on any order, deleted
// orders included, are kept and the call fails with ErrConflict.
func (s *CatalogService) Delete(ctx context.Context, caller domain.Identity, id string) error {
	if !caller.IsAdmin() {
		return domain.ErrForbidden
	}
	if err := s.catalog.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.log.Info("product deleted", "product_id", id, "by", caller.UserID)
	return nil
}
