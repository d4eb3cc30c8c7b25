package products

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"retail-cli/internal/apperr"
	"retail-cli/internal/database"
	"retail-cli/internal/models"
)

// lowStockScanLimit caps how many products LowStock inspects.
const lowStockScanLimit = 1000

// Service holds the product rules on top of the Repository.
type Service struct {
	repo *Repository
	log  *zap.Logger
}

func NewService(store database.Store, log *zap.Logger) *Service {
	return &Service{
		repo: NewRepository(store, log),
		log:  log,
	}
}

func (s *Service) Repository() *Repository {
	return s.repo
}

// Add validates and inserts a new product.
func (s *Service) Add(ctx context.Context, p NewProduct) (*models.Product, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.SKU = strings.TrimSpace(p.SKU)
	switch {
	case p.Name == "" || p.SKU == "":
		return nil, apperr.InvalidInput("Name and SKU are required")
	case !p.Price.GreaterThan(decimal.Zero):
		return nil, apperr.InvalidInput("Price must be greater than 0")
	case p.Stock < 0:
		return nil, apperr.InvalidInput("Stock must not be negative")
	}

	existing, err := s.repo.GetBySKU(ctx, p.SKU)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.Conflict("SKU already exists: %s", p.SKU)
	}

	created, err := s.repo.Create(ctx, p)
	if err != nil {
		return nil, err
	}
	s.log.Info("product created", zap.Int64("prod_id", created.ID), zap.String("sku", created.SKU))
	return created, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*models.Product, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.NotFound("Product not found")
	}
	return p, nil
}

func (s *Service) GetBySKU(ctx context.Context, sku string) (*models.Product, error) {
	p, err := s.repo.GetBySKU(ctx, sku)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.NotFound("Product not found")
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, limit int, category string) ([]models.Product, error) {
	return s.repo.List(ctx, limit, category)
}

// Restock adds delta units to the product's stock.
func (s *Service) Restock(ctx context.Context, id, delta int64) (*models.Product, error) {
	if delta <= 0 {
		return nil, apperr.InvalidInput("Delta must be positive")
	}
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	updated, err := s.repo.AdjustStock(ctx, *p, delta)
	if err != nil {
		return nil, err
	}
	s.log.Info("product restocked",
		zap.Int64("prod_id", id),
		zap.Int64("delta", delta),
		zap.Int64("stock", updated.Stock))
	return updated, nil
}

// LowStock returns products whose stock is at or below threshold.
func (s *Service) LowStock(ctx context.Context, threshold int64) ([]models.Product, error) {
	all, err := s.repo.List(ctx, lowStockScanLimit, "")
	if err != nil {
		return nil, err
	}
	low := make([]models.Product, 0)
	for _, p := range all {
		if p.Stock <= threshold {
			low = append(low, p)
		}
	}
	s.log.Debug("low stock scan", zap.Int("scanned", len(all)), zap.Int("matched", len(low)))
	return low, nil
}

// Remove deletes the product. Order items keep their captured prices and
// render without a product afterwards.
func (s *Service) Remove(ctx context.Context, id int64) (*models.Product, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	s.log.Info("product deleted", zap.Int64("prod_id", id))
	return deleted, nil
}
