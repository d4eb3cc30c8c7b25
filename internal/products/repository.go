package products

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"retail-cli/internal/apperr"
	"retail-cli/internal/database"
	"retail-cli/internal/models"
)

// MaxStockRetries bounds how often a guarded stock swap is retried after a
// concurrent writer moved the stock.
const MaxStockRetries = 3

type NewProduct struct {
	Name     string
	SKU      string
	Price    decimal.Decimal
	Stock    int64
	Category *string
}

// Repository reads and writes the products table.
type Repository struct {
	store database.Store
	log   *zap.Logger
}

func NewRepository(store database.Store, log *zap.Logger) *Repository {
	return &Repository{store: store, log: log}
}

func (r *Repository) Create(ctx context.Context, p NewProduct) (*models.Product, error) {
	row := database.Row{
		"name":  p.Name,
		"sku":   p.SKU,
		"price": p.Price,
		"stock": p.Stock,
	}
	if p.Category != nil {
		row["category"] = *p.Category
	}

	stored, err := r.store.Insert(ctx, database.TableProducts, row)
	if errors.Is(err, database.ErrDuplicate) {
		r.log.Debug("duplicate sku on insert", zap.String("sku", p.SKU), zap.Error(err))
		return nil, apperr.Conflict("SKU already exists: %s", p.SKU)
	}
	if err != nil {
		return nil, fmt.Errorf("insert product: %w", err)
	}
	return decodeOne(stored)
}

// GetByID returns nil when no product has the id.
func (r *Repository) GetByID(ctx context.Context, id int64) (*models.Product, error) {
	return r.first(ctx, database.Eq("prod_id", id).Limit(1))
}

// GetBySKU returns nil when no product has the sku.
func (r *Repository) GetBySKU(ctx context.Context, sku string) (*models.Product, error) {
	return r.first(ctx, database.Eq("sku", sku).Limit(1))
}

// Update sets fields and returns the product as re-read afterwards.
func (r *Repository) Update(ctx context.Context, id int64, fields database.Row) (*models.Product, error) {
	if _, err := r.store.Update(ctx, database.TableProducts, fields, database.Eq("prod_id", id)); err != nil {
		return nil, fmt.Errorf("update product %d: %w", id, err)
	}
	return r.GetByID(ctx, id)
}

// Delete removes the product and returns the row as it was, or nil if it did
// not exist.
func (r *Repository) Delete(ctx context.Context, id int64) (*models.Product, error) {
	before, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := r.store.Delete(ctx, database.TableProducts, database.Eq("prod_id", id)); err != nil {
		return nil, fmt.Errorf("delete product %d: %w", id, err)
	}
	return before, nil
}

// List returns up to limit products ordered by id, optionally restricted to a
// category.
func (r *Repository) List(ctx context.Context, limit int, category string) ([]models.Product, error) {
	q := database.NewQuery().OrderBy("prod_id", false).Limit(limit)
	if category != "" {
		q = q.Eq("category", category)
	}
	rows, err := r.store.Select(ctx, database.TableProducts, q)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	out := make([]models.Product, 0, len(rows))
	for _, row := range rows {
		p, err := models.ProductFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// AdjustStock moves the stock of observed by delta with a compare-and-swap on
// the stock column. When another writer got there first the product is
// re-read and the swap retried while the new stock still allows it.
func (r *Repository) AdjustStock(ctx context.Context, observed models.Product, delta int64) (*models.Product, error) {
	current := observed
	for attempt := 0; ; attempt++ {
		next := current.Stock + delta
		if next < 0 {
			return nil, apperr.InsufficientStock("Not enough stock for product %s (id %d).", current.Name, current.ID)
		}

		n, err := r.store.Update(ctx, database.TableProducts,
			database.Row{"stock": next},
			database.Eq("prod_id", current.ID).Eq("stock", current.Stock))
		if err != nil {
			return nil, fmt.Errorf("update stock of product %d: %w", current.ID, err)
		}
		if n > 0 {
			current.Stock = next
			return &current, nil
		}

		if attempt == MaxStockRetries {
			return nil, apperr.Conflict("Stock of product %s (id %d) kept changing; try again.", current.Name, current.ID)
		}
		reread, err := r.GetByID(ctx, current.ID)
		if err != nil {
			return nil, err
		}
		if reread == nil {
			return nil, apperr.NotFound("Product id %d does not exist.", current.ID)
		}
		current = *reread
	}
}

func (r *Repository) first(ctx context.Context, q *database.Query) (*models.Product, error) {
	rows, err := r.store.Select(ctx, database.TableProducts, q)
	if err != nil {
		return nil, fmt.Errorf("select product: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return decodeOne(rows[0])
}

func decodeOne(row database.Row) (*models.Product, error) {
	p, err := models.ProductFromRow(row)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
