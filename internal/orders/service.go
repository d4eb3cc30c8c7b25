package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"retail-cli/internal/apperr"
	"retail-cli/internal/customers"
	"retail-cli/internal/database"
	"retail-cli/internal/models"
	"retail-cli/internal/products"
)

// Item is one requested order line.
type Item struct {
	ProductID int64
	Quantity  int64
}

// Service runs the order lifecycle: placement with stock reservation,
// payment, cancellation with stock restoration, and completion. Each step is
// an independent store call; a failure part way leaves earlier writes.
type Service struct {
	store     database.Store
	products  *products.Repository
	customers *customers.Repository
	log       *zap.Logger
	now       func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now for created_at and paid_at stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(store database.Store, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:     store,
		products:  products.NewRepository(store, log),
		customers: customers.NewRepository(store, log),
		log:       log,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrder validates the customer and stock, then writes the order, its
// items with the prices observed during validation, the stock decrements and
// a pending payment.
func (s *Service) CreateOrder(ctx context.Context, customerID int64, items []Item) (*models.OrderDetails, error) {
	if len(items) == 0 {
		return nil, apperr.InvalidInput("An order needs at least one item.")
	}
	requested := make(map[int64]int64)
	var productIDs []int64
	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, apperr.InvalidInput("Quantity for product id %d must be positive.", it.ProductID)
		}
		if _, seen := requested[it.ProductID]; !seen {
			productIDs = append(productIDs, it.ProductID)
		}
		requested[it.ProductID] += it.Quantity
	}

	customer, err := s.customers.GetByID(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, apperr.NotFound("Customer with id %d does not exist.", customerID)
	}

	observed := make(map[int64]models.Product, len(productIDs))
	for _, id := range productIDs {
		p, err := s.products.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, apperr.NotFound("Product id %d does not exist.", id)
		}
		if p.Stock < requested[id] {
			return nil, apperr.InsufficientStock("Not enough stock for product %s (id %d).", p.Name, p.ID)
		}
		observed[id] = *p
	}

	total := decimal.Zero
	for _, it := range items {
		total = total.Add(observed[it.ProductID].Price.Mul(decimal.NewFromInt(it.Quantity)))
	}
	s.log.Debug("order validated",
		zap.Int64("cust_id", customerID),
		zap.Int("lines", len(items)),
		zap.String("total", total.String()))

	orderRow, err := s.store.Insert(ctx, database.TableOrders, database.Row{
		"cust_id":      customerID,
		"total_amount": total,
		"status":       models.OrderPlaced,
		"created_at":   s.now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}
	orderID, err := orderRow.Int64("order_id")
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	for _, it := range items {
		product := observed[it.ProductID]
		if _, err := s.store.Insert(ctx, database.TableOrderItems, database.Row{
			"order_id": orderID,
			"prod_id":  it.ProductID,
			"quantity": it.Quantity,
			"price":    product.Price,
		}); err != nil {
			s.log.Error("order item insert failed", zap.Int64("order_id", orderID), zap.Error(err))
			return nil, fmt.Errorf("insert item for order %d: %w", orderID, err)
		}

		updated, err := s.products.AdjustStock(ctx, product, -it.Quantity)
		if err != nil {
			s.log.Error("stock decrement failed",
				zap.Int64("order_id", orderID),
				zap.Int64("prod_id", it.ProductID),
				zap.Error(err))
			return nil, err
		}
		// Later lines for the product keep the validated price.
		product.Stock = updated.Stock
		observed[it.ProductID] = product
		s.log.Debug("stock reserved",
			zap.Int64("prod_id", it.ProductID),
			zap.Int64("quantity", it.Quantity),
			zap.Int64("stock", updated.Stock))
	}

	if _, err := s.store.Insert(ctx, database.TablePayments, database.Row{
		"order_id": orderID,
		"amount":   total,
		"status":   models.PaymentPending,
	}); err != nil {
		s.log.Error("payment insert failed", zap.Int64("order_id", orderID), zap.Error(err))
		return nil, fmt.Errorf("insert payment for order %d: %w", orderID, err)
	}

	s.log.Info("order placed", zap.Int64("order_id", orderID), zap.Int64("cust_id", customerID))
	return s.GetOrderDetails(ctx, orderID)
}

// GetOrderDetails assembles the order with its customer, items (each with the
// product's current row) and payment. Customer and payment may be nil.
func (s *Service) GetOrderDetails(ctx context.Context, orderID int64) (*models.OrderDetails, error) {
	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	customer, err := s.customers.GetByID(ctx, order.CustomerID)
	if err != nil {
		return nil, err
	}

	rows, err := s.store.Select(ctx, database.TableOrderItems,
		database.Eq("order_id", orderID).OrderBy("item_id", false))
	if err != nil {
		return nil, fmt.Errorf("select items of order %d: %w", orderID, err)
	}
	lines := make([]models.OrderLine, 0, len(rows))
	for _, row := range rows {
		item, err := models.OrderItemFromRow(row)
		if err != nil {
			return nil, err
		}
		product, err := s.products.GetByID(ctx, item.ProductID)
		if err != nil {
			return nil, err
		}
		lines = append(lines, models.OrderLine{OrderItem: item, Product: product})
	}

	payment, err := s.getPayment(ctx, orderID)
	if err != nil {
		return nil, err
	}

	return &models.OrderDetails{
		Order:    *order,
		Customer: customer,
		Items:    lines,
		Payment:  payment,
	}, nil
}

// GetOrdersByCustomer lists the customer's orders by ascending id.
func (s *Service) GetOrdersByCustomer(ctx context.Context, customerID int64) ([]models.Order, error) {
	rows, err := s.store.Select(ctx, database.TableOrders,
		database.Eq("cust_id", customerID).OrderBy("order_id", false))
	if err != nil {
		return nil, fmt.Errorf("select orders of customer %d: %w", customerID, err)
	}
	out := make([]models.Order, 0, len(rows))
	for _, row := range rows {
		o, err := models.OrderFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

// ProcessPayment marks the payment PAID and the order COMPLETED. The order's
// current status is not checked.
func (s *Service) ProcessPayment(ctx context.Context, orderID int64, method string) (*models.OrderDetails, error) {
	if !models.ValidPaymentMethod(method) {
		return nil, apperr.InvalidInput("Invalid payment method '%s'; use one of %s.", method, strings.Join(models.PaymentMethods, ", "))
	}
	payment, err := s.getPayment(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, apperr.NotFound("Payment record not found for this order.")
	}

	if _, err := s.store.Update(ctx, database.TablePayments, database.Row{
		"status":  models.PaymentPaid,
		"method":  method,
		"paid_at": s.now().UTC(),
	}, database.Eq("order_id", orderID)); err != nil {
		return nil, fmt.Errorf("mark payment of order %d paid: %w", orderID, err)
	}
	if err := s.setOrderStatus(ctx, orderID, models.OrderCompleted); err != nil {
		return nil, err
	}

	s.log.Info("payment processed", zap.Int64("order_id", orderID), zap.String("method", method))
	return s.GetOrderDetails(ctx, orderID)
}

// CancelOrder returns each item's quantity to the product's current stock,
// then marks the order CANCELLED and its payment REFUNDED.
func (s *Service) CancelOrder(ctx context.Context, orderID int64) (*models.OrderDetails, error) {
	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderPlaced {
		return nil, apperr.InvalidState("Only orders with status '%s' can be cancelled.", models.OrderPlaced)
	}

	rows, err := s.store.Select(ctx, database.TableOrderItems,
		database.Eq("order_id", orderID).OrderBy("item_id", false))
	if err != nil {
		return nil, fmt.Errorf("select items of order %d: %w", orderID, err)
	}
	for _, row := range rows {
		item, err := models.OrderItemFromRow(row)
		if err != nil {
			return nil, err
		}
		product, err := s.products.GetByID(ctx, item.ProductID)
		if err != nil {
			return nil, err
		}
		if product == nil {
			s.log.Warn("product gone, stock not restored",
				zap.Int64("order_id", orderID),
				zap.Int64("prod_id", item.ProductID))
			continue
		}
		updated, err := s.products.AdjustStock(ctx, *product, item.Quantity)
		if err != nil {
			return nil, err
		}
		s.log.Debug("stock restored",
			zap.Int64("prod_id", item.ProductID),
			zap.Int64("quantity", item.Quantity),
			zap.Int64("stock", updated.Stock))
	}

	if err := s.setOrderStatus(ctx, orderID, models.OrderCancelled); err != nil {
		return nil, err
	}
	if _, err := s.store.Update(ctx, database.TablePayments,
		database.Row{"status": models.PaymentRefunded},
		database.Eq("order_id", orderID)); err != nil {
		return nil, fmt.Errorf("refund payment of order %d: %w", orderID, err)
	}

	s.log.Info("order cancelled", zap.Int64("order_id", orderID))
	return s.GetOrderDetails(ctx, orderID)
}

// CompleteOrder marks a PLACED order COMPLETED without touching the payment.
func (s *Service) CompleteOrder(ctx context.Context, orderID int64) (*models.OrderDetails, error) {
	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderPlaced {
		return nil, apperr.InvalidState("Only orders with status '%s' can be completed.", models.OrderPlaced)
	}
	if err := s.setOrderStatus(ctx, orderID, models.OrderCompleted); err != nil {
		return nil, err
	}

	s.log.Info("order completed", zap.Int64("order_id", orderID))
	return s.GetOrderDetails(ctx, orderID)
}

func (s *Service) getOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	rows, err := s.store.Select(ctx, database.TableOrders, database.Eq("order_id", orderID).Limit(1))
	if err != nil {
		return nil, fmt.Errorf("select order %d: %w", orderID, err)
	}
	if len(rows) == 0 {
		return nil, apperr.NotFound("Order not found.")
	}
	o, err := models.OrderFromRow(rows[0])
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *Service) getPayment(ctx context.Context, orderID int64) (*models.Payment, error) {
	rows, err := s.store.Select(ctx, database.TablePayments, database.Eq("order_id", orderID).Limit(1))
	if err != nil {
		return nil, fmt.Errorf("select payment of order %d: %w", orderID, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	p, err := models.PaymentFromRow(rows[0])
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Service) setOrderStatus(ctx context.Context, orderID int64, status string) error {
	if _, err := s.store.Update(ctx, database.TableOrders,
		database.Row{"status": status},
		database.Eq("order_id", orderID)); err != nil {
		return fmt.Errorf("set order %d status %s: %w", orderID, status, err)
	}
	return nil
}
