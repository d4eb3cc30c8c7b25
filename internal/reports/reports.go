package reports

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"retail-cli/internal/apperr"
	"retail-cli/internal/database"
	"retail-cli/internal/models"
)

const (
	DefaultTopN       = 5
	RevenueWindowDays = 30
	// RepeatThreshold is the order count a customer must exceed to count as
	// a repeat customer.
	RepeatThreshold = 2
)

type ProductSales struct {
	ProductID int64 `json:"prod_id"`
	Quantity  int64 `json:"quantity"`
}

type Service struct {
	store database.Store
	log   *zap.Logger
	now   func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now as the end of the revenue window.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(store database.Store, log *zap.Logger, opts ...Option) *Service {
	s := &Service{store: store, log: log, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TopSellingProducts sums ordered quantity per product and returns the n
// largest. Products with equal totals keep the order in which they were first
// seen.
func (s *Service) TopSellingProducts(ctx context.Context, n int) ([]ProductSales, error) {
	if n <= 0 {
		return nil, apperr.InvalidInput("n must be positive")
	}
	rows, err := s.store.Select(ctx, database.TableOrderItems,
		database.NewQuery().Select("prod_id", "quantity").OrderBy("item_id", false))
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}

	index := make(map[int64]int)
	var sales []ProductSales
	for _, row := range rows {
		id, err := row.Int64("prod_id")
		if err != nil {
			return nil, err
		}
		qty, err := row.Int64("quantity")
		if err != nil {
			return nil, err
		}
		i, ok := index[id]
		if !ok {
			i = len(sales)
			index[id] = i
			sales = append(sales, ProductSales{ProductID: id})
		}
		sales[i].Quantity += qty
	}

	sort.SliceStable(sales, func(i, j int) bool {
		return sales[i].Quantity > sales[j].Quantity
	})
	if len(sales) > n {
		sales = sales[:n]
	}
	if sales == nil {
		sales = []ProductSales{}
	}
	return sales, nil
}

// RevenueLastMonth sums PAID payments whose paid_at falls on or after the
// start (UTC) of the day RevenueWindowDays ago.
func (s *Service) RevenueLastMonth(ctx context.Context) (decimal.Decimal, error) {
	from := s.now().UTC().AddDate(0, 0, -RevenueWindowDays)
	from = time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)

	rows, err := s.store.Select(ctx, database.TablePayments,
		database.NewQuery().
			Select("amount", "paid_at", "status").
			Eq("status", models.PaymentPaid).
			Gte("paid_at", from))
	if err != nil {
		return decimal.Zero, fmt.Errorf("select payments: %w", err)
	}

	total := decimal.Zero
	for _, row := range rows {
		amount, err := row.Decimal("amount")
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(amount)
	}
	s.log.Debug("revenue computed",
		zap.Time("from", from),
		zap.Int("payments", len(rows)),
		zap.String("total", total.String()))
	return total, nil
}

// OrdersByCustomer counts orders per customer id.
func (s *Service) OrdersByCustomer(ctx context.Context) (map[int64]int64, error) {
	counts, _, err := s.countOrders(ctx)
	return counts, err
}

// RepeatCustomers lists customers with more than RepeatThreshold orders, in
// the order they first appear.
func (s *Service) RepeatCustomers(ctx context.Context) ([]int64, error) {
	counts, seen, err := s.countOrders(ctx)
	if err != nil {
		return nil, err
	}
	repeat := make([]int64, 0)
	for _, id := range seen {
		if counts[id] > RepeatThreshold {
			repeat = append(repeat, id)
		}
	}
	return repeat, nil
}

func (s *Service) countOrders(ctx context.Context) (map[int64]int64, []int64, error) {
	rows, err := s.store.Select(ctx, database.TableOrders,
		database.NewQuery().Select("cust_id").OrderBy("order_id", false))
	if err != nil {
		return nil, nil, fmt.Errorf("select orders: %w", err)
	}
	counts := make(map[int64]int64)
	var seen []int64
	for _, row := range rows {
		id, err := row.Int64("cust_id")
		if err != nil {
			return nil, nil, err
		}
		if _, ok := counts[id]; !ok {
			seen = append(seen, id)
		}
		counts[id]++
	}
	return counts, seen, nil
}
