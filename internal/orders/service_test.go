package orders

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"retail-cli/internal/apperr"
	"retail-cli/internal/customers"
	"retail-cli/internal/database"
	"retail-cli/internal/models"
	"retail-cli/internal/products"
)

var fixedNow = time.Date(2024, 7, 15, 9, 30, 0, 0, time.UTC)

type fixture struct {
	store    database.Store
	orders   *Service
	products *products.Service
	customer int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := database.NewMemoryStore()
	log := zap.NewNop()

	c, err := customers.NewRepository(store, log).Create(context.Background(), "Asha", "asha@example.com", "98450", nil)
	require.NoError(t, err)

	return &fixture{
		store:    store,
		orders:   NewService(store, log, WithClock(func() time.Time { return fixedNow })),
		products: products.NewService(store, log),
		customer: c.ID,
	}
}

func (f *fixture) addProduct(t *testing.T, sku, price string, stock int64) int64 {
	t.Helper()
	p, err := f.products.Add(context.Background(), products.NewProduct{
		Name:  "Product " + sku,
		SKU:   sku,
		Price: decimal.RequireFromString(price),
		Stock: stock,
	})
	require.NoError(t, err)
	return p.ID
}

func (f *fixture) stock(t *testing.T, id int64) int64 {
	t.Helper()
	p, err := f.products.Get(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func TestCreateOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.addProduct(t, "A1", "10", 5)

	details, err := f.orders.CreateOrder(ctx, f.customer, []Item{{ProductID: a1, Quantity: 3}})
	require.NoError(t, err)

	assert.Equal(t, int64(2), f.stock(t, a1))
	assert.Equal(t, models.OrderPlaced, details.Order.Status)
	assert.True(t, details.Order.TotalAmount.Equal(decimal.NewFromInt(30)), details.Order.TotalAmount.String())
	assert.True(t, fixedNow.Equal(details.Order.CreatedAt))

	require.NotNil(t, details.Customer)
	assert.Equal(t, f.customer, details.Customer.ID)

	require.Len(t, details.Items, 1)
	assert.Equal(t, int64(3), details.Items[0].Quantity)
	assert.True(t, details.Items[0].Price.Equal(decimal.NewFromInt(10)))
	require.NotNil(t, details.Items[0].Product)
	assert.Equal(t, int64(2), details.Items[0].Product.Stock)

	require.NotNil(t, details.Payment)
	assert.Equal(t, models.PaymentPending, details.Payment.Status)
	assert.True(t, details.Payment.Amount.Equal(decimal.NewFromInt(30)))
	assert.Nil(t, details.Payment.Method)
	assert.Nil(t, details.Payment.PaidAt)
}

func TestCreateOrderTotalMatchesItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pen := f.addProduct(t, "P1", "1.25", 100)
	mug := f.addProduct(t, "M1", "7.40", 10)

	details, err := f.orders.CreateOrder(ctx, f.customer, []Item{
		{ProductID: pen, Quantity: 4},
		{ProductID: mug, Quantity: 2},
		{ProductID: pen, Quantity: 1},
	})
	require.NoError(t, err)

	sum := decimal.Zero
	for _, line := range details.Items {
		sum = sum.Add(line.Subtotal())
	}
	assert.True(t, sum.Equal(details.Order.TotalAmount))
	assert.True(t, decimal.RequireFromString("21.05").Equal(details.Order.TotalAmount))
	assert.Len(t, details.Items, 3)
	assert.Equal(t, int64(95), f.stock(t, pen))
	assert.Equal(t, int64(8), f.stock(t, mug))
}

// repricingStore changes a product's price and stock just before the first
// guarded stock update, so that update misses and the product is re-read.
type repricingStore struct {
	database.Store
	raced bool
}

func (rs *repricingStore) Update(ctx context.Context, table string, fields database.Row, q *database.Query) (int64, error) {
	if table == database.TableProducts && !rs.raced {
		rs.raced = true
		id := q.Filters()[0].Value
		rows, err := rs.Store.Select(ctx, table, database.Eq("prod_id", id))
		if err != nil {
			return 0, err
		}
		stock, _ := rows[0].Int64("stock")
		if _, err := rs.Store.Update(ctx, table, database.Row{
			"price": decimal.NewFromInt(99),
			"stock": stock - 1,
		}, database.Eq("prod_id", id)); err != nil {
			return 0, err
		}
	}
	return rs.Store.Update(ctx, table, fields, q)
}

func TestCreateOrderKeepsValidatedPriceAcrossStockRetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.addProduct(t, "A1", "10", 10)
	store := &repricingStore{Store: f.store}
	s := NewService(store, zap.NewNop(), WithClock(func() time.Time { return fixedNow }))

	details, err := s.CreateOrder(ctx, f.customer, []Item{{a1, 1}, {a1, 1}})
	require.NoError(t, err)
	require.True(t, store.raced)

	sum := decimal.Zero
	for _, line := range details.Items {
		assert.True(t, decimal.NewFromInt(10).Equal(line.Price), line.Price.String())
		sum = sum.Add(line.Subtotal())
	}
	assert.True(t, decimal.NewFromInt(20).Equal(details.Order.TotalAmount))
	assert.True(t, sum.Equal(details.Order.TotalAmount))
	assert.Equal(t, int64(7), f.stock(t, a1))
}

func TestCreateOrderRejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.addProduct(t, "A1", "10", 5)

	tests := []struct {
		name     string
		customer int64
		items    []Item
		kind     apperr.Kind
		message  string
	}{
		{"no items", f.customer, nil, apperr.KindInvalidInput, "An order needs at least one item."},
		{"zero quantity", f.customer, []Item{{a1, 0}}, apperr.KindInvalidInput, "Quantity for product id 1 must be positive."},
		{"unknown customer", 77, []Item{{a1, 1}}, apperr.KindNotFound, "Customer with id 77 does not exist."},
		{"unknown product", f.customer, []Item{{a1, 1}, {99, 1}}, apperr.KindNotFound, "Product id 99 does not exist."},
		{"too many", f.customer, []Item{{a1, 6}}, apperr.KindInsufficientStock, "Not enough stock for product Product A1 (id 1)."},
		{"repeated lines exceed stock", f.customer, []Item{{a1, 3}, {a1, 3}}, apperr.KindInsufficientStock, "Not enough stock for product Product A1 (id 1)."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.orders.CreateOrder(ctx, tt.customer, tt.items)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
			assert.EqualError(t, err, tt.message)
		})
	}

	// nothing was written by the rejected attempts
	assert.Equal(t, int64(5), f.stock(t, a1))
	rows, err := f.store.Select(ctx, database.TableOrders, nil)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.addProduct(t, "A1", "10", 5)
	placed, err := f.orders.CreateOrder(ctx, f.customer, []Item{{a1, 3}})
	require.NoError(t, err)

	cancelled, err := f.orders.CancelOrder(ctx, placed.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), f.stock(t, a1))
	assert.Equal(t, models.OrderCancelled, cancelled.Order.Status)
	assert.Equal(t, models.PaymentRefunded, cancelled.Payment.Status)

	_, err = f.orders.CancelOrder(ctx, placed.Order.ID)
	assert.True(t, apperr.Is(err, apperr.KindInvalidState))
	assert.EqualError(t, err, "Only orders with status 'PLACED' can be cancelled.")
	assert.Equal(t, int64(5), f.stock(t, a1))

	_, err = f.orders.CompleteOrder(ctx, placed.Order.ID)
	assert.True(t, apperr.Is(err, apperr.KindInvalidState))
}

func TestCancelRestoresOntoCurrentStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.addProduct(t, "A1", "10", 5)
	placed, err := f.orders.CreateOrder(ctx, f.customer, []Item{{a1, 3}})
	require.NoError(t, err)

	_, err = f.products.Restock(ctx, a1, 10)
	require.NoError(t, err)

	_, err = f.orders.CancelOrder(ctx, placed.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(15), f.stock(t, a1))
}

func TestCancelSkipsDeletedProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.addProduct(t, "A1", "10", 5)
	placed, err := f.orders.CreateOrder(ctx, f.customer, []Item{{a1, 1}})
	require.NoError(t, err)
	_, err = f.store.Delete(ctx, database.TableProducts, database.Eq("prod_id", a1))
	require.NoError(t, err)

	cancelled, err := f.orders.CancelOrder(ctx, placed.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, cancelled.Order.Status)
	require.Len(t, cancelled.Items, 1)
	assert.Nil(t, cancelled.Items[0].Product)
}

func TestCompleteOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.addProduct(t, "A1", "10", 5)
	placed, err := f.orders.CreateOrder(ctx, f.customer, []Item{{a1, 1}})
	require.NoError(t, err)

	completed, err := f.orders.CompleteOrder(ctx, placed.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, completed.Order.Status)
	assert.Equal(t, models.PaymentPending, completed.Payment.Status)

	_, err = f.orders.CancelOrder(ctx, placed.Order.ID)
	assert.True(t, apperr.Is(err, apperr.KindInvalidState))
	assert.Equal(t, int64(4), f.stock(t, a1))

	_, err = f.orders.CompleteOrder(ctx, placed.Order.ID)
	assert.EqualError(t, err, "Only orders with status 'PLACED' can be completed.")
}

func TestProcessPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.addProduct(t, "A1", "10", 5)
	placed, err := f.orders.CreateOrder(ctx, f.customer, []Item{{a1, 2}})
	require.NoError(t, err)

	paid, err := f.orders.ProcessPayment(ctx, placed.Order.ID, "Card")
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, paid.Order.Status)
	assert.Equal(t, models.PaymentPaid, paid.Payment.Status)
	require.NotNil(t, paid.Payment.Method)
	assert.Equal(t, "Card", *paid.Payment.Method)
	require.NotNil(t, paid.Payment.PaidAt)
	assert.True(t, fixedNow.Equal(*paid.Payment.PaidAt))
}

func TestProcessPaymentCompletesCancelledOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.addProduct(t, "A1", "10", 5)
	placed, err := f.orders.CreateOrder(ctx, f.customer, []Item{{a1, 1}})
	require.NoError(t, err)
	_, err = f.orders.CancelOrder(ctx, placed.Order.ID)
	require.NoError(t, err)

	paid, err := f.orders.ProcessPayment(ctx, placed.Order.ID, "Cash")
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, paid.Order.Status)
	assert.Equal(t, models.PaymentPaid, paid.Payment.Status)

	again, err := f.orders.ProcessPayment(ctx, placed.Order.ID, "UPI")
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, again.Order.Status)
	require.NotNil(t, again.Payment.Method)
	assert.Equal(t, "UPI", *again.Payment.Method)
}

func TestProcessPaymentRejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.orders.ProcessPayment(ctx, 1, "Cheque")
	assert.True(t, apperr.Is(err, apperr.KindInvalidInput))

	_, err = f.orders.ProcessPayment(ctx, 1, "UPI")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.EqualError(t, err, "Payment record not found for this order.")
}

func TestGetOrderDetailsNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.orders.GetOrderDetails(context.Background(), 404)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.EqualError(t, err, "Order not found.")
}

func TestGetOrdersByCustomer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.addProduct(t, "A1", "10", 10)

	none, err := f.orders.GetOrdersByCustomer(ctx, f.customer)
	require.NoError(t, err)
	assert.Empty(t, none)

	for i := 0; i < 3; i++ {
		_, err := f.orders.CreateOrder(ctx, f.customer, []Item{{a1, 1}})
		require.NoError(t, err)
	}
	list, err := f.orders.GetOrdersByCustomer(ctx, f.customer)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Less(t, list[0].ID, list[1].ID)
	assert.Less(t, list[1].ID, list[2].ID)
}
