package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"retail-cli/internal/database"
)

// Order statuses. COMPLETED and CANCELLED are terminal.
const (
	OrderPlaced    = "PLACED"
	OrderCompleted = "COMPLETED"
	OrderCancelled = "CANCELLED"
)

// Payment statuses.
const (
	PaymentPending  = "PENDING"
	PaymentPaid     = "PAID"
	PaymentRefunded = "REFUNDED"
)

// PaymentMethods are the methods accepted when paying for an order.
var PaymentMethods = []string{"Cash", "Card", "UPI"}

func ValidPaymentMethod(method string) bool {
	for _, m := range PaymentMethods {
		if m == method {
			return true
		}
	}
	return false
}

type Product struct {
	ID       int64           `json:"prod_id"`
	Name     string          `json:"name"`
	SKU      string          `json:"sku"`
	Price    decimal.Decimal `json:"price"`
	Stock    int64           `json:"stock"`
	Category *string         `json:"category"`
}

type Customer struct {
	ID    int64   `json:"cust_id"`
	Name  string  `json:"name"`
	Email string  `json:"email"`
	Phone string  `json:"phone"`
	City  *string `json:"city"`
}

type Order struct {
	ID          int64           `json:"order_id"`
	CustomerID  int64           `json:"cust_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
}

type OrderItem struct {
	ID        int64           `json:"item_id"`
	OrderID   int64           `json:"order_id"`
	ProductID int64           `json:"prod_id"`
	Quantity  int64           `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// Subtotal is the captured unit price times the quantity.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(i.Quantity))
}

type Payment struct {
	ID      int64           `json:"payment_id"`
	OrderID int64           `json:"order_id"`
	Amount  decimal.Decimal `json:"amount"`
	Status  string          `json:"status"`
	Method  *string         `json:"method"`
	PaidAt  *time.Time      `json:"paid_at"`
}

// OrderLine is an order item annotated with the product's current row, which
// is nil if the product has since been deleted.
type OrderLine struct {
	OrderItem
	Product *Product `json:"product"`
}

type OrderDetails struct {
	Order    Order       `json:"order"`
	Customer *Customer   `json:"customer"`
	Items    []OrderLine `json:"items"`
	Payment  *Payment    `json:"payment"`
}

// rowReader collects the first decode error so that the FromRow functions
// read straight through.
type rowReader struct {
	table string
	row   database.Row
	err   error
}

func (r *rowReader) int64(col string) int64 {
	if r.err != nil {
		return 0
	}
	v, err := r.row.Int64(col)
	r.err = err
	return v
}

func (r *rowReader) string(col string) string {
	if r.err != nil {
		return ""
	}
	v, err := r.row.String(col)
	r.err = err
	return v
}

func (r *rowReader) decimal(col string) decimal.Decimal {
	if r.err != nil {
		return decimal.Zero
	}
	v, err := r.row.Decimal(col)
	r.err = err
	return v
}

func (r *rowReader) time(col string) time.Time {
	if r.err != nil {
		return time.Time{}
	}
	v, err := r.row.Time(col)
	r.err = err
	return v
}

func (r *rowReader) nullTime(col string) *time.Time {
	if r.err != nil {
		return nil
	}
	v, err := r.row.NullTime(col)
	r.err = err
	return v
}

func (r *rowReader) done() error {
	if r.err != nil {
		return fmt.Errorf("decode %s row: %w", r.table, r.err)
	}
	return nil
}

func ProductFromRow(row database.Row) (Product, error) {
	r := &rowReader{table: database.TableProducts, row: row}
	p := Product{
		ID:       r.int64("prod_id"),
		Name:     r.string("name"),
		SKU:      r.string("sku"),
		Price:    r.decimal("price"),
		Stock:    r.int64("stock"),
		Category: row.NullString("category"),
	}
	return p, r.done()
}

func CustomerFromRow(row database.Row) (Customer, error) {
	r := &rowReader{table: database.TableCustomers, row: row}
	c := Customer{
		ID:    r.int64("cust_id"),
		Name:  r.string("name"),
		Email: r.string("email"),
		Phone: r.string("phone"),
		City:  row.NullString("city"),
	}
	return c, r.done()
}

func OrderFromRow(row database.Row) (Order, error) {
	r := &rowReader{table: database.TableOrders, row: row}
	o := Order{
		ID:          r.int64("order_id"),
		CustomerID:  r.int64("cust_id"),
		TotalAmount: r.decimal("total_amount"),
		Status:      r.string("status"),
		CreatedAt:   r.time("created_at"),
	}
	return o, r.done()
}

func OrderItemFromRow(row database.Row) (OrderItem, error) {
	r := &rowReader{table: database.TableOrderItems, row: row}
	i := OrderItem{
		ID:        r.int64("item_id"),
		OrderID:   r.int64("order_id"),
		ProductID: r.int64("prod_id"),
		Quantity:  r.int64("quantity"),
		Price:     r.decimal("price"),
	}
	return i, r.done()
}

func PaymentFromRow(row database.Row) (Payment, error) {
	r := &rowReader{table: database.TablePayments, row: row}
	p := Payment{
		ID:      r.int64("payment_id"),
		OrderID: r.int64("order_id"),
		Amount:  r.decimal("amount"),
		Status:  r.string("status"),
		Method:  row.NullString("method"),
		PaidAt:  r.nullTime("paid_at"),
	}
	return p, r.done()
}
