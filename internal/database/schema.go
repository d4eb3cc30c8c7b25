package database

import "fmt"

const (
	TableProducts   = "products"
	TableCustomers  = "customers"
	TableOrders     = "orders"
	TableOrderItems = "order_items"
	TablePayments   = "payments"
)

// Tables lists every retail table in creation order.
var Tables = []string{TableProducts, TableCustomers, TableOrders, TableOrderItems, TablePayments}

// PrimaryKeys maps each table to its store-assigned identifier column.
var PrimaryKeys = map[string]string{
	TableProducts:   "prod_id",
	TableCustomers:  "cust_id",
	TableOrders:     "order_id",
	TableOrderItems: "item_id",
	TablePayments:   "payment_id",
}

// UniqueColumns lists the columns carrying a unique constraint, per table.
var UniqueColumns = map[string][]string{
	TableProducts:  {"sku"},
	TableCustomers: {"email"},
	TablePayments:  {"order_id"},
}

func primaryKey(table string) (string, error) {
	pk, ok := PrimaryKeys[table]
	if !ok {
		return "", fmt.Errorf("unknown table %q", table)
	}
	return pk, nil
}

const (
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
)

// Schema returns idempotent CREATE TABLE statements for the dialect.
func Schema(dialect string) ([]string, error) {
	switch dialect {
	case DialectPostgres:
		return postgresSchema, nil
	case DialectMySQL:
		return mysqlSchema, nil
	}
	return nil, fmt.Errorf("no schema for dialect %q", dialect)
}

var postgresSchema = []string{
	`
		CREATE TABLE IF NOT EXISTS products (
			prod_id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
			name TEXT NOT NULL,
			sku TEXT NOT NULL UNIQUE,
			price NUMERIC(12, 2) NOT NULL CHECK (price > 0),
			stock INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
			category TEXT
		);
	`,
	`
		CREATE TABLE IF NOT EXISTS customers (
			cust_id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			phone TEXT NOT NULL,
			city TEXT
		);
	`,
	`
		CREATE TABLE IF NOT EXISTS orders (
			order_id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
			cust_id BIGINT NOT NULL REFERENCES customers (cust_id),
			total_amount NUMERIC(12, 2) NOT NULL,
			status TEXT NOT NULL DEFAULT 'PLACED',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`,
	`
		CREATE TABLE IF NOT EXISTS order_items (
			item_id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
			order_id BIGINT NOT NULL REFERENCES orders (order_id),
			prod_id BIGINT NOT NULL REFERENCES products (prod_id),
			quantity INTEGER NOT NULL CHECK (quantity > 0),
			price NUMERIC(12, 2) NOT NULL
		);
	`,
	`
		CREATE TABLE IF NOT EXISTS payments (
			payment_id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
			order_id BIGINT NOT NULL UNIQUE REFERENCES orders (order_id),
			amount NUMERIC(12, 2) NOT NULL,
			status TEXT NOT NULL DEFAULT 'PENDING',
			method TEXT,
			paid_at TIMESTAMPTZ
		);
	`,
}

var mysqlSchema = []string{
	`
		CREATE TABLE IF NOT EXISTS products (
			prod_id BIGINT AUTO_INCREMENT PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			sku VARCHAR(64) NOT NULL UNIQUE,
			price DECIMAL(12, 2) NOT NULL,
			stock INT NOT NULL DEFAULT 0,
			category VARCHAR(255) NULL
		);
	`,
	`
		CREATE TABLE IF NOT EXISTS customers (
			cust_id BIGINT AUTO_INCREMENT PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			email VARCHAR(255) NOT NULL UNIQUE,
			phone VARCHAR(32) NOT NULL,
			city VARCHAR(255) NULL
		);
	`,
	`
		CREATE TABLE IF NOT EXISTS orders (
			order_id BIGINT AUTO_INCREMENT PRIMARY KEY,
			cust_id BIGINT NOT NULL,
			total_amount DECIMAL(12, 2) NOT NULL,
			status VARCHAR(16) NOT NULL DEFAULT 'PLACED',
			created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
			INDEX idx_orders_cust (cust_id)
		);
	`,
	`
		CREATE TABLE IF NOT EXISTS order_items (
			item_id BIGINT AUTO_INCREMENT PRIMARY KEY,
			order_id BIGINT NOT NULL,
			prod_id BIGINT NOT NULL,
			quantity INT NOT NULL,
			price DECIMAL(12, 2) NOT NULL,
			INDEX idx_order_items_order (order_id)
		);
	`,
	`
		CREATE TABLE IF NOT EXISTS payments (
			payment_id BIGINT AUTO_INCREMENT PRIMARY KEY,
			order_id BIGINT NOT NULL UNIQUE,
			amount DECIMAL(12, 2) NOT NULL,
			status VARCHAR(16) NOT NULL DEFAULT 'PENDING',
			method VARCHAR(16) NULL,
			paid_at DATETIME(6) NULL
		);
	`,
}

/*
MongoDB document structure (one collection per table, plus "counters"):

products:    { prod_id, name, sku, price: Decimal128, stock, category }
customers:   { cust_id, name, email, phone, city }
orders:      { order_id, cust_id, total_amount: Decimal128, status, created_at: date }
order_items: { item_id, order_id, prod_id, quantity, price: Decimal128 }
payments:    { payment_id, order_id, amount: Decimal128, status, method, paid_at: date }
counters:    { _id: <table>, seq: <last assigned id> }
*/
