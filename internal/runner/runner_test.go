package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"retail-cli/internal/config"
	"retail-cli/internal/database"
)

var testNow = time.Date(2024, 7, 15, 9, 30, 0, 0, time.UTC)

type harness struct {
	runner *Runner
	store  database.Store
	out    *bytes.Buffer
	errw   *bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := &config.Config{
		Store:    config.Store{Backend: config.BackendMemory},
		Defaults: config.Defaults{ListLimit: 100, LowStockThreshold: 5},
	}
	store := database.NewMemoryStore()
	out, errw := &bytes.Buffer{}, &bytes.Buffer{}
	return &harness{
		runner: New(store, cfg, zap.NewNop(), out, errw, WithClock(func() time.Time { return testNow })),
		store:  store,
		out:    out,
		errw:   errw,
	}
}

// run executes one command line and returns what it printed.
func (h *harness) run(t *testing.T, line string) string {
	t.Helper()
	h.out.Reset()
	require.NoError(t, h.runner.Run(context.Background(), strings.Fields(line)))
	return h.out.String()
}

// decode splits "caption\n{json}" output.
func decode(t *testing.T, output, caption string, v any) {
	t.Helper()
	require.True(t, strings.HasPrefix(output, caption+"\n"), "output %q lacks caption %q", output, caption)
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(output, caption+"\n")), v))
}

func (h *harness) seed(t *testing.T) {
	t.Helper()
	h.run(t, "product add --name Pen --sku A1 --price 10 --stock 5")
	h.run(t, "product add --name Mug --sku A2 --price 4.50 --stock 20 --category kitchen")
	h.run(t, "customer add --name Asha --email asha@example.com --phone 98450 --city Pune")
}

func TestProductAdd(t *testing.T) {
	h := newHarness(t)

	var p map[string]any
	decode(t, h.run(t, "product add --name Pen --sku A1 --price 10.00 --stock 5 --category office"), "Created product:", &p)
	assert.Equal(t, float64(1), p["prod_id"])
	assert.Equal(t, "10", p["price"])
	assert.Equal(t, float64(5), p["stock"])
	assert.Equal(t, "office", p["category"])

	assert.Equal(t, "Error: SKU already exists: A1\n", h.run(t, "product add --name Pen --sku A1 --price 3"))
	assert.Equal(t, "Error: Price must be greater than 0\n", h.run(t, "product add --name Pen --sku B1 --price 0"))
}

func TestProductCommands(t *testing.T) {
	h := newHarness(t)
	h.seed(t)

	var list []map[string]any
	require.NoError(t, json.Unmarshal([]byte(h.run(t, "product list --category kitchen")), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "A2", list[0]["sku"])

	var shown map[string]any
	require.NoError(t, json.Unmarshal([]byte(h.run(t, "product show --sku A2")), &shown))
	assert.Equal(t, float64(2), shown["prod_id"])

	var restocked map[string]any
	decode(t, h.run(t, "product restock --id 1 --delta 3"), "Restocked product:", &restocked)
	assert.Equal(t, float64(8), restocked["stock"])

	var low []map[string]any
	require.NoError(t, json.Unmarshal([]byte(h.run(t, "product low-stock --threshold 10")), &low))
	require.Len(t, low, 1)
	assert.Equal(t, "A1", low[0]["sku"])

	var deleted map[string]any
	decode(t, h.run(t, "product delete --id 2"), "Deleted product:", &deleted)
	assert.Equal(t, "A2", deleted["sku"])
	assert.Equal(t, "Error: Product not found\n", h.run(t, "product show --id 2"))
}

func TestCustomerCommands(t *testing.T) {
	h := newHarness(t)
	h.seed(t)

	assert.Equal(t, "Error: Customer with email 'asha@example.com' already exists.\n",
		h.run(t, "customer add --name Other --email asha@example.com --phone 1"))

	assert.Equal(t, "Error: At least one of --phone or --city must be provided.\n",
		h.run(t, "customer update --email asha@example.com"))
	assert.Equal(t, "Error: No customer found with email 'nobody@example.com'.\n",
		h.run(t, "customer update --email nobody@example.com --city Goa"))

	var updated map[string]any
	decode(t, h.run(t, "customer update --email asha@example.com --city Mumbai"), "Updated customer:", &updated)
	assert.Equal(t, "Mumbai", updated["city"])
	assert.Equal(t, "98450", updated["phone"])

	var found []map[string]any
	require.NoError(t, json.Unmarshal([]byte(h.run(t, "customer search --city Mumbai")), &found))
	assert.Len(t, found, 1)

	var deleted map[string]any
	decode(t, h.run(t, "customer delete --email asha@example.com"), "Deleted customer:", &deleted)
	assert.Equal(t, "asha@example.com", deleted["email"])

	assert.Equal(t, "[]\n", h.run(t, "customer list"))
}

func TestOrderLifecycle(t *testing.T) {
	h := newHarness(t)
	h.seed(t)

	var created struct {
		Order struct {
			ID          int64  `json:"order_id"`
			Status      string `json:"status"`
			TotalAmount string `json:"total_amount"`
		} `json:"order"`
		Items []struct {
			ProductID int64 `json:"prod_id"`
			Quantity  int64 `json:"quantity"`
		} `json:"items"`
		Payment struct {
			Status string `json:"status"`
		} `json:"payment"`
	}
	decode(t, h.run(t, "order create --customer 1 --item 1:3 2:2"), "Order created:", &created)
	assert.Equal(t, int64(1), created.Order.ID)
	assert.Equal(t, "PLACED", created.Order.Status)
	assert.Equal(t, "39", created.Order.TotalAmount)
	assert.Len(t, created.Items, 2)
	assert.Equal(t, "PENDING", created.Payment.Status)

	assert.Equal(t, "Error: Cannot delete customer: existing orders found.\n",
		h.run(t, "customer delete --email asha@example.com"))

	var cancelled map[string]any
	decode(t, h.run(t, "order cancel --order 1"), "Order cancelled (updated):", &cancelled)
	assert.Equal(t, "Error: Only orders with status 'PLACED' can be cancelled.\n", h.run(t, "order cancel --order 1"))

	var product map[string]any
	require.NoError(t, json.Unmarshal([]byte(h.run(t, "product show --id 1")), &product))
	assert.Equal(t, float64(5), product["stock"])

	h.run(t, "order create --customer 1 --item 1:1")
	var paid struct {
		Order struct {
			Status string `json:"status"`
		} `json:"order"`
		Payment struct {
			Status string `json:"status"`
			Method string `json:"method"`
		} `json:"payment"`
	}
	decode(t, h.run(t, "order pay --order 2 --method UPI"), "Payment processed and order completed:", &paid)
	assert.Equal(t, "COMPLETED", paid.Order.Status)
	assert.Equal(t, "PAID", paid.Payment.Status)
	assert.Equal(t, "UPI", paid.Payment.Method)

	h.run(t, "order create --customer 1 --item 2:1")
	var completed map[string]any
	decode(t, h.run(t, "order complete --order 3"), "Order marked as completed:", &completed)

	var orders []map[string]any
	require.NoError(t, json.Unmarshal([]byte(h.run(t, "order list --customer 1")), &orders))
	assert.Len(t, orders, 3)

	assert.Equal(t, "Error: Order not found.\n", h.run(t, "order show --order 99"))
	assert.Equal(t, "Error: Not enough stock for product Pen (id 1).\n", h.run(t, "order create --customer 1 --item 1:50"))
	assert.Equal(t, "Error: Customer with id 9 does not exist.\n", h.run(t, "order create --customer 9 --item 1:1"))
}

func TestOrderCreateInvalidItem(t *testing.T) {
	h := newHarness(t)
	h.seed(t)

	assert.Equal(t, "Error: Invalid item format: 1-3\n", h.run(t, "order create --customer 1 --item 1-3"))
	assert.Equal(t, "Error: Invalid item format: x:1\n", h.run(t, "order create --customer 1 --item 1:1 --item x:1"))
}

func TestReports(t *testing.T) {
	h := newHarness(t)
	h.seed(t)
	h.run(t, "order create --customer 1 --item 1:3")
	h.run(t, "order create --customer 1 --item 2:7")
	h.run(t, "order create --customer 1 --item 2:1")
	h.run(t, "order pay --order 1 --method Cash")

	var top []map[string]any
	require.NoError(t, json.Unmarshal([]byte(h.run(t, "report top5")), &top))
	require.Len(t, top, 2)
	assert.Equal(t, float64(2), top[0]["prod_id"])
	assert.Equal(t, float64(8), top[0]["quantity"])
	assert.Equal(t, float64(1), top[1]["prod_id"])

	assert.Equal(t, "Total revenue in last month: 30\n", h.run(t, "report revenue"))

	var counts map[string]float64
	require.NoError(t, json.Unmarshal([]byte(h.run(t, "report orders_by_customer")), &counts))
	assert.Equal(t, map[string]float64{"1": 3}, counts)

	assert.Equal(t, "[\n  1\n]\n", h.run(t, "report big_customers"))
}

func TestDBCommands(t *testing.T) {
	h := newHarness(t)

	out := h.run(t, "db schema --dialect mysql")
	assert.Contains(t, out, "CREATE TABLE IF NOT EXISTS products (\n\tprod_id BIGINT AUTO_INCREMENT PRIMARY KEY,")
	assert.Contains(t, out, "CREATE TABLE IF NOT EXISTS payments")

	assert.Equal(t, "Initialised memory store: products, customers, orders, order_items, payments\n", h.run(t, "db init"))

	err := h.runner.Run(context.Background(), []string{"db", "schema", "--dialect", "oracle"})
	assert.ErrorIs(t, err, ErrUsage)
}

func TestUsageErrors(t *testing.T) {
	h := newHarness(t)

	for _, line := range []string{
		"",
		"warehouse list",
		"product",
		"product explode",
		"product add --name Pen --sku A1",
		"product add --name Pen --sku A1 --price ten",
		"product show",
		"order pay --order 1 --method Cheque",
		"order show --order abc",
	} {
		err := h.runner.Run(context.Background(), strings.Fields(line))
		assert.ErrorIs(t, err, ErrUsage, line)
	}
	assert.Empty(t, h.out.String())
}

func TestUsageListsCommands(t *testing.T) {
	var buf bytes.Buffer
	Usage(&buf)
	assert.Contains(t, buf.String(), "order\n  cancel")
	assert.Contains(t, buf.String(), "--order ID --method Cash|Card|UPI")
}
