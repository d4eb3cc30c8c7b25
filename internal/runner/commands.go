package runner

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"

	"retail-cli/internal/apperr"
	"retail-cli/internal/config"
	"retail-cli/internal/database"
	"retail-cli/internal/models"
	"retail-cli/internal/products"
	"retail-cli/internal/reports"
)

type command struct {
	usage string
	run   func(ctx context.Context, r *Runner, fs *flag.FlagSet, args []string) error
}

var commands = map[string]map[string]command{
	"product": {
		"add":       {"--name --sku --price [--stock 0] [--category]", productAdd},
		"list":      {"[--category] [--limit N]", productList},
		"show":      {"--id ID | --sku SKU", productShow},
		"restock":   {"--id ID --delta N", productRestock},
		"low-stock": {"[--threshold N]", productLowStock},
		"delete":    {"--id ID", productDelete},
	},
	"customer": {
		"add":    {"--name --email --phone [--city]", customerAdd},
		"update": {"--email [--phone] [--city]", customerUpdate},
		"delete": {"--email", customerDelete},
		"list":   {"[--limit N]", customerList},
		"search": {"[--email] [--city]", customerSearch},
	},
	"order": {
		"create":   {"--customer ID --item PROD:QTY [--item PROD:QTY ...]", orderCreate},
		"show":     {"--order ID", orderShow},
		"cancel":   {"--order ID", orderCancel},
		"list":     {"--customer ID", orderList},
		"complete": {"--order ID", orderComplete},
		"pay":      {"--order ID --method " + strings.Join(models.PaymentMethods, "|"), orderPay},
	},
	"report": {
		"top5":               {"[--n 5]", reportTop},
		"revenue":            {"", reportRevenue},
		"orders_by_customer": {"", reportOrdersByCustomer},
		"big_customers":      {"", reportBigCustomers},
	},
	"db": {
		"schema": {"[--dialect postgres|mysql]", dbSchema},
		"init":   {"", dbInit},
	},
}

func productAdd(ctx context.Context, r *Runner, fs *flag.FlagSet, args []string) error {
	name := fs.String("name", "", "product name")
	sku := fs.String("sku", "", "unique stock-keeping unit")
	var price decimalValue
	fs.Var(&price, "price", "unit price")
	stock := fs.Int64("stock", 0, "initial stock")
	category := fs.String("category", "", "category")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := requireFlags(fs, "name", "sku", "price"); err != nil {
		return err
	}

	p, err := r.products.Add(ctx, products.NewProduct{
		Name:     *name,
		SKU:      *sku,
		Price:    price.d,
		Stock:    *stock,
		Category: optional(fs, "category", *category),
	})
	if err != nil {
		return err
	}
	return r.print("Created product:", p)
}

func productList(ctx context.Context, r *Runner, fs *flag.FlagSet, args []string) error {
	category := fs.String("category", "", "only this category")
	limit := fs.Int("limit", r.cfg.Defaults.ListLimit, "maximum rows")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	list, err := r.products.List(ctx, *limit, *category)
	if err != nil {
		return err
	}
	return r.print("", list)
}

func productShow(ctx context.Context, r *Runner, fs *flag.FlagSet, args []string) error {
	id := fs.Int64("id", 0, "product id")
	sku := fs.String("sku", "", "product sku")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	set := visited(fs)
	var (
		p   *models.Product
		err error
	)
	switch {
	case set["id"]:
		p, err = r.products.Get(ctx, *id)
	case set["sku"]:
		p, err = r.products.GetBySKU(ctx, *sku)
	default:
		return usageErrorf("%s: one of --id or --sku is required", fs.Name())
	}
	if err != nil {
		return err
	}
	return r.print("", p)
}

func productRestock(ctx context.Context, r *Runner, fs *flag.FlagSet, args []string) error {
	id := fs.Int64("id", 0, "product id")
	delta := fs.Int64("delta", 0, "units to add")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := requireFlags(fs, "id", "delta"); err != nil {
		return err
	}
	p, err := r.products.Restock(ctx, *id, *delta)
	if err != nil {
		return err
	}
	return r.print("Restocked product:", p)
}

func productLowStock(ctx context.Context, r *Runner, fs *flag.FlagSet, args []string) error {
	threshold := fs.Int64("threshold", int64(r.cfg.Defaults.LowStockThreshold), "stock at or below this is low")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	list, err := r.products.LowStock(ctx, *threshold)
	if err != nil {
		return err
	}
	return r.print("", list)
}

func productDelete(ctx context.Context, r *Runner, fs *flag.FlagSet, args []string) error {
	id := fs.Int64("id", 0, "product id")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := requireFlags(fs, "id"); err != nil {
		return err
	}
	p, err := r.products.Remove(ctx, *id)
	if err != nil {
		return err
	}
	return r.print("Deleted product:", p)
}

func customerAdd(ctx context.Context, r *Runner, fs *flag.FlagSet, args []string) error {
	name := fs.String("name", "", "customer name")
	email := fs.String("email", "", "unique email")
	phone := fs.String("phone", "", "phone number")
	city := fs.String("city", "", "city")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := requireFlags(fs, "name", "email", "phone"); err != nil {
		return err
	}
	c, err := r.customers.Create(ctx, *name, *email, *phone, optional(fs, "city", *city))
	if err != nil {
		return err
	}
	return r.print("Created customer:", c)
}

func customerUpdate(ctx context.Context, r *Runner, fs *flag.FlagSet, args []string) error {
	email := fs.String("email", "", "email of the customer to update")
	phone := fs.String("phone", "", "new phone")
	city := fs.String("city", "", "new city")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := requireFlags(fs, "email"); err != nil {
		return err
	}
	if *phone == "" && *city == "" {
		return apperr.InvalidInput("At least one of --phone or --city must be provided.")
	}

	c, err := r.customerByEmail(ctx, *email)
	if err != nil {
		return err
	}
	updated, err := r.customers.Update(ctx, c.ID, optional(fs, "phone", *phone), optional(fs, "city", *city))
	if err != nil {
		return err
	}
	return r.print("Updated customer:", updated)
}

func customerDelete(ctx context.Context, r *Runner, fs *flag.FlagSet, args []string) error {
	email := fs.String("email", "", "email of the customer to delete")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := requireFlags(fs, "email"); err != nil {
		return err
	}

	c, err := r.customerByEmail(ctx, *email)
	if err != nil {
		return err
	}
	deleted, err := r.customers.Delete(ctx, c.ID)
	if err != nil {
		return err
	}
	return r.print("Deleted customer:", deleted)
}

func (r *Runner) customerByEmail(ctx context.Context, email string) (*models.Customer, error) {
	c, err := r.customers.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apperr.NotFound("No customer found with email '%s'.", email)
	}
	return c, nil
}

func customerList(ctx context.Context, r *Runner, fs *flag.FlagSet, args []string) error {
	limit := fs.Int("limit", r.cfg.Defaults.ListLimit, "maximum rows")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	list, err := r.customers.List(ctx, *limit)
	if err != nil {
		return err
	}
	return r.print("", list)
}

func customerSearch(ctx context.Context, r *Runner, fs *flag.FlagSet, args []string) error {
	email := fs.String("email", "", "exact email")
	city := fs.String("city", "", "exact city")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	list, err := r.customers.Search(ctx, *email, *city)
	if err != nil {
		return err
	}
	return r.print("", list)
}

func orderCreate(ctx context.Context, r *Runner, fs *flag.FlagSet, args []string) error {
	customer := fs.Int64("customer", 0, "customer id")
	var raw itemList
	fs.Var(&raw, "item", "PROD:QTY, repeatable")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := requireFlags(fs, "customer", "item"); err != nil {
		return err
	}
	// "--item 1:2 3:1" leaves the later pairs as positional arguments.
	raw = append(raw, fs.Args()...)

	items, err := parseItems(raw)
	if err != nil {
		return err
	}
	details, err := r.orders.CreateOrder(ctx, *customer, items)
	if err != nil {
		return err
	}
	return r.print("Order created:", details)
}

func orderFlag(fs *flag.FlagSet, args []string) (int64, error) {
	id := fs.Int64("order", 0, "order id")
	if err := parseFlags(fs, args); err != nil {
		return 0, err
	}
	if err := requireFlags(fs, "order"); err != nil {
		return 0, err
	}
	return *id, nil
}

func orderShow(ctx context.Context, r *Runner, fs *flag.FlagSet, args []string) error {
	id, err := orderFlag(fs, args)
	if err != nil {
		return err
	}
	details, err := r.orders.GetOrderDetails(ctx, id)
	if err != nil {
		return err
	}
	return r.print("", details)
}

func orderCancel(ctx context.Context, r *Runner, fs *flag.FlagSet, args []string) error {
	id, err := orderFlag(fs, args)
	if err != nil {
		return err
	}
	details, err := r.orders.CancelOrder(ctx, id)
	if err != nil {
		return err
	}
	return r.print("Order cancelled (updated):", details)
}

func orderComplete(ctx context.Context, r *Runner, fs *flag.FlagSet, args []string) error {
	id, err := orderFlag(fs, args)
	if err != nil {
		return err
	}
	details, err := r.orders.CompleteOrder(ctx, id)
	if err != nil {
		return err
	}
	return r.print("Order marked as completed:", details)
}

func orderList(ctx context.Context, r *Runner, fs *flag.FlagSet, args []string) error {
	customer := fs.Int64("customer", 0, "customer id")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := requireFlags(fs, "customer"); err != nil {
		return err
	}
	list, err := r.orders.GetOrdersByCustomer(ctx, *customer)
	if err != nil {
		return err
	}
	return r.print("", list)
}

func orderPay(ctx context.Context, r *Runner, fs *flag.FlagSet, args []string) error {
	id := fs.Int64("order", 0, "order id")
	method := &choiceValue{choices: models.PaymentMethods}
	fs.Var(method, "method", strings.Join(models.PaymentMethods, ", "))
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := requireFlags(fs, "order", "method"); err != nil {
		return err
	}
	details, err := r.orders.ProcessPayment(ctx, *id, method.value)
	if err != nil {
		return err
	}
	return r.print("Payment processed and order completed:", details)
}

func reportTop(ctx context.Context, r *Runner, fs *flag.FlagSet, args []string) error {
	n := fs.Int("n", reports.DefaultTopN, "how many products")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	top, err := r.reports.TopSellingProducts(ctx, *n)
	if err != nil {
		return err
	}
	return r.print("", top)
}

func reportRevenue(ctx context.Context, r *Runner, fs *flag.FlagSet, args []string) error {
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	total, err := r.reports.RevenueLastMonth(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(r.out, "Total revenue in last month:", total.String())
	return err
}

func reportOrdersByCustomer(ctx context.Context, r *Runner, fs *flag.FlagSet, args []string) error {
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	counts, err := r.reports.OrdersByCustomer(ctx)
	if err != nil {
		return err
	}
	return r.print("", counts)
}

func reportBigCustomers(ctx context.Context, r *Runner, fs *flag.FlagSet, args []string) error {
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	ids, err := r.reports.RepeatCustomers(ctx)
	if err != nil {
		return err
	}
	return r.print("", ids)
}

func dbSchema(ctx context.Context, r *Runner, fs *flag.FlagSet, args []string) error {
	dialect := database.Dialect(r.cfg.Store.Backend)
	if dialect == "" {
		dialect = database.DialectPostgres
	}
	fs.StringVar(&dialect, "dialect", dialect, "postgres or mysql")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	stmts, err := database.Schema(dialect)
	if err != nil {
		return usageErrorf("%s: %v", fs.Name(), err)
	}
	for _, stmt := range stmts {
		if _, err := fmt.Fprintf(r.out, "%s\n\n", strings.TrimSpace(dedent(stmt))); err != nil {
			return err
		}
	}
	return nil
}

func dbInit(ctx context.Context, r *Runner, fs *flag.FlagSet, args []string) error {
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	b, ok := r.store.(database.Bootstrapper)
	if !ok {
		return errNoBootstrap(r.cfg.Store.Backend)
	}
	if err := b.Bootstrap(ctx); err != nil {
		if errors.Is(err, database.ErrNoBootstrap) {
			return errNoBootstrap(r.cfg.Store.Backend)
		}
		return err
	}
	_, err := fmt.Fprintf(r.out, "Initialised %s store: %s\n", r.cfg.Store.Backend, strings.Join(database.Tables, ", "))
	return err
}

func errNoBootstrap(backend string) error {
	if backend == config.BackendSupabase {
		return apperr.InvalidState("The supabase backend cannot create tables; run the output of 'db schema' in the SQL editor.")
	}
	return apperr.InvalidState("The %s backend cannot create tables.", backend)
}

// dedent strips the common tab indentation of the embedded DDL.
func dedent(s string) string {
	lines := strings.Split(strings.Trim(s, "\n"), "\n")
	common := -1
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		indent := len(l) - len(strings.TrimLeft(l, "\t"))
		if common < 0 || indent < common {
			common = indent
		}
	}
	for i, l := range lines {
		if common > 0 && len(l) >= common {
			lines[i] = l[common:]
		}
	}
	return strings.Join(lines, "\n")
}
