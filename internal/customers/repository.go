package customers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"retail-cli/internal/apperr"
	"retail-cli/internal/database"
	"retail-cli/internal/models"
)

// Repository reads and writes the customers table. Emails are unique and a
// customer with orders cannot be deleted.
type Repository struct {
	store database.Store
	log   *zap.Logger
}

func NewRepository(store database.Store, log *zap.Logger) *Repository {
	return &Repository{store: store, log: log}
}

func (r *Repository) Create(ctx context.Context, name, email, phone string, city *string) (*models.Customer, error) {
	name, email, phone = strings.TrimSpace(name), strings.TrimSpace(email), strings.TrimSpace(phone)
	if name == "" || email == "" || phone == "" {
		return nil, apperr.InvalidInput("Name, email and phone are required.")
	}

	existing, err := r.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.Conflict("Customer with email '%s' already exists.", email)
	}

	row := database.Row{"name": name, "email": email, "phone": phone}
	if city != nil && *city != "" {
		row["city"] = *city
	}
	stored, err := r.store.Insert(ctx, database.TableCustomers, row)
	if errors.Is(err, database.ErrDuplicate) {
		r.log.Debug("duplicate email on insert", zap.String("email", email), zap.Error(err))
		return nil, apperr.Conflict("Customer with email '%s' already exists.", email)
	}
	if err != nil {
		return nil, fmt.Errorf("insert customer: %w", err)
	}

	c, err := models.CustomerFromRow(stored)
	if err != nil {
		return nil, err
	}
	r.log.Info("customer created", zap.Int64("cust_id", c.ID))
	return &c, nil
}

// GetByID returns nil when no customer has the id.
func (r *Repository) GetByID(ctx context.Context, id int64) (*models.Customer, error) {
	return r.first(ctx, database.Eq("cust_id", id).Limit(1))
}

// GetByEmail returns nil when no customer has the email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.Customer, error) {
	return r.first(ctx, database.Eq("email", email).Limit(1))
}

// Update changes the phone and/or city and returns the re-read customer.
func (r *Repository) Update(ctx context.Context, id int64, phone, city *string) (*models.Customer, error) {
	fields := database.Row{}
	if phone != nil && *phone != "" {
		fields["phone"] = *phone
	}
	if city != nil && *city != "" {
		fields["city"] = *city
	}
	if len(fields) == 0 {
		return nil, apperr.InvalidInput("No fields to update.")
	}

	if _, err := r.store.Update(ctx, database.TableCustomers, fields, database.Eq("cust_id", id)); err != nil {
		return nil, fmt.Errorf("update customer %d: %w", id, err)
	}
	c, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apperr.NotFound("Customer with id %d does not exist.", id)
	}
	r.log.Info("customer updated", zap.Int64("cust_id", id))
	return c, nil
}

// Delete removes a customer without orders and returns the row as it was, or
// nil if there was no such customer.
func (r *Repository) Delete(ctx context.Context, id int64) (*models.Customer, error) {
	orders, err := r.store.Select(ctx, database.TableOrders,
		database.Eq("cust_id", id).Select("order_id").Limit(1))
	if err != nil {
		return nil, fmt.Errorf("check orders of customer %d: %w", id, err)
	}
	if len(orders) > 0 {
		return nil, apperr.Conflict("Cannot delete customer: existing orders found.")
	}

	before, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := r.store.Delete(ctx, database.TableCustomers, database.Eq("cust_id", id)); err != nil {
		return nil, fmt.Errorf("delete customer %d: %w", id, err)
	}
	if before != nil {
		r.log.Info("customer deleted", zap.Int64("cust_id", id))
	}
	return before, nil
}

func (r *Repository) List(ctx context.Context, limit int) ([]models.Customer, error) {
	return r.all(ctx, database.NewQuery().OrderBy("cust_id", false).Limit(limit))
}

// Search filters by email and/or city; with neither it returns every customer.
func (r *Repository) Search(ctx context.Context, email, city string) ([]models.Customer, error) {
	q := database.NewQuery().OrderBy("cust_id", false)
	if email != "" {
		q = q.Eq("email", email)
	}
	if city != "" {
		q = q.Eq("city", city)
	}
	return r.all(ctx, q)
}

func (r *Repository) first(ctx context.Context, q *database.Query) (*models.Customer, error) {
	list, err := r.all(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return &list[0], nil
}

func (r *Repository) all(ctx context.Context, q *database.Query) ([]models.Customer, error) {
	rows, err := r.store.Select(ctx, database.TableCustomers, q)
	if err != nil {
		return nil, fmt.Errorf("select customers: %w", err)
	}
	out := make([]models.Customer, 0, len(rows))
	for _, row := range rows {
		c, err := models.CustomerFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
