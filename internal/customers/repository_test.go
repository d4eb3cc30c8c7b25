package customers

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"retail-cli/internal/apperr"
	"retail-cli/internal/database"
)

func strPtr(s string) *string { return &s }

func newTestRepository(t *testing.T) (*Repository, database.Store) {
	t.Helper()
	store := database.NewMemoryStore()
	return NewRepository(store, zap.NewNop()), store
}

func TestCreate(t *testing.T) {
	r, _ := newTestRepository(t)
	ctx := context.Background()

	c, err := r.Create(ctx, "Asha", "asha@example.com", "98450", strPtr("Pune"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.ID)
	assert.Equal(t, "asha@example.com", c.Email)
	require.NotNil(t, c.City)
	assert.Equal(t, "Pune", *c.City)

	noCity, err := r.Create(ctx, "Ravi", "ravi@example.com", "98451", nil)
	require.NoError(t, err)
	assert.Nil(t, noCity.City)
}

func TestCreateRejects(t *testing.T) {
	r, _ := newTestRepository(t)
	ctx := context.Background()
	_, err := r.Create(ctx, "Asha", "asha@example.com", "98450", nil)
	require.NoError(t, err)

	_, err = r.Create(ctx, "Other", "asha@example.com", "1", nil)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.EqualError(t, err, "Customer with email 'asha@example.com' already exists.")

	_, err = r.Create(ctx, "Other", "other@example.com", " ", nil)
	assert.True(t, apperr.Is(err, apperr.KindInvalidInput))
}

func TestUpdate(t *testing.T) {
	r, _ := newTestRepository(t)
	ctx := context.Background()
	c, err := r.Create(ctx, "Asha", "asha@example.com", "98450", nil)
	require.NoError(t, err)

	updated, err := r.Update(ctx, c.ID, nil, strPtr("Mumbai"))
	require.NoError(t, err)
	assert.Equal(t, "98450", updated.Phone)
	require.NotNil(t, updated.City)
	assert.Equal(t, "Mumbai", *updated.City)

	updated, err = r.Update(ctx, c.ID, strPtr("11111"), nil)
	require.NoError(t, err)
	assert.Equal(t, "11111", updated.Phone)

	_, err = r.Update(ctx, c.ID, nil, strPtr(""))
	assert.True(t, apperr.Is(err, apperr.KindInvalidInput))
	assert.EqualError(t, err, "No fields to update.")

	_, err = r.Update(ctx, 42, strPtr("1"), nil)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

// duplicateStore fails every insert on the unique key, as when a concurrent
// insert wins after the email check.
type duplicateStore struct {
	database.Store
}

func (duplicateStore) Insert(ctx context.Context, table string, row database.Row) (database.Row, error) {
	return nil, fmt.Errorf("%w: customers_email_key", database.ErrDuplicate)
}

func TestCreateDuplicateOnInsert(t *testing.T) {
	r := NewRepository(duplicateStore{Store: database.NewMemoryStore()}, zap.NewNop())

	_, err := r.Create(context.Background(), "Asha", "asha@example.com", "98450", nil)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.EqualError(t, err, "Customer with email 'asha@example.com' already exists.")
}

func TestDelete(t *testing.T) {
	r, store := newTestRepository(t)
	ctx := context.Background()
	idle, err := r.Create(ctx, "Asha", "asha@example.com", "1", nil)
	require.NoError(t, err)
	buyer, err := r.Create(ctx, "Ravi", "ravi@example.com", "2", nil)
	require.NoError(t, err)
	_, err = store.Insert(ctx, database.TableOrders, database.Row{
		"cust_id": buyer.ID, "total_amount": decimal.NewFromInt(5), "status": "PLACED",
	})
	require.NoError(t, err)

	_, err = r.Delete(ctx, buyer.ID)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.EqualError(t, err, "Cannot delete customer: existing orders found.")

	deleted, err := r.Delete(ctx, idle.ID)
	require.NoError(t, err)
	require.NotNil(t, deleted)
	assert.Equal(t, "asha@example.com", deleted.Email)

	gone, err := r.GetByID(ctx, idle.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	missing, err := r.Delete(ctx, idle.ID)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListAndSearch(t *testing.T) {
	r, _ := newTestRepository(t)
	ctx := context.Background()
	for _, c := range []struct{ name, email, city string }{
		{"Asha", "asha@example.com", "Pune"},
		{"Ravi", "ravi@example.com", "Delhi"},
		{"Meera", "meera@example.com", "Pune"},
	} {
		_, err := r.Create(ctx, c.name, c.email, "1", strPtr(c.city))
		require.NoError(t, err)
	}

	list, err := r.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Asha", list[0].Name)
	assert.Equal(t, "Ravi", list[1].Name)

	tests := []struct {
		name        string
		email, city string
		want        []string
	}{
		{"no filters", "", "", []string{"Asha", "Ravi", "Meera"}},
		{"city", "", "Pune", []string{"Asha", "Meera"}},
		{"email", "ravi@example.com", "", []string{"Ravi"}},
		{"both", "ravi@example.com", "Pune", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found, err := r.Search(ctx, tt.email, tt.city)
			require.NoError(t, err)
			names := []string{}
			for _, c := range found {
				names = append(names, c.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}
