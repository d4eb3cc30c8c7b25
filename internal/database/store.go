package database

import (
	"context"
	"errors"
	"fmt"
)

// ErrDuplicate is returned (wrapped) when an insert violates a unique column.
var ErrDuplicate = errors.New("duplicate key")

// ErrUnfiltered guards Update and Delete against touching every row of a table.
var ErrUnfiltered = errors.New("update/delete requires at least one filter")

// ErrNoBootstrap is returned when the backend cannot create tables itself.
var ErrNoBootstrap = errors.New("backend cannot create tables")

// Row is one record as the store returns it, keyed by column name.
// Values are normalised by every backend to int64, string, decimal.Decimal,
// time.Time or nil.
type Row map[string]any

// Store is the remote table store. Every call is independent and durable once
// it returns; there are no transactions.
type Store interface {
	// Insert adds one row and returns it as stored, including the
	// store-assigned primary key.
	Insert(ctx context.Context, table string, row Row) (Row, error)
	Select(ctx context.Context, table string, q *Query) ([]Row, error)
	// Update sets fields on every row matching q and reports how many rows matched.
	Update(ctx context.Context, table string, fields Row, q *Query) (int64, error)
	Delete(ctx context.Context, table string, q *Query) (int64, error)
	Close() error
}

// Bootstrapper is implemented by backends that can create the retail tables.
type Bootstrapper interface {
	Bootstrap(ctx context.Context) error
}

type Op string

const (
	OpEq  Op = "eq"
	OpGte Op = "gte"
)

type Filter struct {
	Column string
	Op     Op
	Value  any
}

// Query describes a select: projection, predicates (ANDed), ordering and limit.
// A nil *Query selects everything.
type Query struct {
	columns []string
	filters []Filter
	orderBy string
	desc    bool
	limit   int
}

func NewQuery() *Query {
	return &Query{}
}

// Eq is a convenience for NewQuery().Eq(column, value).
func Eq(column string, value any) *Query {
	return NewQuery().Eq(column, value)
}

func (q *Query) Select(columns ...string) *Query {
	q.columns = append(q.columns, columns...)
	return q
}

func (q *Query) Eq(column string, value any) *Query {
	q.filters = append(q.filters, Filter{Column: column, Op: OpEq, Value: value})
	return q
}

func (q *Query) Gte(column string, value any) *Query {
	q.filters = append(q.filters, Filter{Column: column, Op: OpGte, Value: value})
	return q
}

func (q *Query) OrderBy(column string, desc bool) *Query {
	q.orderBy = column
	q.desc = desc
	return q
}

func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

func (q *Query) Filters() []Filter {
	if q == nil {
		return nil
	}
	return q.filters
}

func (q *Query) String() string {
	if q == nil {
		return "all"
	}
	return fmt.Sprintf("columns=%v filters=%v order=%s desc=%t limit=%d", q.columns, q.filters, q.orderBy, q.desc, q.limit)
}

func requireFilters(q *Query) error {
	if len(q.Filters()) == 0 {
		return ErrUnfiltered
	}
	return nil
}
