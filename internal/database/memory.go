package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps tables in process memory. It enforces primary keys and the
// unique columns from UniqueColumns, like the SQL schema does.
type MemoryStore struct {
	mu     sync.Mutex
	tables map[string]*memTable
}

type memTable struct {
	nextID int64
	rows   []Row
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: make(map[string]*memTable)}
}

func (ms *MemoryStore) table(name string) (*memTable, error) {
	if _, err := primaryKey(name); err != nil {
		return nil, err
	}
	t, ok := ms.tables[name]
	if !ok {
		t = &memTable{}
		ms.tables[name] = t
	}
	return t, nil
}

func (ms *MemoryStore) Insert(ctx context.Context, table string, row Row) (Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()

	t, err := ms.table(table)
	if err != nil {
		return nil, err
	}
	pk := PrimaryKeys[table]

	stored := normalizeRow(row)
	if id, ok := stored[pk]; ok && id != nil {
		n, err := toInt64(id)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", table, pk, err)
		}
		if n > t.nextID {
			t.nextID = n
		}
	} else {
		t.nextID++
		stored[pk] = t.nextID
	}

	for _, col := range append([]string{pk}, UniqueColumns[table]...) {
		v, ok := stored[col]
		if !ok || v == nil {
			continue
		}
		for _, existing := range t.rows {
			if c, ok := compareValues(existing[col], v); ok && c == 0 {
				return nil, fmt.Errorf("%w: %s.%s = %v", ErrDuplicate, table, col, v)
			}
		}
	}

	t.rows = append(t.rows, stored)
	return stored.Clone(), nil
}

func (ms *MemoryStore) Select(ctx context.Context, table string, q *Query) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if q == nil {
		q = NewQuery()
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()

	t, err := ms.table(table)
	if err != nil {
		return nil, err
	}

	var out []Row
	for _, row := range t.rows {
		if matches(row, q.filters) {
			out = append(out, row)
		}
	}

	if q.orderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			c, _ := compareValues(out[i][q.orderBy], out[j][q.orderBy])
			if q.desc {
				return c > 0
			}
			return c < 0
		})
	}
	if q.limit > 0 && len(out) > q.limit {
		out = out[:q.limit]
	}

	result := make([]Row, 0, len(out))
	for _, row := range out {
		result = append(result, project(row, q.columns))
	}
	return result, nil
}

func (ms *MemoryStore) Update(ctx context.Context, table string, fields Row, q *Query) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := requireFilters(q); err != nil {
		return 0, err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()

	t, err := ms.table(table)
	if err != nil {
		return 0, err
	}

	var affected int64
	for _, row := range t.rows {
		if !matches(row, q.filters) {
			continue
		}
		for k, v := range fields {
			row[k] = normalizeValue(v)
		}
		affected++
	}
	return affected, nil
}

func (ms *MemoryStore) Delete(ctx context.Context, table string, q *Query) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := requireFilters(q); err != nil {
		return 0, err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()

	t, err := ms.table(table)
	if err != nil {
		return 0, err
	}

	kept := t.rows[:0]
	var affected int64
	for _, row := range t.rows {
		if matches(row, q.filters) {
			affected++
			continue
		}
		kept = append(kept, row)
	}
	t.rows = kept
	return affected, nil
}

func (ms *MemoryStore) Close() error {
	return nil
}

// Bootstrap is a no-op: memory tables are created on first use.
func (ms *MemoryStore) Bootstrap(ctx context.Context) error {
	return nil
}

// matches applies SQL comparison rules: NULL on either side never matches.
func matches(row Row, filters []Filter) bool {
	for _, f := range filters {
		if normalizeValue(row[f.Column]) == nil || normalizeValue(f.Value) == nil {
			return false
		}
		c, ok := compareValues(row[f.Column], f.Value)
		if !ok {
			return false
		}
		switch f.Op {
		case OpEq:
			if c != 0 {
				return false
			}
		case OpGte:
			if c < 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func project(row Row, columns []string) Row {
	if len(columns) == 0 {
		return row.Clone()
	}
	out := make(Row, len(columns))
	for _, c := range columns {
		if v, ok := row[c]; ok {
			out[c] = v
		}
	}
	return out
}
