package database

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	// one command per process; a single connection is enough
	config.MaxConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (ps *PostgresStore) Close() error {
	ps.pool.Close()
	return nil
}

func (ps *PostgresStore) Bootstrap(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := ps.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

func (ps *PostgresStore) Insert(ctx context.Context, table string, row Row) (Row, error) {
	if _, err := primaryKey(table); err != nil {
		return nil, err
	}
	cols := sortedColumns(row)
	idents := make([]string, len(cols))
	marks := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		idents[i] = pgIdent(c)
		marks[i] = fmt.Sprintf("$%d", i+1)
		args[i] = row[c]
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		pgIdent(table), strings.Join(idents, ", "), strings.Join(marks, ", "))

	rows, err := ps.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, pgError(err)
	}
	out, err := collectPgRows(rows)
	if err != nil {
		return nil, pgError(err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("insert into %s returned no row", table)
	}
	return out[0], nil
}

func (ps *PostgresStore) Select(ctx context.Context, table string, q *Query) ([]Row, error) {
	if q == nil {
		q = NewQuery()
	}
	projection := "*"
	if len(q.columns) > 0 {
		idents := make([]string, len(q.columns))
		for i, c := range q.columns {
			idents[i] = pgIdent(c)
		}
		projection = strings.Join(idents, ", ")
	}

	where, args := pgWhere(q.filters, 1)
	query := fmt.Sprintf("SELECT %s FROM %s%s", projection, pgIdent(table), where)
	if q.orderBy != "" {
		dir := "ASC"
		if q.desc {
			dir = "DESC"
		}
		query += fmt.Sprintf(" ORDER BY %s %s", pgIdent(q.orderBy), dir)
	}
	if q.limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.limit)
	}

	rows, err := ps.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, pgError(err)
	}
	return collectPgRows(rows)
}

func (ps *PostgresStore) Update(ctx context.Context, table string, fields Row, q *Query) (int64, error) {
	if err := requireFilters(q); err != nil {
		return 0, err
	}
	cols := sortedColumns(fields)
	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+len(q.filters))
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", pgIdent(c), i+1)
		args = append(args, fields[c])
	}
	where, whereArgs := pgWhere(q.filters, len(cols)+1)
	args = append(args, whereArgs...)

	query := fmt.Sprintf("UPDATE %s SET %s%s", pgIdent(table), strings.Join(sets, ", "), where)
	tag, err := ps.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, pgError(err)
	}
	return tag.RowsAffected(), nil
}

func (ps *PostgresStore) Delete(ctx context.Context, table string, q *Query) (int64, error) {
	if err := requireFilters(q); err != nil {
		return 0, err
	}
	where, args := pgWhere(q.filters, 1)
	tag, err := ps.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s%s", pgIdent(table), where), args...)
	if err != nil {
		return 0, pgError(err)
	}
	return tag.RowsAffected(), nil
}

func pgIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func pgWhere(filters []Filter, first int) (string, []any) {
	if len(filters) == 0 {
		return "", nil
	}
	clauses := make([]string, len(filters))
	args := make([]any, len(filters))
	for i, f := range filters {
		op := "="
		if f.Op == OpGte {
			op = ">="
		}
		clauses[i] = fmt.Sprintf("%s %s $%d", pgIdent(f.Column), op, first+i)
		args[i] = f.Value
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func collectPgRows(rows pgx.Rows) ([]Row, error) {
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}
	out := make([]Row, len(maps))
	for i, m := range maps {
		for k, v := range m {
			if n, ok := v.(pgtype.Numeric); ok {
				if !n.Valid {
					m[k] = nil
					continue
				}
				d, err := toDecimal(n)
				if err != nil {
					return nil, fmt.Errorf("column %q: %w", k, err)
				}
				m[k] = d
			}
		}
		out[i] = normalizeRow(m)
	}
	return out, nil
}

func pgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.Detail)
	}
	return err
}

func sortedColumns(row Row) []string {
	cols := make([]string, 0, len(row))
	for c := range row {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}
