package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

const mysqlDuplicateEntry = 1062

type MySQLStore struct {
	db *sqlx.DB
}

func NewMySQLStore(ctx context.Context, dsn string) (*MySQLStore, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	// report matched rather than changed rows from UPDATE
	cfg.ClientFoundRows = true

	db, err := sqlx.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, err
	}
	db.SetConnMaxLifetime(time.Minute * 3)
	db.SetMaxOpenConns(2)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach mysql: %w", err)
	}
	return &MySQLStore{db: db}, nil
}

func (md *MySQLStore) Close() error {
	return md.db.Close()
}

func (md *MySQLStore) Bootstrap(ctx context.Context) error {
	for _, stmt := range mysqlSchema {
		if _, err := md.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

func (md *MySQLStore) Insert(ctx context.Context, table string, row Row) (Row, error) {
	pk, err := primaryKey(table)
	if err != nil {
		return nil, err
	}
	cols := sortedColumns(row)
	idents := make([]string, len(cols))
	marks := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		idents[i] = myIdent(c)
		marks[i] = "?"
		args[i] = row[c]
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		myIdent(table), strings.Join(idents, ", "), strings.Join(marks, ", "))
	res, err := md.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, mysqlError(err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	if explicit, ok := row[pk]; ok && explicit != nil {
		if id, err = toInt64(explicit); err != nil {
			return nil, err
		}
	}

	rows, err := md.Select(ctx, table, Eq(pk, id).Limit(1))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("inserted %s row %d not found", table, id)
	}
	return rows[0], nil
}

func (md *MySQLStore) Select(ctx context.Context, table string, q *Query) ([]Row, error) {
	if q == nil {
		q = NewQuery()
	}
	projection := "*"
	if len(q.columns) > 0 {
		idents := make([]string, len(q.columns))
		for i, c := range q.columns {
			idents[i] = myIdent(c)
		}
		projection = strings.Join(idents, ", ")
	}

	where, args := myWhere(q.filters)
	query := fmt.Sprintf("SELECT %s FROM %s%s", projection, myIdent(table), where)
	if q.orderBy != "" {
		dir := "ASC"
		if q.desc {
			dir = "DESC"
		}
		query += fmt.Sprintf(" ORDER BY %s %s", myIdent(q.orderBy), dir)
	}
	if q.limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.limit)
	}

	rows, err := md.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, mysqlError(err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		m := make(map[string]any)
		if err := rows.MapScan(m); err != nil {
			return nil, err
		}
		out = append(out, normalizeRow(m))
	}
	return out, rows.Err()
}

func (md *MySQLStore) Update(ctx context.Context, table string, fields Row, q *Query) (int64, error) {
	if err := requireFilters(q); err != nil {
		return 0, err
	}
	cols := sortedColumns(fields)
	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+len(q.filters))
	for i, c := range cols {
		sets[i] = myIdent(c) + " = ?"
		args = append(args, fields[c])
	}
	where, whereArgs := myWhere(q.filters)
	args = append(args, whereArgs...)

	res, err := md.db.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET %s%s", myIdent(table), strings.Join(sets, ", "), where), args...)
	if err != nil {
		return 0, mysqlError(err)
	}
	return res.RowsAffected()
}

func (md *MySQLStore) Delete(ctx context.Context, table string, q *Query) (int64, error) {
	if err := requireFilters(q); err != nil {
		return 0, err
	}
	where, args := myWhere(q.filters)
	res, err := md.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s%s", myIdent(table), where), args...)
	if err != nil {
		return 0, mysqlError(err)
	}
	return res.RowsAffected()
}

func myIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func myWhere(filters []Filter) (string, []any) {
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
		clauses[i] = fmt.Sprintf("%s %s ?", myIdent(f.Column), op)
		args[i] = f.Value
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func mysqlError(err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
		return fmt.Errorf("%w: %s", ErrDuplicate, myErr.Message)
	}
	return err
}
