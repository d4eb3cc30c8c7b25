package database

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// SupabaseStore talks to a PostgREST endpoint such as the one Supabase exposes
// under /rest/v1.
type SupabaseStore struct {
	client *resty.Client
}

type postgrestError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func NewSupabaseStore(baseURL, key, schema string) (*SupabaseStore, error) {
	if baseURL == "" || key == "" {
		return nil, fmt.Errorf("supabase url and key are required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid supabase url: %w", err)
	}
	if schema == "" {
		schema = "public"
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")+"/rest/v1").
		SetTimeout(15*time.Second).
		SetHeader("apikey", key).
		SetAuthToken(key).
		SetHeader("Accept", "application/json").
		SetHeader("Accept-Profile", schema).
		SetHeader("Content-Profile", schema)
	return &SupabaseStore{client: client}, nil
}

func (ss *SupabaseStore) Close() error {
	return nil
}

func (ss *SupabaseStore) Insert(ctx context.Context, table string, row Row) (Row, error) {
	if _, err := primaryKey(table); err != nil {
		return nil, err
	}
	resp, err := ss.client.R().
		SetContext(ctx).
		SetHeader("Prefer", "return=representation").
		SetBody(restBody(row)).
		Post("/" + table)
	if err != nil {
		return nil, err
	}
	rows, err := decodeRestRows(resp)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("insert into %s returned no row", table)
	}
	return rows[0], nil
}

func (ss *SupabaseStore) Select(ctx context.Context, table string, q *Query) ([]Row, error) {
	if q == nil {
		q = NewQuery()
	}
	params := restFilters(q.filters)
	if len(q.columns) > 0 {
		params.Set("select", strings.Join(q.columns, ","))
	}
	if q.orderBy != "" {
		dir := "asc"
		if q.desc {
			dir = "desc"
		}
		params.Set("order", q.orderBy+"."+dir)
	}
	if q.limit > 0 {
		params.Set("limit", fmt.Sprint(q.limit))
	}

	resp, err := ss.client.R().
		SetContext(ctx).
		SetQueryParamsFromValues(params).
		Get("/" + table)
	if err != nil {
		return nil, err
	}
	return decodeRestRows(resp)
}

// Update reports the number of rows PostgREST hands back, which is the number
// of matched rows.
func (ss *SupabaseStore) Update(ctx context.Context, table string, fields Row, q *Query) (int64, error) {
	if err := requireFilters(q); err != nil {
		return 0, err
	}
	resp, err := ss.client.R().
		SetContext(ctx).
		SetHeader("Prefer", "return=representation").
		SetQueryParamsFromValues(restFilters(q.filters)).
		SetBody(restBody(fields)).
		Patch("/" + table)
	if err != nil {
		return 0, err
	}
	rows, err := decodeRestRows(resp)
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

func (ss *SupabaseStore) Delete(ctx context.Context, table string, q *Query) (int64, error) {
	if err := requireFilters(q); err != nil {
		return 0, err
	}
	resp, err := ss.client.R().
		SetContext(ctx).
		SetHeader("Prefer", "return=representation").
		SetQueryParamsFromValues(restFilters(q.filters)).
		Delete("/" + table)
	if err != nil {
		return 0, err
	}
	rows, err := decodeRestRows(resp)
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

func restFilters(filters []Filter) url.Values {
	params := url.Values{}
	for _, f := range filters {
		params.Add(f.Column, string(f.Op)+"."+restValue(f.Value))
	}
	return params
}

func restValue(v any) string {
	switch x := normalizeValue(v).(type) {
	case nil:
		return "null"
	case time.Time:
		return x.Format(time.RFC3339Nano)
	default:
		return toString(x)
	}
}

func restBody(row Row) map[string]any {
	body := make(map[string]any, len(row))
	for k, v := range row {
		switch x := normalizeValue(v).(type) {
		case time.Time:
			body[k] = x.Format(time.RFC3339Nano)
		default:
			body[k] = x
		}
	}
	return body
}

func decodeRestRows(resp *resty.Response) ([]Row, error) {
	if resp.StatusCode() >= http.StatusMultipleChoices {
		return nil, restError(resp)
	}
	body := resp.Body()
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw []map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	rows := make([]Row, len(raw))
	for i, m := range raw {
		for k, v := range m {
			if n, ok := v.(json.Number); ok {
				m[k] = restNumber(n)
			}
		}
		rows[i] = normalizeRow(m)
	}
	return rows, nil
}

func restNumber(n json.Number) any {
	if i, err := n.Int64(); err == nil {
		return i
	}
	if d, err := decimal.NewFromString(n.String()); err == nil {
		return d
	}
	return n.String()
}

func restError(resp *resty.Response) error {
	var pe postgrestError
	if err := json.Unmarshal(resp.Body(), &pe); err != nil || pe.Message == "" {
		return fmt.Errorf("postgrest %s: %s", resp.Status(), strings.TrimSpace(string(resp.Body())))
	}
	if pe.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicate, pe.Details)
	}
	return fmt.Errorf("postgrest %s: %s (%s)", resp.Status(), pe.Message, pe.Code)
}
