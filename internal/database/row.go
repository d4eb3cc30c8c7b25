package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999-07:00",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Has reports whether the column is present and non-null.
func (r Row) Has(col string) bool {
	v, ok := r[col]
	return ok && v != nil
}

func (r Row) Int64(col string) (int64, error) {
	v, ok := r[col]
	if !ok || v == nil {
		return 0, fmt.Errorf("column %q is missing", col)
	}
	n, err := toInt64(v)
	if err != nil {
		return 0, fmt.Errorf("column %q: %w", col, err)
	}
	return n, nil
}

func (r Row) String(col string) (string, error) {
	v, ok := r[col]
	if !ok || v == nil {
		return "", fmt.Errorf("column %q is missing", col)
	}
	return toString(v), nil
}

// NullString returns nil for a missing or null column.
func (r Row) NullString(col string) *string {
	if !r.Has(col) {
		return nil
	}
	s := toString(r[col])
	return &s
}

func (r Row) Decimal(col string) (decimal.Decimal, error) {
	v, ok := r[col]
	if !ok || v == nil {
		return decimal.Zero, fmt.Errorf("column %q is missing", col)
	}
	d, err := toDecimal(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("column %q: %w", col, err)
	}
	return d, nil
}

func (r Row) Time(col string) (time.Time, error) {
	v, ok := r[col]
	if !ok || v == nil {
		return time.Time{}, fmt.Errorf("column %q is missing", col)
	}
	t, err := toTime(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("column %q: %w", col, err)
	}
	return t, nil
}

// NullTime returns nil for a missing or null column.
func (r Row) NullTime(col string) (*time.Time, error) {
	if !r.Has(col) {
		return nil, nil
	}
	t, err := r.Time(col)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Clone returns a shallow copy.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// normalizeValue maps driver-specific scalar types onto the canonical set
// shared by all backends.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC()
	case *decimal.Decimal:
		if x == nil {
			return nil
		}
		return *x
	}
	return v
}

func normalizeRow(in map[string]any) Row {
	out := make(Row, len(in))
	for k, v := range in {
		out[k] = normalizeValue(v)
	}
	return out
}

func valuerValue(v driver.Valuer) (any, error) {
	dv, err := v.Value()
	if err != nil {
		return nil, err
	}
	return normalizeValue(dv), nil
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case float64:
		if x != float64(int64(x)) {
			return 0, fmt.Errorf("%v is not an integer", x)
		}
		return int64(x), nil
	case json.Number:
		return x.Int64()
	case string:
		return strconv.ParseInt(strings.TrimSpace(x), 10, 64)
	case []byte:
		return strconv.ParseInt(string(x), 10, 64)
	case decimal.Decimal:
		if !x.IsInteger() {
			return 0, fmt.Errorf("%s is not an integer", x)
		}
		return x.IntPart(), nil
	case driver.Valuer:
		dv, err := valuerValue(x)
		if err != nil {
			return 0, err
		}
		if dv == nil {
			return 0, fmt.Errorf("null value")
		}
		return toInt64(dv)
	}
	return 0, fmt.Errorf("cannot convert %T to int64", v)
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case decimal.Decimal:
		return x, nil
	case int64:
		return decimal.NewFromInt(x), nil
	case int:
		return decimal.NewFromInt(int64(x)), nil
	case int32:
		return decimal.NewFromInt(int64(x)), nil
	case float64:
		return decimal.NewFromFloat(x), nil
	case json.Number:
		return decimal.NewFromString(x.String())
	case string:
		return decimal.NewFromString(strings.TrimSpace(x))
	case []byte:
		return decimal.NewFromString(string(x))
	case driver.Valuer:
		dv, err := valuerValue(x)
		if err != nil {
			return decimal.Zero, err
		}
		if dv == nil {
			return decimal.Zero, fmt.Errorf("null value")
		}
		return toDecimal(dv)
	}
	return decimal.Zero, fmt.Errorf("cannot convert %T to decimal", v)
}

func toTime(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), nil
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, x); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognised timestamp %q", x)
	case []byte:
		return toTime(string(x))
	case driver.Valuer:
		dv, err := valuerValue(x)
		if err != nil {
			return time.Time{}, err
		}
		return toTime(dv)
	}
	return time.Time{}, fmt.Errorf("cannot convert %T to time", v)
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}

// compareValues orders two normalised values. ok is false when the pair is
// not comparable.
func compareValues(a, b any) (cmp int, ok bool) {
	a, b = normalizeValue(a), normalizeValue(b)
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0, true
		case a == nil:
			return -1, true
		default:
			return 1, true
		}
	}

	switch x := a.(type) {
	case int64:
		switch y := b.(type) {
		case int64:
			return cmpOrdered(x, y), true
		case decimal.Decimal:
			return decimal.NewFromInt(x).Cmp(y), true
		}
	case decimal.Decimal:
		if y, err := toDecimal(b); err == nil {
			return x.Cmp(y), true
		}
	case string:
		if y, isStr := b.(string); isStr {
			return strings.Compare(x, y), true
		}
	case time.Time:
		if y, err := toTime(b); err == nil {
			return x.Compare(y), true
		}
	case bool:
		if y, isBool := b.(bool); isBool {
			switch {
			case x == y:
				return 0, true
			case !x:
				return -1, true
			default:
				return 1, true
			}
		}
	}
	return 0, false
}

func cmpOrdered(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
