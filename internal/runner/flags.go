package runner

import (
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"retail-cli/internal/apperr"
	"retail-cli/internal/orders"
)

// itemList collects repeated --item PROD:QTY values. Entries are parsed when
// the command runs so that a malformed one is reported like any other input
// error.
type itemList []string

func (l *itemList) String() string {
	return strings.Join(*l, ",")
}

func (l *itemList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func parseItems(raw []string) ([]orders.Item, error) {
	items := make([]orders.Item, 0, len(raw))
	for _, s := range raw {
		pid, qty, ok := strings.Cut(s, ":")
		if !ok {
			return nil, errInvalidItem(s)
		}
		id, err := strconv.ParseInt(strings.TrimSpace(pid), 10, 64)
		if err != nil {
			return nil, errInvalidItem(s)
		}
		n, err := strconv.ParseInt(strings.TrimSpace(qty), 10, 64)
		if err != nil {
			return nil, errInvalidItem(s)
		}
		items = append(items, orders.Item{ProductID: id, Quantity: n})
	}
	return items, nil
}

func errInvalidItem(s string) error {
	return apperr.InvalidInput("Invalid item format: %s", s)
}

type decimalValue struct {
	d decimal.Decimal
}

func (v *decimalValue) String() string {
	return v.d.String()
}

func (v *decimalValue) Set(s string) error {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid decimal %q", s)
	}
	v.d = d
	return nil
}

// choiceValue accepts one of a fixed set of strings.
type choiceValue struct {
	value   string
	choices []string
}

func (v *choiceValue) String() string {
	return v.value
}

func (v *choiceValue) Set(s string) error {
	for _, c := range v.choices {
		if c == s {
			v.value = s
			return nil
		}
	}
	return fmt.Errorf("invalid choice %q (choose from %s)", s, strings.Join(v.choices, ", "))
}

// visited reports which flags were set on the command line.
func visited(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	return set
}

func requireFlags(fs *flag.FlagSet, names ...string) error {
	set := visited(fs)
	var missing []string
	for _, n := range names {
		if !set[n] {
			missing = append(missing, "--"+n)
		}
	}
	if len(missing) > 0 {
		return usageErrorf("%s: missing required flags: %s", fs.Name(), strings.Join(missing, ", "))
	}
	return nil
}

// optional returns a pointer to the flag's value when it was set.
func optional(fs *flag.FlagSet, name string, value string) *string {
	if !visited(fs)[name] {
		return nil
	}
	return &value
}
