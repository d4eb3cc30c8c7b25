package runner

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"time"

	"go.uber.org/zap"

	"retail-cli/internal/apperr"
	"retail-cli/internal/config"
	"retail-cli/internal/customers"
	"retail-cli/internal/database"
	"retail-cli/internal/orders"
	"retail-cli/internal/products"
	"retail-cli/internal/reports"
)

// ErrUsage marks errors caused by the command line itself rather than by the
// command. The caller prints usage and exits with status 2.
var ErrUsage = errors.New("usage error")

func usageErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUsage, fmt.Sprintf(format, args...))
}

// Runner dispatches one "<group> <action> [flags]" command against the store
// and renders the outcome.
type Runner struct {
	store database.Store
	cfg   *config.Config
	log   *zap.Logger
	out   io.Writer
	errw  io.Writer

	products  *products.Service
	customers *customers.Repository
	orders    *orders.Service
	reports   *reports.Service
}

type Option func(*runnerOptions)

type runnerOptions struct {
	now func() time.Time
}

// WithClock fixes the time used for order and payment stamps and reports.
func WithClock(now func() time.Time) Option {
	return func(o *runnerOptions) {
		o.now = now
	}
}

func New(store database.Store, cfg *config.Config, log *zap.Logger, out, errw io.Writer, opts ...Option) *Runner {
	o := runnerOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Runner{
		store:     store,
		cfg:       cfg,
		log:       log,
		out:       out,
		errw:      errw,
		products:  products.NewService(store, log),
		customers: customers.NewRepository(store, log),
		orders:    orders.NewService(store, log, orders.WithClock(o.now)),
		reports:   reports.NewService(store, log, reports.WithClock(o.now)),
	}
}

// Run executes args. Command failures are printed as "Error: ..." on the
// output writer and are not returned; only usage errors and output write
// failures come back to the caller.
func (r *Runner) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageErrorf("missing command group")
	}
	group, ok := commands[args[0]]
	if !ok {
		return usageErrorf("unknown command group %q", args[0])
	}
	if len(args) < 2 {
		return usageErrorf("%s: missing action", args[0])
	}
	cmd, ok := group[args[1]]
	if !ok {
		return usageErrorf("%s: unknown action %q", args[0], args[1])
	}

	r.log.Debug("running command", zap.String("group", args[0]), zap.String("action", args[1]))
	err := cmd.run(ctx, r, r.flagSet(args[0]+" "+args[1]), args[2:])
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrUsage):
		return err
	}

	if apperr.KindOf(err) == 0 {
		r.log.Error("command failed", zap.String("group", args[0]), zap.String("action", args[1]), zap.Error(err))
	} else {
		r.log.Debug("command rejected", zap.Stringer("kind", apperr.KindOf(err)), zap.Error(err))
	}
	_, werr := fmt.Fprintf(r.out, "Error: %s\n", err)
	return werr
}

func (r *Runner) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(r.errw)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return usageErrorf("%s: %v", fs.Name(), err)
	}
	return nil
}

// print writes an optional caption line followed by v as indented JSON.
func (r *Runner) print(caption string, v any) error {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if caption != "" {
		if _, err := fmt.Fprintln(r.out, caption); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintln(r.out, string(body))
	return err
}

// Usage lists every group and action.
func Usage(w io.Writer) {
	fmt.Fprintln(w, "usage: retail-cli [-config path] [-backend name] [-v] [-timings] <group> <action> [flags]")
	groups := make([]string, 0, len(commands))
	for g := range commands {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	for _, g := range groups {
		actions := make([]string, 0, len(commands[g]))
		for a := range commands[g] {
			actions = append(actions, a)
		}
		sort.Strings(actions)
		fmt.Fprintf(w, "\n%s\n", g)
		for _, a := range actions {
			fmt.Fprintf(w, "  %-20s %s\n", a, commands[g][a].usage)
		}
	}
}

// PrintTimings writes the store call summary as indented JSON.
func PrintTimings(w io.Writer, stats map[string]database.Stats) error {
	body, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "Store timings:\n%s\n", body)
	return err
}
