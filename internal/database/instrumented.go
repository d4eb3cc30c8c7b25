package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Stats summarises store calls of one kind (or all of them).
type Stats struct {
	Operations     int64         `json:"operations"`
	Errors         int64         `json:"errors"`
	AverageLatency time.Duration `json:"average_latency"`
	P95Latency     time.Duration `json:"p95_latency"`
	P99Latency     time.Duration `json:"p99_latency"`
	TotalTime      time.Duration `json:"total_time"`
}

// InstrumentedStore wraps a Store and records the latency of every call in
// microseconds. Max latency of 60 seconds, 3 significant figures.
type InstrumentedStore struct {
	Store

	mu         sync.Mutex
	histograms map[string]*hdrhistogram.Histogram
	errors     map[string]int64
	total      map[string]time.Duration
}

func NewInstrumentedStore(s Store) *InstrumentedStore {
	return &InstrumentedStore{
		Store:      s,
		histograms: make(map[string]*hdrhistogram.Histogram),
		errors:     make(map[string]int64),
		total:      make(map[string]time.Duration),
	}
}

func (is *InstrumentedStore) record(op string, start time.Time, err error) {
	elapsed := time.Since(start)

	is.mu.Lock()
	defer is.mu.Unlock()
	if err != nil {
		is.errors[op]++
		return
	}
	h, ok := is.histograms[op]
	if !ok {
		h = hdrhistogram.New(1, 60000000, 3)
		is.histograms[op] = h
	}
	h.RecordValue(elapsed.Microseconds())
	is.total[op] += elapsed
}

func (is *InstrumentedStore) Insert(ctx context.Context, table string, row Row) (Row, error) {
	start := time.Now()
	out, err := is.Store.Insert(ctx, table, row)
	is.record("insert", start, err)
	return out, err
}

func (is *InstrumentedStore) Select(ctx context.Context, table string, q *Query) ([]Row, error) {
	start := time.Now()
	out, err := is.Store.Select(ctx, table, q)
	is.record("select", start, err)
	return out, err
}

func (is *InstrumentedStore) Update(ctx context.Context, table string, fields Row, q *Query) (int64, error) {
	start := time.Now()
	n, err := is.Store.Update(ctx, table, fields, q)
	is.record("update", start, err)
	return n, err
}

func (is *InstrumentedStore) Delete(ctx context.Context, table string, q *Query) (int64, error) {
	start := time.Now()
	n, err := is.Store.Delete(ctx, table, q)
	is.record("delete", start, err)
	return n, err
}

// Bootstrap forwards to the wrapped store when it supports it.
func (is *InstrumentedStore) Bootstrap(ctx context.Context) error {
	b, ok := is.Store.(Bootstrapper)
	if !ok {
		return ErrNoBootstrap
	}
	return b.Bootstrap(ctx)
}

// Stats returns per-operation summaries plus an "all" entry merging them.
func (is *InstrumentedStore) Stats() map[string]Stats {
	is.mu.Lock()
	defer is.mu.Unlock()

	out := make(map[string]Stats)
	all := hdrhistogram.New(1, 60000000, 3)
	var allStats Stats

	ops := make([]string, 0, len(is.histograms)+len(is.errors))
	seen := make(map[string]bool)
	for op := range is.histograms {
		ops = append(ops, op)
		seen[op] = true
	}
	for op := range is.errors {
		if !seen[op] {
			ops = append(ops, op)
		}
	}
	sort.Strings(ops)

	for _, op := range ops {
		s := Stats{Errors: is.errors[op], TotalTime: is.total[op]}
		if h, ok := is.histograms[op]; ok {
			s.Operations = h.TotalCount()
			s.AverageLatency = time.Duration(h.Mean()) * time.Microsecond
			s.P95Latency = time.Duration(h.ValueAtQuantile(95)) * time.Microsecond
			s.P99Latency = time.Duration(h.ValueAtQuantile(99)) * time.Microsecond
			all.Merge(h)
		}
		out[op] = s
		allStats.Errors += s.Errors
		allStats.TotalTime += s.TotalTime
	}

	allStats.Operations = all.TotalCount()
	if allStats.Operations > 0 {
		allStats.AverageLatency = time.Duration(all.Mean()) * time.Microsecond
		allStats.P95Latency = time.Duration(all.ValueAtQuantile(95)) * time.Microsecond
		allStats.P99Latency = time.Duration(all.ValueAtQuantile(99)) * time.Microsecond
	}
	out["all"] = allStats
	return out
}
