// Package metrics is a small registry of counters, gauges and histograms
// rendered in the Prometheus text exposition format.
package metrics

import (
	"fmt"
	"math"
	"net/http"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBuckets are histogram upper bounds in seconds.
var DefaultBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// Counter only goes up.
type Counter struct{ n atomic.Int64 }

func (c *Counter) Inc()         { c.n.Add(1) }
func (c *Counter) Add(d int64)  { c.n.Add(d) }
func (c *Counter) Value() int64 { return c.n.Load() }

// Gauge holds a float64 that can be set freely.
type Gauge struct{ bits atomic.Uint64 }

func (g *Gauge) Set(v float64)  { g.bits.Store(math.Float64bits(v)) }
func (g *Gauge) Value() float64 { return math.Float64frombits(g.bits.Load()) }

// Add adjusts the gauge by d.
func (g *Gauge) Add(d float64) {
	for {
		old := g.bits.Load()
		if g.bits.CompareAndSwap(old, math.Float64bits(math.Float64frombits(old)+d)) {
			return
		}
	}
}

// Histogram counts observations into cumulative buckets.
type Histogram struct {
	mu     sync.Mutex
	bounds []float64
	counts []uint64
	sum    float64
	total  uint64
}

// Observe records v.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sum += v
	h.total++
	if i := sort.SearchFloat64s(h.bounds, v); i < len(h.bounds) {
		h.counts[i]++
	}
}

// Since observes the seconds elapsed from start.
func (h *Histogram) Since(start time.Time) { h.Observe(time.Since(start).Seconds()) }

type family struct {
	kind string
	help string
}

// Registry owns named metrics. Series that differ only in labels share a family.
type Registry struct {
	mu         sync.RWMutex
	families   map[string]family
	order      []string
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram
}

func New() *Registry {
	return &Registry{
		families:   map[string]family{},
		counters:   map[string]*Counter{},
		gauges:     map[string]*Gauge{},
		histograms: map[string]*Histogram{},
	}
}

func (r *Registry) register(series, kind, help string) {
	base := baseName(series)
	if _, ok := r.families[base]; !ok {
		r.order = append(r.order, base)
		r.families[base] = family{kind: kind, help: help}
	}
}

// Counter returns the counter for series, creating it on first use.
func (r *Registry) Counter(series, help string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counters[series]; ok {
		return c
	}
	c := &Counter{}
	r.counters[series] = c
	r.register(series, "counter", help)
	return c
}

// Gauge returns the gauge for series, creating it on first use.
func (r *Registry) Gauge(series, help string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.gauges[series]; ok {
		return g
	}
	g := &Gauge{}
	r.gauges[series] = g
	r.register(series, "gauge", help)
	return g
}

// Histogram returns the histogram for series. Nil bounds use DefaultBuckets.
func (r *Registry) Histogram(series, help string, bounds []float64) *Histogram {
	if bounds == nil {
		bounds = DefaultBuckets
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.histograms[series]; ok {
		return h
	}
	b := slices.Clone(bounds)
	slices.Sort(b)
	h := &Histogram{bounds: b, counts: make([]uint64, len(b))}
	r.histograms[series] = h
	r.register(series, "histogram", help)
	return h
}

// WithLabels appends label pairs to name: WithLabels("x", "k", "v") is x{k="v"}.
// An odd number of kvs returns name unchanged.
func WithLabels(name string, kvs ...string) string {
	if len(kvs) == 0 || len(kvs)%2 != 0 {
		return name
	}
	pairs := make([]string, 0, len(kvs)/2)
	for i := 0; i < len(kvs); i += 2 {
		pairs = append(pairs, fmt.Sprintf("%s=%q", kvs[i], kvs[i+1]))
	}
	return name + "{" + strings.Join(pairs, ",") + "}"
}

func baseName(series string) string {
	name, _, _ := strings.Cut(series, "{")
	return name
}

// labelsOf returns the label body of series without braces.
func labelsOf(series string) string {
	_, rest, ok := strings.Cut(series, "{")
	if !ok {
		return ""
	}
	return strings.TrimSuffix(rest, "}")
}

func seriesOf[M any](m map[string]M, base string) []string {
	var out []string
	for s := range m {
		if baseName(s) == base {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// Render writes every family in registration order.
func (r *Registry) Render() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var b strings.Builder
	for _, base := range r.order {
		f := r.families[base]
		if f.help != "" {
			fmt.Fprintf(&b, "# HELP %s %s\n", base, f.help)
		}
		fmt.Fprintf(&b, "# TYPE %s %s\n", base, f.kind)
		switch f.kind {
		case "counter":
			for _, s := range seriesOf(r.counters, base) {
				fmt.Fprintf(&b, "%s %d\n", s, r.counters[s].Value())
			}
		case "gauge":
			for _, s := range seriesOf(r.gauges, base) {
				fmt.Fprintf(&b, "%s %g\n", s, r.gauges[s].Value())
			}
		case "histogram":
			for _, s := range seriesOf(r.histograms, base) {
				renderHistogram(&b, base, labelsOf(s), r.histograms[s])
			}
		}
	}
	return b.String()
}

func renderHistogram(b *strings.Builder, base, labels string, h *Histogram) {
	h.mu.Lock()
	defer h.mu.Unlock()
	extra, wrapped := "", ""
	if labels != "" {
		extra, wrapped = ","+labels, "{"+labels+"}"
	}
	var cum uint64
	for i, le := range h.bounds {
		cum += h.counts[i]
		fmt.Fprintf(b, "%s_bucket{le=\"%g\"%s} %d\n", base, le, extra, cum)
	}
	fmt.Fprintf(b, "%s_bucket{le=\"+Inf\"%s} %d\n", base, extra, h.total)
	fmt.Fprintf(b, "%s_sum%s %g\n", base, wrapped, h.sum)
	fmt.Fprintf(b, "%s_count%s %d\n", base, wrapped, h.total)
}

// Handler serves Render output.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(r.Render()))
	})
}
