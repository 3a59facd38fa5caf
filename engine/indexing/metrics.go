package indexing

import "github.com/m1520n/rag-chatbot/pkg/metrics"

type pipelineMetrics struct {
	indexed       *metrics.Counter
	failed        *metrics.Counter
	runsCompleted *metrics.Counter
	runsFailed    *metrics.Counter
	progress      *metrics.Gauge
	item          *metrics.Histogram
	run           *metrics.Histogram
}

func newPipelineMetrics(r *metrics.Registry) *pipelineMetrics {
	if r == nil {
		r = metrics.New()
	}
	const items, runs = "catalog_indexing_items_total", "catalog_indexing_runs_total"
	return &pipelineMetrics{
		indexed:       r.Counter(metrics.WithLabels(items, "result", "indexed"), "Products processed by the indexer"),
		failed:        r.Counter(metrics.WithLabels(items, "result", "failed"), "Products processed by the indexer"),
		runsCompleted: r.Counter(metrics.WithLabels(runs, "status", "completed"), "Finished index rebuilds"),
		runsFailed:    r.Counter(metrics.WithLabels(runs, "status", "error"), "Finished index rebuilds"),
		progress:      r.Gauge("catalog_indexing_progress_percent", "Progress of the current rebuild"),
		item:          r.Histogram("catalog_indexing_item_seconds", "Time to embed and store one product", nil),
		run:           r.Histogram("catalog_indexing_run_seconds", "Duration of a full rebuild", []float64{1, 10, 30, 60, 300, 900, 1800}),
	}
}
