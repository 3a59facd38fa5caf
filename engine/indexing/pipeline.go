// Package indexing rebuilds the vector index from the catalog as a single
// background job with pollable progress.
package indexing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/m1520n/rag-chatbot/engine/catalog"
	"github.com/m1520n/rag-chatbot/engine/domain"
	"github.com/m1520n/rag-chatbot/engine/semantic"
	"github.com/m1520n/rag-chatbot/engine/textnorm"
	"github.com/m1520n/rag-chatbot/pkg/fn"
	"github.com/m1520n/rag-chatbot/pkg/metrics"
)

// ErrCancelled is recorded as the job error when Stop ends a run.
var ErrCancelled = errors.New("indexing cancelled")

// RecordComposer turns a catalog record into a fused embedding.
type RecordComposer interface {
	ComposeRecord(ctx context.Context, rec domain.ProductRecord, baseURL string) (domain.FusedEmbedding, error)
	Normalizer() *textnorm.Normalizer
}

// Deps holds the collaborators of a Pipeline. Catalog, Composer and Index are
// required; the rest fall back to defaults.
type Deps struct {
	Catalog  catalog.Source
	Composer RecordComposer
	Index    semantic.VectorIndex
	Tracker  *Tracker
	Notifier Notifier
	Metrics  *metrics.Registry
	Logger   *slog.Logger
}

// Options tunes a Pipeline.
type Options struct {
	// BaseURL prefixes every product URL.
	BaseURL string
}

// Summary is the cheap status view used for polling.
type Summary struct {
	TotalCatalogCount int        `json:"total_catalog_count"`
	IndexedCount      int        `json:"indexed_count"`
	LastIndexedAt     *time.Time `json:"last_indexed_at"`
}

type Pipeline struct {
	catalog  catalog.Source
	composer RecordComposer
	index    semantic.VectorIndex
	tracker  *Tracker
	notifier Notifier
	metrics  *pipelineMetrics
	log      *slog.Logger
	opts     Options
	now      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(d Deps, opts Options) *Pipeline {
	p := &Pipeline{
		catalog:  d.Catalog,
		composer: d.Composer,
		index:    d.Index,
		tracker:  d.Tracker,
		notifier: d.Notifier,
		metrics:  newPipelineMetrics(d.Metrics),
		log:      d.Logger,
		opts:     opts,
		now:      time.Now,
	}
	if p.tracker == nil {
		p.tracker = NewTracker()
	}
	if p.notifier == nil {
		p.notifier = nopNotifier{}
	}
	if p.log == nil {
		p.log = slog.Default()
	}
	return p
}

// Tracker returns the state holder the pipeline writes to.
func (p *Pipeline) Tracker() *Tracker { return p.tracker }

// Start launches a full rebuild and returns at once. It fails with
// domain.ErrIndexingAlreadyRunning while another rebuild is in progress. The
// run outlives ctx; use Stop to end it early.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.tracker.TryStart() {
		return domain.ErrIndexingAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	p.cancel, p.done = cancel, done

	p.log.Info("indexing started")
	p.publish(runCtx, p.tracker.Snapshot())
	go func() {
		defer close(done)
		defer cancel()
		p.run(runCtx)
	}()
	return nil
}

// Wait blocks until the current run, if any, has finished.
func (p *Pipeline) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Stop cancels a running rebuild. Items not yet processed are skipped and the
// job ends in the error state. It reports whether a run was cancelled.
func (p *Pipeline) Stop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel == nil || !p.tracker.Running() {
		return false
	}
	p.cancel()
	return true
}

// Progress returns a snapshot of the job state.
func (p *Pipeline) Progress() JobState { return p.tracker.Snapshot() }

func (p *Pipeline) run(ctx context.Context) {
	started := p.now()
	defer p.metrics.run.Since(started)

	if err := p.index.Clear(ctx); err != nil {
		p.abort(ctx, fmt.Sprintf("failed to clear index: %v", err))
		return
	}
	recs, err := p.catalog.FetchActive(ctx)
	if err != nil {
		p.abort(ctx, fmt.Sprintf("failed to fetch catalog: %v", err))
		return
	}
	p.publish(ctx, p.tracker.setTotal(len(recs)))

	item := p.itemStage()
	for i, rec := range recs {
		if ctx.Err() != nil {
			p.abort(ctx, ErrCancelled.Error())
			return
		}
		st := p.tracker.begin(label(rec), i)
		p.metrics.progress.Set(float64(st.Progress))
		p.publish(ctx, st)

		t := time.Now()
		_, err := item(ctx, rec).Unwrap()
		p.metrics.item.Since(t)
		if err != nil {
			if ctx.Err() != nil {
				p.abort(ctx, ErrCancelled.Error())
				return
			}
			p.metrics.failed.Inc()
			p.tracker.recordError(fmt.Sprintf("product %s (%s): %v", rec.ID, label(rec), err))
			p.log.Warn("indexing item failed", "product_id", rec.ID, "error", err)
			continue
		}
		p.metrics.indexed.Inc()
	}

	st := p.tracker.finish(p.now())
	p.metrics.progress.Set(100)
	p.metrics.runsCompleted.Inc()
	p.publish(ctx, st)
	p.log.Info("indexing completed",
		"products", st.Total,
		"errors", len(st.Errors),
		"duration", p.now().Sub(started),
	)
}

func (p *Pipeline) abort(ctx context.Context, msg string) {
	st := p.tracker.fail(msg)
	p.metrics.runsFailed.Inc()
	p.publish(context.WithoutCancel(ctx), st)
	p.log.Error("indexing aborted", "error", msg)
}

func (p *Pipeline) publish(ctx context.Context, st JobState) {
	p.notifier.Notify(ctx, st)
}

// itemStage composes then upserts one record, each step in its own span.
func (p *Pipeline) itemStage() fn.Stage[domain.ProductRecord, string] {
	compose := fn.TracedStage("indexing.compose", fn.Lift(p.entryFor))
	upsert := fn.TracedStage("indexing.upsert", fn.Lift(func(ctx context.Context, e domain.IndexEntry) (string, error) {
		return e.ID, p.index.Upsert(ctx, e)
	}))
	return fn.TracedStage("indexing.item", fn.Then(compose, upsert))
}

func (p *Pipeline) entryFor(ctx context.Context, rec domain.ProductRecord) (domain.IndexEntry, error) {
	f, err := p.composer.ComposeRecord(ctx, rec, p.opts.BaseURL)
	if err != nil {
		return domain.IndexEntry{}, err
	}
	return domain.IndexEntry{ID: rec.ID, Vector: f.Vector, Metadata: f.Metadata()}, nil
}

// Status counts the active catalog and the index.
func (p *Pipeline) Status(ctx context.Context) (Summary, error) {
	total, err := p.catalog.CountActive(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("indexing: status: %w", err)
	}
	indexed, err := p.index.Count(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("indexing: status: %w", err)
	}
	return Summary{
		TotalCatalogCount: total,
		IndexedCount:      indexed,
		LastIndexedAt:     p.tracker.Snapshot().LastCompleted,
	}, nil
}

// IndexOne refreshes a single product from the catalog. A product that is
// inactive or gone from the catalog is removed from the index instead.
func (p *Pipeline) IndexOne(ctx context.Context, id string) error {
	rec, err := p.catalog.Get(ctx, id)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return p.Remove(ctx, id)
	case err != nil:
		return fmt.Errorf("indexing: product %s: %w", id, err)
	case !rec.Active:
		return p.Remove(ctx, id)
	}
	if _, err := p.itemStage()(ctx, rec).Unwrap(); err != nil {
		p.metrics.failed.Inc()
		return fmt.Errorf("indexing: product %s: %w", id, err)
	}
	p.metrics.indexed.Inc()
	return nil
}

func (p *Pipeline) Remove(ctx context.Context, id string) error {
	if err := p.index.Delete(ctx, id); err != nil {
		return fmt.Errorf("indexing: remove %s: %w", id, err)
	}
	return nil
}

func (p *Pipeline) RemoveMany(ctx context.Context, ids []string) error {
	if err := p.index.DeleteMany(ctx, ids); err != nil {
		return fmt.Errorf("indexing: remove %d products: %w", len(ids), err)
	}
	return nil
}

// Cleanup empties the index. It is refused while a rebuild runs.
func (p *Pipeline) Cleanup(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tracker.Running() {
		return domain.ErrIndexingAlreadyRunning
	}
	if err := p.index.Clear(ctx); err != nil {
		return fmt.Errorf("indexing: cleanup: %w", err)
	}
	p.log.Info("index cleared")
	return nil
}

// Vectors returns every stored entry, for visualisation.
func (p *Pipeline) Vectors(ctx context.Context) ([]domain.IndexEntry, error) {
	entries, err := p.index.EnumerateAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("indexing: vectors: %w", err)
	}
	return entries, nil
}

func label(rec domain.ProductRecord) string {
	if name := textnorm.Clean(rec.Name); name != "" {
		return name
	}
	return "product " + rec.ID
}
