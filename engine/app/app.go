// Package app assembles the search engine from configuration. Both binaries
// build on it so that the API and the CLI index and search the same way.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/m1520n/rag-chatbot/engine/assistant"
	"github.com/m1520n/rag-chatbot/engine/catalog"
	"github.com/m1520n/rag-chatbot/engine/domain"
	"github.com/m1520n/rag-chatbot/engine/embedding"
	"github.com/m1520n/rag-chatbot/engine/indexing"
	"github.com/m1520n/rag-chatbot/engine/search"
	"github.com/m1520n/rag-chatbot/engine/semantic"
	"github.com/m1520n/rag-chatbot/engine/textnorm"
	"github.com/m1520n/rag-chatbot/pkg/config"
	"github.com/m1520n/rag-chatbot/pkg/fn"
	"github.com/m1520n/rag-chatbot/pkg/metrics"
	"github.com/m1520n/rag-chatbot/pkg/ollama"
	"github.com/m1520n/rag-chatbot/pkg/repo"
	"github.com/m1520n/rag-chatbot/pkg/resilience"
)

// App holds the wired engine. Close releases every connection Build opened.
type App struct {
	Config    config.Config
	Catalog   catalog.Source
	Writer    catalog.Writer
	Index     semantic.VectorIndex
	Composer  *embedding.Composer
	Searcher  *search.Searcher
	Pipeline  *indexing.Pipeline
	Assistant *assistant.Assistant
	Metrics   *metrics.Registry
	Ollama    *ollama.Client
	// NATS is nil when no URL is configured.
	NATS *nats.Conn

	log     *slog.Logger
	closers []func() error
}

// Build connects to the configured stores and wires the engine on top.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Metrics: metrics.New(), log: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if err := a.openCatalog(ctx); err != nil {
		return nil, err
	}
	if err := a.openIndex(ctx); err != nil {
		return nil, err
	}

	a.Ollama = ollama.New(ollama.Options{
		BaseURL:    cfg.Ollama.URL,
		EmbedModel: cfg.Ollama.EmbedModel,
		ChatModel:  cfg.Ollama.ChatModel,
		Timeout:    cfg.Ollama.Timeout,
		Retry:      fn.DefaultRetry,
	})

	guard := embedding.DefaultGuardOpts
	guard.RPS, guard.Burst = cfg.Ollama.RPS, cfg.Ollama.Burst
	guard.Breaker.OnStateChange = func(from, to resilience.State) {
		logger.Warn("encoder circuit state changed", "from", from.String(), "to", to.String())
	}
	var enc embedding.Encoder = embedding.NewGuardedEncoder(a.Ollama, guard)

	var notifier indexing.Notifier
	if cfg.NATS.URL != "" {
		if err := a.connectNATS(); err != nil {
			return nil, err
		}
		notifier = indexing.NewNATSNotifier(a.NATS, logger)
		if cache, err := a.openCache(ctx); err != nil {
			logger.Warn("embedding cache unavailable, encoding uncached", "error", err)
		} else {
			enc = embedding.NewCachedEncoder(enc, cache, a.Ollama.EmbedModel(), logger)
		}
	}

	a.Composer, err = embedding.NewComposer(enc, textnorm.New(cfg.Categories), cfg.Search.Weights)
	if err != nil {
		return nil, fmt.Errorf("app: composer: %w", err)
	}

	a.Searcher = search.New(a.Index, a.Composer, search.Options{
		Thresholds:  cfg.Search.Thresholds,
		Limit:       cfg.Search.Limit,
		MaxParallel: cfg.Search.MaxParallel,
	}, logger)

	a.Pipeline = indexing.New(indexing.Deps{
		Catalog:  a.Catalog,
		Composer: a.Composer,
		Index:    a.Index,
		Tracker:  indexing.NewTracker(),
		Notifier: notifier,
		Metrics:  a.Metrics,
		Logger:   logger,
	}, indexing.Options{BaseURL: cfg.Catalog.BaseURL})

	a.Assistant = assistant.New(
		assistant.NewLLMExtractor(a.Ollama),
		a.Ollama,
		a.Searcher,
		assistant.Options{
			Seller:  cfg.Catalog.Seller,
			BaseURL: cfg.Catalog.BaseURL,
			Limit:   cfg.Search.Limit,
		},
		logger,
	)
	return a, nil
}

func (a *App) openCatalog(ctx context.Context) error {
	switch a.Config.Catalog.Backend {
	case "neo4j":
		c := a.Config.Neo4j
		driver, err := neo4j.NewDriverWithContext(c.URL, neo4j.BasicAuth(c.User, c.Password, ""))
		if err != nil {
			return fmt.Errorf("app: neo4j driver: %w", err)
		}
		a.closers = append(a.closers, func() error { return driver.Close(context.Background()) })
		if err := driver.VerifyConnectivity(ctx); err != nil {
			return fmt.Errorf("app: neo4j connect: %w", err)
		}
		var opts []repo.Neo4jOption[domain.ProductRecord, string]
		if c.Database != "" {
			opts = append(opts, repo.WithDatabase[domain.ProductRecord, string](c.Database))
		}
		g := catalog.NewGraphSource(driver, opts...)
		a.Catalog, a.Writer = g, g
	default:
		s, err := catalog.OpenSQLite(a.Config.Catalog.SQLitePath)
		if err != nil {
			return fmt.Errorf("app: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		a.Catalog, a.Writer = s, s
	}
	a.log.Info("catalog ready", "backend", a.Config.Catalog.Backend)
	return nil
}

func (a *App) openIndex(ctx context.Context) error {
	c := a.Config.Index
	if c.Backend == "memory" {
		a.Index = semantic.NewMemoryIndex()
		return nil
	}
	q, err := semantic.NewQdrant(c.QdrantAddr, c.Collection, c.Dimensions)
	if err != nil {
		return fmt.Errorf("app: qdrant connect: %w", err)
	}
	a.closers = append(a.closers, q.Close)
	if err := q.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	a.Index = q
	a.log.Info("vector index ready", "collection", c.Collection, "dims", c.Dimensions)
	return nil
}

func (a *App) connectNATS() error {
	nc, err := nats.Connect(a.Config.NATS.URL, nats.Name("rag-chatbot"))
	if err != nil {
		return fmt.Errorf("app: nats connect: %w", err)
	}
	a.NATS = nc
	a.closers = append(a.closers, func() error { nc.Close(); return nil })
	return nil
}

func (a *App) openCache(ctx context.Context) (*embedding.KVCache, error) {
	js, err := jetstream.New(a.NATS)
	if err != nil {
		return nil, err
	}
	return embedding.OpenKVCache(ctx, js, a.Config.NATS.CacheBucket)
}

// Close stops a running rebuild and closes connections in reverse order.
func (a *App) Close() error {
	if a.Pipeline != nil && a.Pipeline.Stop() {
		a.Pipeline.Wait()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
