// Package main implements the product search API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m1520n/rag-chatbot/engine/app"
	"github.com/m1520n/rag-chatbot/engine/indexing"
	"github.com/m1520n/rag-chatbot/pkg/config"
	"github.com/m1520n/rag-chatbot/pkg/mid"
	"github.com/m1520n/rag-chatbot/pkg/natsutil"
)

const maxBodyBytes = 1 << 20

func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML config")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("load config", "err", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.NATS != nil {
		sub, err := natsutil.Handle(a.NATS, indexing.StartSubject, logger, a.Pipeline.HandleStart)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", indexing.StartSubject, err)
		}
		defer sub.Unsubscribe()
	}

	s := &server{
		chat:    a.Assistant,
		search:  a.Searcher,
		indexer: a.Pipeline,
		limit:   cfg.Search.Limit,
		log:     logger,
	}
	mux := s.routes()
	mux.Handle("GET /metrics", a.Metrics.Handler())

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.OTel("api"),
		mid.Logger(logger),
		mid.CORS(cfg.HTTP.CORSOrigin),
		mid.MaxBody(maxBodyBytes),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.HTTP.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}
