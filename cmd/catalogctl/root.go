package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/m1520n/rag-chatbot/engine/app"
	"github.com/m1520n/rag-chatbot/engine/assistant"
	"github.com/m1520n/rag-chatbot/engine/catalog"
	"github.com/m1520n/rag-chatbot/engine/domain"
	"github.com/m1520n/rag-chatbot/engine/indexing"
	"github.com/m1520n/rag-chatbot/pkg/config"
	"github.com/m1520n/rag-chatbot/pkg/natsutil"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "catalogctl",
	Short: "Manage the product search index",
	Long: `catalogctl rebuilds and inspects the vector index built from the
product catalog, and runs ad-hoc semantic searches against it.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to YAML config")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log engine activity to stderr")
}

type indexer interface {
	Start(ctx context.Context) error
	Stop() bool
	Wait()
	Progress() indexing.JobState
	Status(ctx context.Context) (indexing.Summary, error)
	Preview(ctx context.Context, page, perPage int, filters ...domain.CatalogFilter) (indexing.PreviewPage, error)
	PreviewOne(ctx context.Context, id string) (indexing.PreviewItem, error)
}

type searcher interface {
	SearchText(ctx context.Context, text string, conv domain.Conversation, limit int) ([]domain.Product, error)
}

type chatter interface {
	Reply(ctx context.Context, query string, conv domain.Conversation) (assistant.Response, error)
}

// services is what the commands work against.
type services struct {
	indexer indexer
	search  searcher
	chat    chatter
	writer  catalog.Writer
	// remote is nil without a NATS connection.
	remote natsutil.Requester
	close  func() error
}

var errNoNATS = errors.New("no NATS connection configured (set nats.url or NATS_URL)")

// connect builds the engine from the config file. Tests replace it.
var connect = func(ctx context.Context) (*services, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	svc := &services{
		indexer: a.Pipeline,
		search:  a.Searcher,
		chat:    a.Assistant,
		writer:  a.Writer,
		close:   a.Close,
	}
	if a.NATS != nil {
		svc.remote = a.NATS
	}
	return svc, nil
}

// withServices connects, runs f and releases the connections.
func withServices(cmd *cobra.Command, f func(context.Context, *services) error) error {
	ctx := cmd.Context()
	svc, err := connect(ctx)
	if err != nil {
		return err
	}
	defer svc.close()
	return f(ctx, svc)
}
