package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/m1520n/rag-chatbot/engine/indexing"
	"github.com/m1520n/rag-chatbot/pkg/natsutil"
)

var (
	rebuildRemote   bool
	rebuildInterval time.Duration
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the vector index from the catalog",
	Long: `Clears the vector index and re-embeds every active catalog product,
printing progress until the run ends. With --remote the rebuild is requested
from a running API server over NATS instead.`,
	Args: cobra.NoArgs,
	RunE: runRebuild,
}

func init() {
	rebuildCmd.Flags().BoolVar(&rebuildRemote, "remote", false, "ask a running API server to rebuild")
	rebuildCmd.Flags().DurationVar(&rebuildInterval, "interval", 500*time.Millisecond, "progress poll interval")
	rootCmd.AddCommand(rebuildCmd)
}

func runRebuild(cmd *cobra.Command, _ []string) error {
	return withServices(cmd, func(ctx context.Context, svc *services) error {
		if rebuildRemote {
			return rebuildRemotely(ctx, cmd, svc)
		}
		if err := svc.indexer.Start(ctx); err != nil {
			return fmt.Errorf("start rebuild: %w", err)
		}
		return follow(ctx, cmd, svc.indexer)
	})
}

// follow prints progress until the run ends. Interrupting ctx stops the run.
func follow(ctx context.Context, cmd *cobra.Command, idx indexer) error {
	done := make(chan struct{})
	go func() {
		idx.Wait()
		close(done)
	}()

	ticker := time.NewTicker(rebuildInterval)
	defer ticker.Stop()

	interrupt := ctx.Done()
	last := -1
	for {
		select {
		case <-done:
			return report(cmd, idx.Progress())
		case <-ticker.C:
			st := idx.Progress()
			if st.Processed != last && st.Total > 0 {
				cmd.Printf("[%3d%%] %d/%d %s\n", st.Progress, st.Processed, st.Total, st.CurrentProduct)
				last = st.Processed
			}
		case <-interrupt:
			cmd.Println("Stopping rebuild...")
			idx.Stop()
			interrupt = nil
		}
	}
}

func report(cmd *cobra.Command, st indexing.JobState) error {
	for _, e := range st.Errors {
		cmd.Printf("  failed: %s\n", e)
	}
	if st.Status == indexing.StatusError {
		msg := "rebuild failed"
		if st.Error != nil {
			msg = *st.Error
		}
		return errors.New(msg)
	}
	cmd.Printf("Indexed %d of %d products.\n", st.Total-len(st.Errors), st.Total)
	if st.Error != nil {
		cmd.Printf("Warning: %s\n", *st.Error)
	}
	return nil
}

func rebuildRemotely(ctx context.Context, cmd *cobra.Command, svc *services) error {
	if svc.remote == nil {
		return errNoNATS
	}
	reply, err := natsutil.Request[indexing.StartRequest, indexing.StartReply](ctx, svc.remote, indexing.StartSubject,
		indexing.StartRequest{Source: "catalogctl"})
	if err != nil {
		return err
	}
	if !reply.Started {
		return fmt.Errorf("server refused rebuild: %s", reply.Error)
	}
	cmd.Println("Rebuild started on the server.")
	return nil
}
