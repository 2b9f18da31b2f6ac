package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Process queued backfill steps",
	Long: `Runs the worker pool until interrupted. The worker also runs queue
and cache maintenance, serves the admin API when admin.addr is set, and
reloads rate limit settings when the config file changes.`,
	Args: cobra.NoArgs,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, _ []string) error {
	if workerRunner == nil {
		return errors.New("worker not configured")
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd.Println("Worker started. Press Ctrl+C to stop.")
	if err := workerRunner.Run(ctx); err != nil {
		return err
	}
	cmd.Println("Worker stopped.")
	return nil
}
