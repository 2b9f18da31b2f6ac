// Package cli implements the jira-sync command line.
package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/jira-sync/internal/core/ports/driving"
)

var version = "dev"

// Runner is a long-running process such as the worker.
type Runner interface {
	Run(ctx context.Context) error
}

// Services are the dependencies commands run against.
type Services struct {
	Backfill driving.BackfillService
	Worker   Runner
	// Close releases stores and flushes logs. May be nil.
	Close func() error
}

// Bootstrap builds Services from the --config path and --verbose flag.
type Bootstrap func(configPath string, verbose bool) (*Services, error)

var (
	backfillService driving.BackfillService
	workerRunner    Runner
	closeServices   func() error
	bootstrap       Bootstrap
)

var (
	configPath string
	verbose    bool
)

// skipBootstrap marks commands that need no services.
const skipBootstrap = "skip-bootstrap"

var rootCmd = &cobra.Command{
	Use:   "jira-sync",
	Short: "Backfill GitHub development data into Jira",
	Long: `jira-sync walks every repository of a GitHub installation and ships
branches, commits, pull requests, builds, deployments and security alerts
to Jira's development information APIs.

Backfills run as queued, resumable steps processed by the worker.`,
	SilenceUsage:      true,
	PersistentPreRunE: initServices,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.jira-sync/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	version = v
}

// SetBootstrap sets how services are built before a command runs.
func SetBootstrap(b Bootstrap) {
	bootstrap = b
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if closeServices != nil {
		err = errors.Join(err, closeServices())
		closeServices = nil
	}
	return err
}

func initServices(cmd *cobra.Command, _ []string) error {
	if _, ok := cmd.Annotations[skipBootstrap]; ok {
		return nil
	}
	if bootstrap == nil || backfillService != nil {
		return nil
	}

	svc, err := bootstrap(configPath, verbose)
	if err != nil {
		return err
	}
	backfillService = svc.Backfill
	workerRunner = svc.Worker
	closeServices = svc.Close
	return nil
}
