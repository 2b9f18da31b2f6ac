package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/jira-sync/internal/core/domain"
)

var backfillCmd = &cobra.Command{
	Use:   "backfill <subscription-id>",
	Short: "Start a backfill",
	Long: `Queues a backfill for a subscription.

A full backfill rediscovers every repository and starts all tasks from the
beginning. --since can only move the boundary of an earlier full backfill
further into the past. A partial backfill (--partial) restarts the given
tasks, or all tasks, of the repositories already known.`,
	Args: cobra.ExactArgs(1),
	RunE: runBackfill,
}

var resyncCmd = &cobra.Command{
	Use:   "resync <subscription-id>",
	Short: "Re-run tasks of a subscription",
	Long: `Puts tasks back to PENDING, clearing their cursors, and queues a partial
backfill for them. Use --failed-only to retry only the tasks that failed.`,
	Args: cobra.ExactArgs(1),
	RunE: runResync,
}

var (
	backfillPartial bool
	backfillSince   string
	backfillTasks   string

	resyncRepo       int64
	resyncTasks      string
	resyncFailedOnly bool
)

func init() {
	backfillCmd.Flags().BoolVar(&backfillPartial, "partial", false, "restart tasks of known repositories only")
	backfillCmd.Flags().StringVar(&backfillSince, "since", "", "skip data older than this date (YYYY-MM-DD)")
	backfillCmd.Flags().StringVar(&backfillTasks, "tasks", "", "comma separated task types, e.g. pull,build")

	resyncCmd.Flags().Int64Var(&resyncRepo, "repo", 0, "repository id (default all repositories)")
	resyncCmd.Flags().StringVar(&resyncTasks, "tasks", "", "comma separated task types")
	resyncCmd.Flags().BoolVar(&resyncFailedOnly, "failed-only", false, "only reset tasks that failed")

	rootCmd.AddCommand(backfillCmd)
	rootCmd.AddCommand(resyncCmd)
}

func parseSubscriptionID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid subscription id %q", arg)
	}
	return id, nil
}

func runBackfill(cmd *cobra.Command, args []string) error {
	if backfillService == nil {
		return errors.New("backfill service not configured")
	}
	id, err := parseSubscriptionID(args[0])
	if err != nil {
		return err
	}

	req := domain.BackfillRequest{SyncType: domain.SyncTypeFull}
	if backfillPartial {
		req.SyncType = domain.SyncTypePartial
	}
	if backfillSince != "" {
		since, err := domain.ParseDate(backfillSince)
		if err != nil {
			return err
		}
		req.CommitsFromDate = &since
	}
	if req.TargetTasks, err = domain.ParseTaskTypes(backfillTasks); err != nil {
		return err
	}

	if err := backfillService.StartBackfill(context.Background(), id, req); err != nil {
		return fmt.Errorf("start backfill: %w", err)
	}

	cmd.Printf("Queued %s backfill for subscription %d.\n", req.SyncType, id)
	return nil
}

func runResync(cmd *cobra.Command, args []string) error {
	if backfillService == nil {
		return errors.New("backfill service not configured")
	}
	id, err := parseSubscriptionID(args[0])
	if err != nil {
		return err
	}

	tasks, err := domain.ParseTaskTypes(resyncTasks)
	if err != nil {
		return err
	}

	n, err := backfillService.Resync(context.Background(), id, domain.ResyncRequest{
		RepoID:      resyncRepo,
		TargetTasks: tasks,
		FailedOnly:  resyncFailedOnly,
	})
	if err != nil {
		return fmt.Errorf("resync: %w", err)
	}

	if n == 0 {
		cmd.Println("No matching tasks to reset.")
		return nil
	}
	cmd.Printf("Reset %d tasks for subscription %d.\n", n, id)
	return nil
}
