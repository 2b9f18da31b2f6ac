package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/jira-sync/internal/core/domain"
)

var statusCmd = &cobra.Command{
	Use:   "status <subscription-id>",
	Short: "Show backfill progress",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if backfillService == nil {
		return errors.New("backfill service not configured")
	}
	id, err := parseSubscriptionID(args[0])
	if err != nil {
		return err
	}

	report, err := backfillService.Status(context.Background(), id)
	if err != nil {
		return fmt.Errorf("get status: %w", err)
	}

	st := newStyles(cmd.OutOrStdout())
	sub := report.Subscription

	cmd.Println(st.title.Render(fmt.Sprintf("Subscription %d", sub.ID)))
	cmd.Printf("  Jira:         %s\n", sub.JiraHost)
	cmd.Printf("  Installation: %d\n", sub.GitHubInstallationID)
	if sub.GitHubBaseURL != "" {
		cmd.Printf("  GitHub:       %s\n", sub.GitHubBaseURL)
	}
	cmd.Printf("  Status:       %s\n", syncStatusLabel(sub.SyncStatus))
	if sub.BackfillSince != nil {
		cmd.Printf("  Since:        %s\n", sub.BackfillSince.Format("2006-01-02"))
	}
	cmd.Printf("  Repositories: %d complete, %d failed, %d total\n",
		report.Complete, report.Failed, sub.TotalNumberOfRepos)

	if len(report.Repos) == 0 {
		cmd.Println()
		cmd.Println(st.muted.Render("No repositories discovered yet."))
		return nil
	}

	headers := make([]string, 0, len(report.Tasks)+1)
	headers = append(headers, "Repository")
	for _, t := range report.Tasks {
		headers = append(headers, string(t))
	}

	rows := make([][]string, 0, len(report.Repos))
	for _, repo := range report.Repos {
		row := make([]string, 0, len(headers))
		name := repo.Repository.FullName
		if repo.FailedCode != "" {
			name = fmt.Sprintf("%s (%s)", name, repo.FailedCode)
		}
		row = append(row, name)
		for _, t := range report.Tasks {
			row = append(row, st.status(repo.Progress(t).Status))
		}
		rows = append(rows, row)
	}

	counts := progressSummary(report)
	cmd.Printf("  Tasks:        %d complete, %d active, %d pending, %d failed\n",
		counts[domain.TaskStatusComplete], counts[domain.TaskStatusActive],
		counts[domain.TaskStatusPending], counts[domain.TaskStatusFailed])

	cmd.Println()
	cmd.Println(st.table(headers, rows))
	return nil
}

// progressSummary counts tasks per status across every repository.
func progressSummary(report *domain.SyncReport) map[domain.TaskStatus]int {
	out := make(map[domain.TaskStatus]int)
	for _, repo := range report.Repos {
		for _, t := range report.Tasks {
			out[repo.Progress(t).Status]++
		}
	}
	return out
}
