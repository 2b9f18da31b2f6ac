package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/jira-sync/internal/core/domain"
)

var subscriptionCmd = &cobra.Command{
	Use:     "subscription",
	Aliases: []string{"sub"},
	Short:   "Manage subscriptions",
	Long:    `A subscription links one Jira site to one GitHub App installation.`,
}

var subscriptionAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a subscription",
	Args:  cobra.NoArgs,
	RunE:  runSubscriptionAdd,
}

var subscriptionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List subscriptions",
	Args:  cobra.NoArgs,
	RunE:  runSubscriptionList,
}

var (
	subJiraHost       string
	subInstallationID int64
	subAppID          int64
	subGitHubURL      string
)

func init() {
	subscriptionAddCmd.Flags().StringVar(&subJiraHost, "jira-host", "", "Jira site URL, e.g. https://acme.atlassian.net")
	subscriptionAddCmd.Flags().Int64Var(&subInstallationID, "installation-id", 0, "GitHub App installation id")
	subscriptionAddCmd.Flags().Int64Var(&subAppID, "app-id", 0, "GitHub App id (Enterprise Server only)")
	subscriptionAddCmd.Flags().StringVar(&subGitHubURL, "github-url", "", "GitHub Enterprise Server base URL")

	subscriptionCmd.AddCommand(subscriptionAddCmd)
	subscriptionCmd.AddCommand(subscriptionListCmd)
	rootCmd.AddCommand(subscriptionCmd)
}

func runSubscriptionAdd(cmd *cobra.Command, _ []string) error {
	if backfillService == nil {
		return errors.New("backfill service not configured")
	}

	host := strings.TrimSuffix(strings.TrimSpace(subJiraHost), "/")
	if host == "" {
		return errors.New("--jira-host is required")
	}
	if subInstallationID <= 0 {
		return errors.New("--installation-id is required")
	}

	sub := domain.Subscription{
		JiraHost:             host,
		GitHubInstallationID: subInstallationID,
		GitHubBaseURL:        strings.TrimSuffix(subGitHubURL, "/"),
	}
	if subAppID > 0 {
		id := subAppID
		sub.GitHubAppID = &id
	}

	created, err := backfillService.AddSubscription(context.Background(), sub)
	if err != nil {
		return fmt.Errorf("add subscription: %w", err)
	}

	cmd.Printf("Subscription %d added for %s (installation %d).\n",
		created.ID, created.JiraHost, created.GitHubInstallationID)
	cmd.Printf("Run 'jira-sync backfill %d' to start syncing.\n", created.ID)
	return nil
}

func runSubscriptionList(cmd *cobra.Command, _ []string) error {
	if backfillService == nil {
		return errors.New("backfill service not configured")
	}

	subs, err := backfillService.ListSubscriptions(context.Background())
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}
	if len(subs) == 0 {
		cmd.Println("No subscriptions configured.")
		return nil
	}

	st := newStyles(cmd.OutOrStdout())
	rows := make([][]string, 0, len(subs))
	for _, s := range subs {
		github := "github.com"
		if s.GitHubBaseURL != "" {
			github = s.GitHubBaseURL
		}
		rows = append(rows, []string{
			fmt.Sprint(s.ID),
			s.JiraHost,
			fmt.Sprint(s.GitHubInstallationID),
			github,
			syncStatusLabel(s.SyncStatus),
			fmt.Sprintf("%d/%d", s.SyncedRepos, s.TotalNumberOfRepos),
		})
	}
	cmd.Println(st.table([]string{"ID", "Jira", "Installation", "GitHub", "Status", "Repos"}, rows))
	return nil
}

func syncStatusLabel(s domain.SyncStatus) string {
	if s == domain.SyncStatusNone {
		return "never synced"
	}
	return string(s)
}
