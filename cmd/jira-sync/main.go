// Command jira-sync backfills GitHub development data into Jira.
package main

import (
	"fmt"
	"os"

	"github.com/custodia-labs/jira-sync/internal/adapters/driving/cli"
)

var version = "dev"

func main() {
	cli.SetVersion(version)
	cli.SetBootstrap(bootstrap)

	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
