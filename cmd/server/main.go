package main

import (
	"os"

	"github.com/spf13/cobra"

	"gmbdash/server/internal/scheduler"
)

var rootCmd = &cobra.Command{
	Use:   "gmbdash-server",
	Short: "Google Business Profile and YouTube dashboard backend",
	Long: `gmbdash-server serves the dashboard API and runs the background jobs
that keep Google Business Profile data, scheduled posts and weekly
recommendations current.

  gmbdash-server serve           HTTP API plus scheduler
  gmbdash-server migrate         create or update tables
  gmbdash-server sync            sync every account once
  gmbdash-server recommend       generate this week's tasks
  gmbdash-server job <name>      run any scheduled job now and exit`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newRunJobCmd("sync", "Sync every active Google Business Profile account once", scheduler.JobSync),
		newRunJobCmd("recommend", "Generate this week's recommendations and send digests", scheduler.JobRecommend),
		newJobCmd(),
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
