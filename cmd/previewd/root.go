package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "previewd",
	Short: "Per-pull-request preview environment orchestrator",
	Long: `previewd builds and tears down a throwaway preview environment for
every pull request opened against an allow-listed repository:

- Listens for GitHub pull_request webhooks (opened, synchronize, closed)
- Clones the PR's branch, detects its framework, and brings it up via
  docker compose behind a path-routed reverse proxy
- Reconciles tracked deployments on a schedule, cleaning up anything
  whose PR has closed or outlived its time-to-live

Configuration is read entirely from the environment; run
validate-config to load and check it without starting the daemon.`,
	Version: version,
	Run: func(cmd *cobra.Command, args []string) {
		serveCmd.Run(cmd, args)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(validateConfigCmd)
}
