package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/previewd/orchestrator/internal/config"
)

var validateConfigCmd = &cobra.Command{
	Use:   "validate-config",
	Short: "Validate environment configuration and exit",
	Long: `Load configuration from the process environment, run the same
validation serve would, and report the result without starting the
daemon.`,
	Run: runValidateConfig,
}

func runValidateConfig(cmd *cobra.Command, args []string) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration invalid: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("configuration is valid")
	fmt.Printf("  allowed repos:            %d\n", len(cfg.AllowedRepos))
	fmt.Printf("  orchestrator port:        %d\n", cfg.OrchestratorPort)
	fmt.Printf("  cleanup ttl (days):       %d\n", cfg.CleanupTTLDays)
	fmt.Printf("  reconcile interval (hrs): %d\n", cfg.ReconcileIntervalHours)
	fmt.Printf("  deployments dir:          %s\n", cfg.DeploymentsDir)
	fmt.Printf("  nginx config dir:         %s\n", cfg.NginxConfigDir)
	fmt.Printf("  log level / format:       %s / %s\n", cfg.LogLevel, cfg.LogFormat)
}
