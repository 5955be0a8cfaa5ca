package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/previewd/orchestrator/internal/audit"
	"github.com/previewd/orchestrator/internal/config"
	"github.com/previewd/orchestrator/internal/containermgr"
	"github.com/previewd/orchestrator/internal/forge"
	"github.com/previewd/orchestrator/internal/framework"
	"github.com/previewd/orchestrator/internal/hooks"
	"github.com/previewd/orchestrator/internal/httpapi"
	"github.com/previewd/orchestrator/internal/locks"
	"github.com/previewd/orchestrator/internal/logger"
	"github.com/previewd/orchestrator/internal/proxy"
	"github.com/previewd/orchestrator/internal/reconciler"
	"github.com/previewd/orchestrator/internal/signals"
	"github.com/previewd/orchestrator/internal/tracker"
	"github.com/previewd/orchestrator/internal/webhook"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the preview orchestrator daemon",
	Long: `Start previewd in daemon mode: serve the GitHub webhook and preview
API, and run the reconciliation sweep on its schedule. This is the
default action when no subcommand is given.`,
	Run: runServe,
}

func runServe(cmd *cobra.Command, args []string) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	log.Info("previewd starting",
		"version", version,
		"pid", os.Getpid(),
		"allowed_repos", len(cfg.AllowedRepos),
		"orchestrator_port", cfg.OrchestratorPort,
		"cleanup_ttl_days", cfg.CleanupTTLDays,
		"reconcile_interval_hours", cfg.ReconcileIntervalHours,
	)

	tr, err := tracker.New(cfg.DeploymentsDB)
	if err != nil {
		log.Error("opening deployment tracker failed", "error", err)
		os.Exit(1)
	}

	containers := containermgr.NewManager(
		cfg.DeploymentsDir,
		cfg.PreviewBaseURL,
		tr,
		framework.NewRegistry(),
		hooks.NewExecutor(log),
		containermgr.GitVCS{},
		containermgr.DockerEngine{},
		log,
	)
	proxyMgr := proxy.New(cfg.NginxConfigDir, proxy.NginxReloader{}, log)
	forgeClient := forge.NewGitHubClient(cfg.GitHubToken)
	lockTable := locks.NewTable()
	auditLogger := audit.NewLogger(log, true)

	webhookHandler := webhook.New(cfg.GitHubWebhookSecret, cfg, containers, proxyMgr, forgeClient, tr, lockTable, auditLogger, log)

	recon, err := reconciler.New(cfg.ReconcileIntervalHours, cfg.CleanupTTLDays, containers, proxyMgr, forgeClient, tr, lockTable, auditLogger, log)
	if err != nil {
		log.Error("building reconciler failed", "error", err)
		os.Exit(1)
	}

	httpServer := httpapi.NewServer(cfg.OrchestratorPort, webhookHandler, tr, auditLogger, log)

	ctx, stop := signals.NotifyContext(context.Background())
	defer stop()

	auditLogger.LogSystemStart(version)
	recon.Start(ctx)
	httpServer.Start()

	log.Info("previewd ready")
	<-ctx.Done()

	log.Info("shutdown signal received, draining")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", "error", err)
	}

	graceful := true
	select {
	case <-recon.Stop().Done():
	case <-shutdownCtx.Done():
		log.Warn("reconciler did not drain before shutdown timeout")
		graceful = false
	}

	auditLogger.LogSystemShutdown("shutdown signal received", graceful)
	log.Info("previewd stopped")
}
