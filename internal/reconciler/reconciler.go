// Package reconciler is the cleanup loop (C10): on startup it sweeps every
// tracked deployment once immediately, then on a recurring schedule,
// closing anything whose PR is no longer open or that has outlived its
// time-to-live.
package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/previewd/orchestrator/internal/audit"
	"github.com/previewd/orchestrator/internal/containermgr"
	"github.com/previewd/orchestrator/internal/forge"
	"github.com/previewd/orchestrator/internal/locks"
	"github.com/previewd/orchestrator/internal/proxy"
	"github.com/previewd/orchestrator/internal/schedule"
	"github.com/previewd/orchestrator/internal/tracker"
)

const sweepJobName = "preview-cleanup-sweep"

// Reconciler drives the recurring cleanup sweep. It implements
// schedule.JobExecutor itself, so the cron-dispatch, pause/resume, and
// execution-history bookkeeping in internal/schedule apply to the sweep
// the same way they apply to the teacher's process jobs — only the unit
// of work changes, from spawning a registered OS process to running the
// in-process sweep below.
type Reconciler struct {
	scheduler  *schedule.Scheduler
	containers *containermgr.Manager
	proxy      *proxy.Manager
	forge      forge.Client
	tracker    *tracker.Tracker
	locks      *locks.Table
	audit      *audit.Logger
	ttlDays    int
	logger     *slog.Logger
}

// New builds a Reconciler that sweeps every intervalHours, closing any
// deployment older than ttlDays or whose PR is no longer open.
func New(intervalHours, ttlDays int, containers *containermgr.Manager, proxyMgr *proxy.Manager, forgeClient forge.Client, tr *tracker.Tracker, lockTable *locks.Table, auditLogger *audit.Logger, logger *slog.Logger) (*Reconciler, error) {
	r := &Reconciler{
		containers: containers,
		proxy:      proxyMgr,
		forge:      forgeClient,
		tracker:    tr,
		locks:      lockTable,
		audit:      auditLogger,
		ttlDays:    ttlDays,
		logger:     logger.With("component", "reconciler"),
	}

	r.scheduler = schedule.NewScheduler(r, 20, logger)
	cronExpr := fmt.Sprintf("0 */%d * * *", intervalHours)
	if err := r.scheduler.AddJobWithOptions(sweepJobName, cronExpr, "UTC", schedule.JobOptions{Timeout: 5 * time.Minute}); err != nil {
		return nil, fmt.Errorf("reconciler: scheduling sweep: %w", err)
	}
	return r, nil
}

// Start runs one sweep immediately, then starts the recurring schedule.
func (r *Reconciler) Start(ctx context.Context) {
	if _, err := r.scheduler.TriggerJobSync(ctx, sweepJobName); err != nil {
		r.logger.Error("startup sweep failed to run", "error", err)
	}
	r.scheduler.Start()
}

// Stop halts the scheduler; no new sweep starts after this returns, and
// the returned context is done once any in-flight sweep has finished.
func (r *Reconciler) Stop() context.Context {
	return r.scheduler.Stop()
}

// Execute implements schedule.JobExecutor: it ignores jobName (the sweep
// has only one unit of work) and runs the sweep, logging but never
// surfacing per-deployment errors so one bad deployment can't stop the
// sweep or mark the job as failed.
func (r *Reconciler) Execute(ctx context.Context, jobName string) (int, error) {
	r.sweep(ctx)
	return 0, nil
}

func (r *Reconciler) sweep(ctx context.Context) {
	deployments := r.tracker.GetAllDeployments()
	r.logger.Info("sweep starting", "deployment_count", len(deployments))

	cleaned := 0
	for _, dep := range deployments {
		did, err := r.reconcileOne(ctx, dep)
		if err != nil {
			r.logger.Error("reconciling deployment failed", "deploymentId", dep.DeploymentID, "error", err)
		}
		if did {
			cleaned++
		}
	}

	r.logger.Info("sweep complete")
	r.audit.LogReconcileSweep(len(deployments), cleaned)
}

// reconcileOne reconciles dep, reporting whether a cleanup was attempted.
func (r *Reconciler) reconcileOne(ctx context.Context, dep tracker.Deployment) (cleaned bool, err error) {
	release := r.locks.Acquire(dep.DeploymentID)
	defer release()

	ageDays, ok := r.tracker.GetDeploymentAge(dep.DeploymentID)
	if !ok {
		// Deleted by a concurrent webhook cleanup between the snapshot and
		// this lock acquisition; nothing left to reconcile.
		return false, nil
	}

	open := true
	status, err := r.forge.CheckPRStatus(ctx, dep.RepoOwner, dep.RepoName, dep.PRNumber)
	if err != nil {
		r.logger.Warn("checking PR status failed, assuming open", "deploymentId", dep.DeploymentID, "error", err)
	} else {
		open = status.Open
	}

	if ageDays <= float64(r.ttlDays) && open {
		return false, nil
	}

	r.logger.Info("cleaning up expired or closed preview", "deploymentId", dep.DeploymentID, "ageDays", ageDays, "prOpen", open)
	err = r.cleanup(ctx, dep)
	r.audit.LogCleanup(dep.DeploymentID, "reconciler", err)
	return true, err
}

func (r *Reconciler) cleanup(ctx context.Context, dep tracker.Deployment) error {
	if err := r.containers.CleanupPreview(ctx, dep.DeploymentID); err != nil {
		return err
	}
	if err := r.proxy.RemovePreview(dep.ProjectSlug, dep.PRNumber); err != nil {
		return err
	}
	return r.tracker.DeleteDeployment(dep.DeploymentID)
}
