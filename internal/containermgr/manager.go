// Package containermgr is the container manager (C8): it owns working-tree
// directories and the generated Dockerfile/compose artifacts within them,
// and drives the clone → build → compose-up → health-poll pipeline for
// deploy/update, plus the inverse for cleanup.
package containermgr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/previewd/orchestrator/internal/compose"
	"github.com/previewd/orchestrator/internal/errs"
	"github.com/previewd/orchestrator/internal/framework"
	"github.com/previewd/orchestrator/internal/hooks"
	"github.com/previewd/orchestrator/internal/repoconfig"
	"github.com/previewd/orchestrator/internal/tracker"
)

// Manager wires together a repo's source (VCS), its build engine (Engine),
// the durable port/deployment tracker, framework detection, and build-hook
// execution into the deploy/update/cleanup/status operations spec.md §4.8
// names.
type Manager struct {
	DeploymentsRoot string
	PublicBaseURL   string
	Tracker         *tracker.Tracker
	Frameworks      *framework.Registry
	Hooks           *hooks.Executor
	VCS             VCS
	Engine          Engine
	Logger          *slog.Logger
}

// NewManager builds a Manager from its collaborators.
func NewManager(deploymentsRoot, publicBaseURL string, tr *tracker.Tracker, frameworks *framework.Registry, hooksExec *hooks.Executor, vcs VCS, engine Engine, logger *slog.Logger) *Manager {
	return &Manager{
		DeploymentsRoot: deploymentsRoot,
		PublicBaseURL:   publicBaseURL,
		Tracker:         tr,
		Frameworks:      frameworks,
		Hooks:           hooksExec,
		VCS:             vcs,
		Engine:          engine,
		Logger:          logger,
	}
}

// DeployInput is everything deployPreview needs about the PR being
// deployed; ports are allocated internally.
type DeployInput struct {
	ProjectSlug  string
	PRNumber     int
	DeploymentID string
	RepoOwner    string
	RepoName     string
	Branch       string
	CommitSHA    string
	CloneURL     string
}

// DeployResult mirrors the tuple spec.md §4.8 says deployPreview returns.
type DeployResult struct {
	URL            string
	AppPort        int
	ExposedAppPort int
	ExposedDBPort  int
	Framework      framework.Framework
	DBType         string
}

func (m *Manager) workDir(projectSlug string, prNumber int) string {
	return filepath.Join(m.DeploymentsRoot, projectSlug, fmt.Sprintf("pr-%d", prNumber))
}

// DeployPreview runs the full clone/build/compose-up/health-poll pipeline.
// On any failure it invokes CleanupPreview (logging, not masking, any
// cleanup error) and returns the original error.
func (m *Manager) DeployPreview(ctx context.Context, in DeployInput) (DeployResult, error) {
	workDir := m.workDir(in.ProjectSlug, in.PRNumber)

	result, err := m.deployInto(ctx, in, workDir)
	if err != nil {
		if cerr := m.CleanupPreview(ctx, in.DeploymentID); cerr != nil {
			m.logError("cleanup after failed deploy", in.DeploymentID, cerr)
		}
		return DeployResult{}, err
	}
	return result, nil
}

func (m *Manager) deployInto(ctx context.Context, in DeployInput, workDir string) (DeployResult, error) {
	// 1. Working tree.
	if err := os.RemoveAll(workDir); err != nil {
		return DeployResult{}, fmt.Errorf("%w: clearing working tree: %v", errs.ErrContainerUp, err)
	}
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return DeployResult{}, fmt.Errorf("%w: creating working tree: %v", errs.ErrContainerUp, err)
	}

	// 2. Port allocation, degrading gracefully if the engine can't be asked
	// which host ports are busy.
	excludePorts, err := m.Engine.BoundHostPorts(ctx)
	if err != nil {
		m.logError("listing bound host ports, proceeding with empty exclude set", in.DeploymentID, err)
		excludePorts = nil
	}
	alloc, err := m.Tracker.AllocatePorts(in.DeploymentID, excludePorts)
	if err != nil {
		return DeployResult{}, err
	}

	// 3. Fetch the PR's head revision.
	if err := m.VCS.Clone(ctx, in.CloneURL, workDir); err != nil {
		return DeployResult{}, err
	}
	if err := m.VCS.Checkout(ctx, workDir, in.Branch); err != nil {
		return DeployResult{}, err
	}
	if err := m.VCS.ResetHard(ctx, workDir, in.CommitSHA); err != nil {
		return DeployResult{}, err
	}

	// 4. Repo config + framework resolution.
	repoCfg, fw, err := m.loadRepoConfig(workDir)
	if err != nil {
		return DeployResult{}, err
	}

	// 5. Build commands.
	if err := m.runBuildCommands(ctx, in.DeploymentID, workDir, repoCfg); err != nil {
		return DeployResult{}, err
	}

	// 6. Materialize Dockerfile + compose.
	composeResult, err := m.materialize(in.DeploymentID, in.ProjectSlug, in.PRNumber, workDir, fw, repoCfg, alloc)
	if err != nil {
		return DeployResult{}, err
	}

	// 7. compose up.
	if err := m.Engine.ComposeUp(ctx, in.DeploymentID, composeResult.ComposeFilePath, workDir); err != nil {
		return DeployResult{}, err
	}

	// 8. Health poll.
	healthURL := fmt.Sprintf("http://localhost:%d%s", alloc.ExposedAppPort, repoCfg.HealthCheckPath)
	if err := pollHealth(ctx, healthURL); err != nil {
		return DeployResult{}, err
	}

	// 9. Public URL.
	return DeployResult{
		URL:            m.publicURL(in.ProjectSlug, in.PRNumber),
		AppPort:        repoCfg.AppPort,
		ExposedAppPort: alloc.ExposedAppPort,
		ExposedDBPort:  alloc.ExposedDBPort,
		Framework:      fw,
		DBType:         repoCfg.Database,
	}, nil
}

// UpdatePreview re-syncs an existing deployment's working tree to newSHA
// and re-runs the build/compose-up/health-poll sequence in place.
func (m *Manager) UpdatePreview(ctx context.Context, deploymentID, newSHA string) (DeployResult, error) {
	dep, ok := m.Tracker.GetDeployment(deploymentID)
	if !ok {
		return DeployResult{}, fmt.Errorf("%w: unknown deployment %s", errs.ErrTrackerIO, deploymentID)
	}
	workDir := m.workDir(dep.ProjectSlug, dep.PRNumber)

	if err := m.VCS.FetchOrigin(ctx, workDir); err != nil {
		return DeployResult{}, err
	}
	if err := m.VCS.ResetHard(ctx, workDir, newSHA); err != nil {
		return DeployResult{}, err
	}

	repoCfg, fw, err := m.loadRepoConfig(workDir)
	if err != nil {
		return DeployResult{}, err
	}

	if err := m.runBuildCommands(ctx, deploymentID, workDir, repoCfg); err != nil {
		return DeployResult{}, err
	}

	alloc, err := m.Tracker.AllocatePorts(deploymentID, nil)
	if err != nil {
		return DeployResult{}, err
	}

	composeResult, err := m.materialize(deploymentID, dep.ProjectSlug, dep.PRNumber, workDir, fw, repoCfg, alloc)
	if err != nil {
		return DeployResult{}, err
	}

	if err := m.Engine.ComposeUp(ctx, deploymentID, composeResult.ComposeFilePath, workDir); err != nil {
		return DeployResult{}, err
	}

	healthURL := fmt.Sprintf("http://localhost:%d%s", alloc.ExposedAppPort, repoCfg.HealthCheckPath)
	if err := pollHealth(ctx, healthURL); err != nil {
		return DeployResult{}, err
	}

	return DeployResult{
		URL:            m.publicURL(dep.ProjectSlug, dep.PRNumber),
		AppPort:        repoCfg.AppPort,
		ExposedAppPort: alloc.ExposedAppPort,
		ExposedDBPort:  alloc.ExposedDBPort,
		Framework:      fw,
		DBType:         repoCfg.Database,
	}, nil
}

// CleanupPreview tears a deployment down: compose down -v (errors logged,
// not propagated, since the compose file or containers may already be
// gone), remove the working tree, release its ports. If the deployment is
// already absent from the tracker this only releases ports, defensively.
func (m *Manager) CleanupPreview(ctx context.Context, deploymentID string) error {
	dep, ok := m.Tracker.GetDeployment(deploymentID)
	if !ok {
		return m.Tracker.ReleasePorts(deploymentID)
	}

	workDir := m.workDir(dep.ProjectSlug, dep.PRNumber)

	if composeFile := findComposeFile(workDir); composeFile != "" {
		if err := m.Engine.ComposeDown(ctx, deploymentID, composeFile, workDir); err != nil {
			m.logError("compose down during cleanup", deploymentID, err)
		}
	}

	if err := os.RemoveAll(workDir); err != nil {
		m.logError("removing working tree during cleanup", deploymentID, err)
	}

	return m.Tracker.ReleasePorts(deploymentID)
}

// GetPreviewStatus inspects the app container by its conventional name.
// A missing container reports stopped, not an error.
func (m *Manager) GetPreviewStatus(ctx context.Context, deploymentID string) (Status, error) {
	dep, ok := m.Tracker.GetDeployment(deploymentID)
	if !ok {
		return StatusStopped, nil
	}
	containerName := fmt.Sprintf("%s-pr-%d-app", dep.ProjectSlug, dep.PRNumber)
	return m.Engine.ContainerStatus(ctx, containerName)
}

func (m *Manager) loadRepoConfig(workDir string) (*repoconfig.Config, framework.Framework, error) {
	repoCfg, err := repoconfig.Load(workDir)
	if err != nil {
		return nil, "", err
	}
	fw, err := m.Frameworks.Resolve(workDir, framework.Framework(repoCfg.Framework))
	if err != nil {
		return nil, "", fmt.Errorf("%w: resolving framework: %v", errs.ErrConfigInvalid, err)
	}
	return repoCfg, fw, nil
}

func (m *Manager) runBuildCommands(ctx context.Context, deploymentID, workDir string, repoCfg *repoconfig.Config) error {
	if len(repoCfg.BuildCommands) == 0 {
		return nil
	}
	if err := m.Hooks.RunSequence(ctx, deploymentID, workDir, repoCfg.BuildCommands, hooks.DefaultTimeout); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrBuildCommandFailed, err)
	}
	return nil
}

func (m *Manager) materialize(deploymentID, projectSlug string, prNumber int, workDir string, fw framework.Framework, repoCfg *repoconfig.Config, alloc tracker.PortAllocation) (compose.Result, error) {
	return compose.Materialize(compose.Input{
		WorkDir:         workDir,
		ProjectSlug:     projectSlug,
		PRNumber:        prNumber,
		DeploymentID:    deploymentID,
		Framework:       fw,
		DBType:          repoCfg.Database,
		AppPort:         repoCfg.AppPort,
		AppPortEnv:      repoCfg.AppPortEnv,
		AppEntrypoint:   repoCfg.AppEntrypoint,
		ExposedAppPort:  alloc.ExposedAppPort,
		ExposedDBPort:   alloc.ExposedDBPort,
		ExtraServices:   repoCfg.ExtraServices,
		Env:             repoCfg.Env,
		EnvFile:         repoCfg.EnvFile,
		StartupCommands: repoCfg.StartupCommands,
		Dockerfile:      repoCfg.Dockerfile,
	})
}

func (m *Manager) publicURL(projectSlug string, prNumber int) string {
	return fmt.Sprintf("%s/%s/pr-%d/", strings.TrimRight(m.PublicBaseURL, "/"), projectSlug, prNumber)
}

func (m *Manager) logError(msg, deploymentID string, err error) {
	if m.Logger != nil {
		m.Logger.Error(msg, "deploymentId", deploymentID, "error", err)
	}
}

// findComposeFile returns whichever materialized compose file exists in
// workDir, preferring the repo-owned-transform output name.
func findComposeFile(workDir string) string {
	for _, name := range []string{"docker-compose.preview.generated.yml", "docker-compose.preview.yml"} {
		p := filepath.Join(workDir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
