// Package webhook handles incoming GitHub pull_request webhooks (C9):
// signature verification, repository allow-listing, and dispatch to the
// deploy/update/cleanup paths, each wrapped in a best-effort PR comment
// and a per-deployment lock.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/previewd/orchestrator/internal/audit"
	"github.com/previewd/orchestrator/internal/containermgr"
	"github.com/previewd/orchestrator/internal/forge"
	"github.com/previewd/orchestrator/internal/locks"
	"github.com/previewd/orchestrator/internal/proxy"
	"github.com/previewd/orchestrator/internal/slug"
	"github.com/previewd/orchestrator/internal/tracker"
)

// RepoAllowlist is the allow-list membership check the handler needs;
// satisfied by *config.Config.
type RepoAllowlist interface {
	IsAllowedRepo(ownerSlashRepo string) bool
}

// Handler wires the webhook surface to the container manager, proxy,
// source-forge client, and tracker, serializing same-deployment requests
// through a lock table.
type Handler struct {
	Secret     string
	Allowlist  RepoAllowlist
	Containers *containermgr.Manager
	Proxy      *proxy.Manager
	Forge      forge.Client
	Tracker    *tracker.Tracker
	Locks      *locks.Table
	Audit      *audit.Logger
	Logger     *slog.Logger
}

// New builds a Handler from its collaborators.
func New(secret string, allowlist RepoAllowlist, containers *containermgr.Manager, proxyMgr *proxy.Manager, forgeClient forge.Client, tr *tracker.Tracker, lockTable *locks.Table, auditLogger *audit.Logger, logger *slog.Logger) *Handler {
	return &Handler{
		Secret:     secret,
		Allowlist:  allowlist,
		Containers: containers,
		Proxy:      proxyMgr,
		Forge:      forgeClient,
		Tracker:    tr,
		Locks:      lockTable,
		Audit:      auditLogger,
		Logger:     logger,
	}
}

// VerifySignature checks the raw body against the X-Hub-Signature-256
// header value ("sha256=<hex>") using HMAC-SHA256 and a constant-time
// comparison. An empty signature is always rejected.
func VerifySignature(secret string, body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	const prefix = "sha256="
	if !strings.HasPrefix(signature, prefix) {
		return false
	}
	given, err := hex.DecodeString(strings.TrimPrefix(signature, prefix))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := mac.Sum(nil)

	if len(given) != len(want) {
		return false
	}
	return subtle.ConstantTimeCompare(given, want) == 1
}

// PullRequestEvent is the subset of GitHub's pull_request webhook payload
// this daemon acts on.
type PullRequestEvent struct {
	Action      string `json:"action"`
	Number      int    `json:"number"`
	PullRequest struct {
		Head struct {
			SHA string `json:"sha"`
			Ref string `json:"ref"`
		} `json:"head"`
	} `json:"pull_request"`
	Repository struct {
		FullName string `json:"full_name"`
		Name     string `json:"name"`
		CloneURL string `json:"clone_url"`
		Owner    struct {
			Login string `json:"login"`
		} `json:"owner"`
	} `json:"repository"`
}

// ParsePullRequestEvent decodes a pull_request webhook body.
func ParsePullRequestEvent(body []byte) (PullRequestEvent, error) {
	var evt PullRequestEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return PullRequestEvent{}, fmt.Errorf("webhook: decoding pull_request payload: %w", err)
	}
	return evt, nil
}

// ValidateRepository reports whether fullName ("owner/repo") is allowed.
func (h *Handler) ValidateRepository(fullName string) bool {
	return h.Allowlist.IsAllowedRepo(fullName)
}

// HandleWebhook dispatches evt to the deploy, update, or cleanup path
// based on its action, ignoring (with a log line) anything else.
func (h *Handler) HandleWebhook(ctx context.Context, evt PullRequestEvent) error {
	switch evt.Action {
	case "opened", "reopened":
		return h.handleDeployOrUpdate(ctx, evt)
	case "synchronize":
		return h.handleSynchronize(ctx, evt)
	case "closed":
		return h.handleClosed(ctx, evt)
	default:
		h.Logger.Info("ignoring webhook action", "action", evt.Action, "repo", evt.Repository.FullName, "pr", evt.Number)
		return nil
	}
}

func (h *Handler) handleDeployOrUpdate(ctx context.Context, evt PullRequestEvent) error {
	projectSlug := slug.ToProjectSlug(evt.Repository.Owner.Login, evt.Repository.Name)
	deploymentID := slug.ToDeploymentID(projectSlug, evt.Number)

	release := h.Locks.Acquire(deploymentID)
	defer release()

	if _, ok := h.Tracker.GetDeployment(deploymentID); ok {
		return h.updateLocked(ctx, evt, deploymentID)
	}
	return h.deployLocked(ctx, evt, projectSlug, deploymentID)
}

func (h *Handler) handleSynchronize(ctx context.Context, evt PullRequestEvent) error {
	projectSlug := slug.ToProjectSlug(evt.Repository.Owner.Login, evt.Repository.Name)
	deploymentID := slug.ToDeploymentID(projectSlug, evt.Number)

	release := h.Locks.Acquire(deploymentID)
	defer release()

	if _, ok := h.Tracker.GetDeployment(deploymentID); !ok {
		return h.deployLocked(ctx, evt, projectSlug, deploymentID)
	}
	return h.updateLocked(ctx, evt, deploymentID)
}

func (h *Handler) handleClosed(ctx context.Context, evt PullRequestEvent) error {
	projectSlug := slug.ToProjectSlug(evt.Repository.Owner.Login, evt.Repository.Name)
	deploymentID := slug.ToDeploymentID(projectSlug, evt.Number)

	release := h.Locks.Acquire(deploymentID)
	defer release()

	dep, ok := h.Tracker.GetDeployment(deploymentID)
	if !ok {
		h.Logger.Info("cleanup requested for unknown deployment", "deploymentId", deploymentID)
		return nil
	}

	err := h.cleanup(ctx, dep)
	h.Audit.LogCleanup(deploymentID, "webhook", err)
	if err != nil {
		h.postFailureComment(ctx, evt.Repository.Owner.Login, evt.Repository.Name, dep.CommentID, err)
		h.Logger.Error("cleanup path failed", "deploymentId", deploymentID, "error", err)
		return err
	}
	return nil
}

// deployLocked runs the deploy path; the caller must already hold
// deploymentID's lock.
func (h *Handler) deployLocked(ctx context.Context, evt PullRequestEvent, projectSlug, deploymentID string) error {
	owner := evt.Repository.Owner.Login
	repo := evt.Repository.Name

	commentID, cerr := h.Forge.PostComment(ctx, owner, repo, evt.Number, forge.BuildingComment())
	if cerr != nil {
		h.Logger.Error("posting building comment", "deploymentId", deploymentID, "error", cerr)
	}

	result, err := h.Containers.DeployPreview(ctx, containermgr.DeployInput{
		ProjectSlug:  projectSlug,
		PRNumber:     evt.Number,
		DeploymentID: deploymentID,
		RepoOwner:    owner,
		RepoName:     repo,
		Branch:       evt.PullRequest.Head.Ref,
		CommitSHA:    evt.PullRequest.Head.SHA,
		CloneURL:     evt.Repository.CloneURL,
	})
	if err != nil {
		h.postFailureCommentByID(ctx, owner, repo, commentID, err)
		h.Audit.LogDeploy(deploymentID, "webhook", false, err)
		return err
	}

	if err := h.Proxy.AddPreview(projectSlug, evt.Number, result.ExposedAppPort); err != nil {
		h.postFailureCommentByID(ctx, owner, repo, commentID, err)
		h.Audit.LogDeploy(deploymentID, "webhook", false, err)
		return err
	}

	now := time.Now().UTC()
	dep := tracker.Deployment{
		PRNumber:       evt.Number,
		RepoOwner:      owner,
		RepoName:       repo,
		ProjectSlug:    projectSlug,
		DeploymentID:   deploymentID,
		Branch:         evt.PullRequest.Head.Ref,
		CommitSHA:      evt.PullRequest.Head.SHA,
		CloneURL:       evt.Repository.CloneURL,
		Framework:      string(result.Framework),
		DBType:         result.DBType,
		AppPort:        result.AppPort,
		ExposedAppPort: result.ExposedAppPort,
		ExposedDBPort:  result.ExposedDBPort,
		Status:         "running",
		CreatedAt:      now,
		UpdatedAt:      now,
		URL:            result.URL,
		CommentID:      commentID,
	}
	if err := h.Tracker.SaveDeployment(dep); err != nil {
		return err
	}
	h.Audit.LogDeploy(deploymentID, "webhook", false, nil)

	if commentID != 0 {
		if err := h.Forge.UpdateComment(ctx, owner, repo, commentID, forge.SuccessComment(result.URL)); err != nil {
			h.Logger.Error("updating success comment", "deploymentId", deploymentID, "error", err)
		}
	}
	return nil
}

// updateLocked runs the update path; the caller must already hold
// deploymentID's lock.
func (h *Handler) updateLocked(ctx context.Context, evt PullRequestEvent, deploymentID string) error {
	dep, ok := h.Tracker.GetDeployment(deploymentID)
	if !ok {
		projectSlug := slug.ToProjectSlug(evt.Repository.Owner.Login, evt.Repository.Name)
		return h.deployLocked(ctx, evt, projectSlug, deploymentID)
	}

	owner, repo := dep.RepoOwner, dep.RepoName
	newSHA := evt.PullRequest.Head.SHA

	if dep.CommentID != 0 {
		if err := h.Forge.UpdateComment(ctx, owner, repo, dep.CommentID, forge.BuildingComment()); err != nil {
			h.Logger.Error("updating building comment", "deploymentId", deploymentID, "error", err)
		}
	}

	result, err := h.Containers.UpdatePreview(ctx, deploymentID, newSHA)
	if err != nil {
		h.postFailureComment(ctx, owner, repo, dep.CommentID, err)
		h.Audit.LogDeploy(deploymentID, "webhook", true, err)
		return err
	}

	dep.CommitSHA = newSHA
	dep.Status = "running"
	dep.URL = result.URL
	dep.UpdatedAt = time.Now().UTC()
	if err := h.Tracker.SaveDeployment(dep); err != nil {
		return err
	}
	h.Audit.LogDeploy(deploymentID, "webhook", true, nil)

	if dep.CommentID != 0 {
		if err := h.Forge.UpdateComment(ctx, owner, repo, dep.CommentID, forge.SuccessComment(result.URL)); err != nil {
			h.Logger.Error("updating success comment", "deploymentId", deploymentID, "error", err)
		}
	}
	return nil
}

// ManualCleanup runs the same cleanup path as the closed-PR webhook for an
// operator-initiated delete. found is false when deploymentID is not
// currently tracked, letting the caller distinguish 404 from 500.
func (h *Handler) ManualCleanup(ctx context.Context, deploymentID string) (found bool, err error) {
	release := h.Locks.Acquire(deploymentID)
	defer release()

	dep, ok := h.Tracker.GetDeployment(deploymentID)
	if !ok {
		return false, nil
	}

	err = h.cleanup(ctx, dep)
	h.Audit.LogCleanup(deploymentID, "operator", err)
	if err != nil {
		h.postFailureComment(ctx, dep.RepoOwner, dep.RepoName, dep.CommentID, err)
		h.Logger.Error("manual cleanup failed", "deploymentId", deploymentID, "error", err)
		return true, err
	}
	return true, nil
}

func (h *Handler) cleanup(ctx context.Context, dep tracker.Deployment) error {
	if err := h.Containers.CleanupPreview(ctx, dep.DeploymentID); err != nil {
		return err
	}
	if err := h.Proxy.RemovePreview(dep.ProjectSlug, dep.PRNumber); err != nil {
		return err
	}
	return h.Tracker.DeleteDeployment(dep.DeploymentID)
}

func (h *Handler) postFailureComment(ctx context.Context, owner, repo string, commentID int64, cause error) {
	h.postFailureCommentByID(ctx, owner, repo, commentID, cause)
}

func (h *Handler) postFailureCommentByID(ctx context.Context, owner, repo string, commentID int64, cause error) {
	if commentID == 0 {
		return
	}
	if err := h.Forge.UpdateComment(ctx, owner, repo, commentID, forge.FailureComment(cause.Error())); err != nil {
		h.Logger.Error("posting failure comment", "error", err)
	}
}
