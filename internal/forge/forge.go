// Package forge is the source-forge (GitHub) client (C7): posting and
// updating PR comments, and querying a PR's open/closed/merged state.
package forge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/previewd/orchestrator/internal/errs"
)

// PRStatus is the result of checkPRStatus.
type PRStatus struct {
	Open   bool
	Closed bool
	Merged bool
}

// Client posts/updates PR comments and queries PR status. Implementations
// must be replaceable for tests — production uses the GitHub REST API.
type Client interface {
	PostComment(ctx context.Context, owner, repo string, prNumber int, body string) (int64, error)
	UpdateComment(ctx context.Context, owner, repo string, commentID int64, body string) error
	CheckPRStatus(ctx context.Context, owner, repo string, prNumber int) (PRStatus, error)
}

// GitHubClient talks to the GitHub REST API directly over net/http,
// grounded on the pack's direct-HTTP-provider pattern (no generated SDK).
type GitHubClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewGitHubClient builds a Client authenticated with a personal-access or
// installation token.
func NewGitHubClient(token string) *GitHubClient {
	return &GitHubClient{
		baseURL: "https://api.github.com",
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *GitHubClient) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: marshaling request: %v", errs.ErrForgeAPIFailure, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: building request: %v", errs.ErrForgeAPIFailure, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: request failed: %v", errs.ErrForgeAPIFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: status %d: %s", errs.ErrForgeAPIFailure, resp.StatusCode, respBody)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", errs.ErrForgeAPIFailure, err)
	}
	return nil
}

// PostComment creates a new issue comment on the PR (GitHub treats a PR as
// an issue for comment purposes) and returns its id.
func (c *GitHubClient) PostComment(ctx context.Context, owner, repo string, prNumber int, body string) (int64, error) {
	path := fmt.Sprintf("/repos/%s/%s/issues/%d/comments", owner, repo, prNumber)
	var out struct {
		ID int64 `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, path, map[string]string{"body": body}, &out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

// UpdateComment overwrites the body of an existing comment.
func (c *GitHubClient) UpdateComment(ctx context.Context, owner, repo string, commentID int64, body string) error {
	path := fmt.Sprintf("/repos/%s/%s/issues/comments/%d", owner, repo, commentID)
	return c.do(ctx, http.MethodPatch, path, map[string]string{"body": body}, nil)
}

// CheckPRStatus reports whether the PR is open, closed, or merged.
func (c *GitHubClient) CheckPRStatus(ctx context.Context, owner, repo string, prNumber int) (PRStatus, error) {
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d", owner, repo, prNumber)
	var out struct {
		State  string `json:"state"`
		Merged bool   `json:"merged"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return PRStatus{}, err
	}
	return PRStatus{
		Open:   out.State == "open",
		Closed: out.State == "closed",
		Merged: out.Merged,
	}, nil
}

// Comment kinds the caller formats before calling PostComment/UpdateComment.

// BuildingComment is posted as soon as a deploy or update begins.
func BuildingComment() string {
	return "Building preview environment..."
}

// SuccessComment is posted once the preview passes its health check.
func SuccessComment(url string) string {
	return fmt.Sprintf("Preview environment is ready: %s", url)
}

// FailureComment is posted when a deploy, update, or cleanup fails.
func FailureComment(reason string) string {
	return fmt.Sprintf("Preview environment failed: %s", reason)
}
