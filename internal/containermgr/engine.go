package containermgr

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/previewd/orchestrator/internal/errs"
)

// Status is the tri-state getPreviewStatus reports.
type Status string

const (
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
	StatusFailed  Status = "failed"
)

// Engine is the container-engine capability the manager needs: bringing a
// compose project up/down, inspecting one container's state, and listing
// host ports currently bound by any running container (used to exclude
// them from port allocation). Kept as an interface, as with VCS, so
// deploy/update/cleanup can be tested without a real docker daemon.
type Engine interface {
	BoundHostPorts(ctx context.Context) (map[int]bool, error)
	ComposeUp(ctx context.Context, projectName, composeFile, workDir string) error
	ComposeDown(ctx context.Context, projectName, composeFile, workDir string) error
	ContainerStatus(ctx context.Context, containerName string) (Status, error)
}

// DockerEngine shells out to the docker CLI, the same os/exec pattern
// internal/hooks and internal/containermgr/vcs.go use for git.
type DockerEngine struct{}

func (DockerEngine) BoundHostPorts(ctx context.Context) (map[int]bool, error) {
	out, err := exec.CommandContext(ctx, "docker", "ps", "--format", "{{.Ports}}").CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("listing bound host ports: %w: %s", err, out)
	}
	return parseBoundPorts(string(out)), nil
}

// parseBoundPorts extracts host ports from docker's "0.0.0.0:8001->80/tcp,
// [::]:8001->80/tcp" style port-mapping text.
func parseBoundPorts(raw string) map[int]bool {
	ports := make(map[int]bool)
	for _, mapping := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == '\n' }) {
		mapping = strings.TrimSpace(mapping)
		arrow := strings.Index(mapping, "->")
		if arrow < 0 {
			continue
		}
		hostSide := mapping[:arrow]
		colon := strings.LastIndex(hostSide, ":")
		if colon < 0 {
			continue
		}
		if port, err := strconv.Atoi(hostSide[colon+1:]); err == nil {
			ports[port] = true
		}
	}
	return ports
}

func (DockerEngine) ComposeUp(ctx context.Context, projectName, composeFile, workDir string) error {
	return runCompose(ctx, workDir, projectName, composeFile, "up", "-d", "--build")
}

func (DockerEngine) ComposeDown(ctx context.Context, projectName, composeFile, workDir string) error {
	return runCompose(ctx, workDir, projectName, composeFile, "down", "-v")
}

func runCompose(ctx context.Context, workDir, projectName, composeFile string, args ...string) error {
	full := append([]string{"compose", "-p", projectName, "-f", composeFile}, args...)
	cmd := exec.CommandContext(ctx, "docker", full...)
	cmd.Dir = workDir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: docker %v: %v: %s", errs.ErrContainerUp, full, err, out)
	}
	return nil
}

func (DockerEngine) ContainerStatus(ctx context.Context, containerName string) (Status, error) {
	out, err := exec.CommandContext(ctx, "docker", "inspect", "--format", "{{.State.Status}}", containerName).CombinedOutput()
	if err != nil {
		return StatusStopped, nil
	}
	switch strings.TrimSpace(string(out)) {
	case "running":
		return StatusRunning, nil
	case "exited", "dead":
		return StatusFailed, nil
	default:
		return StatusStopped, nil
	}
}
