// Package hooks runs the repo-owned build_commands and startup_commands
// (preview-config.yml) against a deployment's working tree.
package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"
)

// DefaultTimeout bounds a single command when the caller does not supply
// one explicitly.
const DefaultTimeout = 5 * time.Minute

// Executor runs a sequence of shell commands in a fixed working directory,
// logging each command's combined output at debug level once it finishes
// and stopping at the first failure.
type Executor struct {
	logger *slog.Logger
}

// NewExecutor creates a command Executor.
func NewExecutor(log *slog.Logger) *Executor {
	return &Executor{logger: log}
}

// RunSequence executes each command via "sh -c" in workdir, in order,
// stopping and returning the first error. deploymentId is attached to
// every log line for correlation.
func (e *Executor) RunSequence(ctx context.Context, deploymentID, workdir string, commands []string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	for i, command := range commands {
		e.logger.Info("running command",
			"deployment_id", deploymentID,
			"index", i+1,
			"total", len(commands),
			"command", command,
		)

		if err := e.runOnce(ctx, deploymentID, workdir, command, timeout); err != nil {
			return fmt.Errorf("command %q failed: %w", command, err)
		}
	}
	return nil
}

func (e *Executor) runOnce(ctx context.Context, deploymentID, workdir, command string, timeout time.Duration) error {
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "sh", "-c", command)
	cmd.Dir = workdir
	cmd.Env = os.Environ()

	output, err := cmd.CombinedOutput()
	if len(output) > 0 {
		e.logger.Debug("command output",
			"deployment_id", deploymentID,
			"command", command,
			"output", string(output),
		)
	}
	if err != nil {
		return fmt.Errorf("%w (output: %s)", err, string(output))
	}
	return nil
}
