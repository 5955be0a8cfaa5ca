package compose

import (
	"strings"

	"github.com/previewd/orchestrator/internal/framework"
)

// wrappedEntrypoint implements the startup_commands wrapping rule: run each
// command in sequence, then exec into whatever command the caller sets,
// preserving its arguments via "$@". Returns nil when there is nothing to
// wrap.
func wrappedEntrypoint(startupCommands []string) []string {
	if len(startupCommands) == 0 {
		return nil
	}
	joined := strings.Join(startupCommands, " && ")
	return []string{"/bin/sh", "-c", joined + ` && exec "$@"`, "--"}
}

func defaultProcess(in Input) []string {
	return framework.DefaultProcess(in.Framework, in.AppEntrypoint, in.AppPort)
}
