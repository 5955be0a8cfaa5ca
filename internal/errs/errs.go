// Package errs centralizes the orchestrator's error taxonomy as sentinel
// values, grouped by concern, grounded on dublyo-dockerizer's
// internal/errors package.
package errs

import "errors"

// Configuration errors (C2).
var (
	ErrConfigMissing = errors.New("preview-config.yml not found in working tree")
	ErrConfigInvalid = errors.New("preview-config.yml is invalid")
)

// Webhook errors (C9).
var (
	ErrAllowlistRejected = errors.New("repository is not in the configured allowlist")
	ErrSignatureInvalid  = errors.New("webhook signature verification failed")
)

// Resource errors (C4).
var (
	ErrPortsExhausted = errors.New("no free ports remain in the configured range")
	ErrTrackerIO      = errors.New("deployment tracker I/O failed")
)

// Build/runtime errors (C8).
var (
	ErrGitOperationFailed = errors.New("a git operation failed")
	ErrBuildCommandFailed = errors.New("a configured build command failed")
	ErrContainerUp        = errors.New("docker compose up failed")
	ErrHealthCheckTimeout = errors.New("deployment did not become healthy before timeout")
)

// Proxy and upstream errors (C6/C7).
var (
	ErrProxyReload   = errors.New("reverse proxy route reload failed")
	ErrForgeAPIFailure = errors.New("source-forge API request failed")
)

// Kind classifies err against the taxonomy above, returning a short
// machine-readable label used for HTTP status mapping and PR-comment
// bodies. Unrecognized errors classify as "internal".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfigMissing):
		return "config_missing"
	case errors.Is(err, ErrConfigInvalid):
		return "config_invalid"
	case errors.Is(err, ErrAllowlistRejected):
		return "allowlist_rejected"
	case errors.Is(err, ErrSignatureInvalid):
		return "signature_invalid"
	case errors.Is(err, ErrPortsExhausted):
		return "ports_exhausted"
	case errors.Is(err, ErrTrackerIO):
		return "tracker_io"
	case errors.Is(err, ErrGitOperationFailed):
		return "git_operation_failed"
	case errors.Is(err, ErrBuildCommandFailed):
		return "build_command_failed"
	case errors.Is(err, ErrContainerUp):
		return "container_up"
	case errors.Is(err, ErrHealthCheckTimeout):
		return "health_check_timeout"
	case errors.Is(err, ErrProxyReload):
		return "proxy_reload"
	case errors.Is(err, ErrForgeAPIFailure):
		return "forge_api_failure"
	default:
		return "internal"
	}
}
