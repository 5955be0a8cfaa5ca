// Package config loads and validates the daemon's environment-variable
// configuration (spec.md §6). Repo-owned preview-config.yml parsing lives
// in internal/repoconfig — this package is for the orchestrator's own
// settings only.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds every setting the daemon reads from its environment.
type Config struct {
	GitHubToken            string
	GitHubWebhookSecret    string
	AllowedRepos           []string
	PreviewBaseURL         string
	DeploymentsDir         string
	NginxConfigDir         string
	DeploymentsDB          string
	CleanupTTLDays         int
	ReconcileIntervalHours int
	OrchestratorPort       int
	LogLevel               string
	LogFormat              string
}

// Load reads Config from the process environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		GitHubToken:            os.Getenv("GITHUB_TOKEN"),
		GitHubWebhookSecret:    os.Getenv("GITHUB_WEBHOOK_SECRET"),
		AllowedRepos:           splitAndTrim(os.Getenv("ALLOWED_REPOS")),
		PreviewBaseURL:         os.Getenv("PREVIEW_BASE_URL"),
		DeploymentsDir:         getEnvDefault("DEPLOYMENTS_DIR", "/opt/preview-deployments"),
		NginxConfigDir:         getEnvDefault("NGINX_CONFIG_DIR", "/etc/nginx/preview-configs"),
		DeploymentsDB:          getEnvDefault("DEPLOYMENTS_DB", "/opt/preview-deployer/deployments.json"),
		CleanupTTLDays:         7,
		ReconcileIntervalHours: 6,
		OrchestratorPort:       3000,
		LogLevel:               getEnvDefault("LOG_LEVEL", "info"),
		LogFormat:              getEnvDefault("LOG_FORMAT", "text"),
	}

	if v := os.Getenv("CLEANUP_TTL_DAYS"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid CLEANUP_TTL_DAYS %q: %w", v, err)
		}
		cfg.CleanupTTLDays = days
	}

	if v := os.Getenv("ORCHESTRATOR_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid ORCHESTRATOR_PORT %q: %w", v, err)
		}
		cfg.OrchestratorPort = port
	}

	if v := os.Getenv("RECONCILE_INTERVAL_HOURS"); v != "" {
		hours, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid RECONCILE_INTERVAL_HOURS %q: %w", v, err)
		}
		cfg.ReconcileIntervalHours = hours
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate fails fast on missing required settings, mirroring the
// teacher's required-field-checks-then-defaults pattern.
func (c *Config) Validate() error {
	var missing []string
	if c.GitHubToken == "" {
		missing = append(missing, "GITHUB_TOKEN")
	}
	if c.GitHubWebhookSecret == "" {
		missing = append(missing, "GITHUB_WEBHOOK_SECRET")
	}
	if c.PreviewBaseURL == "" {
		missing = append(missing, "PREVIEW_BASE_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	if len(c.AllowedRepos) == 0 {
		return fmt.Errorf("ALLOWED_REPOS must name at least one owner/repo")
	}
	for _, r := range c.AllowedRepos {
		if !strings.Contains(r, "/") {
			return fmt.Errorf("ALLOWED_REPOS entry %q must be in owner/repo form", r)
		}
	}

	if c.CleanupTTLDays <= 0 {
		return fmt.Errorf("CLEANUP_TTL_DAYS must be positive, got %d", c.CleanupTTLDays)
	}
	if c.ReconcileIntervalHours <= 0 {
		return fmt.Errorf("RECONCILE_INTERVAL_HOURS must be positive, got %d", c.ReconcileIntervalHours)
	}
	if c.OrchestratorPort <= 0 || c.OrchestratorPort > 65535 {
		return fmt.Errorf("ORCHESTRATOR_PORT must be a valid port, got %d", c.OrchestratorPort)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid LOG_LEVEL: %s", c.LogLevel)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("invalid LOG_FORMAT: %s", c.LogFormat)
	}

	return nil
}

// IsAllowedRepo reports whether "owner/repo" is present in AllowedRepos
// (C9 allowlist check).
func (c *Config) IsAllowedRepo(ownerSlashRepo string) bool {
	for _, r := range c.AllowedRepos {
		if r == ownerSlashRepo {
			return true
		}
	}
	return false
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
