// Package repoconfig parses and validates the repo-owned
// preview-config.yml that drives framework/database selection and the
// build/startup commands for a single deployment (C2).
package repoconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/previewd/orchestrator/internal/errs"
	"gopkg.in/yaml.v3"
)

// Framework and Database are the closed vocabularies RepoPreviewConfig's
// framework/database fields are validated against.
const (
	FrameworkNestJS   = "nestjs"
	FrameworkGo       = "go"
	FrameworkLaravel  = "laravel"
	FrameworkRust     = "rust"
	FrameworkPython   = "python"
	DatabasePostgres  = "postgres"
	DatabaseMySQL     = "mysql"
	DatabaseMongoDB   = "mongodb"
)

var validFrameworks = map[string]bool{
	FrameworkNestJS: true, FrameworkGo: true, FrameworkLaravel: true,
	FrameworkRust: true, FrameworkPython: true,
}

var validDatabases = map[string]bool{
	DatabasePostgres: true, DatabaseMySQL: true, DatabaseMongoDB: true,
}

// Config is the validated contents of preview-config.yml. Framework may be
// empty — an explicit config value wins over detection (C3), but a miss
// here is not an error; absence is resolved downstream.
type Config struct {
	Framework       string   `yaml:"framework"`
	Database        string   `yaml:"database"`
	HealthCheckPath string   `yaml:"health_check_path"`
	AppPort         int      `yaml:"app_port"`
	AppPortEnv      string   `yaml:"app_port_env"`
	AppEntrypoint   string   `yaml:"app_entrypoint"`
	BuildCommands   []string `yaml:"build_commands"`
	ExtraServices   []string `yaml:"extra_services"`
	Env             []string `yaml:"env"`
	EnvFile         string   `yaml:"env_file"`
	StartupCommands []string `yaml:"startup_commands"`
	Dockerfile      string   `yaml:"dockerfile"`
}

// rawConfig mirrors Config but captures env_file as yaml.Node so a
// sequence value (invalid — env_file must be a scalar string) can be
// rejected with a specific error instead of a generic unmarshal failure.
type rawConfig struct {
	Framework       string     `yaml:"framework"`
	Database        string     `yaml:"database"`
	HealthCheckPath string     `yaml:"health_check_path"`
	AppPort         int        `yaml:"app_port"`
	AppPortEnv      string     `yaml:"app_port_env"`
	AppEntrypoint   string     `yaml:"app_entrypoint"`
	BuildCommands   []string   `yaml:"build_commands"`
	ExtraServices   []string   `yaml:"extra_services"`
	Env             []string   `yaml:"env"`
	EnvFile         yaml.Node  `yaml:"env_file"`
	StartupCommands []string   `yaml:"startup_commands"`
	Dockerfile      string     `yaml:"dockerfile"`
}

// Load reads and validates preview-config.yml from the repo root at
// workDir.
func Load(workDir string) (*Config, error) {
	path := filepath.Join(workDir, "preview-config.yml")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.ErrConfigMissing
		}
		return nil, fmt.Errorf("%w: %v", errs.ErrConfigInvalid, err)
	}

	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrConfigInvalid, err)
	}

	envFile, err := scalarEnvFile(raw.EnvFile)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Framework:       raw.Framework,
		Database:        raw.Database,
		HealthCheckPath: normalizeHealthCheckPath(raw.HealthCheckPath),
		AppPort:         raw.AppPort,
		AppPortEnv:      raw.AppPortEnv,
		AppEntrypoint:   raw.AppEntrypoint,
		BuildCommands:   raw.BuildCommands,
		ExtraServices:   raw.ExtraServices,
		Env:             raw.Env,
		EnvFile:         envFile,
		StartupCommands: raw.StartupCommands,
		Dockerfile:      raw.Dockerfile,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func scalarEnvFile(node yaml.Node) (string, error) {
	if node.Kind == 0 {
		return "", nil
	}
	if node.Kind != yaml.ScalarNode {
		return "", fmt.Errorf("%w: env_file must be a single string path, not a list", errs.ErrConfigInvalid)
	}
	return node.Value, nil
}

func normalizeHealthCheckPath(p string) string {
	if p == "" || strings.HasPrefix(p, "/") {
		return p
	}
	return "/" + p
}

func (c *Config) validate() error {
	if c.Database == "" {
		return fmt.Errorf("%w: database is required", errs.ErrConfigInvalid)
	}
	if !validDatabases[c.Database] {
		return fmt.Errorf("%w: unknown database %q", errs.ErrConfigInvalid, c.Database)
	}
	if c.Framework != "" && !validFrameworks[c.Framework] {
		return fmt.Errorf("%w: unknown framework %q", errs.ErrConfigInvalid, c.Framework)
	}
	if !strings.HasPrefix(c.HealthCheckPath, "/") {
		return fmt.Errorf("%w: health_check_path must start with /", errs.ErrConfigInvalid)
	}
	if c.AppPort <= 0 {
		return fmt.Errorf("%w: app_port must be a positive integer", errs.ErrConfigInvalid)
	}
	if c.AppPortEnv == "" {
		return fmt.Errorf("%w: app_port_env is required", errs.ErrConfigInvalid)
	}
	if c.AppEntrypoint == "" {
		return fmt.Errorf("%w: app_entrypoint is required", errs.ErrConfigInvalid)
	}
	return nil
}
