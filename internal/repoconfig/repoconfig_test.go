package repoconfig

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/previewd/orchestrator/internal/errs"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "preview-config.yml"), []byte(content), 0644); err != nil {
		t.Fatalf("write preview-config.yml: %v", err)
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(t.TempDir())
	if !errors.Is(err, errs.ErrConfigMissing) {
		t.Fatalf("expected ErrConfigMissing, got %v", err)
	}
}

func TestLoad_Valid(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
framework: nestjs
database: postgres
health_check_path: healthz
app_port: 3000
app_port_env: PORT
app_entrypoint: dist/main.js
build_commands:
  - npm ci
  - npm run build
startup_commands:
  - npm run migrate
env:
  - NODE_ENV=production
env_file: .env.preview
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.HealthCheckPath != "/healthz" {
		t.Errorf("expected normalized health_check_path, got %q", cfg.HealthCheckPath)
	}
	if cfg.EnvFile != ".env.preview" {
		t.Errorf("expected env_file scalar, got %q", cfg.EnvFile)
	}
	if len(cfg.BuildCommands) != 2 {
		t.Errorf("expected 2 build commands, got %d", len(cfg.BuildCommands))
	}
}

func TestLoad_UnknownDatabase(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
database: oracle
health_check_path: /health
app_port: 3000
app_port_env: PORT
app_entrypoint: main
`)
	_, err := Load(dir)
	if !errors.Is(err, errs.ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid, got %v", err)
	}
}

func TestLoad_EnvFileSequenceRejected(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
database: postgres
health_check_path: /health
app_port: 3000
app_port_env: PORT
app_entrypoint: main
env_file:
  - one.env
  - two.env
`)
	_, err := Load(dir)
	if !errors.Is(err, errs.ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid for sequence env_file, got %v", err)
	}
}

func TestLoad_MissingRequiredField(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
database: postgres
health_check_path: /health
app_port: 3000
`)
	_, err := Load(dir)
	if !errors.Is(err, errs.ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid for missing app_port_env and app_entrypoint, got %v", err)
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "database: [postgres\n")
	_, err := Load(dir)
	if !errors.Is(err, errs.ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid for malformed yaml, got %v", err)
	}
}
