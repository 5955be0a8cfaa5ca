// Package compose materializes the Dockerfile and docker-compose file for
// one deployment's working tree (C5). It has two modes: transforming a
// repo-owned docker-compose.preview.yml/.yaml, or rendering a per-framework
// template and merging in database/extra-service blocks. Both paths inject
// the host's port allocation, environment, and startup commands, and both
// write their result atomically (write temp, then rename).
package compose

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/previewd/orchestrator/internal/framework"
)

const (
	repoComposeYML       = "docker-compose.preview.yml"
	repoComposeYAML      = "docker-compose.preview.yaml"
	generatedComposeName = "docker-compose.preview.generated.yml"
	templatedComposeName = "docker-compose.preview.yml"
)

// Input carries everything the materializer needs to know about one
// deployment; it owns no I/O itself beyond workDir.
type Input struct {
	WorkDir         string
	ProjectSlug     string
	PRNumber        int
	DeploymentID    string
	Framework       framework.Framework
	DBType          string
	AppPort         int
	AppPortEnv      string
	AppEntrypoint   string
	ExposedAppPort  int
	ExposedDBPort   int
	ExtraServices   []string
	Env             []string
	EnvFile         string
	StartupCommands []string
	Dockerfile      string
}

// Result reports the paths of the two files a caller must feed to
// `compose -f` and `docker build`/clone validation.
type Result struct {
	ComposeFilePath string
	DockerfilePath  string
}

// Materialize resolves the Dockerfile, then the compose file (repo-owned or
// template-generated), writing both into in.WorkDir.
func Materialize(in Input) (Result, error) {
	dockerfilePath, err := resolveDockerfile(in)
	if err != nil {
		return Result{}, err
	}

	composePath, err := materializeCompose(in)
	if err != nil {
		return Result{}, err
	}

	return Result{ComposeFilePath: composePath, DockerfilePath: dockerfilePath}, nil
}

func materializeCompose(in Input) (string, error) {
	if repoPath, ok := findRepoOwnedCompose(in.WorkDir); ok {
		return materializeRepoOwned(in, repoPath)
	}
	return materializeTemplate(in)
}

// findRepoOwnedCompose looks for the repo's own preview compose file,
// normalizing a .yaml extension to .yml by renaming in place.
func findRepoOwnedCompose(workDir string) (string, bool) {
	ymlPath := filepath.Join(workDir, repoComposeYML)
	if fileExists(ymlPath) {
		return ymlPath, true
	}
	yamlPath := filepath.Join(workDir, repoComposeYAML)
	if fileExists(yamlPath) {
		if err := os.Rename(yamlPath, ymlPath); err != nil {
			return "", false
		}
		return ymlPath, true
	}
	return "", false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// resolveDockerfile implements the three-way resolution from spec: use an
// existing Dockerfile, promote a lowercase dockerfile, or render one from
// the per-framework template.
func resolveDockerfile(in Input) (string, error) {
	canonical := filepath.Join(in.WorkDir, dockerfileRelName(in))

	if fileExists(canonical) {
		return canonical, nil
	}

	lower := filepath.Join(in.WorkDir, "dockerfile")
	if fileExists(lower) {
		data, err := os.ReadFile(lower)
		if err != nil {
			return "", fmt.Errorf("compose: reading lowercase dockerfile: %w", err)
		}
		if err := writeFileAtomic(canonical, data, 0644); err != nil {
			return "", err
		}
		return canonical, nil
	}

	rendered, err := renderDockerfile(in.Framework, dockerfileVars{
		AppPort:       in.AppPort,
		AppEntrypoint: in.AppEntrypoint,
		DBType:        in.DBType,
	})
	if err != nil {
		return "", err
	}
	if err := writeFileAtomic(canonical, []byte(rendered), 0644); err != nil {
		return "", err
	}
	return canonical, nil
}

// writeFileAtomic writes data to path via write-temp-then-rename in the
// same directory, matching the tracker's durability pattern.
func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("compose: creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".compose-*.tmp")
	if err != nil {
		return fmt.Errorf("compose: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("compose: writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("compose: closing %s: %w", path, err)
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		return fmt.Errorf("compose: chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("compose: renaming into %s: %w", path, err)
	}
	return nil
}
