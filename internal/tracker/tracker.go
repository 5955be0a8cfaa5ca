// Package tracker is the durable deployment store (C4): a single JSON
// document tracking Deployment records and their PortAllocations, backed
// by write-temp-then-rename atomic writes and an in-memory cache that
// mirrors the on-disk state for fast hot-path reads.
package tracker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/previewd/orchestrator/internal/errs"
)

const (
	appPortBase = 8000
	dbPortBase  = 9000
	maxPort     = 65535
)

// Deployment is the authoritative record of one preview environment.
type Deployment struct {
	PRNumber       int       `json:"prNumber"`
	RepoOwner      string    `json:"repoOwner"`
	RepoName       string    `json:"repoName"`
	ProjectSlug    string    `json:"projectSlug"`
	DeploymentID   string    `json:"deploymentId"`
	Branch         string    `json:"branch"`
	CommitSHA      string    `json:"commitSha"`
	CloneURL       string    `json:"cloneUrl"`
	Framework      string    `json:"framework"`
	DBType         string    `json:"dbType"`
	AppPort        int       `json:"appPort"`
	ExposedAppPort int       `json:"exposedAppPort"`
	ExposedDBPort  int       `json:"exposedDbPort"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	URL            string    `json:"url,omitempty"`
	CommentID      int64     `json:"commentId,omitempty"`
}

// PortAllocation is the pair of host ports reserved for one deployment.
type PortAllocation struct {
	ExposedAppPort int `json:"exposedAppPort"`
	ExposedDBPort  int `json:"exposedDbPort"`
}

type store struct {
	Deployments     map[string]Deployment     `json:"deployments"`
	PortAllocations map[string]PortAllocation `json:"portAllocations"`
}

func emptyStore() *store {
	return &store{
		Deployments:     make(map[string]Deployment),
		PortAllocations: make(map[string]PortAllocation),
	}
}

// Tracker reads/writes the Store file, caching the parsed document in
// memory so reads never re-parse the file.
type Tracker struct {
	path string
	mu   sync.Mutex
	data *store
}

// New loads (or initializes) the store at path.
func New(path string) (*Tracker, error) {
	t := &Tracker{path: path}
	data, err := t.load()
	if err != nil {
		return nil, err
	}
	t.data = data
	return t, nil
}

func (t *Tracker) load() (*store, error) {
	raw, err := os.ReadFile(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return emptyStore(), nil
		}
		return nil, fmt.Errorf("%w: %v", errs.ErrTrackerIO, err)
	}
	if len(raw) == 0 {
		return emptyStore(), nil
	}
	s := emptyStore()
	if err := json.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrTrackerIO, err)
	}
	if s.Deployments == nil {
		s.Deployments = make(map[string]Deployment)
	}
	if s.PortAllocations == nil {
		s.PortAllocations = make(map[string]PortAllocation)
	}
	return s, nil
}

// persist rewrites the store file atomically (write temp, then rename)
// from the in-memory cache, which callers update before calling it.
// Must be called with mu held.
func (t *Tracker) persist() error {
	raw, err := json.MarshalIndent(t.data, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrTrackerIO, err)
	}

	dir := filepath.Dir(t.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrTrackerIO, err)
	}

	tmp, err := os.CreateTemp(dir, ".tracker-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrTrackerIO, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", errs.ErrTrackerIO, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrTrackerIO, err)
	}
	if err := os.Rename(tmpPath, t.path); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrTrackerIO, err)
	}
	return nil
}

// GetDeployment returns the deployment for id and whether it exists.
func (t *Tracker) GetDeployment(id string) (Deployment, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.data.Deployments[id]
	return d, ok
}

// GetAllDeployments returns a snapshot of every tracked deployment.
func (t *Tracker) GetAllDeployments() []Deployment {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Deployment, 0, len(t.data.Deployments))
	for _, d := range t.data.Deployments {
		out = append(out, d)
	}
	return out
}

// GetDeploymentAge returns the number of days since createdAt, or false
// if id is unknown.
func (t *Tracker) GetDeploymentAge(id string) (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.data.Deployments[id]
	if !ok {
		return 0, false
	}
	return time.Since(d.CreatedAt).Hours() / 24, true
}

// SaveDeployment writes-through d, replacing any prior record for its id.
func (t *Tracker) SaveDeployment(d Deployment) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.Deployments[d.DeploymentID] = d
	return t.persist()
}

// DeleteDeployment removes id's record (idempotent on absence).
func (t *Tracker) DeleteDeployment(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.data.Deployments, id)
	return t.persist()
}

// UpdateDeploymentStatus write-through updates id's status and updatedAt.
func (t *Tracker) UpdateDeploymentStatus(id, status string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.data.Deployments[id]
	if !ok {
		return fmt.Errorf("%w: unknown deployment %s", errs.ErrTrackerIO, id)
	}
	d.Status = status
	d.UpdatedAt = time.Now().UTC()
	t.data.Deployments[id] = d
	return t.persist()
}

// UpdateDeploymentComment write-through updates id's owned PR comment id.
func (t *Tracker) UpdateDeploymentComment(id string, commentID int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.data.Deployments[id]
	if !ok {
		return fmt.Errorf("%w: unknown deployment %s", errs.ErrTrackerIO, id)
	}
	d.CommentID = commentID
	t.data.Deployments[id] = d
	return t.persist()
}

// ReleasePorts drops id's port allocation, if any.
func (t *Tracker) ReleasePorts(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.data.PortAllocations, id)
	return t.persist()
}

// AllocatePorts returns id's existing allocation if present (idempotent),
// otherwise picks the smallest free app/db ports not in excludePorts or
// already allocated to another deployment, persists the allocation, and
// returns it.
func (t *Tracker) AllocatePorts(id string, excludePorts map[int]bool) (PortAllocation, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.data.PortAllocations[id]; ok {
		return existing, nil
	}

	usedApp := make(map[int]bool)
	usedDB := make(map[int]bool)
	for k, v := range excludePorts {
		if v {
			usedApp[k] = true
			usedDB[k] = true
		}
	}
	for _, alloc := range t.data.PortAllocations {
		usedApp[alloc.ExposedAppPort] = true
		usedDB[alloc.ExposedDBPort] = true
	}

	appPort, err := firstFree(appPortBase, usedApp)
	if err != nil {
		return PortAllocation{}, err
	}
	dbPort, err := firstFree(dbPortBase, usedDB)
	if err != nil {
		return PortAllocation{}, err
	}

	alloc := PortAllocation{ExposedAppPort: appPort, ExposedDBPort: dbPort}
	t.data.PortAllocations[id] = alloc
	if err := t.persist(); err != nil {
		return PortAllocation{}, err
	}
	return alloc, nil
}

func firstFree(base int, used map[int]bool) (int, error) {
	for p := base; p <= maxPort; p++ {
		if !used[p] {
			return p, nil
		}
	}
	return 0, errs.ErrPortsExhausted
}
