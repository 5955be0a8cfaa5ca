package tracker

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/previewd/orchestrator/internal/errs"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deployments.json")
	tr, err := New(path)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return tr
}

func TestNew_MissingFileIsEmptyView(t *testing.T) {
	tr := newTestTracker(t)
	if len(tr.GetAllDeployments()) != 0 {
		t.Fatal("expected empty deployment list for missing store file")
	}
}

func TestSaveAndGetDeployment(t *testing.T) {
	tr := newTestTracker(t)
	d := Deployment{DeploymentID: "acme-web-1", Status: "building", CreatedAt: time.Now().UTC()}
	if err := tr.SaveDeployment(d); err != nil {
		t.Fatalf("SaveDeployment failed: %v", err)
	}

	got, ok := tr.GetDeployment("acme-web-1")
	if !ok || got.Status != "building" {
		t.Fatalf("expected saved deployment, got %v, ok=%v", got, ok)
	}

	// Reopen from disk to confirm durability.
	reopened, err := New(tr.path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if _, ok := reopened.GetDeployment("acme-web-1"); !ok {
		t.Fatal("expected deployment to survive reload from disk")
	}
}

func TestDeleteDeployment_IdempotentOnAbsence(t *testing.T) {
	tr := newTestTracker(t)
	if err := tr.DeleteDeployment("does-not-exist"); err != nil {
		t.Fatalf("expected no error deleting absent deployment, got %v", err)
	}
}

func TestAllocatePorts_Idempotent(t *testing.T) {
	tr := newTestTracker(t)
	a1, err := tr.AllocatePorts("acme-web-1", nil)
	if err != nil {
		t.Fatalf("AllocatePorts failed: %v", err)
	}
	a2, err := tr.AllocatePorts("acme-web-1", nil)
	if err != nil {
		t.Fatalf("AllocatePorts (repeat) failed: %v", err)
	}
	if a1 != a2 {
		t.Fatalf("expected idempotent allocation, got %v then %v", a1, a2)
	}
}

func TestAllocatePorts_NoDuplicateAcrossDeployments(t *testing.T) {
	tr := newTestTracker(t)
	a1, _ := tr.AllocatePorts("acme-web-1", nil)
	a2, _ := tr.AllocatePorts("acme-web-2", nil)

	if a1.ExposedAppPort == a2.ExposedAppPort {
		t.Fatal("expected distinct app ports")
	}
	if a1.ExposedDBPort == a2.ExposedDBPort {
		t.Fatal("expected distinct db ports")
	}
}

func TestAllocatePorts_RespectsExcludeSet(t *testing.T) {
	tr := newTestTracker(t)
	exclude := map[int]bool{appPortBase: true}

	a, err := tr.AllocatePorts("acme-web-1", exclude)
	if err != nil {
		t.Fatalf("AllocatePorts failed: %v", err)
	}
	if a.ExposedAppPort == appPortBase {
		t.Fatalf("expected base port to be skipped, got %d", a.ExposedAppPort)
	}
}

func TestAllocatePorts_Exhausted(t *testing.T) {
	tr := newTestTracker(t)
	exclude := make(map[int]bool)
	for p := appPortBase; p <= maxPort; p++ {
		exclude[p] = true
	}

	_, err := tr.AllocatePorts("acme-web-1", exclude)
	if !errors.Is(err, errs.ErrPortsExhausted) {
		t.Fatalf("expected ErrPortsExhausted, got %v", err)
	}
}

func TestReleasePorts(t *testing.T) {
	tr := newTestTracker(t)
	a1, _ := tr.AllocatePorts("acme-web-1", nil)
	if err := tr.ReleasePorts("acme-web-1"); err != nil {
		t.Fatalf("ReleasePorts failed: %v", err)
	}
	a2, _ := tr.AllocatePorts("acme-web-1", nil)
	if a1 != a2 {
		t.Fatalf("expected reallocation to reuse the freed base port, got %v then %v", a1, a2)
	}
}

func TestGetDeploymentAge(t *testing.T) {
	tr := newTestTracker(t)
	created := time.Now().UTC().Add(-48 * time.Hour)
	tr.SaveDeployment(Deployment{DeploymentID: "acme-web-1", CreatedAt: created})

	age, ok := tr.GetDeploymentAge("acme-web-1")
	if !ok {
		t.Fatal("expected age for known deployment")
	}
	if age < 1.9 || age > 2.1 {
		t.Fatalf("expected age ~2 days, got %f", age)
	}
}
