package containermgr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FakeVCS is a hand-written VCS double: Clone just creates dir (optionally
// seeding it with Files), Checkout/ResetHard/FetchOrigin are no-ops unless
// pre-armed with an error. No real git binary is invoked.
type FakeVCS struct {
	Files map[string]string

	CloneErr    error
	CheckoutErr error
	ResetErr    error
	FetchErr    error

	Clones    []string
	Checkouts []string
	Resets    []string
}

func (f *FakeVCS) Clone(ctx context.Context, cloneURL, dir string) error {
	f.Clones = append(f.Clones, cloneURL)
	if f.CloneErr != nil {
		return f.CloneErr
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	for name, contents := range f.Files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(contents), 0644); err != nil {
			return err
		}
	}
	return nil
}

func (f *FakeVCS) Checkout(ctx context.Context, dir, branch string) error {
	f.Checkouts = append(f.Checkouts, branch)
	return f.CheckoutErr
}

func (f *FakeVCS) ResetHard(ctx context.Context, dir, commitSHA string) error {
	f.Resets = append(f.Resets, commitSHA)
	return f.ResetErr
}

func (f *FakeVCS) FetchOrigin(ctx context.Context, dir string) error {
	return f.FetchErr
}

// FakeEngine is a hand-written Engine double recording compose up/down
// invocations without a real docker daemon.
type FakeEngine struct {
	BoundPorts map[int]bool
	BoundErr   error
	UpErr      error
	DownErr    error
	Status     Status

	UpCalls   []string
	DownCalls []string
}

func (f *FakeEngine) BoundHostPorts(ctx context.Context) (map[int]bool, error) {
	if f.BoundErr != nil {
		return nil, f.BoundErr
	}
	return f.BoundPorts, nil
}

func (f *FakeEngine) ComposeUp(ctx context.Context, projectName, composeFile, workDir string) error {
	f.UpCalls = append(f.UpCalls, projectName)
	if f.UpErr != nil {
		return f.UpErr
	}
	if _, err := os.Stat(composeFile); err != nil {
		return fmt.Errorf("fake engine: compose file missing: %w", err)
	}
	return nil
}

func (f *FakeEngine) ComposeDown(ctx context.Context, projectName, composeFile, workDir string) error {
	f.DownCalls = append(f.DownCalls, projectName)
	return f.DownErr
}

func (f *FakeEngine) ContainerStatus(ctx context.Context, containerName string) (Status, error) {
	if f.Status == "" {
		return StatusRunning, nil
	}
	return f.Status, nil
}
