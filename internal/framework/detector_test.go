package framework

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("writeFile(%s): %v", name, err)
	}
}

func TestRegistry_Resolve_Override(t *testing.T) {
	r := NewRegistry()
	fw, err := r.Resolve(t.TempDir(), Rust)
	if err != nil || fw != Rust {
		t.Fatalf("expected override to win, got %v, %v", fw, err)
	}
}

func TestRegistry_Resolve_NestCliJSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "nest-cli.json", "{}")

	r := NewRegistry()
	fw, err := r.Resolve(dir, "")
	if err != nil || fw != NestJS {
		t.Fatalf("expected nestjs, got %v, %v", fw, err)
	}
}

func TestRegistry_Resolve_NestPackageJSONDep(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "package.json", `{"dependencies":{"@nestjs/core":"^10.0.0"}}`)

	r := NewRegistry()
	fw, err := r.Resolve(dir, "")
	if err != nil || fw != NestJS {
		t.Fatalf("expected nestjs, got %v, %v", fw, err)
	}
}

func TestRegistry_Resolve_Go(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "go.mod", "module example.com/app\n\ngo 1.24\n")

	r := NewRegistry()
	fw, err := r.Resolve(dir, "")
	if err != nil || fw != Go {
		t.Fatalf("expected go, got %v, %v", fw, err)
	}
}

func TestRegistry_Resolve_Laravel(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "composer.json", `{"require":{"laravel/framework":"^11.0"}}`)

	r := NewRegistry()
	fw, err := r.Resolve(dir, "")
	if err != nil || fw != Laravel {
		t.Fatalf("expected laravel, got %v, %v", fw, err)
	}
}

func TestRegistry_Resolve_NoMatch(t *testing.T) {
	r := NewRegistry()
	_, err := r.Resolve(t.TempDir(), "")
	if err != ErrNoMatch {
		t.Fatalf("expected ErrNoMatch, got %v", err)
	}
}

func TestRegistry_Resolve_PriorityOrder(t *testing.T) {
	// A repo that looks like both NestJS and Go should resolve to NestJS,
	// since it is checked first.
	dir := t.TempDir()
	writeFile(t, dir, "nest-cli.json", "{}")
	writeFile(t, dir, "go.mod", "module example.com/app\n\ngo 1.24\n")

	r := NewRegistry()
	fw, err := r.Resolve(dir, "")
	if err != nil || fw != NestJS {
		t.Fatalf("expected nestjs to win priority, got %v, %v", fw, err)
	}
}

func TestDefaultProcess(t *testing.T) {
	cases := []struct {
		fw   Framework
		want []string
	}{
		{NestJS, []string{"node", "dist/main.js"}},
		{Go, []string{"./server"}},
		{Python, []string{"uvicorn", "app.main:app", "--host", "0.0.0.0", "--port", "8000"}},
		{Laravel, []string{"php", "artisan", "serve", "--host=0.0.0.0", "--port=8000"}},
	}

	entrypoints := map[Framework]string{
		NestJS:  "dist/main.js",
		Go:      "server",
		Python:  "app.main:app",
		Laravel: "",
	}

	for _, c := range cases {
		got := DefaultProcess(c.fw, entrypoints[c.fw], 8000)
		if len(got) != len(c.want) {
			t.Fatalf("%s: got %v want %v", c.fw, got, c.want)
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Fatalf("%s: got %v want %v", c.fw, got, c.want)
			}
		}
	}
}
