package builder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/chaoticbest/vibehub/internal/manifest"
)

func newTestService(timeout time.Duration) *Service {
	return NewService(timeout, nil, zerolog.Nop())
}

func writeSourceFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
}

func staticRequest(dir string) *Request {
	return &Request{
		Slug:      "tetris",
		SourceDir: dir,
		Manifest:  &manifest.Manifest{Type: manifest.TypeStatic},
		BasePath:  "/app/tetris/",
	}
}

func TestSelectBuilder_CommandWins(t *testing.T) {
	service := newTestService(time.Minute)
	dir := t.TempDir()
	writeSourceFile(t, dir, "package.json", `{"scripts":{"build":"webpack"}}`)

	req := staticRequest(dir)
	req.Manifest.Build.Command = "make site"

	if name := service.selectBuilder(req).Name(); name != "command" {
		t.Errorf("Expected command builder, got %s", name)
	}
}

func TestSelectBuilder_NPM(t *testing.T) {
	service := newTestService(time.Minute)
	dir := t.TempDir()
	writeSourceFile(t, dir, "package.json", `{"scripts":{"build":"vite build"}}`)

	if name := service.selectBuilder(staticRequest(dir)).Name(); name != "npm" {
		t.Errorf("Expected npm builder, got %s", name)
	}
}

func TestSelectBuilder_NPMWithoutBuildScript(t *testing.T) {
	service := newTestService(time.Minute)
	dir := t.TempDir()
	writeSourceFile(t, dir, "package.json", `{"scripts":{"test":"jest"}}`)

	if name := service.selectBuilder(staticRequest(dir)).Name(); name != "static" {
		t.Errorf("Expected static builder for package.json without build script, got %s", name)
	}
}

func TestSelectBuilder_StaticFallback(t *testing.T) {
	service := newTestService(time.Minute)
	dir := t.TempDir()
	writeSourceFile(t, dir, "index.html", "<h1>hi</h1>")

	if name := service.selectBuilder(staticRequest(dir)).Name(); name != "static" {
		t.Errorf("Expected static builder, got %s", name)
	}
}

func TestBuild_StaticServesRoot(t *testing.T) {
	service := newTestService(time.Minute)
	dir := t.TempDir()
	writeSourceFile(t, dir, "index.html", "<h1>hi</h1>")

	result, err := service.Build(context.Background(), staticRequest(dir))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if result.Builder != "static" {
		t.Errorf("Expected static builder, got %s", result.Builder)
	}
	if result.OutputDir != dir {
		t.Errorf("Expected output at source root %s, got %s", dir, result.OutputDir)
	}
}

func TestBuild_CommandProducesDist(t *testing.T) {
	service := newTestService(time.Minute)
	dir := t.TempDir()
	writeSourceFile(t, dir, "index.html", "<h1>src</h1>")

	req := staticRequest(dir)
	req.Manifest.Build.Command = `sh -c "mkdir -p dist && echo built > dist/index.html"`

	result, err := service.Build(context.Background(), req)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if result.OutputDir != filepath.Join(dir, "dist") {
		t.Errorf("Expected output in dist, got %s", result.OutputDir)
	}
}

func TestBuild_DeclaredOutputDir(t *testing.T) {
	service := newTestService(time.Minute)
	dir := t.TempDir()

	req := staticRequest(dir)
	req.Manifest.Build.Command = `sh -c "mkdir -p out && echo built > out/index.html"`
	req.Manifest.Build.OutputDir = "out"

	result, err := service.Build(context.Background(), req)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if result.OutputDir != filepath.Join(dir, "out") {
		t.Errorf("Expected declared output dir, got %s", result.OutputDir)
	}
}

func TestBuild_DeclaredOutputMissing(t *testing.T) {
	service := newTestService(time.Minute)
	dir := t.TempDir()

	req := staticRequest(dir)
	req.Manifest.Build.Command = "true"
	req.Manifest.Build.OutputDir = "out"

	_, err := service.Build(context.Background(), req)
	var missing *OutputMissingError
	if !errors.As(err, &missing) {
		t.Fatalf("Expected OutputMissingError, got %v", err)
	}
	if missing.Dir != "out" {
		t.Errorf("Expected declared dir in error, got %q", missing.Dir)
	}
}

func TestBuild_NoOutputAnywhere(t *testing.T) {
	service := newTestService(time.Minute)
	dir := t.TempDir()
	writeSourceFile(t, dir, "main.txt", "not a site")

	req := staticRequest(dir)
	req.Manifest.Build.Command = "true"

	_, err := service.Build(context.Background(), req)
	var missing *OutputMissingError
	if !errors.As(err, &missing) {
		t.Fatalf("Expected OutputMissingError, got %v", err)
	}
	if len(missing.Tried) == 0 {
		t.Error("Expected tried candidates in error")
	}
}

func TestBuild_InPlaceFallback(t *testing.T) {
	service := newTestService(time.Minute)
	dir := t.TempDir()
	writeSourceFile(t, dir, "index.html", "<h1>src</h1>")

	// The build writes into the tree instead of a bundler output dir.
	req := staticRequest(dir)
	req.Manifest.Build.Command = `sh -c "echo body > style.css"`

	result, err := service.Build(context.Background(), req)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if result.OutputDir != dir {
		t.Errorf("Expected in-place fallback to source root, got %s", result.OutputDir)
	}
}

func TestBuild_CommandFails(t *testing.T) {
	service := newTestService(time.Minute)
	dir := t.TempDir()

	req := staticRequest(dir)
	req.Manifest.Build.Command = `sh -c "echo nope >&2; exit 2"`

	_, err := service.Build(context.Background(), req)
	var buildErr *BuildError
	if !errors.As(err, &buildErr) {
		t.Fatalf("Expected BuildError, got %v", err)
	}
	if buildErr.ExitCode != 2 {
		t.Errorf("Expected exit code 2, got %d", buildErr.ExitCode)
	}
	if !strings.Contains(buildErr.Output, "nope") {
		t.Errorf("Expected stderr in captured output, got %q", buildErr.Output)
	}
}

func TestBuild_InstallRunsBeforeCommand(t *testing.T) {
	service := newTestService(time.Minute)
	dir := t.TempDir()

	req := staticRequest(dir)
	req.Manifest.Build.Install = `sh -c "echo installed > marker.txt"`
	req.Manifest.Build.Command = `sh -c "mkdir -p dist && cp marker.txt dist/"`

	_, err := service.Build(context.Background(), req)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "dist", "marker.txt")); err != nil {
		t.Errorf("Expected install output to be visible to build command: %v", err)
	}
}

func TestBuild_Timeout(t *testing.T) {
	service := newTestService(200 * time.Millisecond)
	dir := t.TempDir()

	req := staticRequest(dir)
	req.Manifest.Build.Command = "sleep 5"

	_, err := service.Build(context.Background(), req)
	if !errors.Is(err, ErrTimedOut) {
		t.Errorf("Expected ErrTimedOut, got %v", err)
	}
}

func TestBuild_BasePathEnvExported(t *testing.T) {
	service := newTestService(time.Minute)
	dir := t.TempDir()

	req := staticRequest(dir)
	req.Manifest.Build.BasePathEnv = "PUBLIC_BASE"
	req.Manifest.Build.Command = `sh -c "mkdir -p dist && echo $PUBLIC_BASE > dist/base.txt"`

	_, err := service.Build(context.Background(), req)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "dist", "base.txt"))
	if err != nil {
		t.Fatalf("Failed to read base.txt: %v", err)
	}
	if strings.TrimSpace(string(data)) != "/app/tetris/" {
		t.Errorf("Expected base path /app/tetris/, got %q", strings.TrimSpace(string(data)))
	}
}

func TestInstallCommand_Lockfiles(t *testing.T) {
	dir := t.TempDir()
	if got := installCommand(dir); got != "npm install" {
		t.Errorf("Expected npm install without lockfile, got %q", got)
	}

	writeSourceFile(t, dir, "package-lock.json", "{}")
	if got := installCommand(dir); got != "npm ci" {
		t.Errorf("Expected npm ci with package-lock.json, got %q", got)
	}

	writeSourceFile(t, dir, "yarn.lock", "")
	if got := installCommand(dir); got != "yarn install --frozen-lockfile" {
		t.Errorf("Expected yarn install with yarn.lock, got %q", got)
	}
}

func TestDefaultTimeout_Value(t *testing.T) {
	if DefaultTimeout != 15*time.Minute {
		t.Errorf("Expected DefaultTimeout to be 15m, got %v", DefaultTimeout)
	}
}
