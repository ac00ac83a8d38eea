package builder

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
)

// NPMBuilder builds node projects that declare a build script in
// package.json but carry no explicit commands in their manifest.
type NPMBuilder struct {
	runner *Runner
}

// NewNPMBuilder creates a builder for package.json projects.
func NewNPMBuilder(runner *Runner) *NPMBuilder {
	return &NPMBuilder{runner: runner}
}

func (b *NPMBuilder) Name() string {
	return "npm"
}

func (b *NPMBuilder) Detect(req *Request) bool {
	return hasBuildScript(req.SourceDir)
}

func (b *NPMBuilder) Build(ctx context.Context, req *Request) error {
	env := buildEnv(req)

	if _, err := b.runner.Run(ctx, req.SourceDir, installCommand(req.SourceDir), env); err != nil {
		return err
	}

	_, err := b.runner.Run(ctx, req.SourceDir, "npm run build", env)
	return err
}

// installCommand picks the install command from the lockfile present.
func installCommand(dir string) string {
	if fileExists(filepath.Join(dir, "yarn.lock")) {
		return "yarn install --frozen-lockfile"
	}
	if fileExists(filepath.Join(dir, "package-lock.json")) {
		return "npm ci"
	}
	return "npm install"
}

type packageJSON struct {
	Scripts map[string]string `json:"scripts"`
}

func hasBuildScript(dir string) bool {
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return false
	}

	var pkg packageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return false
	}
	return pkg.Scripts["build"] != ""
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
