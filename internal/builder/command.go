package builder

import (
	"context"
)

// CommandBuilder runs the install and build commands declared in the
// app's manifest.
type CommandBuilder struct {
	runner *Runner
}

// NewCommandBuilder creates a builder driven by manifest commands.
func NewCommandBuilder(runner *Runner) *CommandBuilder {
	return &CommandBuilder{runner: runner}
}

func (b *CommandBuilder) Name() string {
	return "command"
}

func (b *CommandBuilder) Detect(req *Request) bool {
	return req.Manifest.HasBuildCommand()
}

func (b *CommandBuilder) Build(ctx context.Context, req *Request) error {
	env := buildEnv(req)

	if install := req.Manifest.Build.Install; install != "" {
		if _, err := b.runner.Run(ctx, req.SourceDir, install, env); err != nil {
			return err
		}
	}

	_, err := b.runner.Run(ctx, req.SourceDir, req.Manifest.Build.Command, env)
	return err
}

// buildEnv returns the extra environment for build commands. When the
// manifest names a base path env var, the app's public path prefix is
// exported under that name so bundlers can rewrite asset URLs.
func buildEnv(req *Request) []string {
	var env []string
	if name := req.Manifest.Build.BasePathEnv; name != "" {
		env = append(env, name+"="+req.BasePath)
	}
	return env
}
