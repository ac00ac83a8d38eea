package builder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/google/shlex"
	"github.com/rs/zerolog"
)

// Runner executes build commands in a source tree.
type Runner struct {
	logger zerolog.Logger
}

// NewRunner creates a command runner.
func NewRunner(logger zerolog.Logger) *Runner {
	return &Runner{logger: logger.With().Str("component", "builder").Logger()}
}

// Run executes command in dir with extraEnv appended to the environment.
// The command string is split shell-style but not run through a shell.
// It returns the combined output; failures carry the output for the
// release record.
func (r *Runner) Run(ctx context.Context, dir, command string, extraEnv []string) (string, error) {
	parts, err := shlex.Split(command)
	if err != nil {
		return "", fmt.Errorf("failed to parse build command %q: %w", command, err)
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("empty build command")
	}

	r.logger.Debug().Str("dir", dir).Str("command", command).Msg("Running build command")

	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), extraEnv...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return string(output), fmt.Errorf("%w: %s", ErrTimedOut, command)
		}
		if ctx.Err() != nil {
			return string(output), ctx.Err()
		}
		return string(output), &BuildError{
			Command:  command,
			ExitCode: exitCode(err),
			Output:   string(output),
		}
	}

	return string(output), nil
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
