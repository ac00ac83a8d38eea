package commands

import (
	"errors"
	"fmt"
	"testing"

	"github.com/chaoticbest/vibehub/internal/builder"
	"github.com/chaoticbest/vibehub/internal/lock"
	"github.com/chaoticbest/vibehub/internal/orchestrator"
	"github.com/chaoticbest/vibehub/internal/registry"
	"github.com/chaoticbest/vibehub/internal/release"
	"github.com/chaoticbest/vibehub/internal/source"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"unclassified", errors.New("boom"), ExitFailure},
		{"fetch failed", &source.FetchError{RepoURL: "x", Err: errors.New("dial")}, ExitSourceFetchFailed},
		{"ref not found", fmt.Errorf("%w: v9", source.ErrRefNotFound), ExitRefNotFound},
		{"build failed", &builder.BuildError{Command: "npm run build", ExitCode: 2}, ExitBuildFailed},
		{"build timed out", fmt.Errorf("%w: npm run build", builder.ErrTimedOut), ExitBuildTimedOut},
		{"output missing", &builder.OutputMissingError{Slug: "tetris", Dir: "dist"}, ExitBuildOutputMissing},
		{"deploy in progress", &lock.InProgressError{Slug: "tetris"}, ExitDeployInProgress},
		{"artifact missing", &release.ArtifactMissingError{Slug: "tetris", Number: 1}, ExitReleaseArtifactMissing},
		{"storage unavailable", &registry.UnavailableError{Op: "get app", Err: errors.New("locked")}, ExitStorageUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

// Errors arrive wrapped in the orchestrator's stage error; the code
// still reflects the underlying kind.
func TestExitCodeUnwrapsStage(t *testing.T) {
	err := &orchestrator.DeployError{
		Stage: orchestrator.StageBuild,
		Err:   &builder.BuildError{Command: "npm run build", ExitCode: 1},
	}
	if got := ExitCode(err); got != ExitBuildFailed {
		t.Errorf("ExitCode = %d, want %d", got, ExitBuildFailed)
	}
}
