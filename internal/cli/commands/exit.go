package commands

import (
	"errors"

	"github.com/chaoticbest/vibehub/internal/builder"
	"github.com/chaoticbest/vibehub/internal/lock"
	"github.com/chaoticbest/vibehub/internal/registry"
	"github.com/chaoticbest/vibehub/internal/release"
	"github.com/chaoticbest/vibehub/internal/source"
)

// Exit codes by error kind, so calling scripts can branch on cause.
const (
	ExitOK                     = 0
	ExitFailure                = 1
	ExitSourceFetchFailed      = 10
	ExitRefNotFound            = 11
	ExitBuildFailed            = 12
	ExitBuildTimedOut          = 13
	ExitBuildOutputMissing     = 14
	ExitDeployInProgress       = 15
	ExitReleaseArtifactMissing = 16
	ExitStorageUnavailable     = 17
)

// ExitCode maps an error to the process exit code for its kind.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var (
		fetchErr       *source.FetchError
		buildErr       *builder.BuildError
		outputErr      *builder.OutputMissingError
		inProgressErr  *lock.InProgressError
		artifactErr    *release.ArtifactMissingError
		unavailableErr *registry.UnavailableError
	)

	switch {
	case errors.Is(err, source.ErrRefNotFound):
		return ExitRefNotFound
	case errors.As(err, &fetchErr):
		return ExitSourceFetchFailed
	case errors.Is(err, builder.ErrTimedOut):
		return ExitBuildTimedOut
	case errors.As(err, &buildErr):
		return ExitBuildFailed
	case errors.As(err, &outputErr):
		return ExitBuildOutputMissing
	case errors.As(err, &inProgressErr):
		return ExitDeployInProgress
	case errors.As(err, &artifactErr):
		return ExitReleaseArtifactMissing
	case errors.As(err, &unavailableErr):
		return ExitStorageUnavailable
	default:
		return ExitFailure
	}
}
