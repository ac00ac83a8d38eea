package builder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chaoticbest/vibehub/internal/manifest"
)

// ErrTimedOut is returned when the build step exceeded its time budget.
var ErrTimedOut = errors.New("build timed out")

// BuildError reports a build command that exited non-zero.
type BuildError struct {
	Command  string
	ExitCode int
	Output   string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build command %q failed with exit code %d", e.Command, e.ExitCode)
}

// OutputMissingError reports that the build produced no usable output
// directory.
type OutputMissingError struct {
	Slug string
	// Dir is the directory the manifest declared, empty when detection
	// was used instead.
	Dir string
	// Tried lists the candidate directories detection looked for.
	Tried []string
}

func (e *OutputMissingError) Error() string {
	if e.Dir != "" {
		return fmt.Sprintf("build output missing for %s: %s does not exist or is empty", e.Slug, e.Dir)
	}
	return fmt.Sprintf("build output missing for %s: none of %s were produced", e.Slug, strings.Join(e.Tried, ", "))
}

// Request describes one build of a checked-out source tree.
type Request struct {
	Slug      string
	SourceDir string
	Manifest  *manifest.Manifest
	// BasePath is the public path prefix the app will be served under,
	// exported to the build when the manifest names a base path env var.
	BasePath string
}

// Result describes a completed build.
type Result struct {
	// Builder is the name of the builder that ran.
	Builder string
	// OutputDir is the directory holding the built artifacts.
	OutputDir string
	Duration  time.Duration
}

// Builder turns a source tree into servable artifacts. Detect reports
// whether the builder applies to the request; builders are consulted in
// a fixed order and the first match wins.
type Builder interface {
	Name() string
	Detect(req *Request) bool
	Build(ctx context.Context, req *Request) error
}
