package builder

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTimeout is the default maximum time allowed for a build.
const DefaultTimeout = 15 * time.Minute

// Service selects a builder for each app, runs it under the build
// timeout and resolves where the servable output landed.
type Service struct {
	builders   []Builder
	timeout    time.Duration
	candidates []string
	logger     zerolog.Logger
}

// NewService creates a build service. Builders are consulted in order:
// manifest commands win over package.json detection, and anything else
// is served as-is.
func NewService(timeout time.Duration, outputCandidates []string, logger zerolog.Logger) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if len(outputCandidates) == 0 {
		outputCandidates = []string{"dist", "build", "public"}
	}

	runner := NewRunner(logger)

	return &Service{
		builders: []Builder{
			NewCommandBuilder(runner),
			NewNPMBuilder(runner),
			NewStaticBuilder(),
		},
		timeout:    timeout,
		candidates: outputCandidates,
		logger:     logger.With().Str("component", "builder").Logger(),
	}
}

// Build runs the first matching builder and returns the output location.
func (s *Service) Build(ctx context.Context, req *Request) (*Result, error) {
	builder := s.selectBuilder(req)

	s.logger.Info().
		Str("slug", req.Slug).
		Str("builder", builder.Name()).
		Dur("timeout", s.timeout).
		Msg("Building app")

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	if err := builder.Build(ctx, req); err != nil {
		return nil, err
	}

	outputDir, err := s.resolveOutput(req, builder.Name() != "static")
	if err != nil {
		return nil, err
	}

	result := &Result{
		Builder:   builder.Name(),
		OutputDir: outputDir,
		Duration:  time.Since(start),
	}

	s.logger.Info().
		Str("slug", req.Slug).
		Str("output", outputDir).
		Dur("duration", result.Duration).
		Msg("Build completed")

	return result, nil
}

func (s *Service) selectBuilder(req *Request) Builder {
	for _, b := range s.builders {
		if b.Detect(req) {
			return b
		}
	}
	// StaticBuilder detects everything, so this is unreachable.
	return s.builders[len(s.builders)-1]
}

// resolveOutput finds the directory to publish. A declared output dir
// must exist and be non-empty. Without one, builds are probed for the
// usual bundler output dirs, falling back to the source root when the
// build wrote into the tree in place.
func (s *Service) resolveOutput(req *Request, ranBuild bool) (string, error) {
	if declared := req.Manifest.Build.OutputDir; declared != "" {
		dir := filepath.Join(req.SourceDir, declared)
		if isNonEmptyDir(dir) {
			return dir, nil
		}
		return "", &OutputMissingError{Slug: req.Slug, Dir: declared}
	}

	if !ranBuild {
		return req.SourceDir, nil
	}

	for _, candidate := range s.candidates {
		dir := filepath.Join(req.SourceDir, candidate)
		if isNonEmptyDir(dir) {
			return dir, nil
		}
	}

	if fileExists(filepath.Join(req.SourceDir, "index.html")) {
		return req.SourceDir, nil
	}

	return "", &OutputMissingError{Slug: req.Slug, Tried: s.candidates}
}

func isNonEmptyDir(dir string) bool {
	entries, err := os.ReadDir(dir)
	return err == nil && len(entries) > 0
}
