package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chaoticbest/vibehub/internal/builder"
	"github.com/chaoticbest/vibehub/internal/hub"
	"github.com/chaoticbest/vibehub/internal/lock"
	"github.com/chaoticbest/vibehub/internal/manifest"
	"github.com/chaoticbest/vibehub/internal/registry"
	"github.com/chaoticbest/vibehub/internal/release"
	"github.com/chaoticbest/vibehub/internal/slug"
	"github.com/chaoticbest/vibehub/internal/source"
)

// Stage identifies where in the pipeline a deploy failed.
type Stage string

const (
	StageLock    Stage = "lock"
	StageFetch   Stage = "fetch"
	StageBuild   Stage = "build"
	StagePublish Stage = "publish"
	StageRecord  Stage = "record"
)

// DeployError wraps a pipeline failure with the stage it happened in.
type DeployError struct {
	Stage Stage
	Err   error
}

func (e *DeployError) Error() string {
	return fmt.Sprintf("deploy failed during %s: %v", e.Stage, e.Err)
}

func (e *DeployError) Unwrap() error {
	return e.Err
}

// Config tunes the engine.
type Config struct {
	// Domain is used to construct public app URLs.
	Domain string
	// LockTimeout bounds how long a deploy waits for the app's lock.
	LockTimeout time.Duration
	// Keep is how many releases to retain when pruning after a deploy.
	Keep int
}

// Engine coordinates the deploy pipeline: lock, fetch, build, publish,
// record. One engine serves all apps on the hub.
type Engine struct {
	paths    hub.Paths
	store    *registry.Store
	locks    *lock.Manager
	fetcher  *source.Fetcher
	builds   *builder.Service
	releases *release.Manager
	config   Config
	logger   zerolog.Logger
}

// NewEngine creates an orchestrator engine.
func NewEngine(
	paths hub.Paths,
	store *registry.Store,
	locks *lock.Manager,
	fetcher *source.Fetcher,
	builds *builder.Service,
	releases *release.Manager,
	config Config,
	logger zerolog.Logger,
) *Engine {
	return &Engine{
		paths:    paths,
		store:    store,
		locks:    locks,
		fetcher:  fetcher,
		builds:   builds,
		releases: releases,
		config:   config,
		logger:   logger.With().Str("component", "orchestrator").Logger(),
	}
}

// DeployRequest describes one deploy.
type DeployRequest struct {
	RepoURL string
	// Ref is the branch, tag or commit to deploy; empty means the
	// remote HEAD.
	Ref string
	// Slug overrides the slug derived from the repo URL.
	Slug string
}

// DeployResult describes a completed deploy.
type DeployResult struct {
	App      *registry.App
	Release  *registry.Release
	Builder  string
	URL      string
	Duration time.Duration
}

// Deploy runs the full pipeline for one app. The app's deploy lock is
// held for the duration; failures after a release number was allocated
// are recorded in the registry before the lock is released.
func (e *Engine) Deploy(ctx context.Context, req *DeployRequest) (*DeployResult, error) {
	start := time.Now()

	repoURL := slug.NormalizeRepoURL(req.RepoURL)
	appSlug := req.Slug
	if appSlug == "" {
		appSlug = slug.FromRepoURL(repoURL)
	}

	logger := e.logger.With().Str("slug", appSlug).Str("repo", repoURL).Logger()
	logger.Info().Str("ref", req.Ref).Msg("Starting deploy")

	handle, err := e.locks.Acquire(ctx, appSlug, e.config.LockTimeout)
	if err != nil {
		return nil, &DeployError{Stage: StageLock, Err: err}
	}
	defer func() {
		if err := handle.Release(); err != nil {
			logger.Error().Err(err).Msg("Failed to release deploy lock")
		}
	}()

	// Fetch before touching the registry: a release number is only
	// allocated once the source resolved to a commit.
	scratch := filepath.Join(e.paths.ScratchDir(), appSlug+"-"+uuid.New().String())
	workspace, err := e.fetcher.Fetch(ctx, repoURL, req.Ref, scratch)
	if err != nil {
		return nil, &DeployError{Stage: StageFetch, Err: err}
	}
	defer func() {
		if err := workspace.Remove(); err != nil {
			logger.Warn().Err(err).Msg("Failed to clean up workspace")
		}
	}()

	m, err := manifest.Load(workspace.Root)
	if err != nil {
		return nil, &DeployError{Stage: StageBuild, Err: err}
	}

	app, err := e.store.CreateOrGetApp(ctx, appSlug, repoURL, m.DisplayName(appSlug), string(m.Type), m.MetaJSON())
	if err != nil {
		return nil, &DeployError{Stage: StageRecord, Err: err}
	}

	rel, err := e.store.RecordReleaseStart(ctx, app.ID, workspace.Commit, req.Ref)
	if err != nil {
		return nil, &DeployError{Stage: StageRecord, Err: err}
	}

	logger.Info().
		Int("release", rel.Number).
		Str("commit", shortCommit(workspace.Commit)).
		Msg("Release allocated")

	result, err := e.builds.Build(ctx, &builder.Request{
		Slug:      appSlug,
		SourceDir: workspace.Root,
		Manifest:  m,
		BasePath:  e.basePath(appSlug),
	})
	if err != nil {
		e.recordFailure(rel, err)
		return nil, &DeployError{Stage: StageBuild, Err: err}
	}

	if _, err := e.releases.Publish(appSlug, rel.Number, result.OutputDir); err != nil {
		e.recordFailure(rel, err)
		return nil, &DeployError{Stage: StagePublish, Err: err}
	}

	if err := e.releases.SetCurrent(appSlug, rel.Number); err != nil {
		e.recordFailure(rel, err)
		return nil, &DeployError{Stage: StagePublish, Err: err}
	}

	// The release is live on disk from this point. Its outcome is still
	// written on registry failures so the row never stays pending while
	// the app serves the new release.
	if err := e.store.SetCurrent(ctx, app.ID, rel.Number); err != nil {
		logger.Error().Err(err).Int("release", rel.Number).
			Msg("Release is live on disk but the registry pointer update failed")
		e.recordOutcome(rel, registry.StatusSucceeded, "")
		return nil, &DeployError{Stage: StageRecord, Err: err}
	}

	if err := e.store.RecordReleaseOutcome(ctx, rel.ID, registry.StatusSucceeded, ""); err != nil {
		e.recordOutcome(rel, registry.StatusSucceeded, "")
		return nil, &DeployError{Stage: StageRecord, Err: err}
	}

	// Retention is best effort; a failed prune never fails the deploy.
	if e.config.Keep > 0 {
		if _, err := e.releases.Prune(appSlug, e.config.Keep, rel.Number); err != nil {
			logger.Warn().Err(err).Msg("Failed to prune old releases")
		}
	}

	rel.Status = registry.StatusSucceeded
	app.CurrentRelease = &rel.Number

	logger.Info().
		Int("release", rel.Number).
		Str("builder", result.Builder).
		Dur("duration", time.Since(start)).
		Msg("Deploy completed")

	return &DeployResult{
		App:      app,
		Release:  rel,
		Builder:  result.Builder,
		URL:      e.appURL(appSlug),
		Duration: time.Since(start),
	}, nil
}

// recordFailure marks the release failed.
func (e *Engine) recordFailure(rel *registry.Release, cause error) {
	e.recordOutcome(rel, registry.StatusFailed, errorSummary(cause))
}

// recordOutcome writes the release's terminal status with a fresh
// context, so the outcome lands even when the deploy context is gone.
func (e *Engine) recordOutcome(rel *registry.Release, status, summary string) {
	if err := e.store.RecordReleaseOutcome(context.Background(), rel.ID, status, summary); err != nil {
		e.logger.Error().
			Err(err).
			Str("release_id", rel.ID.String()).
			Str("status", status).
			Msg("Failed to record release outcome")
	}
}

func (e *Engine) appURL(appSlug string) string {
	return fmt.Sprintf("https://%s/app/%s/", e.config.Domain, appSlug)
}

func (e *Engine) basePath(appSlug string) string {
	return "/app/" + appSlug + "/"
}

const summaryLimit = 500

// errorSummary condenses a failure into a line suitable for the release
// history. Build failures keep the tail of the command output.
func errorSummary(err error) string {
	var buildErr *builder.BuildError
	if errors.As(err, &buildErr) && buildErr.Output != "" {
		return truncate(buildErr.Error()+": "+tailLines(buildErr.Output, 10), summaryLimit)
	}
	return truncate(err.Error(), summaryLimit)
}

func tailLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}

func shortCommit(commit string) string {
	if len(commit) > 8 {
		return commit[:8]
	}
	return commit
}
