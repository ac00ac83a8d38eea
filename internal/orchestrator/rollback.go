package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/chaoticbest/vibehub/internal/registry"
	"github.com/chaoticbest/vibehub/internal/release"
)

// RollbackResult describes a completed rollback.
type RollbackResult struct {
	Slug string
	// From is the release that was current before, 0 when none was.
	From int
	To   int
	URL  string
}

// Rollback re-points an app's current pointer at an earlier release. The
// target must be a succeeded release whose artifacts are still on disk.
// No new release number is allocated; history stays as it is.
func (e *Engine) Rollback(ctx context.Context, appSlug string, number int) (*RollbackResult, error) {
	app, err := e.store.GetApp(ctx, appSlug)
	if err != nil {
		return nil, err
	}

	handle, err := e.locks.Acquire(ctx, appSlug, e.config.LockTimeout)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := handle.Release(); err != nil {
			e.logger.Error().Err(err).Str("slug", appSlug).Msg("Failed to release deploy lock")
		}
	}()

	rel, err := e.store.GetRelease(ctx, app.ID, number)
	if err != nil {
		return nil, err
	}
	if rel.Status != registry.StatusSucceeded {
		return nil, fmt.Errorf("release %d of %s is %s, not succeeded", number, appSlug, rel.Status)
	}

	from, _, err := e.releases.Current(appSlug)
	if err != nil {
		if !errors.Is(err, release.ErrNoCurrent) {
			return nil, err
		}
		from = 0
	}

	if err := e.releases.SetCurrent(appSlug, number); err != nil {
		return nil, err
	}

	if err := e.store.SetCurrent(ctx, app.ID, number); err != nil {
		return nil, err
	}

	e.logger.Info().
		Str("slug", appSlug).
		Int("from", from).
		Int("to", number).
		Msg("Rolled back")

	return &RollbackResult{
		Slug: appSlug,
		From: from,
		To:   number,
		URL:  e.appURL(appSlug),
	}, nil
}

// Prune removes old release artifacts for an app, keeping the newest
// keep releases and whatever is current. History rows are never removed.
func (e *Engine) Prune(ctx context.Context, appSlug string, keep int) ([]int, error) {
	if _, err := e.store.GetApp(ctx, appSlug); err != nil {
		return nil, err
	}

	handle, err := e.locks.Acquire(ctx, appSlug, e.config.LockTimeout)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := handle.Release(); err != nil {
			e.logger.Error().Err(err).Str("slug", appSlug).Msg("Failed to release deploy lock")
		}
	}()

	current, _, err := e.releases.Current(appSlug)
	if err != nil {
		if !errors.Is(err, release.ErrNoCurrent) {
			return nil, err
		}
		current = 0
	}

	return e.releases.Prune(appSlug, keep, current)
}
