package orchestrator

import (
	"context"
	"errors"

	"github.com/chaoticbest/vibehub/internal/registry"
	"github.com/chaoticbest/vibehub/internal/release"
)

// AppStatus is one row of the hub overview.
type AppStatus struct {
	App registry.App
	// Current is the release number the pointer serves, 0 when the app
	// has never gone live.
	Current int
	// Live reports whether the current pointer exists on disk.
	Live bool
	// Deploying reports whether a deploy lock is held for the app.
	Deploying bool
	URL       string
}

// List returns the status of every registered app, combining registry
// rows with the on-disk pointers and held deploy locks.
func (e *Engine) List(ctx context.Context) ([]AppStatus, error) {
	apps, err := e.store.ListApps(ctx)
	if err != nil {
		return nil, err
	}

	held, err := e.locks.ListLocks()
	if err != nil {
		e.logger.Warn().Err(err).Msg("Failed to list deploy locks")
		held = nil
	}

	statuses := make([]AppStatus, 0, len(apps))
	for _, app := range apps {
		status := AppStatus{
			App: app,
			URL: e.appURL(app.Slug),
		}

		number, _, err := e.releases.Current(app.Slug)
		switch {
		case err == nil:
			status.Current = number
			status.Live = true
		case errors.Is(err, release.ErrNoCurrent):
			if app.CurrentRelease != nil {
				status.Current = *app.CurrentRelease
			}
		default:
			e.logger.Warn().Err(err).Str("slug", app.Slug).Msg("Failed to resolve current pointer")
		}

		if _, ok := held[app.Slug]; ok {
			status.Deploying = true
		}

		statuses = append(statuses, status)
	}

	return statuses, nil
}

// HistoryEntry is one release row of an app's history, annotated with
// whether its artifacts are still on disk.
type HistoryEntry struct {
	Release   registry.Release
	OnDisk    bool
	IsCurrent bool
}

// History returns the app and its release history, newest first. A limit
// of 0 returns everything.
func (e *Engine) History(ctx context.Context, appSlug string, limit int) (*registry.App, []HistoryEntry, error) {
	app, err := e.store.GetApp(ctx, appSlug)
	if err != nil {
		return nil, nil, err
	}

	rows, err := e.store.History(ctx, app.ID, limit)
	if err != nil {
		return nil, nil, err
	}

	onDisk := map[int]bool{}
	if numbers, err := e.releases.List(appSlug); err == nil {
		for _, n := range numbers {
			onDisk[n] = true
		}
	}

	current, _, err := e.releases.Current(appSlug)
	if err != nil {
		current = 0
	}

	entries := make([]HistoryEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, HistoryEntry{
			Release:   row,
			OnDisk:    onDisk[row.Number],
			IsCurrent: row.Number == current,
		})
	}

	return app, entries, nil
}
