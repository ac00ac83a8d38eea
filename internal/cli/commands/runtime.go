package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/chaoticbest/vibehub/internal/builder"
	"github.com/chaoticbest/vibehub/internal/hub"
	"github.com/chaoticbest/vibehub/internal/lock"
	"github.com/chaoticbest/vibehub/internal/orchestrator"
	"github.com/chaoticbest/vibehub/internal/registry"
	"github.com/chaoticbest/vibehub/internal/release"
	"github.com/chaoticbest/vibehub/internal/source"
	"github.com/chaoticbest/vibehub/pkg/database"
)

// runtime wires the hub components a command needs. Commands build one,
// use it, and Close it.
type runtime struct {
	paths    hub.Paths
	db       *gorm.DB
	store    *registry.Store
	locks    *lock.Manager
	releases *release.Manager
	engine   *orchestrator.Engine
}

func newRuntime() (*runtime, error) {
	paths := hub.NewPaths(cfg.Hub.Root)
	if err := paths.EnsureLayout(); err != nil {
		return nil, err
	}

	dsn := cfg.Registry.DSN
	if dsn == "" {
		if cfg.Registry.Driver == "postgres" {
			return nil, fmt.Errorf("registry.dsn is required for the postgres driver")
		}
		dsn = paths.RegistryDB()
	}

	db, err := database.New(database.Config{
		Driver: cfg.Registry.Driver,
		DSN:    dsn,
	})
	if err != nil {
		return nil, err
	}

	if err := database.Migrate(db, &registry.App{}, &registry.Release{}); err != nil {
		database.Close(db)
		return nil, err
	}

	logger := log.Logger
	store := registry.NewStore(db)
	locks := lock.NewManager(paths.LocksDir(), cfg.Lock.StaleAfter, cfg.Lock.RetryInterval, logger)
	fetcher := source.NewFetcher(cfg.Fetch.Timeout, cfg.Fetch.Depth, cfg.Fetch.Retries, logger)
	builds := builder.NewService(cfg.Build.Timeout, cfg.Build.OutputCandidates, logger)
	releases := release.NewManager(paths, logger)

	engine := orchestrator.NewEngine(paths, store, locks, fetcher, builds, releases, orchestrator.Config{
		Domain:      cfg.Hub.Domain,
		LockTimeout: cfg.Lock.Timeout,
		Keep:        cfg.Release.Keep,
	}, logger)

	return &runtime{
		paths:    paths,
		db:       db,
		store:    store,
		locks:    locks,
		releases: releases,
		engine:   engine,
	}, nil
}

func (rt *runtime) Close() {
	if err := database.Close(rt.db); err != nil {
		log.Error().Err(err).Msg("Failed to close database")
	}
}
