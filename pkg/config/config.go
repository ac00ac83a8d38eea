package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the hub.
type Config struct {
	Hub      HubConfig
	Registry RegistryConfig
	Fetch    FetchConfig
	Lock     LockConfig
	Build    BuildConfig
	Release  ReleaseConfig
	Serve    ServeConfig
	Log      LogConfig
}

// HubConfig locates the hub on disk and on the web.
type HubConfig struct {
	// Root is the hub filesystem root (registry, releases, static,
	// scratch, locks all live under it). The VIBES_ROOT environment
	// variable overrides it.
	Root string
	// Domain is used to construct public app and blog links.
	Domain string
}

// RegistryConfig selects the registry backend.
type RegistryConfig struct {
	// Driver is "sqlite" (default) or "postgres".
	Driver string
	// DSN overrides the connection string. Empty means
	// <hub.root>/registry/hub.db for sqlite; postgres requires one.
	DSN string
}

// FetchConfig bounds source checkouts.
type FetchConfig struct {
	Timeout time.Duration
	// Depth limits clone history; 0 means full clone.
	Depth int
	// Retries is the number of additional attempts on transport failure.
	Retries int
}

// LockConfig tunes per-app deploy lock acquisition.
type LockConfig struct {
	// Timeout is how long an acquire blocks before giving up.
	Timeout time.Duration
	// StaleAfter is the age past which a held lock may be reclaimed.
	StaleAfter time.Duration
	// RetryInterval is the pause between acquisition attempts.
	RetryInterval time.Duration
}

// BuildConfig bounds the build step.
type BuildConfig struct {
	Timeout time.Duration
	// OutputCandidates are tried in order when the manifest does not name
	// an output directory.
	OutputCandidates []string
}

// ReleaseConfig tunes release retention.
type ReleaseConfig struct {
	// Keep is how many releases prune retains by default.
	Keep int
}

// ServeConfig configures the hub preview server.
type ServeConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// LogConfig configures logging.
type LogConfig struct {
	Level string
}

// Load loads configuration from an optional config file and environment
// variables, falling back to defaults for everything else.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/vibehub")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file; defaults and env vars only.
	}

	viper.AutomaticEnv()

	config := &Config{
		Hub: HubConfig{
			Root:   viper.GetString("hub.root"),
			Domain: viper.GetString("hub.domain"),
		},
		Registry: RegistryConfig{
			Driver: viper.GetString("registry.driver"),
			DSN:    viper.GetString("registry.dsn"),
		},
		Fetch: FetchConfig{
			Timeout: viper.GetDuration("fetch.timeout"),
			Depth:   viper.GetInt("fetch.depth"),
			Retries: viper.GetInt("fetch.retries"),
		},
		Lock: LockConfig{
			Timeout:       viper.GetDuration("lock.timeout"),
			StaleAfter:    viper.GetDuration("lock.stale_after"),
			RetryInterval: viper.GetDuration("lock.retry_interval"),
		},
		Build: BuildConfig{
			Timeout:          viper.GetDuration("build.timeout"),
			OutputCandidates: viper.GetStringSlice("build.output_candidates"),
		},
		Release: ReleaseConfig{
			Keep: viper.GetInt("release.keep"),
		},
		Serve: ServeConfig{
			Addr:         viper.GetString("serve.addr"),
			ReadTimeout:  viper.GetDuration("serve.read_timeout"),
			WriteTimeout: viper.GetDuration("serve.write_timeout"),
		},
		Log: LogConfig{
			Level: viper.GetString("log.level"),
		},
	}

	// VIBES_ROOT always wins; it is the contract operators rely on.
	if root := os.Getenv("VIBES_ROOT"); root != "" {
		config.Hub.Root = root
	}

	return config, nil
}

// setDefaults sets default configuration values.
func setDefaults() {
	viper.SetDefault("hub.root", "/srv/vibes")
	viper.SetDefault("hub.domain", "vibes.chaoticbest.com")

	viper.SetDefault("registry.driver", "sqlite")
	viper.SetDefault("registry.dsn", "")

	viper.SetDefault("fetch.timeout", 5*time.Minute)
	viper.SetDefault("fetch.depth", 0)
	viper.SetDefault("fetch.retries", 1)

	viper.SetDefault("lock.timeout", 10*time.Second)
	viper.SetDefault("lock.stale_after", time.Hour)
	viper.SetDefault("lock.retry_interval", 500*time.Millisecond)

	viper.SetDefault("build.timeout", 15*time.Minute)
	viper.SetDefault("build.output_candidates", []string{"dist", "build", "public"})

	viper.SetDefault("release.keep", 5)

	viper.SetDefault("serve.addr", ":8080")
	viper.SetDefault("serve.read_timeout", 10*time.Second)
	viper.SetDefault("serve.write_timeout", 30*time.Second)

	viper.SetDefault("log.level", "info")
}
