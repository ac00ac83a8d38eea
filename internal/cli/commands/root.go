package commands

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/chaoticbest/vibehub/pkg/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "vibehub",
	Short: "vibehub - deploy static and SPA sites to a shared hub",
	Long: `vibehub deploys static and single-page-application sites from a git
repository to a shared hub host. Each app is published as a numbered,
immutable release and served at a stable public path; earlier releases
stay on disk for inspection and rollback.

Flow:
  git URL -> fetch -> build -> publish release -> repoint current`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		cfg = loaded
		setLogLevel(cfg.Log.Level)
		return nil
	},
}

// Execute runs the root command and exits with a code identifying the
// error kind, so calling scripts can branch on cause.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(ExitCode(err))
	}
}

func init() {
	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(serveCmd)
}

// setLogLevel sets the global log level based on configuration
func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
