package commands

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/chaoticbest/vibehub/internal/serve"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the hub's current releases over HTTP",
	Long: `Serve runs a preview webserver for the hub: every app's current release
under /app/<slug>/ and the app index at /api/apps. The current pointer
is resolved per request, so deploys and rollbacks take effect without a
restart. Production hubs put a reverse proxy in front of the static
tree instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		server := serve.NewServer(rt.store, rt.releases, cfg.Hub.Domain, log.Logger)
		httpServer := &http.Server{
			Addr:         cfg.Serve.Addr,
			Handler:      server.Handler(),
			ReadTimeout:  cfg.Serve.ReadTimeout,
			WriteTimeout: cfg.Serve.WriteTimeout,
		}

		errCh := make(chan error, 1)
		go func() {
			log.Info().
				Str("addr", cfg.Serve.Addr).
				Str("root", cfg.Hub.Root).
				Msg("Starting hub server")
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case err := <-errCh:
			return err
		case <-quit:
		}

		log.Info().Msg("Shutting down hub server...")

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown failed")
		}

		log.Info().Msg("Hub server stopped")
		return nil
	},
}
