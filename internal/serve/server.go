package serve

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/chaoticbest/vibehub/internal/manifest"
	"github.com/chaoticbest/vibehub/internal/registry"
	"github.com/chaoticbest/vibehub/internal/release"
)

// Server is the hub preview server. It serves every app's current
// release under /app/<slug>/ and exposes the app index as JSON. The
// current pointer is resolved per request, so a deploy that swaps a
// release is picked up immediately without restarts or notifications.
type Server struct {
	store    *registry.Store
	releases *release.Manager
	domain   string
	logger   zerolog.Logger
}

// NewServer creates a preview server for the hub.
func NewServer(store *registry.Store, releases *release.Manager, domain string, logger zerolog.Logger) *Server {
	return &Server{
		store:    store,
		releases: releases,
		domain:   domain,
		logger:   logger.With().Str("component", "serve").Logger(),
	}
}

// Handler returns the HTTP handler for the hub.
func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RealIP)
	router.Use(s.requestLogger)
	router.Use(middleware.Recoverer)

	router.Get("/health", s.health)

	// The index is consumed cross-origin by hub frontends.
	router.Group(func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
		r.Get("/api/apps", s.listApps)
	})

	router.Get("/app/{slug}", s.redirectToApp)
	router.Get("/app/{slug}/*", s.serveApp)

	return router
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"}, s.logger)
}

// appEntry is one row of the public app index.
type appEntry struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	Repo      string          `json:"repo"`
	Release   *int            `json:"release"`
	Links     appLinks        `json:"links"`
	Meta      json.RawMessage `json:"meta,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type appLinks struct {
	App    string `json:"app"`
	Blog   string `json:"blog"`
	GitHub string `json:"github"`
}

func (s *Server) listApps(w http.ResponseWriter, r *http.Request) {
	apps, err := s.store.ListApps(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list apps")
		http.Error(w, "registry unavailable", http.StatusServiceUnavailable)
		return
	}

	entries := make([]appEntry, 0, len(apps))
	for _, app := range apps {
		entry := appEntry{
			ID:      app.Slug,
			Name:    app.Name,
			Type:    app.Type,
			Repo:    app.RepoURL,
			Release: app.CurrentRelease,
			Links: appLinks{
				App:    "https://" + s.domain + "/app/" + app.Slug + "/",
				Blog:   "https://" + s.domain + "/blog/" + app.Slug,
				GitHub: app.RepoURL,
			},
			CreatedAt: app.CreatedAt,
			UpdatedAt: app.UpdatedAt,
		}
		if app.Meta != "" {
			entry.Meta = json.RawMessage(app.Meta)
		}
		entries = append(entries, entry)
	}

	respondJSON(w, http.StatusOK, entries, s.logger)
}

func (s *Server) redirectToApp(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, r.URL.Path+"/", http.StatusMovedPermanently)
}

func (s *Server) serveApp(w http.ResponseWriter, r *http.Request) {
	appSlug := chi.URLParam(r, "slug")

	_, dir, err := s.releases.Current(appSlug)
	if err != nil {
		if errors.Is(err, release.ErrNoCurrent) {
			http.NotFound(w, r)
			return
		}
		s.logger.Error().Err(err).Str("slug", appSlug).Msg("Failed to resolve current release")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	fs := http.FileServer(appFS{root: http.Dir(dir), spa: s.isSPA(r.Context(), appSlug)})
	http.StripPrefix("/app/"+appSlug, fs).ServeHTTP(w, r)
}

func (s *Server) isSPA(ctx context.Context, appSlug string) bool {
	app, err := s.store.GetApp(ctx, appSlug)
	if err != nil {
		return false
	}
	return app.Type == string(manifest.TypeSPA)
}

// appFS serves a release directory. For SPA apps, paths with no file
// behind them fall back to index.html so client-side routes deep-link.
// Directories without an index.html read as not found, so the file
// server never renders a listing of a release's contents.
type appFS struct {
	root http.FileSystem
	spa  bool
}

func (f appFS) Open(name string) (http.File, error) {
	file, err := f.root.Open(name)
	if err != nil {
		if f.spa && os.IsNotExist(err) {
			return f.root.Open("/index.html")
		}
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info.IsDir() {
		index, indexErr := f.root.Open(path.Join(name, "index.html"))
		if indexErr != nil {
			file.Close()
			if f.spa {
				return f.root.Open("/index.html")
			}
			return nil, fs.ErrNotExist
		}
		index.Close()
	}
	return file, nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("remote_addr", r.RemoteAddr).
			Msg("HTTP request")
	})
}

func respondJSON(w http.ResponseWriter, statusCode int, payload interface{}, logger zerolog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
