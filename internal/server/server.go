// Package server exposes the catalog, library and playback engine over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"soundstorm/internal/auth"
	"soundstorm/internal/catalog"
	"soundstorm/internal/config"
	"soundstorm/internal/ngrok"
	"soundstorm/internal/session"

	"github.com/sirupsen/logrus"
)

// MusicServer serves the JSON API.
type MusicServer struct {
	config       *config.Config
	catalog      *catalog.Service
	authService  *auth.Service
	registry     *auth.Registry
	sessions     *session.Manager
	ngrokService *ngrok.Service
	logger       *logrus.Logger
	httpServer   *http.Server
	started      time.Time
}

// Deps are the services a MusicServer routes to.
type Deps struct {
	Catalog  *catalog.Service
	Auth     *auth.Service
	Registry *auth.Registry
	Sessions *session.Manager
	Ngrok    *ngrok.Service
}

// NewMusicServer creates a new music server instance
func NewMusicServer(cfg *config.Config, deps Deps, logger *logrus.Logger) *MusicServer {
	return &MusicServer{
		config:       cfg,
		catalog:      deps.Catalog,
		authService:  deps.Auth,
		registry:     deps.Registry,
		sessions:     deps.Sessions,
		ngrokService: deps.Ngrok,
		logger:       logger,
		started:      time.Now(),
	}
}

// Handler returns the routed handler wrapped in the middleware chain.
func (ms *MusicServer) Handler() http.Handler {
	mux := http.NewServeMux()
	ms.setupRoutes(mux)

	var h http.Handler = mux
	h = ms.corsMiddleware(h)
	h = ms.requestLoggingMiddleware(h)
	h = ms.panicRecoveryMiddleware(h)
	return h
}

func (ms *MusicServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", ms.handleHealthCheck)

	mux.HandleFunc("POST /api/auth/register", ms.handleRegister)
	mux.HandleFunc("POST /api/auth/login", ms.handleAuthLogin)
	mux.HandleFunc("POST /api/auth/logout", ms.handleAuthLogout)

	mux.Handle("GET /api/catalog/popular", ms.authed(ms.handlePopular))
	mux.Handle("GET /api/catalog/search", ms.authed(ms.handleSearch))
	mux.Handle("GET /api/catalog/genres", ms.authed(ms.handleGenres))
	mux.Handle("GET /api/catalog/genres/{genre}", ms.authed(ms.handleGenre))
	mux.Handle("GET /api/catalog/artists", ms.authed(ms.handleArtists))
	mux.Handle("GET /api/catalog/artists/{name}", ms.authed(ms.handleArtist))

	mux.Handle("GET /api/library/favorites", ms.authed(ms.handleGetFavorites))
	mux.Handle("POST /api/library/favorites/toggle", ms.authed(ms.handleToggleFavorite))
	mux.Handle("GET /api/library/recent", ms.authed(ms.handleGetRecent))
	mux.Handle("GET /api/library/playlists", ms.authed(ms.handleGetPlaylists))
	mux.Handle("POST /api/library/playlists", ms.authed(ms.handleCreatePlaylist))
	mux.Handle("GET /api/library/playlists/{id}", ms.authed(ms.handleGetPlaylist))
	mux.Handle("PUT /api/library/playlists/{id}", ms.authed(ms.handleRenamePlaylist))
	mux.Handle("DELETE /api/library/playlists/{id}", ms.authed(ms.handleDeletePlaylist))
	mux.Handle("POST /api/library/playlists/{id}/tracks", ms.authed(ms.handleAddTrackToPlaylist))
	mux.Handle("DELETE /api/library/playlists/{id}/tracks/{trackId}", ms.authed(ms.handleRemoveTrackFromPlaylist))

	mux.Handle("GET /api/player/state", ms.authed(ms.handleGetPlayerState))
	mux.Handle("GET /api/player/events", ms.authed(ms.handlePlayerEvents))
	mux.Handle("POST /api/player/load", ms.authed(ms.handleLoad))
	mux.Handle("POST /api/player/play", ms.authed(ms.handlePlay))
	mux.Handle("POST /api/player/pause", ms.authed(ms.handlePause))
	mux.Handle("POST /api/player/next", ms.authed(ms.handleNext))
	mux.Handle("POST /api/player/previous", ms.authed(ms.handlePrevious))
	mux.Handle("POST /api/player/seek", ms.authed(ms.handleSeek))
	mux.Handle("POST /api/player/volume", ms.authed(ms.handleVolume))
	mux.Handle("POST /api/player/mute", ms.authed(ms.handleMute))
	mux.Handle("POST /api/player/sleep", ms.authed(ms.handleSleep))
	mux.Handle("POST /api/player/autoplay", ms.authed(ms.handleAutoPlay))
}

// Start listens until ctx is cancelled, then shuts down gracefully.
func (ms *MusicServer) Start(ctx context.Context) error {
	ms.httpServer = &http.Server{
		Addr:              ms.config.GetAddress(),
		Handler:           ms.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Duration(ms.config.Server.ReadTimeout) * time.Second,
		IdleTimeout:       time.Duration(ms.config.Server.IdleTimeout) * time.Second,
	}

	localAddress := fmt.Sprintf("http://%s", ms.config.GetAddress())
	ms.logger.WithField("address", localAddress).Info("Soundstorm server starting")

	if ms.ngrokService != nil {
		if err := ms.ngrokService.StartTunnel(ctx, localAddress); err != nil {
			ms.logger.WithError(err).Warn("Could not start ngrok tunnel")
		} else {
			defer ms.ngrokService.Stop()
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- ms.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	ms.logger.Info("Shutting down music server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ms.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	ms.logger.Info("Music server shutdown complete")
	return nil
}
