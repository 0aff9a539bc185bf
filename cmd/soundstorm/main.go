package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"soundstorm/internal/auth"
	"soundstorm/internal/catalog"
	"soundstorm/internal/config"
	"soundstorm/internal/controller"
	"soundstorm/internal/media"
	"soundstorm/internal/ngrok"
	"soundstorm/internal/server"
	"soundstorm/internal/session"

	"github.com/sirupsen/logrus"
)

func main() {
	configPath := "./config.toml"

	// Initialize basic logger for startup
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	if err := config.LoadDotEnv(".env"); err != nil {
		logger.WithError(err).Warn("Could not load .env file")
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.WithError(err).Fatal("Error loading configuration")
	}
	if err := config.ApplyLogging(logger, cfg.Logging); err != nil {
		logger.WithError(err).Fatal("Invalid logging configuration")
	}

	// Only logging settings are applied live; everything else needs a restart.
	watcher, err := config.Watch(configPath, func(next *config.Config) {
		if err := config.ApplyLogging(logger, next.Logging); err != nil {
			logger.WithError(err).Warn("Ignoring logging change")
			return
		}
		logger.WithField("level", next.Logging.Level).Info("Logging configuration reloaded")
	}, logger.WithField("component", "config"))
	if err != nil {
		logger.WithError(err).Warn("Config hot reload disabled")
	} else {
		defer watcher.Close()
	}

	catalogService := catalog.NewService(
		catalog.NewITunesClient(
			catalog.WithBaseURL(cfg.Catalog.BaseURL),
			catalog.WithCountry(cfg.Catalog.Country),
			catalog.WithHTTPClient(&http.Client{Timeout: cfg.Catalog.Timeout()}),
			catalog.WithRateLimit(cfg.Catalog.RequestsPerSecond),
			catalog.WithLogger(logger),
		),
		catalog.Options{
			Limit:        cfg.Catalog.ResultLimit,
			PopularQuery: cfg.Catalog.PopularQuery,
			CacheTTL:     cfg.Catalog.TTL(),
		},
		logger,
	)
	defer catalogService.Close()

	registry := auth.NewRegistry(cfg.Auth.BcryptCost)

	previewClient := &http.Client{Timeout: cfg.Player.FetchTimeout()}
	mediaLogger := logger.WithField("component", "media")
	sessions := session.NewManager(func() media.Backend {
		return media.NewHeadless(
			media.WithHTTPClient(previewClient),
			media.WithMaxPreviewBytes(cfg.Player.MaxPreviewBytes),
			media.WithLogger(mediaLogger),
		)
	}, session.Options{
		Duration:      cfg.Auth.Duration(),
		CookieName:    cfg.Auth.CookieName,
		SecureCookies: cfg.Auth.SecureCookies,
		Player: controller.Options{
			Volume:           cfg.Player.InitialVolume,
			AutoPlay:         cfg.Player.AutoPlay,
			ProgressInterval: cfg.Player.Interval(),
		},
	}, logger.WithField("component", "sessions"))
	defer sessions.Close()

	tunnel, err := ngrok.NewService(&cfg.Ngrok, logrus.NewEntry(logger))
	if err != nil {
		logger.WithError(err).Warn("Ngrok disabled")
	}

	musicServer := server.NewMusicServer(cfg, server.Deps{
		Catalog:  catalogService,
		Auth:     auth.NewService(registry, logger),
		Registry: registry,
		Sessions: sessions,
		Ngrok:    tunnel,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := musicServer.Start(ctx); err != nil {
		logger.WithError(err).Error("Server stopped")
		return
	}
	logger.Info("Shutdown complete")
}
