package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sdko-org/logrelay/internal/access"
	"github.com/sdko-org/logrelay/internal/audit"
	"github.com/sdko-org/logrelay/internal/config"
	"github.com/sdko-org/logrelay/internal/database"
	"github.com/sdko-org/logrelay/internal/geo"
	"github.com/sdko-org/logrelay/internal/handlers"
	httpserver "github.com/sdko-org/logrelay/internal/http"
	"github.com/sdko-org/logrelay/internal/outbound"
	"github.com/sdko-org/logrelay/internal/ratelimit"
	"github.com/sdko-org/logrelay/internal/retention"
	"github.com/sdko-org/logrelay/internal/storage"
	"github.com/sdko-org/logrelay/internal/telegram"
	"github.com/sdko-org/logrelay/internal/upload"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	logger := config.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgresDB(logger, database.ConfigFrom(cfg))
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	var archive storage.Archive
	if cfg.ArchiveEnabled() {
		s3Archive, err := storage.NewS3Archive(logger, cfg)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize archive")
		}
		archive = s3Archive
	}

	limiter := ratelimit.New(logger, cfg.RateLimit, cfg.RateLimitWindow)
	go limiter.Start(ctx, cfg.RateLimitSweep)

	provider, closeProvider := newGeoProvider(logger, cfg)
	defer closeProvider()
	enricher := geo.NewEnricher(logger, geo.EnricherConfig{
		Provider:  provider,
		Timeout:   cfg.GeoTimeout,
		CacheSize: cfg.GeoCacheSize,
		CacheTTL:  cfg.GeoCacheTTL,
	})
	defer enricher.Close()

	relay := telegram.NewClient(logger, outbound.NewClient(logger, "telegram", cfg.TelegramTimeout), telegram.Config{
		BaseURL: cfg.TelegramAPIURL,
		Token:   cfg.TelegramBotToken,
		Timeout: cfg.TelegramTimeout,
		Rate:    cfg.TelegramRate,
		Burst:   cfg.TelegramBurst,
	})
	if !relay.Configured() {
		logger.Warn("TELEGRAM_BOT_TOKEN is not set, uploads will fail with a configuration error")
	}

	if cfg.RetentionDays > 0 {
		maxAge := time.Duration(cfg.RetentionDays) * 24 * time.Hour
		purger := retention.NewPurger(logger, db, archive, maxAge, cfg.RetentionSchedule)
		go func() {
			if err := purger.Start(ctx); err != nil {
				logger.WithError(err).Error("Retention purger stopped")
			}
		}()
	}

	uploadHandler := handlers.NewUploadHandler(
		logger,
		upload.NewParser(cfg.MaxFileSize),
		relay,
		enricher,
		audit.NewRecorder(logger, db),
		archive,
	)

	router := handlers.NewRouter(logger, handlers.RouteConfig{
		Limiter:     limiter,
		Policy:      access.NewStore(logger, db),
		Upload:      uploadHandler,
		MaxFileSize: cfg.MaxFileSize,
		RateWindow:  cfg.RateLimitWindow.String(),
	})

	server, err := httpserver.New(logger, httpserver.Config{Addr: cfg.ListenAddr, TLSAddr: cfg.TLSListenAddr}, router)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create server")
	}
	runErr := server.Run(ctx)
	uploadHandler.Wait()
	if runErr != nil {
		logger.WithError(runErr).Error("Server failed")
		stop()
		os.Exit(1)
	}
	logger.Info("Server stopped")
}

func newGeoProvider(logger *logrus.Logger, cfg *config.Config) (geo.Provider, func()) {
	if cfg.GeoMMDBPath != "" {
		mmdb, err := geo.OpenMMDB(cfg.GeoMMDBPath)
		if err == nil {
			logger.WithField("path", cfg.GeoMMDBPath).Info("Using offline GeoIP database")
			return mmdb, func() { mmdb.Close() }
		}
		logger.WithError(err).Warn("Failed to open GeoIP database, falling back to HTTP lookups")
	}
	client := outbound.NewClient(logger, "geo", cfg.GeoTimeout)
	return geo.NewHTTPProvider(client, cfg.GeoAPIURL), func() {}
}
