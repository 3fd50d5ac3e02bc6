package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/medtriage/triage/internal/config"
	"github.com/medtriage/triage/internal/domain/patient"
	"github.com/medtriage/triage/internal/domain/triage"
	"github.com/medtriage/triage/internal/platform/apperror"
	"github.com/medtriage/triage/internal/platform/auth"
	"github.com/medtriage/triage/internal/platform/blobstore"
	"github.com/medtriage/triage/internal/platform/db"
	"github.com/medtriage/triage/internal/platform/events"
	"github.com/medtriage/triage/internal/platform/middleware"
	"github.com/medtriage/triage/internal/platform/validation"
)

const maxBodySize = "1M"

// newEcho builds the router with the global middleware chain. Domain routes
// are registered by the caller on the returned /api/v1 group.
func newEcho(cfg *config.Config, logger zerolog.Logger) (*echo.Echo, *echo.Group) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validation.New()
	e.HTTPErrorHandler = apperror.HTTPErrorHandler(logger)

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.BodyLimit(maxBodySize))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	api := e.Group("/api/v1")
	if cfg.IsDev() && cfg.AuthSigningKey == "" {
		api.Use(auth.DevAuthMiddleware())
	} else {
		api.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
		}))
	}

	rl := middleware.RateLimitConfig{RequestsPerSecond: cfg.RateLimitRPS, BurstSize: cfg.RateLimitBurst}
	if rl.RequestsPerSecond <= 0 {
		rl = middleware.DefaultRateLimitConfig()
	}
	api.Use(middleware.RateLimit(rl))
	if cfg.RequestTimeout > 0 {
		api.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	}
	return e, api
}

// healthHandler reports liveness and whether a classifier artifact is loaded.
func healthHandler(provider *triage.Provider) echo.HandlerFunc {
	return func(c echo.Context) error {
		body := map[string]interface{}{
			"status":       "ok",
			"model_loaded": false,
		}
		if a := provider.Current(); a != nil {
			body["model_loaded"] = true
			body["artifact_version"] = a.Version
		}
		return c.JSON(http.StatusOK, body)
	}
}

func newPublisher(cfg *config.Config, logger zerolog.Logger) (events.Publisher, func()) {
	if cfg.AMQPURL == "" {
		return events.NewLogPublisher(logger), func() {}
	}
	pub, err := events.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
	if err != nil {
		logger.Warn().Err(err).Msg("AMQP unavailable; events go to the log")
		return events.NewLogPublisher(logger), func() {}
	}
	logger.Info().Str("exchange", cfg.AMQPExchange).Msg("publishing events to AMQP")
	return pub, func() {
		if err := pub.Close(); err != nil {
			logger.Warn().Err(err).Msg("close AMQP publisher")
		}
	}
}

// newArchive returns nil when object storage is not configured; reports are
// then served without being archived.
func newArchive(ctx context.Context, cfg *config.Config) (blobstore.Store, error) {
	if cfg.S3Endpoint == "" {
		return nil, nil
	}
	store, err := blobstore.NewMinioStore(ctx, blobstore.MinioConfig{
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Bucket:    cfg.S3Bucket,
		UseSSL:    cfg.S3UseSSL,
	})
	if err != nil {
		return nil, err
	}
	return store, nil
}

func runServer(parent context.Context, cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	publisher, closePublisher := newPublisher(cfg, logger)
	defer closePublisher()

	archive, err := newArchive(ctx, cfg)
	if err != nil {
		return err
	}

	provider := triage.NewProvider(cfg.ArtifactDir, logger)
	provider.LoadAtStartup(ctx)

	var broadcaster *triage.Broadcaster
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return err
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		broadcaster = triage.NewBroadcaster(rdb, provider, logger)
	}

	patientRepo := patient.NewRepoPG(pool)
	directory := patient.NewDirectory(patientRepo)
	store := triage.NewStorePG(pool)

	engine := triage.NewEngine(provider, directory, store, publisher, logger)
	triageSvc := triage.NewService(store, directory, archive, publisher, logger)
	patientSvc := patient.NewService(patientRepo, publisher, logger)

	e, api := newEcho(cfg, logger)
	e.GET("/health", healthHandler(provider))
	e.GET("/health/db", db.HealthHandler(pool, logger))
	patient.NewHandler(patientSvc).RegisterRoutes(api)
	triage.NewHandler(engine, triageSvc, provider, broadcaster).RegisterRoutes(api)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.ArtifactRefreshSpec != "" {
		refresher := triage.NewRefresher(provider, logger)
		refresher.Start(gctx, cfg.ArtifactRefreshSpec)
		defer refresher.Stop()
	}

	if broadcaster != nil {
		g.Go(func() error {
			broadcaster.Listen(gctx)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
