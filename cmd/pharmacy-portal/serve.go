package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/carehub/pharmacy-portal/internal/domain/medicine"
	"github.com/carehub/pharmacy-portal/internal/domain/order"
	"github.com/carehub/pharmacy-portal/internal/domain/patient"
	"github.com/carehub/pharmacy-portal/internal/domain/pharmacyservice"
	"github.com/carehub/pharmacy-portal/internal/domain/profile"
	"github.com/carehub/pharmacy-portal/internal/domain/requestorder"
	"github.com/carehub/pharmacy-portal/internal/domain/support"
	"github.com/carehub/pharmacy-portal/internal/domain/wallet"
	"github.com/carehub/pharmacy-portal/internal/listing"
	"github.com/carehub/pharmacy-portal/internal/platform/auth"
	"github.com/carehub/pharmacy-portal/internal/platform/db"
	"github.com/carehub/pharmacy-portal/internal/platform/livefeed"
	"github.com/carehub/pharmacy-portal/internal/platform/middleware"
	"github.com/carehub/pharmacy-portal/internal/platform/notification"
)

const version = "0.1.0"

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the portal HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			watch, _ := cmd.Flags().GetBool("watch-requests")
			return runServer(watch)
		},
	}
	cmd.Flags().Bool("watch-requests", true, "Poll request orders in the background and serve them at /api/request-orders/live and push changes over /api/live")
	return cmd
}

func runServer(watch bool) error {
	// Logger
	bootLogger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		bootLogger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := loadConfig()
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize")
	}
	defer a.Close()

	svc := newServices(a.api, a)
	svc.withPharmacyName(ctx, a)

	var watcher *requestorder.Watcher
	if watch {
		watcher = requestorder.NewWatcher(svc.profiles, svc.requests, logger,
			requestorder.WithInterval(cfg.PollInterval),
			requestorder.WithPollObserver(a.metrics),
			requestorder.WithOnChange(func(st listing.State[requestorder.RequestOrder]) {
				a.feed.Publish(livefeed.TopicRequestOrders, "request_orders.updated", st)
			}),
		)
		if err := watcher.Start(ctx); err != nil {
			logger.Warn().Err(err).Msg("request order watcher not started")
			watcher = nil
		} else {
			defer watcher.Stop()
		}
	}

	e := buildServer(a, svc, watcher)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("api", cfg.APIBaseURL).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// buildServer assembles the echo server: global middleware, the domain
// routes under /api, and the health and metrics endpoints.
func buildServer(a *app, svc *services, watcher *requestorder.Watcher) *echo.Echo {
	cfg, logger := a.cfg, a.logger

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(middleware.RecoveryConfig{Logger: logger, Caller: rateLimitKey}))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	security := middleware.SecurityConfig{NoStorePrefix: "/api"}
	if cfg.IsProduction() {
		security.HSTSMaxAge = 180 * 24 * time.Hour
	}
	e.Use(middleware.SecurityHeaders(security))
	e.Use(middleware.BodyLimit(cfg.BodyLimit, cfg.UploadLimit))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	if cfg.MetricsEnabled {
		e.Use(a.metrics.Middleware())
	}

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if a.pool != nil {
		e.GET("/health/db", db.HealthHandler(a.pool))
	}
	if cfg.MetricsEnabled {
		e.GET("/metrics", echo.WrapHandler(a.metrics.Handler()))
	}

	api := e.Group("/api")
	// Callers must bring their own bearer; the stored token serves the CLI
	// and the request-order watcher only.
	api.Use(auth.BearerPassthrough(auth.PassthroughConfig{
		Role:       cfg.Role,
		Required:   true,
		QueryParam: "access_token",
		Logger:     logger,
	}))
	if cfg.RateLimitRPS > 0 {
		api.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			BurstSize:         cfg.RateLimitBurst,
			KeyFunc:           rateLimitKey,
		}))
	}

	profile.NewHandler(svc.profiles).RegisterRoutes(api)
	medicine.NewHandler(svc.medicines, logger).RegisterRoutes(api)
	order.NewHandler(svc.orders, svc.advancer, logger).RegisterRoutes(api)

	roHandler := requestorder.NewHandler(svc.requests, svc.profiles, svc.processor, logger)
	if watcher != nil {
		roHandler.WithWatcher(watcher)
	}
	roHandler.RegisterRoutes(api)

	patient.NewHandler(svc.patients, logger).RegisterRoutes(api)
	pharmacyservice.NewHandler(svc.catalog, logger).RegisterRoutes(api)
	support.NewHandler(svc.support, logger).RegisterRoutes(api)
	wallet.NewHandler(svc.wallet, logger).RegisterRoutes(api)
	notification.NewHandler(a.notifier).RegisterRoutes(api)
	livefeed.NewHandler(a.feed, logger, cfg.CORSOrigins).RegisterRoutes(api)

	return e
}

// rateLimitKey buckets signed-in callers by pharmacy and everyone else by IP.
// It also names the caller in panic logs.
func rateLimitKey(c echo.Context) string {
	if claims, ok := auth.ClaimsFromContext(c.Request().Context()); ok {
		if ref := claims.PharmacyRef(); ref != "" {
			return "pharmacy:" + ref
		}
	}
	return "ip:" + c.RealIP()
}
