package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/lims/lims/internal/config"
	"github.com/lims/lims/internal/domain/alerts"
	"github.com/lims/lims/internal/domain/orders"
	"github.com/lims/lims/internal/domain/results"
	"github.com/lims/lims/internal/domain/specimen"
	"github.com/lims/lims/internal/domain/tat"
	"github.com/lims/lims/internal/platform/auth"
	"github.com/lims/lims/internal/platform/db"
	"github.com/lims/lims/internal/platform/metrics"
	"github.com/lims/lims/internal/platform/middleware"
	"github.com/lims/lims/internal/platform/notification"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "lims-server",
		Short: "Laboratory result lifecycle API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the LIMS API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Metrics())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Auth middleware
	if cfg.IsDev() && cfg.AuthIssuer == "" {
		e.Use(auth.DevAuthMiddleware())
		logger.Warn().Msg("running with development auth, all requests act as admin")
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
			JWKSURL:  cfg.AuthJWKSURL,
		}))
	}

	apiV1 := e.Group("/api/v1")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// Repositories
	orderRepo := orders.NewLabOrderRepoPG(pool)
	itemRepo := orders.NewLabOrderItemRepoPG(pool)
	paramRepo := orders.NewLabTestParameterRepoPG(pool)
	specimenRepo := specimen.NewRepoPG(pool)
	resultRepo := results.NewResultRepoPG(pool)
	validationRepo := results.NewValidationRepoPG(pool)
	alertRepo := alerts.NewRepoPG(pool)
	tatRepo := tat.NewRepoPG(pool)

	// Notification dispatch for critical value alerts. The mock senders
	// log deliveries instead of calling a gateway; swap in real ones by
	// implementing EmailSender/SMSSender.
	templates := notification.NewTemplateEngine()
	dispatcher := notification.NewDispatcher(notification.Config{
		QueueSize:    cfg.NotifyQueueSize,
		MaxAttempts:  cfg.NotifyMaxAttempts,
		RetryBackoff: cfg.NotifyRetryBackoff,
	}, &notification.MockEmailSender{}, &notification.MockSMSSender{}, logger)

	// Services
	orderSvc := orders.NewService(orderRepo, itemRepo, paramRepo)
	specimenSvc := specimen.NewService(specimenRepo)

	alertSvc := alerts.NewService(alertRepo, alerts.NewDispatchNotifier(dispatcher, templates, cfg.NotifyTarget, logger), logger)
	resultSvc := results.NewService(pool, resultRepo, validationRepo, specimenRepo, itemRepo, orderRepo, paramRepo, alerts.NewResultAlertRaiser(alertSvc))
	tatSvc := tat.NewService(tatRepo, itemRepo, orderRepo, specimenRepo, resultRepo, cfg.DefaultExpectedTAT)

	// Delivery outcomes flow back into the alert's notification status.
	dispatcher.OnDelivered = func(ctx context.Context, n *notification.Notification) {
		if n.AlertID == nil {
			return
		}
		if err := alertSvc.MarkNotificationSent(ctx, *n.AlertID, n.Attempts); err != nil {
			logger.Error().Err(err).Str("alert_id", n.AlertID.String()).Msg("failed to record notification delivery")
		}
	}
	dispatcher.OnExhausted = func(ctx context.Context, n *notification.Notification) {
		if n.AlertID == nil {
			return
		}
		if err := alertSvc.MarkNotificationStale(ctx, *n.AlertID, n.Attempts); err != nil {
			logger.Error().Err(err).Str("alert_id", n.AlertID.String()).Msg("failed to record notification staleness")
		}
	}
	dispatcher.Start()
	defer dispatcher.Stop()

	// Handlers
	orders.NewHandler(orderSvc).RegisterRoutes(apiV1)
	specimen.NewHandler(specimenSvc).RegisterRoutes(apiV1)
	results.NewHandler(resultSvc).RegisterRoutes(apiV1)
	alerts.NewHandler(alertSvc).RegisterRoutes(apiV1)
	tat.NewHandler(tatSvc).RegisterRoutes(apiV1)

	// Health and metrics
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	if cfg.MetricsEnabled {
		e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	}

	// Pool stats feed the gauges between scrapes.
	poolStatsDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				metrics.UpdateDBPoolStats(pool)
			case <-poolStatsDone:
				return
			}
		}
	}()
	defer close(poolStatsDone)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
