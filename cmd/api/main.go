package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/praxisboard/board-api/internal/board"
	"github.com/praxisboard/board-api/internal/config"
	"github.com/praxisboard/board-api/internal/email"
	"github.com/praxisboard/board-api/internal/handler"
	accountHandler "github.com/praxisboard/board-api/internal/handler/account"
	assetsHandler "github.com/praxisboard/board-api/internal/handler/assets"
	authHandler "github.com/praxisboard/board-api/internal/handler/auth"
	configHandler "github.com/praxisboard/board-api/internal/handler/configuration"
	intakeHandler "github.com/praxisboard/board-api/internal/handler/intake"
	patientHandler "github.com/praxisboard/board-api/internal/handler/patient"
	"github.com/praxisboard/board-api/internal/middleware"
	"github.com/praxisboard/board-api/internal/repository/postgres"
	"github.com/praxisboard/board-api/internal/router"
	accountService "github.com/praxisboard/board-api/internal/service/account"
	authService "github.com/praxisboard/board-api/internal/service/auth"
	configService "github.com/praxisboard/board-api/internal/service/configuration"
	intakeService "github.com/praxisboard/board-api/internal/service/intake"
	"github.com/praxisboard/board-api/internal/storage"
	"github.com/praxisboard/board-api/internal/webhook"
	"github.com/praxisboard/board-api/pkg/auth"
	"github.com/praxisboard/board-api/pkg/logger"
	"github.com/praxisboard/board-api/pkg/messaging/redis"
	"github.com/praxisboard/board-api/pkg/metrics"
	"github.com/praxisboard/board-api/pkg/worker"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(nil)
	appMetrics := metrics.NewMetrics("praxisboard", "api")

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.NewS3Store(ctx, cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to object storage")
	}

	broker, err := redis.NewRedisBroker(redis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, appLogger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer broker.Close()

	// Repositories
	patientRepo := postgres.NewPatientRepository(db)
	configRepo := postgres.NewConfigurationRepository(db)
	roleRepo := postgres.NewRoleRepository(db)
	userRepo := postgres.NewUserRepository(db)
	outboxRepo := postgres.NewOutboxRepository(db)

	// Services
	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL, cfg.JWT.RefreshTokenTTL)
	mailer := email.NewService(cfg.SMTP, appLogger)
	configSvc := configService.NewService(configRepo)
	accountSvc := accountService.NewService(userRepo, roleRepo, mailer, appLogger)
	authSvc := authService.NewService(userRepo, jwtManager)
	intakeSvc := intakeService.NewService(
		patientRepo, roleRepo, store, appLogger,
		cfg.Intake.MaxPDFSizeBytes, cfg.Intake.SignedURLExpiry,
	)

	// Board cache fed by the outbox-backed change feed
	boards := board.NewManager(patientRepo, store, broker, appLogger, cfg.Redis.FeedChannel, cfg.Storage.SignedURLTTL)
	go func() {
		if err := boards.Run(ctx); err != nil && err != context.Canceled {
			appLogger.Error(err, "change feed consumer exited")
		}
	}()

	outboxProcessor := worker.NewOutboxProcessor(
		outboxRepo, broker, appLogger, appMetrics,
		cfg.Redis.FeedChannel, cfg.Outbox.PollInterval, cfg.Outbox.BatchSize,
	)
	go outboxProcessor.Start(ctx)

	// Middleware and handlers
	authMiddleware := middleware.NewAuthMiddleware(jwtManager, roleRepo)
	intakeLimiter := middleware.NewIntakeLimiter(cfg.Intake.RateLimitMax, cfg.Intake.RateLimitWindow, appMetrics)
	dispatcher := webhook.NewDispatcher(appLogger)

	r := router.New(
		authMiddleware,
		intakeLimiter,
		authHandler.NewHandler(authSvc),
		patientHandler.NewHandler(boards, configSvc, dispatcher, appLogger, cfg.Intake.MaxPDFSizeBytes),
		configHandler.NewHandler(configSvc),
		accountHandler.NewHandler(accountSvc),
		assetsHandler.NewHandler(store, configSvc, appLogger, cfg.Storage.LogoPrefix, cfg.Storage.DocumentPrefix),
		intakeHandler.NewHandler(intakeSvc, cfg.Intake.Token, appMetrics),
		handler.NewHealth(db),
		router.Config{
			RateLimit:     rate.Limit(100),
			RateBurst:     200,
			CORSConfig:    corsConfig(cfg),
			MetricsPrefix: "praxisboard",
		},
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		appLogger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}

func corsConfig(cfg *config.Config) middleware.CORSConfig {
	corsCfg := middleware.DefaultCORSConfig()
	if len(cfg.Server.AllowedOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.Server.AllowedOrigins
	}
	return corsCfg
}
