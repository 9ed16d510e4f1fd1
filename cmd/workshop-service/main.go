package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"workshop-service/internal/auth"
	"workshop-service/internal/cache"
	"workshop-service/internal/config"
	"workshop-service/internal/db"
	httphandler "workshop-service/internal/http"
	"workshop-service/internal/http/middleware"
	"workshop-service/internal/logger"
	"workshop-service/internal/notify"
	"workshop-service/internal/repository"
	"workshop-service/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.Environment)

	database, err := db.New(cfg, appLogger)
	if err != nil {
		appLogger.Fatal().Err(err).Msg("failed to connect database")
	}

	appCache := cache.New(cfg.Redis, appLogger)
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := appCache.Ping(pingCtx); err != nil {
		appLogger.Warn().Err(err).Msg("redis unavailable, caching and rate limits degraded")
	}
	cancel()

	mailer := notify.NewSMTPMailer(cfg.SMTP)

	userRepo := repository.NewUserRepository(database)
	clientRepo := repository.NewClientRepository(database)
	mechanicRepo := repository.NewMechanicRepository(database)
	quoteRepo := repository.NewQuoteRepository(database)
	workOrderRepo := repository.NewWorkOrderRepository(database)
	auditRepo := repository.NewAuditRepository(database)

	tokenManager := auth.NewManager(cfg.Auth.AccessSecret, cfg.Auth.AccessTTL)

	authService := service.NewAuthService(userRepo, tokenManager, auditRepo, appLogger)
	userService := service.NewUserService(userRepo, auditRepo, appLogger)
	clientService := service.NewClientService(clientRepo,
		service.NewClientActivityChecker(quoteRepo, workOrderRepo), auditRepo, appCache, appLogger)
	mechanicService := service.NewMechanicService(mechanicRepo, workOrderRepo, auditRepo, appLogger)
	quoteService := service.NewQuoteService(quoteRepo, clientRepo, mailer,
		cfg.Workshop.PublicBaseURL, cfg.Workshop.QuoteValidityDays, auditRepo, appCache, appLogger)
	workOrderService := service.NewWorkOrderService(workOrderRepo, mechanicRepo, clientRepo, mailer,
		auditRepo, appCache, appLogger)
	dashboardService := service.NewDashboardService(quoteRepo, workOrderRepo, appCache, appLogger)
	auditService := service.NewAuditService(auditRepo)

	handler := httphandler.NewHandler(
		authService,
		userService,
		clientService,
		mechanicService,
		quoteService,
		workOrderService,
		dashboardService,
		auditService,
		appLogger,
	)
	authMiddleware := middleware.Auth(tokenManager)
	router := httphandler.NewRouter(handler, authMiddleware, httphandler.RateLimits{
		Limiter:      appCache,
		LoginLimit:   10,
		LoginWindow:  time.Minute,
		PublicLimit:  30,
		PublicWindow: time.Minute,
	}, cfg.Environment, appLogger)

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	appLogger.Info().Str("addr", addr).Msg("starting workshop service")

	if err := router.Run(addr); err != nil {
		appLogger.Error().Err(err).Msg("failed to start server")
		os.Exit(1)
	}
}
