package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/dmorelli/tutoring-slots/internal/config"
	"github.com/dmorelli/tutoring-slots/internal/database"
	"github.com/dmorelli/tutoring-slots/internal/handler"
	"github.com/dmorelli/tutoring-slots/internal/middleware"
	"github.com/dmorelli/tutoring-slots/internal/payment"
	"github.com/dmorelli/tutoring-slots/internal/queue"
	"github.com/dmorelli/tutoring-slots/internal/repository"
	"github.com/dmorelli/tutoring-slots/internal/router"
	"github.com/dmorelli/tutoring-slots/internal/service"
)

func main() {
	// A missing .env is fine in containerized deployments where the
	// environment is injected directly.
	_ = godotenv.Load()
	cfg := config.Load()

	logger := newLogger(cfg.Env)
	defer func() { _ = logger.Sync() }()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, db); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		logger.Warn("redis unavailable, rate limiting and caching disabled")
	}

	slots := repository.NewSlotRepo(db)
	reservations := repository.NewReservationRepo(db)

	var publisher service.ConfirmationPublisher
	if cfg.AMQPURL != "" {
		publisher = queue.NewPublisher(cfg.AMQPURL)
	} else {
		logger.Warn("AMQP_URL not set, confirmation events will not be published")
	}

	payments := payment.NewClient(cfg.PaymentBaseURL, cfg.PaymentToken)
	holds := service.NewHoldService(db, slots, reservations, cfg.HoldTTL, logger)
	confirmations := service.NewConfirmationService(db, reservations, publisher, logger)
	admin := service.NewAdminService(db, slots, reservations, cfg.ForceHoldTTL, logger)

	reaper := service.NewReaper(reservations, cfg.SweepInterval, logger)
	reaper.Start(ctx)
	defer reaper.Stop()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.CORS(cfg.AllowedOrigins))

	router.RegisterRoutes(e)
	router.RegisterPublic(e, handler.NewPublicHandler(slots, reservations, holds, payments, logger), rdb, config.LoadRateLimitConfig(), config.LoadCacheConfig())
	router.RegisterWebhook(e, handler.NewWebhookHandler(confirmations, payments, logger))
	router.RegisterAuth(e, handler.NewAuthHandler(cfg))
	router.RegisterAdmin(e, handler.NewAdminHandler(admin), cfg.JWTSecret)

	go func() {
		addr := ":" + cfg.Port
		logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server start failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
	}
}

// newLogger builds a production zap logger, or a development one for
// local runs.
func newLogger(env string) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if env == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	return logger
}
