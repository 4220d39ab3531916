package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"config-codex/internal/config"
	"config-codex/internal/db"
	"config-codex/internal/events"
	apihttp "config-codex/internal/http"
	"config-codex/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := newLogger(cfg)
	defer func() { _ = logger.Sync() }()

	users, closeStore, err := db.OpenUserStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open user store", zap.Error(err))
	}
	defer closeStore()

	var (
		publisher events.Publisher = events.NewLogPublisher(logger)
		limiter                    = service.NewLoginRateLimiter(cfg.LoginRateLimitWindow(), cfg.LoginRateLimitMax)
	)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()

		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed, using in-process limiter and log events", zap.Error(err))
		} else {
			publisher = events.NewRedisStreamPublisher(redisClient, cfg.EventsStream)
			limiter = service.NewRedisLoginRateLimiter(redisClient, logger, cfg.LoginRateLimitWindow(), cfg.LoginRateLimitMax)
		}
		cancel()
	}

	var (
		metrics        *service.Metrics
		metricsHandler http.Handler
	)
	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics, err = service.NewMetrics(reg)
		if err != nil {
			logger.Fatal("register metrics", zap.Error(err))
		}
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	tokens := service.NewJWTService(cfg.JWTSecret, cfg.AccessTTL(), cfg.RefreshTTL())
	authSvc := service.NewAuthService(
		logger,
		users,
		service.NewBcryptHasher(cfg.BcryptCost),
		service.NewPasswordPolicy(service.DefaultMinPasswordLength),
		tokens,
		publisher,
		limiter,
		metrics,
	)
	authHandler := apihttp.NewAuthHandler(logger, authSvc)
	router := apihttp.NewRouter(logger, apihttp.RouterConfig{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Metrics:        metricsHandler,
	}, authSvc, authHandler)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("port", cfg.HTTPPort), zap.String("store", cfg.StoreDriver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.IsProduction() {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	return logger
}
