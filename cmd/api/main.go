package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/grocery-delivery/internal/api"
	"github.com/example/grocery-delivery/internal/api/middleware"
	"github.com/example/grocery-delivery/internal/auth"
	"github.com/example/grocery-delivery/internal/config"
	"github.com/example/grocery-delivery/internal/domain/cart"
	"github.com/example/grocery-delivery/internal/domain/order"
	"github.com/example/grocery-delivery/internal/domain/product"
	"github.com/example/grocery-delivery/internal/domain/user"
	"github.com/example/grocery-delivery/internal/infrastructure/kafka"
	"github.com/example/grocery-delivery/internal/infrastructure/redis"
	"github.com/example/grocery-delivery/internal/infrastructure/store"
	"github.com/example/grocery-delivery/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	base := logger.New(logger.Options{Service: "api", Env: cfg.AppEnv, Level: cfg.LogLevel})
	log := logger.Component(base, "API")

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	dialect := store.Dialect(cfg.DatabaseDriver)
	db, err := store.Open(ctx, dialect, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "driver", cfg.DatabaseDriver, "error", err)
		os.Exit(1)
	}
	sqlStore := store.NewSQLStore(db, dialect, logger.Component(base, "Store"))
	defer sqlStore.Close()

	if err := sqlStore.Migrate(ctx); err != nil {
		log.Error("failed to create schema", "error", err)
		os.Exit(1)
	}
	log.Info("connected to database", "driver", cfg.DatabaseDriver)

	catalog := product.NewCatalog(sqlStore.Products(), logger.Component(base, "Catalog"))
	if cfg.SeedCatalog {
		added, err := catalog.EnsureSeeded(ctx)
		if err != nil {
			log.Warn("failed to seed catalog", "error", err)
		} else if added > 0 {
			log.Info("seeded demo catalog", "products", added)
		}
	}

	var publisher order.Publisher
	if cfg.KafkaEnabled() {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		publisher = producer
		log.Info("publishing events", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	var idempotency middleware.IdempotencyStore
	if cfg.RedisURL != "" {
		client, err := redis.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Warn("redis unavailable, idempotency keys disabled", "error", err)
		} else {
			defer client.Close()
			idempotency = redis.NewIdempotencyStore(client, redis.DefaultIdempotencyTTL)
		}
	}

	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.AccessTokenTTL)
	userSvc := user.NewService(sqlStore.Users(), logger.Component(base, "User"))
	cartSvc := cart.NewService(sqlStore.Carts(), catalog, logger.Component(base, "Cart"))
	orderSvc := order.NewService(sqlStore.Orders(), publisher, logger.Component(base, "Order"))

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	if err := limiter.TrustProxies(cfg.TrustedProxies...); err != nil {
		log.Error("invalid TRUSTED_PROXIES", "error", err)
		os.Exit(1)
	}
	go sweepLimiter(ctx, limiter)

	router := api.NewRouter(api.RouterConfig{
		Handlers:     api.NewHandlers(catalog, cartSvc, orderSvc, log),
		AuthHandlers: api.NewAuthHandlers(userSvc, jwtService, log),
		JWT:          jwtService,
		RateLimiter:  limiter,
		Idempotency:  idempotency,
		Log:          logger.Component(base, "HTTP"),
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("server started", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}

func sweepLimiter(ctx context.Context, limiter *middleware.RateLimiter) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Sweep()
		}
	}
}
