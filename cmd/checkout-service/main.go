package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/avolkhov/storefront-checkout/internal/api"
	"github.com/avolkhov/storefront-checkout/internal/cache"
	"github.com/avolkhov/storefront-checkout/internal/gateway"
	"github.com/avolkhov/storefront-checkout/internal/metrics"
	"github.com/avolkhov/storefront-checkout/internal/publisher"
	"github.com/avolkhov/storefront-checkout/internal/repository"
	"github.com/avolkhov/storefront-checkout/internal/service"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	log.Println("checkout-service starting...")

	httpPort := getEnv("HTTP_PORT", "8080")
	requestTimeout := 30 * time.Second

	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		log.Fatalf("Invalid DB_PORT: %v", err)
	}
	creds := &repository.Credentials{
		Host:              getEnv("DB_HOST", "localhost"),
		Port:              dbPort,
		User:              getEnv("DB_USER", "postgres"),
		Password:          getEnv("DB_PASSWORD", "postgres"),
		DBName:            getEnv("DB_NAME", "storefront"),
		MigrationsDirPath: getEnv("MIGRATIONS_PATH", "./internal/repository/migrations"),
	}

	repo, err := repository.NewRepository(creds)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer repo.Close()

	if err := repo.RunMigrations(creds); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Database migrations completed")

	redisClient := redis.NewClient(&redis.Options{
		Addr: getEnv("REDIS_ADDR", "localhost:6379"),
	})
	defer redisClient.Close()
	sessionCache := cache.NewRedisSessionCache(redisClient)

	rewardThreshold, err := strconv.ParseInt(getEnv("REWARD_THRESHOLD_MINOR", "20000"), 10, 64)
	if err != nil {
		log.Fatalf("Invalid REWARD_THRESHOLD_MINOR: %v", err)
	}

	gatewayClient := gateway.NewHTTPClient(gateway.Config{
		BaseURL:   getEnv("GATEWAY_BASE_URL", "https://api.stripe.com"),
		SecretKey: os.Getenv("GATEWAY_SECRET_KEY"),
		Timeout:   10 * time.Second,
	})

	clientURL := getEnv("CLIENT_URL", "http://localhost:3000")

	coupons := service.NewCouponLedger(repo)
	builder := service.NewCheckoutBuilder(gatewayClient, coupons, sessionCache, service.CheckoutBuilderConfig{
		SuccessURL:      clientURL + "/purchase-success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:       clientURL + "/purchase-cancel",
		RewardThreshold: rewardThreshold,
	})
	finalizer := service.NewFinalizer(gatewayClient, repo, sessionCache)

	// Outbox poller publishes confirmed orders to Kafka in the background.
	pollerCtx, cancelPoller := context.WithCancel(context.Background())
	defer cancelPoller()
	brokers := strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ",")
	poller := publisher.NewOutboxPoller(repo, brokers...)
	go poller.Run(pollerCtx)

	serverMetrics := metrics.NewServerMetrics("checkout")

	router := api.NewRouter(api.RouterConfig{
		Payments:       api.NewPaymentsHandler(builder, finalizer, requestTimeout),
		Coupons:        api.NewCouponsHandler(coupons, requestTimeout),
		Metrics:        serverMetrics,
		RequestTimeout: requestTimeout,
	})

	srv := &http.Server{
		Addr:         ":" + httpPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("checkout-service listening on :%s", httpPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down server...")
	cancelPoller()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	log.Println("server exited")
}
