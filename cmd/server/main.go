package main

import (
	"context"   // Shutdown deadlines
	"errors"    // Server close detection
	"net/http"  // HTTP server
	"os"        // Signals
	"os/signal" // Graceful shutdown
	"syscall"   // SIGTERM
	"time"      // Timeouts

	"spray_ledger/internal/api"         // HTTP handlers
	"spray_ledger/internal/config"      // Application configuration
	"spray_ledger/internal/coordinator" // Transaction coordinator
	"spray_ledger/internal/db"          // Store selection
	"spray_ledger/internal/escrow"      // Event escrow
	"spray_ledger/internal/gateway"     // Payment provider
	"spray_ledger/internal/ledger"      // Transaction ledger
	"spray_ledger/internal/middleware"  // HTTP middleware
	"spray_ledger/internal/outbox"      // Ledger event relay
	"spray_ledger/internal/utils"       // Redis helpers
	"spray_ledger/internal/wallet"      // Wallet store

	"github.com/gin-contrib/cors"                             // CORS middleware
	"github.com/gin-gonic/gin"                                // Gin web framework
	"github.com/prometheus/client_golang/prometheus/promhttp" // Metrics endpoint
	"github.com/redis/go-redis/v9"                            // Redis client
	"github.com/sirupsen/logrus"                              // Logrus for structured logging
)

// Main function to set up and run the server
func main() {
	cfg := config.LoadConfig() // Load configuration
	setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := db.Open(ctx, cfg) // MySQL, MongoDB or memory
	if err != nil {
		logrus.Fatalf("failed to connect to store: %v", err)
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			logrus.WithError(err).Warn("failed to close store")
		}
	}()

	opts := []coordinator.Option{coordinator.WithTxOptions(cfg.TxOptions())}

	// Redis is optional; without it reads are uncached and webhooks rely on the PENDING guard
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr, // Redis server address
			Password: cfg.RedisPass, // Redis password
			DB:       cfg.RedisDB,   // Redis database number
		})
		if _, err := redisClient.Ping(ctx).Result(); err != nil {
			logrus.Fatalf("failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		opts = append(opts, coordinator.WithLocker(utils.NewRedisLocker(redisClient)))
	}

	if cfg.GatewayEnabled() {
		opts = append(opts, coordinator.WithGateway(gateway.NewHTTPClient(gateway.Config{
			BaseURL:     cfg.GatewayBaseURL,
			PublicKey:   cfg.GatewayPublicKey,
			BearerToken: cfg.GatewayToken,
			CallbackURL: cfg.GatewayCallback,
			PocketID:    cfg.GatewayPocketID,
		})))
	} else {
		logrus.Warn("Payment gateway not configured; funding and withdrawals are disabled")
	}

	co := coordinator.New(
		st,
		wallet.New(cfg.DefaultCurrency),
		ledger.New(ledger.NewIDGenerator(), ledger.WithCurrency(cfg.DefaultCurrency)),
		escrow.New(cfg.Commission),
		opts...,
	)

	if cfg.RabbitURL != "" {
		rabbit := outbox.NewRabbitMQ(cfg.RabbitURL)
		if err := rabbit.Connect(cfg.RabbitExchange); err != nil {
			logrus.Fatalf("failed to connect to RabbitMQ: %v", err)
		}
		defer rabbit.Close()
		worker := outbox.NewWorker(st.Outbox(), outbox.NewRabbitMQPublisher(rabbit.Channel, cfg.RabbitExchange), cfg.OutboxInterval)
		go worker.Run(ctx) // Relay committed ledger events
	} else {
		logrus.Info("RABBITMQ_URL not set; ledger events stay in the outbox")
	}

	// Set Mode to Release if in production
	if cfg.IsProd {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), middleware.Metrics(), corsMiddleware(cfg))

	// Set trusted proxies for Gin
	if err := r.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		logrus.Fatalf("failed to set trusted proxies: %v", err)
	}

	r.GET("/status", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	api.RegisterRoutes(r, api.Deps{
		Coordinator:   co,
		Users:         st.Users(),
		Redis:         redisClient,
		JWTSecret:     cfg.JWTSecret,
		WebhookSecret: cfg.WebhookSecret,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.AppPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second, // Payouts wait on the gateway
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logrus.WithField("port", cfg.AppPort).Info("Server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	logrus.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Server forced to shutdown")
	}
	logrus.Info("Server stopped")
}

func setupLogger(cfg *config.Config) {
	if cfg.IsProd {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

func corsMiddleware(cfg *config.Config) gin.HandlerFunc {
	cc := cors.DefaultConfig()
	if len(cfg.CORSOrigins) > 0 {
		cc.AllowOrigins = cfg.CORSOrigins
	} else {
		cc.AllowAllOrigins = true
	}
	cc.AddAllowHeaders("Authorization")
	return cors.New(cc)
}
