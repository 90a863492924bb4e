package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/akylbek/invoicing-system/payment-reconciler/internal/api"
	"github.com/akylbek/invoicing-system/payment-reconciler/internal/bead"
	"github.com/akylbek/invoicing-system/payment-reconciler/internal/config"
	"github.com/akylbek/invoicing-system/payment-reconciler/internal/credentials"
	"github.com/akylbek/invoicing-system/payment-reconciler/internal/dvf"
	"github.com/akylbek/invoicing-system/payment-reconciler/internal/handlers"
	"github.com/akylbek/invoicing-system/payment-reconciler/internal/locker"
	"github.com/akylbek/invoicing-system/payment-reconciler/internal/notify"
	"github.com/akylbek/invoicing-system/payment-reconciler/internal/repository"
	"github.com/akylbek/invoicing-system/payment-reconciler/internal/service"
	"github.com/akylbek/invoicing-system/payment-reconciler/internal/telemetry"
)

func main() {
	// Load configuration (.env is optional, env vars win)
	_ = godotenv.Load()
	cfg := config.Load()

	// Initialize telemetry
	if err := telemetry.Init("payment-reconciler", cfg.JaegerEndpoint); err != nil {
		panic(fmt.Sprintf("Failed to initialize telemetry: %v", err))
	}
	defer telemetry.Shutdown(context.Background())

	telemetry.Logger.Info("Starting Payment Reconciler")

	// Connect to PostgreSQL
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		telemetry.Logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Initialize repositories
	invoiceRepo := repository.NewInvoiceRepository(db)
	if err := invoiceRepo.InitDB(); err != nil {
		telemetry.Logger.Fatal("Failed to initialize invoices schema", zap.Error(err))
	}
	credentialRepo := repository.NewCredentialRepository(db)
	if err := credentialRepo.InitDB(); err != nil {
		telemetry.Logger.Fatal("Failed to initialize credentials schema", zap.Error(err))
	}

	// Connect to Redis (per-tracking-id reconciliation lease)
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisURL,
	})

	// Connect to NATS (payment notifications to the mailer)
	nc, err := nats.Connect(cfg.NatsURL)
	if err != nil {
		telemetry.Logger.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer nc.Close()

	// Connect to Kafka (invoice status change events)
	kafkaWriter := &kafka.Writer{
		Addr:     kafka.TCP(cfg.KafkaBrokers),
		Topic:    "invoice.status.changed",
		Balancer: &kafka.LeastBytes{},
	}
	defer kafkaWriter.Close()

	// Provider client stack
	authenticator := bead.NewGatewayAuthenticator(cfg.ProviderTimeout, telemetry.Logger)
	tokenStore := bead.NewTokenStore(authenticator)
	gateway := bead.NewClient(tokenStore, cfg.ProviderTimeout, telemetry.Logger)
	resolver := credentials.NewResolver(credentialRepo, cfg.FallbackCredential(), telemetry.Logger)

	// Reconciliation core
	publisher := notify.NewPublisher(kafkaWriter, nc, telemetry.Logger)
	reconciler := service.NewReconciler(invoiceRepo, locker.NewRedisLocker(redisClient), publisher, telemetry.Logger)

	// Register our webhook with the provider's fallback terminal at startup.
	// Best effort: a failure here only means webhooks stay pointed wherever
	// they were, and polling still works.
	if cfg.PublicBaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ProviderTimeout)
		if err := gateway.RegisterWebhookURL(ctx, cfg.FallbackCredential(), cfg.PublicBaseURL+"/bead/webhook"); err != nil {
			telemetry.Logger.Warn("Startup webhook registration failed", zap.Error(err))
		}
		cancel()
	}

	// Handlers and router
	webhookHandler := handlers.NewWebhookHandler(gateway, resolver, invoiceRepo, reconciler, dvf.NewProcessor(cfg.DvfSigningKey))
	paymentHandler := handlers.NewPaymentHandler(gateway, resolver, invoiceRepo, reconciler, cfg.PublicBaseURL)
	invoiceHandler := handlers.NewInvoiceHandler(invoiceRepo, credentialRepo)

	r := api.NewRouter(webhookHandler, paymentHandler, invoiceHandler)

	// Setup HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	// Start server in goroutine
	go func() {
		telemetry.Logger.Info("Payment Reconciler starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			telemetry.Logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	telemetry.Logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		telemetry.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	telemetry.Logger.Info("Server exited")
}
