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

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-tickets/internal/config"
	"ms-tickets/internal/kafka"
	"ms-tickets/internal/logger"
	"ms-tickets/internal/models"
	"ms-tickets/internal/shopify"
	ticket_db "ms-tickets/internal/tickets/db"
	tickets "ms-tickets/internal/tickets/service"
	"ms-tickets/internal/tickets/ticket_api"
)

func verifyConnections(ctx context.Context, cfg *config.Config, log *logger.Logger) (*bun.DB, *redis.Client) {
	if cfg.Database.DSN == "" {
		log.Fatal("CONFIG", "POSTGRES_DSN not set")
	}

	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Connecting to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.Database.DSN)
		if err == nil {
			err = sqldb.Ping()
			if err == nil {
				break
			}
		}
		log.Error("DATABASE", fmt.Sprintf("PostgreSQL connection failed: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	log.Info("DATABASE", "✅ PostgreSQL connection successful")
	bunDB := bun.NewDB(sqldb, pgdialect.New())

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}
	log.Info("DATABASE", fmt.Sprintf("✅ Redis connection successful to %s", cfg.Redis.Addr))

	return bunDB, redisClient
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting Ticket Service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}
	cfg := config.Load()

	if cfg.Shopify.WebhookSecret == "" {
		log.Warn("CONFIG", "SHOPIFY_WEBHOOK_SECRET not set, all webhook deliveries will be rejected")
	}

	ctx := context.Background()
	bunDB, redisClient := verifyConnections(ctx, cfg, log)
	defer bunDB.Close()
	defer redisClient.Close()

	service := tickets.NewTicketService(&ticket_db.DB{Bun: bunDB})
	service.Logger = log
	service.TestProbes = cfg.Diagnostics.TestProbes
	if cfg.Diagnostics.TestProbes {
		log.Warn("CONFIG", "Scanner test probes enabled; TEST- identifiers will simulate a valid scan")
	}

	var consumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		log.Info("KAFKA", fmt.Sprintf("Using Kafka brokers: %v", cfg.Kafka.Brokers))
		requiredTopics := []string{
			cfg.Kafka.Topics.OrdersPaid,
			cfg.Kafka.Topics.TicketsIssued,
			cfg.Kafka.Topics.TicketsRedeemed,
		}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, requiredTopics); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}

		producer := kafka.NewProducer(cfg.Kafka.Brokers)
		defer producer.Close()
		service.Publisher = producer
		service.Topics = tickets.Topics{
			TicketsIssued:   cfg.Kafka.Topics.TicketsIssued,
			TicketsRedeemed: cfg.Kafka.Topics.TicketsRedeemed,
		}

		consumer = kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.OrdersPaid, cfg.Kafka.GroupID, log)
		defer consumer.Close()
	} else {
		log.Warn("KAFKA", "Kafka disabled, ticket events will not be streamed")
	}

	handler := &ticket_api.Handler{
		TicketService: service,
		Verifier:      shopify.NewVerifier(cfg.Shopify.WebhookSecret),
		Deliveries:    shopify.NewDeliveryCache(redisClient, cfg.Redis.DedupTTL),
		Logger:        log,
	}

	log.Info("HTTP", "Setting up router")
	r := chi.NewRouter()
	handler.RegisterRoutes(r)

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	consumerCtx, cancelConsumer := context.WithCancel(ctx)
	defer cancelConsumer()
	if consumer != nil {
		go consumer.Start(consumerCtx, func(ctx context.Context, order models.OrderPayload) {
			if _, err := service.IssueFromOrder(ctx, order); err != nil {
				log.Error("KAFKA", fmt.Sprintf("Failed to issue tickets for order %s: %v", order.ID, err))
			}
		})
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 Ticket Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	cancelConsumer()

	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server shutdown failed: %v", err))
	} else {
		log.Info("HTTP", "✅ Ticket Service shutdown complete")
	}
}
