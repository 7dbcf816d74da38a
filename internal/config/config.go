package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Shopify     ShopifyConfig
	Diagnostics DiagnosticsConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

type RedisConfig struct {
	Addr string
	// DedupTTL bounds how long a processed webhook delivery id is remembered.
	DedupTTL time.Duration
}

type KafkaConfig struct {
	Brokers []string
	GroupID string
	Topics  TopicConfig
	Enabled bool
}

type TopicConfig struct {
	OrdersPaid      string
	TicketsIssued   string
	TicketsRedeemed string
}

type ShopifyConfig struct {
	// WebhookSecret is the app's shared secret used to verify webhook HMACs.
	// Verification fails closed when it is empty.
	WebhookSecret string
}

type DiagnosticsConfig struct {
	// TestProbes enables the TEST- scanner probe branch in redemption.
	// Off by default; issued tickets always carry the TICKET- prefix, so
	// probes can never collide with real identifiers.
	TestProbes bool
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8080"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			DSN:          getEnv("POSTGRES_DSN", ""),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			DedupTTL: time.Duration(getEnvInt("WEBHOOK_DEDUP_TTL_MINUTES", 60)) * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers: []string{getEnv("KAFKA_BROKERS", "localhost:9092")},
			GroupID: getEnv("KAFKA_GROUP_ID", "ticket-service-group"),
			Enabled: getEnvBool("KAFKA_ENABLED", true),
			Topics: TopicConfig{
				OrdersPaid:      getEnv("KAFKA_TOPIC_ORDERS_PAID", "ticketly.orders.paid"),
				TicketsIssued:   getEnv("KAFKA_TOPIC_TICKETS_ISSUED", "ticketly.tickets.issued"),
				TicketsRedeemed: getEnv("KAFKA_TOPIC_TICKETS_REDEEMED", "ticketly.tickets.redeemed"),
			},
		},
		Shopify: ShopifyConfig{
			WebhookSecret: getEnv("SHOPIFY_WEBHOOK_SECRET", ""),
		},
		Diagnostics: DiagnosticsConfig{
			TestProbes: getEnvBool("ENABLE_TEST_PROBES", false),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
