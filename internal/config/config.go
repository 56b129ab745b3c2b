// Package config assembles the runtime configuration once at process start;
// components receive it by reference and never read the environment ad hoc.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every environment-driven setting the service uses.
type Config struct {
	ListenAddr string
	AppEnv     string

	// FallbackURL is where unknown or unresolvable clicks land.
	FallbackURL string
	// ClientURL is the front-end base for checkout success/cancel pages.
	ClientURL string

	// Object storage: S3 when S3Bucket is set, otherwise a local directory.
	S3Bucket        string
	S3Prefix        string
	DataDir         string
	LedgerObjectKey string

	// Click sink selection: Kafka when brokers are set, else the warehouse
	// when DatabaseURL is set, else the log.
	KafkaBrokers     []string
	KafkaClicksTopic string
	DatabaseURL      string

	// Optional ledger read cache.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	StripeSecretKey     string
	StripeWebhookSecret string
	PriceFlame          string
	PriceInferno        string

	ResendAPIKey string
	MailFrom     string

	AdminJWTSecret string
}

// Load reads configuration from the environment (and a .env file when
// present) and validates the values the service cannot run without.
func Load() (*Config, error) {
	// Dev convenience; a missing .env is fine.
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("LISTEN_ADDR", ":8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("FALLBACK_URL", "https://cyberhound.tech")
	v.SetDefault("CLIENT_URL", "http://localhost:5173")
	v.SetDefault("DATA_DIR", "./data")
	v.SetDefault("LEDGER_OBJECT_KEY", "latest_deals.json")
	v.SetDefault("KAFKA_CLICKS_TOPIC", "cyberhound.clicks")
	v.SetDefault("CACHE_TTL", "30s")
	v.SetDefault("MAIL_FROM", "Cyberhound <intel@cyberhound.tech>")

	cfg := &Config{
		ListenAddr:       v.GetString("LISTEN_ADDR"),
		AppEnv:           v.GetString("APP_ENV"),
		FallbackURL:      v.GetString("FALLBACK_URL"),
		ClientURL:        v.GetString("CLIENT_URL"),
		S3Bucket:         v.GetString("S3_BUCKET"),
		S3Prefix:         v.GetString("S3_PREFIX"),
		DataDir:          v.GetString("DATA_DIR"),
		LedgerObjectKey:  v.GetString("LEDGER_OBJECT_KEY"),
		KafkaBrokers:     splitList(v.GetString("KAFKA_BROKERS")),
		KafkaClicksTopic: v.GetString("KAFKA_CLICKS_TOPIC"),
		DatabaseURL:      v.GetString("DATABASE_URL"),
		RedisAddr:        v.GetString("REDIS_ADDR"),
		RedisPassword:    v.GetString("REDIS_PASSWORD"),
		RedisDB:          v.GetInt("REDIS_DB"),
		CacheTTL:         v.GetDuration("CACHE_TTL"),

		StripeSecretKey:     v.GetString("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: v.GetString("STRIPE_WEBHOOK_SECRET"),
		PriceFlame:          v.GetString("PRICE_ID_FLAME"),
		PriceInferno:        v.GetString("PRICE_ID_INFERNO"),

		ResendAPIKey: v.GetString("RESEND_API_KEY"),
		MailFrom:     v.GetString("MAIL_FROM"),

		AdminJWTSecret: v.GetString("ADMIN_JWT_SECRET"),
	}

	if cfg.StripeSecretKey == "" {
		return nil, fmt.Errorf("STRIPE_SECRET_KEY required")
	}
	if cfg.StripeWebhookSecret == "" {
		return nil, fmt.Errorf("STRIPE_WEBHOOK_SECRET required")
	}
	if cfg.PriceFlame == "" || cfg.PriceInferno == "" {
		return nil, fmt.Errorf("PRICE_ID_FLAME and PRICE_ID_INFERNO required")
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
