package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string

	AppPort string
	AppEnv  string

	StripeSecretKey     string
	StripeWebhookSecret string
	FrontendURL         string

	// Minor currency units (pence).
	FreeShippingThreshold int64
	FlatShippingFee       int64
}

const (
	defaultFreeShippingThreshold = 7500 // free shipping from £75
	defaultFlatShippingFee       = 895  // £8.95
)

func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		DBHost:     os.Getenv("DB_HOST"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBPort:     os.Getenv("DB_PORT"),

		AppPort: os.Getenv("APP_PORT"),
		AppEnv:  os.Getenv("APP_ENV"),

		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		FrontendURL:         os.Getenv("FRONTEND_URL"),

		FreeShippingThreshold: envInt64("FREE_SHIPPING_THRESHOLD", defaultFreeShippingThreshold),
		FlatShippingFee:       envInt64("FLAT_SHIPPING_FEE", defaultFlatShippingFee),
	}

	if cfg.DBHost == "" {
		log.Fatal("Environment variables not loaded properly")
	}

	if cfg.FrontendURL == "" {
		cfg.FrontendURL = "http://localhost:3001"
	}

	return cfg
}

func envInt64(key string, fallback int64) int64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}

	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		log.Printf("invalid %s=%q, using default %d", key, raw, fallback)
		return fallback
	}
	return n
}
