// Package config loads application configuration from environment variables,
// with optional .env file support for local development.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Indicator window
	MovingAverageDuration time.Duration
	ObservationFrequency  time.Duration

	// Price feeds
	AssetFeedURL        string
	AssetFeedDecimals   int
	ReserveFeedURL      string
	ReserveFeedDecimals int

	// Controller
	EpochDuration   time.Duration
	BidCapacity     float64
	AskCapacity     float64
	MaxBandMultiple float64
	MinPctThreshold float64
	ReserveAsset    string
	SelfIdentity    string

	// Venue
	MinOrderInterval time.Duration

	// Owner auth
	OwnerTOTPSecret string

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	JournalPath   string
	MetricsAddr   string
	AdminAddr     string
	WebhookURL    string
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is merged in if present.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		log.Println("[config] loaded .env")
	}

	return &Config{
		MovingAverageDuration: durationEnv("MOVING_AVERAGE_DURATION", 30*24*time.Hour),
		ObservationFrequency:  durationEnv("OBSERVATION_FREQUENCY", 8*time.Hour),

		AssetFeedURL:        mustEnv("ASSET_FEED_URL"),
		AssetFeedDecimals:   intEnv("ASSET_FEED_DECIMALS", 8),
		ReserveFeedURL:      mustEnv("RESERVE_FEED_URL"),
		ReserveFeedDecimals: intEnv("RESERVE_FEED_DECIMALS", 8),

		EpochDuration:   durationEnv("EPOCH_DURATION", 24*time.Hour),
		BidCapacity:     floatEnv("BID_CAPACITY", 0),
		AskCapacity:     floatEnv("ASK_CAPACITY", 0),
		MaxBandMultiple: floatEnv("MAX_BAND_MULTIPLE", 2),
		MinPctThreshold: floatEnv("MIN_PCT_THRESHOLD", 0.05),
		ReserveAsset:    getEnv("RESERVE_ASSET", "RESERVE"),
		SelfIdentity:    getEnv("SELF_IDENTITY", "rebalancer"),

		MinOrderInterval: durationEnv("MIN_ORDER_INTERVAL", time.Hour),

		OwnerTOTPSecret: mustEnv("OWNER_TOTP_SECRET"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		JournalPath:   getEnv("JOURNAL_PATH", "data/decisions.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		AdminAddr:     getEnv("ADMIN_ADDR", ":9091"),
		WebhookURL:    getEnv("WEBHOOK_URL", ""),
	}
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func intEnv(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func floatEnv(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %g", key, v, fallback)
		return fallback
	}
	return f
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
