package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the application
type Config struct {
	Port           string
	AllowedOrigins []string
	LogLevel       string
	Environment    string
	DatabaseURL    string
	RedisURL       string
	AdminJWTSecret string

	// PublicSiteURL is the base under which approved nominees get their
	// live URL.
	PublicSiteURL string

	// External sync targets
	HubSpotBaseURL   string
	HubSpotToken     string
	HubSpotEnabled   bool
	MailchimpBaseURL string
	MailchimpToken   string
	MailchimpListID  string
	MailchimpEnabled bool

	// Outbox dispatcher tuning
	DispatcherInterval  time.Duration
	DispatcherBatchSize int
	SyncTimeout         time.Duration
	MaxSyncAttempts     int
	BackoffBase         time.Duration
	BackoffCap          time.Duration
	StaleClaimAfter     time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: parseOrigins(getEnv("ALLOWED_ORIGINS", "http://localhost:5173")),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		Environment:    getEnv("ENVIRONMENT", "production"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		RedisURL:       getEnv("REDIS_URL", ""),
		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),
		PublicSiteURL:  getEnv("PUBLIC_SITE_URL", "https://awards.example.com"),

		HubSpotBaseURL:   getEnv("HUBSPOT_BASE_URL", "https://api.hubapi.com"),
		HubSpotToken:     getEnv("HUBSPOT_TOKEN", ""),
		HubSpotEnabled:   getBoolEnv("HUBSPOT_ENABLED", true),
		MailchimpBaseURL: getEnv("MAILCHIMP_BASE_URL", "https://us1.api.mailchimp.com"),
		MailchimpToken:   getEnv("MAILCHIMP_TOKEN", ""),
		MailchimpListID:  getEnv("MAILCHIMP_LIST_ID", ""),
		MailchimpEnabled: getBoolEnv("MAILCHIMP_ENABLED", true),

		DispatcherInterval:  getDurationEnv("DISPATCHER_INTERVAL", 30*time.Second),
		DispatcherBatchSize: getIntEnv("DISPATCHER_BATCH_SIZE", 25),
		SyncTimeout:         getDurationEnv("SYNC_TIMEOUT", 15*time.Second),
		MaxSyncAttempts:     getIntEnv("MAX_SYNC_ATTEMPTS", 10),
		BackoffBase:         getDurationEnv("BACKOFF_BASE", 30*time.Second),
		BackoffCap:          getDurationEnv("BACKOFF_CAP", 1*time.Hour),
		StaleClaimAfter:     getDurationEnv("STALE_CLAIM_AFTER", 10*time.Minute),
	}, nil
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getBoolEnv gets a boolean environment variable with a fallback value
func getBoolEnv(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

// getIntEnv gets an integer environment variable with a fallback value
func getIntEnv(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

// getDurationEnv gets a duration environment variable with a fallback value
func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

// parseOrigins parses comma-separated origins into a slice
func parseOrigins(origins string) []string {
	if origins == "" {
		return []string{}
	}

	parts := strings.Split(origins, ",")
	result := make([]string, 0, len(parts))

	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
