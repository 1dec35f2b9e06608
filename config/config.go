package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/yourusername/youearn-api/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type Config struct {
	Port        string
	DatabaseURL string
	BaseURL     string

	JWTSecret     string
	ResetSecret   string
	TokenExpiry   time.Duration
	ResetExpiry   time.Duration
	SecureCookies bool

	RedisURL string

	ResendAPIKey string
	EmailSender  string

	CheckoutAPIURL        string
	CheckoutAPIKey        string
	CheckoutWebhookSecret string

	RateLimitPerMinute int
	RateLimitBurst     int
}

func LoadConfig() (*Config, error) {
	godotenv.Load()

	cfg := &Config{
		Port:        os.Getenv("PORT"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		BaseURL:     getEnvOrDefault("BASE_URL", "http://localhost:3000"),

		JWTSecret:     os.Getenv("JWT_SECRET"),
		ResetSecret:   os.Getenv("FORGOT_PASSWORD_SECRET"),
		TokenExpiry:   getEnvAsDuration("TOKEN_EXPIRY", 24*time.Hour),
		ResetExpiry:   getEnvAsDuration("RESET_TOKEN_EXPIRY", time.Hour),
		SecureCookies: os.Getenv("GIN_MODE") == "release",

		RedisURL: os.Getenv("REDIS_URL"),

		ResendAPIKey: os.Getenv("RESEND_API_KEY"),
		EmailSender:  getEnvOrDefault("EMAIL_SENDER", "YouEarn <onboarding@resend.dev>"),

		CheckoutAPIURL:        getEnvOrDefault("CHECKOUT_API_URL", "https://api.checkout.example.com/v1"),
		CheckoutAPIKey:        os.Getenv("CHECKOUT_API_KEY"),
		CheckoutWebhookSecret: os.Getenv("CHECKOUT_WEBHOOK_SECRET"),

		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 10),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 5),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.ResetSecret == "" {
		// A shared secret would let an access token double as a reset token.
		return nil, fmt.Errorf("FORGOT_PASSWORD_SECRET is required")
	}

	return cfg, nil
}

// SetupLogger configures the process-wide zerolog logger.
func SetupLogger() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("GIN_MODE") != "release" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	if level, err := zerolog.ParseLevel(getEnvOrDefault("LOG_LEVEL", "info")); err == nil {
		zerolog.SetGlobalLevel(level)
	}
}

func InitDB(cfg *Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&models.User{}, &models.ReferralLink{}, &models.Payment{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
