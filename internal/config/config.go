package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/database"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/money"
	"github.com/shopspring/decimal"
)

type CartBackend string

const (
	CartBackendRedis  CartBackend = "redis"
	CartBackendMongo  CartBackend = "mongo"
	CartBackendMemory CartBackend = "memory"
)

type Config struct {
	Env                string
	LogLevel           string
	HTTPPort           string
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	MaxRequestBodySize int64

	CartBackend  CartBackend
	CartTTL      time.Duration
	RedisAddr    string
	RedisPass    string
	MongoURI     string
	MongoDBName  string
	CatalogDB    string
	CatalogMigr  string
	Postgres     database.Credentials
	KafkaBrokers []string

	VATRate            decimal.Decimal
	DefaultDeliveryFee money.Amount
	ServiceableZips    string
	MaxDeliveryKm      float64
	Timezone           *time.Location

	// CollaboratorBaseURL switches address, coupon and order calls to HTTP.
	CollaboratorBaseURL string
	CollaboratorTimeout time.Duration
	MaxSubmitAttempts   int
	IdempotencyWindow   time.Duration

	SendGridAPIKey string
	MailFrom       string
	MailFromName   string
}

// LoadDotEnv reads .env outside production. A missing file is not an error.
func LoadDotEnv() {
	if os.Getenv("ENV") == "production" {
		return
	}
	_ = godotenv.Load()
}

func Load() (*Config, error) {
	cfg := &Config{
		Env:                getEnv("ENV", "development"),
		LogLevel:           os.Getenv("LOG_LEVEL"),
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		MaxRequestBodySize: 1 << 20, // 1MB

		CartBackend: CartBackend(strings.ToLower(getEnv("CART_BACKEND", string(CartBackendRedis)))),
		RedisAddr:   getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPass:   getEnvFromFile("REDIS_PASSWORD_FILE", "REDIS_PASSWORD", ""),
		MongoURI:    getEnvFromFile("MONGO_URI_FILE", "MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName: getEnv("MONGO_DB_NAME", "letroisquarts"),
		CatalogDB:   getEnv("CATALOG_DB_PATH", "./menu.db"),
		CatalogMigr: getEnv("CATALOG_MIGRATIONS_PATH", "./internal/catalog/migrations"),
		Postgres: database.Credentials{
			Host:              getEnv("DB_HOST", "localhost"),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnvFromFile("DB_PASSWORD_FILE", "DB_PASSWORD", "postgres"),
			DBName:            getEnv("DB_NAME", "letroisquarts"),
			MigrationsDirPath: getEnv("ORDERS_MIGRATIONS_PATH", "./migrations/postgres"),
		},
		KafkaBrokers: splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),

		ServiceableZips:     getEnv("SERVICEABLE_ZIPS", "69001:1.2,69002:1.8,69003:2.9,69004:2.1,69005:2.6,69006:2.4,69007:3.4"),
		CollaboratorBaseURL: strings.TrimSpace(os.Getenv("COLLABORATOR_BASE_URL")),

		SendGridAPIKey: getEnvFromFile("SENDGRID_API_KEY_FILE", "SENDGRID_API_KEY", ""),
		MailFrom:       getEnv("MAIL_FROM", "commandes@letroisquarts.fr"),
		MailFromName:   getEnv("MAIL_FROM_NAME", "Le Trois Quarts"),
	}

	var err error
	if cfg.Postgres.Port, err = strconv.Atoi(getEnv("DB_PORT", "5432")); err != nil {
		return nil, fmt.Errorf("DB_PORT: %w", err)
	}
	if cfg.RequestTimeout, err = getDuration("REQUEST_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = getDuration("SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.CartTTL, err = getDuration("CART_TTL", 7*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.CollaboratorTimeout, err = getDuration("COLLABORATOR_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.IdempotencyWindow, err = getDuration("IDEMPOTENCY_WINDOW", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.MaxSubmitAttempts, err = strconv.Atoi(getEnv("MAX_SUBMIT_ATTEMPTS", "3")); err != nil || cfg.MaxSubmitAttempts < 1 {
		return nil, fmt.Errorf("MAX_SUBMIT_ATTEMPTS must be a positive integer")
	}
	if cfg.MaxDeliveryKm, err = strconv.ParseFloat(getEnv("MAX_DELIVERY_KM", "5"), 64); err != nil {
		return nil, fmt.Errorf("MAX_DELIVERY_KM: %w", err)
	}
	if cfg.VATRate, err = decimal.NewFromString(getEnv("VAT_RATE", "0.10")); err != nil {
		return nil, fmt.Errorf("VAT_RATE: %w", err)
	}
	if cfg.VATRate.IsNegative() {
		return nil, fmt.Errorf("VAT_RATE cannot be negative")
	}
	if cfg.DefaultDeliveryFee, err = money.Parse(getEnv("DEFAULT_DELIVERY_FEE", "3.00")); err != nil {
		return nil, fmt.Errorf("DEFAULT_DELIVERY_FEE: %w", err)
	}
	if cfg.Timezone, err = time.LoadLocation(getEnv("RESTAURANT_TZ", "Europe/Paris")); err != nil {
		return nil, fmt.Errorf("RESTAURANT_TZ: %w", err)
	}

	switch cfg.CartBackend {
	case CartBackendRedis, CartBackendMongo, CartBackendMemory:
	default:
		return nil, fmt.Errorf("CART_BACKEND must be redis, mongo or memory, got %q", cfg.CartBackend)
	}

	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvFromFile prefers the content of the file named by fileKey, for
// secrets mounted by the orchestrator.
func getEnvFromFile(fileKey, envKey, defaultValue string) string {
	if filePath := os.Getenv(fileKey); filePath != "" {
		if content, err := os.ReadFile(filePath); err == nil {
			return strings.TrimSpace(string(content))
		}
	}
	return getEnv(envKey, defaultValue)
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
