// Package config loads runtime configuration from environment variables.
// A .env file in the working directory is read first when present.
package config

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"artx-auction/utils"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// Storage drivers accepted in DB_DRIVER
const (
	DriverMemory = "memory"
	DriverMySQL  = "mysql"
)

// DevJWTSecret signs tokens when JWT_SECRET is unset. It is accepted only in debug mode.
const DevJWTSecret = "dev-secret"

// Config holds all runtime configuration values
type Config struct {
	Port     string // HTTP address, e.g. ":8080"
	LogLevel string

	JWTSecret string
	TokenTTL  time.Duration

	SweepInterval    time.Duration // lifecycle scheduler tick
	DispatchInterval time.Duration // notification outbox tick
	TxTimeout        time.Duration // bound on one transaction attempt
	TxMaxRetries     int

	CommissionRate decimal.Decimal
	AuctionFee     decimal.Decimal

	DBDriver string
	DBUser   string
	DBPass   string
	DBHost   string
	DBPort   string
	DBName   string

	RabbitMQURL string // empty disables the AMQP publisher

	RedisAddr     string // empty disables the redis claimer
	RedisPassword string
	RedisDB       int

	SeedDemoData bool
}

// Load reads the environment, applying defaults for anything unset
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		utils.Warn("config: failed to read .env", map[string]any{"error": err.Error()})
	}

	cfg := Config{
		Port:     envPort("PORT", ":8080"),
		LogLevel: envStr("LOG_LEVEL", "info"),

		JWTSecret: envStr("JWT_SECRET", DevJWTSecret),
		TokenTTL:  envDur("TOKEN_TTL", 24*time.Hour),

		SweepInterval:    envDur("SWEEP_INTERVAL", 5*time.Second),
		DispatchInterval: envDur("DISPATCH_INTERVAL", time.Second),
		TxTimeout:        envDur("TX_TIMEOUT", 5*time.Second),
		TxMaxRetries:     envInt("TX_MAX_RETRIES", 8),

		CommissionRate: envDecimal("COMMISSION_RATE", decimal.RequireFromString("0.15")),
		AuctionFee:     envDecimal("AUCTION_FEE", decimal.NewFromInt(10)),

		DBDriver: strings.ToLower(envStr("DB_DRIVER", DriverMemory)),
		DBUser:   envStr("DB_USER", "root"),
		DBPass:   os.Getenv("DB_PASS"),
		DBHost:   envStr("DB_HOST", "127.0.0.1"),
		DBPort:   envStr("DB_PORT", "3306"),
		DBName:   envStr("DB_NAME", "artx_auction"),

		RabbitMQURL: os.Getenv("RABBITMQ_URL"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       envInt("REDIS_DB", 0),

		SeedDemoData: envBool("SEED_DEMO_DATA", true),
	}

	if cfg.CommissionRate.IsNegative() || cfg.CommissionRate.GreaterThan(decimal.NewFromInt(1)) {
		utils.Warn("config: COMMISSION_RATE outside [0,1], using 0.15", map[string]any{"value": cfg.CommissionRate.String()})
		cfg.CommissionRate = decimal.RequireFromString("0.15")
	}
	if cfg.AuctionFee.IsNegative() {
		cfg.AuctionFee = decimal.Zero
	}
	if cfg.TxMaxRetries < 0 {
		cfg.TxMaxRetries = 0
	}
	if cfg.JWTSecret == DevJWTSecret {
		utils.Warn("config: JWT_SECRET not set, using the development secret", nil)
	}
	return cfg
}

// Validate rejects settings that are unsafe in the given gin mode
func (c Config) Validate(mode string) error {
	if c.JWTSecret == DevJWTSecret && mode != "debug" {
		return errors.New("config: JWT_SECRET must be set outside debug mode")
	}
	return nil
}

// NewRedisClient connects to cfg.RedisAddr. It returns nil when no address is
// configured or the server does not answer a ping, and callers fall back to
// in-process coordination.
func NewRedisClient(cfg Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		utils.Warn("config: redis unreachable", map[string]any{"addr": cfg.RedisAddr, "error": err.Error()})
		_ = client.Close()
		return nil
	}
	return client
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

// envPort accepts both "8080" and ":8080"
func envPort(k, d string) string {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if strings.HasPrefix(v, ":") {
		return v
	}
	return ":" + v
}

func envBool(k string, d bool) bool {
	v, err := strconv.ParseBool(os.Getenv(k))
	if err != nil {
		return d
	}
	return v
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil && dur > 0 {
		return dur
	}
	return d
}

func envDecimal(k string, d decimal.Decimal) decimal.Decimal {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := decimal.NewFromString(v); err == nil {
		return n
	}
	return d
}
