package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/trc20watch/service/transfer"
)

// Store backends accepted by STORE_BACKEND.
const (
	StoreFile     = "file"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// USDTContract is the TRC20 USDT contract on TRON mainnet.
const USDTContract = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Watch configuration
	WatchAddress    string
	TokenContract   string
	TokenSymbol     string
	TokenDecimals   int
	MinNotifyAmount string
	MinRawAmount    *big.Int
	PollInterval    time.Duration
	SendDelay       time.Duration

	// Tronscan configuration
	TronscanBaseURL        string
	TronscanAPIKey         string
	TronscanTimeout        time.Duration
	TronscanCandidatesFile string
	ExplorerURL            string

	// Telegram configuration
	TelegramBotToken  string
	TelegramChannelID string
	TelegramAPIURL    string

	// Dedup store configuration
	StoreBackend string
	StorePath    string
	DatabaseURL  string
	RedisURL     string

	// NATS configuration; empty disables event publishing
	NATSURL string
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":9091")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Watch configuration
	cfg.WatchAddress = strings.TrimSpace(os.Getenv("WATCH_ADDRESS"))
	if cfg.WatchAddress == "" {
		errs = append(errs, fmt.Errorf("WATCH_ADDRESS is required"))
	} else if err := ValidateTronAddress(cfg.WatchAddress); err != nil {
		errs = append(errs, fmt.Errorf("WATCH_ADDRESS: %w", err))
	}

	cfg.TokenContract = getEnvOrDefault("TOKEN_CONTRACT", USDTContract)
	if err := ValidateTronAddress(cfg.TokenContract); err != nil {
		errs = append(errs, fmt.Errorf("TOKEN_CONTRACT: %w", err))
	}
	cfg.TokenSymbol = getEnvOrDefault("TOKEN_SYMBOL", "USDT")

	decimals, err := parseInt("TOKEN_DECIMALS", 6)
	if err != nil {
		errs = append(errs, err)
	} else if decimals < 0 || decimals > 36 {
		errs = append(errs, fmt.Errorf("TOKEN_DECIMALS must be between 0 and 36, got %d", decimals))
	} else {
		cfg.TokenDecimals = decimals
	}

	cfg.MinNotifyAmount = getEnvOrDefault("MIN_NOTIFY_AMOUNT", "1.0")
	if raw, ok := transfer.RawUnits(cfg.MinNotifyAmount, cfg.TokenDecimals); ok {
		cfg.MinRawAmount = raw
	} else {
		errs = append(errs, fmt.Errorf("MIN_NOTIFY_AMOUNT: invalid amount %q", cfg.MinNotifyAmount))
	}

	pollInterval, err := parseDuration("POLL_INTERVAL", "30s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.PollInterval = pollInterval
	}

	sendDelay, err := parseDuration("SEND_DELAY", "1s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.SendDelay = sendDelay
	}

	// Tronscan configuration
	cfg.TronscanBaseURL = strings.TrimRight(getEnvOrDefault("TRONSCAN_BASE_URL", "https://apilist.tronscan.org"), "/")
	cfg.TronscanAPIKey = os.Getenv("TRONSCAN_API_KEY")
	timeout, err := parseDuration("TRONSCAN_TIMEOUT", "15s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.TronscanTimeout = timeout
	}
	cfg.TronscanCandidatesFile = os.Getenv("TRONSCAN_CANDIDATES_FILE")
	cfg.ExplorerURL = strings.TrimRight(getEnvOrDefault("EXPLORER_URL", "https://tronscan.org/#"), "/")

	// Telegram configuration
	cfg.TelegramBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if cfg.TelegramBotToken == "" {
		errs = append(errs, fmt.Errorf("TELEGRAM_BOT_TOKEN is required"))
	}
	cfg.TelegramChannelID = os.Getenv("TELEGRAM_CHANNEL_ID")
	if cfg.TelegramChannelID == "" {
		errs = append(errs, fmt.Errorf("TELEGRAM_CHANNEL_ID is required"))
	}
	cfg.TelegramAPIURL = strings.TrimRight(getEnvOrDefault("TELEGRAM_API_URL", "https://api.telegram.org"), "/")

	// Dedup store configuration
	cfg.StoreBackend = strings.ToLower(getEnvOrDefault("STORE_BACKEND", StoreFile))
	cfg.StorePath = getEnvOrDefault("STORE_PATH", "processed_transactions.json")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.RedisURL = os.Getenv("REDIS_URL")
	switch cfg.StoreBackend {
	case StoreFile:
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			errs = append(errs, fmt.Errorf("DATABASE_URL is required when STORE_BACKEND=postgres"))
		}
	case StoreRedis:
		if cfg.RedisURL == "" {
			errs = append(errs, fmt.Errorf("REDIS_URL is required when STORE_BACKEND=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_BACKEND must be one of file, postgres, redis, got %q", cfg.StoreBackend))
	}

	// NATS configuration
	cfg.NATSURL = os.Getenv("NATS_URL")

	// Validate intervals
	if cfg.PollInterval > 0 && cfg.PollInterval < time.Second {
		errs = append(errs, fmt.Errorf("POLL_INTERVAL must be at least 1 second, got %v", cfg.PollInterval))
	}
	if cfg.SendDelay < 0 {
		errs = append(errs, fmt.Errorf("SEND_DELAY cannot be negative"))
	}

	// Return all validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if err := ValidateTronAddress(c.WatchAddress); err != nil {
		errs = append(errs, fmt.Errorf("WatchAddress: %w", err))
	}

	if c.TokenContract == "" && c.TokenSymbol == "" {
		errs = append(errs, fmt.Errorf("TokenContract or TokenSymbol is required"))
	}

	if c.MinRawAmount == nil || c.MinRawAmount.Sign() < 0 {
		errs = append(errs, fmt.Errorf("MinRawAmount must be a non-negative amount"))
	}

	if c.TelegramBotToken == "" {
		errs = append(errs, fmt.Errorf("TelegramBotToken is required"))
	}

	if c.TelegramChannelID == "" {
		errs = append(errs, fmt.Errorf("TelegramChannelID is required"))
	}

	if c.PollInterval < time.Second {
		errs = append(errs, fmt.Errorf("PollInterval must be at least 1 second"))
	}

	if c.TronscanTimeout <= 0 {
		errs = append(errs, fmt.Errorf("TronscanTimeout must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// WatchConfig builds the immutable watch description. The start of interest is
// unset; the ingestion loop fills it in from the dedup store.
func (c *Config) WatchConfig() transfer.WatchConfig {
	return transfer.WatchConfig{
		WatchedAddress: c.WatchAddress,
		TokenContract:  c.TokenContract,
		TokenSymbol:    c.TokenSymbol,
		Decimals:       c.TokenDecimals,
		MinRawAmount:   new(big.Int).Set(c.MinRawAmount),
		PollInterval:   c.PollInterval,
	}
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
// Bare integers are read as seconds.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}
