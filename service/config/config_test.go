package config

import (
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWatchAddress = "TCKV8GCJcEzQWYi8c3yFGPvMa1UkUDYZ57"

func setRequiredEnv() {
	os.Setenv("WATCH_ADDRESS", testWatchAddress)
	os.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	os.Setenv("TELEGRAM_CHANNEL_ID", "-1001234567890")
}

func TestLoad_ValidConfig(t *testing.T) {
	setRequiredEnv()
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, testWatchAddress, cfg.WatchAddress)
	assert.Equal(t, USDTContract, cfg.TokenContract) // Default
	assert.Equal(t, "USDT", cfg.TokenSymbol)
	assert.Equal(t, 6, cfg.TokenDecimals)
	assert.Equal(t, big.NewInt(1_000_000), cfg.MinRawAmount)
	assert.Equal(t, 30*time.Second, cfg.PollInterval)
	assert.Equal(t, time.Second, cfg.SendDelay)
	assert.Equal(t, 15*time.Second, cfg.TronscanTimeout)
	assert.Equal(t, "https://apilist.tronscan.org", cfg.TronscanBaseURL)
	assert.Equal(t, "https://api.telegram.org", cfg.TelegramAPIURL)
	assert.Equal(t, StoreFile, cfg.StoreBackend)
	assert.Equal(t, "processed_transactions.json", cfg.StorePath)
	assert.Equal(t, ":9091", cfg.ServerAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.NATSURL)
}

func TestLoad_MissingRequired(t *testing.T) {
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "WATCH_ADDRESS is required")
	assert.Contains(t, err.Error(), "TELEGRAM_BOT_TOKEN is required")
	assert.Contains(t, err.Error(), "TELEGRAM_CHANNEL_ID is required")
}

func TestLoad_InvalidWatchAddress(t *testing.T) {
	setRequiredEnv()
	os.Setenv("WATCH_ADDRESS", "TCKV8GCJcEzQWYi8c3yFGPvMa1UkUDYZ58")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "WATCH_ADDRESS")
	assert.Contains(t, err.Error(), "checksum")
}

func TestLoad_InvalidPollInterval(t *testing.T) {
	setRequiredEnv()
	os.Setenv("POLL_INTERVAL", "invalid")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestLoad_BareSecondsInterval(t *testing.T) {
	setRequiredEnv()
	os.Setenv("POLL_INTERVAL", "45")
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.PollInterval)
}

func TestLoad_InvalidMinAmount(t *testing.T) {
	setRequiredEnv()
	os.Setenv("MIN_NOTIFY_AMOUNT", "-3")
	defer cleanupEnv()

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MIN_NOTIFY_AMOUNT")
}

func TestLoad_StoreBackends(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "postgres without url",
			env:     map[string]string{"STORE_BACKEND": "postgres"},
			wantErr: "DATABASE_URL is required",
		},
		{
			name: "postgres with url",
			env:  map[string]string{"STORE_BACKEND": "postgres", "DATABASE_URL": "postgres://localhost/test"},
		},
		{
			name:    "redis without url",
			env:     map[string]string{"STORE_BACKEND": "redis"},
			wantErr: "REDIS_URL is required",
		},
		{
			name: "redis with url",
			env:  map[string]string{"STORE_BACKEND": "REDIS", "REDIS_URL": "redis://localhost:6379/0"},
		},
		{
			name:    "unknown backend",
			env:     map[string]string{"STORE_BACKEND": "etcd"},
			wantErr: "STORE_BACKEND must be one of",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv()
			for k, v := range tt.env {
				os.Setenv(k, v)
			}
			defer cleanupEnv()

			cfg, err := Load()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, cfg.StoreBackend)
		})
	}
}

func TestLoad_CustomValues(t *testing.T) {
	setRequiredEnv()
	os.Setenv("TOKEN_SYMBOL", "USDC")
	os.Setenv("TOKEN_DECIMALS", "2")
	os.Setenv("MIN_NOTIFY_AMOUNT", "5.5")
	os.Setenv("POLL_INTERVAL", "1m")
	os.Setenv("SEND_DELAY", "0s")
	os.Setenv("TRONSCAN_BASE_URL", "http://localhost:8081/")
	os.Setenv("TRONSCAN_API_KEY", "secret-key")
	os.Setenv("NATS_URL", "nats://localhost:4222")
	os.Setenv("SERVER_ADDR", ":9090")
	os.Setenv("LOG_LEVEL", "debug")
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "USDC", cfg.TokenSymbol)
	assert.Equal(t, 2, cfg.TokenDecimals)
	assert.Equal(t, big.NewInt(550), cfg.MinRawAmount)
	assert.Equal(t, time.Minute, cfg.PollInterval)
	assert.Equal(t, time.Duration(0), cfg.SendDelay)
	assert.Equal(t, "http://localhost:8081", cfg.TronscanBaseURL)
	assert.Equal(t, "secret-key", cfg.TronscanAPIKey)
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	assert.Equal(t, ":9090", cfg.ServerAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestWatchConfig(t *testing.T) {
	setRequiredEnv()
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)

	w := cfg.WatchConfig()
	assert.Equal(t, testWatchAddress, w.WatchedAddress)
	assert.Equal(t, USDTContract, w.TokenContract)
	assert.Equal(t, 6, w.Decimals)
	assert.Equal(t, big.NewInt(1_000_000), w.MinRawAmount)
	assert.Equal(t, int64(0), w.StartOfInterestMs)

	// The watch config owns its own copy of the threshold.
	w.MinRawAmount.SetInt64(1)
	assert.Equal(t, big.NewInt(1_000_000), cfg.MinRawAmount)
}

func validConfig() *Config {
	return &Config{
		WatchAddress:      testWatchAddress,
		TokenContract:     USDTContract,
		TokenSymbol:       "USDT",
		TokenDecimals:     6,
		MinRawAmount:      big.NewInt(1_000_000),
		PollInterval:      30 * time.Second,
		TronscanTimeout:   15 * time.Second,
		TelegramBotToken:  "123:abc",
		TelegramChannelID: "-100",
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_MissingBotToken(t *testing.T) {
	cfg := validConfig()
	cfg.TelegramBotToken = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TelegramBotToken is required")
}

func TestValidate_TooShortInterval(t *testing.T) {
	cfg := validConfig()
	cfg.PollInterval = 500 * time.Millisecond

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be at least 1 second")
}

// cleanupEnv clears all environment variables used in tests
func cleanupEnv() {
	for _, key := range []string{
		"WATCH_ADDRESS", "TOKEN_CONTRACT", "TOKEN_SYMBOL", "TOKEN_DECIMALS",
		"MIN_NOTIFY_AMOUNT", "POLL_INTERVAL", "SEND_DELAY",
		"TRONSCAN_BASE_URL", "TRONSCAN_API_KEY", "TRONSCAN_TIMEOUT", "TRONSCAN_CANDIDATES_FILE",
		"EXPLORER_URL", "TELEGRAM_BOT_TOKEN", "TELEGRAM_CHANNEL_ID", "TELEGRAM_API_URL",
		"STORE_BACKEND", "STORE_PATH", "DATABASE_URL", "REDIS_URL", "NATS_URL",
		"SERVER_ADDR", "LOG_LEVEL",
	} {
		os.Unsetenv(key)
	}
}
