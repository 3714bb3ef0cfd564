package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "portfolio_tracker", cfg.Database.Postgres.Database)
	assert.Equal(t, 100, cfg.Jobs.TopCoinsLimit)
	assert.Equal(t, 500, cfg.Jobs.PriceBatchSize)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
	assert.Equal(t, "https://api.coingecko.com/api/v3", cfg.Market.BaseURL)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("POSTGRES_DB", "tracker_test")
	t.Setenv("JOBS_PRICE_BATCH_SIZE", "250")
	t.Setenv("CACHE_TTL", "5m")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "tracker_test", cfg.Database.Postgres.Database)
	assert.Equal(t, 250, cfg.Jobs.PriceBatchSize)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfigIgnoresInvalidValues(t *testing.T) {
	t.Setenv("JOBS_TOP_COINS_LIMIT", "not-a-number")
	t.Setenv("CACHE_TTL", "not-a-duration")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	// Invalid values fall back to defaults
	assert.Equal(t, 100, cfg.Jobs.TopCoinsLimit)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
}
