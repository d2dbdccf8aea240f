package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "TradeConsensus", cfg.App.Name)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 10, cfg.Consensus.WindowMinutes)
	assert.Equal(t, 2, cfg.Consensus.MinTraders)
	assert.True(t, cfg.Consensus.StrictConsensus)
	assert.Equal(t, 100, cfg.Consensus.CandleLookback)
	assert.InDelta(t, 100000.0, cfg.Backtest.InitialCapital, 1e-9)
	assert.False(t, cfg.NATS.Enabled)
	assert.False(t, cfg.Telegram.Enabled)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("TRADECONSENSUS_CONSENSUS_WINDOW_MINUTES", "20")
	t.Setenv("TRADECONSENSUS_DATABASE_HOST", "db.internal")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Consensus.WindowMinutes)
	assert.Equal(t, "db.internal", cfg.Database.Host)
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero pool size", func(c *Config) { c.Database.PoolSize = 0 }},
		{"batch size over cap", func(c *Config) { c.Parsing.BatchSize = 500 }},
		{"zero workers", func(c *Config) { c.Parsing.Workers = 0 }},
		{"zero window", func(c *Config) { c.Consensus.WindowMinutes = 0 }},
		{"single trader", func(c *Config) { c.Consensus.MinTraders = 1 }},
		{"telegram without token", func(c *Config) { c.Telegram.Enabled = true; c.Telegram.BotToken = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestGetDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "secret",
		Database: "tradeconsensus",
		SSLMode:  "disable",
	}

	dsn := cfg.GetDSN()
	assert.Contains(t, dsn, "host=localhost")
	assert.Contains(t, dsn, "port=5432")
	assert.Contains(t, dsn, "dbname=tradeconsensus")
	assert.Contains(t, dsn, "sslmode=disable")
}

func TestDurationHelpers(t *testing.T) {
	redis := RedisConfig{CacheTTL: 300}
	assert.Equal(t, 5*time.Minute, redis.GetCacheTTL())
	assert.Equal(t, "localhost:6379", (&RedisConfig{Host: "localhost", Port: 6379}).GetRedisAddr())

	md := MarketDataConfig{TimeoutMS: 30000, SyncIntervalMin: 60, LookbackDays: 7}
	assert.Equal(t, 30*time.Second, md.GetTimeout())
	assert.Equal(t, time.Hour, md.GetSyncInterval())
	assert.Equal(t, 7*24*time.Hour, md.GetLookback())
}
