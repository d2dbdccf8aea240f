package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	MarketData MarketDataConfig `mapstructure:"market_data"`
	Parsing    ParsingConfig    `mapstructure:"parsing"`
	Consensus  ConsensusConfig  `mapstructure:"consensus"`
	Backtest   BacktestConfig   `mapstructure:"backtest"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"` // "json" or "console"
}

// DatabaseConfig contains PostgreSQL settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	PoolSize int    `mapstructure:"pool_size"`
}

// RedisConfig contains Redis settings for the candle cache
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	CacheTTL int    `mapstructure:"cache_ttl"` // seconds
}

// NATSConfig contains NATS settings for consensus event publishing
type NATSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Prefix  string `mapstructure:"prefix"`
}

// TelegramConfig contains notification bot settings
type TelegramConfig struct {
	Enabled  bool    `mapstructure:"enabled"`
	BotToken string  `mapstructure:"bot_token"`
	ChatIDs  []int64 `mapstructure:"chat_ids"`
}

// MarketDataConfig contains the market-data vendor client settings
type MarketDataConfig struct {
	BaseURL           string   `mapstructure:"base_url"`
	Token             string   `mapstructure:"token"`
	TimeoutMS         int      `mapstructure:"timeout_ms"`
	RequestsPerMinute int      `mapstructure:"requests_per_minute"`
	Tickers           []string `mapstructure:"tickers"`
	SyncIntervalMin   int      `mapstructure:"sync_interval_minutes"`
	LookbackDays      int      `mapstructure:"lookback_days"`
}

// GetSyncInterval returns the candle sync period as a time.Duration
func (c *MarketDataConfig) GetSyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalMin) * time.Minute
}

// GetLookback returns the candle history depth as a time.Duration
func (c *MarketDataConfig) GetLookback() time.Duration {
	return time.Duration(c.LookbackDays) * 24 * time.Hour
}

// ParsingConfig contains message parsing settings
type ParsingConfig struct {
	BatchSize int `mapstructure:"batch_size"`
	Workers   int `mapstructure:"workers"`
}

// ConsensusConfig contains default detection parameters, used when no
// active rule matches a signal
type ConsensusConfig struct {
	WindowMinutes   int  `mapstructure:"window_minutes"`
	MinTraders      int  `mapstructure:"min_traders"`
	StrictConsensus bool `mapstructure:"strict_consensus"`
	CandleLookback  int  `mapstructure:"candle_lookback"`
}

// BacktestConfig contains default simulation parameters
type BacktestConfig struct {
	TakeProfitPct   float64 `mapstructure:"take_profit_pct"`
	StopLossPct     float64 `mapstructure:"stop_loss_pct"`
	HoldingHours    int     `mapstructure:"holding_hours"`
	InitialCapital  float64 `mapstructure:"initial_capital"`
	PositionSizePct float64 `mapstructure:"position_size_pct"`
}

// MonitoringConfig contains monitoring settings
type MonitoringConfig struct {
	PrometheusPort int  `mapstructure:"prometheus_port"`
	EnableMetrics  bool `mapstructure:"enable_metrics"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable overrides
	v.AutomaticEnv()
	v.SetEnvPrefix("TRADECONSENSUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	// Unmarshal into struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "TradeConsensus")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "json")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "tradeconsensus")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.pool_size", 10)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cache_ttl", 300)

	// NATS defaults
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.prefix", "consensus.")

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)

	// Market data defaults
	v.SetDefault("market_data.base_url", "http://localhost:8090")
	v.SetDefault("market_data.timeout_ms", 30000)
	v.SetDefault("market_data.requests_per_minute", 120)
	v.SetDefault("market_data.sync_interval_minutes", 60)
	v.SetDefault("market_data.lookback_days", 7)

	// Parsing defaults
	v.SetDefault("parsing.batch_size", 100)
	v.SetDefault("parsing.workers", 4)

	// Consensus defaults
	v.SetDefault("consensus.window_minutes", 10)
	v.SetDefault("consensus.min_traders", 2)
	v.SetDefault("consensus.strict_consensus", true)
	v.SetDefault("consensus.candle_lookback", 100)

	// Backtest defaults
	v.SetDefault("backtest.take_profit_pct", 5.0)
	v.SetDefault("backtest.stop_loss_pct", 3.0)
	v.SetDefault("backtest.holding_hours", 24)
	v.SetDefault("backtest.initial_capital", 100000.0)
	v.SetDefault("backtest.position_size_pct", 10.0)

	// Monitoring defaults
	v.SetDefault("monitoring.prometheus_port", 9100)
	v.SetDefault("monitoring.enable_metrics", true)
}

// Validate checks configuration invariants at startup
func (c *Config) Validate() error {
	if c.Database.PoolSize <= 0 {
		return fmt.Errorf("database.pool_size must be positive, got %d", c.Database.PoolSize)
	}
	if c.Parsing.BatchSize <= 0 || c.Parsing.BatchSize > 100 {
		return fmt.Errorf("parsing.batch_size must be in (0, 100], got %d", c.Parsing.BatchSize)
	}
	if c.Parsing.Workers <= 0 {
		return fmt.Errorf("parsing.workers must be positive, got %d", c.Parsing.Workers)
	}
	if c.Consensus.WindowMinutes <= 0 {
		return fmt.Errorf("consensus.window_minutes must be positive, got %d", c.Consensus.WindowMinutes)
	}
	if c.Consensus.MinTraders < 2 {
		return fmt.Errorf("consensus.min_traders must be at least 2, got %d", c.Consensus.MinTraders)
	}
	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required when telegram.enabled is true")
	}
	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetCacheTTL returns the candle cache TTL as a time.Duration
func (c *RedisConfig) GetCacheTTL() time.Duration {
	return time.Duration(c.CacheTTL) * time.Second
}

// GetTimeout returns the market-data request timeout as a time.Duration
func (c *MarketDataConfig) GetTimeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}
