package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Cache     CacheConfig     `mapstructure:"cache"`
	PriceFeed PriceFeedConfig `mapstructure:"pricefeed"`
	Quote     QuoteConfig     `mapstructure:"quote"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// CacheConfig tunes the read-through cache layer.
type CacheConfig struct {
	DefaultTTL       time.Duration `mapstructure:"default_ttl"`
	MaxValueBytes    int           `mapstructure:"max_value_bytes"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	CooldownPeriod   time.Duration `mapstructure:"cooldown_period"`
}

// PriceFeedConfig tunes the streaming subscription and polling fallback.
type PriceFeedConfig struct {
	StreamURL        string        `mapstructure:"stream_url"`
	PollURL          string        `mapstructure:"poll_url"`
	Assets           []string      `mapstructure:"assets"`
	ReconnectBackoff time.Duration `mapstructure:"reconnect_backoff"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	Freshness        time.Duration `mapstructure:"freshness"`
	FetchTimeout     time.Duration `mapstructure:"fetch_timeout"`
	FetchAttempts    int           `mapstructure:"fetch_attempts"`
	BreakerThreshold int           `mapstructure:"breaker_threshold"`
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown"`
	DepthLevels      int           `mapstructure:"depth_levels"`
	LevelSize        string        `mapstructure:"level_size"`       // base units per synthetic level, decimal string
	LevelSpreadBps   int           `mapstructure:"level_spread_bps"` // price step per level away from mid
}

// FeeTier maps a USD-notional ceiling to a fee rate. Tiers are evaluated in
// order; a zero ceiling means "everything above the previous tier".
type FeeTier struct {
	NotionalCeilingUSD string `mapstructure:"notional_ceiling_usd"`
	Rate               string `mapstructure:"rate"`
}

// QuoteConfig holds quote generation and execution business constants.
// Per the pricing redesign these are deployment configuration, not code.
type QuoteConfig struct {
	TTL                time.Duration `mapstructure:"ttl"`
	MinNotionalUSD     string        `mapstructure:"min_notional_usd"`
	RateDriftTolerance string        `mapstructure:"rate_drift_tolerance"` // fraction, e.g. "0.01"
	FeeTiers           []FeeTier     `mapstructure:"fee_tiers"`
	BreakerThreshold   int           `mapstructure:"breaker_threshold"`
	BreakerCooldown    time.Duration `mapstructure:"breaker_cooldown"`
}

// LedgerConfig tunes optimistic-concurrency retry on balance writes.
type LedgerConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	RetryBaseDelay  time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay   time.Duration `mapstructure:"retry_max_delay"`
	SupportedAssets []string      `mapstructure:"supported_assets"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: XLG_ (Exchange Ledger).
// Nested keys use underscore: XLG_DATABASE_HOST, XLG_QUOTE_TTL, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "exchange_ledger")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("cache.default_ttl", "5m")
	v.SetDefault("cache.max_value_bytes", 512*1024)
	v.SetDefault("cache.failure_threshold", 5)
	v.SetDefault("cache.cooldown_period", "30s")
	v.SetDefault("pricefeed.stream_url", "wss://localhost:9443/stream")
	v.SetDefault("pricefeed.poll_url", "https://localhost:9443/prices")
	v.SetDefault("pricefeed.assets", []string{"BTC", "ETH", "USDT", "USD", "EUR"})
	v.SetDefault("pricefeed.reconnect_backoff", "5s")
	v.SetDefault("pricefeed.poll_interval", "10s")
	v.SetDefault("pricefeed.freshness", "30s")
	v.SetDefault("pricefeed.fetch_timeout", "2s")
	v.SetDefault("pricefeed.fetch_attempts", 3)
	v.SetDefault("pricefeed.breaker_threshold", 5)
	v.SetDefault("pricefeed.breaker_cooldown", "30s")
	v.SetDefault("pricefeed.depth_levels", 10)
	v.SetDefault("pricefeed.level_size", "2.5")
	v.SetDefault("pricefeed.level_spread_bps", 5)
	v.SetDefault("quote.ttl", "30s")
	v.SetDefault("quote.min_notional_usd", "1.00")
	v.SetDefault("quote.rate_drift_tolerance", "0.01")
	v.SetDefault("quote.fee_tiers", []map[string]any{
		{"notional_ceiling_usd": "1000", "rate": "0.010"},
		{"notional_ceiling_usd": "10000", "rate": "0.008"},
		{"notional_ceiling_usd": "0", "rate": "0.005"},
	})
	v.SetDefault("quote.breaker_threshold", 5)
	v.SetDefault("quote.breaker_cooldown", "30s")
	v.SetDefault("ledger.max_attempts", 3)
	v.SetDefault("ledger.retry_base_delay", "20ms")
	v.SetDefault("ledger.retry_max_delay", "200ms")
	v.SetDefault("ledger.supported_assets", []string{"BTC", "ETH", "USDT", "USD", "EUR"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: XLG_DATABASE_HOST -> database.host
	v.SetEnvPrefix("XLG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file is optional; env vars can supply everything.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
