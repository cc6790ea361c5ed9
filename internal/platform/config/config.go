package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the market-data daemon
type Config struct {
	API           APIConfig           `mapstructure:"api"`
	Realtime      RealtimeConfig      `mapstructure:"realtime"`
	TTL           TTLConfig           `mapstructure:"ttl"`
	Redis         RedisConfig         `mapstructure:"redis"`
	AWS           AWSConfig           `mapstructure:"aws"`
	Alerts        AlertsConfig        `mapstructure:"alerts"`
	Watchlist     WatchlistConfig     `mapstructure:"watchlist"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	HTTP          HTTPConfig          `mapstructure:"http"`
}

// APIConfig holds backend REST API settings
type APIConfig struct {
	BaseURL   string          `mapstructure:"base_url"`
	AuthToken string          `mapstructure:"auth_token"`
	Timeout   time.Duration   `mapstructure:"timeout"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	Burst             int `mapstructure:"burst"`
}

// RealtimeConfig holds WebSocket price-feed settings.
// The endpoint is derived from api.base_url (http->ws, https->wss) plus Path.
type RealtimeConfig struct {
	Path       string        `mapstructure:"path"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	BufferSize int           `mapstructure:"buffer_size"`
}

// TTLConfig holds the per-resource cache validity windows
type TTLConfig struct {
	LiveQuote          time.Duration `mapstructure:"live_quote"`
	PriceHistory       time.Duration `mapstructure:"price_history"`
	Holdings           time.Duration `mapstructure:"holdings"`
	InvestorProfile    time.Duration `mapstructure:"investor_profile"`
	InvestorChanges    time.Duration `mapstructure:"investor_changes"`
	AIContent          time.Duration `mapstructure:"ai_content"`
	SubscriptionStatus time.Duration `mapstructure:"subscription_status"`
	Watchlist          time.Duration `mapstructure:"watchlist"`
	SearchResults      time.Duration `mapstructure:"search_results"`
}

// RedisConfig holds the optional quote-mirror Redis connection.
// When Address is empty the daemon runs with in-memory caching only.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AWSConfig holds AWS service configuration for alert publishing
type AWSConfig struct {
	Region      string `mapstructure:"region"`
	SNSTopicARN string `mapstructure:"sns_topic_arn"`
}

// AlertsConfig holds price-alert settings
type AlertsConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Cooldown time.Duration `mapstructure:"cooldown"`
	Rules    []AlertRule   `mapstructure:"rules"`
}

// AlertRule fires when a symbol's live price crosses a threshold
type AlertRule struct {
	Symbol    string  `mapstructure:"symbol"`
	Direction string  `mapstructure:"direction"` // above or below
	PriceUSD  float64 `mapstructure:"price_usd"`
}

// WatchlistConfig holds the symbols warmed and subscribed at startup
type WatchlistConfig struct {
	Symbols []string `mapstructure:"symbols"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

// MetricsConfig holds metrics settings
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// TracingConfig holds tracing settings
type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Port int `mapstructure:"port"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("WTB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not fatal if env vars are set
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// API defaults
	v.SetDefault("api.base_url", "https://api.whytheybuy.app")
	v.SetDefault("api.timeout", "10s")
	v.SetDefault("api.rate_limit.requests_per_minute", 300)
	v.SetDefault("api.rate_limit.burst", 20)

	// Realtime defaults
	v.SetDefault("realtime.path", "/ws/stocks")
	v.SetDefault("realtime.retry_delay", "3s")
	v.SetDefault("realtime.buffer_size", 64)

	// TTL defaults mirror the per-resource policy used by the app
	v.SetDefault("ttl.live_quote", "5m")
	v.SetDefault("ttl.price_history", "30m")
	v.SetDefault("ttl.holdings", "1h")
	v.SetDefault("ttl.investor_profile", "6h")
	v.SetDefault("ttl.investor_changes", "30m")
	v.SetDefault("ttl.ai_content", "12h")
	v.SetDefault("ttl.subscription_status", "1h")
	v.SetDefault("ttl.watchlist", "30m")
	v.SetDefault("ttl.search_results", "5m")

	// Redis defaults (disabled unless an address is set)
	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// AWS defaults
	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("aws.sns_topic_arn", "")

	// Alert defaults
	v.SetDefault("alerts.enabled", false)
	v.SetDefault("alerts.cooldown", "15m")

	// Observability defaults
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.endpoint", "localhost:4317")

	// HTTP defaults
	v.SetDefault("http.port", 8080)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api base URL is required")
	}
	if !strings.HasPrefix(c.API.BaseURL, "http://") && !strings.HasPrefix(c.API.BaseURL, "https://") {
		return fmt.Errorf("api base URL must use http or https scheme: %s", c.API.BaseURL)
	}

	if c.Realtime.Path == "" {
		return fmt.Errorf("realtime path is required")
	}
	if c.Realtime.RetryDelay <= 0 {
		return fmt.Errorf("realtime retry delay must be positive")
	}

	if c.Alerts.Enabled {
		if c.AWS.SNSTopicARN == "" {
			return fmt.Errorf("SNS topic ARN is required when alerts are enabled")
		}
		for i, rule := range c.Alerts.Rules {
			if rule.Symbol == "" {
				return fmt.Errorf("alert rule %d: symbol is required", i)
			}
			if rule.Direction != "above" && rule.Direction != "below" {
				return fmt.Errorf("alert rule %d: direction must be above or below, got %q", i, rule.Direction)
			}
			if rule.PriceUSD <= 0 {
				return fmt.Errorf("alert rule %d: price_usd must be positive", i)
			}
		}
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Observability.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Observability.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[c.Observability.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Observability.Logging.Format)
	}

	return nil
}
