package config

import (
	"testing"
	"time"
)

func defaultTestConfig() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(err)
	}
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	cfg := defaultTestConfig()

	if cfg.API.BaseURL != "https://api.whytheybuy.app" {
		t.Errorf("unexpected default base URL: %s", cfg.API.BaseURL)
	}
	if cfg.Realtime.Path != "/ws/stocks" {
		t.Errorf("unexpected default realtime path: %s", cfg.Realtime.Path)
	}
	if cfg.Realtime.RetryDelay != 3*time.Second {
		t.Errorf("expected 3s retry delay, got %v", cfg.Realtime.RetryDelay)
	}
	if cfg.TTL.LiveQuote != 5*time.Minute {
		t.Errorf("expected 5m live quote TTL, got %v", cfg.TTL.LiveQuote)
	}
	if cfg.TTL.AIContent != 12*time.Hour {
		t.Errorf("expected 12h AI content TTL, got %v", cfg.TTL.AIContent)
	}
	if cfg.Alerts.Enabled {
		t.Error("alerts should be disabled by default")
	}
	if !cfg.Observability.Metrics.Enabled {
		t.Error("metrics should be enabled by default")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		expectErr bool
	}{
		{
			name:      "defaults are valid",
			mutate:    func(c *Config) {},
			expectErr: false,
		},
		{
			name:      "empty base URL",
			mutate:    func(c *Config) { c.API.BaseURL = "" },
			expectErr: true,
		},
		{
			name:      "non-http base URL",
			mutate:    func(c *Config) { c.API.BaseURL = "ftp://api.whytheybuy.app" },
			expectErr: true,
		},
		{
			name:      "zero retry delay",
			mutate:    func(c *Config) { c.Realtime.RetryDelay = 0 },
			expectErr: true,
		},
		{
			name: "alerts enabled without topic",
			mutate: func(c *Config) {
				c.Alerts.Enabled = true
				c.AWS.SNSTopicARN = ""
			},
			expectErr: true,
		},
		{
			name: "alert rule with bad direction",
			mutate: func(c *Config) {
				c.Alerts.Enabled = true
				c.AWS.SNSTopicARN = "arn:aws:sns:us-east-1:000000000000:price-alerts"
				c.Alerts.Rules = []AlertRule{{Symbol: "AAPL", Direction: "sideways", PriceUSD: 100}}
			},
			expectErr: true,
		},
		{
			name: "valid alert rule",
			mutate: func(c *Config) {
				c.Alerts.Enabled = true
				c.AWS.SNSTopicARN = "arn:aws:sns:us-east-1:000000000000:price-alerts"
				c.Alerts.Rules = []AlertRule{{Symbol: "AAPL", Direction: "above", PriceUSD: 250}}
			},
			expectErr: false,
		},
		{
			name:      "invalid log level",
			mutate:    func(c *Config) { c.Observability.Logging.Level = "verbose" },
			expectErr: true,
		},
		{
			name:      "invalid log format",
			mutate:    func(c *Config) { c.Observability.Logging.Format = "xml" },
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultTestConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.expectErr && err == nil {
				t.Error("expected validation error, got nil")
			}
			if !tt.expectErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}
