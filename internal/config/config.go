package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the exchange.
type Config struct {
	Port          int    `env:"PORT" envDefault:"8080"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	DataDir       string `env:"DATA_DIR" envDefault:"data"`
	MarketFile    string `env:"MARKET_FILE" envDefault:"market.json"`
	SnapshotDepth int    `env:"SNAPSHOT_DEPTH" envDefault:"20"`

	ExpiryInterval  time.Duration `env:"EXPIRY_INTERVAL" envDefault:"1s"`
	VWAPWindow      time.Duration `env:"VWAP_WINDOW" envDefault:"5m"`
	StreamBuffer    int           `env:"STREAM_BUFFER" envDefault:"256"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	IdleTimeout     time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load reads configuration from the environment (and an optional
// .env file), applies defaults, and validates values. It returns an
// error for any invalid value.
func Load() (*Config, error) {
	// A missing .env file is fine; the environment alone is enough.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT: %d, must be in 1..65535", c.Port)
	}
	if !isValidLogLevel(c.LogLevel) {
		return fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", c.LogLevel)
	}
	if c.DataDir == "" {
		return fmt.Errorf("DATA_DIR must not be empty")
	}
	if c.MarketFile == "" {
		return fmt.Errorf("MARKET_FILE must not be empty")
	}
	if c.SnapshotDepth < 1 {
		return fmt.Errorf("invalid SNAPSHOT_DEPTH: %d, must be positive", c.SnapshotDepth)
	}
	if c.StreamBuffer < 1 {
		return fmt.Errorf("invalid STREAM_BUFFER: %d, must be positive", c.StreamBuffer)
	}
	for name, d := range map[string]time.Duration{
		"EXPIRY_INTERVAL":  c.ExpiryInterval,
		"VWAP_WINDOW":      c.VWAPWindow,
		"READ_TIMEOUT":     c.ReadTimeout,
		"WRITE_TIMEOUT":    c.WriteTimeout,
		"IDLE_TIMEOUT":     c.IdleTimeout,
		"SHUTDOWN_TIMEOUT": c.ShutdownTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("invalid %s: %s, must be positive", name, d)
		}
	}
	return nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
