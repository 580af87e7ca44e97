package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig       `yaml:"server"`
	Database    DatabaseConfig     `yaml:"database"`
	Poller      PollerConfig       `yaml:"poller"`
	Connections []ConnectionConfig `yaml:"connections"`
	Logging     LoggingConfig      `yaml:"logging"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type PollerConfig struct {
	HeartbeatInterval  time.Duration `yaml:"heartbeat_interval"`
	HeartbeatsPerPoll  int           `yaml:"heartbeats_per_poll"`
	TicketExpiry       time.Duration `yaml:"ticket_expiry"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
	Simulate           bool          `yaml:"simulate"`
	QuotaIntegration   bool          `yaml:"quota_integration"`
	QuotaEndpoint      string        `yaml:"quota_endpoint"`
	GrayscaleFiltering bool          `yaml:"grayscale_filtering"`
	PageCost           float64       `yaml:"page_cost"`
}

// ConnectionConfig describes one supplier account. A connection is built
// from this block at startup and stays immutable until shutdown.
type ConnectionConfig struct {
	Account          string           `yaml:"account"`
	Endpoint         string           `yaml:"endpoint"`
	ClusterNode      string           `yaml:"cluster_node"`
	ProxyEndpoint    string           `yaml:"proxy_endpoint"`
	Printers         PrinterMapConfig `yaml:"printers"`
	ChargeToStudents bool             `yaml:"charge_to_students"`
	HoldPrinters     []string         `yaml:"hold_printers"`
	TicketPrinters   []string         `yaml:"ticket_printers"`
}

// PrinterMapConfig is the per-mode printer name mapping. Blank entries fall
// back at dispatch time; at least the plain printer must be configured.
type PrinterMapConfig struct {
	Plain           string `yaml:"plain"`
	Duplex          string `yaml:"duplex"`
	Grayscale       string `yaml:"grayscale"`
	GrayscaleDuplex string `yaml:"grayscale_duplex"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "./data/relay.db",
		},
		Poller: PollerConfig{
			HeartbeatInterval: 10 * time.Second,
			HeartbeatsPerPoll: 3,
			TicketExpiry:      4 * time.Hour,
			RequestTimeout:    15 * time.Second,
			PageCost:          0.05,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func Load(configPath string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

func LoadFromEnv() *Config {
	cfg := defaults()

	if v := os.Getenv("RELAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("RELAY_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("RELAY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("RELAY_SIMULATE"); v != "" {
		cfg.Poller.Simulate = v == "1" || v == "true"
	}

	return cfg
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	if c.Poller.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval must be positive")
	}

	if c.Poller.HeartbeatsPerPoll < 1 {
		return fmt.Errorf("heartbeats per poll must be at least 1")
	}

	if c.Poller.TicketExpiry < 0 {
		return fmt.Errorf("ticket expiry must be non-negative")
	}

	if c.Poller.PageCost < 0 {
		return fmt.Errorf("page cost must be non-negative")
	}

	if c.Poller.QuotaIntegration && c.Poller.QuotaEndpoint == "" && !c.Poller.Simulate {
		return fmt.Errorf("quota endpoint is required when quota integration is enabled")
	}

	for i, conn := range c.Connections {
		if conn.Account == "" {
			return fmt.Errorf("connection %d: account is required", i)
		}
		if conn.Endpoint == "" && !c.Poller.Simulate {
			return fmt.Errorf("connection %s: endpoint is required", conn.Account)
		}
		if conn.Printers.Plain == "" {
			return fmt.Errorf("connection %s: plain printer is required", conn.Account)
		}
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	return nil
}
