package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents runtime configuration for the service. It is loaded once
// by main and passed down by value reference; no component mutates it.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
	Backends    map[string]BackendConfig  `json:"backends"`
	Chat        ChatConfig                `json:"chat"`
	Quota       QuotaConfig               `json:"quota"`
}

type BasicConfig struct {
	ServerAddress string `json:"server_address"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// BackendConfig holds the connection settings for one generation backend.
type BackendConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

type ChatConfig struct {
	// DefaultBackend names the backend used when a call carries no override.
	DefaultBackend string `json:"default_backend"`
	// RequestTimeoutSeconds bounds one adapter call.
	RequestTimeoutSeconds int `json:"request_timeout_seconds"`
	// QueueSize bounds the per-user pending turn queue.
	QueueSize int `json:"queue_size"`
}

type QuotaConfig struct {
	DailyLimitStandard int `json:"daily_limit_standard"`
	DailyLimitElevated int `json:"daily_limit_elevated"`
}

const (
	defaultDailyLimitStandard = 10
	defaultDailyLimitElevated = 100
	defaultRequestTimeout     = 60
	defaultQueueSize          = 16
)

// Load reads configuration from the provided path (defaults to config.json).
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if len(cfg.Databases) == 0 {
		return nil, fmt.Errorf("at least one database must be configured")
	}
	if len(cfg.Backends) == 0 {
		return nil, fmt.Errorf("at least one backend must be configured")
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Quota.DailyLimitStandard <= 0 {
		c.Quota.DailyLimitStandard = defaultDailyLimitStandard
	}
	if c.Quota.DailyLimitElevated <= 0 {
		c.Quota.DailyLimitElevated = defaultDailyLimitElevated
	}
	if c.Chat.RequestTimeoutSeconds <= 0 {
		c.Chat.RequestTimeoutSeconds = defaultRequestTimeout
	}
	if c.Chat.QueueSize <= 0 {
		c.Chat.QueueSize = defaultQueueSize
	}
}
