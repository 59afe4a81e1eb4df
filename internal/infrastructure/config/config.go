package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"

	"github.com/contextbridge/backend/internal/types"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Bridge    BridgeConfig
	Executor  ExecutorConfig
	Session   SessionConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000" yaml:"port"`
	Host string `envconfig:"HOST" default:"0.0.0.0" yaml:"host"`
}

// BridgeConfig holds context-bridge configuration: the screenshot gate and
// the whitelist consulted by the pattern matcher.
type BridgeConfig struct {
	BaseURL           string            `envconfig:"BRIDGE_BASE_URL" yaml:"base_url"`
	AuthHeaders       map[string]string `envconfig:"BRIDGE_AUTH_HEADERS" yaml:"auth_headers"`
	WhitelistedPages  []string          `envconfig:"BRIDGE_WHITELISTED_PAGES" yaml:"whitelisted_pages"`
	EnableScreenshots bool              `envconfig:"BRIDGE_ENABLE_SCREENSHOTS" default:"false" yaml:"enable_screenshots"`
	ScreenshotFormat  string            `envconfig:"BRIDGE_SCREENSHOT_FORMAT" default:"png" yaml:"screenshot_format"`
	ScreenshotQuality float64           `envconfig:"BRIDGE_SCREENSHOT_QUALITY" default:"0.8" yaml:"screenshot_quality"`
	ScreenshotScale   float64           `envconfig:"BRIDGE_SCREENSHOT_SCALE" default:"1.0" yaml:"screenshot_scale"`
	Timeout           time.Duration     `envconfig:"BRIDGE_TIMEOUT" default:"30s" yaml:"timeout"`
}

// ScreenshotOptions converts the configured defaults to capture options.
func (b BridgeConfig) ScreenshotOptions() types.ScreenshotOptions {
	return types.ScreenshotOptions{
		Format:  b.ScreenshotFormat,
		Quality: b.ScreenshotQuality,
		Scale:   b.ScreenshotScale,
	}
}

// ExecutorConfig holds the executor feature flags.
type ExecutorConfig struct {
	EnableNotifications    bool `envconfig:"EXEC_ENABLE_NOTIFICATIONS" default:"true" yaml:"enable_notifications"`
	EnableRedirects        bool `envconfig:"EXEC_ENABLE_REDIRECTS" default:"true" yaml:"enable_redirects"`
	EnableFormManipulation bool `envconfig:"EXEC_ENABLE_FORM_MANIPULATION" default:"true" yaml:"enable_form_manipulation"`
	EnableDOMManipulation  bool `envconfig:"EXEC_ENABLE_DOM_MANIPULATION" default:"true" yaml:"enable_dom_manipulation"`
}

// SessionConfig holds the websocket session reconnect policy.
type SessionConfig struct {
	ReconnectBase time.Duration `envconfig:"SESSION_RECONNECT_BASE" default:"1s" yaml:"reconnect_base"`
	MaxAttempts   int           `envconfig:"SESSION_MAX_ATTEMPTS" default:"5" yaml:"max_attempts"`
	PingInterval  time.Duration `envconfig:"SESSION_PING_INTERVAL" default:"30s" yaml:"ping_interval"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" yaml:"level"`
	Development bool   `envconfig:"LOG_DEV" default:"false" yaml:"development"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100" yaml:"requests_per_second"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200" yaml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true" yaml:"enabled"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadFile loads configuration from the environment, then overlays values
// from a YAML file. File values win; this is how whitelist patterns are
// normally supplied.
func LoadFile(path string) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var overlay struct {
		Server    *ServerConfig    `yaml:"server"`
		Bridge    *BridgeConfig    `yaml:"bridge"`
		Executor  *ExecutorConfig  `yaml:"executor"`
		Session   *SessionConfig   `yaml:"session"`
		Logging   *LogConfig       `yaml:"logging"`
		RateLimit *RateLimitConfig `yaml:"rate_limit"`
	}
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if overlay.Server != nil {
		cfg.Server = *overlay.Server
	}
	if overlay.Bridge != nil {
		cfg.Bridge = *overlay.Bridge
	}
	if overlay.Executor != nil {
		cfg.Executor = *overlay.Executor
	}
	if overlay.Session != nil {
		cfg.Session = *overlay.Session
	}
	if overlay.Logging != nil {
		cfg.Logging = *overlay.Logging
	}
	if overlay.RateLimit != nil {
		cfg.RateLimit = *overlay.RateLimit
	}

	return cfg, nil
}

// LoadOrDefault loads configuration from environment or returns defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		Bridge: BridgeConfig{
			ScreenshotFormat:  "png",
			ScreenshotQuality: 0.8,
			ScreenshotScale:   1.0,
			Timeout:           30 * time.Second,
		},
		Executor: ExecutorConfig{
			EnableNotifications:    true,
			EnableRedirects:        true,
			EnableFormManipulation: true,
			EnableDOMManipulation:  true,
		},
		Session: SessionConfig{
			ReconnectBase: time.Second,
			MaxAttempts:   5,
			PingInterval:  30 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
