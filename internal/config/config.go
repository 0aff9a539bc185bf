package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Catalog CatalogConfig `toml:"catalog"`
	Player  PlayerConfig  `toml:"player"`
	Auth    AuthConfig    `toml:"auth"`
	Logging LoggingConfig `toml:"logging"`
	Ngrok   NgrokConfig   `toml:"ngrok"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Port        string `toml:"port"`
	Host        string `toml:"host"`
	EnableCORS  bool   `toml:"enable_cors"`
	ReadTimeout int    `toml:"read_timeout_seconds"`
	IdleTimeout int    `toml:"idle_timeout_seconds"`
}

// CatalogConfig configures the iTunes catalog client
type CatalogConfig struct {
	BaseURL           string  `toml:"base_url"`
	Country           string  `toml:"country"`
	ResultLimit       int     `toml:"result_limit"`
	PopularQuery      string  `toml:"popular_query"`
	RequestTimeout    int     `toml:"request_timeout_seconds"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	CacheTTL          int     `toml:"cache_ttl_seconds"`
}

// PlayerConfig configures playback sessions
type PlayerConfig struct {
	AutoPlay         bool    `toml:"auto_play"`
	InitialVolume    float64 `toml:"initial_volume"`
	ProgressInterval int     `toml:"progress_interval_ms"`
	PreviewTimeout   int     `toml:"preview_timeout_seconds"`
	MaxPreviewBytes  int64   `toml:"max_preview_bytes"`
}

// AuthConfig contains account and session configuration
type AuthConfig struct {
	BcryptCost      int    `toml:"bcrypt_cost"`
	SessionDuration int    `toml:"session_duration_hours"`
	SecureCookies   bool   `toml:"secure_cookies"`
	CookieName      string `toml:"cookie_name"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level          string `toml:"level"`
	Format         string `toml:"format"`
	RequestLogging bool   `toml:"request_logging"`
}

// NgrokConfig contains ngrok tunnel configuration
type NgrokConfig struct {
	Enabled      bool   `toml:"enabled"`
	AuthToken    string `toml:"auth_token"`
	Domain       string `toml:"domain"`
	EnableAuth   bool   `toml:"enable_auth"`
	AuthProvider string `toml:"auth_provider"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        "8080",
			Host:        "0.0.0.0",
			EnableCORS:  true,
			ReadTimeout: 30,
			IdleTimeout: 120,
		},
		Catalog: CatalogConfig{
			BaseURL:           "https://itunes.apple.com",
			Country:           "",
			ResultLimit:       25,
			PopularQuery:      "top songs 2024",
			RequestTimeout:    15,
			RequestsPerSecond: 2,
			CacheTTL:          300,
		},
		Player: PlayerConfig{
			AutoPlay:         true,
			InitialVolume:    0.7,
			ProgressInterval: 500,
			PreviewTimeout:   30,
			MaxPreviewBytes:  20 << 20,
		},
		Auth: AuthConfig{
			BcryptCost:      12,
			SessionDuration: 24,
			SecureCookies:   false,
			CookieName:      "soundstorm_session",
		},
		Logging: LoggingConfig{
			Level:          "info",
			Format:         "text",
			RequestLogging: true,
		},
		Ngrok: NgrokConfig{
			Enabled:      false,
			AuthToken:    "",
			Domain:       "",
			EnableAuth:   false,
			AuthProvider: "google",
		},
	}
}

// LoadConfig loads configuration from a TOML file, creating it with defaults
// when missing. Environment overrides are applied before validation.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := cfg.SaveToFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config file: %w", err)
		}
	} else if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves the configuration to a TOML file
func (c *Config) SaveToFile(configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	header := `# Soundstorm Configuration
# Catalog, playback and account settings for the Soundstorm streaming client.
# The logging level is reloaded automatically when this file changes.

`
	if _, err := file.WriteString(header); err != nil {
		return fmt.Errorf("failed to write config header: %w", err)
	}

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config to TOML: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port cannot be empty")
	}
	if c.Server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Server.ReadTimeout < 0 || c.Server.IdleTimeout < 0 {
		return fmt.Errorf("server timeouts must not be negative")
	}

	if u, err := url.Parse(c.Catalog.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid catalog base url: %q", c.Catalog.BaseURL)
	}
	if c.Catalog.ResultLimit < 1 || c.Catalog.ResultLimit > 200 {
		return fmt.Errorf("catalog result limit must be between 1 and 200")
	}
	if c.Catalog.PopularQuery == "" {
		return fmt.Errorf("catalog popular query cannot be empty")
	}
	if c.Catalog.RequestTimeout < 1 {
		return fmt.Errorf("catalog request timeout must be at least 1 second")
	}
	if c.Catalog.CacheTTL < 0 {
		return fmt.Errorf("catalog cache ttl must not be negative")
	}

	if c.Player.InitialVolume < 0 || c.Player.InitialVolume > 1 {
		return fmt.Errorf("player initial volume must be between 0 and 1")
	}
	if c.Player.ProgressInterval < 50 {
		return fmt.Errorf("player progress interval must be at least 50ms")
	}
	if c.Player.PreviewTimeout < 1 {
		return fmt.Errorf("player preview timeout must be at least 1 second")
	}
	if c.Player.MaxPreviewBytes < 1 {
		return fmt.Errorf("player max preview bytes must be positive")
	}

	if c.Auth.SessionDuration < 1 {
		return fmt.Errorf("auth session duration must be at least 1 hour")
	}
	if c.Auth.CookieName == "" {
		return fmt.Errorf("auth cookie name cannot be empty")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"text": true, "json": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Logging.Format)
	}

	return nil
}

// GetAddress returns the full server address
func (c *Config) GetAddress() string {
	return c.Server.Host + ":" + c.Server.Port
}

func (c CatalogConfig) Timeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

func (c CatalogConfig) TTL() time.Duration {
	return time.Duration(c.CacheTTL) * time.Second
}

func (p PlayerConfig) Interval() time.Duration {
	return time.Duration(p.ProgressInterval) * time.Millisecond
}

func (p PlayerConfig) FetchTimeout() time.Duration {
	return time.Duration(p.PreviewTimeout) * time.Second
}

func (a AuthConfig) Duration() time.Duration {
	return time.Duration(a.SessionDuration) * time.Hour
}
