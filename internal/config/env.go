package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables that take precedence over the config file.
const (
	EnvCatalogBaseURL = "SOUNDSTORM_CATALOG_BASE_URL"
	EnvPort           = "SOUNDSTORM_PORT"
	EnvNgrokAuthToken = "NGROK_AUTHTOKEN"
)

// LoadDotEnv loads variables from path into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

// ApplyEnv copies environment overrides into the configuration.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvCatalogBaseURL); v != "" {
		c.Catalog.BaseURL = v
	}
	if v := os.Getenv(EnvPort); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv(EnvNgrokAuthToken); v != "" {
		c.Ngrok.AuthToken = v
	}
}
