// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	DBPath         string
	FrontendBase   string
	AllowedOrigins []string
	RequestTimeout time.Duration
	OpenAIAPIKey   string
	OpenAIModel    string
	DemoWidgetID   string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	timeoutSec := getEnvInt("REQUEST_TIMEOUT_SECONDS", 10)
	if timeoutSec <= 0 {
		timeoutSec = 10
	}

	cfg := &Config{
		Port:           getEnv("PORT", "8002"),
		DBPath:         getEnv("DB_PATH", "./data/chatlite.db"),
		FrontendBase:   getEnv("FRONTEND_BASE", ""),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "*")),
		RequestTimeout: time.Duration(timeoutSec) * time.Second,
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:    getEnv("OPENAI_MODEL", ""),
		DemoWidgetID:   getEnv("DEMO_WIDGET_ID", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if len(c.AllowedOrigins) == 0 {
		return fmt.Errorf("ALLOWED_ORIGINS cannot be empty")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendBase == "" ||
		strings.Contains(c.FrontendBase, "localhost") ||
		strings.Contains(c.FrontendBase, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func splitList(value string) []string {
	var out []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
