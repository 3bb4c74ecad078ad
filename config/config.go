// Package config loads the dashboard agent settings from the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// LogLevels lists the accepted LOG_LEVEL values.
var LogLevels = []string{"debug", "info", "warn", "error"}

// Config holds the dashboard agent configuration.
type Config struct {
	UpstreamURL         *url.URL
	Port                string
	ReconnectDelay      time.Duration
	MaxReconnects       int
	NotificationTimeout time.Duration
	SearchDebounce      time.Duration
	UpdateInterval      time.Duration
	TruncateLimit       int
	LogLevel            string
}

// Default returns the default configuration.
func Default() Config {
	u, _ := url.Parse("http://127.0.0.1:8000")
	return Config{
		UpstreamURL:         u,
		Port:                "3000",
		ReconnectDelay:      3 * time.Second,
		MaxReconnects:       5,
		NotificationTimeout: 3 * time.Second,
		SearchDebounce:      500 * time.Millisecond,
		UpdateInterval:      30 * time.Second,
		TruncateLimit:       200,
		LogLevel:            "info",
	}
}

// Load reads the configuration from environment variables, falling back to
// Default for anything unset.
func Load() (Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (Config, error) {
	cfg := Default()

	if raw := getenv("UPSTREAM_URL"); raw != "" {
		u, err := url.Parse(raw)
		if err != nil {
			return cfg, fmt.Errorf("invalid UPSTREAM_URL: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return cfg, fmt.Errorf("invalid UPSTREAM_URL scheme %q", u.Scheme)
		}
		cfg.UpstreamURL = u
	}
	if port := getenv("PORT"); port != "" {
		cfg.Port = port
	}

	var err error
	if cfg.ReconnectDelay, err = durationVar(getenv, "WS_RECONNECT_DELAY", cfg.ReconnectDelay); err != nil {
		return cfg, err
	}
	if cfg.MaxReconnects, err = intVar(getenv, "WS_MAX_RECONNECT", cfg.MaxReconnects); err != nil {
		return cfg, err
	}
	if cfg.NotificationTimeout, err = durationVar(getenv, "NOTIFICATION_TIMEOUT", cfg.NotificationTimeout); err != nil {
		return cfg, err
	}
	if cfg.SearchDebounce, err = durationVar(getenv, "SEARCH_DEBOUNCE", cfg.SearchDebounce); err != nil {
		return cfg, err
	}
	if cfg.UpdateInterval, err = durationVar(getenv, "UPDATE_INTERVAL", cfg.UpdateInterval); err != nil {
		return cfg, err
	}
	if cfg.TruncateLimit, err = intVar(getenv, "TRUNCATE_LIMIT", cfg.TruncateLimit); err != nil {
		return cfg, err
	}
	if level := getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(level))
	}

	if !slices.Contains(LogLevels, cfg.LogLevel) {
		return cfg, fmt.Errorf("LOG_LEVEL must be one of %s, got %q", strings.Join(LogLevels, ", "), cfg.LogLevel)
	}
	if cfg.MaxReconnects < 0 {
		return cfg, fmt.Errorf("WS_MAX_RECONNECT must not be negative")
	}
	if cfg.TruncateLimit <= 0 {
		return cfg, fmt.Errorf("TRUNCATE_LIMIT must be positive")
	}
	if cfg.UpdateInterval <= 0 {
		return cfg, fmt.Errorf("UPDATE_INTERVAL must be positive")
	}
	return cfg, nil
}

func durationVar(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	raw := getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func intVar(getenv func(string) string, key string, def int) (int, error) {
	raw := getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
