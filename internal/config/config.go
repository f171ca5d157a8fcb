package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
// Every field has a sensible default; only API_BASE_URL is required.
type Config struct {
	// Local HTTP surface (the UI talks to the agent over loopback)
	HTTPPort        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Remote API
	APIBaseURL     string
	RequestTimeout time.Duration

	// Durable store path; the agent falls back to memory-only when the
	// file cannot be opened
	StorePath string

	// Broadcast relay; empty means single-agent mode on the in-process bus
	RelayURL string

	// Queue capacity and backoff
	QueueCap  int
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// Drain pacing
	DrainInterval time.Duration
	DrainRate     int // deliveries per second during a drain

	// Cross-tab refresh watchdog
	RefreshWatchdog time.Duration
}

func Load() (*Config, error) {
	apiBaseURL := os.Getenv("API_BASE_URL")
	if apiBaseURL == "" {
		return nil, fmt.Errorf("API_BASE_URL is required")
	}

	return &Config{
		HTTPPort:        getEnv("HTTP_PORT", "7390"),
		ReadTimeout:     getDuration("READ_TIMEOUT", 5*time.Second),
		WriteTimeout:    getDuration("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		APIBaseURL:     apiBaseURL,
		RequestTimeout: getDuration("REQUEST_TIMEOUT", 10*time.Second),

		StorePath: getEnv("STORE_PATH", "offline-sync.db"),
		RelayURL:  os.Getenv("RELAY_URL"),

		QueueCap:  getInt("QUEUE_CAP", 200),
		BaseDelay: getDuration("BASE_DELAY", 2*time.Second),
		MaxDelay:  getDuration("MAX_DELAY", 60*time.Second),

		DrainInterval: getDuration("DRAIN_INTERVAL", 15*time.Second),
		DrainRate:     getInt("DRAIN_RATE", 10),

		RefreshWatchdog: getDuration("REFRESH_WATCHDOG", 15*time.Second),
	}, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
