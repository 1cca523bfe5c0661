package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds the daemon's runtime configuration. User-facing limiter
// options live in the sync store, not here.
type Config struct {
	// CDP connection settings
	CDPAddress string
	CDPPort    int

	// Local browser launch
	LaunchBrowser bool
	StartURL      string
	ProfileDir    string

	// Storage settings
	DataDir       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// API settings
	APIBindAddr      string
	APIFallbackAddrs []string

	// Notification sink (empty disables delivery)
	NotifyEndpoint string
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		CDPAddress:       getEnvOrDefault("TABLIMITER_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:          getEnvIntOrDefault("TABLIMITER_CDP_PORT", 9222),
		LaunchBrowser:    getEnvBoolOrDefault("TABLIMITER_LAUNCH_BROWSER", false),
		StartURL:         getEnvOrDefault("TABLIMITER_START_URL", "about:blank"),
		ProfileDir:       getEnvOrDefault("TABLIMITER_PROFILE_DIR", "./profile"),
		DataDir:          getEnvOrDefault("TABLIMITER_DATA_DIR", "./data"),
		RedisAddr:        getEnvOrDefault("TABLIMITER_REDIS_ADDR", ""),
		RedisPassword:    getEnvOrDefault("TABLIMITER_REDIS_PASSWORD", ""),
		RedisDB:          getEnvIntOrDefault("TABLIMITER_REDIS_DB", 0),
		APIBindAddr:      getEnvOrDefault("TABLIMITER_API_BIND", "127.0.0.1:8780"),
		APIFallbackAddrs: getEnvListOrDefault("TABLIMITER_API_FALLBACKS", []string{"127.0.0.1:8781", "127.0.0.1:8782"}),
		NotifyEndpoint:   getEnvOrDefault("TABLIMITER_NOTIFY_ENDPOINT", ""),
	}

	return cfg, nil
}

// GetCDPURL returns the full CDP HTTP endpoint used by the chromedp remote
// allocator.
func (c *Config) GetCDPURL() string {
	return fmt.Sprintf("http://%s:%d", c.CDPAddress, c.CDPPort)
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	parts := strings.Split(val, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
