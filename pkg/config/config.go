package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
// Only this package reads environment variables.
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Storage root for cache payloads, usage ledger and history database.
	DataDir string

	// Upstream weather provider
	Stormglass StormglassConfig

	// Forecast pipeline
	HorizonHours int
	CacheMaxAge  time.Duration

	// Alerting
	Alert AlertConfig

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
}

// StormglassConfig holds Stormglass API configuration.
type StormglassConfig struct {
	BaseURL string

	// APIKeys are rotated by the quota-aware client. Comma separated in env.
	APIKeys []string

	// DailyQuota is the assumed per-key daily request budget. The provider's
	// own meta.dailyQuota overrides it once observed.
	DailyQuota int

	// ChannelSources pins one provider model source per channel,
	// e.g. "waveHeight=icon,windSpeed=sg".
	ChannelSources map[string]string

	RequestTimeout time.Duration
}

// AlertConfig holds email alerting configuration.
type AlertConfig struct {
	Enabled  bool
	SMTPHost string
	SMTPPort int
	From     string
	Password string
}

// defaultChannelSources is the per-channel model source pinning used when
// SG_CHANNEL_SOURCES is not set. Kept as configuration because the preferred
// source per channel has changed before and may change again.
var defaultChannelSources = map[string]string{
	"waveHeight":     "icon",
	"wavePeriod":     "icon",
	"waveDirection":  "icon",
	"windSpeed":      "icon",
	"windDirection":  "icon",
	"currentSpeed":   "sg",
	"windWaveHeight": "icon",
}

// Load reads configuration from environment variables.
// Only this function calls os.Getenv().
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port:    getEnv("PORT", "8089"),
		Env:     getEnv("ENV", "development"),
		DataDir: getEnv("DATA_DIR", "data"),

		Stormglass: StormglassConfig{
			BaseURL:        getEnv("SG_BASE_URL", "https://api.stormglass.io/v2"),
			APIKeys:        splitList(getEnv("SG_API_KEYS", "")),
			DailyQuota:     getEnvAsInt("SG_DAILY_QUOTA", 10),
			ChannelSources: parsePairs(getEnv("SG_CHANNEL_SOURCES", "")),
			RequestTimeout: getEnvAsDuration("SG_REQUEST_TIMEOUT", "30s"),
		},

		HorizonHours: getEnvAsInt("FORECAST_HORIZON_HOURS", 48),
		CacheMaxAge:  getEnvAsDuration("CACHE_MAX_AGE", "12h"),

		Alert: AlertConfig{
			Enabled:  getEnvAsBool("ALERT_ENABLED", false),
			SMTPHost: getEnv("ALERT_SMTP_HOST", "mail.surfai.nl"),
			SMTPPort: getEnvAsInt("ALERT_SMTP_PORT", 465),
			From:     getEnv("ALERT_FROM", "alert@surfai.nl"),
			Password: getEnv("ALERT_SMTP_PASSWORD", ""),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
	}

	if len(cfg.Stormglass.ChannelSources) == 0 {
		cfg.Stormglass.ChannelSources = defaultChannelSources
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.HorizonHours <= 0 {
		return fmt.Errorf("FORECAST_HORIZON_HOURS must be positive")
	}

	if c.CacheMaxAge <= 0 {
		return fmt.Errorf("CACHE_MAX_AGE must be positive")
	}

	if c.Alert.Enabled && c.Alert.Password == "" {
		return fmt.Errorf("ALERT_SMTP_PASSWORD is required when ALERT_ENABLED=true")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		fallback, _ := time.ParseDuration(defaultValue)
		return fallback
	}

	return value
}

// splitList parses a comma separated list, dropping empty entries.
func splitList(s string) []string {
	if s == "" {
		return nil
	}

	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parsePairs parses "key=value,key=value" into a map.
func parsePairs(s string) map[string]string {
	if s == "" {
		return nil
	}

	out := make(map[string]string)
	for _, part := range strings.Split(s, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) == 2 && kv[0] != "" && kv[1] != "" {
			out[kv[0]] = kv[1]
		}
	}
	return out
}
