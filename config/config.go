package config

import (
	"os"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Core files
	AccountsPath string
	RulesPath    string
	LogPath      string
	JournalPath  string

	// Listeners
	ListenAddr  string
	MetricsAddr string

	// Trade stream
	StreamInterval time.Duration

	// Optional redis mirroring of trades and outcomes
	RedisAddr     string
	RedisPassword string

	// Optional Google Sheets export
	SheetsKeyBase64 string
	SpreadsheetID   string
	SheetName       string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		AccountsPath: getEnv("ACCOUNTS_PATH", "data/accounts.json"),
		RulesPath:    getEnv("RULES_PATH", "data/rules.json"),
		LogPath:      getEnv("LOG_PATH", "data/app.log"),
		JournalPath:  getEnv("JOURNAL_PATH", "data/replications.db"),

		ListenAddr:  getEnv("LISTEN_ADDR", ":5000"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),

		StreamInterval: getDuration("STREAM_INTERVAL_MS", time.Second),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		SheetsKeyBase64: getEnv("GOOGLE_SECURITY_KEY_JSON_BASE64", ""),
		SpreadsheetID:   getEnv("SHEETS_SPREADSHEET_ID", ""),
		SheetName:       getEnv("SHEETS_SHEET_NAME", "Trades"),
	}
}

// SheetsEnabled reports whether the export credentials are present.
func (c *Config) SheetsEnabled() bool {
	return c.SheetsKeyBase64 != "" && c.SpreadsheetID != ""
}

// RedisEnabled reports whether trade mirroring is configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms <= 0 {
		log.Warnf("[config] ignoring invalid %s value: %q", key, v)
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}
