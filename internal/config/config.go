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

const (
	MarketModeSearch = "json"
	MarketModeMarkup = "html"
)

type Config struct {
	DBPath    string
	OutputDir string

	LogLevel  string
	LogFormat string

	MetadataURL       string
	MetadataOrigin    string
	MetadataTimeoutMs int
	MetadataAttempts  int

	MarketMode         string
	MarketSearchURL    string
	MarketMarkupURL    string
	MarketListingURL   string
	MarketCDNBaseURL   string
	MarketAppID        string
	MarketQuery        string
	MarketPageSize     int
	MarketHTMLPageSize int
	MarketMaxPages     int
	MarketPageDelayMs  int
	MarketTimeoutMs    int

	DefaultKeyCost float64
	DefaultTaxRate float64
	DefaultBudget  float64

	WatchIntervalSec int
	WatchExport      bool
	MetricsAddr      string
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:    getEnv("DB_PATH", filepath.Join(cwd, "data", "caseplanner.db")),
		OutputDir: getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),

		MetadataURL:       getEnv("METADATA_URL", "https://csroi.com/pastData/allTrackedCases.json"),
		MetadataOrigin:    getEnv("METADATA_ORIGIN", "https://csroi.com"),
		MetadataTimeoutMs: getEnvInt("METADATA_TIMEOUT_MS", 20000),
		MetadataAttempts:  getEnvInt("METADATA_ATTEMPTS", 3),

		MarketMode:         strings.ToLower(getEnv("MARKET_MODE", MarketModeSearch)),
		MarketSearchURL:    getEnv("MARKET_SEARCH_URL", "https://steamcommunity.com/market/search/render/"),
		MarketMarkupURL:    getEnv("MARKET_HTML_URL", "https://steamcommunity.com/market/search"),
		MarketListingURL:   getEnv("MARKET_LISTING_URL", "https://steamcommunity.com/market/listings"),
		MarketCDNBaseURL:   getEnv("MARKET_CDN_URL", "https://steamcommunity-a.akamaihd.net/economy/image/"),
		MarketAppID:        getEnv("MARKET_APP_ID", "730"),
		MarketQuery:        getEnv("MARKET_QUERY", "case"),
		MarketPageSize:     getEnvInt("MARKET_PAGE_SIZE", 100),
		MarketHTMLPageSize: getEnvInt("MARKET_HTML_PAGE_SIZE", 10),
		MarketMaxPages:     getEnvInt("MARKET_MAX_PAGES", 20),
		MarketPageDelayMs:  getEnvInt("MARKET_PAGE_DELAY_MS", 2000),
		MarketTimeoutMs:    getEnvInt("MARKET_TIMEOUT_MS", 15000),

		DefaultKeyCost: getEnvFloat("DEFAULT_KEY_COST", 2.49),
		DefaultTaxRate: getEnvFloat("PLANNER_TAX_PERCENT", 0) / 100,
		DefaultBudget:  getEnvFloat("PLANNER_BUDGET", 0),

		WatchIntervalSec: getEnvInt("WATCH_INTERVAL_SEC", 900),
		WatchExport:      getEnvBool("WATCH_EXPORT", false),
		MetricsAddr:      getEnv("METRICS_ADDR", ":9464"),
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	required := [][2]string{
		{"DB_PATH", c.DBPath},
		{"METADATA_URL", c.MetadataURL},
		{"MARKET_SEARCH_URL", c.MarketSearchURL},
		{"MARKET_HTML_URL", c.MarketMarkupURL},
		{"MARKET_LISTING_URL", c.MarketListingURL},
	}
	for _, r := range required {
		if err := c.Require(r[0], r[1]); err != nil {
			return err
		}
	}
	switch c.MarketMode {
	case MarketModeSearch, MarketModeMarkup:
	default:
		return fmt.Errorf("unsupported MARKET_MODE: %s", c.MarketMode)
	}
	if c.MarketPageSize <= 0 || c.MarketHTMLPageSize <= 0 {
		return fmt.Errorf("market page size must be positive")
	}
	if c.MarketMaxPages <= 0 {
		return fmt.Errorf("MARKET_MAX_PAGES must be positive")
	}
	if c.MarketPageDelayMs < 0 {
		return fmt.Errorf("MARKET_PAGE_DELAY_MS must not be negative")
	}
	if c.WatchIntervalSec <= 0 {
		return fmt.Errorf("WATCH_INTERVAL_SEC must be positive")
	}
	if c.DefaultKeyCost < 0 || c.DefaultTaxRate < 0 {
		return fmt.Errorf("key cost and tax rate must not be negative")
	}
	return nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func (c Config) MarketPageDelay() time.Duration {
	return time.Duration(c.MarketPageDelayMs) * time.Millisecond
}

func (c Config) MarketTimeout() time.Duration {
	return time.Duration(c.MarketTimeoutMs) * time.Millisecond
}

func (c Config) MetadataTimeout() time.Duration {
	return time.Duration(c.MetadataTimeoutMs) * time.Millisecond
}

func (c Config) WatchInterval() time.Duration {
	return time.Duration(c.WatchIntervalSec) * time.Second
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
