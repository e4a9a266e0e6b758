package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Price sources understood by the updater.
const (
	PriceSourceSimulated = "simulated"
	PriceSourceScrape    = "scrape"
)

// Config holds tracker configuration.
type Config struct {
	HTTPAddr    string
	DatabaseURL string // empty selects the in-memory store
	CatalogFile string

	BatchSize      int
	Workers        int
	StoreTimeout   time.Duration
	LinkLimit      int
	MaxChange      float64 // fraction of the current price, e.g. 0.15
	UpdateInterval time.Duration
	PriceSource    string // simulated or scrape

	ScrapeEnabled   bool
	ScrapeAPIKey    string
	ScrapeBaseURL   string
	ScrapeDatasetID string
	WebhookBaseURL  string

	UserAgent       string
	RequestTimeout  time.Duration
	MaxRetries      int
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration

	CORSOrigins      []string
	OTELExporterHost string
	LookupCacheSize  int
	Verbose          bool
}

// DefaultConfig returns defaults suitable for a local run against the
// in-memory store.
func DefaultConfig() *Config {
	return &Config{
		HTTPAddr:        ":8080",
		CatalogFile:     "assets/products.json",
		BatchSize:       100,
		Workers:         8,
		StoreTimeout:    5 * time.Second,
		LinkLimit:       50,
		MaxChange:       0.15,
		UpdateInterval:  0,
		PriceSource:     PriceSourceSimulated,
		ScrapeBaseURL:   "https://api.brightdata.com",
		ScrapeDatasetID: "gd_lwdb4vjm1ehb499uxs",
		WebhookBaseURL:  "http://localhost:8080",
		UserAgent:       "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		RequestTimeout:  10 * time.Second,
		MaxRetries:      2,
		RetryBackoff:    200 * time.Millisecond,
		RetryBackoffMax: 2 * time.Second,
		LookupCacheSize: 512,
	}
}

// Load reads a .env file when present, then overlays environment variables
// on top of DefaultConfig. The result is validated.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v, ok := EnvString("HTTP_ADDR"); ok {
		c.HTTPAddr = v
	}
	if v, ok := EnvString("DATABASE_URL"); ok {
		c.DatabaseURL = v
	}
	if v, ok := EnvString("CATALOG_FILE"); ok {
		c.CatalogFile = v
	}
	if v, ok, err := EnvInt("BATCH_SIZE"); err != nil {
		return fmt.Errorf("invalid BATCH_SIZE: %w", err)
	} else if ok {
		c.BatchSize = v
	}
	if v, ok, err := EnvInt("WORKERS"); err != nil {
		return fmt.Errorf("invalid WORKERS: %w", err)
	} else if ok {
		c.Workers = v
	}
	if v, ok, err := EnvDuration("STORE_TIMEOUT"); err != nil {
		return fmt.Errorf("invalid STORE_TIMEOUT: %w", err)
	} else if ok {
		c.StoreTimeout = v
	}
	if v, ok, err := EnvInt("LINK_LIMIT"); err != nil {
		return fmt.Errorf("invalid LINK_LIMIT: %w", err)
	} else if ok {
		c.LinkLimit = v
	}
	if v, ok, err := EnvDuration("UPDATE_INTERVAL"); err != nil {
		return fmt.Errorf("invalid UPDATE_INTERVAL: %w", err)
	} else if ok {
		c.UpdateInterval = v
	}
	if v, ok := EnvString("PRICE_SOURCE"); ok {
		c.PriceSource = strings.ToLower(v)
	}
	if v, ok, err := EnvBool("SCRAPE_ENABLED"); err != nil {
		return fmt.Errorf("invalid SCRAPE_ENABLED: %w", err)
	} else if ok {
		c.ScrapeEnabled = v
	}
	if v, ok := EnvString("BRIGHT_DATA_API_KEY"); ok {
		c.ScrapeAPIKey = v
	}
	if v, ok := EnvString("SCRAPE_BASE_URL"); ok {
		c.ScrapeBaseURL = v
	}
	if v, ok := EnvString("SCRAPE_DATASET_ID"); ok {
		c.ScrapeDatasetID = v
	}
	if v, ok := EnvString("WEBHOOK_BASE_URL"); ok {
		c.WebhookBaseURL = v
	}
	if v, ok, err := EnvInt("MAX_RETRIES"); err != nil {
		return fmt.Errorf("invalid MAX_RETRIES: %w", err)
	} else if ok {
		c.MaxRetries = v
	}
	if v, ok, err := EnvDuration("REQUEST_TIMEOUT"); err != nil {
		return fmt.Errorf("invalid REQUEST_TIMEOUT: %w", err)
	} else if ok {
		c.RequestTimeout = v
	}
	if v, ok := EnvString("CORS_ORIGINS"); ok {
		c.CORSOrigins = splitList(v)
	}
	if v, ok := EnvString("OTEL_EXPORTER_HOST"); ok {
		c.OTELExporterHost = v
	}
	if v, ok, err := EnvBool("VERBOSE"); err != nil {
		return fmt.Errorf("invalid VERBOSE: %w", err)
	} else if ok {
		c.Verbose = v
	}
	return nil
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return fmt.Errorf("http address cannot be empty")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("store timeout must be positive")
	}
	if c.LinkLimit <= 0 {
		return fmt.Errorf("link limit must be positive")
	}
	if c.MaxChange < 0 || c.MaxChange >= 1 {
		return fmt.Errorf("max change must be in [0, 1)")
	}
	if c.UpdateInterval < 0 {
		return fmt.Errorf("update interval cannot be negative")
	}
	if c.PriceSource != PriceSourceSimulated && c.PriceSource != PriceSourceScrape {
		return fmt.Errorf("price source must be simulated or scrape")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff cannot exceed retry backoff max")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.ScrapeEnabled {
		if c.ScrapeAPIKey == "" {
			return fmt.Errorf("BRIGHT_DATA_API_KEY is required when scraping is enabled")
		}
		if err := validateURL("scrape base URL", c.ScrapeBaseURL); err != nil {
			return err
		}
		if err := validateURL("webhook base URL", c.WebhookBaseURL); err != nil {
			return err
		}
	}
	return nil
}

// MaskedScrapeAPIKey returns the vendor key with most characters hidden.
func (c *Config) MaskedScrapeAPIKey() string {
	return maskSecret(c.ScrapeAPIKey)
}

func validateURL(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", name)
	}
	return nil
}

func maskSecret(s string) string {
	if len(s) <= 8 {
		if len(s) == 0 {
			return "(not set)"
		}
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// EnvString returns the trimmed value of key when it is set and non-empty.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses key as an integer.
func EnvInt(key string) (int, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, err
	}
	return parsed, true, nil
}

// EnvBool parses key as a boolean.
func EnvBool(key string) (bool, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return false, false, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, false, err
	}
	return parsed, true, nil
}

// EnvDuration parses key as a Go duration ("30s", "5m").
func EnvDuration(key string) (time.Duration, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, false, err
	}
	return parsed, true, nil
}
