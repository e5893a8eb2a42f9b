package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Browser    BrowserConfig    `mapstructure:"browser"`
	Scraper    ScraperConfig    `mapstructure:"scraper"`
	Run        RunConfig        `mapstructure:"run"`
	Audit      AuditConfig      `mapstructure:"audit"`
	Store      StoreConfig      `mapstructure:"store"`
	Webhook    WebhookConfig    `mapstructure:"webhook"`
	Auth       AuthConfig       `mapstructure:"auth"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Encryption EncryptionConfig `mapstructure:"encryption"`
	Log        LogConfig        `mapstructure:"log"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string `mapstructure:"host"` // default: "0.0.0.0"
	Port int    `mapstructure:"port"` // default: 8080
	Mode string `mapstructure:"mode"` // "debug", "release", "test"; default: "release"

	// MaxConcurrentRuns caps runs executing at once. 0 means unlimited.
	MaxConcurrentRuns int `mapstructure:"max_concurrent_runs"` // default: 2

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"` // default: 30s
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Enabled adds the browser tiers to transport escalation. When the
	// browser cannot be launched the scraper runs HTTP-only.
	Enabled bool `mapstructure:"enabled"` // default: true

	Headless bool `mapstructure:"headless"` // default: true

	// MaxPages is the page pool capacity (max concurrent tabs).
	MaxPages int `mapstructure:"max_pages"` // default: 4

	DefaultProxy string `mapstructure:"proxy"`

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool `mapstructure:"no_sandbox"`

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string `mapstructure:"bin"`
}

// ScraperConfig controls fetching.
type ScraperConfig struct {
	// FetchTimeout bounds one page fetch across all escalation tiers.
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"` // default: 30s

	// MaxRetries is how often a transient transport failure is retried
	// per source.
	MaxRetries int `mapstructure:"max_retries"` // default: 1

	// DomainMemoryTTL is how long the engine that last worked for a host
	// is tried first.
	DomainMemoryTTL time.Duration `mapstructure:"domain_memory_ttl"` // default: 24h

	// BlockedResourceTypes lists browser resource types not loaded.
	BlockedResourceTypes []string `mapstructure:"blocked_resource_types"`

	// Sources replaces the built-in detail sources when non-empty.
	Sources []SourceConfig `mapstructure:"sources"`

	// Discovery replaces the built-in model search page when its URL is set.
	Discovery SourceConfig `mapstructure:"discovery"`
}

// SourceConfig describes one page template. URL may use {make}, {model},
// {query} and {country}. Selectors map record fields to CSS selectors.
type SourceConfig struct {
	Name      string            `mapstructure:"name"`
	URL       string            `mapstructure:"url"`
	Selectors map[string]string `mapstructure:"selectors"`
}

// RunConfig holds defaults for runs started from the CLI.
type RunConfig struct {
	VehicleType    string `mapstructure:"vehicle_type"`
	MaxResults     int    `mapstructure:"max_results"`
	Country        string `mapstructure:"country"`
	SecurityLevel  string `mapstructure:"security_level"`
	RateLimitDelay int    `mapstructure:"rate_limit_delay"` // milliseconds
}

// AuditConfig sets the advisory ceilings of the audit ledger.
type AuditConfig struct {
	MaxRequestsPerMinute int `mapstructure:"max_requests_per_minute"` // default: 30
	MaxIncidents         int `mapstructure:"max_incidents"`           // default: 10
}

// StoreConfig configures run persistence.
type StoreConfig struct {
	// Path of the SQLite database. ":memory:" keeps everything in process.
	Path string `mapstructure:"path"` // default: "carscout.db"
}

// WebhookConfig configures progress notifications. Empty URL disables them.
type WebhookConfig struct {
	URL     string        `mapstructure:"url"`
	Secret  string        `mapstructure:"secret"`
	Timeout time.Duration `mapstructure:"timeout"` // default: 10s
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	Enabled bool     `mapstructure:"enabled"` // default: true
	APIKeys []string `mapstructure:"api_keys"`
}

// RateLimitConfig controls per-key API rate limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"` // default: 2
	Burst             int     `mapstructure:"burst"`               // default: 5
}

// EncryptionConfig holds the key used when a run asks for sensitive data
// encryption: 64 hex characters (32 bytes). Empty means a random key per
// process.
type EncryptionConfig struct {
	Key string `mapstructure:"key"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // default: "info"
	Format string `mapstructure:"format"` // "json" or "text"; default: "json"
}

// Load reads configuration from an optional carscout.yaml (or the file at
// path, when given) and CARSCOUT_* environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("carscout")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("CARSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.max_concurrent_runs", 2)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("browser.enabled", true)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.max_pages", 4)
	v.SetDefault("browser.proxy", "")
	v.SetDefault("browser.no_sandbox", false)
	v.SetDefault("browser.bin", "")

	v.SetDefault("scraper.fetch_timeout", 30*time.Second)
	v.SetDefault("scraper.max_retries", 1)
	v.SetDefault("scraper.domain_memory_ttl", 24*time.Hour)
	v.SetDefault("scraper.blocked_resource_types", []string{"Image", "Stylesheet", "Font", "Media"})

	v.SetDefault("run.vehicle_type", "all")
	v.SetDefault("run.max_results", 50)
	v.SetDefault("run.country", "US")
	v.SetDefault("run.security_level", "standard")
	v.SetDefault("run.rate_limit_delay", 2000)

	v.SetDefault("audit.max_requests_per_minute", 30)
	v.SetDefault("audit.max_incidents", 10)

	v.SetDefault("store.path", "carscout.db")

	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.secret", "")
	v.SetDefault("webhook.timeout", 10*time.Second)

	v.SetDefault("auth.enabled", true)
	v.SetDefault("auth.api_keys", []string{})

	v.SetDefault("rate_limit.requests_per_second", 2.0)
	v.SetDefault("rate_limit.burst", 5)

	v.SetDefault("encryption.key", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}
