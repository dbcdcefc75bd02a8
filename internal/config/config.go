package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the full configuration required to initialise the crawl
// engine, its client pool, and the ambient logging/action wiring around it.
type Config struct {
	Crawl   CrawlConfig   `yaml:"crawl"`
	Client  ClientConfig  `yaml:"client"`
	Logging LoggingConfig `yaml:"logging"`
	Actions ActionsConfig `yaml:"actions"`
	Server  ServerConfig  `yaml:"server"`
}

// CrawlConfig controls the crawl scope, limits, and progress cadence.
type CrawlConfig struct {
	BaseURL                     string          `yaml:"base_url"`
	BaseURLSecure               string          `yaml:"base_url_secure"`
	Seeds                       []string        `yaml:"seeds"`
	AllowedSuffixes             []string        `yaml:"allowed_suffixes"`
	BlockedPatterns             []string        `yaml:"blocked_patterns"`
	ThreadLimit                 int             `yaml:"thread_limit"`
	MaxProcessWaiting           int             `yaml:"max_process_waiting"`
	ShortCircuitAfter           int             `yaml:"short_circuit_after"`
	ReportProgressPerDownloaded int             `yaml:"report_progress_per_downloaded_pages"`
	MaxLinksPerPage             int             `yaml:"max_links_per_page"`
	PerDomainDelay              Duration        `yaml:"per_domain_delay"`
	RateLimitPerDomain          RateLimitConfig `yaml:"rate_limit_per_domain"`
}

// RateLimitConfig applies a token bucket per domain.
type RateLimitConfig struct {
	Requests int      `yaml:"requests"`
	Window   Duration `yaml:"window"`
}

// Enabled reports whether per-domain rate limiting is active.
func (r RateLimitConfig) Enabled() bool {
	return r.Requests > 0 && !r.Window.IsZero()
}

// ClientConfig controls the HTTP client pool used by the fetch stage.
// PoolSize is validated but not used to size the pool: the engine sizes
// its client pool to the crawl's thread limit.
type ClientConfig struct {
	PoolSize         int      `yaml:"pool_size"`
	UserAgent        string   `yaml:"user_agent"`
	Timeout          Duration `yaml:"timeout"`
	MaxBodyBytes     int64    `yaml:"max_body_bytes"`
	ProxyURL         string   `yaml:"proxy_url"`
	DisableRedirects bool     `yaml:"disable_redirects"`
	EnableJavaScript bool     `yaml:"enable_javascript"`
	Cookies          []Cookie `yaml:"cookies"`
}

// Cookie seeds the client pool's cookie jar at startup.
type Cookie struct {
	Name   string `yaml:"name"`
	Value  string `yaml:"value"`
	Domain string `yaml:"domain"`
}

// LoggingConfig selects log verbosity, format, and rotation.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Structured bool   `yaml:"structured"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// ActionsConfig toggles the reference Action implementations.
type ActionsConfig struct {
	Markdown MarkdownActionConfig `yaml:"markdown"`
	Postgres PostgresActionConfig `yaml:"postgres"`
}

// MarkdownActionConfig configures the HTML-to-markdown/text extraction action.
type MarkdownActionConfig struct {
	Enabled          bool     `yaml:"enabled"`
	RemoveAds        bool     `yaml:"remove_ads"`
	RemoveScripts    bool     `yaml:"remove_scripts"`
	RemoveStyles     bool     `yaml:"remove_styles"`
	TrimWhitespace   bool     `yaml:"trim_whitespace"`
	AdSelectors      []string `yaml:"ad_selectors"`
	ExtraDropClasses []string `yaml:"extra_drop_classes"`
}

// PostgresActionConfig configures the reference page-persistence action.
type PostgresActionConfig struct {
	Enabled         bool     `yaml:"enabled"`
	DSN             string   `yaml:"dsn"`
	CreateIfMissing bool     `yaml:"create_if_missing"`
	AutoMigrate     bool     `yaml:"auto_migrate"`
	MaxOpenConns    int      `yaml:"max_open_conns"`
	MaxIdleConns    int      `yaml:"max_idle_conns"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
}

// ServerConfig controls the optional control-plane HTTP server.
type ServerConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Addr       string `yaml:"addr"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// Default returns a Config populated with sensible defaults.
func Default() Config {
	return Config{
		Crawl: CrawlConfig{
			AllowedSuffixes:             []string{"/", ".jsp", ".htm", ".html"},
			ThreadLimit:                 0,
			MaxProcessWaiting:           2000,
			ShortCircuitAfter:           0,
			ReportProgressPerDownloaded: 50,
			MaxLinksPerPage:             200,
			PerDomainDelay:              DurationFrom(250 * time.Millisecond),
		},
		Client: ClientConfig{
			PoolSize:     8,
			UserAgent:    "sitecrawl-bot/1.0",
			Timeout:      DurationFrom(30 * time.Second),
			MaxBodyBytes: 6 * 1024 * 1024,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Structured: true,
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Compress:   true,
		},
		Server: ServerConfig{
			Enabled:     false,
			Addr:        ":8080",
			MetricsAddr: ":9090",
		},
	}
}

// Load reads, merges, and validates configuration from a YAML file.
func Load(path string) (*Config, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer fh.Close()

	cfg := Default()
	if err := decodeYAML(fh, &cfg); err != nil {
		return nil, err
	}
	cfg.normalise()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromReader decodes configuration from an arbitrary reader.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decodeYAML(r, &cfg); err != nil {
		return nil, err
	}
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// Validate enforces required invariants for the crawler configuration.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Crawl.BaseURL) == "" {
		return errors.New("crawl.base_url must be set")
	}
	if c.Crawl.ThreadLimit < 0 {
		return fmt.Errorf("crawl.thread_limit must be >= 0 (got %d)", c.Crawl.ThreadLimit)
	}
	if c.Crawl.MaxProcessWaiting <= 0 {
		return fmt.Errorf("crawl.max_process_waiting must be > 0 (got %d)", c.Crawl.MaxProcessWaiting)
	}
	if c.Crawl.ShortCircuitAfter < 0 {
		return fmt.Errorf("crawl.short_circuit_after must be >= 0 (got %d)", c.Crawl.ShortCircuitAfter)
	}
	if c.Client.PoolSize <= 0 {
		return fmt.Errorf("client.pool_size must be > 0 (got %d)", c.Client.PoolSize)
	}
	if c.Client.MaxBodyBytes <= 0 {
		return fmt.Errorf("client.max_body_bytes must be > 0 (got %d)", c.Client.MaxBodyBytes)
	}
	if strings.TrimSpace(c.Client.UserAgent) == "" {
		return errors.New("client.user_agent must be set")
	}
	if rl := c.Crawl.RateLimitPerDomain; rl.Requests < 0 {
		return fmt.Errorf("crawl.rate_limit_per_domain.requests must be >= 0 (got %d)", rl.Requests)
	}
	if c.Actions.Postgres.Enabled && strings.TrimSpace(c.Actions.Postgres.DSN) == "" {
		return errors.New("actions.postgres.dsn must be set when actions.postgres.enabled is true")
	}
	return nil
}

func (c *Config) normalise() {
	c.Crawl.BaseURL = strings.TrimSpace(c.Crawl.BaseURL)
	c.Crawl.BaseURLSecure = strings.TrimSpace(c.Crawl.BaseURLSecure)
	for i := range c.Crawl.Seeds {
		c.Crawl.Seeds[i] = strings.TrimSpace(c.Crawl.Seeds[i])
	}
	c.Client.UserAgent = strings.TrimSpace(c.Client.UserAgent)
	if len(c.Crawl.AllowedSuffixes) == 0 {
		c.Crawl.AllowedSuffixes = []string{"/", ".jsp", ".htm", ".html"}
	}
	if len(c.Crawl.BlockedPatterns) > 0 {
		c.Crawl.BlockedPatterns = dedupeLower(c.Crawl.BlockedPatterns)
	}
}

func dedupeLower(values []string) []string {
	unique := make(map[string]struct{}, len(values))
	cleaned := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, ok := unique[v]; ok {
			continue
		}
		unique[v] = struct{}{}
		cleaned = append(cleaned, v)
	}
	sort.Strings(cleaned)
	return cleaned
}
