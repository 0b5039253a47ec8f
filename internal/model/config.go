package model

import (
	"os"
	"path/filepath"
	"time"
)

// Config is the complete lexicite configuration, loaded from
// ~/.lexicite/config.yaml, LEXICITE_* environment variables and flags.
type Config struct {
	Extraction   ExtractionConfig   `yaml:"extraction" mapstructure:"extraction"`
	Reasoner     ReasonerConfig     `yaml:"reasoner" mapstructure:"reasoner"`
	Authority    AuthorityConfig    `yaml:"authority" mapstructure:"authority"`
	Concurrency  ConcurrencyConfig  `yaml:"concurrency" mapstructure:"concurrency"`
	RateLimiting RateLimitingConfig `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Live         LiveConfig         `yaml:"live" mapstructure:"live"`
	Cache        CacheConfig        `yaml:"cache" mapstructure:"cache"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	HTTP         HTTPConfig         `yaml:"http" mapstructure:"http"`
	Sources      SourceTierConfig   `yaml:"sources" mapstructure:"sources"`
	Output       OutputConfig       `yaml:"output" mapstructure:"output"`
}

// ExtractionConfig controls the citation pattern matcher
type ExtractionConfig struct {
	Pattern   string `yaml:"pattern" mapstructure:"pattern"`       // Empty means the built-in pattern
	MinLength int    `yaml:"min_length" mapstructure:"min_length"` // Shorter matches are discarded
}

// ReasonerConfig configures the AI verification backend
type ReasonerConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"` // openai, anthropic, ollama
	Model         string `yaml:"model" mapstructure:"model"`
	ResearchModel string `yaml:"research_model" mapstructure:"research_model"` // Used in research mode
	Mode          string `yaml:"mode" mapstructure:"mode"`                     // standard or research
	APIKey        string `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL       string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout       int    `yaml:"timeout" mapstructure:"timeout"` // seconds
	MaxTokens     int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// AuthorityConfig configures the case-law lookup backend
type AuthorityConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Token   string `yaml:"token,omitempty" mapstructure:"token"`
	Timeout int    `yaml:"timeout" mapstructure:"timeout"` // seconds
}

// ConcurrencyConfig bounds outbound work
type ConcurrencyConfig struct {
	MaxPipelines int `yaml:"max_pipelines" mapstructure:"max_pipelines"` // Simultaneous per-citation pipelines
	Documents    int `yaml:"documents" mapstructure:"documents"`         // Documents analysed at once by `batch`
	LinkChecks   int `yaml:"link_checks" mapstructure:"link_checks"`     // Concurrent evidence probes
}

// RateLimitingConfig paces requests per backend host
type RateLimitingConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`
}

// LiveConfig controls continuous re-analysis
type LiveConfig struct {
	Debounce time.Duration `yaml:"debounce" mapstructure:"debounce"`
}

// CacheConfig controls verdict caching
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Directory string        `yaml:"directory" mapstructure:"directory"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
	RedisAddr string        `yaml:"redis_addr,omitempty" mapstructure:"redis_addr"` // Replaces memory+disk when set
}

// LogConfig controls structured logging
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // console or json
}

// ServerConfig controls `lexicite serve`
type ServerConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// HTTPConfig holds transport settings shared by every outbound client
type HTTPConfig struct {
	UserAgent    string        `yaml:"user_agent" mapstructure:"user_agent"`
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	HTTPProxy    string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy   string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy      string        `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// SourceTierConfig classifies evidence hosts
type SourceTierConfig struct {
	PrimaryDomains   []string          `yaml:"primary_domains" mapstructure:"primary_domains"`
	SecondaryDomains []string          `yaml:"secondary_domains" mapstructure:"secondary_domains"`
	DomainMap        map[string]string `yaml:"domain_map,omitempty" mapstructure:"domain_map"`
}

// OutputConfig controls report rendering
type OutputConfig struct {
	Verbose       bool   `yaml:"verbose" mapstructure:"verbose"`
	IncludeFooter bool   `yaml:"include_footer" mapstructure:"include_footer"`
	SyncURL       string `yaml:"sync_url,omitempty" mapstructure:"sync_url"` // Finished reports are POSTed here
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Extraction: ExtractionConfig{
			MinLength: 4,
		},
		Reasoner: ReasonerConfig{
			Provider:      "openai",
			Model:         "gpt-4o-mini",
			ResearchModel: "gpt-4o-mini-search-preview",
			Mode:          "standard",
			Timeout:       30,
			MaxTokens:     800,
		},
		Authority: AuthorityConfig{
			Enabled: true,
			BaseURL: "https://www.courtlistener.com",
			Timeout: 15,
		},
		Concurrency: ConcurrencyConfig{
			MaxPipelines: 4,
			Documents:    2,
			LinkChecks:   8,
		},
		RateLimiting: RateLimitingConfig{
			RequestsPerSecond: 2,
			BurstSize:         4,
		},
		Live: LiveConfig{
			Debounce: 1500 * time.Millisecond,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Directory: defaultCacheDir(),
			MemoryTTL: time.Hour,
			DiskTTL:   7 * 24 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Server: ServerConfig{
			Addr: ":8086",
		},
		HTTP: HTTPConfig{
			UserAgent:    "lexicite/0.1 (+https://github.com/ppiankov/lexicite)",
			Timeout:      30 * time.Second,
			MaxBodyBytes: 2_000_000,
		},
		Sources: SourceTierConfig{
			PrimaryDomains: []string{
				"courtlistener.com",
				"supremecourt.gov",
				"uscourts.gov",
				"govinfo.gov",
				"law.cornell.edu",
				"congress.gov",
				"ecfr.gov",
			},
			SecondaryDomains: []string{
				"justia.com",
				"findlaw.com",
				"casetext.com",
				"oyez.org",
				"wikipedia.org",
				"britannica.com",
			},
		},
		Output: OutputConfig{
			IncludeFooter: true,
		},
	}
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ".lexicite-cache"
	}
	return filepath.Join(dir, "lexicite")
}
