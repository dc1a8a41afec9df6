package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Config holds the complete Prospector configuration.
// Durations are expressed in seconds so config files stay readable.
type Config struct {
	SampleMode          bool     `yaml:"sample_mode" mapstructure:"sample_mode"`
	IncludeRegionSearch bool     `yaml:"include_region_search" mapstructure:"include_region_search"`
	Keywords            []string `yaml:"keywords" mapstructure:"keywords"`
	Regions             []Region `yaml:"regions" mapstructure:"regions"`

	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Extraction ExtractionConfig `yaml:"extraction" mapstructure:"extraction"`
	Render     RenderConfig     `yaml:"render" mapstructure:"render"`
	Normalize  NormalizeConfig  `yaml:"normalize" mapstructure:"normalize"`
	Dedup      DedupConfig      `yaml:"dedup" mapstructure:"dedup"`
	Persist    PersistConfig    `yaml:"persist" mapstructure:"persist"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	HTTP       HTTPConfig       `yaml:"http" mapstructure:"http"`
	LLM        LLMConfig        `yaml:"llm" mapstructure:"llm"`
	Output     OutputConfig     `yaml:"output" mapstructure:"output"`
}

// Region is a top-level area with the cities searched inside it
type Region struct {
	Name   string   `yaml:"name" mapstructure:"name"`
	Cities []string `yaml:"cities" mapstructure:"cities"`
}

// DelayRange is a [min, max] pair of seconds
type DelayRange []float64

// Bounds returns the range as durations. Malformed ranges collapse to zero.
func (r DelayRange) Bounds() (time.Duration, time.Duration) {
	if len(r) != 2 {
		return 0, 0
	}
	return Seconds(r[0]), Seconds(r[1])
}

// Valid reports whether the range is [min, max] with 0 <= min <= max
func (r DelayRange) Valid() bool {
	return len(r) == 2 && r[0] >= 0 && r[0] <= r[1]
}

// Seconds converts a float number of seconds to a duration
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// SearchConfig configures the external search provider
type SearchConfig struct {
	Provider             string     `yaml:"provider" mapstructure:"provider"`                         // Only "google" is built in
	APIKey               string     `yaml:"api_key" mapstructure:"api_key"`                           // Prefer PROSPECTOR_SEARCH_API_KEY / GOOGLE_API_KEY
	EngineID             string     `yaml:"engine_id" mapstructure:"engine_id"`                       // Programmable Search Engine cx
	BaseURL              string     `yaml:"base_url" mapstructure:"base_url"`                         // Override for tests and proxies
	QuerySuffix          string     `yaml:"query_suffix" mapstructure:"query_suffix"`                 // Appended to "<keyword> <location>"
	ResultsPerSearch     int        `yaml:"results_per_search" mapstructure:"results_per_search"`     // URLs kept per task
	DailyLimit           int        `yaml:"daily_limit" mapstructure:"daily_limit"`                   // Local request budget, 0 disables
	DelayBetweenSearches DelayRange `yaml:"delay_between_searches" mapstructure:"delay_between_searches"` // [min,max] seconds
	Timeout              float64    `yaml:"timeout" mapstructure:"timeout"`                           // Seconds per API request
}

// ExtractionConfig configures strategy selection and page fetching
type ExtractionConfig struct {
	DelayBetweenExtractions  DelayRange `yaml:"delay_between_extractions" mapstructure:"delay_between_extractions"`
	UserAgents               []string   `yaml:"user_agents" mapstructure:"user_agents"`
	RobotsAgent              string     `yaml:"robots_agent" mapstructure:"robots_agent"` // Token matched against robots.txt groups
	RespectRobots            bool       `yaml:"respect_robots" mapstructure:"respect_robots"`
	KnownDynamicDomains      []string   `yaml:"known_dynamic_domains" mapstructure:"known_dynamic_domains"`
	DynamicIndicators        []string   `yaml:"dynamic_indicators" mapstructure:"dynamic_indicators"`
	DynamicSelectors         []string   `yaml:"dynamic_selectors" mapstructure:"dynamic_selectors"`
	ContactlessPagesDynamic  bool       `yaml:"contactless_pages_dynamic" mapstructure:"contactless_pages_dynamic"`
	ProbeTimeout             float64    `yaml:"probe_timeout" mapstructure:"probe_timeout"` // Seconds
	FetchTimeout             float64    `yaml:"fetch_timeout" mapstructure:"fetch_timeout"` // Seconds
	MaxBodyBytes             int64      `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	PhonePattern             string     `yaml:"phone_pattern" mapstructure:"phone_pattern"` // Empty uses the built-in Spanish pattern
	Workers                  int        `yaml:"workers" mapstructure:"workers"`             // 1 = serial
	RequestsPerSecondPerHost float64    `yaml:"requests_per_second_per_host" mapstructure:"requests_per_second_per_host"`
}

// RenderConfig configures the headless renderer
type RenderConfig struct {
	Headless     bool    `yaml:"headless" mapstructure:"headless"`
	Timeout      float64 `yaml:"timeout" mapstructure:"timeout"` // Seconds, bounds navigation + settle
	WaitSelector string  `yaml:"wait_selector" mapstructure:"wait_selector"`
	ExecPath     string  `yaml:"exec_path" mapstructure:"exec_path"` // Empty lets chromedp find Chrome
}

// NormalizeConfig configures contact canonicalization
type NormalizeConfig struct {
	CountryCode      string   `yaml:"country_code" mapstructure:"country_code"` // Digits only, e.g. "34"
	MinPhoneDigits   int      `yaml:"min_phone_digits" mapstructure:"min_phone_digits"`
	EmailDenylist    []string `yaml:"email_denylist" mapstructure:"email_denylist"`
	WhatsAppTemplate string   `yaml:"whatsapp_template" mapstructure:"whatsapp_template"` // Must contain one %s
	WhatsAppMessage  string   `yaml:"whatsapp_message" mapstructure:"whatsapp_message"`
}

// DedupConfig selects the deduplication backend
type DedupConfig struct {
	Backend   string `yaml:"backend" mapstructure:"backend"` // memory, redis
	RedisAddr string `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisKey  string `yaml:"redis_key" mapstructure:"redis_key"`
}

// PersistConfig configures incremental persistence
type PersistConfig struct {
	OutputDir     string   `yaml:"output_dir" mapstructure:"output_dir"`
	Basename      string   `yaml:"basename" mapstructure:"basename"`
	Formats       []string `yaml:"formats" mapstructure:"formats"`               // csv, json, sqlite
	FlushEvery    int      `yaml:"flush_every" mapstructure:"flush_every"`       // Accepted records between flushes, 0 disables
	FlushInterval float64  `yaml:"flush_interval" mapstructure:"flush_interval"` // Seconds between flushes, 0 disables
}

// CacheConfig configures the page cache
type CacheConfig struct {
	Enabled bool    `yaml:"enabled" mapstructure:"enabled"`
	TTL     float64 `yaml:"ttl" mapstructure:"ttl"` // Seconds
	Dir     string  `yaml:"dir" mapstructure:"dir"` // Empty uses the XDG cache dir
}

// HTTPConfig holds outbound proxy settings
type HTTPConfig struct {
	HTTPProxy  string `yaml:"http_proxy" mapstructure:"http_proxy"`
	HTTPSProxy string `yaml:"https_proxy" mapstructure:"https_proxy"`
	NoProxy    string `yaml:"no_proxy" mapstructure:"no_proxy"`
}

// LLMConfig configures the optional business-name resolver
type LLMConfig struct {
	Provider string  `yaml:"provider" mapstructure:"provider"` // "", openai, ollama
	Model    string  `yaml:"model" mapstructure:"model"`
	APIKey   string  `yaml:"api_key" mapstructure:"api_key"`
	BaseURL  string  `yaml:"base_url" mapstructure:"base_url"`
	Timeout  float64 `yaml:"timeout" mapstructure:"timeout"` // Seconds
}

// OutputConfig controls console and report output
type OutputConfig struct {
	Verbose         bool   `yaml:"verbose" mapstructure:"verbose"`
	JSONLogs        bool   `yaml:"json_logs" mapstructure:"json_logs"`
	SummaryMarkdown string `yaml:"summary_markdown" mapstructure:"summary_markdown"` // Optional path
}

// DefaultUserAgents is the built-in User-Agent rotation pool
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
}

// DefaultKnownDynamicDomains are directories and social sites that render contacts client-side
var DefaultKnownDynamicDomains = []string{
	"infoempresa.com", "facebook.com", "instagram.com", "linkedin.com",
	"twitter.com", "x.com", "einforma.com", "empresite.eleconomista.es",
	"guiaempresas.universia.es", "expansion.com", "axesor.es",
}

// DefaultDynamicIndicators are markup fragments that suggest client-rendered contact data
var DefaultDynamicIndicators = []string{
	// framework signatures
	"ng-app", "ng-view", "data-reactroot", "__next_data__", "__nuxt", "data-v-app",
	"router-view", "router-link", "data-route", "svelte-",
	// inline handlers and DOM writes
	"onclick=", "onmouseover=", "document.write", ".innerhtml",
	// contact protection
	"data-email", "data-tel", "protected-email", "data-cfemail", "email-protection",
	// lazy loading
	"lazy-load", "lazy-src", "data-src", "loading=\"lazy\"",
}

// DefaultDynamicSelectors are CSS selectors for contact widgets filled in by scripts
var DefaultDynamicSelectors = []string{
	"[data-email]",
	"[data-tel]",
	"[data-cfemail]",
	"a.__cf_email__",
}

// DefaultEmailDenylist holds placeholder domains and template fragments
var DefaultEmailDenylist = []string{
	"example.com", "example.es", "example.org", "domain.com", "dominio.com",
	"email.com", "sentry.io", "wixpress.com", "sentry-next.wixpress.com",
	"yourname", "youremail", "tuemail", "tucorreo", "nombre@", "usuario@",
}

// DefaultConfig returns the built-in configuration
func DefaultConfig() *Config {
	return &Config{
		SampleMode:          true,
		IncludeRegionSearch: false,
		Keywords:            []string{},
		Regions:             []Region{},
		Search: SearchConfig{
			Provider:             "google",
			BaseURL:              "https://customsearch.googleapis.com/customsearch/v1",
			QuerySuffix:          "contacto site:.es",
			ResultsPerSearch:     5,
			DailyLimit:           95,
			DelayBetweenSearches: DelayRange{3, 6},
			Timeout:              15,
		},
		Extraction: ExtractionConfig{
			DelayBetweenExtractions:  DelayRange{1, 3},
			UserAgents:               append([]string(nil), DefaultUserAgents...),
			RobotsAgent:              "Prospector",
			RespectRobots:            true,
			KnownDynamicDomains:      append([]string(nil), DefaultKnownDynamicDomains...),
			DynamicIndicators:        append([]string(nil), DefaultDynamicIndicators...),
			DynamicSelectors:         append([]string(nil), DefaultDynamicSelectors...),
			ContactlessPagesDynamic:  false,
			ProbeTimeout:             5,
			FetchTimeout:             10,
			MaxBodyBytes:             2_000_000,
			Workers:                  1,
			RequestsPerSecondPerHost: 0.5,
		},
		Render: RenderConfig{
			Headless:     true,
			Timeout:      10,
			WaitSelector: "body",
		},
		Normalize: NormalizeConfig{
			CountryCode:      "34",
			MinPhoneDigits:   9,
			EmailDenylist:    append([]string(nil), DefaultEmailDenylist...),
			WhatsAppTemplate: "https://wa.me/%s",
		},
		Dedup: DedupConfig{
			Backend:   "memory",
			RedisAddr: "localhost:6379",
			RedisKey:  "prospector:contacts",
		},
		Persist: PersistConfig{
			OutputDir:     "results",
			Basename:      "contacts",
			Formats:       []string{"csv", "json"},
			FlushEvery:    25,
			FlushInterval: 300,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     6 * 60 * 60,
		},
		LLM: LLMConfig{
			Model:   "gpt-4o-mini",
			Timeout: 30,
		},
	}
}

// Validate checks the configuration and returns the first problem found.
// Every returned error wraps ErrConfiguration.
func (c *Config) Validate() error {
	if len(c.Keywords) == 0 {
		return ErrNoKeywords
	}
	for _, k := range c.Keywords {
		if strings.TrimSpace(k) == "" {
			return ErrBlankKeyword
		}
	}
	if len(c.Regions) == 0 {
		return ErrNoRegions
	}
	for _, r := range c.Regions {
		if strings.TrimSpace(r.Name) == "" {
			return ErrBlankRegion
		}
	}

	if !c.Search.DelayBetweenSearches.Valid() {
		return fmt.Errorf("search.delay_between_searches: %w", ErrInvalidRange)
	}
	if !c.Extraction.DelayBetweenExtractions.Valid() {
		return fmt.Errorf("extraction.delay_between_extractions: %w", ErrInvalidRange)
	}
	if c.Search.ResultsPerSearch < 1 || c.Search.ResultsPerSearch > 100 {
		return ErrInvalidResults
	}
	if c.Persist.FlushEvery < 0 || c.Persist.FlushInterval < 0 {
		return ErrInvalidFlush
	}
	if c.Search.Timeout <= 0 || c.Extraction.ProbeTimeout <= 0 ||
		c.Extraction.FetchTimeout <= 0 || c.Render.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if len(c.Extraction.UserAgents) == 0 {
		return ErrNoUserAgents
	}

	if c.Extraction.PhonePattern != "" {
		if _, err := regexp.Compile(c.Extraction.PhonePattern); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPattern, err)
		}
	}

	if len(c.Persist.Formats) == 0 {
		return ErrNoFormats
	}
	for _, f := range c.Persist.Formats {
		switch strings.ToLower(f) {
		case "csv", "json", "sqlite":
		default:
			return fmt.Errorf("%q: %w", f, ErrUnknownFormat)
		}
	}

	switch strings.ToLower(c.Dedup.Backend) {
	case "", "memory", "redis":
	default:
		return fmt.Errorf("%q: %w", c.Dedup.Backend, ErrUnknownBackend)
	}

	switch strings.ToLower(c.Search.Provider) {
	case "", "google":
	default:
		return fmt.Errorf("search.provider %q: %w", c.Search.Provider, ErrUnknownProvider)
	}
	switch strings.ToLower(c.LLM.Provider) {
	case "", "none", "openai", "ollama":
	default:
		return fmt.Errorf("llm.provider %q: %w", c.LLM.Provider, ErrUnknownProvider)
	}

	return nil
}

// ValidateSearch checks the credentials needed for a live run
func (c *Config) ValidateSearch() error {
	if c.Search.APIKey == "" || c.Search.EngineID == "" {
		return ErrMissingSearchKey
	}
	return nil
}
