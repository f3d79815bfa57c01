// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New() builds a Config with defaults; Load(ctx) layers file and env on top.
// - Durations are configured as integer milliseconds or minutes and exposed
//   through accessor methods.
// - External errors are wrapped with this package's sentinel kinds.
package config

import (
	"fmt"
	"runtime"
	"time"

	"github.com/okian/leadrank/internal/domain/scoring"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Shared-state backends for the cache, rate limiter and import deduper.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory import queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of import workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets how many import IDs the in-memory deduper remembers.
	DedupeSize int `koanf:"dedupe_size"`

	// DedupeBackend is memory or redis; DedupeTTLMinutes bounds redis entries.
	DedupeBackend    string `koanf:"dedupe_backend"`
	DedupeTTLMinutes int    `koanf:"dedupe_ttl_minutes"`

	// StoreDriver selects the lead store: memory, sqlite or postgres.
	StoreDriver string `koanf:"store_driver"`
	StoreDSN    string `koanf:"store_dsn"`
	// StoreMaxOpenConns caps the SQL pool; sqlite always uses one.
	StoreMaxOpenConns int `koanf:"store_max_open_conns"`

	// Weights are the default factor weights; they must sum to 100.
	Weights map[string]int `koanf:"weights"`

	// BonusCap is the points a full AI relevance bonus adds.
	BonusCap float64 `koanf:"bonus_cap"`

	// BatchConcurrency bounds parallel scoring within one batch.
	BatchConcurrency int `koanf:"batch_concurrency"`

	// RankMaxAttempts bounds the passes of one rank recompute.
	RankMaxAttempts int `koanf:"rank_max_attempts"`

	// Enrichment.
	EnrichmentEnabled     bool `koanf:"enrichment_enabled"`
	MaxPublications       int  `koanf:"max_publications"`
	MinAbstractLength     int  `koanf:"min_abstract_length"`
	EnrichmentTimeoutMS   int  `koanf:"enrichment_timeout_ms"`
	EnrichmentConcurrency int  `koanf:"enrichment_concurrency"`

	// Cache.
	CacheBackend          string `koanf:"cache_backend"`
	CacheTTLMinutes       int    `koanf:"cache_ttl_minutes"`
	CacheComputeTimeoutMS int    `koanf:"cache_compute_timeout_ms"`

	// RedisAddr is used by every redis backend.
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
	RedisPrefix   string `koanf:"redis_prefix"`

	// Rate limiting of upstream calls, per endpoint.
	RateLimitBackend      string `koanf:"ratelimit_backend"`
	RateLimitRequests     int    `koanf:"ratelimit_requests"`
	RateLimitWindowMS     int    `koanf:"ratelimit_window_ms"`
	RateLimitMaxWaitMS    int    `koanf:"ratelimit_max_wait_ms"`
	RetryMaxAttempts      int    `koanf:"retry_max_attempts"`
	RetryInitialBackoffMS int    `koanf:"retry_initial_backoff_ms"`
	RetryMaxBackoffMS     int    `koanf:"retry_max_backoff_ms"`

	// PubMed E-utilities.
	PubMedBaseURL string `koanf:"pubmed_base_url"`
	PubMedEmail   string `koanf:"pubmed_email"`
	PubMedAPIKey  string `koanf:"pubmed_api_key"`
	PubMedTool    string `koanf:"pubmed_tool"`

	// OpenAI classifier; without a key the keyword classifier is used.
	OpenAIAPIKey  string `koanf:"openai_api_key"`
	OpenAIModel   string `koanf:"openai_model"`
	OpenAIBaseURL string `koanf:"openai_base_url"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:              "info",
		Addr:                  ":9080",
		QueueSize:             1024,
		WorkerCount:           runtime.NumCPU(),
		DedupeSize:            50_000,
		DedupeBackend:         BackendMemory,
		DedupeTTLMinutes:      24 * 60,
		StoreDriver:           StoreMemory,
		StoreMaxOpenConns:     10,
		Weights:               scoring.DefaultWeights().Map(),
		BonusCap:              scoring.DefaultBonusCap,
		BatchConcurrency:      8,
		RankMaxAttempts:       5,
		EnrichmentEnabled:     false,
		MaxPublications:       5,
		MinAbstractLength:     50,
		EnrichmentTimeoutMS:   45_000,
		EnrichmentConcurrency: 5,
		CacheBackend:          BackendMemory,
		CacheTTLMinutes:       360,
		CacheComputeTimeoutMS: 30_000,
		RedisAddr:             "localhost:6379",
		RedisPrefix:           "leadrank:",
		RateLimitBackend:      BackendMemory,
		RateLimitRequests:     3,
		RateLimitWindowMS:     1000,
		RateLimitMaxWaitMS:    10_000,
		RetryMaxAttempts:      3,
		RetryInitialBackoffMS: 500,
		RetryMaxBackoffMS:     5000,
		PubMedBaseURL:         "https://eutils.ncbi.nlm.nih.gov/entrez/eutils",
		PubMedTool:            "leadrank",
		OpenAIModel:           "gpt-4o-mini",
	}
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	check(c.Addr != "", "addr must not be empty")
	check(c.QueueSize > 0, "queue_size must be positive")
	check(c.WorkerCount > 0, "worker_count must be positive")
	check(oneOf(c.StoreDriver, StoreMemory, StoreSQLite, StorePostgres), "unknown store_driver %q", c.StoreDriver)
	check(c.StoreDriver == StoreMemory || c.StoreDSN != "", "store_dsn is required for %s", c.StoreDriver)
	check(oneOf(c.CacheBackend, BackendMemory, BackendRedis), "unknown cache_backend %q", c.CacheBackend)
	check(oneOf(c.RateLimitBackend, BackendMemory, BackendRedis), "unknown ratelimit_backend %q", c.RateLimitBackend)
	check(oneOf(c.DedupeBackend, BackendMemory, BackendRedis), "unknown dedupe_backend %q", c.DedupeBackend)
	check(c.BonusCap >= 0, "bonus_cap must not be negative")
	check(c.RateLimitRequests > 0 && c.RateLimitWindowMS > 0, "ratelimit_requests and ratelimit_window_ms must be positive")
	check(c.RetryMaxAttempts > 0, "retry_max_attempts must be positive")
	check(c.RankMaxAttempts > 0, "rank_max_attempts must be positive")
	check(c.MaxPublications > 0, "max_publications must be positive")
	check(c.EnrichmentTimeoutMS > 0, "enrichment_timeout_ms must be positive")
	check(c.CacheTTLMinutes > 0, "cache_ttl_minutes must be positive")
	if _, err := scoring.ParseWeights(c.Weights); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, problems)
	}
	return nil
}

// UsesRedis reports whether any component is configured for redis.
func (c *Config) UsesRedis() bool {
	return c.CacheBackend == BackendRedis || c.RateLimitBackend == BackendRedis || c.DedupeBackend == BackendRedis
}

// Duration accessors.
func (c *Config) EnrichmentTimeout() time.Duration   { return ms(c.EnrichmentTimeoutMS) }
func (c *Config) CacheTTL() time.Duration            { return time.Duration(c.CacheTTLMinutes) * time.Minute }
func (c *Config) CacheComputeTimeout() time.Duration { return ms(c.CacheComputeTimeoutMS) }
func (c *Config) DedupeTTL() time.Duration           { return time.Duration(c.DedupeTTLMinutes) * time.Minute }
func (c *Config) RateLimitWindow() time.Duration     { return ms(c.RateLimitWindowMS) }
func (c *Config) RateLimitMaxWait() time.Duration    { return ms(c.RateLimitMaxWaitMS) }
func (c *Config) RetryInitialBackoff() time.Duration { return ms(c.RetryInitialBackoffMS) }
func (c *Config) RetryMaxBackoff() time.Duration     { return ms(c.RetryMaxBackoffMS) }

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
