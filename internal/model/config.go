package model

import "time"

// Config is the complete attest configuration
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	LLM         LLMConfig         `yaml:"llm" mapstructure:"llm"`
	Verify      VerifyConfig      `yaml:"verify" mapstructure:"verify"`
	Workflow    WorkflowConfig    `yaml:"workflow" mapstructure:"workflow"`
	Concurrency ConcurrencyConfig `yaml:"concurrency" mapstructure:"concurrency"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Output      OutputConfig      `yaml:"output" mapstructure:"output"`
}

// StoreConfig configures the SQLite datastore
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"` // Database file path
}

// LLMConfig configures the relevance judge backend
type LLMConfig struct {
	Provider  string  `yaml:"provider" mapstructure:"provider"` // openai, anthropic, ollama, "" (disabled)
	Model     string  `yaml:"model" mapstructure:"model"`
	APIKey    string  `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL   string  `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout   int     `yaml:"timeout" mapstructure:"timeout"` // Seconds per judge call
	MaxTokens int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"` // Requests per second to the backend
	RateBurst int     `yaml:"rate_burst" mapstructure:"rate_burst"`
}

// VerifyConfig tunes the citation verifier
type VerifyConfig struct {
	Threshold   float64 `yaml:"threshold" mapstructure:"threshold"`       // Fuzzy-match acceptance floor
	WindowSlack int     `yaml:"window_slack" mapstructure:"window_slack"` // Extra tokens around the quote length per window
}

// WorkflowConfig bounds retry behaviour
type WorkflowConfig struct {
	MaxRetries   int           `yaml:"max_retries" mapstructure:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff" mapstructure:"retry_backoff"` // Base backoff, doubled per attempt
	LeaseTimeout time.Duration `yaml:"lease_timeout" mapstructure:"lease_timeout"` // Claimed citations past this are re-enqueued
}

// ConcurrencyConfig bounds the verification worker pool
type ConcurrencyConfig struct {
	VerifyWorkers int `yaml:"verify_workers" mapstructure:"verify_workers"`
}

// CacheConfig configures the in-memory source content cache
type CacheConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	TTL     time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// OutputConfig controls CLI output behaviour
type OutputConfig struct {
	Verbose bool `yaml:"verbose" mapstructure:"verbose"`
	JSON    bool `yaml:"json" mapstructure:"json"` // Machine-readable output
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Path: "attest.db",
		},
		LLM: LLMConfig{
			Provider:  "", // Relevance judging disabled by default
			Timeout:   30,
			MaxTokens: 500,
			RateLimit: 2.0,
			RateBurst: 5,
		},
		Verify: VerifyConfig{
			Threshold:   0.65,
			WindowSlack: 40,
		},
		Workflow: WorkflowConfig{
			MaxRetries:   3,
			RetryBackoff: time.Second,
			LeaseTimeout: 5 * time.Minute,
		},
		Concurrency: ConcurrencyConfig{
			VerifyWorkers: 4,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     15 * time.Minute,
		},
		Output: OutputConfig{},
	}
}
