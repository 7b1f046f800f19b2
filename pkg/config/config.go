// Package config loads the ambient configuration surface of §6.4 via
// github.com/knadh/koanf/v2, generalized from teacher's
// pkg/config/koanf_loader.go: the file/confmap/yaml stack is kept, the
// consul/etcd/zookeeper remote providers are dropped since this orchestrator
// is single-instance and local-first (see DESIGN.md).
package config

import (
	"fmt"

	"github.com/forgehq/forge/pkg/orcherr"
)

// RouterConfig configures provider selection (C3).
type RouterConfig struct {
	Strategy      string   `koanf:"strategy"`
	FallbackChain []string `koanf:"fallback_chain"`
	MaxRetries    int      `koanf:"max_retries"`
}

// ExecutorConfig configures the hybrid executor (C4) and tool batching (C8).
type ExecutorConfig struct {
	Hybrid struct {
		EscalationThreshold float64 `koanf:"escalation_threshold"`
	} `koanf:"hybrid"`
	Tool struct {
		MaxConcurrentBatch int `koanf:"max_concurrent_batch"`
		CacheTTLSeconds    int `koanf:"cache_ttl_seconds"`
	} `koanf:"tool"`
}

// SecurityConfig configures input limits and path scoping.
type SecurityConfig struct {
	Level           string   `koanf:"level"`
	MaxInputLength  int      `koanf:"max_input_length"`
	AllowedPaths    []string `koanf:"allowed_paths"`
	RestrictedPaths []string `koanf:"restricted_paths"`
}

// SearchConfig configures the hybrid search core (C10).
type SearchConfig struct {
	DefaultTimeoutMS int `koanf:"default_timeout_ms"`
	MaxOutputBytes   int `koanf:"max_output_bytes"`
}

// StreamingConfig configures the streaming pipeline (C5).
type StreamingConfig struct {
	ChannelCapacity int `koanf:"channel_capacity"`
}

// IsolationConfig configures the default sub-agent isolation tier (C11).
type IsolationConfig struct {
	DefaultLevel string `koanf:"default_level"`
}

// Config is the fully-unmarshaled, validated configuration surface of §6.4.
type Config struct {
	Router    RouterConfig    `koanf:"router"`
	Executor  ExecutorConfig  `koanf:"executor"`
	Security  SecurityConfig  `koanf:"security"`
	Search    SearchConfig    `koanf:"search"`
	Streaming StreamingConfig `koanf:"streaming"`
	Isolation IsolationConfig `koanf:"isolation"`
}

// Default returns the configuration the orchestrator runs with in the
// absence of any file or environment overrides.
func Default() *Config {
	cfg := &Config{}
	cfg.Router.Strategy = "balanced"
	cfg.Router.MaxRetries = 2
	cfg.Executor.Hybrid.EscalationThreshold = 0.7
	cfg.Executor.Tool.MaxConcurrentBatch = 4
	cfg.Executor.Tool.CacheTTLSeconds = 60
	cfg.Security.Level = "medium"
	cfg.Security.MaxInputLength = 50_000
	cfg.Search.DefaultTimeoutMS = 5000
	cfg.Search.MaxOutputBytes = 64 * 1024
	cfg.Streaming.ChannelCapacity = 64
	cfg.Isolation.DefaultLevel = "standard"
	return cfg
}

var validStrategies = map[string]bool{"fastest": true, "most-capable": true, "balanced": true, "adaptive": true}
var validSecurityLevels = map[string]bool{"low": true, "medium": true, "high": true, "maximum": true}
var validIsolationLevels = map[string]bool{"minimal": true, "standard": true, "strict": true, "maximum": true}

// Validate enforces the semantic constraints §6.4 attaches to its enumerated
// options, beyond the structural "unknown key" rejection done at load time.
func (c *Config) Validate() error {
	if !validStrategies[c.Router.Strategy] {
		return orcherr.New(orcherr.CodeConfigurationError, fmt.Sprintf("router.strategy: invalid value %q", c.Router.Strategy))
	}
	if c.Router.MaxRetries < 0 {
		return orcherr.New(orcherr.CodeConfigurationError, "router.max_retries: must be >= 0")
	}
	if c.Executor.Hybrid.EscalationThreshold < 0 || c.Executor.Hybrid.EscalationThreshold > 1 {
		return orcherr.New(orcherr.CodeConfigurationError, "executor.hybrid.escalation_threshold: must be in [0,1]")
	}
	if c.Executor.Tool.MaxConcurrentBatch < 1 {
		return orcherr.New(orcherr.CodeConfigurationError, "executor.tool.max_concurrent_batch: must be >= 1")
	}
	if c.Executor.Tool.CacheTTLSeconds < 0 {
		return orcherr.New(orcherr.CodeConfigurationError, "executor.tool.cache_ttl_seconds: must be >= 0")
	}
	if !validSecurityLevels[c.Security.Level] {
		return orcherr.New(orcherr.CodeConfigurationError, fmt.Sprintf("security.level: invalid value %q", c.Security.Level))
	}
	if c.Security.MaxInputLength < 1 {
		return orcherr.New(orcherr.CodeConfigurationError, "security.max_input_length: must be >= 1")
	}
	if c.Search.DefaultTimeoutMS < 1 {
		return orcherr.New(orcherr.CodeConfigurationError, "search.default_timeout_ms: must be >= 1")
	}
	if c.Search.MaxOutputBytes < 1 {
		return orcherr.New(orcherr.CodeConfigurationError, "search.max_output_bytes: must be >= 1")
	}
	if c.Streaming.ChannelCapacity < 1 {
		return orcherr.New(orcherr.CodeConfigurationError, "streaming.channel_capacity: must be >= 1")
	}
	if !validIsolationLevels[c.Isolation.DefaultLevel] {
		return orcherr.New(orcherr.CodeConfigurationError, fmt.Sprintf("isolation.default_level: invalid value %q", c.Isolation.DefaultLevel))
	}
	return nil
}
