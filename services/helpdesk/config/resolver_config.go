// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Embedded Defaults
// =============================================================================

//go:embed resolver_defaults.yaml
var defaultResolverYAML []byte

// MaxYAMLFileSize bounds any config file this package will parse.
const MaxYAMLFileSize = 1 << 20

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid resolver config")

var configTracer = otel.Tracer("helpdesk.config")

// Resolver modes.
const (
	ModeCascade = "cascade"
	ModeHybrid  = "hybrid"
)

// Embedding providers.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// =============================================================================
// Configuration Types
// =============================================================================

// ResolverConfig holds every tunable of the query resolver.
//
// Description:
//
//	Thresholds vary between deployments, so none of them are constants.
//	The embedded defaults mirror the values the helpdesk has run with:
//	fuzzy ratio > 70, cosine distance <= 0.45, greeting ratio > 80.
//
// Thread Safety: Immutable after loading; safe for concurrent use.
type ResolverConfig struct {
	// Mode is "cascade" or "hybrid".
	Mode string `yaml:"mode" validate:"oneof=cascade hybrid"`

	// TopK is the candidate count per method in hybrid mode and the
	// default result count for Search.
	TopK int `yaml:"top_k" validate:"gte=1,lte=50"`

	// GreetingThreshold is the 0-100 score a greeting phrase must exceed.
	GreetingThreshold int `yaml:"greeting_threshold" validate:"gte=0,lte=100"`

	Fuzzy       FuzzyConfig       `yaml:"fuzzy"`
	Semantic    SemanticConfig    `yaml:"semantic"`
	Suggestions SuggestionsConfig `yaml:"suggestions"`
	Response    ResponseConfig    `yaml:"response"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Cache       CacheConfig       `yaml:"cache"`
}

// FuzzyConfig controls token-sort matching.
type FuzzyConfig struct {
	// Threshold is the 0-100 token-sort ratio a match must exceed.
	Threshold int `yaml:"threshold" validate:"gte=0,lte=100"`
}

// SemanticConfig controls embedding search.
type SemanticConfig struct {
	// Enabled turns the embedding stage on. When false the resolver never
	// calls the embedder and needs none at load time.
	Enabled bool `yaml:"enabled"`

	// MaxDistance is the largest cosine distance accepted as a match.
	MaxDistance float64 `yaml:"max_distance" validate:"gte=0,lte=2"`

	// QueryTimeout bounds the per-query embedding call.
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

// SuggestionsConfig controls the "did you mean" list on no-match results.
type SuggestionsConfig struct {
	Limit         int     `yaml:"limit" validate:"gte=0,lte=10"`
	MinSimilarity float64 `yaml:"min_similarity" validate:"gte=0,lte=1"`
}

// ResponseConfig holds the fixed reply texts.
type ResponseConfig struct {
	// AppendMetadata adds category and tag lines to fuzzy and semantic answers.
	AppendMetadata bool `yaml:"append_metadata"`

	Gibberish string `yaml:"gibberish" validate:"required"`
	NoMatch   string `yaml:"no_match" validate:"required"`
}

// EmbedderConfig selects and configures the embedding backend.
type EmbedderConfig struct {
	Provider string `yaml:"provider" validate:"oneof=ollama openai"`

	// URL is the Ollama /api/embed endpoint or the OpenAI-compatible base URL.
	URL string `yaml:"url" validate:"omitempty,url"`

	Model string `yaml:"model" validate:"required"`

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env"`

	Timeout          time.Duration `yaml:"timeout"`
	BatchConcurrency int           `yaml:"batch_concurrency" validate:"gte=1,lte=64"`
}

// CacheConfig controls the persisted question-embedding cache.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
}

// =============================================================================
// Defaults
// =============================================================================

const (
	DefaultTopK              = 3
	DefaultGreetingThreshold = 80
	DefaultFuzzyThreshold    = 70
	DefaultMaxDistance       = 0.45
	DefaultQueryTimeout      = 3 * time.Second
	DefaultEmbedTimeout      = 30 * time.Second
	DefaultBatchConcurrency  = 10
	DefaultCacheTTL          = 7 * 24 * time.Hour
)

// =============================================================================
// Singleton
// =============================================================================

var (
	resolverConfigMu      sync.Mutex
	resolverConfigOnce    sync.Once
	cachedResolverConfig  *ResolverConfig
	resolverConfigLoadErr error
)

// GetResolverConfig returns the embedded default configuration, loading it
// on first use.
//
// Thread Safety: Safe for concurrent use.
func GetResolverConfig(ctx context.Context) (*ResolverConfig, error) {
	if ctx == nil {
		return nil, fmt.Errorf("GetResolverConfig: ctx must not be nil")
	}
	resolverConfigMu.Lock()
	defer resolverConfigMu.Unlock()

	resolverConfigOnce.Do(func() {
		cachedResolverConfig, resolverConfigLoadErr = LoadResolverConfig(ctx, defaultResolverYAML)
	})
	return cachedResolverConfig, resolverConfigLoadErr
}

// ResetResolverConfig clears the cached default config. Tests only.
func ResetResolverConfig() {
	resolverConfigMu.Lock()
	defer resolverConfigMu.Unlock()
	cachedResolverConfig = nil
	resolverConfigLoadErr = nil
	resolverConfigOnce = sync.Once{}
}

// DefaultResolverYAML returns a copy of the embedded default config.
func DefaultResolverYAML() []byte {
	return append([]byte(nil), defaultResolverYAML...)
}

// =============================================================================
// Loading
// =============================================================================

// LoadResolverConfig parses YAML on top of the embedded defaults and
// validates the result.
//
// Description:
//
//	Fields absent from data keep their default value, so a file only needs
//	to name what it changes. Zero values that would make the resolver
//	unusable are replaced by the package defaults before validation.
//
// Inputs:
//
//	ctx - Context for tracing.
//	data - YAML bytes. Empty data yields the defaults.
//
// Outputs:
//
//	*ResolverConfig - The validated configuration.
//	error - Wraps ErrInvalidConfig on validation failure.
func LoadResolverConfig(ctx context.Context, data []byte) (*ResolverConfig, error) {
	_, span := configTracer.Start(ctx, "config.LoadResolverConfig")
	defer span.End()

	if len(data) > MaxYAMLFileSize {
		return nil, fmt.Errorf("LoadResolverConfig: YAML data exceeds maximum size (%d > %d)", len(data), MaxYAMLFileSize)
	}

	var cfg ResolverConfig
	if err := yaml.Unmarshal(defaultResolverYAML, &cfg); err != nil {
		return nil, fmt.Errorf("LoadResolverConfig: parsing defaults: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("LoadResolverConfig: parsing YAML: %w", err)
		}
	}

	applyResolverDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("LoadResolverConfig: %w", err)
	}

	span.SetAttributes(
		attribute.String("mode", cfg.Mode),
		attribute.Int("fuzzy_threshold", cfg.Fuzzy.Threshold),
		attribute.Float64("max_distance", cfg.Semantic.MaxDistance),
		attribute.Bool("semantic_enabled", cfg.Semantic.Enabled),
		attribute.String("embedder_provider", cfg.Embedder.Provider),
	)

	slog.Debug("resolver config loaded",
		slog.String("mode", cfg.Mode),
		slog.Int("fuzzy_threshold", cfg.Fuzzy.Threshold),
		slog.Float64("max_distance", cfg.Semantic.MaxDistance),
		slog.Bool("semantic_enabled", cfg.Semantic.Enabled),
	)
	return &cfg, nil
}

// LoadResolverConfigFile reads path and passes it to LoadResolverConfig.
// An empty path yields the defaults.
func LoadResolverConfigFile(ctx context.Context, path string) (*ResolverConfig, error) {
	if path == "" {
		return LoadResolverConfig(ctx, nil)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config %s: %w", path, err)
	}
	if info.Size() > MaxYAMLFileSize {
		return nil, fmt.Errorf("config %s exceeds maximum size (%d > %d)", path, info.Size(), MaxYAMLFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return LoadResolverConfig(ctx, data)
}

func applyResolverDefaults(cfg *ResolverConfig) {
	if cfg.Mode == "" {
		cfg.Mode = ModeCascade
	}
	cfg.Mode = strings.ToLower(cfg.Mode)
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.Semantic.QueryTimeout <= 0 {
		cfg.Semantic.QueryTimeout = DefaultQueryTimeout
	}
	if cfg.Embedder.Provider == "" {
		cfg.Embedder.Provider = ProviderOllama
	}
	cfg.Embedder.Provider = strings.ToLower(cfg.Embedder.Provider)
	if cfg.Embedder.Timeout <= 0 {
		cfg.Embedder.Timeout = DefaultEmbedTimeout
	}
	if cfg.Embedder.BatchConcurrency <= 0 {
		cfg.Embedder.BatchConcurrency = DefaultBatchConcurrency
	}
	if cfg.Cache.TTL <= 0 {
		cfg.Cache.TTL = DefaultCacheTTL
	}
}

// =============================================================================
// Validation
// =============================================================================

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks field ranges and cross-field constraints.
func (c *ResolverConfig) Validate() error {
	if err := structValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if c.Mode == ModeHybrid && !c.Semantic.Enabled {
		slog.Warn("hybrid mode with semantic search disabled; only fuzzy candidates will be ranked")
	}
	if c.Embedder.Provider == ProviderOpenAI && c.Embedder.APIKeyEnv == "" {
		return fmt.Errorf("%w: embedder.api_key_env is required for provider %q", ErrInvalidConfig, ProviderOpenAI)
	}
	return nil
}

// =============================================================================
// Environment Overrides
// =============================================================================

// ApplyEnv overrides fields from environment variables and revalidates.
//
// Description:
//
//	Recognized variables:
//	  HELPDESK_MODE, HELPDESK_TOP_K, HELPDESK_FUZZY_THRESHOLD,
//	  HELPDESK_SEMANTIC_MAX_DISTANCE, HELPDESK_SEMANTIC_ENABLED,
//	  EMBEDDING_PROVIDER, EMBEDDING_SERVICE_URL, EMBEDDING_MODEL.
//	getenv is injected so tests do not touch the process environment;
//	pass os.Getenv in production.
//
// Outputs:
//
//	error - Non-nil if a variable does not parse or the result is invalid.
func (c *ResolverConfig) ApplyEnv(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}

	if v := getenv("HELPDESK_MODE"); v != "" {
		c.Mode = strings.ToLower(v)
	}
	if v := getenv("HELPDESK_TOP_K"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: HELPDESK_TOP_K: %v", ErrInvalidConfig, err)
		}
		c.TopK = n
	}
	if v := getenv("HELPDESK_FUZZY_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: HELPDESK_FUZZY_THRESHOLD: %v", ErrInvalidConfig, err)
		}
		c.Fuzzy.Threshold = n
	}
	if v := getenv("HELPDESK_SEMANTIC_MAX_DISTANCE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: HELPDESK_SEMANTIC_MAX_DISTANCE: %v", ErrInvalidConfig, err)
		}
		c.Semantic.MaxDistance = f
	}
	if v := getenv("HELPDESK_SEMANTIC_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: HELPDESK_SEMANTIC_ENABLED: %v", ErrInvalidConfig, err)
		}
		c.Semantic.Enabled = b
	}
	if v := getenv("EMBEDDING_PROVIDER"); v != "" {
		c.Embedder.Provider = strings.ToLower(v)
	}
	if v := getenv("EMBEDDING_SERVICE_URL"); v != "" {
		c.Embedder.URL = v
	}
	if v := getenv("EMBEDDING_MODEL"); v != "" {
		c.Embedder.Model = v
	}
	return c.Validate()
}
