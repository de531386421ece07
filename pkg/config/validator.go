package config

import (
	"fmt"

	"github.com/codeready-toolchain/htm/pkg/htmerr"
)

// Validator validates a Config comprehensively, fail-fast at the first
// problem found, mirroring the ordered sub-validator structure the rest of
// the engine's construction path follows.
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll runs every sub-validation in order: capabilities, limits,
// job scheduling, search, database, timeframe.
func (v *Validator) ValidateAll() error {
	if err := v.validateCapabilities(); err != nil {
		return err
	}
	if err := v.validateLimits(); err != nil {
		return err
	}
	if err := v.validateJob(); err != nil {
		return err
	}
	if err := v.validateSearch(); err != nil {
		return err
	}
	if err := v.validateDatabase(); err != nil {
		return err
	}
	if err := v.validateTimeframe(); err != nil {
		return err
	}
	return nil
}

func (v *Validator) validateCapabilities() error {
	if v.cfg.EmbeddingGenerator == nil {
		return htmerr.NewConfigurationError("embedding_generator", "must be set")
	}
	if v.cfg.TagExtractor == nil {
		return htmerr.NewConfigurationError("tag_extractor", "must be set")
	}
	if v.cfg.TokenCounter == nil {
		return htmerr.NewConfigurationError("token_counter", "must be set")
	}
	return nil
}

func (v *Validator) validateLimits() error {
	c := v.cfg
	if c.MaxContentBytes <= 0 {
		return htmerr.NewConfigurationError("max_content_bytes", "must be positive")
	}
	if c.MaxManualTags < 0 {
		return htmerr.NewConfigurationError("max_manual_tags", "must be non-negative")
	}
	if c.MaxTagDepth < 1 {
		return htmerr.NewConfigurationError("max_tag_depth", "must be at least 1")
	}
	if c.StorageEmbeddingWidth <= 0 {
		return htmerr.NewConfigurationError("storage_embedding_width", "must be positive")
	}
	if c.TagOntologySampleSize < 0 {
		return htmerr.NewConfigurationError("tag_ontology_sample_size", "must be non-negative")
	}
	if c.FileChunkTokens <= 0 {
		return htmerr.NewConfigurationError("file_chunk_tokens", "must be positive")
	}
	return nil
}

func (v *Validator) validateJob() error {
	c := v.cfg
	switch c.JobBackend {
	case JobBackendInline, JobBackendThread, JobBackendExternal:
	case "":
		return htmerr.NewConfigurationError("job_backend", "must be set")
	default:
		return htmerr.NewConfigurationError("job_backend", fmt.Sprintf("unknown backend %q", c.JobBackend))
	}
	if c.JobConcurrency < 1 {
		return htmerr.NewConfigurationError("job_concurrency", "must be at least 1")
	}
	return nil
}

func (v *Validator) validateSearch() error {
	c := v.cfg
	if c.SearchWeights.Vector < 0 || c.SearchWeights.Tag < 0 {
		return htmerr.NewConfigurationError("search_weights", "weights must be non-negative")
	}
	if c.HybridFanOut < 1 {
		return htmerr.NewConfigurationError("hybrid_fan_out", "must be at least 1")
	}
	if c.CacheSize < 0 {
		return htmerr.NewConfigurationError("cache_size", "must be non-negative")
	}
	if c.CacheTTLSeconds < 0 {
		return htmerr.NewConfigurationError("cache_ttl_seconds", "must be non-negative")
	}
	if c.WorkingMemorySizeTokens <= 0 {
		return htmerr.NewConfigurationError("working_memory_size_tokens", "must be positive")
	}
	return nil
}

func (v *Validator) validateDatabase() error {
	c := v.cfg
	if c.DatabaseURL == "" {
		return htmerr.NewConfigurationError("database_url", "must be set")
	}
	if c.DatabasePoolSize < 1 {
		return htmerr.NewConfigurationError("database_pool_size", "must be at least 1")
	}
	if c.EmbeddingTimeout <= 0 {
		return htmerr.NewConfigurationError("embedding_timeout", "must be positive")
	}
	if c.TagExtractionTimeout <= 0 {
		return htmerr.NewConfigurationError("tag_extraction_timeout", "must be positive")
	}
	if c.DBOperationTimeout <= 0 {
		return htmerr.NewConfigurationError("db_operation_timeout", "must be positive")
	}
	return nil
}

func (v *Validator) validateTimeframe() error {
	switch v.cfg.WeekStart {
	case WeekStartSunday, WeekStartMonday, "":
		return nil
	default:
		return htmerr.NewConfigurationError("week_start", fmt.Sprintf("unknown value %q", v.cfg.WeekStart))
	}
}
