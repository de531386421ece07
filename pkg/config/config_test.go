package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEmbedder struct{}

func (stubEmbedder) Embed(text string) ([]float32, error) { return []float32{0.1}, nil }

type stubTagger struct{}

func (stubTagger) ExtractTags(text string, sample []string) ([]string, error) { return nil, nil }

type stubCounter struct{}

func (stubCounter) CountTokens(text string) (int, error) { return len(text), nil }

func validConfig() *Config {
	c := Defaults()
	c.EmbeddingGenerator = stubEmbedder{}
	c.TagExtractor = stubTagger{}
	c.TokenCounter = stubCounter{}
	c.DatabaseURL = "postgres://localhost/htm"
	return c
}

func TestDefaults(t *testing.T) {
	c := Defaults()

	assert.Equal(t, 1_048_576, c.MaxContentBytes)
	assert.Equal(t, 1000, c.MaxManualTags)
	assert.Equal(t, 4, c.MaxTagDepth)
	assert.Equal(t, 2000, c.StorageEmbeddingWidth)
	assert.Equal(t, JobBackendInline, c.JobBackend)
	assert.Equal(t, 5, c.JobConcurrency)
	assert.Equal(t, 100, c.TagOntologySampleSize)
	assert.Equal(t, SearchWeights{Vector: 0.7, Tag: 0.3}, c.SearchWeights)
	assert.Equal(t, 2, c.HybridFanOut)
	assert.Equal(t, 1000, c.CacheSize)
	assert.Equal(t, 60, c.CacheTTLSeconds)
	assert.Equal(t, 128_000, c.WorkingMemorySizeTokens)
	assert.Equal(t, WeekStartSunday, c.WeekStart)
	assert.Equal(t, 120*time.Second, c.EmbeddingTimeout)
	assert.Equal(t, 180*time.Second, c.TagExtractionTimeout)
	assert.Equal(t, 30*time.Second, c.DBOperationTimeout)
	assert.Equal(t, 10, c.DatabasePoolSize)
}

func TestValidator_ValidateAll_Valid(t *testing.T) {
	err := NewValidator(validConfig()).ValidateAll()
	require.NoError(t, err)
}

func TestValidator_ValidateAll_MissingCapabilities(t *testing.T) {
	c := validConfig()
	c.EmbeddingGenerator = nil

	err := NewValidator(c).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding_generator")
}

func TestValidator_ValidateAll_BadJobBackend(t *testing.T) {
	c := validConfig()
	c.JobBackend = "carrier-pigeon"

	err := NewValidator(c).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job_backend")
}

func TestValidator_ValidateAll_NegativeWeights(t *testing.T) {
	c := validConfig()
	c.SearchWeights.Vector = -1

	err := NewValidator(c).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search_weights")
}

func TestValidator_ValidateAll_MissingDatabaseURL(t *testing.T) {
	c := validConfig()
	c.DatabaseURL = ""

	err := NewValidator(c).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database_url")
}
